package query

import (
	"errors"
	"fmt"
)

// PlanError represents an error detected while building or validating a
// query plan. Plan errors are surfaced before execution: a plan carrying
// one never reaches the storage collaborator.
type PlanError struct {
	// Code identifies the error category.
	Code PlanErrorCode

	// Message is a human-readable description.
	Message string

	// Relation names the relation the plan targets.
	Relation string

	// Field names the offending field reference, when applicable.
	Field string

	// Relationship names the offending relationship, when applicable.
	Relationship string
}

// PlanErrorCode categorizes plan-validation errors.
type PlanErrorCode string

const (
	// ErrCodeUnknownField indicates a filter, ordering or aggregation
	// references a field the relation does not declare.
	ErrCodeUnknownField PlanErrorCode = "UNKNOWN_FIELD"

	// ErrCodeUnknownRelationship indicates an eager-load or traversal
	// names a relationship the relation does not declare.
	ErrCodeUnknownRelationship PlanErrorCode = "UNKNOWN_RELATIONSHIP"

	// ErrCodeTypeMismatch indicates an operator was applied to operands
	// of incompatible semantic types.
	ErrCodeTypeMismatch PlanErrorCode = "TYPE_MISMATCH"

	// ErrCodeUnsupportedStrategy indicates a joined load was forced on a
	// to-many relationship, which would duplicate parent rows.
	ErrCodeUnsupportedStrategy PlanErrorCode = "UNSUPPORTED_STRATEGY"

	// ErrCodeEagerDepthExceeded indicates nested eager-loads exceed the
	// documented depth limit.
	ErrCodeEagerDepthExceeded PlanErrorCode = "EAGER_DEPTH_EXCEEDED"

	// ErrCodeInvalidPlan covers malformed clauses such as a negative
	// slice offset or an unknown ordering direction.
	ErrCodeInvalidPlan PlanErrorCode = "INVALID_PLAN"
)

// Error implements the error interface.
func (e *PlanError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: %s (relation=%s, field=%s)", e.Code, e.Message, e.Relation, e.Field)
	case e.Relationship != "":
		return fmt.Sprintf("%s: %s (relation=%s, relationship=%s)", e.Code, e.Message, e.Relation, e.Relationship)
	default:
		return fmt.Sprintf("%s: %s (relation=%s)", e.Code, e.Message, e.Relation)
	}
}

// IsUnknownField returns true for unknown-field plan errors.
// Uses errors.As to handle wrapped errors.
func IsUnknownField(err error) bool { return hasCode(err, ErrCodeUnknownField) }

// IsUnknownRelationship returns true for unknown-relationship plan errors.
func IsUnknownRelationship(err error) bool { return hasCode(err, ErrCodeUnknownRelationship) }

// IsTypeMismatch returns true for type-mismatch plan errors.
func IsTypeMismatch(err error) bool { return hasCode(err, ErrCodeTypeMismatch) }

// IsUnsupportedStrategy returns true for unsupported-strategy plan errors.
func IsUnsupportedStrategy(err error) bool { return hasCode(err, ErrCodeUnsupportedStrategy) }

func hasCode(err error, code PlanErrorCode) bool {
	var pe *PlanError
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// NewUnknownFieldError creates a PlanError for an undeclared field.
func NewUnknownFieldError(relation, field string) *PlanError {
	return &PlanError{
		Code:     ErrCodeUnknownField,
		Message:  "field is not declared on relation",
		Relation: relation,
		Field:    field,
	}
}

// NewUnknownRelationshipError creates a PlanError for an undeclared relationship.
func NewUnknownRelationshipError(relation, relationship string) *PlanError {
	return &PlanError{
		Code:         ErrCodeUnknownRelationship,
		Message:      "relationship is not declared on relation",
		Relation:     relation,
		Relationship: relationship,
	}
}

// NewTypeMismatchError creates a PlanError for incompatible operand types.
func NewTypeMismatchError(relation, field, detail string) *PlanError {
	return &PlanError{
		Code:     ErrCodeTypeMismatch,
		Message:  detail,
		Relation: relation,
		Field:    field,
	}
}

// NewUnsupportedStrategyError creates a PlanError for an illegal forced
// loading strategy.
func NewUnsupportedStrategyError(relation, relationship, detail string) *PlanError {
	return &PlanError{
		Code:         ErrCodeUnsupportedStrategy,
		Message:      detail,
		Relation:     relation,
		Relationship: relationship,
	}
}

// NewEagerDepthError creates a PlanError for over-deep nested eager-loads.
func NewEagerDepthError(relation string, depth, max int) *PlanError {
	return &PlanError{
		Code:     ErrCodeEagerDepthExceeded,
		Message:  fmt.Sprintf("nested eager-loads exceed depth limit (%d > %d)", depth, max),
		Relation: relation,
	}
}

// NewInvalidPlanError creates a PlanError for a malformed clause.
func NewInvalidPlanError(relation, detail string) *PlanError {
	return &PlanError{
		Code:     ErrCodeInvalidPlan,
		Message:  detail,
		Relation: relation,
	}
}
