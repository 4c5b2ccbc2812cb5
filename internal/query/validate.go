package query

import (
	"fmt"

	"github.com/roach88/quill/internal/schema"
	"github.com/roach88/quill/internal/value"
)

// resolveFieldRef walks a field reference's relationship traversals and
// resolves the terminal field. Returns the field and the relation it lives
// on, or a PlanError naming the missing hop or field. Only to-one hops are
// traversable: a to-many or many-to-many hop would multiply rows, so it is
// rejected here rather than left for the SQL compiler to trip over.
func resolveFieldRef(registry *schema.Registry, rel *schema.Relation, ref FieldRef) (schema.Field, *schema.Relation, *PlanError) {
	current := rel
	for _, hop := range ref.Path {
		r, ok := current.Relationship(hop)
		if !ok {
			return schema.Field{}, nil, NewUnknownRelationshipError(current.Name(), hop)
		}
		if r.Cardinality != schema.ToOne {
			return schema.Field{}, nil, &PlanError{
				Code:         ErrCodeInvalidPlan,
				Message:      fmt.Sprintf("cannot traverse %s relationship in a field reference", r.Cardinality),
				Relation:     current.Name(),
				Relationship: hop,
			}
		}
		target, ok := registry.Relation(r.Target)
		if !ok {
			return schema.Field{}, nil, NewUnknownRelationshipError(current.Name(), hop)
		}
		current = target
	}
	f, ok := current.Field(ref.Name)
	if !ok {
		return schema.Field{}, nil, NewUnknownFieldError(current.Name(), ref.Name)
	}
	return f, current, nil
}

// ResolveField resolves a dotted field reference against a relation,
// following to-one relationship hops to the terminal field. Collaborators
// that convert storage results need the terminal field's kind.
func ResolveField(registry *schema.Registry, rel *schema.Relation, ref FieldRef) (schema.Field, error) {
	f, _, err := resolveFieldRef(registry, rel, ref)
	if err != nil {
		return schema.Field{}, err
	}
	return f, nil
}

// validatePredicate recursively validates a predicate tree against a
// relation's declared fields. All checks happen here, at plan-build time;
// an invalid predicate never reaches the storage collaborator.
func validatePredicate(registry *schema.Registry, rel *schema.Relation, p Predicate) *PlanError {
	switch pred := p.(type) {
	case nil:
		return nil
	case Cmp:
		return validateCmp(registry, rel, pred)
	case *Cmp:
		return validateCmp(registry, rel, *pred)
	case And:
		return validateJunction(registry, rel, pred.Preds)
	case *And:
		return validateJunction(registry, rel, pred.Preds)
	case Or:
		return validateJunction(registry, rel, pred.Preds)
	case *Or:
		return validateJunction(registry, rel, pred.Preds)
	case Not:
		return validatePredicate(registry, rel, pred.Pred)
	case *Not:
		return validatePredicate(registry, rel, pred.Pred)
	default:
		return NewInvalidPlanError(rel.Name(), fmt.Sprintf("unknown predicate type %T", p))
	}
}

func validateJunction(registry *schema.Registry, rel *schema.Relation, preds []Predicate) *PlanError {
	for _, sub := range preds {
		if err := validatePredicate(registry, rel, sub); err != nil {
			return err
		}
	}
	return nil
}

// validateCmp checks one leaf comparison: the field must resolve, and the
// operator must fit the operand kinds.
func validateCmp(registry *schema.Registry, rel *schema.Relation, c Cmp) *PlanError {
	field, _, err := resolveFieldRef(registry, rel, c.Field)
	if err != nil {
		return err
	}

	switch c.Op {
	case OpIsNull:
		// The only operator valid against an absent field; no operand.
		return nil

	case OpEquals, OpNotEquals:
		return checkOperand(registry, rel, c, field, false)

	case OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual:
		if !value.Ordered(field.Kind) {
			return NewTypeMismatchError(rel.Name(), c.Field.String(),
				fmt.Sprintf("operator %s requires an ordered field, got %s", c.Op, field.Kind))
		}
		return checkOperand(registry, rel, c, field, true)

	case OpContains, OpStartsWith, OpEndsWith:
		if !value.Textual(field.Kind) {
			return NewTypeMismatchError(rel.Name(), c.Field.String(),
				fmt.Sprintf("operator %s requires a text field, got %s", c.Op, field.Kind))
		}
		if c.Ref != nil {
			return NewTypeMismatchError(rel.Name(), c.Field.String(),
				fmt.Sprintf("operator %s does not support a field reference operand", c.Op))
		}
		if value.KindOf(c.Value) != value.KindString {
			return NewTypeMismatchError(rel.Name(), c.Field.String(),
				fmt.Sprintf("operator %s requires a string operand, got %s", c.Op, value.KindOf(c.Value)))
		}
		return nil

	case OpIn:
		// An empty set is legal and never matches; the engine
		// short-circuits it without a storage call.
		for _, member := range c.Set {
			if !value.Comparable(field.Kind, value.KindOf(member)) {
				return NewTypeMismatchError(rel.Name(), c.Field.String(),
					fmt.Sprintf("in-set member of kind %s is incompatible with field kind %s", value.KindOf(member), field.Kind))
			}
		}
		return nil

	case OpRange:
		if !value.Ordered(field.Kind) {
			return NewTypeMismatchError(rel.Name(), c.Field.String(),
				fmt.Sprintf("range requires an ordered field, got %s", field.Kind))
		}
		for _, bound := range []value.Value{c.Lo, c.Hi} {
			if !value.Comparable(field.Kind, value.KindOf(bound)) {
				return NewTypeMismatchError(rel.Name(), c.Field.String(),
					fmt.Sprintf("range bound of kind %s is incompatible with field kind %s", value.KindOf(bound), field.Kind))
			}
		}
		return nil

	default:
		return NewInvalidPlanError(rel.Name(), fmt.Sprintf("unknown operator %q", c.Op))
	}
}

// checkOperand validates the right-hand side of a binary comparison:
// either a literal of a comparable kind, or a field reference resolving to
// a comparable kind on the same record.
func checkOperand(registry *schema.Registry, rel *schema.Relation, c Cmp, field schema.Field, ordered bool) *PlanError {
	if c.Ref != nil {
		other, _, err := resolveFieldRef(registry, rel, *c.Ref)
		if err != nil {
			return err
		}
		if !value.Comparable(field.Kind, other.Kind) {
			return NewTypeMismatchError(rel.Name(), c.Field.String(),
				fmt.Sprintf("cannot compare field of kind %s with field %s of kind %s", field.Kind, c.Ref, other.Kind))
		}
		if ordered && !value.Ordered(other.Kind) {
			return NewTypeMismatchError(rel.Name(), c.Ref.String(),
				fmt.Sprintf("operator %s requires an ordered field, got %s", c.Op, other.Kind))
		}
		return nil
	}

	kind := value.KindOf(c.Value)
	if kind == value.KindNull {
		return NewTypeMismatchError(rel.Name(), c.Field.String(),
			"comparing against null is not allowed; use is-null")
	}
	if !value.Comparable(field.Kind, kind) {
		return NewTypeMismatchError(rel.Name(), c.Field.String(),
			fmt.Sprintf("operand of kind %s is incompatible with field kind %s", kind, field.Kind))
	}
	return nil
}

// validateEagerLoad checks one eager-load request: the relationship must
// be declared, a forced strategy must be legal for its cardinality, the
// sub-plan (if any) must target the relationship's target relation, and
// nesting must stay within MaxEagerDepth.
func validateEagerLoad(registry *schema.Registry, rel *schema.Relation, load EagerLoad, depth int) *PlanError {
	if depth > MaxEagerDepth {
		return NewEagerDepthError(rel.Name(), depth, MaxEagerDepth)
	}

	r, ok := rel.Relationship(load.Name)
	if !ok {
		return NewUnknownRelationshipError(rel.Name(), load.Name)
	}

	if load.Strategy != "" && !r.Cardinality.Allows(load.Strategy) {
		return NewUnsupportedStrategyError(rel.Name(), load.Name,
			fmt.Sprintf("%s loading is not supported for %s relationships", load.Strategy, r.Cardinality))
	}

	if load.Sub != nil {
		if load.Sub.RelationName() != r.Target {
			return NewInvalidPlanError(rel.Name(),
				fmt.Sprintf("sub-plan for relationship %q targets %q, want %q", load.Name, load.Sub.RelationName(), r.Target))
		}
		if err := load.Sub.Err(); err != nil {
			if pe, ok := err.(*PlanError); ok {
				return pe
			}
			return NewInvalidPlanError(rel.Name(), err.Error())
		}
		target, ok := registry.Relation(r.Target)
		if !ok {
			return NewUnknownRelationshipError(rel.Name(), load.Name)
		}
		for _, nested := range load.Sub.EagerLoads() {
			if err := validateEagerLoad(registry, target, nested, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateAggregation checks one reduction request. Count needs no field;
// sum and avg need a numeric field; min and max need an ordered field.
func validateAggregation(registry *schema.Registry, rel *schema.Relation, agg Aggregation) *PlanError {
	if agg.Name == "" {
		return NewInvalidPlanError(rel.Name(), "aggregation name must not be empty")
	}

	switch agg.Fn {
	case AggCount:
		if agg.Field == "" {
			return nil
		}
	case AggSum, AggAvg, AggMin, AggMax:
		if agg.Field == "" {
			return NewInvalidPlanError(rel.Name(), fmt.Sprintf("aggregation %s requires a field", agg.Fn))
		}
	default:
		return NewInvalidPlanError(rel.Name(), fmt.Sprintf("unknown aggregate function %q", agg.Fn))
	}

	field, _, err := resolveFieldRef(registry, rel, Ref(agg.Field))
	if err != nil {
		return err
	}

	switch agg.Fn {
	case AggSum, AggAvg:
		if field.Kind != value.KindInt && field.Kind != value.KindFloat {
			return NewTypeMismatchError(rel.Name(), agg.Field,
				fmt.Sprintf("%s requires a numeric field, got %s", agg.Fn, field.Kind))
		}
	case AggMin, AggMax:
		if !value.Ordered(field.Kind) {
			return NewTypeMismatchError(rel.Name(), agg.Field,
				fmt.Sprintf("%s requires an ordered field, got %s", agg.Fn, field.Kind))
		}
	}
	return nil
}
