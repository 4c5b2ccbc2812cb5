package query

import (
	"fmt"
	"strings"

	"github.com/roach88/quill/internal/value"
)

// Operator identifies a leaf comparison.
type Operator string

const (
	OpEquals         Operator = "eq"
	OpNotEquals      Operator = "ne"
	OpGreater        Operator = "gt"
	OpGreaterOrEqual Operator = "gte"
	OpLess           Operator = "lt"
	OpLessOrEqual    Operator = "lte"
	OpContains       Operator = "contains"
	OpStartsWith     Operator = "startswith"
	OpEndsWith       Operator = "endswith"
	OpIn             Operator = "in"
	OpRange          Operator = "range"
	OpIsNull         Operator = "isnull"
)

// Predicate represents a boolean filter expression.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers.
//
// Predicate types:
//   - Cmp: leaf comparison (field, operator, literal or field reference)
//   - And: all sub-predicates must hold
//   - Or:  at least one sub-predicate must hold
//   - Not: negation
//
// A Predicate is pure data: building or combining predicates never touches
// storage. Only the execution engine interprets them, by handing the tree
// to the storage collaborator's compiler.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Cmp is a leaf comparison.
//
// Exactly one right-hand operand form is populated, depending on Op:
//   - Value for eq/ne/gt/gte/lt/lte/contains/startswith/endswith
//   - Ref for field-to-field comparisons with the same operators
//   - Set for in
//   - Lo/Hi for range
//   - none for isnull
type Cmp struct {
	Field FieldRef
	Op    Operator

	Value value.Value
	Ref   *FieldRef
	Set   []value.Value
	Lo    value.Value
	Hi    value.Value
}

func (Cmp) predicateNode() {}

// And holds when every sub-predicate holds. Empty is vacuously true.
type And struct {
	Preds []Predicate
}

func (And) predicateNode() {}

// Or holds when at least one sub-predicate holds. Empty is vacuously false.
type Or struct {
	Preds []Predicate
}

func (Or) predicateNode() {}

// Not negates its sub-predicate.
type Not struct {
	Pred Predicate
}

func (Not) predicateNode() {}

// Leaf constructors. Each returns a fresh immutable predicate value.

// Eq builds field = literal.
func Eq(field string, v value.Value) Predicate {
	return Cmp{Field: Ref(field), Op: OpEquals, Value: v}
}

// Neq builds field != literal.
func Neq(field string, v value.Value) Predicate {
	return Cmp{Field: Ref(field), Op: OpNotEquals, Value: v}
}

// Gt builds field > literal.
func Gt(field string, v value.Value) Predicate {
	return Cmp{Field: Ref(field), Op: OpGreater, Value: v}
}

// Gte builds field >= literal.
func Gte(field string, v value.Value) Predicate {
	return Cmp{Field: Ref(field), Op: OpGreaterOrEqual, Value: v}
}

// Lt builds field < literal.
func Lt(field string, v value.Value) Predicate {
	return Cmp{Field: Ref(field), Op: OpLess, Value: v}
}

// Lte builds field <= literal.
func Lte(field string, v value.Value) Predicate {
	return Cmp{Field: Ref(field), Op: OpLessOrEqual, Value: v}
}

// Contains builds a substring match on a text field.
func Contains(field, substr string) Predicate {
	return Cmp{Field: Ref(field), Op: OpContains, Value: value.String(substr)}
}

// StartsWith builds a prefix match on a text field.
func StartsWith(field, prefix string) Predicate {
	return Cmp{Field: Ref(field), Op: OpStartsWith, Value: value.String(prefix)}
}

// EndsWith builds a suffix match on a text field.
func EndsWith(field, suffix string) Predicate {
	return Cmp{Field: Ref(field), Op: OpEndsWith, Value: value.String(suffix)}
}

// In builds a set-membership test. An empty set never matches any row;
// the engine short-circuits it without a storage call.
func In(field string, vs ...value.Value) Predicate {
	set := make([]value.Value, len(vs))
	copy(set, vs)
	return Cmp{Field: Ref(field), Op: OpIn, Set: set}
}

// InRange builds lo <= field <= hi.
func InRange(field string, lo, hi value.Value) Predicate {
	return Cmp{Field: Ref(field), Op: OpRange, Lo: lo, Hi: hi}
}

// IsNull tests a field for absence. This is the only operator valid
// against a null value.
func IsNull(field string) Predicate {
	return Cmp{Field: Ref(field), Op: OpIsNull}
}

// CmpRef builds a field-to-field comparison, e.g. current score greater
// than previous score. The right-hand reference is resolved against the
// same record as the left-hand field.
func CmpRef(field string, op Operator, other string) Predicate {
	ref := Ref(other)
	return Cmp{Field: Ref(field), Op: op, Ref: &ref}
}

// NeverMatches reports whether a predicate can be statically shown to
// match no row at all. The only base case is in-set against an empty set;
// the property propagates through And and Or. Used by the engine to
// short-circuit execution without a storage call.
func NeverMatches(p Predicate) bool {
	switch pred := p.(type) {
	case Cmp:
		return pred.Op == OpIn && len(pred.Set) == 0
	case *Cmp:
		return pred.Op == OpIn && len(pred.Set) == 0
	case And:
		for _, sub := range pred.Preds {
			if NeverMatches(sub) {
				return true
			}
		}
		return false
	case *And:
		return NeverMatches(*pred)
	case Or:
		if len(pred.Preds) == 0 {
			return false
		}
		for _, sub := range pred.Preds {
			if !NeverMatches(sub) {
				return false
			}
		}
		return true
	case *Or:
		return NeverMatches(*pred)
	default:
		// Not(...) is never statically unsatisfiable here: Not of an
		// empty in-set matches everything.
		return false
	}
}

// FormatPredicate renders a predicate for debug output. Formatting a
// predicate never executes anything.
func FormatPredicate(p Predicate) string {
	switch pred := p.(type) {
	case nil:
		return "true"
	case Cmp:
		return formatCmp(pred)
	case *Cmp:
		return formatCmp(*pred)
	case And:
		return formatJunction("AND", pred.Preds)
	case *And:
		return formatJunction("AND", pred.Preds)
	case Or:
		return formatJunction("OR", pred.Preds)
	case *Or:
		return formatJunction("OR", pred.Preds)
	case Not:
		return "NOT (" + FormatPredicate(pred.Pred) + ")"
	case *Not:
		return "NOT (" + FormatPredicate(pred.Pred) + ")"
	default:
		return fmt.Sprintf("<%T>", p)
	}
}

func formatCmp(c Cmp) string {
	switch c.Op {
	case OpIsNull:
		return c.Field.String() + " IS NULL"
	case OpIn:
		parts := make([]string, len(c.Set))
		for i, v := range c.Set {
			parts[i] = value.Format(v)
		}
		return fmt.Sprintf("%s IN {%s}", c.Field, strings.Join(parts, ", "))
	case OpRange:
		return fmt.Sprintf("%s BETWEEN %s AND %s", c.Field, value.Format(c.Lo), value.Format(c.Hi))
	default:
		rhs := ""
		if c.Ref != nil {
			rhs = c.Ref.String()
		} else {
			rhs = value.Format(c.Value)
		}
		return fmt.Sprintf("%s %s %s", c.Field, c.Op, rhs)
	}
}

func formatJunction(op string, preds []Predicate) string {
	if len(preds) == 0 {
		if op == "AND" {
			return "true"
		}
		return "false"
	}
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = FormatPredicate(p)
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")"
}
