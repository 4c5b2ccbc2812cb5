package query

import (
	"fmt"
	"strings"

	"github.com/roach88/quill/internal/schema"
)

// Direction orders ascending or descending.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Ordering is one (field, direction) pair of an ORDER BY clause.
type Ordering struct {
	Field     FieldRef
	Direction Direction
}

// AggregateFn identifies a reduction delegated to storage.
type AggregateFn string

const (
	AggCount AggregateFn = "count"
	AggSum   AggregateFn = "sum"
	AggAvg   AggregateFn = "avg"
	AggMin   AggregateFn = "min"
	AggMax   AggregateFn = "max"
)

// Aggregation is one named reduction request. Field is empty for a plain
// row count.
type Aggregation struct {
	Name  string
	Field string
	Fn    AggregateFn
}

// EagerLoad is one requested relationship load. Strategy is empty for the
// cardinality default (joined for to-one, batched otherwise). Sub is an
// optional narrowing sub-plan applied to the related records; nested
// eager-loads are expressed by the sub-plan's own eager-load requests.
type EagerLoad struct {
	Name     string
	Strategy schema.Strategy
	Sub      *Plan
}

// Joined reports whether the load runs as part of the base query via a
// relational join. Only sub-plan-free loads of to-one relationships join;
// a narrowing sub-plan always forces the batched path so its predicate,
// ordering and nested loads apply to the related records.
func (l EagerLoad) Joined(card schema.Cardinality) bool {
	if l.Sub != nil {
		return false
	}
	if l.Strategy == schema.StrategyBatched {
		return false
	}
	return card == schema.ToOne
}

const (
	// MaxEagerDepth bounds nested eager-load requests. Deeper nesting is
	// rejected at plan-build time.
	MaxEagerDepth = 4

	// MaxBatchIdentifiers bounds the identifiers placed in one batched
	// "parent id in {...}" predicate. Larger parent sets are chunked
	// into several queries by the engine.
	MaxBatchIdentifiers = 500

	// NoLimit marks an unbounded plan window.
	NoLimit = -1
)

// Plan is an immutable, deferred description of a query.
//
// Every transformation method returns a new Plan with the added clause;
// the receiver is never mutated, so plans are safe to share across
// goroutines without synchronization. Building, transforming or printing
// a plan never touches storage.
//
// Clauses validate eagerly against the schema registry: the first invalid
// clause is recorded on the returned plan and reported by Err. A plan
// carrying an error is rejected by the engine before any storage call.
type Plan struct {
	registry *schema.Registry
	relation string

	pred     Predicate
	ordering []Ordering
	offset   int
	limit    int
	eager    []EagerLoad
	aggs     []Aggregation

	err *PlanError
}

// NewPlan starts a plan over the named relation.
func NewPlan(registry *schema.Registry, relation string) Plan {
	p := Plan{registry: registry, relation: relation, limit: NoLimit}
	if _, ok := registry.Relation(relation); !ok {
		p.err = NewInvalidPlanError(relation, "unknown relation")
	}
	return p
}

// clone copies the plan, including its clause slices, so that appending
// to the copy never aliases the receiver's backing arrays.
func (p Plan) clone() Plan {
	out := p
	out.ordering = append([]Ordering(nil), p.ordering...)
	out.eager = append([]EagerLoad(nil), p.eager...)
	out.aggs = append([]Aggregation(nil), p.aggs...)
	return out
}

// fail returns a copy of the plan carrying the validation error, keeping
// the first error when several clauses are invalid.
func (p Plan) fail(err *PlanError) Plan {
	out := p.clone()
	if out.err == nil {
		out.err = err
	}
	return out
}

// Filter returns a new plan whose predicate additionally requires pred.
// Repeated Filter calls AND together.
func (p Plan) Filter(pred Predicate) Plan {
	if p.err == nil && p.registry != nil {
		if rel, ok := p.registry.Relation(p.relation); ok {
			if verr := validatePredicate(p.registry, rel, pred); verr != nil {
				return p.fail(verr)
			}
		}
	}
	out := p.clone()
	out.pred = conjoin(out.pred, pred)
	return out
}

// Exclude returns a new plan excluding rows matching pred. Equivalent to
// Filter(Not{pred}).
func (p Plan) Exclude(pred Predicate) Plan {
	return p.Filter(Not{Pred: pred})
}

// OrderBy returns a new plan with an additional ordering clause appended.
func (p Plan) OrderBy(field string, dir Direction) Plan {
	ref := Ref(field)
	if p.err == nil && p.registry != nil {
		if dir != Asc && dir != Desc {
			return p.fail(NewInvalidPlanError(p.relation, fmt.Sprintf("unknown ordering direction %q", dir)))
		}
		if rel, ok := p.registry.Relation(p.relation); ok {
			if _, _, verr := resolveFieldRef(p.registry, rel, ref); verr != nil {
				return p.fail(verr)
			}
		}
	}
	out := p.clone()
	out.ordering = append(out.ordering, Ordering{Field: ref, Direction: dir})
	return out
}

// Slice returns a new plan narrowed to count rows starting at offset.
//
// A second Slice is relative to the already-sliced window, composing like
// Python list slicing: Slice(10, 20).Slice(2, 5) yields rows 12..16 of the
// original ordering. Windows narrow monotonically; a slice can never widen
// the window it starts from.
func (p Plan) Slice(offset, count int) Plan {
	if p.err == nil && (offset < 0 || count < 0) {
		return p.fail(NewInvalidPlanError(p.relation, fmt.Sprintf("slice bounds must be non-negative (offset=%d, count=%d)", offset, count)))
	}
	out := p.clone()
	out.offset = p.offset + offset
	if p.limit == NoLimit {
		out.limit = count
		return out
	}
	remaining := p.limit - offset
	if remaining < 0 {
		remaining = 0
	}
	if count < remaining {
		out.limit = count
	} else {
		out.limit = remaining
	}
	return out
}

// WithRelated returns a new plan that eager-loads the named relationship
// using its cardinality's default strategy.
func (p Plan) WithRelated(name string) Plan {
	return p.withEager(EagerLoad{Name: name})
}

// WithRelatedPlan is WithRelated with a narrowing sub-plan applied to the
// related records (e.g. only active children). The sub-plan must target
// the relationship's target relation. Nested eager-loads are requested
// through the sub-plan's own WithRelated calls.
func (p Plan) WithRelatedPlan(name string, sub Plan) Plan {
	return p.withEager(EagerLoad{Name: name, Sub: &sub})
}

// WithRelatedStrategy is WithRelated with an explicit loading strategy.
// Forcing the joined strategy on a to-many relationship fails: the join
// would silently duplicate parent rows.
func (p Plan) WithRelatedStrategy(name string, strategy schema.Strategy) Plan {
	return p.withEager(EagerLoad{Name: name, Strategy: strategy})
}

func (p Plan) withEager(load EagerLoad) Plan {
	if p.err == nil && p.registry != nil {
		if rel, ok := p.registry.Relation(p.relation); ok {
			if verr := validateEagerLoad(p.registry, rel, load, 1); verr != nil {
				return p.fail(verr)
			}
		}
	}
	out := p.clone()
	// Re-requesting a relationship replaces the earlier request.
	for i, existing := range out.eager {
		if existing.Name == load.Name {
			out.eager[i] = load
			return out
		}
	}
	out.eager = append(out.eager, load)
	return out
}

// Aggregate returns a new plan with a named reduction request appended.
// Field is ignored for count; every other function reduces the named field.
func (p Plan) Aggregate(name string, fn AggregateFn, field string) Plan {
	agg := Aggregation{Name: name, Field: field, Fn: fn}
	if p.err == nil && p.registry != nil {
		if rel, ok := p.registry.Relation(p.relation); ok {
			if verr := validateAggregation(p.registry, rel, agg); verr != nil {
				return p.fail(verr)
			}
		}
	}
	out := p.clone()
	for i, existing := range out.aggs {
		if existing.Name == name {
			out.aggs[i] = agg
			return out
		}
	}
	out.aggs = append(out.aggs, agg)
	return out
}

// conjoin ANDs two predicates, flattening into an existing conjunction
// without mutating it.
func conjoin(a, b Predicate) Predicate {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if and, ok := a.(And); ok {
		preds := make([]Predicate, 0, len(and.Preds)+1)
		preds = append(preds, and.Preds...)
		preds = append(preds, b)
		return And{Preds: preds}
	}
	return And{Preds: []Predicate{a, b}}
}

// Err reports the first validation error recorded while building the plan.
func (p Plan) Err() error {
	if p.err != nil {
		return p.err
	}
	return nil
}

// Registry returns the schema registry the plan was built against.
func (p Plan) Registry() *schema.Registry { return p.registry }

// RelationName returns the name of the plan's source relation.
func (p Plan) RelationName() string { return p.relation }

// Relation resolves the plan's source relation.
func (p Plan) Relation() (*schema.Relation, bool) {
	if p.registry == nil {
		return nil, false
	}
	return p.registry.Relation(p.relation)
}

// Predicate returns the accumulated filter predicate (nil = match all).
func (p Plan) Predicate() Predicate { return p.pred }

// Orderings returns a copy of the ordering clauses.
func (p Plan) Orderings() []Ordering {
	return append([]Ordering(nil), p.ordering...)
}

// Offset returns the window offset.
func (p Plan) Offset() int { return p.offset }

// Limit returns the window size, or NoLimit when unbounded.
func (p Plan) Limit() int { return p.limit }

// EagerLoads returns a copy of the eager-load requests.
func (p Plan) EagerLoads() []EagerLoad {
	return append([]EagerLoad(nil), p.eager...)
}

// Aggregations returns a copy of the reduction requests.
func (p Plan) Aggregations() []Aggregation {
	return append([]Aggregation(nil), p.aggs...)
}

// WithoutEagerLoads returns a copy of the plan with no eager-load
// requests. The engine uses it to build the base query of a batched load.
func (p Plan) WithoutEagerLoads() Plan {
	out := p.clone()
	out.eager = nil
	return out
}

// String renders the plan for debugging. Formatting never executes the
// plan.
func (p Plan) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan(%s", p.relation)
	if p.pred != nil {
		fmt.Fprintf(&b, " WHERE %s", FormatPredicate(p.pred))
	}
	if len(p.ordering) > 0 {
		parts := make([]string, len(p.ordering))
		for i, o := range p.ordering {
			parts[i] = o.Field.String() + " " + string(o.Direction)
		}
		fmt.Fprintf(&b, " ORDER BY %s", strings.Join(parts, ", "))
	}
	if p.offset > 0 || p.limit != NoLimit {
		fmt.Fprintf(&b, " WINDOW offset=%d limit=%d", p.offset, p.limit)
	}
	if len(p.eager) > 0 {
		names := make([]string, len(p.eager))
		for i, e := range p.eager {
			names[i] = e.Name
		}
		fmt.Fprintf(&b, " WITH %s", strings.Join(names, ", "))
	}
	if len(p.aggs) > 0 {
		parts := make([]string, len(p.aggs))
		for i, a := range p.aggs {
			parts[i] = fmt.Sprintf("%s=%s(%s)", a.Name, a.Fn, a.Field)
		}
		fmt.Fprintf(&b, " AGGREGATE %s", strings.Join(parts, ", "))
	}
	b.WriteString(")")
	return b.String()
}
