package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/quill/internal/query"
	"github.com/roach88/quill/internal/schema"
	"github.com/roach88/quill/internal/value"
)

// Engine executes query plans against a Storage collaborator.
//
// An Engine is safe for concurrent use: it holds no per-execution state.
// Each terminal operation gets a fresh execution id for log correlation.
type Engine struct {
	storage  Storage
	registry *schema.Registry
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's structured logger. Without it the engine
// logs nowhere.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine over the given storage and sealed registry.
func New(storage Storage, registry *schema.Registry, opts ...Option) *Engine {
	e := &Engine{
		storage:  storage,
		registry: registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the schema registry the engine validates plans against.
func (e *Engine) Registry() *schema.Registry {
	return e.registry
}

// NewQuery starts a plan over the named relation. The plan is inert
// until passed to a terminal operation.
func (e *Engine) NewQuery(relation string) query.Plan {
	return query.NewPlan(e.registry, relation)
}

// Execute wraps a plan in a lazy ResultSet. No storage work happens
// until the ResultSet is forced.
func (e *Engine) Execute(plan query.Plan) *ResultSet {
	return &ResultSet{engine: e, plan: plan}
}

// ExecuteOne runs the plan expecting exactly one match.
//
// Returns NewNotFoundError when nothing matches and
// NewMultipleResultsError when more than one row does. The probe narrows
// the plan's window to two rows, so over-matching is detected without
// pulling the full result.
func (e *Engine) ExecuteOne(ctx context.Context, plan query.Plan) (*Record, error) {
	records, err := e.run(ctx, plan.Slice(0, 2))
	if err != nil {
		return nil, err
	}
	switch len(records) {
	case 0:
		return nil, NewNotFoundError(plan.RelationName())
	case 1:
		return records[0], nil
	default:
		return nil, NewMultipleResultsError(plan.RelationName())
	}
}

// Aggregate runs the plan's reductions in storage and returns the named
// results.
//
// A plan whose predicate can never match short-circuits without a
// storage call: count and sum yield zero, avg/min/max yield null. The
// same empty-set semantics come back from storage for predicates that
// merely happen to match nothing, because the SQL layer coalesces count
// and sum.
func (e *Engine) Aggregate(ctx context.Context, plan query.Plan) (map[string]value.Value, error) {
	if err := plan.Err(); err != nil {
		return nil, err
	}
	aggs := plan.Aggregations()
	if len(aggs) == 0 {
		return nil, query.NewInvalidPlanError(plan.RelationName(), "plan has no aggregations")
	}
	rel, ok := e.registry.Relation(plan.RelationName())
	if !ok {
		return nil, query.NewInvalidPlanError(plan.RelationName(), "unknown relation")
	}

	execID := uuid.NewString()
	if p := plan.Predicate(); p != nil && query.NeverMatches(p) {
		e.logger.Debug("aggregate short-circuited",
			slog.String("execution", execID),
			slog.String("relation", plan.RelationName()))
		return emptyAggregates(e.registry, rel, aggs), nil
	}

	sp, err := e.storage.CompileAggregate(plan)
	if err != nil {
		return nil, newStorageError(plan.RelationName(), err)
	}

	start := time.Now()
	row, err := e.storage.RunAggregate(ctx, sp)
	if err != nil {
		return nil, newStorageError(plan.RelationName(), err)
	}
	e.logger.Debug("aggregate executed",
		slog.String("execution", execID),
		slog.String("relation", plan.RelationName()),
		slog.Int("reductions", len(aggs)),
		slog.Duration("elapsed", time.Since(start)))

	out := make(map[string]value.Value, len(aggs))
	for _, agg := range aggs {
		raw, ok := row[agg.Name]
		if !ok {
			return nil, newStorageError(plan.RelationName(),
				fmt.Errorf("aggregate row missing column %s", agg.Name))
		}
		v, err := value.FromDriver(raw, aggregateKind(e.registry, rel, agg))
		if err != nil {
			return nil, newStorageError(plan.RelationName(), err)
		}
		out[agg.Name] = v
	}
	return out, nil
}

// emptyAggregates is the result of reducing zero rows: count and sum are
// zero, avg/min/max are null.
func emptyAggregates(registry *schema.Registry, rel *schema.Relation, aggs []query.Aggregation) map[string]value.Value {
	out := make(map[string]value.Value, len(aggs))
	for _, agg := range aggs {
		switch agg.Fn {
		case query.AggCount:
			out[agg.Name] = value.Int(0)
		case query.AggSum:
			if f, err := query.ResolveField(registry, rel, query.Ref(agg.Field)); err == nil && f.Kind == value.KindFloat {
				out[agg.Name] = value.Float(0)
			} else {
				out[agg.Name] = value.Int(0)
			}
		default:
			out[agg.Name] = value.Null{}
		}
	}
	return out
}

// aggregateKind picks the value kind an aggregate column converts
// through: counts are integers, averages are floats, the rest follow
// the reduced field.
func aggregateKind(registry *schema.Registry, rel *schema.Relation, agg query.Aggregation) value.Kind {
	switch agg.Fn {
	case query.AggCount:
		return value.KindInt
	case query.AggAvg:
		return value.KindFloat
	default:
		if f, err := query.ResolveField(registry, rel, query.Ref(agg.Field)); err == nil {
			return f.Kind
		}
		return value.KindFloat
	}
}

// run is the single execution path every terminal operation funnels
// through: validate, short-circuit, compile, run, hydrate, eager-load.
func (e *Engine) run(ctx context.Context, plan query.Plan) ([]*Record, error) {
	if err := plan.Err(); err != nil {
		return nil, err
	}
	rel, ok := e.registry.Relation(plan.RelationName())
	if !ok {
		return nil, query.NewInvalidPlanError(plan.RelationName(), "unknown relation")
	}

	execID := uuid.NewString()
	if p := plan.Predicate(); p != nil && query.NeverMatches(p) {
		e.logger.Debug("query short-circuited",
			slog.String("execution", execID),
			slog.String("relation", plan.RelationName()))
		return []*Record{}, nil
	}

	sp, err := e.storage.Compile(plan)
	if err != nil {
		return nil, newStorageError(plan.RelationName(), err)
	}

	start := time.Now()
	rows, err := e.storage.Run(ctx, sp)
	if err != nil {
		return nil, newStorageError(plan.RelationName(), err)
	}

	records := make([]*Record, 0, len(rows))
	for _, row := range rows {
		rec, err := newRecord(rel, row)
		if err != nil {
			return nil, newStorageError(plan.RelationName(), err)
		}
		records = append(records, rec)
	}

	if err := e.hydrateJoined(plan, rel, rows, records); err != nil {
		return nil, err
	}
	if err := e.loadBatched(ctx, plan, rel, records); err != nil {
		return nil, err
	}

	e.logger.Debug("query executed",
		slog.String("execution", execID),
		slog.String("relation", plan.RelationName()),
		slog.Int("rows", len(records)),
		slog.Duration("elapsed", time.Since(start)))
	return records, nil
}
