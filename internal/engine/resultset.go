package engine

import (
	"context"

	"github.com/roach88/quill/internal/query"
	"github.com/roach88/quill/internal/value"
)

// ResultSet is a lazy handle over a plan's results.
//
// Building a ResultSet does no storage work. The first forcing operation
// (All, Each, or an iteration-backed Count) materializes the records and
// caches them; later calls reuse the cache, including a cached error.
//
// Count and Exists on an unforced ResultSet delegate to storage instead
// of materializing: Count compiles to a storage-side reduction, Exists
// probes with a one-row window. Once the set is materialized both answer
// from the cache.
//
// A ResultSet is not safe for concurrent use.
type ResultSet struct {
	engine *Engine
	plan   query.Plan

	forced  bool
	records []*Record
	err     error
}

// Plan returns the plan this result set executes.
func (rs *ResultSet) Plan() query.Plan {
	return rs.plan
}

// All materializes and returns every record.
func (rs *ResultSet) All(ctx context.Context) ([]*Record, error) {
	rs.force(ctx)
	return rs.records, rs.err
}

// Each materializes the set and calls fn for each record in order.
// Iteration stops at the first error fn returns.
func (rs *ResultSet) Each(ctx context.Context, fn func(*Record) error) error {
	rs.force(ctx)
	if rs.err != nil {
		return rs.err
	}
	for _, rec := range rs.records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of matching records. Unforced sets count in
// storage without transferring rows.
func (rs *ResultSet) Count(ctx context.Context) (int, error) {
	if rs.forced {
		if rs.err != nil {
			return 0, rs.err
		}
		return len(rs.records), nil
	}

	plan := rs.plan.WithoutEagerLoads().Aggregate("n", query.AggCount, "")
	out, err := rs.engine.Aggregate(ctx, plan)
	if err != nil {
		return 0, err
	}
	n, ok := out["n"].(value.Int)
	if !ok {
		return 0, newStorageError(rs.plan.RelationName(), errNonIntegerCount)
	}
	return int(n), nil
}

// Exists reports whether at least one record matches. Unforced sets
// probe storage with a one-row window.
func (rs *ResultSet) Exists(ctx context.Context) (bool, error) {
	if rs.forced {
		if rs.err != nil {
			return false, rs.err
		}
		return len(rs.records) > 0, nil
	}

	probe := rs.engine.Execute(rs.plan.WithoutEagerLoads().Slice(0, 1))
	records, err := probe.All(ctx)
	if err != nil {
		return false, err
	}
	return len(records) > 0, nil
}

func (rs *ResultSet) force(ctx context.Context) {
	if rs.forced {
		return
	}
	rs.forced = true
	rs.records, rs.err = rs.engine.run(ctx, rs.plan)
}
