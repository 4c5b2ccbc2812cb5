package engine

import (
	"context"

	"github.com/roach88/quill/internal/query"
	"github.com/roach88/quill/internal/schema"
	"github.com/roach88/quill/internal/value"
)

// ParentCol is the synthetic column a many-to-many batch query adds so
// the engine can route each child row back to its parent record.
const ParentCol = "__parent"

// Storage is the collaborator the engine delegates to. Compile methods
// turn a plan into an opaque storage plan; Run methods execute one and
// return raw driver rows keyed by column name.
//
// The engine never inspects a storage plan. store.Store is the SQLite
// implementation; tests wrap it to count round trips.
type Storage interface {
	// Compile turns a plan into a storage plan for Run.
	Compile(plan query.Plan) (any, error)

	// CompileAggregate turns a plan's reduction requests into a storage
	// plan for RunAggregate.
	CompileAggregate(plan query.Plan) (any, error)

	// CompileJoin builds the batched child query for a many-to-many
	// relationship. The result rows carry the target's fields plus one
	// parentCol column holding the parent identifier.
	CompileJoin(link schema.Relationship, target query.Plan, parentIDs []value.Value, parentCol string) (any, error)

	// Run executes a storage plan. Each returned map holds one row's
	// raw driver values keyed by column name.
	Run(ctx context.Context, sp any) ([]map[string]any, error)

	// RunAggregate executes an aggregate storage plan and returns its
	// single row.
	RunAggregate(ctx context.Context, sp any) (map[string]any, error)
}
