package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quill/internal/query"
	"github.com/roach88/quill/internal/testutil"
	"github.com/roach88/quill/internal/value"
)

func TestEnsureSchema_Idempotent(t *testing.T) {
	s, registry := testutil.OpenPortal(t)

	// Second application is a no-op
	require.NoError(t, s.EnsureSchema(context.Background(), registry))
}

func TestRun_CompiledPlan(t *testing.T) {
	s, registry := testutil.OpenPortal(t)
	testutil.SeedPortal(t, s)

	plan := query.NewPlan(registry, "Student").
		Filter(query.Gte("age", value.Int(18))).
		OrderBy("age", query.Asc)

	sp, err := s.Compile(plan)
	require.NoError(t, err)

	rows, err := s.Run(context.Background(), sp)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// TEXT columns scan into string when the destination is any.
	name, ok := rows[0]["name"].(string)
	require.True(t, ok, "name should scan as string, got %T", rows[0]["name"])
	assert.Equal(t, "Alice", name)
	assert.Equal(t, int64(20), rows[0]["age"])
	assert.Equal(t, int64(22), rows[1]["age"])
}

func TestRun_RejectsForeignPlanType(t *testing.T) {
	s, _ := testutil.OpenPortal(t)

	_, err := s.Run(context.Background(), "not a statement")
	assert.ErrorContains(t, err, "unexpected storage plan type")
}

func TestRun_ContextCancelled(t *testing.T) {
	s, registry := testutil.OpenPortal(t)
	testutil.SeedPortal(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sp, err := s.Compile(query.NewPlan(registry, "Student"))
	require.NoError(t, err)

	_, err = s.Run(ctx, sp)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunAggregate(t *testing.T) {
	s, registry := testutil.OpenPortal(t)
	testutil.SeedPortal(t, s)

	plan := query.NewPlan(registry, "Student").
		Aggregate("n", query.AggCount, "").
		Aggregate("maxAge", query.AggMax, "age")

	sp, err := s.CompileAggregate(plan)
	require.NoError(t, err)

	row, err := s.RunAggregate(context.Background(), sp)
	require.NoError(t, err)
	assert.Equal(t, int64(3), row["n"])
	assert.Equal(t, int64(22), row["maxAge"])
}

func TestInsertUpdateDelete(t *testing.T) {
	s, registry := testutil.OpenPortal(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, "clubs", map[string]any{"id": 9, "name": "Debate"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)

	n, err := s.Update(ctx, "clubs", "id", 9, map[string]any{"name": "Debate Society"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	sp, err := s.Compile(query.NewPlan(registry, "Club").Filter(query.Eq("id", value.Int(9))))
	require.NoError(t, err)
	rows, err := s.Run(ctx, sp)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	name, ok := rows[0]["name"].(string)
	require.True(t, ok, "name should scan as string, got %T", rows[0]["name"])
	assert.Equal(t, "Debate Society", name)

	n, err = s.Delete(ctx, "clubs", "id", 9)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err = s.Run(ctx, sp)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
