package hooks_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quill/internal/cache"
	"github.com/roach88/quill/internal/hooks"
)

func TestNotify_ScopedThenGlobal(t *testing.T) {
	r := hooks.NewRegistry()
	var order []string

	r.Register("Student", func(ctx context.Context, m hooks.Mutation) {
		order = append(order, "student-1")
	})
	r.Register("Student", func(ctx context.Context, m hooks.Mutation) {
		order = append(order, "student-2")
	})
	r.Register("Teacher", func(ctx context.Context, m hooks.Mutation) {
		order = append(order, "teacher")
	})
	r.RegisterAll(func(ctx context.Context, m hooks.Mutation) {
		order = append(order, "global")
	})

	r.Notify(context.Background(), hooks.Mutation{
		Event:    hooks.Created,
		Relation: "Student",
		ID:       int64(7),
		Fields:   map[string]any{"name": "Dana"},
	})

	assert.Equal(t, []string{"student-1", "student-2", "global"}, order)
}

func TestNotify_CarriesMutation(t *testing.T) {
	r := hooks.NewRegistry()
	var got hooks.Mutation

	r.Register("Student", func(ctx context.Context, m hooks.Mutation) {
		got = m
	})
	r.Notify(context.Background(), hooks.Mutation{
		Event:    hooks.Deleted,
		Relation: "Student",
		ID:       int64(3),
	})

	assert.Equal(t, hooks.Deleted, got.Event)
	assert.Equal(t, int64(3), got.ID)
	assert.Nil(t, got.Fields)
}

// The cache subscribes to mutations and rotates the relation's key
// scope, so cached query results for a written relation stop being
// served.
func TestNotify_DrivesCacheInvalidation(t *testing.T) {
	r := hooks.NewRegistry()
	c := cache.New()
	defer c.Close()

	r.RegisterAll(func(ctx context.Context, m hooks.Mutation) {
		c.Invalidate(m.Relation)
	})

	key := c.Key("Student", "grade=A")
	c.Set(key, "cached rows", time.Minute)

	v, ok := c.Get(c.Key("Student", "grade=A"))
	require.True(t, ok)
	assert.Equal(t, "cached rows", v)

	r.Notify(context.Background(), hooks.Mutation{
		Event:    hooks.Updated,
		Relation: "Student",
		ID:       int64(1),
	})

	_, ok = c.Get(c.Key("Student", "grade=A"))
	assert.False(t, ok, "a write must rotate the relation's cached keys")

	_, ok = c.Get(c.Key("Teacher", "all"))
	assert.False(t, ok)
	assert.Equal(t, uint64(0), c.Version("Teacher"), "unrelated scopes keep their version")
}
