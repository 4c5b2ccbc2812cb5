// Package hooks delivers mutation notifications. Components that must
// react to writes (the result cache, audit logging) register callbacks
// for a relation; writers publish one Mutation per affected record.
package hooks

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Event categorizes a mutation.
type Event string

const (
	// Created fires after a new record is inserted.
	Created Event = "created"

	// Updated fires after an existing record's fields change.
	Updated Event = "updated"

	// Deleted fires after a record is removed.
	Deleted Event = "deleted"
)

// Mutation describes one write to one record.
type Mutation struct {
	// Event is the mutation category.
	Event Event

	// Relation names the affected relation.
	Relation string

	// ID is the affected record's primary key, as a driver value.
	ID any

	// Fields holds the written columns for created/updated mutations.
	// Nil for deletes.
	Fields map[string]any
}

// Callback handles one mutation. Callbacks run synchronously on the
// writer's goroutine, in registration order; a slow callback slows the
// write. Callbacks must not publish further mutations to the same
// registry.
type Callback func(ctx context.Context, m Mutation)

// Registry fans mutations out to registered callbacks. Safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byRel  map[string][]Callback
	global []Callback
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byRel:  make(map[string][]Callback),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// Register subscribes a callback to one relation's mutations.
func (r *Registry) Register(relation string, cb Callback) {
	r.mu.Lock()
	r.byRel[relation] = append(r.byRel[relation], cb)
	r.mu.Unlock()
}

// RegisterAll subscribes a callback to every relation's mutations.
// Global callbacks run after the relation's own, in registration order.
func (r *Registry) RegisterAll(cb Callback) {
	r.mu.Lock()
	r.global = append(r.global, cb)
	r.mu.Unlock()
}

// Notify publishes one mutation to the relation's callbacks, then the
// global ones.
func (r *Registry) Notify(ctx context.Context, m Mutation) {
	r.mu.RLock()
	scoped := r.byRel[m.Relation]
	global := r.global
	r.mu.RUnlock()

	r.logger.Debug("mutation",
		slog.String("event", string(m.Event)),
		slog.String("relation", m.Relation),
		slog.Any("id", m.ID))

	for _, cb := range scoped {
		cb(ctx, m)
	}
	for _, cb := range global {
		cb(ctx, m)
	}
}
