// Package testutil provides the shared school-portal fixture used across
// engine, store and cli tests: a sealed schema registry and a seeded
// in-memory SQLite store.
package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/quill/internal/schema"
	"github.com/roach88/quill/internal/store"
	"github.com/roach88/quill/internal/value"
)

// PortalRegistry builds the school-portal schema:
//
//	Student ──to-many──▶ Enrollment
//	Student ──to-one───▶ Teacher (advisor)
//	Student ──many-to-many──▶ Club (via memberships)
//	Teacher ──to-many──▶ Student (advisees)
func PortalRegistry(t testing.TB) *schema.Registry {
	t.Helper()

	student, err := schema.NewRelation("Student", "students", "id",
		[]schema.Field{
			{Name: "id", Kind: value.KindInt},
			{Name: "name", Kind: value.KindString},
			{Name: "age", Kind: value.KindInt},
			{Name: "grade", Kind: value.KindString},
			{Name: "advisor_id", Kind: value.KindInt, Nullable: true},
			{Name: "score", Kind: value.KindFloat},
			{Name: "previous_score", Kind: value.KindFloat},
		},
		[]schema.Relationship{
			{Name: "enrollments", Cardinality: schema.ToMany, Target: "Enrollment", ForeignKey: "student_id"},
			{Name: "advisor", Cardinality: schema.ToOne, Target: "Teacher", ForeignKey: "advisor_id"},
			{Name: "clubs", Cardinality: schema.ManyToMany, Target: "Club", JoinTable: "memberships", SourceKey: "student_id", TargetKey: "club_id"},
		})
	require.NoError(t, err)

	enrollment, err := schema.NewRelation("Enrollment", "enrollments", "id",
		[]schema.Field{
			{Name: "id", Kind: value.KindInt},
			{Name: "student_id", Kind: value.KindInt},
			{Name: "course", Kind: value.KindString},
			{Name: "active", Kind: value.KindBool},
		}, nil)
	require.NoError(t, err)

	teacher, err := schema.NewRelation("Teacher", "teachers", "id",
		[]schema.Field{
			{Name: "id", Kind: value.KindInt},
			{Name: "name", Kind: value.KindString},
			{Name: "subject", Kind: value.KindString},
		},
		[]schema.Relationship{
			{Name: "advisees", Cardinality: schema.ToMany, Target: "Student", ForeignKey: "advisor_id"},
		})
	require.NoError(t, err)

	club, err := schema.NewRelation("Club", "clubs", "id",
		[]schema.Field{
			{Name: "id", Kind: value.KindInt},
			{Name: "name", Kind: value.KindString},
		}, nil)
	require.NoError(t, err)

	registry := schema.NewRegistry()
	require.NoError(t, registry.Register(student))
	require.NoError(t, registry.Register(enrollment))
	require.NoError(t, registry.Register(teacher))
	require.NoError(t, registry.Register(club))
	require.NoError(t, registry.Seal())
	return registry
}

// OpenPortal opens an in-memory store with the portal tables created.
// The store closes with the test.
func OpenPortal(t testing.TB) (*store.Store, *schema.Registry) {
	t.Helper()

	registry := PortalRegistry(t)
	s, err := store.OpenInMemory(registry)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.EnsureSchema(context.Background(), registry))
	return s, registry
}

// SeedPortal loads the standard fixture data set:
//
//	2 teachers, 3 students (one without an advisor),
//	5 enrollments, 2 clubs, 3 memberships.
func SeedPortal(t testing.TB, s *store.Store) {
	t.Helper()
	ctx := context.Background()

	insert := func(table string, row map[string]any) {
		_, err := s.Insert(ctx, table, row)
		require.NoError(t, err)
	}

	insert("teachers", map[string]any{"id": 1, "name": "Ada Lovelace", "subject": "Math"})
	insert("teachers", map[string]any{"id": 2, "name": "Alan Turing", "subject": "Science"})

	insert("students", map[string]any{"id": 1, "name": "Alice", "age": 20, "grade": "A", "advisor_id": 1, "score": 91.5, "previous_score": 88.0})
	insert("students", map[string]any{"id": 2, "name": "Bob", "age": 17, "grade": "B", "advisor_id": 1, "score": 75.0, "previous_score": 80.0})
	insert("students", map[string]any{"id": 3, "name": "Carol", "age": 22, "grade": "C", "advisor_id": nil, "score": 60.0, "previous_score": 55.0})

	insert("enrollments", map[string]any{"id": 1, "student_id": 1, "course": "Algebra", "active": 1})
	insert("enrollments", map[string]any{"id": 2, "student_id": 1, "course": "Biology", "active": 0})
	insert("enrollments", map[string]any{"id": 3, "student_id": 2, "course": "Algebra", "active": 1})
	insert("enrollments", map[string]any{"id": 4, "student_id": 3, "course": "Chemistry", "active": 1})
	insert("enrollments", map[string]any{"id": 5, "student_id": 3, "course": "History", "active": 1})

	insert("clubs", map[string]any{"id": 1, "name": "Chess Club"})
	insert("clubs", map[string]any{"id": 2, "name": "Robotics"})

	insert("memberships", map[string]any{"student_id": 1, "club_id": 1})
	insert("memberships", map[string]any{"student_id": 1, "club_id": 2})
	insert("memberships", map[string]any{"student_id": 2, "club_id": 1})
}
