package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quill/internal/value"
)

func studentRelation(t *testing.T) *Relation {
	t.Helper()
	r, err := NewRelation("Student", "students", "id",
		[]Field{
			{Name: "id", Kind: value.KindInt},
			{Name: "name", Kind: value.KindString},
			{Name: "age", Kind: value.KindInt},
			{Name: "grade", Kind: value.KindString},
		},
		[]Relationship{
			{Name: "enrollments", Cardinality: ToMany, Target: "Enrollment", ForeignKey: "student_id"},
		},
	)
	require.NoError(t, err)
	return r
}

func enrollmentRelation(t *testing.T) *Relation {
	t.Helper()
	r, err := NewRelation("Enrollment", "enrollments", "id",
		[]Field{
			{Name: "id", Kind: value.KindInt},
			{Name: "student_id", Kind: value.KindInt},
			{Name: "course", Kind: value.KindString},
		},
		nil,
	)
	require.NoError(t, err)
	return r
}

func TestNewRelation_FieldLookup(t *testing.T) {
	r := studentRelation(t)

	f, ok := r.Field("age")
	require.True(t, ok)
	assert.Equal(t, value.KindInt, f.Kind)

	_, ok = r.Field("salary")
	assert.False(t, ok)

	assert.Equal(t, []string{"id", "name", "age", "grade"}, r.FieldNames())
}

func TestNewRelation_DuplicateField(t *testing.T) {
	_, err := NewRelation("Bad", "bad", "id",
		[]Field{
			{Name: "id", Kind: value.KindInt},
			{Name: "id", Kind: value.KindString},
		}, nil)
	assert.ErrorContains(t, err, "duplicate field")
}

func TestNewRelation_PrimaryKeyMustBeField(t *testing.T) {
	_, err := NewRelation("Bad", "bad", "missing",
		[]Field{{Name: "id", Kind: value.KindInt}}, nil)
	assert.ErrorContains(t, err, "primary key")
}

func TestNewRelation_RelationshipValidation(t *testing.T) {
	// to-many without a foreign key
	_, err := NewRelation("Bad", "bad", "id",
		[]Field{{Name: "id", Kind: value.KindInt}},
		[]Relationship{{Name: "things", Cardinality: ToMany, Target: "Thing"}})
	assert.ErrorContains(t, err, "foreign key")

	// many-to-many without a join table
	_, err = NewRelation("Bad", "bad", "id",
		[]Field{{Name: "id", Kind: value.KindInt}},
		[]Relationship{{Name: "things", Cardinality: ManyToMany, Target: "Thing"}})
	assert.ErrorContains(t, err, "join table")
}

func TestCardinality_Strategies(t *testing.T) {
	assert.Equal(t, StrategyJoined, ToOne.DefaultStrategy())
	assert.Equal(t, StrategyBatched, ToMany.DefaultStrategy())
	assert.Equal(t, StrategyBatched, ManyToMany.DefaultStrategy())

	assert.True(t, ToOne.Allows(StrategyJoined))
	assert.True(t, ToOne.Allows(StrategyBatched))

	// Joining a to-many relationship would duplicate parent rows
	assert.False(t, ToMany.Allows(StrategyJoined))
	assert.False(t, ManyToMany.Allows(StrategyJoined))
}

func TestRegistry_SealValidatesTargets(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(studentRelation(t)))

	// Enrollment never registered - Seal must catch the dangling target
	err := registry.Seal()
	assert.ErrorContains(t, err, "unknown relation")
}

func TestRegistry_SealValidatesForeignKeys(t *testing.T) {
	registry := NewRegistry()
	bad, err := NewRelation("Student", "students", "id",
		[]Field{{Name: "id", Kind: value.KindInt}},
		[]Relationship{{Name: "enrollments", Cardinality: ToMany, Target: "Enrollment", ForeignKey: "nope"}})
	require.NoError(t, err)
	require.NoError(t, registry.Register(bad))
	require.NoError(t, registry.Register(enrollmentRelation(t)))

	err = registry.Seal()
	assert.ErrorContains(t, err, "foreign key")
}

func TestRegistry_Lifecycle(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(studentRelation(t)))
	require.NoError(t, registry.Register(enrollmentRelation(t)))
	require.NoError(t, registry.Seal())

	r, ok := registry.Relation("Student")
	require.True(t, ok)
	assert.Equal(t, "students", r.Table())

	// Sealed registry rejects further registration
	err := registry.Register(enrollmentRelation(t))
	assert.ErrorContains(t, err, "sealed")

	assert.Equal(t, []string{"Enrollment", "Student"}, registry.RelationNames())
}

func TestRegistry_DuplicateRelation(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(studentRelation(t)))
	err := registry.Register(studentRelation(t))
	assert.ErrorContains(t, err, "already registered")
}
