package querysql

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/quill/internal/query"
	"github.com/roach88/quill/internal/schema"
	"github.com/roach88/quill/internal/value"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	student, err := schema.NewRelation("Student", "students", "id",
		[]schema.Field{
			{Name: "id", Kind: value.KindInt},
			{Name: "name", Kind: value.KindString},
			{Name: "age", Kind: value.KindInt},
			{Name: "grade", Kind: value.KindString},
			{Name: "advisor_id", Kind: value.KindInt, Nullable: true},
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
		}, nil)
	require.NoError(t, err)

	teacher, err := schema.NewRelation("Teacher", "teachers", "id",
		[]schema.Field{
			{Name: "id", Kind: value.KindInt},
			{Name: "name", Kind: value.KindString},
			{Name: "subject", Kind: value.KindString},
		}, nil)
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

func TestCompile_FilterOrderSlice(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	plan := query.NewPlan(registry, "Student").
		Filter(query.Gte("age", value.Int(18))).
		OrderBy("name", query.Asc).
		Slice(5, 10)

	stmt, err := c.Compile(plan)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "filter_order_slice", []byte(stmt.SQL))
	assert.Equal(t, []any{int64(18), 10, 5}, stmt.Args)
}

func TestCompile_JoinedEagerLoad(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	plan := query.NewPlan(registry, "Student").WithRelated("advisor")

	stmt, err := c.Compile(plan)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "joined_eager_load", []byte(stmt.SQL))
	assert.Empty(t, stmt.Args)
}

func TestCompile_SkipsBatchedLoads(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	// Batched loads are the engine's concern; the base statement must not
	// join or project them.
	plan := query.NewPlan(registry, "Student").WithRelated("enrollments")

	stmt, err := c.Compile(plan)
	require.NoError(t, err)
	assert.NotContains(t, stmt.SQL, "JOIN")
	assert.NotContains(t, stmt.SQL, "enrollments")
}

func TestCompile_TraversalFilter(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	plan := query.NewPlan(registry, "Student").
		Filter(query.Eq("advisor.subject", value.String("Math")))

	stmt, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "LEFT JOIN teachers t1 ON t1.id = t0.advisor_id")
	assert.Contains(t, stmt.SQL, "t1.subject = ?")
	assert.Equal(t, []any{"Math"}, stmt.Args)
}

func TestCompile_TraversalJoinDeduplicated(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	// Filter and ordering share the advisor traversal - one join only.
	plan := query.NewPlan(registry, "Student").
		Filter(query.Eq("advisor.subject", value.String("Math"))).
		OrderBy("advisor.name", query.Asc)

	stmt, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Equal(t, 1, countOccurrences(stmt.SQL, "LEFT JOIN teachers"))
}

func countOccurrences(s, sub string) int {
	n := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			n++
		}
	}
	return n
}

func TestCompile_Operators(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	tests := []struct {
		name     string
		pred     query.Predicate
		wantSQL  string
		wantArgs []any
	}{
		{"eq", query.Eq("age", value.Int(18)), "t0.age = ?", []any{int64(18)}},
		{"ne", query.Neq("age", value.Int(18)), "t0.age != ?", []any{int64(18)}},
		{"lt", query.Lt("age", value.Int(18)), "t0.age < ?", []any{int64(18)}},
		{"lte", query.Lte("age", value.Int(18)), "t0.age <= ?", []any{int64(18)}},
		{"gt", query.Gt("age", value.Int(18)), "t0.age > ?", []any{int64(18)}},
		{"contains", query.Contains("name", "li"), `t0.name LIKE ? ESCAPE '\'`, []any{"%li%"}},
		{"startswith", query.StartsWith("name", "Al"), `t0.name LIKE ? ESCAPE '\'`, []any{"Al%"}},
		{"endswith", query.EndsWith("name", "ce"), `t0.name LIKE ? ESCAPE '\'`, []any{"%ce"}},
		{"in", query.In("age", value.Int(17), value.Int(18)), "t0.age IN (?, ?)", []any{int64(17), int64(18)}},
		{"range", query.InRange("age", value.Int(10), value.Int(20)), "t0.age BETWEEN ? AND ?", []any{int64(10), int64(20)}},
		{"isnull", query.IsNull("advisor_id"), "t0.advisor_id IS NULL", nil},
		{"field_ref", query.CmpRef("age", query.OpGreater, "id"), "t0.age > t0.id", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := query.NewPlan(registry, "Student").Filter(tt.pred)
			stmt, err := c.Compile(plan)
			require.NoError(t, err)
			assert.Contains(t, stmt.SQL, "WHERE "+tt.wantSQL)
			if tt.wantArgs == nil {
				assert.Empty(t, stmt.Args)
			} else {
				assert.Equal(t, tt.wantArgs, stmt.Args)
			}
		})
	}
}

func TestCompile_LikeEscaping(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	plan := query.NewPlan(registry, "Student").Filter(query.Contains("name", "50%_off"))
	stmt, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Equal(t, []any{`%50\%\_off%`}, stmt.Args)
}

func TestCompile_BooleanCombinators(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	plan := query.NewPlan(registry, "Student").Filter(query.Or{Preds: []query.Predicate{
		query.Eq("grade", value.String("A")),
		query.Not{Pred: query.Gte("age", value.Int(18))},
	}})

	stmt, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "WHERE (t0.grade = ? OR NOT (t0.age >= ?))")
	assert.Equal(t, []any{"A", int64(18)}, stmt.Args)
}

func TestCompile_EmptyInSet(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	plan := query.NewPlan(registry, "Student").Filter(query.In("age"))
	stmt, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "WHERE 1 = 0")
	assert.Empty(t, stmt.Args)
}

func TestCompile_WindowVariants(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	plan := query.NewPlan(registry, "Club").Slice(0, 7)
	stmt, err := c.Compile(plan)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "LIMIT ?")
	assert.NotContains(t, stmt.SQL, "OFFSET")
	assert.Equal(t, []any{7}, stmt.Args)
}

func TestCompile_InvalidPlanRejected(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	plan := query.NewPlan(registry, "Student").Filter(query.Eq("salary", value.Int(1)))
	_, err := c.Compile(plan)
	assert.ErrorContains(t, err, "invalid plan")
}

func TestCompileAggregate(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	plan := query.NewPlan(registry, "Student").
		Filter(query.Gte("age", value.Int(18))).
		Aggregate("n", query.AggCount, "").
		Aggregate("avgAge", query.AggAvg, "age")

	stmt, err := c.CompileAggregate(plan)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "aggregate", []byte(stmt.SQL))
	assert.Equal(t, []any{int64(18)}, stmt.Args)
}

func TestCompileAggregate_SumCoalesces(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	plan := query.NewPlan(registry, "Student").
		Aggregate("total", query.AggSum, "age")

	stmt, err := c.CompileAggregate(plan)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "COALESCE(SUM(t0.age), 0) AS total")
}

func TestCompileAggregate_Windowed(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	plan := query.NewPlan(registry, "Student").
		Slice(0, 10).
		Aggregate("n", query.AggCount, "")

	stmt, err := c.CompileAggregate(plan)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "SELECT COUNT(*) AS n FROM (SELECT")
	assert.Equal(t, []any{10}, stmt.Args)
}

func TestCompileAggregate_WindowedTraversal(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	// The traversal join must attach outside the window subquery, where
	// the sliced rows are re-aliased as t0.
	plan := query.NewPlan(registry, "Student").
		Slice(0, 2).
		Aggregate("m", query.AggMin, "advisor.name")

	stmt, err := c.CompileAggregate(plan)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "SELECT MIN(t1.name) AS m FROM (SELECT")
	assert.Contains(t, stmt.SQL, ") t0 LEFT JOIN teachers t1 ON t1.id = t0.advisor_id")
	assert.Equal(t, []any{2}, stmt.Args)
}

func TestCompileAggregate_WindowedPredicateTraversal(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	// A traversal in the predicate belongs to the subquery; the outer
	// query must not repeat its join.
	plan := query.NewPlan(registry, "Student").
		Filter(query.Eq("advisor.subject", value.String("Math"))).
		Slice(0, 5).
		Aggregate("n", query.AggCount, "")

	stmt, err := c.CompileAggregate(plan)
	require.NoError(t, err)
	assert.Equal(t, 1, countOccurrences(stmt.SQL, "LEFT JOIN teachers"))
}

func TestCompileAggregate_NoRequests(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	_, err := c.CompileAggregate(query.NewPlan(registry, "Student"))
	assert.ErrorContains(t, err, "no aggregation requests")
}

func TestCompileJoin_ManyToMany(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	student, _ := registry.Relation("Student")
	link, ok := student.Relationship("clubs")
	require.True(t, ok)

	target := query.NewPlan(registry, "Club")
	ids := []value.Value{value.Int(1), value.Int(2), value.Int(3)}

	stmt, err := c.CompileJoin(link, target, ids, "__parent")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "many_to_many", []byte(stmt.SQL))
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, stmt.Args)
}

func TestCompileJoin_NarrowingSubPlan(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	student, _ := registry.Relation("Student")
	link, _ := student.Relationship("clubs")

	target := query.NewPlan(registry, "Club").Filter(query.StartsWith("name", "Chess"))
	stmt, err := c.CompileJoin(link, target, []value.Value{value.Int(1)}, "__parent")
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "AND (t0.name LIKE ?")
	assert.Equal(t, []any{int64(1), "Chess%"}, stmt.Args)
}

func TestCompileJoin_RejectsNonManyToMany(t *testing.T) {
	registry := testRegistry(t)
	c := NewCompiler(registry)

	student, _ := registry.Relation("Student")
	link, _ := student.Relationship("advisor")

	_, err := c.CompileJoin(link, query.NewPlan(registry, "Teacher"), nil, "__parent")
	assert.ErrorContains(t, err, "many-to-many")
}
