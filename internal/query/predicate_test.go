package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/quill/internal/value"
)

func TestLeafConstructors(t *testing.T) {
	p := Eq("age", value.Int(18))
	cmp, ok := p.(Cmp)
	assert.True(t, ok)
	assert.Equal(t, OpEquals, cmp.Op)
	assert.Equal(t, "age", cmp.Field.Name)
	assert.Equal(t, value.Int(18), cmp.Value)

	p = IsNull("advisor_id")
	cmp = p.(Cmp)
	assert.Equal(t, OpIsNull, cmp.Op)
	assert.Nil(t, cmp.Value)

	p = InRange("age", value.Int(10), value.Int(20))
	cmp = p.(Cmp)
	assert.Equal(t, OpRange, cmp.Op)
	assert.Equal(t, value.Int(10), cmp.Lo)
	assert.Equal(t, value.Int(20), cmp.Hi)
}

func TestCmpRef(t *testing.T) {
	p := CmpRef("current_score", OpGreater, "previous_score")
	cmp := p.(Cmp)
	assert.Equal(t, OpGreater, cmp.Op)
	assert.NotNil(t, cmp.Ref)
	assert.Equal(t, "previous_score", cmp.Ref.Name)
}

func TestIn_CopiesSet(t *testing.T) {
	vs := []value.Value{value.Int(1), value.Int(2)}
	p := In("id", vs...)
	vs[0] = value.Int(99)

	cmp := p.(Cmp)
	assert.Equal(t, value.Int(1), cmp.Set[0])
}

func TestPredicate_SealedInterface(t *testing.T) {
	var p Predicate = And{Preds: []Predicate{
		Eq("a", value.Int(1)),
		Or{Preds: []Predicate{Eq("b", value.Int(2))}},
		Not{Pred: Eq("c", value.Int(3))},
	}}

	switch p.(type) {
	case And:
		// Expected
	case Or, Not, Cmp:
		t.Fatal("unexpected type")
	}
}

func TestNeverMatches(t *testing.T) {
	empty := In("id")
	nonEmpty := In("id", value.Int(1))

	assert.True(t, NeverMatches(empty))
	assert.False(t, NeverMatches(nonEmpty))

	// Propagates through AND: one unsatisfiable conjunct poisons the tree
	assert.True(t, NeverMatches(And{Preds: []Predicate{Eq("a", value.Int(1)), empty}}))
	assert.False(t, NeverMatches(And{Preds: []Predicate{Eq("a", value.Int(1)), nonEmpty}}))

	// OR requires every branch to be unsatisfiable
	assert.True(t, NeverMatches(Or{Preds: []Predicate{empty, empty}}))
	assert.False(t, NeverMatches(Or{Preds: []Predicate{empty, nonEmpty}}))

	// NOT of an empty in-set matches everything
	assert.False(t, NeverMatches(Not{Pred: empty}))
}

func TestFieldRef_Parse(t *testing.T) {
	ref := Ref("age")
	assert.True(t, ref.Direct())
	assert.Equal(t, "age", ref.Name)
	assert.Empty(t, ref.Path)

	ref = Ref("advisor.school.city")
	assert.False(t, ref.Direct())
	assert.Equal(t, []string{"advisor", "school"}, ref.Path)
	assert.Equal(t, "city", ref.Name)
	assert.Equal(t, "advisor.school.city", ref.String())
}

func TestFormatPredicate(t *testing.T) {
	p := And{Preds: []Predicate{
		Gte("age", value.Int(18)),
		Not{Pred: Eq("grade", value.String("F"))},
	}}
	s := FormatPredicate(p)
	assert.Contains(t, s, "age gte 18")
	assert.Contains(t, s, "NOT (grade eq F)")

	assert.Equal(t, "advisor_id IS NULL", FormatPredicate(IsNull("advisor_id")))
	assert.Contains(t, FormatPredicate(In("id", value.Int(1), value.Int(2))), "IN {1, 2}")
}
