package value

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want Kind
	}{
		{"null", Null{}, KindNull},
		{"string", String("hello"), KindString},
		{"int", Int(42), KindInt},
		{"float", Float(1.5), KindFloat},
		{"bool", Bool(true), KindBool},
		{"time", Time(time.Now()), KindTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.v))
		})
	}
}

func TestComparable_NumericCross(t *testing.T) {
	// Int and Float are mutually comparable
	assert.True(t, Comparable(KindInt, KindFloat))
	assert.True(t, Comparable(KindFloat, KindInt))
	assert.True(t, Comparable(KindInt, KindInt))
}

func TestComparable_NullNeverComparable(t *testing.T) {
	// is-null is the only way to test for absence
	assert.False(t, Comparable(KindNull, KindNull))
	assert.False(t, Comparable(KindNull, KindInt))
	assert.False(t, Comparable(KindString, KindNull))
}

func TestComparable_MixedKinds(t *testing.T) {
	assert.False(t, Comparable(KindString, KindInt))
	assert.False(t, Comparable(KindBool, KindInt))
	assert.False(t, Comparable(KindTime, KindString))
}

func TestCompare_Ints(t *testing.T) {
	c, err := Compare(Int(1), Int(2))
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = Compare(Int(2), Int(2))
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	c, err = Compare(Int(3), Int(2))
	require.NoError(t, err)
	assert.Equal(t, 1, c)
}

func TestCompare_IntFloatCross(t *testing.T) {
	c, err := Compare(Int(2), Float(2.5))
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	c, err = Compare(Float(2.0), Int(2))
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestCompare_Strings(t *testing.T) {
	c, err := Compare(String("alice"), String("bob"))
	require.NoError(t, err)
	assert.Equal(t, -1, c)
}

func TestCompare_Times(t *testing.T) {
	early := Time(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	late := Time(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	c, err := Compare(early, late)
	require.NoError(t, err)
	assert.Equal(t, -1, c)
}

func TestCompare_IncompatibleKinds(t *testing.T) {
	_, err := Compare(String("a"), Int(1))
	assert.Error(t, err)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Int(5), Int(5)))
	assert.True(t, Equal(Int(5), Float(5.0)))
	assert.False(t, Equal(Int(5), Int(6)))
	assert.True(t, Equal(Null{}, Null{}))
	assert.False(t, Equal(Null{}, Int(0)))
}

func TestToParam(t *testing.T) {
	p, err := ToParam(Int(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), p)

	p, err = ToParam(String("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", p)

	p, err = ToParam(Null{})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = ToParam(Bool(true))
	require.NoError(t, err)
	assert.Equal(t, true, p)
}

func TestFromDriver_Roundtrip(t *testing.T) {
	v, err := FromDriver(int64(42), KindInt)
	require.NoError(t, err)
	assert.Equal(t, Int(42), v)

	v, err = FromDriver("hi", KindString)
	require.NoError(t, err)
	assert.Equal(t, String("hi"), v)

	v, err = FromDriver([]byte("hi"), KindString)
	require.NoError(t, err)
	assert.Equal(t, String("hi"), v)

	// NULL becomes Null regardless of declared kind
	v, err = FromDriver(nil, KindInt)
	require.NoError(t, err)
	assert.Equal(t, Null{}, v)

	// SQLite stores booleans as integers
	v, err = FromDriver(int64(1), KindBool)
	require.NoError(t, err)
	assert.Equal(t, Bool(true), v)

	// Integer column read into a float field
	v, err = FromDriver(int64(3), KindFloat)
	require.NoError(t, err)
	assert.Equal(t, Float(3), v)
}

func TestFromDriver_TimeText(t *testing.T) {
	ts := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	v, err := FromDriver(ts.Format(time.RFC3339Nano), KindTime)
	require.NoError(t, err)
	assert.True(t, time.Time(v.(Time)).Equal(ts))
}

func TestFromDriver_Mismatch(t *testing.T) {
	_, err := FromDriver("not a number", KindInt)
	assert.Error(t, err)
}

func TestMarshal(t *testing.T) {
	b, err := Marshal(Int(5))
	require.NoError(t, err)
	assert.Equal(t, "5", string(b))

	b, err = Marshal(Null{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	b, err = Marshal(String("a"))
	require.NoError(t, err)
	assert.Equal(t, `"a"`, string(b))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "<null>", Format(Null{}))
	assert.Equal(t, "42", Format(Int(42)))
	assert.Equal(t, "true", Format(Bool(true)))
}
