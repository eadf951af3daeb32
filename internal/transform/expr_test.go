package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/stratum/internal/value"
)

type mapLookup map[string]value.Value

func (l mapLookup) Field(name string) (value.FieldValue, bool) {
	v, ok := l[name]
	if !ok {
		return value.FieldValue{}, false
	}
	return value.NewField(name, v, value.Of(value.Unknown)), true
}

func (l mapLookup) Related(path []string) (value.FieldValue, bool) {
	v, ok := l[path[len(path)-1]]
	if !ok {
		return value.FieldValue{}, false
	}
	return value.NewField(path[len(path)-1], v, value.Of(value.Unknown)), true
}

func TestEvalLiteralAndIdentifier(t *testing.T) {
	l := mapLookup{"age": value.Int64(30)}

	v, err := Eval(Identifier("age"), l)
	require.NoError(t, err)
	i, ok := v.AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(30), i)
}

func TestEvalMissingIdentifierIsNullNotError(t *testing.T) {
	l := mapLookup{}
	v, err := Eval(Identifier("missing"), l)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestEvalIntPromotion(t *testing.T) {
	l := mapLookup{"a": value.Int64(2), "b": value.Int64(3)}
	v, err := Eval(Binary(OpAdd, Identifier("a"), Identifier("b")), l)
	require.NoError(t, err)
	i, _ := v.AsInt64()
	assert.Equal(t, int64(5), i)
}

func TestEvalFloatPromotionWinsOverInt(t *testing.T) {
	l := mapLookup{"a": value.Int64(2), "b": value.Float64(1.5)}
	v, err := Eval(Binary(OpAdd, Identifier("a"), Identifier("b")), l)
	require.NoError(t, err)
	f, ok := v.AsFloat64()
	require.True(t, ok)
	assert.Equal(t, 3.5, f)
}

func TestEvalStringConcatenation(t *testing.T) {
	l := mapLookup{"first": value.String("Jane"), "last": value.String("Doe")}
	v, err := Eval(Binary(OpAdd, Identifier("first"), Identifier("last")), l)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "JaneDoe", s)
}

func TestEvalUnsupportedCombinationReturnsNull(t *testing.T) {
	l := mapLookup{"a": value.String("x"), "b": value.Int64(1)}
	v, err := Eval(Binary(OpAdd, Identifier("a"), Identifier("b")), l)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestEvalComparison(t *testing.T) {
	l := mapLookup{"a": value.Int64(5), "b": value.Int64(3)}
	v, err := Eval(Binary(OpGt, Identifier("a"), Identifier("b")), l)
	require.NoError(t, err)
	b, _ := v.AsBool()
	assert.True(t, b)
}

func TestEvalWhenPicksFirstMatchingBranch(t *testing.T) {
	l := mapLookup{"age": value.Int64(17)}
	expr := When([]WhenBranch{
		{Condition: Binary(OpGe, Identifier("age"), Literal(value.Int64(18))), Result: Literal(value.String("adult"))},
		{Condition: Binary(OpLt, Identifier("age"), Literal(value.Int64(18))), Result: Literal(value.String("minor"))},
	}, nil)

	v, err := Eval(expr, l)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "minor", s)
}

func TestEvalWhenFallsBackToElse(t *testing.T) {
	els := Literal(value.String("none"))
	expr := When([]WhenBranch{
		{Condition: Literal(value.Bool(false)), Result: Literal(value.String("unreachable"))},
	}, &els)

	v, err := Eval(expr, mapLookup{})
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "none", s)
}

func TestEvalIsNullIsNotNull(t *testing.T) {
	l := mapLookup{"present": value.Int64(1)}

	v, err := Eval(IsNull(Identifier("present")), l)
	require.NoError(t, err)
	b, _ := v.AsBool()
	assert.False(t, b)

	v, err = Eval(IsNull(Identifier("absent")), l)
	require.NoError(t, err)
	b, _ = v.AsBool()
	assert.True(t, b)
}

func TestEvalFunctionCalls(t *testing.T) {
	l := mapLookup{"name": value.String("jane")}

	v, err := Eval(Call("upper", Identifier("name")), l)
	require.NoError(t, err)
	s, _ := v.AsString()
	assert.Equal(t, "JANE", s)

	v, err = Eval(Call("concat", Literal(value.String("hello ")), Identifier("name")), l)
	require.NoError(t, err)
	s, _ = v.AsString()
	assert.Equal(t, "hello jane", s)
}

func TestEvalUnknownFunctionIsError(t *testing.T) {
	_, err := Eval(Call("nope"), mapLookup{})
	assert.Error(t, err)
}
