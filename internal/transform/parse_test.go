package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/stratum/internal/value"
)

func TestSerializeParseRoundTripsLiteralAndIdentifier(t *testing.T) {
	e := Binary(OpAdd, Identifier("amount"), Literal(value.Int64(5)))
	data, err := Serialize(e)
	require.NoError(t, err)

	got, err := ParseExpr(data)
	require.NoError(t, err)

	assert.Equal(t, ExprBinary, got.Kind)
	assert.Equal(t, OpAdd, got.BinOp)
	assert.Equal(t, "amount", got.Left.Ident)
	n, _ := got.Right.Literal.AsInt64()
	assert.Equal(t, int64(5), n)
}

func TestSerializeParseRoundTripsWhenAndDotPath(t *testing.T) {
	e := When(
		[]WhenBranch{{Condition: IsNull(DotPath("customer", "name")), Result: Literal(value.String("unknown"))}},
		func() *Expr { v := Identifier("name"); return &v }(),
	)
	data, err := Serialize(e)
	require.NoError(t, err)

	got, err := ParseExpr(data)
	require.NoError(t, err)

	require.Len(t, got.Branches, 1)
	assert.Equal(t, ExprIsNull, got.Branches[0].Condition.Kind)
	assert.Equal(t, []string{"customer", "name"}, got.Branches[0].Condition.Operand.Path)
	require.NotNil(t, got.Else)
	assert.Equal(t, "name", got.Else.Ident)
}

func TestSerializeParseRoundTripsFunctionCallAndArray(t *testing.T) {
	e := Call("concat", Identifier("first"), Literal(value.String(" ")), Array(Literal(value.Int64(1)), Literal(value.Int64(2))))
	data, err := Serialize(e)
	require.NoError(t, err)

	got, err := ParseExpr(data)
	require.NoError(t, err)

	assert.Equal(t, "concat", got.FuncName)
	require.Len(t, got.Args, 3)
	assert.Equal(t, ExprArray, got.Args[2].Kind)
}

func TestParseExprRejectsUnknownKind(t *testing.T) {
	_, err := ParseExpr(`{"kind":"nonsense"}`)
	assert.Error(t, err)
}
