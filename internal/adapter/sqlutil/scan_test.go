package sqlutil

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stanstork/stratum/internal/value"
)

func TestValueToNativeConvertsEachVariant(t *testing.T) {
	assert.Nil(t, ValueToNative(value.Null()))
	assert.Equal(t, int64(42), ValueToNative(value.Int64(42)))
	assert.Equal(t, uint64(7), ValueToNative(value.Uint64(7)))
	assert.Equal(t, true, ValueToNative(value.Bool(true)))
	assert.Equal(t, "hello", ValueToNative(value.String("hello")))

	f := ValueToNative(value.Decimal(big.NewRat(5, 2)))
	assert.InDelta(t, 2.5, f.(float64), 0.0001)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, ts, ValueToNative(value.Timestamp(ts)))

	assert.Equal(t, []byte("abc"), ValueToNative(value.Bytes([]byte("abc"))))
}

func TestNativeToFieldHandlesNullAndTypedValues(t *testing.T) {
	dt := value.Of(value.Int)
	fv := nativeToField("id", nil, dt)
	assert.True(t, fv.IsNull())

	fv = nativeToField("id", int64(5), dt)
	n, _ := fv.Value.AsInt64()
	assert.Equal(t, int64(5), n)

	fv = nativeToField("active", true, value.Of(value.Bool))
	b, _ := fv.Value.AsBool()
	assert.True(t, b)
}

func TestStringToFieldParsesDecimalAndJSON(t *testing.T) {
	fv := stringToField("price", "12.50", value.Of(value.Decimal))
	f, _ := fv.Value.AsFloat64()
	assert.InDelta(t, 12.5, f, 0.0001)

	fv = stringToField("payload", `{"a":1}`, value.Of(value.JSON))
	s, _ := fv.Value.AsString()
	assert.Equal(t, `{"a":1}`, s)
}
