package value

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out Value
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestValueJSONRoundTripsEveryVariant(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	cases := []Value{
		Null(),
		Int64(-7),
		Uint64(9),
		Float64(3.25),
		Decimal(big.NewRat(7, 2)),
		Bool(true),
		String("hello"),
		Bytes([]byte{1, 2, 3}),
		Date(ts),
		Timestamp(ts),
		UUID("11111111-1111-1111-1111-111111111111"),
		JSONText(`{"a":1}`),
		Enum("status", "active"),
		StringArray([]string{"a", "b"}),
	}
	for _, v := range cases {
		got := roundTrip(t, v)
		assert.True(t, v.Equal(got), "round trip changed value: %v -> %v", v.Text(), got.Text())
	}
}

func TestValueJSONRejectsInvalidDecimal(t *testing.T) {
	var v Value
	err := json.Unmarshal([]byte(`{"kind":"decimal","decimal":"not-a-number"}`), &v)
	assert.Error(t, err)
}
