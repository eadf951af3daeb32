package cursor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/stratum/internal/value"
)

func TestEncodeParseRoundTripNone(t *testing.T) {
	s, err := Encode(NewNone())
	require.NoError(t, err)

	got, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, None, got.Kind())
}

func TestEncodeParseRoundTripPk(t *testing.T) {
	c := NewPk(value.Int64(42))
	s, err := Encode(c)
	require.NoError(t, err)

	got, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, Pk, got.Kind())
	id, ok := got.PkID()
	require.True(t, ok)
	n, _ := id.AsInt64()
	assert.Equal(t, int64(42), n)
}

func TestEncodeParseRoundTripCompositeTsPk(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewCompositeTsPk("created_at", "id", ts, value.String("abc"))
	s, err := Encode(c)
	require.NoError(t, err)

	got, err := Parse(s)
	require.NoError(t, err)
	assert.Equal(t, CompositeTsPk, got.Kind())
	gotTs, ok := got.Timestamp()
	require.True(t, ok)
	assert.True(t, ts.Equal(gotTs))
	id, ok := got.PkID()
	require.True(t, ok)
	str, _ := id.AsString()
	assert.Equal(t, "abc", str)
}

func TestEncodeParseRoundTripDefault(t *testing.T) {
	c := NewDefault(17)
	s, err := Encode(c)
	require.NoError(t, err)

	got, err := Parse(s)
	require.NoError(t, err)
	off, ok := got.Offset()
	require.True(t, ok)
	assert.Equal(t, int64(17), off)
}

func TestParseEmptyStringIsNone(t *testing.T) {
	got, err := Parse("")
	require.NoError(t, err)
	assert.Equal(t, None, got.Kind())
}
