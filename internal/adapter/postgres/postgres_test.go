package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/stratum/internal/value"
)

func TestPgSQLStateExtractsCodeFromErrorMessage(t *testing.T) {
	err := errors.New(`ERROR: duplicate key value (SQLSTATE 23505)`)
	assert.Equal(t, "23505", pgSQLState(err))
}

func TestPgSQLStateReturnsEmptyWhenNoMarker(t *testing.T) {
	assert.Equal(t, "", pgSQLState(errors.New("connection refused")))
}

func TestPgTypeToDataTypeMapsKnownTypes(t *testing.T) {
	assert.Equal(t, value.Bool, pgTypeToDataType("boolean").Kind())
	assert.Equal(t, value.Int, pgTypeToDataType("bigint").Kind())
	assert.Equal(t, value.Decimal, pgTypeToDataType("numeric").Kind())
	assert.Equal(t, value.UUID, pgTypeToDataType("uuid").Kind())
	assert.Equal(t, value.Timestamp, pgTypeToDataType("timestamp with time zone").Kind())
	assert.Equal(t, value.String, pgTypeToDataType("character varying").Kind())
}

func TestPgTypeToDataTypeFallsBackToCustom(t *testing.T) {
	dt := pgTypeToDataType("tsvector")
	assert.Equal(t, value.Custom, dt.Kind())
}

func TestSpanSQLTruncatesLongStatements(t *testing.T) {
	long := make([]byte, 400)
	for i := range long {
		long[i] = 'a'
	}
	got := spanSQL(string(long))
	assert.Len(t, got, 303) // 300 bytes + the 3-byte UTF-8 ellipsis rune
}

func TestSpanSQLPassesThroughShortStatements(t *testing.T) {
	assert.Equal(t, "SELECT 1", spanSQL("SELECT 1"))
}

func TestColumnNamesPreservesFieldOrder(t *testing.T) {
	row := value.RowData{FieldValues: []value.FieldValue{
		value.NewField("id", value.Int64(1), value.Of(value.Int)),
		value.NewField("name", value.String("a"), value.Of(value.String)),
	}}
	assert.Equal(t, []string{"id", "name"}, columnNames(row))
}

func TestWriteBatchFastPathNoopOnEmptyBatch(t *testing.T) {
	a := &Adapter{}
	require.NoError(t, a.WriteBatchFastPath(context.Background(), "orders", nil))
}

func TestWriteBatchNoopOnEmptyBatch(t *testing.T) {
	a := &Adapter{}
	require.NoError(t, a.WriteBatch(context.Background(), "orders", nil))
}

func TestRowCopySourceIteratesAllRowsThenStops(t *testing.T) {
	rows := []value.RowData{
		{FieldValues: []value.FieldValue{value.NewField("id", value.Int64(1), value.Of(value.Int))}},
		{FieldValues: []value.FieldValue{value.NewField("id", value.Int64(2), value.Of(value.Int))}},
	}
	src := &rowCopySource{rows: rows, columns: []string{"id"}}

	assert.True(t, src.Next())
	vals, err := src.Values()
	assert.NoError(t, err)
	assert.Equal(t, []any{int64(1)}, vals)

	assert.True(t, src.Next())
	vals, _ = src.Values()
	assert.Equal(t, []any{int64(2)}, vals)

	assert.False(t, src.Next())
}
