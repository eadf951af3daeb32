package mysql

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/value"
)

func TestMysqlErrorCodeExtractsNumericCode(t *testing.T) {
	err := errors.New("Error 1062: Duplicate entry 'x' for key 'PRIMARY'")
	assert.Equal(t, 1062, mysqlErrorCode(err))
}

func TestMysqlErrorCodeReturnsZeroWhenNoMarker(t *testing.T) {
	assert.Equal(t, 0, mysqlErrorCode(errors.New("connection refused")))
}

func TestMysqlTypeToDataTypeMapsKnownTypes(t *testing.T) {
	assert.Equal(t, value.Bool, mysqlTypeToDataType("tinyint(1)").Kind())
	assert.Equal(t, value.IntUnsigned, mysqlTypeToDataType("int unsigned").Kind())
	assert.Equal(t, value.Int, mysqlTypeToDataType("bigint").Kind())
	assert.Equal(t, value.Decimal, mysqlTypeToDataType("decimal(10,2)").Kind())
	assert.Equal(t, value.Enum, mysqlTypeToDataType("enum('a','b')").Kind())
	assert.Equal(t, value.Year, mysqlTypeToDataType("year").Kind())
	assert.Equal(t, value.Geometry, mysqlTypeToDataType("point").Kind())
	assert.Equal(t, value.String, mysqlTypeToDataType("varchar").Kind())
}

func TestMysqlTypeToDataTypeFallsBackToCustom(t *testing.T) {
	assert.Equal(t, value.Custom, mysqlTypeToDataType("set('a','b')").Kind())
}

func TestWriteBatchFastPathAlwaysUnsupported(t *testing.T) {
	a := &Adapter{}
	err := a.WriteBatchFastPath(context.Background(), "orders", []value.RowData{{}})

	var kerr *kernelerr.Error
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, kernelerr.KindSink, kerr.Kind)
}

func TestColumnNamesPreservesFieldOrder(t *testing.T) {
	row := value.RowData{FieldValues: []value.FieldValue{
		value.NewField("id", value.Int64(1), value.Of(value.Int)),
		value.NewField("total", value.Float64(1.5), value.Of(value.Float)),
	}}
	assert.Equal(t, []string{"id", "total"}, columnNames(row))
}
