// Package sqlutil holds the dialect-agnostic plumbing shared by the
// postgres and mysql adapters: generic database/sql row scanning into
// value.RowData, FetchRowsRequest -> SQL rendering, and DataType
// inference from driver column type names.
//
// Grounded on the teacher's internal/storage/dolt/store.go query/exec
// wrapper pattern (span-wrapped queryContext/execContext around
// database/sql), generalized from a single embedded backend to any
// database/sql-compatible driver.
package sqlutil

import (
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/stanstork/stratum/internal/value"
)

// InferDataType maps a database/sql driver column type name to a
// value.DataType. Unrecognized names become a Custom type rather than
// Unknown, so downstream type-compatibility checks can still compare two
// columns of the same unrecognized driver type.
func InferDataType(col *sql.ColumnType) value.DataType {
	name := strings.ToUpper(col.DatabaseTypeName())
	switch {
	case strings.Contains(name, "BOOL"):
		return value.Of(value.Bool)
	case strings.Contains(name, "UUID"):
		return value.Of(value.UUID)
	case strings.Contains(name, "JSON"):
		return value.Of(value.JSON)
	case strings.Contains(name, "TIMESTAMP") || strings.Contains(name, "DATETIME"):
		return value.Of(value.Timestamp)
	case name == "DATE":
		return value.Of(value.Date)
	case strings.Contains(name, "DECIMAL") || strings.Contains(name, "NUMERIC"):
		return value.Of(value.Decimal)
	case strings.Contains(name, "UNSIGNED"):
		return value.Of(value.IntUnsigned)
	case strings.Contains(name, "INT") || name == "SERIAL" || name == "BIGSERIAL":
		return value.Of(value.Int)
	case strings.Contains(name, "FLOAT") || strings.Contains(name, "DOUBLE") || strings.Contains(name, "REAL"):
		return value.Of(value.Float)
	case strings.Contains(name, "BYTEA") || strings.Contains(name, "BLOB") || strings.Contains(name, "BINARY"):
		return value.Of(value.Bytes)
	case strings.Contains(name, "ENUM"):
		return value.Of(value.Enum)
	case strings.Contains(name, "YEAR"):
		return value.Of(value.Year)
	case strings.Contains(name, "GEOMETRY") || strings.Contains(name, "POINT") || strings.Contains(name, "POLYGON"):
		return value.Of(value.Geometry)
	case strings.Contains(name, "CHAR") || strings.Contains(name, "TEXT"):
		return value.Of(value.String)
	default:
		return value.CustomType(strings.ToLower(name))
	}
}

// ScanRows converts every row of rs to a RowData tagged with entity,
// using column type information to pick the right value.Value
// constructor. Callers own rs and must close it; ScanRows drains it
// fully.
func ScanRows(rs *sql.Rows, entity string) ([]value.RowData, error) {
	cols, err := rs.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("sqlutil: column types: %w", err)
	}
	types := make([]value.DataType, len(cols))
	names := make([]string, len(cols))
	for i, c := range cols {
		types[i] = InferDataType(c)
		names[i] = c.Name()
	}

	var out []value.RowData
	for rs.Next() {
		scanTargets := make([]any, len(cols))
		for i := range scanTargets {
			scanTargets[i] = new(any)
		}
		if err := rs.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("sqlutil: scan row: %w", err)
		}

		row := value.RowData{Entity: entity, FieldValues: make([]value.FieldValue, len(cols))}
		for i, target := range scanTargets {
			raw := *(target.(*any))
			row.FieldValues[i] = nativeToField(names[i], raw, types[i])
		}
		out = append(out, row)
	}
	return out, rs.Err()
}

// nativeToField converts a database/sql driver-returned native value
// (int64, float64, bool, []byte, string, time.Time, or nil) to a typed
// FieldValue, falling back to the column's declared DataType when the
// driver hands back a generic representation (e.g. []byte for a numeric
// column under some drivers).
func nativeToField(name string, raw any, dt value.DataType) value.FieldValue {
	if raw == nil {
		return value.NewNullField(name, dt)
	}

	switch v := raw.(type) {
	case int64:
		if dt.Kind() == value.IntUnsigned {
			return value.NewField(name, value.Uint64(uint64(v)), dt)
		}
		return value.NewField(name, value.Int64(v), dt)
	case float64:
		return value.NewField(name, value.Float64(v), dt)
	case bool:
		return value.NewField(name, value.Bool(v), dt)
	case time.Time:
		if dt.Kind() == value.Date {
			return value.NewField(name, value.Date(v), dt)
		}
		return value.NewField(name, value.Timestamp(v), dt)
	case string:
		return stringToField(name, v, dt)
	case []byte:
		return bytesToField(name, v, dt)
	default:
		return value.NewField(name, value.String(fmt.Sprintf("%v", v)), dt)
	}
}

func stringToField(name, s string, dt value.DataType) value.FieldValue {
	switch dt.Kind() {
	case value.Decimal:
		if r, ok := new(big.Rat).SetString(s); ok {
			return value.NewField(name, value.Decimal(r), dt)
		}
	case value.UUID:
		return value.NewField(name, value.UUID(s), dt)
	case value.JSON:
		return value.NewField(name, value.JSONText(s), dt)
	case value.Enum:
		return value.NewField(name, value.Enum(dt.String(), s), dt)
	}
	return value.NewField(name, value.String(s), dt)
}

func bytesToField(name string, b []byte, dt value.DataType) value.FieldValue {
	switch dt.Kind() {
	case value.Decimal:
		if r, ok := new(big.Rat).SetString(string(b)); ok {
			return value.NewField(name, value.Decimal(r), dt)
		}
	case value.String, value.Enum, value.JSON, value.UUID:
		return stringToField(name, string(b), dt)
	}
	return value.NewField(name, value.Bytes(b), dt)
}

// ValueToNative converts a value.Value to the native Go type
// database/sql expects as a query parameter.
func ValueToNative(v value.Value) any {
	if v.IsNull() {
		return nil
	}
	switch v.VariantKind() {
	case "uint":
		u, _ := v.AsUint64()
		return u
	case "int":
		i, _ := v.AsInt64()
		return i
	case "float", "decimal":
		f, _ := v.AsFloat64()
		return f
	case "bool":
		b, _ := v.AsBool()
		return b
	case "date", "timestamp":
		t, _ := v.AsTime()
		return t
	case "bytes":
		b, _ := v.AsBytes()
		return b
	default:
		return v.Text()
	}
}
