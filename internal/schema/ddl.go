package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/stanstork/stratum/internal/value"
)

func renderCreateEnum(e EnumDef, dialect Dialect) string {
	if dialect != DialectPostgres {
		// MySQL has no standalone enum type; enum columns are rendered
		// inline by columnDDL, so this statement is never applied there.
		return ""
	}
	quoted := make([]string, len(e.Values))
	for i, v := range e.Values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return fmt.Sprintf("CREATE TYPE %s AS ENUM (%s)", e.Name, strings.Join(quoted, ", "))
}

func renderCreateTable(t TableDef, dialect Dialect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (", t.Name)
	parts := make([]string, 0, len(t.Columns)+1)
	var pk []string
	for _, c := range t.Columns {
		parts = append(parts, columnDDL(t.Name, c, dialect))
		if c.IsPrimary {
			pk = append(pk, c.Name)
		}
	}
	if len(pk) > 0 {
		parts = append(parts, "PRIMARY KEY ("+strings.Join(pk, ", ")+")")
	}
	b.WriteString(strings.Join(parts, ", "))
	b.WriteString(")")
	return b.String()
}

func renderAddColumn(op AddColumnOp, dialect Dialect) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", op.Table, columnDDL(op.Table, op.Column, dialect))
}

func renderAddForeignKey(fk FKDef) string {
	name := fmt.Sprintf("fk_%s_%s", fk.Table, fk.Column)
	return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s)",
		fk.Table, name, fk.Column, fk.RefTable, fk.RefColumn)
}

func columnDDL(table string, c ColumnDef, dialect Dialect) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", c.Name, columnType(table, c, dialect))
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.IsAutoIncrement {
		if dialect == DialectMySQL {
			b.WriteString(" AUTO_INCREMENT")
		}
		// Postgres auto-increment is expressed via the GENERATED/serial
		// type chosen in columnType, not a trailing clause.
	}
	return b.String()
}

func columnType(table string, c ColumnDef, dialect Dialect) string {
	if dialect == DialectMySQL {
		return mysqlColumnType(c)
	}
	return postgresColumnType(table, c)
}

func postgresColumnType(table string, c ColumnDef) string {
	switch c.Type.Kind() {
	case value.Int:
		if c.IsAutoIncrement {
			return "SERIAL"
		}
		return "INTEGER"
	case value.IntUnsigned:
		return "BIGINT" // Postgres has no unsigned integer type
	case value.Float:
		return "DOUBLE PRECISION"
	case value.Decimal:
		return decimalType(c, "NUMERIC")
	case value.Bool:
		return "BOOLEAN"
	case value.String:
		return stringType(c)
	case value.Bytes:
		return "BYTEA"
	case value.Date:
		return "DATE"
	case value.Timestamp:
		return "TIMESTAMP"
	case value.UUID:
		return "UUID"
	case value.JSON:
		return "JSONB"
	case value.Enum:
		return enumTypeName(table, c.Name)
	case value.Year:
		return "INTEGER"
	case value.Geometry:
		return "BYTEA"
	case value.StringArray:
		return "TEXT[]"
	case value.Custom:
		return c.Type.String()
	default:
		return "TEXT"
	}
}

func mysqlColumnType(c ColumnDef) string {
	switch c.Type.Kind() {
	case value.Int:
		return "INT"
	case value.IntUnsigned:
		return "INT UNSIGNED"
	case value.Float:
		return "DOUBLE"
	case value.Decimal:
		return decimalType(c, "DECIMAL")
	case value.Bool:
		return "TINYINT(1)"
	case value.String:
		return stringType(c)
	case value.Bytes:
		return "BLOB"
	case value.Date:
		return "DATE"
	case value.Timestamp:
		return "TIMESTAMP"
	case value.UUID:
		return "CHAR(36)"
	case value.JSON:
		return "JSON"
	case value.Enum:
		return inlineEnum(c)
	case value.Year:
		return "YEAR"
	case value.Geometry:
		return "GEOMETRY"
	case value.StringArray:
		return "JSON"
	case value.Custom:
		return c.Type.String()
	default:
		return "TEXT"
	}
}

func decimalType(c ColumnDef, keyword string) string {
	if c.Precision == nil {
		return keyword
	}
	scale := 0
	if c.Scale != nil {
		scale = *c.Scale
	}
	return fmt.Sprintf("%s(%d,%d)", keyword, *c.Precision, scale)
}

func stringType(c ColumnDef) string {
	if c.MaxLength == nil || *c.MaxLength <= 0 {
		return "TEXT"
	}
	return "VARCHAR(" + strconv.Itoa(*c.MaxLength) + ")"
}

func inlineEnum(c ColumnDef) string {
	quoted := make([]string, len(c.EnumValues))
	for i, v := range c.EnumValues {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
	}
	return "ENUM(" + strings.Join(quoted, ", ") + ")"
}
