// Package value implements Stratum's source-abstract scalar value system:
// DataType (the closed SQL-like type enumeration), Value (the tagged scalar
// union), FieldValue, and RowData.
package value

import "strings"

// DataType is a closed enumeration of source-abstract SQL-like types.
// Custom carries a driver-specific type name that doesn't map to any of
// the built-ins (e.g. a Postgres domain type or a MySQL SET).
type DataType struct {
	kind Kind
	name string // only meaningful when kind == Custom
}

// Kind identifies the DataType variant.
type Kind int

const (
	Unknown Kind = iota
	Int
	IntUnsigned
	Float
	Decimal
	Bool
	String
	Bytes
	Date
	Timestamp
	UUID
	JSON
	Enum
	Year
	Geometry
	StringArray
	Custom
)

func Of(k Kind) DataType        { return DataType{kind: k} }
func CustomType(name string) DataType { return DataType{kind: Custom, name: name} }

func (d DataType) Kind() Kind { return d.kind }

func (d DataType) String() string {
	if d.kind == Custom {
		return "custom(" + d.name + ")"
	}
	switch d.kind {
	case Int:
		return "int"
	case IntUnsigned:
		return "int_unsigned"
	case Float:
		return "float"
	case Decimal:
		return "decimal"
	case Bool:
		return "bool"
	case String:
		return "string"
	case Bytes:
		return "bytes"
	case Date:
		return "date"
	case Timestamp:
		return "timestamp"
	case UUID:
		return "uuid"
	case JSON:
		return "json"
	case Enum:
		return "enum"
	case Year:
		return "year"
	case Geometry:
		return "geometry"
	case StringArray:
		return "string_array"
	default:
		return "unknown"
	}
}

// compatibilityFamilies lists kind pairs that are bidirectionally
// convertible. Membership is symmetric: if (a,b) is listed, (b,a) holds too.
var compatibilityFamilies = map[Kind]map[Kind]bool{
	Int:         {IntUnsigned: true, Year: true},
	IntUnsigned: {Int: true},
	Enum:        {String: true},
	String:      {Enum: true},
	Geometry:    {Bytes: true},
	Bytes:       {Geometry: true},
	Year:        {Int: true},
	Date:        {Timestamp: true},
	Timestamp:   {Date: true},
}

// IsCompatible reports whether two data types belong to the same
// bidirectional conversion family. Reflexive (a type is always compatible
// with itself) and symmetric by construction of compatibilityFamilies.
func (d DataType) IsCompatible(other DataType) bool {
	if d.kind == Custom || other.kind == Custom {
		return d.kind == other.kind && strings.EqualFold(d.name, other.name)
	}
	if d.kind == other.kind {
		return true
	}
	if fam, ok := compatibilityFamilies[d.kind]; ok && fam[other.kind] {
		return true
	}
	return false
}
