package value

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Value is a tagged union over Stratum's scalar value space. The zero
// Value is Null.
type Value struct {
	kind  valueKind
	i     int64
	u     uint64
	f     float64
	dec   *big.Rat
	b     bool
	s     string
	by    []byte
	t     time.Time
	enum  EnumValue
	arr   []string
}

type valueKind int

const (
	vNull valueKind = iota
	vInt
	vUint
	vFloat
	vDecimal
	vBool
	vString
	vBytes
	vDate
	vTimestamp
	vUUID
	vJSON
	vEnum
	vStringArray
)

// EnumValue pairs an enum's declared type name with the selected member.
type EnumValue struct {
	Type string
	Name string
}

func Null() Value                 { return Value{kind: vNull} }
func Int64(v int64) Value         { return Value{kind: vInt, i: v} }
func Uint64(v uint64) Value       { return Value{kind: vUint, u: v} }
func Float64(v float64) Value     { return Value{kind: vFloat, f: v} }
func Decimal(v *big.Rat) Value    { return Value{kind: vDecimal, dec: v} }
func Bool(v bool) Value           { return Value{kind: vBool, b: v} }
func String(v string) Value       { return Value{kind: vString, s: v} }
func Bytes(v []byte) Value        { return Value{kind: vBytes, by: append([]byte(nil), v...)} }
func Date(v time.Time) Value      { return Value{kind: vDate, t: v} }
func Timestamp(v time.Time) Value { return Value{kind: vTimestamp, t: v} }
// UUID canonicalizes v through google/uuid when it parses (lowercase,
// hyphenated form); a value that doesn't parse as a UUID is kept as-is
// rather than rejected, since source rows with malformed UUID columns
// still need to flow through rather than abort the migration.
func UUID(v string) Value {
	if id, err := uuid.Parse(v); err == nil {
		v = id.String()
	}
	return Value{kind: vUUID, s: v}
}
func JSONText(v string) Value     { return Value{kind: vJSON, s: v} }
func Enum(typ, name string) Value { return Value{kind: vEnum, enum: EnumValue{Type: typ, Name: name}} }
func StringArray(v []string) Value {
	return Value{kind: vStringArray, arr: append([]string(nil), v...)}
}

func (v Value) IsNull() bool { return v.kind == vNull }

// Equal implements the spec's equality invariant: comparison is total only
// within compatible variants, and equality across incompatible variants is
// always false (never panics, never coerces).
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case vNull:
		return true
	case vInt:
		return v.i == o.i
	case vUint:
		return v.u == o.u
	case vFloat:
		return v.f == o.f
	case vDecimal:
		if v.dec == nil || o.dec == nil {
			return v.dec == o.dec
		}
		return v.dec.Cmp(o.dec) == 0
	case vBool:
		return v.b == o.b
	case vString, vUUID, vJSON:
		return v.s == o.s
	case vBytes:
		return string(v.by) == string(o.by)
	case vDate, vTimestamp:
		return v.t.Equal(o.t)
	case vEnum:
		return v.enum.Type == o.enum.Type && v.enum.Name == o.enum.Name
	case vStringArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if v.arr[i] != o.arr[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Text renders the value the way Stratum emits it into generated SQL or
// diagnostic output: bytes are hex-prefixed, strings are quote-escaped.
func (v Value) Text() string {
	switch v.kind {
	case vNull:
		return "NULL"
	case vInt:
		return strconv.FormatInt(v.i, 10)
	case vUint:
		return strconv.FormatUint(v.u, 10)
	case vFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case vDecimal:
		if v.dec == nil {
			return "NULL"
		}
		return v.dec.RatString()
	case vBool:
		if v.b {
			return "true"
		}
		return "false"
	case vString, vUUID, vJSON:
		return quoteEscape(v.s)
	case vBytes:
		return "0x" + hex.EncodeToString(v.by)
	case vDate:
		return v.t.Format("2006-01-02")
	case vTimestamp:
		return v.t.UTC().Format("2006-01-02T15:04:05.999999Z")
	case vEnum:
		return quoteEscape(v.enum.Name)
	case vStringArray:
		quoted := make([]string, len(v.arr))
		for i, s := range v.arr {
			quoted[i] = quoteEscape(s)
		}
		return "{" + strings.Join(quoted, ",") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func quoteEscape(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		if r == '\'' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('\'')
	return b.String()
}

// VariantKind exposes the variant tag for callers that need to switch on it
// (e.g. the numeric-promotion table in internal/transform).
func (v Value) VariantKind() string {
	switch v.kind {
	case vNull:
		return "null"
	case vInt:
		return "int"
	case vUint:
		return "uint"
	case vFloat:
		return "float"
	case vDecimal:
		return "decimal"
	case vBool:
		return "bool"
	case vString:
		return "string"
	case vBytes:
		return "bytes"
	case vDate:
		return "date"
	case vTimestamp:
		return "timestamp"
	case vUUID:
		return "uuid"
	case vJSON:
		return "json"
	case vEnum:
		return "enum"
	case vStringArray:
		return "string_array"
	default:
		return "unknown"
	}
}

func (v Value) AsInt64() (int64, bool) {
	switch v.kind {
	case vInt:
		return v.i, true
	case vUint:
		return int64(v.u), true
	}
	return 0, false
}

func (v Value) AsUint64() (uint64, bool) {
	switch v.kind {
	case vUint:
		return v.u, true
	case vInt:
		if v.i >= 0 {
			return uint64(v.i), true
		}
	}
	return 0, false
}

func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case vFloat:
		return v.f, true
	case vInt:
		return float64(v.i), true
	case vUint:
		return float64(v.u), true
	case vDecimal:
		if v.dec != nil {
			f, _ := v.dec.Float64()
			return f, true
		}
	}
	return 0, false
}

func (v Value) AsString() (string, bool) {
	switch v.kind {
	case vString, vUUID, vJSON:
		return v.s, true
	case vEnum:
		return v.enum.Name, true
	}
	return "", false
}

func (v Value) AsBool() (bool, bool) {
	if v.kind == vBool {
		return v.b, true
	}
	return false, false
}

func (v Value) AsTime() (time.Time, bool) {
	if v.kind == vDate || v.kind == vTimestamp {
		return v.t, true
	}
	return time.Time{}, false
}

func (v Value) AsBytes() ([]byte, bool) {
	if v.kind == vBytes {
		return v.by, true
	}
	return nil, false
}

func (v Value) AsEnum() (EnumValue, bool) {
	if v.kind == vEnum {
		return v.enum, true
	}
	return EnumValue{}, false
}

func (v Value) AsStringArray() ([]string, bool) {
	if v.kind == vStringArray {
		return v.arr, true
	}
	return nil, false
}
