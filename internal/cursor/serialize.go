package cursor

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/stanstork/stratum/internal/value"
)

// wireVersion is bumped whenever the encoded shape changes incompatibly,
// so a future Store reading an older WAL/checkpoint file can detect it
// (spec.md §6 "forward compatibility via explicit version field").
const wireVersion = 1

type wireCursor struct {
	Version int        `json:"version"`
	Kind    string     `json:"kind"`
	ID      *wireValue `json:"id,omitempty"`
	TsCol   string     `json:"ts_col,omitempty"`
	PkCol   string     `json:"pk_col,omitempty"`
	Ts      *time.Time `json:"ts,omitempty"`
	Offset  *int64     `json:"offset,omitempty"`
}

type wireValue struct {
	Kind     string     `json:"kind"`
	Int      *int64     `json:"int,omitempty"`
	Uint     *uint64    `json:"uint,omitempty"`
	Float    *float64   `json:"float,omitempty"`
	Decimal  string     `json:"decimal,omitempty"` // big.Rat.RatString()
	Bool     *bool      `json:"bool,omitempty"`
	Str      string     `json:"str,omitempty"`
	Bytes    []byte     `json:"bytes,omitempty"`
	Time     *time.Time `json:"time,omitempty"`
	EnumType string     `json:"enum_type,omitempty"`
	EnumName string     `json:"enum_name,omitempty"`
	Array    []string   `json:"array,omitempty"`
}

// Encode serializes a Cursor to its durable wire form, stored as the
// Cursor field of a statestore.Checkpoint/WALEntry.
func Encode(c Cursor) (string, error) {
	w := wireCursor{Version: wireVersion, Kind: kindName(c.kind)}
	switch c.kind {
	case None:
	case Pk:
		wv, err := encodeValue(c.id)
		if err != nil {
			return "", err
		}
		w.ID = &wv
	case CompositeTsPk:
		wv, err := encodeValue(c.id)
		if err != nil {
			return "", err
		}
		w.ID = &wv
		w.TsCol = c.tsCol
		w.PkCol = c.pkCol
		ts := c.ts
		w.Ts = &ts
	case Default:
		off := c.offset
		w.Offset = &off
	default:
		return "", fmt.Errorf("cursor: cannot encode unknown kind %v", c.kind)
	}
	data, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("cursor: encode: %w", err)
	}
	return string(data), nil
}

// Parse decodes a Cursor from its durable wire form. An empty string
// decodes to None, the fresh-start cursor.
func Parse(s string) (Cursor, error) {
	if s == "" {
		return NewNone(), nil
	}
	var w wireCursor
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return Cursor{}, fmt.Errorf("cursor: parse: %w", err)
	}
	switch w.Kind {
	case "none":
		return NewNone(), nil
	case "pk":
		if w.ID == nil {
			return Cursor{}, fmt.Errorf("cursor: pk cursor missing id")
		}
		v, err := decodeValue(*w.ID)
		if err != nil {
			return Cursor{}, err
		}
		return NewPk(v), nil
	case "composite_ts_pk":
		if w.ID == nil || w.Ts == nil {
			return Cursor{}, fmt.Errorf("cursor: composite_ts_pk cursor missing id/ts")
		}
		v, err := decodeValue(*w.ID)
		if err != nil {
			return Cursor{}, err
		}
		return NewCompositeTsPk(w.TsCol, w.PkCol, *w.Ts, v), nil
	case "default":
		if w.Offset == nil {
			return Cursor{}, fmt.Errorf("cursor: default cursor missing offset")
		}
		return NewDefault(*w.Offset), nil
	default:
		return Cursor{}, fmt.Errorf("cursor: unknown wire kind %q", w.Kind)
	}
}

func kindName(k Kind) string {
	switch k {
	case None:
		return "none"
	case Pk:
		return "pk"
	case CompositeTsPk:
		return "composite_ts_pk"
	case Default:
		return "default"
	default:
		return "unknown"
	}
}

func encodeValue(v value.Value) (wireValue, error) {
	w := wireValue{Kind: v.VariantKind()}
	switch w.Kind {
	case "int":
		n, _ := v.AsInt64()
		w.Int = &n
	case "uint":
		n, _ := v.AsUint64()
		w.Uint = &n
	case "float":
		f, _ := v.AsFloat64()
		w.Float = &f
	case "decimal":
		w.Decimal = v.Text() // RatString via Value.Text for vDecimal
	case "bool":
		b, _ := v.AsBool()
		w.Bool = &b
	case "string", "uuid", "json":
		s, _ := v.AsString()
		w.Str = s
	case "bytes":
		b, _ := v.AsBytes()
		w.Bytes = b
	case "date", "timestamp":
		t, _ := v.AsTime()
		w.Time = &t
	case "enum":
		e, _ := v.AsEnum()
		w.EnumType, w.EnumName = e.Type, e.Name
	case "string_array":
		a, _ := v.AsStringArray()
		w.Array = a
	case "null":
	default:
		return wireValue{}, fmt.Errorf("cursor: cannot encode value kind %q", w.Kind)
	}
	return w, nil
}

func decodeValue(w wireValue) (value.Value, error) {
	switch w.Kind {
	case "null":
		return value.Null(), nil
	case "int":
		if w.Int == nil {
			return value.Value{}, fmt.Errorf("cursor: int value missing")
		}
		return value.Int64(*w.Int), nil
	case "uint":
		if w.Uint == nil {
			return value.Value{}, fmt.Errorf("cursor: uint value missing")
		}
		return value.Uint64(*w.Uint), nil
	case "float":
		if w.Float == nil {
			return value.Value{}, fmt.Errorf("cursor: float value missing")
		}
		return value.Float64(*w.Float), nil
	case "decimal":
		r, ok := new(big.Rat).SetString(w.Decimal)
		if !ok {
			return value.Value{}, fmt.Errorf("cursor: invalid decimal %q", w.Decimal)
		}
		return value.Decimal(r), nil
	case "bool":
		if w.Bool == nil {
			return value.Value{}, fmt.Errorf("cursor: bool value missing")
		}
		return value.Bool(*w.Bool), nil
	case "string":
		return value.String(w.Str), nil
	case "uuid":
		return value.UUID(w.Str), nil
	case "json":
		return value.JSONText(w.Str), nil
	case "bytes":
		return value.Bytes(w.Bytes), nil
	case "date":
		if w.Time == nil {
			return value.Value{}, fmt.Errorf("cursor: date value missing")
		}
		return value.Date(*w.Time), nil
	case "timestamp":
		if w.Time == nil {
			return value.Value{}, fmt.Errorf("cursor: timestamp value missing")
		}
		return value.Timestamp(*w.Time), nil
	case "enum":
		return value.Enum(w.EnumType, w.EnumName), nil
	case "string_array":
		return value.StringArray(w.Array), nil
	default:
		return value.Value{}, fmt.Errorf("cursor: unknown value kind %q", w.Kind)
	}
}
