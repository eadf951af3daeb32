package value

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// wireValue is the JSON wire shape for Value: a discriminated union keyed
// by Kind, used both by the CompiledExpression wire format (internal/
// transform) and the dry-run report's transform section (spec.md §6).
type wireValue struct {
	Kind     string `json:"kind"`
	Int      int64  `json:"int,omitempty"`
	Uint     uint64 `json:"uint,omitempty"`
	Float    float64 `json:"float,omitempty"`
	Decimal  string `json:"decimal,omitempty"`
	Bool     bool   `json:"bool,omitempty"`
	String   string `json:"string,omitempty"`
	Bytes    string `json:"bytes,omitempty"` // base64
	Time     string `json:"time,omitempty"`  // RFC3339Nano
	EnumType string `json:"enum_type,omitempty"`
	EnumName string `json:"enum_name,omitempty"`
	Array    []string `json:"array,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Kind: v.VariantKind()}
	switch v.kind {
	case vNull:
	case vInt:
		w.Int = v.i
	case vUint:
		w.Uint = v.u
	case vFloat:
		w.Float = v.f
	case vDecimal:
		if v.dec != nil {
			w.Decimal = v.dec.RatString()
		}
	case vBool:
		w.Bool = v.b
	case vString, vUUID, vJSON:
		w.String = v.s
	case vBytes:
		w.Bytes = base64.StdEncoding.EncodeToString(v.by)
	case vDate, vTimestamp:
		w.Time = v.t.UTC().Format(time.RFC3339Nano)
	case vEnum:
		w.EnumType = v.enum.Type
		w.EnumName = v.enum.Name
	case vStringArray:
		w.Array = v.arr
	default:
		return nil, fmt.Errorf("value: marshal unknown kind %d", v.kind)
	}
	return json.Marshal(w)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "null", "":
		*v = Null()
	case "int":
		*v = Int64(w.Int)
	case "uint":
		*v = Uint64(w.Uint)
	case "float":
		*v = Float64(w.Float)
	case "decimal":
		r, ok := new(big.Rat).SetString(w.Decimal)
		if !ok {
			return fmt.Errorf("value: invalid decimal %q", w.Decimal)
		}
		*v = Decimal(r)
	case "bool":
		*v = Bool(w.Bool)
	case "string":
		*v = String(w.String)
	case "uuid":
		*v = UUID(w.String)
	case "json":
		*v = JSONText(w.String)
	case "bytes":
		b, err := base64.StdEncoding.DecodeString(w.Bytes)
		if err != nil {
			return fmt.Errorf("value: invalid bytes %q: %w", w.Bytes, err)
		}
		*v = Bytes(b)
	case "date", "timestamp":
		t, err := time.Parse(time.RFC3339Nano, w.Time)
		if err != nil {
			return fmt.Errorf("value: invalid time %q: %w", w.Time, err)
		}
		if w.Kind == "date" {
			*v = Date(t)
		} else {
			*v = Timestamp(t)
		}
	case "enum":
		*v = Enum(w.EnumType, w.EnumName)
	case "string_array":
		*v = StringArray(w.Array)
	default:
		return fmt.Errorf("value: unmarshal unknown kind %q", w.Kind)
	}
	return nil
}
