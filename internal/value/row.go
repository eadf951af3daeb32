package value

import "fmt"

// FieldValue is one named, typed column value within a row. Value is nil
// when the column holds SQL NULL.
type FieldValue struct {
	Name  string
	Value *Value
	Type  DataType
}

// NewField builds a FieldValue from a present Value.
func NewField(name string, v Value, t DataType) FieldValue {
	return FieldValue{Name: name, Value: &v, Type: t}
}

// NewNullField builds a FieldValue representing SQL NULL.
func NewNullField(name string, t DataType) FieldValue {
	return FieldValue{Name: name, Value: nil, Type: t}
}

func (f FieldValue) IsNull() bool { return f.Value == nil }

// RowData is one logical row flowing through the pipeline. Entity is the
// row's logical table name, post entity-rename once the transformation
// pipeline has run.
type RowData struct {
	Entity      string
	FieldValues []FieldValue
}

// Get returns the named field and whether it was found (case-insensitive
// per EntityMapping's lookup invariant is applied by callers; Get itself
// is exact-match since RowData field names are already normalized by the
// producer before they reach the pipeline).
func (r RowData) Get(name string) (FieldValue, bool) {
	for _, fv := range r.FieldValues {
		if fv.Name == name {
			return fv, true
		}
	}
	return FieldValue{}, false
}

// With returns a copy of r with the named field replaced or appended.
// RowData is treated as immutable by the transformation pipeline: each
// step produces a new RowData rather than mutating the input in place.
func (r RowData) With(fv FieldValue) RowData {
	out := RowData{Entity: r.Entity, FieldValues: make([]FieldValue, 0, len(r.FieldValues)+1)}
	replaced := false
	for _, existing := range r.FieldValues {
		if existing.Name == fv.Name {
			out.FieldValues = append(out.FieldValues, fv)
			replaced = true
			continue
		}
		out.FieldValues = append(out.FieldValues, existing)
	}
	if !replaced {
		out.FieldValues = append(out.FieldValues, fv)
	}
	return out
}

// Without returns a copy of r with the named field removed, used by the
// column-pruning step (transform step 4, copy_columns=MapOnly).
func (r RowData) Without(name string) RowData {
	out := RowData{Entity: r.Entity, FieldValues: make([]FieldValue, 0, len(r.FieldValues))}
	for _, fv := range r.FieldValues {
		if fv.Name != name {
			out.FieldValues = append(out.FieldValues, fv)
		}
	}
	return out
}

// WithEntity returns a copy of r renamed to the given entity.
func (r RowData) WithEntity(entity string) RowData {
	return RowData{Entity: entity, FieldValues: r.FieldValues}
}

func (r RowData) String() string {
	return fmt.Sprintf("RowData{entity=%s, fields=%d}", r.Entity, len(r.FieldValues))
}
