package plan

import (
	"encoding/json"
	"strings"
)

// EntityMapping holds the bidirectional entity-name map, per-entity field
// name maps, computed fields, and cross-entity references compiled from
// the DSL. Lookups are case-insensitive; every key is stored lower-cased
// so storage and lookup agree on normalization.
type EntityMapping struct {
	entityForward  map[string]string // source entity (lower) -> dest entity
	entityBackward map[string]string // dest entity (lower) -> source entity
	fields         map[string]*fieldMap
	computed       map[string][]ComputedField
	references     map[string][]string
}

type fieldMap struct {
	forward  map[string]string
	backward map[string]string
}

// ComputedField describes one computed destination field: its name and
// the compiled expression that produces it.
type ComputedField struct {
	Name       string
	Expression string // serialized CompiledExpression; parsed by internal/transform
}

func NewEntityMapping() *EntityMapping {
	return &EntityMapping{
		entityForward:  map[string]string{},
		entityBackward: map[string]string{},
		fields:         map[string]*fieldMap{},
		computed:       map[string][]ComputedField{},
		references:     map[string][]string{},
	}
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// MapEntity registers a source->destination entity rename.
func (m *EntityMapping) MapEntity(source, dest string) {
	s, d := norm(source), norm(dest)
	m.entityForward[s] = d
	m.entityBackward[d] = s
}

// ResolveEntity returns the destination name for a source entity, or the
// input unchanged if no rename was registered (identity fallback, per the
// round-trip invariant in spec.md §8).
func (m *EntityMapping) ResolveEntity(source string) string {
	if d, ok := m.entityForward[norm(source)]; ok {
		return d
	}
	return source
}

// ReverseEntity is the inverse of ResolveEntity.
func (m *EntityMapping) ReverseEntity(dest string) string {
	if s, ok := m.entityBackward[norm(dest)]; ok {
		return s
	}
	return dest
}

func (m *EntityMapping) fieldMapFor(entity string, create bool) *fieldMap {
	key := norm(entity)
	fm, ok := m.fields[key]
	if !ok {
		if !create {
			return nil
		}
		fm = &fieldMap{forward: map[string]string{}, backward: map[string]string{}}
		m.fields[key] = fm
	}
	return fm
}

// MapField registers a source->destination field rename within one entity.
func (m *EntityMapping) MapField(entity, source, dest string) {
	fm := m.fieldMapFor(entity, true)
	s, d := norm(source), norm(dest)
	fm.forward[s] = d
	fm.backward[d] = s
}

// Resolve returns the destination field name for a source field within
// entity. Identity fallback when the key is unregistered.
func (m *EntityMapping) Resolve(entity, source string) string {
	fm := m.fieldMapFor(entity, false)
	if fm == nil {
		return source
	}
	if d, ok := fm.forward[norm(source)]; ok {
		return d
	}
	return source
}

// ReverseResolve is the inverse of Resolve: reverse_resolve(resolve(x)) ==
// x for any x that was registered as a source key (round-trip invariant,
// spec.md §8); identity otherwise.
func (m *EntityMapping) ReverseResolve(entity, dest string) string {
	fm := m.fieldMapFor(entity, false)
	if fm == nil {
		return dest
	}
	if s, ok := fm.backward[norm(dest)]; ok {
		return s
	}
	return dest
}

// AddComputedField registers a computed destination field for entity.
func (m *EntityMapping) AddComputedField(entity string, cf ComputedField) {
	key := norm(entity)
	m.computed[key] = append(m.computed[key], cf)
}

// ComputedFields returns the computed fields registered for entity, in
// registration order.
func (m *EntityMapping) ComputedFields(entity string) []ComputedField {
	return m.computed[norm(entity)]
}

// AddReference registers a cross-entity reference used by computed-field
// lookups (e.g. `orders.customer.name`).
func (m *EntityMapping) AddReference(entity, referencedEntity string) {
	key := norm(entity)
	for _, r := range m.references[key] {
		if r == norm(referencedEntity) {
			return
		}
	}
	m.references[key] = append(m.references[key], norm(referencedEntity))
}

func (m *EntityMapping) References(entity string) []string {
	return m.references[norm(entity)]
}

// wireEntityMapping is EntityMapping's JSON wire shape: the same four
// maps, exported so the plan's content-addressed Hash (and on-disk
// ExecutionPlan) can include a compiled mapping unchanged.
type wireEntityMapping struct {
	EntityForward  map[string]string          `json:"entity_forward"`
	Fields         map[string]wireFieldMap    `json:"fields"`
	Computed       map[string][]ComputedField `json:"computed"`
	References     map[string][]string        `json:"references"`
}

type wireFieldMap struct {
	Forward map[string]string `json:"forward"`
}

func (m *EntityMapping) MarshalJSON() ([]byte, error) {
	w := wireEntityMapping{
		EntityForward: m.entityForward,
		Fields:        map[string]wireFieldMap{},
		Computed:      m.computed,
		References:    m.references,
	}
	for k, fm := range m.fields {
		w.Fields[k] = wireFieldMap{Forward: fm.forward}
	}
	return json.Marshal(w)
}

func (m *EntityMapping) UnmarshalJSON(data []byte) error {
	var w wireEntityMapping
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = *NewEntityMapping()
	for s, d := range w.EntityForward {
		m.MapEntity(s, d)
	}
	for entity, fm := range w.Fields {
		for s, d := range fm.Forward {
			m.MapField(entity, s, d)
		}
	}
	for entity, cfs := range w.Computed {
		for _, cf := range cfs {
			m.AddComputedField(entity, cf)
		}
	}
	for entity, refs := range w.References {
		for _, r := range refs {
			m.AddReference(entity, r)
		}
	}
	return nil
}

// TargetFieldNames returns the set of destination field names registered
// for entity (forward map values plus computed-field names), used by the
// column-pruning transform step when copy_columns=MapOnly.
func (m *EntityMapping) TargetFieldNames(entity string) map[string]bool {
	out := map[string]bool{}
	if fm := m.fieldMapFor(entity, false); fm != nil {
		for _, d := range fm.forward {
			out[norm(d)] = true
		}
	}
	for _, cf := range m.computed[norm(entity)] {
		out[norm(cf.Name)] = true
	}
	return out
}
