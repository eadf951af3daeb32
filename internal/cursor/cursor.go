// Package cursor implements Stratum's ordered pagination positions and the
// three offset strategies from spec.md §4.3: PkOffset, NumericOffset, and
// TimestampOffset. Strategies are pure: they build a query fragment from a
// cursor and never mutate state themselves — the producer advances the
// in-memory cursor from the last row of the returned page.
package cursor

import (
	"fmt"
	"time"

	"github.com/stanstork/stratum/internal/value"
)

// Kind identifies the cursor family. A given OffsetStrategy only accepts
// the matching Kind; mismatches are rejected (spec.md §3 invariant).
type Kind int

const (
	None Kind = iota
	Pk
	CompositeTsPk
	Default
)

// Cursor is the ordered sum type from spec.md §3.
type Cursor struct {
	kind Kind

	id     value.Value // Pk, CompositeTsPk
	tsCol  string       // CompositeTsPk
	pkCol  string       // CompositeTsPk
	ts     time.Time    // CompositeTsPk
	offset int64        // Default
}

func NewNone() Cursor { return Cursor{kind: None} }

func NewPk(id value.Value) Cursor { return Cursor{kind: Pk, id: id} }

func NewCompositeTsPk(tsCol, pkCol string, ts time.Time, id value.Value) Cursor {
	return Cursor{kind: CompositeTsPk, tsCol: tsCol, pkCol: pkCol, ts: ts, id: id}
}

func NewDefault(offset int64) Cursor { return Cursor{kind: Default, offset: offset} }

func (c Cursor) Kind() Kind { return c.kind }

func (c Cursor) PkID() (value.Value, bool) {
	if c.kind == Pk || c.kind == CompositeTsPk {
		return c.id, true
	}
	return value.Value{}, false
}

func (c Cursor) Timestamp() (time.Time, bool) {
	if c.kind == CompositeTsPk {
		return c.ts, true
	}
	return time.Time{}, false
}

func (c Cursor) Offset() (int64, bool) {
	if c.kind == Default {
		return c.offset, true
	}
	return 0, false
}

func (c Cursor) String() string {
	switch c.kind {
	case None:
		return "Cursor::None"
	case Pk:
		return fmt.Sprintf("Cursor::Pk{%s}", c.id.Text())
	case CompositeTsPk:
		return fmt.Sprintf("Cursor::CompositeTsPk{%s=%s, %s=%s}", c.tsCol, c.ts.Format(time.RFC3339Nano), c.pkCol, c.id.Text())
	case Default:
		return fmt.Sprintf("Cursor::Default{%d}", c.offset)
	default:
		return "Cursor::Unknown"
	}
}
