package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/stratum/internal/value"
)

// fakeBuilder records what a Strategy renders onto it, standing in for
// the dialect-specific query builder (out of scope, spec.md §1).
type fakeBuilder struct {
	wheres []string
	orders []string
	limit  int
}

func (b *fakeBuilder) Where(predicate string, args ...value.Value) { b.wheres = append(b.wheres, predicate) }
func (b *fakeBuilder) OrderBy(column string, desc bool)             { b.orders = append(b.orders, column) }
func (b *fakeBuilder) Limit(n int)                                  { b.limit = n }

func TestPkOffsetPaginationCompleteness(t *testing.T) {
	rows := make([]value.RowData, 0, 25)
	for i := 1; i <= 25; i++ {
		rows = append(rows, value.RowData{Entity: "users", FieldValues: []value.FieldValue{
			value.NewField("id", value.Int64(int64(i)), value.Of(value.Int)),
		}})
	}

	strat := PkOffset{PkColumn: "id"}
	cur := NewNone()
	limit := 10
	visited := map[int64]bool{}
	pages := 0

	for {
		var page []value.RowData
		for _, r := range rows {
			fv, _ := r.Get("id")
			id, _ := fv.Value.AsInt64()
			cursorID, hasCursor := cur.PkID()
			if hasCursor {
				cid, _ := cursorID.AsInt64()
				if id <= cid {
					continue
				}
			}
			page = append(page, r)
			if len(page) == limit {
				break
			}
		}
		if len(page) == 0 {
			break
		}
		pages++
		for _, r := range page {
			fv, _ := r.Get("id")
			id, _ := fv.Value.AsInt64()
			require.False(t, visited[id], "row %d visited twice", id)
			visited[id] = true
		}
		reachedEnd := strat.ReachedEnd(len(page), limit)
		next, err := strat.Advance(page)
		require.NoError(t, err)
		cur = next
		if reachedEnd {
			break
		}
	}

	assert.Equal(t, 25, len(visited), "every row must be visited exactly once")
	assert.Equal(t, 3, pages, "25 rows at batch size 10 is 3 pages")
}

func TestPkOffsetRejectsMismatchedCursor(t *testing.T) {
	strat := PkOffset{PkColumn: "id"}
	b := &fakeBuilder{}
	badCursor := NewDefault(5)
	err := strat.Apply(b, badCursor, 10)
	assert.Error(t, err)
}

func TestPkOffsetApplyBuildsWhereOnlyAfterFirstPage(t *testing.T) {
	strat := PkOffset{PkColumn: "id"}
	b := &fakeBuilder{}
	require.NoError(t, strat.Apply(b, NewNone(), 50))
	assert.Empty(t, b.wheres, "first page has no cursor predicate")
	assert.Equal(t, 50, b.limit)

	b2 := &fakeBuilder{}
	require.NoError(t, strat.Apply(b2, NewPk(value.Int64(5)), 50))
	assert.Len(t, b2.wheres, 1)
}

func TestTimestampOffsetConvertsTimezone(t *testing.T) {
	strat := TimestampOffset{TsColumn: "updated_at", PkColumn: "id", Timezone: "America/New_York"}
	b := &fakeBuilder{}
	loc, err := strat.location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
	require.NoError(t, strat.Apply(b, NewNone(), 10))
}
