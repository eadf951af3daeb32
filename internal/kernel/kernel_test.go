package kernel

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanstork/stratum/internal/adapter"
	"github.com/stanstork/stratum/internal/cursor"
	"github.com/stanstork/stratum/internal/metadata"
	"github.com/stanstork/stratum/internal/plan"
	"github.com/stanstork/stratum/internal/producer"
	"github.com/stanstork/stratum/internal/value"
)

// fakeAdapter is a minimal adapter.SqlAdapter stand-in for tests that
// exercise connection-resolution and dialect logic without a live
// database.
type fakeAdapter struct {
	dialect string
	caps    adapter.Capabilities
	closed  bool
}

func (f *fakeAdapter) TableExists(ctx context.Context, name string) (bool, error) { return false, nil }
func (f *fakeAdapter) TruncateTable(ctx context.Context, name string) error       { return nil }
func (f *fakeAdapter) ListTables(ctx context.Context) ([]string, error)           { return nil, nil }
func (f *fakeAdapter) Execute(ctx context.Context, sql string) error              { return nil }
func (f *fakeAdapter) ExecuteWithParams(ctx context.Context, sql string, params []value.Value) error {
	return nil
}
func (f *fakeAdapter) QueryRows(ctx context.Context, sql string) ([]value.RowData, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchRows(ctx context.Context, req adapter.FetchRowsRequest) ([]value.RowData, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchMetadata(ctx context.Context, table string) (*metadata.TableMetadata, error) {
	return metadata.NewTableMetadata(table), nil
}
func (f *fakeAdapter) FetchReferencingTables(ctx context.Context, table string) ([]string, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchExistingKeys(ctx context.Context, table string, keyColumns []string, keysBatch []value.RowData) ([]value.RowData, error) {
	return nil, nil
}
func (f *fakeAdapter) Capabilities() adapter.Capabilities { return f.caps }
func (f *fakeAdapter) Dialect() string                    { return f.dialect }
func (f *fakeAdapter) Close() error                        { f.closed = true; return nil }

func TestConnectRejectsUnsupportedDriver(t *testing.T) {
	_, err := connect(context.Background(), plan.Connection{Name: "c", Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported driver")
}

func TestConnectRequiresDriverSpecificProperties(t *testing.T) {
	cases := []struct {
		driver string
		want   string
	}{
		{"postgres", "\"url\""},
		{"mysql", "\"dsn\""},
		{"csv", "\"path\""},
	}
	for _, tc := range cases {
		_, err := connect(context.Background(), plan.Connection{Name: "c", Driver: tc.driver})
		require.Error(t, err)
		assert.Contains(t, err.Error(), tc.want)
	}
}

func TestConnectOpensCsvSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,a\n"), 0o600))

	ep, err := connect(context.Background(), plan.Connection{Name: "c", Driver: "csv", Properties: map[string]string{"path": path}})
	require.NoError(t, err)
	defer ep.close()

	assert.False(t, ep.isSQL())
	assert.NotNil(t, ep.csv)
}

func TestDialectForUsesAdapterDialect(t *testing.T) {
	pg := endpoint{sql: &fakeAdapter{dialect: "postgres"}}
	my := endpoint{sql: &fakeAdapter{dialect: "mysql"}}
	assert.Equal(t, "postgres", string(dialectFor(pg)))
	assert.Equal(t, "mysql", string(dialectFor(my)))
}

func TestDestinationKeyColumnsMapsSourcePrimaryKeysThroughMapping(t *testing.T) {
	src := metadata.NewTableMetadata("orders")
	src.PrimaryKeys = []string{"id"}

	graph, err := metadata.Build(context.Background(), &fixedFetcher{t: src}, []string{"orders"})
	require.NoError(t, err)

	mapping := plan.NewEntityMapping()
	mapping.MapField("orders", "id", "order_id")

	pl := &plan.Pipeline{Source: plan.Endpoint{Table: "orders"}, Mapping: mapping}
	cols := destinationKeyColumns(graph, pl)
	assert.Equal(t, []string{"order_id"}, cols)
}

func TestDestinationKeyColumnsNilWhenNoGraph(t *testing.T) {
	pl := &plan.Pipeline{Source: plan.Endpoint{Table: "orders"}, Mapping: plan.NewEntityMapping()}
	assert.Nil(t, destinationKeyColumns(nil, pl))
}

func TestBuildRowSourceSelectsSqlVariant(t *testing.T) {
	strategy, err := cursor.NewStrategy("pk_offset", "id", "", "")
	require.NoError(t, err)

	src := endpoint{sql: &fakeAdapter{dialect: "postgres"}}
	pl := &plan.Pipeline{Source: plan.Endpoint{Table: "orders"}}

	rs, err := buildRowSource(src, pl, strategy)
	require.NoError(t, err)
	_, ok := rs.(*producer.SqlRowSource)
	assert.True(t, ok)
}

func TestBuildRowSourceSelectsCsvVariant(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rows.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,a\n"), 0o600))

	ep, err := connect(context.Background(), plan.Connection{Name: "c", Driver: "csv", Properties: map[string]string{"path": path}})
	require.NoError(t, err)
	defer ep.close()

	strategy, err := cursor.NewStrategy("pk_offset", "id", "", "")
	require.NoError(t, err)

	rs, err := buildRowSource(ep, &plan.Pipeline{Source: plan.Endpoint{Table: "rows"}}, strategy)
	require.NoError(t, err)
	_, ok := rs.(*producer.CsvRowSource)
	assert.True(t, ok)
}

func TestBuildRowSourceRejectsUnresolvedEndpoint(t *testing.T) {
	strategy, err := cursor.NewStrategy("pk_offset", "id", "", "")
	require.NoError(t, err)

	pl := &plan.Pipeline{Name: "orders"}
	_, err = buildRowSource(endpoint{}, pl, strategy)
	require.Error(t, err)
}

// fixedFetcher is a metadata.Fetcher stub returning one fixed table and
// no incoming references, enough to drive metadata.Build from a single
// root.
type fixedFetcher struct {
	t *metadata.TableMetadata
}

func (f *fixedFetcher) FetchMetadata(ctx context.Context, table string) (*metadata.TableMetadata, error) {
	return f.t, nil
}
func (f *fixedFetcher) FetchReferencingTables(ctx context.Context, table string) ([]string, error) {
	return nil, nil
}
