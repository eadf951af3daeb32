// Package metadata implements the metadata graph (spec.md §4.4): table
// metadata, the arena-of-tables graph built by BFS over foreign keys in
// both directions, cycle detection, and join-path reconstruction for
// cascade schema.
package metadata

import "github.com/stanstork/stratum/internal/value"

// ColumnMetadata describes one column of a TableMetadata.
type ColumnMetadata struct {
	Name            string
	Ordinal         int
	Type            value.DataType
	Nullable        bool
	Default         *string
	MaxLength       *int
	Precision       *int
	Scale           *int
	IsPrimary       bool
	IsUnique        bool
	IsAutoIncrement bool
	FKTarget        *FKRef   // non-nil when this column references another table
	EnumValues      []string // populated for Type.Kind()==value.Enum columns
}

// FKRef names the table+column a foreign key targets.
type FKRef struct {
	Table  string
	Column string
}

// TableMetadata is the per-table description loaded from the source
// adapter. ReferencedTables/ReferencingTables are directed FK edges;
// they're populated symmetrically once the table is discovered by the
// graph build so callers can walk either direction without re-fetching.
type TableMetadata struct {
	Name              string
	Schema            string
	Columns           map[string]ColumnMetadata
	PrimaryKeys       []string
	ForeignKeys       []FKRef
	ReferencedTables  []string // tables this table's FKs point to
	ReferencingTables []string // tables whose FKs point to this table
}

func NewTableMetadata(name string) *TableMetadata {
	return &TableMetadata{Name: name, Columns: map[string]ColumnMetadata{}}
}

// CsvMetadata is the header-derived metadata for a CSV source.
type CsvMetadata struct {
	Path    string
	Headers []string
	Columns map[string]ColumnMetadata
}

// EntityKind distinguishes the two EntityMetadata variants.
type EntityKind int

const (
	EntityTable EntityKind = iota
	EntityCsv
)

// EntityMetadata is the {Table(TableMetadata) | Csv(CsvMetadata)} sum
// type from spec.md §3.
type EntityMetadata struct {
	Kind  EntityKind
	Table *TableMetadata
	Csv   *CsvMetadata
}

func OfTable(t *TableMetadata) EntityMetadata { return EntityMetadata{Kind: EntityTable, Table: t} }
func OfCsv(c *CsvMetadata) EntityMetadata     { return EntityMetadata{Kind: EntityCsv, Csv: c} }

func (e EntityMetadata) Name() string {
	if e.Kind == EntityTable && e.Table != nil {
		return e.Table.Name
	}
	if e.Kind == EntityCsv && e.Csv != nil {
		return e.Csv.Path
	}
	return ""
}
