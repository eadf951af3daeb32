// Package schema implements the schema planner & applier (spec.md §4.8):
// it walks a metadata.Graph plus an EntityMapping and renders a SchemaPlan
// of enum/table/foreign-key DDL for the destination dialect, honoring
// ignore_constraints and mapped_columns_only. The plan is either applied
// live against an adapter or rendered into a dry-run report.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/stanstork/stratum/internal/adapter"
	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/metadata"
	"github.com/stanstork/stratum/internal/plan"
	"github.com/stanstork/stratum/internal/value"
)

// Dialect selects the destination's DDL rendering rules.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// SqlStatement is one rendered DDL statement, kept alongside its dialect
// and kind for the dry-run report's generated_sql.statements list
// (spec.md §6).
type SqlStatement struct {
	Dialect Dialect
	Kind    string // "enum" | "table" | "fk" | "add_column"
	SQL     string
	Params  []any
}

// SchemaAction names one schema operation for the dry-run report's
// schema.actions list, independent of the rendered SQL text.
type SchemaAction struct {
	Kind   string // mirrors SqlStatement.Kind
	Target string // table or enum type name
}

// EnumDef describes one destination enum type (Postgres only; MySQL
// renders enum columns inline and never produces an EnumDef).
type EnumDef struct {
	Name   string
	Values []string
}

// ColumnDef is one destination column, derived from source
// metadata.ColumnMetadata with the entity mapping's renames applied.
type ColumnDef struct {
	Name            string
	Type            value.DataType
	Nullable        bool
	MaxLength       *int
	Precision       *int
	Scale           *int
	IsPrimary       bool
	IsAutoIncrement bool
	EnumValues      []string
}

// TableDef is one destination table to create.
type TableDef struct {
	Name    string
	Columns []ColumnDef
}

// FKDef is one destination foreign key, applied after every table exists.
type FKDef struct {
	Table      string
	Column     string
	RefTable   string
	RefColumn  string
}

// AddColumnOp is an ADD COLUMN against a destination table that already
// exists, emitted when mapped_columns_only=false introduces a column the
// destination doesn't yet carry (original_source/'s create_cols step).
type AddColumnOp struct {
	Table  string
	Column ColumnDef
}

// Plan accumulates the three ordered query sets plus add-column ops.
// Zero value is usable; use Build to populate one from a metadata graph.
type Plan struct {
	Dialect     Dialect
	enums       []EnumDef
	tables      []TableDef
	fks         []FKDef
	addColumns  []AddColumnOp
}

func New(dialect Dialect) *Plan { return &Plan{Dialect: dialect} }

func (p *Plan) AddEnumDef(e EnumDef)         { p.enums = append(p.enums, e) }
func (p *Plan) AddTableDef(t TableDef)       { p.tables = append(p.tables, t) }
func (p *Plan) AddFKDef(fk FKDef)            { p.fks = append(p.fks, fk) }
func (p *Plan) AddColumnOp(op AddColumnOp)   { p.addColumns = append(p.addColumns, op) }

// Build walks every table in graph, applies the entity/field mapping and
// mapped_columns_only filtering, and produces the ordered plan. existing
// reports which destination tables are already present (nil or empty
// means a from-scratch destination, so CreateTables governs everything).
func Build(graph *metadata.Graph, mapping *plan.EntityMapping, existing map[string]bool, dialect Dialect, settings plan.Settings) (*Plan, error) {
	p := New(dialect)
	if !settings.InferSchema {
		return p, nil
	}

	seenEnumTypes := map[string]bool{}

	for _, t := range graph.Tables {
		destName := mapping.ResolveEntity(t.Name)
		targetFields := map[string]bool(nil)
		if settings.MappedColumnsOnly {
			targetFields = mapping.TargetFieldNames(t.Name)
		}

		var cols []ColumnDef
		for _, name := range sortedColumnNames(t) {
			cm := t.Columns[name]
			if targetFields != nil && !targetFields[strings.ToLower(mapping.Resolve(t.Name, name))] {
				continue
			}
			cd := ColumnDef{
				Name:            mapping.Resolve(t.Name, name),
				Type:            cm.Type,
				Nullable:        cm.Nullable,
				MaxLength:       cm.MaxLength,
				Precision:       cm.Precision,
				Scale:           cm.Scale,
				IsPrimary:       cm.IsPrimary,
				IsAutoIncrement: cm.IsAutoIncrement,
				EnumValues:      cm.EnumValues,
			}
			cols = append(cols, cd)

			if cm.Type.Kind() == value.Enum && dialect == DialectPostgres {
				enumName := enumTypeName(destName, cd.Name)
				if !seenEnumTypes[enumName] {
					seenEnumTypes[enumName] = true
					p.AddEnumDef(EnumDef{Name: enumName, Values: cm.EnumValues})
				}
			}
		}

		tableExists := existing != nil && existing[destName]
		switch {
		case !tableExists && settings.CreateTables:
			p.AddTableDef(TableDef{Name: destName, Columns: cols})
		case tableExists && settings.CreateColumns && !settings.MappedColumnsOnly:
			// Per-column existence on the destination isn't known without a
			// live describe; every mapped column is offered as an ADD
			// COLUMN candidate and the adapter's "IF NOT EXISTS" (or
			// equivalent idempotent DDL) absorbs already-present ones.
			for _, cd := range cols {
				p.AddColumnOp(AddColumnOp{Table: destName, Column: cd})
			}
		}

		if settings.IgnoreConstraints {
			continue
		}
		for _, fk := range t.ForeignKeys {
			refTable := mapping.ResolveEntity(fk.Table)
			p.AddFKDef(FKDef{
				Table:     destName,
				Column:    destCol(mapping, t.Name, fkColumnFor(t, fk)),
				RefTable:  refTable,
				RefColumn: destCol(mapping, fk.Table, fk.Column),
			})
		}
	}

	return p, nil
}

func destCol(mapping *plan.EntityMapping, entity, col string) string {
	if col == "" {
		return ""
	}
	return mapping.Resolve(entity, col)
}

// fkColumnFor finds the column name on t whose FKTarget matches fk.
func fkColumnFor(t *metadata.TableMetadata, fk metadata.FKRef) string {
	for name, cm := range t.Columns {
		if cm.FKTarget != nil && cm.FKTarget.Table == fk.Table && cm.FKTarget.Column == fk.Column {
			return name
		}
	}
	return ""
}

func sortedColumnNames(t *metadata.TableMetadata) []string {
	names := make([]string, 0, len(t.Columns))
	for n := range t.Columns {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return t.Columns[names[i]].Ordinal < t.Columns[names[j]].Ordinal })
	return names
}

func enumTypeName(table, column string) string {
	return strings.ToLower(table) + "_" + strings.ToLower(column) + "_enum"
}

// CheckPrecision rejects a NUMERIC/DECIMAL column whose destination
// precision/scale is narrower than the source's — the resolved semantics
// for the precision/scale Open Question (DESIGN.md): destination must be
// able to hold every value the source can produce.
func CheckPrecision(table string, src, dest ColumnDef) error {
	if src.Type.Kind() != value.Decimal {
		return nil
	}
	if src.Precision == nil || dest.Precision == nil {
		return nil
	}
	if *dest.Precision < *src.Precision {
		return kernelerr.Settings(fmt.Sprintf("%s.%s: destination precision %d is narrower than source precision %d", table, src.Name, *dest.Precision, *src.Precision))
	}
	if src.Scale != nil && dest.Scale != nil && *dest.Scale < *src.Scale {
		return kernelerr.Settings(fmt.Sprintf("%s.%s: destination scale %d is narrower than source scale %d", table, src.Name, *dest.Scale, *src.Scale))
	}
	return nil
}

// EnumQueries renders CREATE TYPE statements. Always first, per the
// enum -> table -> fk ordering invariant (spec.md §4.8/§8#4).
func (p *Plan) EnumQueries() []SqlStatement {
	out := make([]SqlStatement, 0, len(p.enums))
	for _, e := range p.enums {
		out = append(out, SqlStatement{Dialect: p.Dialect, Kind: "enum", SQL: renderCreateEnum(e, p.Dialect)})
	}
	return out
}

// TableQueries renders CREATE TABLE statements, second in ordering.
func (p *Plan) TableQueries() []SqlStatement {
	out := make([]SqlStatement, 0, len(p.tables))
	for _, t := range p.tables {
		out = append(out, SqlStatement{Dialect: p.Dialect, Kind: "table", SQL: renderCreateTable(t, p.Dialect)})
	}
	return out
}

// FKQueries renders ALTER TABLE ... ADD CONSTRAINT statements, last in
// ordering so every referenced table exists first.
func (p *Plan) FKQueries() []SqlStatement {
	out := make([]SqlStatement, 0, len(p.fks))
	for _, fk := range p.fks {
		out = append(out, SqlStatement{Dialect: p.Dialect, Kind: "fk", SQL: renderAddForeignKey(fk)})
	}
	return out
}

// AddColumnQueries renders ALTER TABLE ... ADD COLUMN statements for
// pre-existing destination tables.
func (p *Plan) AddColumnQueries() []SqlStatement {
	out := make([]SqlStatement, 0, len(p.addColumns))
	for _, op := range p.addColumns {
		out = append(out, SqlStatement{Dialect: p.Dialect, Kind: "add_column", SQL: renderAddColumn(op, p.Dialect)})
	}
	return out
}

// Actions summarizes every statement as a SchemaAction, in emission
// order, for the dry-run report's schema.actions list.
func (p *Plan) Actions() []SchemaAction {
	var out []SchemaAction
	for _, e := range p.enums {
		out = append(out, SchemaAction{Kind: "enum", Target: e.Name})
	}
	for _, t := range p.tables {
		out = append(out, SchemaAction{Kind: "table", Target: t.Name})
	}
	for _, op := range p.addColumns {
		out = append(out, SchemaAction{Kind: "add_column", Target: op.Table + "." + op.Column.Name})
	}
	for _, fk := range p.fks {
		out = append(out, SchemaAction{Kind: "fk", Target: fk.Table})
	}
	return out
}

// Statements returns every rendered statement in enum -> table ->
// add_column -> fk order, the order Apply executes them in.
func (p *Plan) Statements() []SqlStatement {
	var out []SqlStatement
	out = append(out, p.EnumQueries()...)
	out = append(out, p.TableQueries()...)
	out = append(out, p.AddColumnQueries()...)
	out = append(out, p.FKQueries()...)
	return out
}

// Apply executes every statement against dest in order, failing closed:
// the first error stops application immediately with no rollback of
// already-executed statements (spec.md §4.8/§7).
func (p *Plan) Apply(ctx context.Context, dest adapter.SqlAdapter) error {
	for _, stmt := range p.Statements() {
		if err := dest.Execute(ctx, stmt.SQL); err != nil {
			return kernelerr.Db(kernelerr.DbDriver, fmt.Sprintf("apply schema (%s)", stmt.Kind), err)
		}
	}
	return nil
}
