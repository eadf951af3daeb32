package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stanstork/stratum/internal/adapter"
	"github.com/stanstork/stratum/internal/adapter/csv"
	"github.com/stanstork/stratum/internal/adapter/mysql"
	"github.com/stanstork/stratum/internal/adapter/postgres"
	"github.com/stanstork/stratum/internal/kernelerr"
)

var (
	sourceConnStr string
	sourceFormat  string
	sourceTable   string
)

var sourceCmd = &cobra.Command{
	Use:     "source",
	Short:   "Inspect a source connection",
	GroupID: GroupPlan,
}

var sourceInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "List tables, or one table's columns and keys, on a connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sourceFormat == "csv" {
			src, err := csv.Open(sourceConnStr)
			if err != nil {
				return kernelerr.Adapter("opening csv source", err)
			}
			defer src.Close()
			for _, h := range src.Headers() {
				fmt.Println(h)
			}
			return nil
		}

		a, err := connectSQL(rootCtx, sourceFormat, sourceConnStr)
		if err != nil {
			return err
		}
		defer a.Close()

		if sourceTable == "" {
			tables, err := a.ListTables(rootCtx)
			if err != nil {
				return kernelerr.Db(kernelerr.DbIO, "listing tables", err)
			}
			for _, t := range tables {
				fmt.Println(t)
			}
			return nil
		}

		meta, err := a.FetchMetadata(rootCtx, sourceTable)
		if err != nil {
			return kernelerr.Db(kernelerr.DbIO, "fetching table metadata", err)
		}
		fmt.Printf("table %s (schema %s)\n", meta.Name, meta.Schema)
		fmt.Printf("  primary keys: %v\n", meta.PrimaryKeys)
		for name, col := range meta.Columns {
			fmt.Printf("  %-20s nullable=%-5v primary=%-5v\n", name, col.Nullable, col.IsPrimary)
		}
		for _, fk := range meta.ForeignKeys {
			fmt.Printf("  fk -> %s.%s\n", fk.Table, fk.Column)
		}
		return nil
	},
}

func init() {
	sourceCmd.AddCommand(sourceInfoCmd)
	sourceInfoCmd.Flags().StringVar(&sourceConnStr, "conn-str", "", "connection string (url/dsn/path depending on --format)")
	sourceInfoCmd.Flags().StringVar(&sourceFormat, "format", "", "postgres, mysql, or csv")
	sourceInfoCmd.Flags().StringVar(&sourceTable, "table", "", "describe this table instead of listing all tables")
	sourceInfoCmd.MarkFlagRequired("conn-str")
	sourceInfoCmd.MarkFlagRequired("format")
}

// connectSQL dials a bare connection string for the inspection
// subcommands (source info, test-conn), which operate outside of a
// full execution plan and so have no plan.Connection.Properties map to
// read from. mysql's Connect also wants a database name; conn-str here
// is expected as "dsn/database" for that format.
func connectSQL(ctx context.Context, format, connStr string) (adapter.SqlAdapter, error) {
	switch format {
	case "postgres", "postgresql":
		return postgres.Connect(ctx, connStr)
	case "mysql":
		database := connStr[strings.LastIndex(connStr, "/")+1:]
		if i := strings.IndexByte(database, '?'); i >= 0 {
			database = database[:i]
		}
		return mysql.Connect(ctx, connStr, database)
	default:
		return nil, kernelerr.Adapter("unsupported format", fmt.Errorf("format %q", format))
	}
}
