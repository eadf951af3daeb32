package kernel

import (
	"context"
	"fmt"

	"github.com/stanstork/stratum/internal/adapter"
	"github.com/stanstork/stratum/internal/adapter/csv"
	"github.com/stanstork/stratum/internal/adapter/mysql"
	"github.com/stanstork/stratum/internal/adapter/postgres"
	"github.com/stanstork/stratum/internal/kernelerr"
	"github.com/stanstork/stratum/internal/plan"
)

// endpoint bundles whatever a connection resolves to: a SqlAdapter
// (postgres/mysql, usable as both source and destination) or a CSV
// Source (source-only, spec.md Non-goals excludes a file destination).
type endpoint struct {
	sql adapter.SqlAdapter
	csv *csv.Source
}

func (e endpoint) isSQL() bool { return e.sql != nil }

// connect opens conn per its driver, reading connection properties the
// way the teacher's config layer names them (spec.md §6 "connection ->
// driver, properties").
func connect(ctx context.Context, conn plan.Connection) (endpoint, error) {
	switch conn.Driver {
	case "postgres", "postgresql":
		url, ok := conn.Properties["url"]
		if !ok {
			return endpoint{}, kernelerr.Adapter("missing postgres connection property", fmt.Errorf("connection %q: \"url\" is required", conn.Name))
		}
		a, err := postgres.Connect(ctx, url)
		if err != nil {
			return endpoint{}, err
		}
		return endpoint{sql: a}, nil

	case "mysql":
		dsn, ok := conn.Properties["dsn"]
		if !ok {
			return endpoint{}, kernelerr.Adapter("missing mysql connection property", fmt.Errorf("connection %q: \"dsn\" is required", conn.Name))
		}
		a, err := mysql.Connect(ctx, dsn, conn.Properties["database"])
		if err != nil {
			return endpoint{}, err
		}
		return endpoint{sql: a}, nil

	case "csv":
		path, ok := conn.Properties["path"]
		if !ok {
			return endpoint{}, kernelerr.Adapter("missing csv connection property", fmt.Errorf("connection %q: \"path\" is required", conn.Name))
		}
		src, err := csv.Open(path)
		if err != nil {
			return endpoint{}, err
		}
		return endpoint{csv: src}, nil

	default:
		return endpoint{}, kernelerr.Adapter("unsupported driver", fmt.Errorf("connection %q: driver %q", conn.Name, conn.Driver))
	}
}

func (e endpoint) close() error {
	switch {
	case e.sql != nil:
		return e.sql.Close()
	case e.csv != nil:
		return e.csv.Close()
	}
	return nil
}
