// Package duckdb adapts DuckDB files through the sqlbase handler.
package duckdb

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb/v2"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/adapters/datasource/sqlbase"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

func init() {
	datasource.Register(models.EngineDuckDB, func(ctx context.Context, spec *models.ConnectionSpec, secret string, logger *zap.Logger) (datasource.Handler, error) {
		return sqlbase.Open(spec, secret, dialect{}, logger)
	})
}

type dialect struct{}

var _ sqlbase.Dialect = dialect{}

func (dialect) Engine() models.Engine { return models.EngineDuckDB }
func (dialect) DriverName() string    { return "duckdb" }

func (dialect) DSN(spec *models.ConnectionSpec, secret string) (string, error) {
	path := spec.Path
	if path == "" {
		path = spec.Database
	}
	if path == "" {
		return "", fmt.Errorf("duckdb connection %q has no path", spec.Name)
	}
	return path + "?access_mode=read_only", nil
}

func (dialect) ParamStyle() sqlsafe.ParamStyle { return sqlsafe.StyleQuestion }

func (dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (dialect) ListSchemas() sqlbase.Query {
	return sqlbase.Query{SQL: `
		SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('information_schema', 'pg_catalog')`}
}

func (dialect) ListTables(schema string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT table_name FROM information_schema.tables
			WHERE table_schema = :schema AND table_type = 'BASE TABLE'`,
		Params: map[string]any{"schema": schema},
	}
}

func (dialect) Columns(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT column_name, data_type, is_nullable,
			       numeric_precision, numeric_scale, character_maximum_length, NULL
			FROM information_schema.columns
			WHERE table_schema = :schema AND table_name = :tbl
			ORDER BY ordinal_position`,
		Params: map[string]any{"schema": schema, "tbl": table},
	}
}

func (dialect) PrimaryKey(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT UNNEST(constraint_column_names)
			FROM duckdb_constraints()
			WHERE schema_name = :schema AND table_name = :tbl AND constraint_type = 'PRIMARY KEY'`,
		Params: map[string]any{"schema": schema, "tbl": table},
	}
}

func (dialect) ForeignKeys(schema, table string) sqlbase.Query {
	// duckdb_constraints() does not expose referenced columns; skipped.
	return sqlbase.Query{}
}

func (dialect) UniqueConstraints(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT constraint_text, UNNEST(constraint_column_names)
			FROM duckdb_constraints()
			WHERE schema_name = :schema AND table_name = :tbl AND constraint_type = 'UNIQUE'`,
		Params: map[string]any{"schema": schema, "tbl": table},
	}
}

func (dialect) CheckConstraints(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT constraint_text, constraint_text
			FROM duckdb_constraints()
			WHERE schema_name = :schema AND table_name = :tbl AND constraint_type = 'CHECK'`,
		Params: map[string]any{"schema": schema, "tbl": table},
	}
}

func (dialect) Indexes(schema, table string) sqlbase.Query {
	// duckdb_indexes() reports expressions, not column lists; skipped.
	return sqlbase.Query{}
}

func (dialect) EstimatedRowCount(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT estimated_size FROM duckdb_tables()
			WHERE schema_name = :schema AND table_name = :tbl`,
		Params: map[string]any{"schema": schema, "tbl": table},
	}
}

func (dialect) Version() sqlbase.Query {
	return sqlbase.Query{SQL: "SELECT 'DuckDB ' || version()"}
}

func (dialect) SelectWindow(from string, limit int, offset int64) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", from, limit, offset)
}

func (dialect) DistinctLimit(qualified, quotedColumn string, limit int) string {
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY 1 LIMIT %d",
		quotedColumn, qualified, quotedColumn, limit)
}
