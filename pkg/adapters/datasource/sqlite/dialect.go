// Package sqlite adapts file-backed SQLite databases through the sqlbase
// handler using the modernc.org driver (no cgo).
package sqlite

import (
	"context"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/adapters/datasource/sqlbase"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

func init() {
	datasource.Register(models.EngineSQLite, func(ctx context.Context, spec *models.ConnectionSpec, secret string, logger *zap.Logger) (datasource.Handler, error) {
		return sqlbase.Open(spec, secret, dialect{}, logger)
	})
}

type dialect struct{}

var _ sqlbase.Dialect = dialect{}

func (dialect) Engine() models.Engine { return models.EngineSQLite }
func (dialect) DriverName() string    { return "sqlite" }

func (dialect) DSN(spec *models.ConnectionSpec, secret string) (string, error) {
	path := spec.Path
	if path == "" {
		path = spec.Database
	}
	if path == "" {
		return "", fmt.Errorf("sqlite connection %q has no path", spec.Name)
	}
	// Read-only: the pipeline never writes to source databases.
	return fmt.Sprintf("file:%s?mode=ro", path), nil
}

func (dialect) ParamStyle() sqlsafe.ParamStyle { return sqlsafe.StyleQuestion }

func (dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (dialect) ListSchemas() sqlbase.Query {
	return sqlbase.Query{SQL: "SELECT name FROM pragma_database_list"}
}

func (dialect) ListTables(schema string) sqlbase.Query {
	return sqlbase.Query{SQL: `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`}
}

func (dialect) Columns(schema, table string) sqlbase.Query {
	// SQLite has no precision, length, or comment metadata.
	return sqlbase.Query{
		SQL: `
			SELECT name, type,
			       CASE WHEN "notnull" = 0 THEN 'YES' ELSE 'NO' END,
			       NULL, NULL, NULL, NULL
			FROM pragma_table_info(:tbl)
			ORDER BY cid`,
		Params: map[string]any{"tbl": table},
	}
}

func (dialect) PrimaryKey(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL:    `SELECT name FROM pragma_table_info(:tbl) WHERE pk > 0 ORDER BY pk`,
		Params: map[string]any{"tbl": table},
	}
}

func (dialect) ForeignKeys(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT 'fk_' || CAST(id AS TEXT), "from", "table", "to", on_delete
			FROM pragma_foreign_key_list(:tbl)
			ORDER BY id, seq`,
		Params: map[string]any{"tbl": table},
	}
}

func (dialect) UniqueConstraints(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT il.name, ii.name
			FROM pragma_index_list(:tbl) il, pragma_index_info(il.name) ii
			WHERE il."unique" = 1 AND il.origin = 'u'
			ORDER BY il.name, ii.seqno`,
		Params: map[string]any{"tbl": table},
	}
}

func (dialect) CheckConstraints(schema, table string) sqlbase.Query {
	return sqlbase.Query{}
}

func (dialect) Indexes(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT il.name, ii.name, il."unique", (il.origin = 'pk')
			FROM pragma_index_list(:tbl) il, pragma_index_info(il.name) ii
			ORDER BY il.name, ii.seqno`,
		Params: map[string]any{"tbl": table},
	}
}

func (dialect) EstimatedRowCount(schema, table string) sqlbase.Query {
	// No statistics catalog; the base handler falls back to COUNT(*).
	return sqlbase.Query{}
}

func (dialect) Version() sqlbase.Query {
	return sqlbase.Query{SQL: "SELECT 'SQLite ' || sqlite_version()"}
}

func (dialect) SelectWindow(from string, limit int, offset int64) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", from, limit, offset)
}

func (dialect) DistinctLimit(qualified, quotedColumn string, limit int) string {
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY 1 LIMIT %d",
		quotedColumn, qualified, quotedColumn, limit)
}
