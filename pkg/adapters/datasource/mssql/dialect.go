// Package mssql adapts SQL Server through the sqlbase handler.
package mssql

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/adapters/datasource/sqlbase"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

const defaultPort = 1433

func init() {
	datasource.Register(models.EngineSQLServer, func(ctx context.Context, spec *models.ConnectionSpec, secret string, logger *zap.Logger) (datasource.Handler, error) {
		return sqlbase.Open(spec, secret, dialect{}, logger)
	})
}

type dialect struct{}

var _ sqlbase.Dialect = dialect{}

func (dialect) Engine() models.Engine { return models.EngineSQLServer }
func (dialect) DriverName() string    { return "sqlserver" }

func (dialect) DSN(spec *models.ConnectionSpec, secret string) (string, error) {
	port := spec.Port
	if port == 0 {
		port = defaultPort
	}
	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(spec.User, secret),
		Host:   fmt.Sprintf("%s:%d", spec.Host, port),
	}
	q := url.Values{}
	q.Set("database", spec.Database)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (dialect) ParamStyle() sqlsafe.ParamStyle { return sqlsafe.StyleAtName }

func (dialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (dialect) ListSchemas() sqlbase.Query {
	return sqlbase.Query{SQL: `
		SELECT s.name FROM sys.schemas s
		JOIN sys.database_principals p ON p.principal_id = s.principal_id
		WHERE s.name NOT IN ('sys', 'INFORMATION_SCHEMA', 'guest')
		  AND p.type <> 'R'`}
}

func (dialect) ListTables(schema string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT table_name FROM information_schema.tables
			WHERE table_schema = :sch AND table_type = 'BASE TABLE'`,
		Params: map[string]any{"sch": schema},
	}
}

func (dialect) Columns(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT column_name, data_type, is_nullable,
			       numeric_precision, numeric_scale, character_maximum_length, NULL
			FROM information_schema.columns
			WHERE table_schema = :sch AND table_name = :tbl
			ORDER BY ordinal_position`,
		Params: map[string]any{"sch": schema, "tbl": table},
	}
}

func (dialect) PrimaryKey(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT k.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage k
			  ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema
			WHERE tc.table_schema = :sch AND tc.table_name = :tbl
			  AND tc.constraint_type = 'PRIMARY KEY'
			ORDER BY k.ordinal_position`,
		Params: map[string]any{"sch": schema, "tbl": table},
	}
}

func (dialect) ForeignKeys(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT fk.name,
			       COL_NAME(fkc.parent_object_id, fkc.parent_column_id),
			       OBJECT_NAME(fk.referenced_object_id),
			       COL_NAME(fkc.referenced_object_id, fkc.referenced_column_id),
			       fk.delete_referential_action_desc
			FROM sys.foreign_keys fk
			JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
			WHERE fk.parent_object_id = OBJECT_ID(:qualified)
			ORDER BY fk.name, fkc.constraint_column_id`,
		Params: map[string]any{"qualified": schema + "." + table},
	}
}

func (dialect) UniqueConstraints(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT tc.constraint_name, k.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage k
			  ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema
			WHERE tc.table_schema = :sch AND tc.table_name = :tbl
			  AND tc.constraint_type = 'UNIQUE'
			ORDER BY tc.constraint_name, k.ordinal_position`,
		Params: map[string]any{"sch": schema, "tbl": table},
	}
}

func (dialect) CheckConstraints(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT name, definition FROM sys.check_constraints
			WHERE parent_object_id = OBJECT_ID(:qualified)`,
		Params: map[string]any{"qualified": schema + "." + table},
	}
}

func (dialect) Indexes(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT i.name, c.name, i.is_unique, i.is_primary_key
			FROM sys.indexes i
			JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
			JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
			WHERE i.object_id = OBJECT_ID(:qualified) AND i.name IS NOT NULL
			ORDER BY i.name, ic.key_ordinal`,
		Params: map[string]any{"qualified": schema + "." + table},
	}
}

func (dialect) EstimatedRowCount(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT SUM(p.rows) FROM sys.partitions p
			WHERE p.object_id = OBJECT_ID(:qualified) AND p.index_id IN (0, 1)`,
		Params: map[string]any{"qualified": schema + "." + table},
	}
}

func (dialect) Version() sqlbase.Query {
	return sqlbase.Query{SQL: "SELECT @@VERSION"}
}

func (dialect) SelectWindow(from string, limit int, offset int64) string {
	return fmt.Sprintf("SELECT * FROM %s ORDER BY (SELECT NULL) OFFSET %d ROWS FETCH NEXT %d ROWS ONLY",
		from, offset, limit)
}

func (dialect) DistinctLimit(qualified, quotedColumn string, limit int) string {
	return fmt.Sprintf("SELECT DISTINCT TOP %d %s FROM %s WHERE %s IS NOT NULL ORDER BY 1",
		limit, quotedColumn, qualified, quotedColumn)
}
