// Package mysql adapts MySQL and MariaDB through the sqlbase handler.
package mysql

import (
	"context"
	"fmt"
	"strings"

	mysqldrv "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/adapters/datasource/sqlbase"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

const defaultPort = 3306

func init() {
	datasource.Register(models.EngineMySQL, func(ctx context.Context, spec *models.ConnectionSpec, secret string, logger *zap.Logger) (datasource.Handler, error) {
		return sqlbase.Open(spec, secret, dialect{}, logger)
	})
}

type dialect struct{}

var _ sqlbase.Dialect = dialect{}
var _ sqlbase.PartitionDialect = dialect{}

func (dialect) Engine() models.Engine { return models.EngineMySQL }
func (dialect) DriverName() string    { return "mysql" }

func (dialect) DSN(spec *models.ConnectionSpec, secret string) (string, error) {
	cfg := mysqldrv.NewConfig()
	cfg.User = spec.User
	cfg.Passwd = secret
	cfg.Net = "tcp"
	port := spec.Port
	if port == 0 {
		port = defaultPort
	}
	cfg.Addr = fmt.Sprintf("%s:%d", spec.Host, port)
	cfg.DBName = spec.Database
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func (dialect) ParamStyle() sqlsafe.ParamStyle { return sqlsafe.StyleQuestion }

func (dialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (dialect) ListSchemas() sqlbase.Query {
	return sqlbase.Query{SQL: `
		SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys')`}
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
			       numeric_precision, numeric_scale, character_maximum_length, column_comment
			FROM information_schema.columns
			WHERE table_schema = :schema AND table_name = :tbl
			ORDER BY ordinal_position`,
		Params: map[string]any{"schema": schema, "tbl": table},
	}
}

func (dialect) PrimaryKey(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT column_name FROM information_schema.key_column_usage
			WHERE table_schema = :schema AND table_name = :tbl AND constraint_name = 'PRIMARY'
			ORDER BY ordinal_position`,
		Params: map[string]any{"schema": schema, "tbl": table},
	}
}

func (dialect) ForeignKeys(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT k.constraint_name, k.column_name,
			       k.referenced_table_name, k.referenced_column_name, r.delete_rule
			FROM information_schema.key_column_usage k
			JOIN information_schema.referential_constraints r
			  ON r.constraint_schema = k.table_schema AND r.constraint_name = k.constraint_name
			WHERE k.table_schema = :schema AND k.table_name = :tbl
			  AND k.referenced_table_name IS NOT NULL
			ORDER BY k.constraint_name, k.ordinal_position`,
		Params: map[string]any{"schema": schema, "tbl": table},
	}
}

func (dialect) UniqueConstraints(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT tc.constraint_name, k.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage k
			  ON k.table_schema = tc.table_schema AND k.constraint_name = tc.constraint_name
			 AND k.table_name = tc.table_name
			WHERE tc.table_schema = :schema AND tc.table_name = :tbl
			  AND tc.constraint_type = 'UNIQUE'
			ORDER BY tc.constraint_name, k.ordinal_position`,
		Params: map[string]any{"schema": schema, "tbl": table},
	}
}

func (dialect) CheckConstraints(schema, table string) sqlbase.Query {
	// check_constraints arrived in MySQL 8.0.16; earlier servers return
	// zero rows because the view is absent from older dumps.
	return sqlbase.Query{
		SQL: `
			SELECT cc.constraint_name, cc.check_clause
			FROM information_schema.check_constraints cc
			JOIN information_schema.table_constraints tc
			  ON tc.constraint_schema = cc.constraint_schema AND tc.constraint_name = cc.constraint_name
			WHERE tc.table_schema = :schema AND tc.table_name = :tbl`,
		Params: map[string]any{"schema": schema, "tbl": table},
	}
}

func (dialect) Indexes(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT index_name, column_name, (non_unique = 0), (index_name = 'PRIMARY')
			FROM information_schema.statistics
			WHERE table_schema = :schema AND table_name = :tbl
			ORDER BY index_name, seq_in_index`,
		Params: map[string]any{"schema": schema, "tbl": table},
	}
}

func (dialect) EstimatedRowCount(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT table_rows FROM information_schema.tables
			WHERE table_schema = :schema AND table_name = :tbl`,
		Params: map[string]any{"schema": schema, "tbl": table},
	}
}

func (dialect) Version() sqlbase.Query {
	return sqlbase.Query{SQL: "SELECT VERSION()"}
}

func (dialect) SelectWindow(from string, limit int, offset int64) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d OFFSET %d", from, limit, offset)
}

func (dialect) DistinctLimit(qualified, quotedColumn string, limit int) string {
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY 1 LIMIT %d",
		quotedColumn, qualified, quotedColumn, limit)
}

func (dialect) Partitions(schema, table string, limit int) sqlbase.Query {
	return sqlbase.Query{
		SQL: fmt.Sprintf(`
			SELECT partition_name, table_rows, data_length
			FROM information_schema.partitions
			WHERE table_schema = :schema AND table_name = :tbl AND partition_name IS NOT NULL
			ORDER BY partition_ordinal_position DESC
			LIMIT %d`, limit),
		Params: map[string]any{"schema": schema, "tbl": table},
	}
}

func (dialect) PartitionColumn(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT TRIM(BOTH '` + "`" + `' FROM partition_expression), partition_method
			FROM information_schema.partitions
			WHERE table_schema = :schema AND table_name = :tbl AND partition_name IS NOT NULL
			LIMIT 1`,
		Params: map[string]any{"schema": schema, "tbl": table},
	}
}
