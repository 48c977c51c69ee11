// Package oracle adapts Oracle databases through the sqlbase handler using
// the pure-Go go-ora driver.
package oracle

import (
	"context"
	"fmt"
	"strings"

	go_ora "github.com/sijms/go-ora/v2"
	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/adapters/datasource/sqlbase"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

const defaultPort = 1521

func init() {
	datasource.Register(models.EngineOracle, func(ctx context.Context, spec *models.ConnectionSpec, secret string, logger *zap.Logger) (datasource.Handler, error) {
		return sqlbase.Open(spec, secret, dialect{}, logger)
	})
}

type dialect struct{}

var _ sqlbase.Dialect = dialect{}

func (dialect) Engine() models.Engine { return models.EngineOracle }
func (dialect) DriverName() string    { return "oracle" }

func (dialect) DSN(spec *models.ConnectionSpec, secret string) (string, error) {
	port := spec.Port
	if port == 0 {
		port = defaultPort
	}
	return go_ora.BuildUrl(spec.Host, port, spec.Database, spec.User, secret, nil), nil
}

func (dialect) ParamStyle() sqlsafe.ParamStyle { return sqlsafe.StyleColonName }

func (dialect) QuoteIdent(name string) string {
	// Unquoted Oracle identifiers fold to upper case; match that so
	// quoting stays a no-op for catalogued names.
	return `"` + strings.ReplaceAll(strings.ToUpper(name), `"`, `""`) + `"`
}

func (dialect) ListSchemas() sqlbase.Query {
	return sqlbase.Query{SQL: `SELECT username FROM all_users WHERE oracle_maintained = 'N'`}
}

func (dialect) ListTables(schema string) sqlbase.Query {
	return sqlbase.Query{
		SQL:    `SELECT table_name FROM all_tables WHERE owner = UPPER(:owner)`,
		Params: map[string]any{"owner": schema},
	}
}

func (dialect) Columns(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT c.column_name, c.data_type, c.nullable,
			       c.data_precision, c.data_scale, c.char_length, cm.comments
			FROM all_tab_columns c
			LEFT JOIN all_col_comments cm
			  ON cm.owner = c.owner AND cm.table_name = c.table_name AND cm.column_name = c.column_name
			WHERE c.owner = UPPER(:owner) AND c.table_name = UPPER(:tbl)
			ORDER BY c.column_id`,
		Params: map[string]any{"owner": schema, "tbl": table},
	}
}

func (dialect) PrimaryKey(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT acc.column_name
			FROM all_constraints ac
			JOIN all_cons_columns acc
			  ON acc.owner = ac.owner AND acc.constraint_name = ac.constraint_name
			WHERE ac.owner = UPPER(:owner) AND ac.table_name = UPPER(:tbl) AND ac.constraint_type = 'P'
			ORDER BY acc.position`,
		Params: map[string]any{"owner": schema, "tbl": table},
	}
}

func (dialect) ForeignKeys(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT ac.constraint_name, acc.column_name, rcc.table_name, rcc.column_name, ac.delete_rule
			FROM all_constraints ac
			JOIN all_cons_columns acc
			  ON acc.owner = ac.owner AND acc.constraint_name = ac.constraint_name
			JOIN all_cons_columns rcc
			  ON rcc.owner = ac.r_owner AND rcc.constraint_name = ac.r_constraint_name
			 AND rcc.position = acc.position
			WHERE ac.owner = UPPER(:owner) AND ac.table_name = UPPER(:tbl) AND ac.constraint_type = 'R'
			ORDER BY ac.constraint_name, acc.position`,
		Params: map[string]any{"owner": schema, "tbl": table},
	}
}

func (dialect) UniqueConstraints(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT ac.constraint_name, acc.column_name
			FROM all_constraints ac
			JOIN all_cons_columns acc
			  ON acc.owner = ac.owner AND acc.constraint_name = ac.constraint_name
			WHERE ac.owner = UPPER(:owner) AND ac.table_name = UPPER(:tbl) AND ac.constraint_type = 'U'
			ORDER BY ac.constraint_name, acc.position`,
		Params: map[string]any{"owner": schema, "tbl": table},
	}
}

func (dialect) CheckConstraints(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT constraint_name, search_condition_vc
			FROM all_constraints
			WHERE owner = UPPER(:owner) AND table_name = UPPER(:tbl) AND constraint_type = 'C'`,
		Params: map[string]any{"owner": schema, "tbl": table},
	}
}

func (dialect) Indexes(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT ai.index_name, aic.column_name,
			       CASE WHEN ai.uniqueness = 'UNIQUE' THEN 1 ELSE 0 END,
			       CASE WHEN ac.constraint_type = 'P' THEN 1 ELSE 0 END
			FROM all_indexes ai
			JOIN all_ind_columns aic
			  ON aic.index_owner = ai.owner AND aic.index_name = ai.index_name
			LEFT JOIN all_constraints ac
			  ON ac.owner = ai.table_owner AND ac.index_name = ai.index_name
			WHERE ai.table_owner = UPPER(:owner) AND ai.table_name = UPPER(:tbl)
			ORDER BY ai.index_name, aic.column_position`,
		Params: map[string]any{"owner": schema, "tbl": table},
	}
}

func (dialect) EstimatedRowCount(schema, table string) sqlbase.Query {
	return sqlbase.Query{
		SQL: `
			SELECT num_rows FROM all_tables
			WHERE owner = UPPER(:owner) AND table_name = UPPER(:tbl)`,
		Params: map[string]any{"owner": schema, "tbl": table},
	}
}

func (dialect) Version() sqlbase.Query {
	return sqlbase.Query{SQL: `SELECT banner FROM v$version WHERE ROWNUM = 1`}
}

func (dialect) SelectWindow(from string, limit int, offset int64) string {
	return fmt.Sprintf("SELECT * FROM %s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", from, offset, limit)
}

func (dialect) DistinctLimit(qualified, quotedColumn string, limit int) string {
	return fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY 1 FETCH FIRST %d ROWS ONLY",
		quotedColumn, qualified, quotedColumn, limit)
}
