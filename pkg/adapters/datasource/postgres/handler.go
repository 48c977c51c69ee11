// Package postgres is the native PostgreSQL adapter, built on pgx pools
// rather than database/sql so partition catalogs and estimates come
// straight from pg_catalog.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

const (
	defaultPort  = 5432
	maxPoolConns = 5
	queryTimeout = 30 * time.Second
	distinctCap  = 100
)

func init() {
	datasource.Register(models.EnginePostgres, New)
}

// Handler implements the datasource capability set for PostgreSQL.
type Handler struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ datasource.Handler = (*Handler)(nil)

// New opens a bounded pgx pool for the spec.
func New(ctx context.Context, spec *models.ConnectionSpec, secret string, logger *zap.Logger) (datasource.Handler, error) {
	port := spec.Port
	if port == 0 {
		port = defaultPort
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(spec.User, secret),
		Host:   fmt.Sprintf("%s:%d", spec.Host, port),
		Path:   "/" + spec.Database,
	}

	cfg, err := pgxpool.ParseConfig(u.String())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConnectionFailed, "parse postgres config", err)
	}
	cfg.MaxConns = maxPoolConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConnectionFailed,
			fmt.Sprintf("open postgres connection %q", spec.Name), err)
	}

	return &Handler{
		pool:   pool,
		logger: logger.Named("datasource.postgres"),
	}, nil
}

func (h *Handler) Engine() models.Engine { return models.EnginePostgres }

func (h *Handler) Close() error {
	h.pool.Close()
	return nil
}

func (h *Handler) TestConnection(ctx context.Context) (*datasource.TestResult, error) {
	start := time.Now()

	pctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var version string
	if err := h.pool.QueryRow(pctx, "SELECT version()").Scan(&version); err != nil {
		return nil, apperrors.Wrap(apperrors.KindConnectionFailed, "ping failed", err)
	}

	return &datasource.TestResult{
		OK:            true,
		LatencyMS:     time.Since(start).Milliseconds(),
		ServerVersion: version,
	}, nil
}

func (h *Handler) ListSchemas(ctx context.Context) ([]string, error) {
	rows, err := h.pool.Query(ctx, `
		SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
		  AND schema_name NOT LIKE 'pg_toast%'
		  AND schema_name NOT LIKE 'pg_temp%'`)
	if err != nil {
		return nil, err
	}
	schemas, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}
	sort.Strings(schemas)
	return schemas, nil
}

func (h *Handler) ListTables(ctx context.Context, schema string) ([]string, error) {
	if err := sqlsafe.CheckIdentifier("schema", schema); err != nil {
		return nil, err
	}
	rows, err := h.pool.Query(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'`, schema)
	if err != nil {
		return nil, err
	}
	tables, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}
	sort.Strings(tables)
	return tables, nil
}

func (h *Handler) TableSchema(ctx context.Context, schema, table string) ([]models.ColumnSchema, error) {
	if err := sqlsafe.CheckIdentifiers("identifier", schema, table); err != nil {
		return nil, err
	}

	rows, err := h.pool.Query(ctx, `
		SELECT c.column_name, c.data_type, c.is_nullable = 'YES',
		       c.numeric_precision, c.numeric_scale, c.character_maximum_length,
		       col_description(format('%I.%I', c.table_schema, c.table_name)::regclass, c.ordinal_position),
		       c.ordinal_position
		FROM information_schema.columns c
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []models.ColumnSchema
	for rows.Next() {
		var (
			col     models.ColumnSchema
			prec    *int
			scale   *int
			charLen *int64
			comment *string
		)
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable,
			&prec, &scale, &charLen, &comment, &col.OrdinalPosition); err != nil {
			return nil, err
		}
		col.NumericPrecision = prec
		col.NumericScale = scale
		col.CharMaxLength = charLen
		if comment != nil {
			col.Comment = *comment
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, apperrors.New(apperrors.KindNotFound,
			fmt.Sprintf("table %s.%s not found", schema, table))
	}
	return cols, nil
}

func (h *Handler) Indexes(ctx context.Context, schema, table string) ([]models.IndexInfo, error) {
	if err := sqlsafe.CheckIdentifiers("identifier", schema, table); err != nil {
		return nil, err
	}

	rows, err := h.pool.Query(ctx, `
		SELECT i.relname, a.attname, ix.indisunique, ix.indisprimary
		FROM pg_class t
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN pg_index ix ON ix.indrelid = t.oid
		JOIN pg_class i ON i.oid = ix.indexrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE n.nspname = $1 AND t.relname = $2
		ORDER BY i.relname, array_position(ix.indkey, a.attnum)`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var order []string
	byName := map[string]*models.IndexInfo{}
	for rows.Next() {
		var name, column string
		var isUnique, isPrimary bool
		if err := rows.Scan(&name, &column, &isUnique, &isPrimary); err != nil {
			return nil, err
		}
		idx, ok := byName[name]
		if !ok {
			idx = &models.IndexInfo{Name: name, IsUnique: isUnique, IsPK: isPrimary}
			byName[name] = idx
			order = append(order, name)
		}
		idx.Columns = append(idx.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.IndexInfo, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out, nil
}

func (h *Handler) RowCount(ctx context.Context, schema, table string, estimate bool) (int64, error) {
	if err := sqlsafe.CheckIdentifiers("identifier", schema, table); err != nil {
		return 0, err
	}

	if estimate {
		var est int64
		err := h.pool.QueryRow(ctx, `
			SELECT reltuples::bigint
			FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace
			WHERE n.nspname = $1 AND c.relname = $2`, schema, table).Scan(&est)
		if err == nil && est >= 0 {
			return est, nil
		}
	}

	var exact int64
	qualified := pgx.Identifier{schema, table}.Sanitize()
	if err := h.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+qualified).Scan(&exact); err != nil {
		return 0, err
	}
	return exact, nil
}

func (h *Handler) DistinctValues(ctx context.Context, schema, table, column string, limit int) ([]string, error) {
	if err := sqlsafe.CheckIdentifiers("identifier", schema, table, column); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > distinctCap {
		limit = distinctCap
	}

	qualified := pgx.Identifier{schema, table}.Sanitize()
	col := pgx.Identifier{column}.Sanitize()
	rows, err := h.pool.Query(ctx, fmt.Sprintf(
		"SELECT %s::text FROM (SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL ORDER BY 1 LIMIT %d) _d",
		col, col, qualified, col, limit))
	if err != nil {
		return nil, err
	}
	values, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}
	sort.Strings(values)
	return values, nil
}

func (h *Handler) CheckCost(ctx context.Context, query string) (*datasource.CostCheck, error) {
	return &datasource.CostCheck{Safe: true, Rationale: "unchecked"}, nil
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v *string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v != nil {
			out = append(out, *v)
		}
	}
	return out, rows.Err()
}
