package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/logging"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

const (
	maxPoolConns    = 5
	maxIdleConns    = 2
	connMaxIdleTime = 5 * time.Minute
	queryTimeout    = 30 * time.Second
	distinctCap     = 100
	// probe one past the stratum ceiling to detect disqualification
	strataProbeLimit = 11
)

// PartitionDialect is implemented by dialects whose engine partitions
// natively and exposes partition statistics through its catalog.
type PartitionDialect interface {
	// Partitions returns: partition_id, row_count, byte_size, newest first.
	Partitions(schema, table string, limit int) Query
	// PartitionColumn returns: partition_column, partition_type.
	PartitionColumn(schema, table string) Query
}

// Handler implements the datasource capability set over database/sql.
type Handler struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

var _ datasource.Handler = (*Handler)(nil)

// Open builds the DSN, opens a bounded pool, and returns the handler. The
// connection is not dialed until first use.
func Open(spec *models.ConnectionSpec, secret string, d Dialect, logger *zap.Logger) (*Handler, error) {
	dsn, err := d.DSN(spec, secret)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConnectionFailed,
			fmt.Sprintf("open %s connection %q", d.Engine(), spec.Name), err)
	}
	db.SetMaxOpenConns(maxPoolConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	logger.Debug("pool opened",
		zap.String("engine", string(d.Engine())),
		zap.String("connection", spec.Name),
		zap.String("dsn", logging.RedactDSN(dsn)))

	return &Handler{
		db:      db,
		dialect: d,
		logger:  logger.Named("datasource." + string(d.Engine())),
	}, nil
}

func (h *Handler) Engine() models.Engine { return h.dialect.Engine() }

func (h *Handler) Close() error { return h.db.Close() }

// queryRows translates canonical placeholders and runs the query under the
// per-query timeout.
func (h *Handler) queryRows(ctx context.Context, q Query) (*sql.Rows, context.CancelFunc, error) {
	text, args, err := sqlsafe.Translate(q.SQL, h.dialect.ParamStyle(), q.Params)
	if err != nil {
		return nil, nil, err
	}
	for i, a := range args {
		if na, ok := a.(sqlsafe.NamedArg); ok {
			args[i] = sql.Named(na.Name, na.Value)
		}
	}

	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	rows, err := h.db.QueryContext(qctx, text, args...)
	if err != nil {
		cancel()
		return nil, nil, apperrors.Wrap(apperrors.KindConnectionFailed,
			fmt.Sprintf("query failed: %s", logging.RedactSQL(text)), err)
	}
	return rows, cancel, nil
}

// queryStrings runs a query and collects its first column as strings.
func (h *Handler) queryStrings(ctx context.Context, q Query) ([]string, error) {
	rows, cancel, err := h.queryRows(ctx, q)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v sql.NullString
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v.Valid {
			out = append(out, v.String)
		}
	}
	return out, rows.Err()
}

func (h *Handler) TestConnection(ctx context.Context) (*datasource.TestResult, error) {
	start := time.Now()

	pctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	if err := h.db.PingContext(pctx); err != nil {
		return nil, apperrors.Wrap(apperrors.KindConnectionFailed, "ping failed", err)
	}

	result := &datasource.TestResult{OK: true, LatencyMS: time.Since(start).Milliseconds()}

	if vq := h.dialect.Version(); vq.SQL != "" {
		if versions, err := h.queryStrings(ctx, vq); err == nil && len(versions) > 0 {
			result.ServerVersion = versions[0]
		}
	}
	return result, nil
}

func (h *Handler) ListSchemas(ctx context.Context) ([]string, error) {
	schemas, err := h.queryStrings(ctx, h.dialect.ListSchemas())
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
	tables, err := h.queryStrings(ctx, h.dialect.ListTables(schema))
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

	rows, cancel, err := h.queryRows(ctx, h.dialect.Columns(schema, table))
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer rows.Close()

	var cols []models.ColumnSchema
	ordinal := 0
	for rows.Next() {
		var (
			name, dataType string
			nullable       any
			numPrec        sql.NullInt64
			numScale       sql.NullInt64
			charLen        sql.NullInt64
			comment        sql.NullString
		)
		if err := rows.Scan(&name, &dataType, &nullable, &numPrec, &numScale, &charLen, &comment); err != nil {
			return nil, err
		}
		ordinal++
		col := models.ColumnSchema{
			Name:            name,
			DataType:        dataType,
			Nullable:        datasource.TruthyNullable(nullable),
			Comment:         comment.String,
			OrdinalPosition: ordinal,
		}
		if numPrec.Valid {
			p := int(numPrec.Int64)
			col.NumericPrecision = &p
		}
		if numScale.Valid {
			s := int(numScale.Int64)
			col.NumericScale = &s
		}
		if charLen.Valid {
			l := charLen.Int64
			col.CharMaxLength = &l
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

	iq := h.dialect.Indexes(schema, table)
	if iq.SQL == "" {
		return nil, nil
	}
	rows, cancel, err := h.queryRows(ctx, iq)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer rows.Close()

	var order []string
	byName := map[string]*models.IndexInfo{}
	for rows.Next() {
		var (
			name, column       string
			isUnique, isPrimary any
		)
		if err := rows.Scan(&name, &column, &isUnique, &isPrimary); err != nil {
			return nil, err
		}
		idx, ok := byName[name]
		if !ok {
			idx = &models.IndexInfo{
				Name:     name,
				IsUnique: datasource.TruthyNullable(isUnique),
				IsPK:     datasource.TruthyNullable(isPrimary),
			}
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

func (h *Handler) Constraints(ctx context.Context, schema, table string) (*models.Constraints, error) {
	if err := sqlsafe.CheckIdentifiers("identifier", schema, table); err != nil {
		return nil, err
	}

	out := &models.Constraints{}

	if pq := h.dialect.PrimaryKey(schema, table); pq.SQL != "" {
		pk, err := h.queryStrings(ctx, pq)
		if err != nil {
			return nil, err
		}
		out.PrimaryKey = pk
	}

	if err := h.collectForeignKeys(ctx, schema, table, out); err != nil {
		return nil, err
	}
	if err := h.collectUnique(ctx, schema, table, out); err != nil {
		return nil, err
	}

	if cq := h.dialect.CheckConstraints(schema, table); cq.SQL != "" {
		rows, cancel, err := h.queryRows(ctx, cq)
		if err != nil {
			return nil, err
		}
		defer cancel()
		defer rows.Close()
		for rows.Next() {
			var name, expr sql.NullString
			if err := rows.Scan(&name, &expr); err != nil {
				return nil, err
			}
			out.Checks = append(out.Checks, models.CheckConstraint{
				Name:       name.String,
				Expression: expr.String,
			})
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (h *Handler) collectForeignKeys(ctx context.Context, schema, table string, out *models.Constraints) error {
	fq := h.dialect.ForeignKeys(schema, table)
	if fq.SQL == "" {
		return nil
	}
	rows, cancel, err := h.queryRows(ctx, fq)
	if err != nil {
		return err
	}
	defer cancel()
	defer rows.Close()

	var order []string
	byName := map[string]*models.ForeignKey{}
	for rows.Next() {
		var name, column, refTable, refColumn string
		var onDelete sql.NullString
		if err := rows.Scan(&name, &column, &refTable, &refColumn, &onDelete); err != nil {
			return err
		}
		fk, ok := byName[name]
		if !ok {
			fk = &models.ForeignKey{Name: name, ReferencedTable: refTable, OnDelete: onDelete.String}
			byName[name] = fk
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, column)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refColumn)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, name := range order {
		out.ForeignKeys = append(out.ForeignKeys, *byName[name])
	}
	return nil
}

func (h *Handler) collectUnique(ctx context.Context, schema, table string, out *models.Constraints) error {
	uq := h.dialect.UniqueConstraints(schema, table)
	if uq.SQL == "" {
		return nil
	}
	rows, cancel, err := h.queryRows(ctx, uq)
	if err != nil {
		return err
	}
	defer cancel()
	defer rows.Close()

	var order []string
	byName := map[string]*models.UniqueConstraint{}
	for rows.Next() {
		var name, column string
		if err := rows.Scan(&name, &column); err != nil {
			return err
		}
		uc, ok := byName[name]
		if !ok {
			uc = &models.UniqueConstraint{Name: name}
			byName[name] = uc
			order = append(order, name)
		}
		uc.Columns = append(uc.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, name := range order {
		out.Unique = append(out.Unique, *byName[name])
	}
	return nil
}

func (h *Handler) RowCount(ctx context.Context, schema, table string, estimate bool) (int64, error) {
	if err := sqlsafe.CheckIdentifiers("identifier", schema, table); err != nil {
		return 0, err
	}

	if estimate {
		if eq := h.dialect.EstimatedRowCount(schema, table); eq.SQL != "" {
			if n, err := h.queryInt(ctx, eq); err == nil && n >= 0 {
				return n, nil
			}
		}
	}

	qualified := qualify(h.dialect, schema, table)
	return h.queryInt(ctx, Query{SQL: "SELECT COUNT(*) FROM " + qualified})
}

func (h *Handler) queryInt(ctx context.Context, q Query) (int64, error) {
	rows, cancel, err := h.queryRows(ctx, q)
	if err != nil {
		return 0, err
	}
	defer cancel()
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, fmt.Errorf("no rows from count query")
	}
	var v any
	if err := rows.Scan(&v); err != nil {
		return 0, err
	}
	// Some engines report estimates as floats or NULL.
	switch n := v.(type) {
	case nil:
		return -1, nil
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case []byte:
		var parsed int64
		if _, err := fmt.Sscanf(string(n), "%d", &parsed); err != nil {
			return 0, fmt.Errorf("unparseable count %q", string(n))
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("unexpected count type %T", v)
	}
}

func (h *Handler) DistinctValues(ctx context.Context, schema, table, column string, limit int) ([]string, error) {
	if err := sqlsafe.CheckIdentifiers("identifier", schema, table, column); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > distinctCap {
		limit = distinctCap
	}

	qualified := qualify(h.dialect, schema, table)
	text := h.dialect.DistinctLimit(qualified, h.dialect.QuoteIdent(column), limit)

	rows, cancel, err := h.queryRows(ctx, Query{SQL: text})
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v != nil {
			out = append(out, datasource.Stringify(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func (h *Handler) PartitionInfo(ctx context.Context, schema, table string, maxPartitions int) (*models.PartitionInfo, error) {
	pd, ok := h.dialect.(PartitionDialect)
	if !ok {
		return nil, nil
	}
	if err := sqlsafe.CheckIdentifiers("identifier", schema, table); err != nil {
		return nil, err
	}

	info := &models.PartitionInfo{}

	if cq := pd.PartitionColumn(schema, table); cq.SQL != "" {
		rows, cancel, err := h.queryRows(ctx, cq)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var column, ptype sql.NullString
			if err := rows.Scan(&column, &ptype); err != nil {
				rows.Close()
				cancel()
				return nil, err
			}
			info.PartitionColumn = column.String
			info.PartitionType = ptype.String
		}
		rows.Close()
		cancel()
	}

	rows, cancel, err := h.queryRows(ctx, pd.Partitions(schema, table, maxPartitions))
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer rows.Close()

	for rows.Next() {
		var id sql.NullString
		var rowCount, byteSize sql.NullInt64
		if err := rows.Scan(&id, &rowCount, &byteSize); err != nil {
			return nil, err
		}
		if !id.Valid {
			continue
		}
		info.AvailablePartitions = append(info.AvailablePartitions, models.PartitionStat{
			PartitionID: id.String,
			RowCount:    rowCount.Int64,
			ByteSize:    byteSize.Int64,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(info.AvailablePartitions) == 0 && info.PartitionColumn == "" {
		return nil, nil
	}
	info.IsPartitioned = true
	return info, nil
}

func (h *Handler) CheckCost(ctx context.Context, query string) (*datasource.CostCheck, error) {
	return &datasource.CostCheck{Safe: true, Rationale: "unchecked"}, nil
}
