package sqlbase

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

// Sample draws a bounded sample. Strategy selection follows the row count:
// small tables are read whole, larger ones stratified over a
// low-cardinality column with random-offset as the universal fallback.
func (h *Handler) Sample(ctx context.Context, schema, table string, opts datasource.SampleOptions) (*models.TableSample, error) {
	if err := sqlsafe.CheckIdentifiers("identifier", schema, table); err != nil {
		return nil, err
	}

	columns, err := h.TableSchema(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	rowCount, err := h.RowCount(ctx, schema, table, true)
	if err != nil {
		return nil, err
	}

	qualified := qualify(h.dialect, schema, table)
	strategy := datasource.ChooseStrategy(opts, rowCount, false)

	var (
		rows   []map[string]any
		method models.SamplingMethod
	)

	switch strategy {
	case models.SamplingFull:
		rows, err = h.fetchWindow(ctx, qualified, nil, opts.Budget(), 0)
		method = models.SamplingFull

	case models.SamplingStratified:
		rows, err = h.sampleStratified(ctx, qualified, columns, opts)
		method = models.SamplingStratified
		if err != nil || len(rows) == 0 {
			h.logger.Debug("stratified sampling fell back to random offsets",
				zap.String("table", table), zap.Error(err))
			rows, err = h.sampleRandomOffset(ctx, qualified, rowCount, opts)
			method = models.SamplingRandomOffset
		}

	default:
		rows, err = h.sampleRandomOffset(ctx, qualified, rowCount, opts)
		method = models.SamplingRandomOffset
	}
	if err != nil {
		return nil, err
	}

	if budget := opts.Budget(); len(rows) > budget {
		rows = rows[:budget]
	}

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}

	return &models.TableSample{Columns: names, Rows: rows, Method: method}, nil
}

func (h *Handler) sampleRandomOffset(ctx context.Context, qualified string, rowCount int64, opts datasource.SampleOptions) ([]map[string]any, error) {
	var rows []map[string]any
	for _, offset := range datasource.RandomOffsets(rowCount, opts.Size, opts.Count) {
		batch, err := h.fetchWindow(ctx, qualified, nil, opts.Size, offset)
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
	}
	return rows, nil
}

// sampleStratified probes candidate columns for low cardinality and, on the
// first qualifying one, draws a quota per stratum. Any failure surfaces to
// the caller, which falls back to random offsets.
func (h *Handler) sampleStratified(ctx context.Context, qualified string, columns []models.ColumnSchema, opts datasource.SampleOptions) ([]map[string]any, error) {
	candidates := datasource.StratifyCandidates(columns)
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	for _, col := range candidates {
		quoted := h.dialect.QuoteIdent(col)
		probe := h.dialect.DistinctLimit(qualified, quoted, strataProbeLimit)
		values, err := h.probeDistinct(ctx, probe)
		if err != nil {
			return nil, err
		}
		if len(values) < 2 || len(values) > 10 {
			continue
		}

		quota := datasource.StratumQuota(opts.Size, len(values))
		var rows []map[string]any
		for _, v := range values {
			from := fmt.Sprintf("%s WHERE %s = :stratum", qualified, quoted)
			batch, err := h.fetchWindow(ctx, from, map[string]any{"stratum": v}, quota, 0)
			if err != nil {
				return nil, err
			}
			rows = append(rows, batch...)
		}
		return rows, nil
	}

	return nil, nil
}

func (h *Handler) probeDistinct(ctx context.Context, query string) ([]any, error) {
	rows, cancel, err := h.queryRows(ctx, Query{SQL: query})
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer rows.Close()

	var out []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if v != nil {
			out = append(out, v)
		}
	}
	return out, rows.Err()
}

// fetchWindow selects limit rows from a table expression at offset. from is
// built from validated, quoted identifiers plus canonical placeholders.
func (h *Handler) fetchWindow(ctx context.Context, from string, params map[string]any, limit int, offset int64) ([]map[string]any, error) {
	text := h.dialect.SelectWindow(from, limit, offset)
	rows, cancel, err := h.queryRows(ctx, Query{SQL: text, Params: params})
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer rows.Close()

	return rowsToMaps(rows)
}

func rowsToMaps(rows *sql.Rows) ([]map[string]any, error) {
	colNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(colNames))
		ptrs := make([]any, len(colNames))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		record := make(map[string]any, len(colNames))
		for i, name := range colNames {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			record[name] = v
		}
		out = append(out, record)
	}
	return out, rows.Err()
}
