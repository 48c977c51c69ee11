package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

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

	partInfo, err := h.PartitionInfo(ctx, schema, table, opts.MaxPartitions)
	if err != nil {
		return nil, err
	}
	partitioned := partInfo != nil && len(partInfo.AvailablePartitions) > 0

	qualified := pgx.Identifier{schema, table}.Sanitize()
	strategy := datasource.ChooseStrategy(opts, rowCount, partitioned)

	var (
		rows   []map[string]any
		method models.SamplingMethod
	)

	switch strategy {
	case models.SamplingFull:
		rows, err = h.fetchLimit(ctx, "SELECT * FROM "+qualified, opts.Budget(), nil)
		method = models.SamplingFull

	case models.SamplingPartitionAware:
		rows, err = h.samplePartitions(ctx, schema, partInfo, opts)
		method = models.SamplingPartitionAware
		if err != nil || len(rows) == 0 {
			h.logger.Debug("partition sampling fell back to random offsets", zap.Error(err))
			rows, err = h.sampleRandomOffset(ctx, qualified, rowCount, opts)
			method = models.SamplingRandomOffset
		}

	case models.SamplingStratified:
		rows, err = h.sampleStratified(ctx, qualified, columns, opts)
		method = models.SamplingStratified
		if err != nil || len(rows) == 0 {
			h.logger.Debug("stratified sampling fell back to random offsets", zap.Error(err))
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
		batch, err := h.fetchMaps(ctx, fmt.Sprintf(
			"SELECT * FROM %s LIMIT %d OFFSET %d", qualified, opts.Size, offset))
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
	}
	return rows, nil
}

func (h *Handler) sampleStratified(ctx context.Context, qualified string, columns []models.ColumnSchema, opts datasource.SampleOptions) ([]map[string]any, error) {
	candidates := datasource.StratifyCandidates(columns)
	if len(candidates) > 3 {
		candidates = candidates[:3]
	}

	for _, col := range candidates {
		quoted := pgx.Identifier{col}.Sanitize()
		values, err := h.probeDistinct(ctx, qualified, quoted)
		if err != nil {
			return nil, err
		}
		if len(values) < 2 || len(values) > 10 {
			continue
		}

		quota := datasource.StratumQuota(opts.Size, len(values))
		var rows []map[string]any
		for _, v := range values {
			batch, err := h.fetchLimit(ctx, fmt.Sprintf(
				"SELECT * FROM %s WHERE %s = $1", qualified, quoted), quota, []any{v})
			if err != nil {
				return nil, err
			}
			rows = append(rows, batch...)
		}
		return rows, nil
	}
	return nil, nil
}

// samplePartitions draws from the newest non-empty partition children.
func (h *Handler) samplePartitions(ctx context.Context, schema string, info *models.PartitionInfo, opts datasource.SampleOptions) ([]map[string]any, error) {
	var rows []map[string]any
	taken := 0
	for _, p := range info.AvailablePartitions {
		if taken >= opts.Count {
			break
		}
		if p.RowCount == 0 {
			continue
		}
		if err := sqlsafe.CheckIdentifier("partition", p.PartitionID); err != nil {
			return nil, err
		}
		child := pgx.Identifier{schema, p.PartitionID}.Sanitize()
		batch, err := h.fetchMaps(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", child, opts.Size))
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
		taken++
	}
	return rows, nil
}

func (h *Handler) probeDistinct(ctx context.Context, qualified, quotedCol string) ([]any, error) {
	rows, err := h.pool.Query(ctx, fmt.Sprintf(
		"SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL LIMIT 11", quotedCol, qualified, quotedCol))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		if v != nil {
			out = append(out, v)
		}
	}
	return out, rows.Err()
}

func (h *Handler) fetchLimit(ctx context.Context, query string, limit int, args []any) ([]map[string]any, error) {
	return h.fetchMaps(ctx, fmt.Sprintf("%s LIMIT %d", query, limit), args...)
}

func (h *Handler) fetchMaps(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := h.pool.Query(qctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		record := make(map[string]any, len(fields))
		for i, f := range fields {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			record[string(f.Name)] = v
		}
		out = append(out, record)
	}
	return out, rows.Err()
}
