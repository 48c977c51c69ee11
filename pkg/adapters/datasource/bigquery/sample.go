package bigquery

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	bq "cloud.google.com/go/bigquery"
	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

// partitionIDRe matches the partition decorators BigQuery produces for
// time and integer-range partitioning.
var partitionIDRe = regexp.MustCompile(`^[0-9]{4,12}$`)

// PartitionInfo combines table metadata with INFORMATION_SCHEMA.PARTITIONS
// statistics, newest partitions first.
func (h *Handler) PartitionInfo(ctx context.Context, schema, table string, maxPartitions int) (*models.PartitionInfo, error) {
	md, err := h.metadata(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if md.TimePartitioning == nil && md.RangePartitioning == nil {
		return nil, nil
	}

	info := &models.PartitionInfo{IsPartitioned: true}
	if md.TimePartitioning != nil {
		info.PartitionType = string(md.TimePartitioning.Type)
		info.PartitionColumn = md.TimePartitioning.Field
	} else {
		info.PartitionType = "RANGE"
		info.PartitionColumn = md.RangePartitioning.Field
	}
	if md.Clustering != nil {
		info.ClusteringFields = md.Clustering.Fields
	}

	query := fmt.Sprintf(`
		SELECT partition_id, total_rows, total_logical_bytes
		FROM `+"`%s.%s.INFORMATION_SCHEMA.PARTITIONS`"+`
		WHERE table_name = @tbl AND partition_id IS NOT NULL AND partition_id NOT IN ('__NULL__', '__UNPARTITIONED__')
		ORDER BY partition_id DESC
		LIMIT %d`, h.projectID, schema, maxPartitions)
	rows, err := h.runQuery(ctx, query, []bq.QueryParameter{{Name: "tbl", Value: table}})
	if err != nil {
		h.logger.Debug("partition statistics unavailable", zap.Error(err))
		return info, nil
	}

	for _, r := range rows {
		stat := models.PartitionStat{}
		if id, ok := r["partition_id"].(string); ok {
			stat.PartitionID = id
		}
		if n, ok := r["total_rows"].(int64); ok {
			stat.RowCount = n
		}
		if b, ok := r["total_logical_bytes"].(int64); ok {
			stat.ByteSize = b
		}
		info.AvailablePartitions = append(info.AvailablePartitions, stat)
	}
	return info, nil
}

// Sample draws partition-aware samples from the newest non-empty
// partitions, falling back to a cost-checked TABLESAMPLE for unpartitioned
// tables.
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

	maxParts := opts.MaxPartitions
	if maxParts <= 0 {
		maxParts = opts.Count
	}
	partInfo, err := h.PartitionInfo(ctx, schema, table, maxParts)
	if err != nil {
		return nil, err
	}
	partitioned := partInfo != nil && len(partInfo.AvailablePartitions) > 0

	strategy := datasource.ChooseStrategy(opts, rowCount, partitioned)

	var (
		rows   []map[string]any
		method models.SamplingMethod
	)

	switch strategy {
	case models.SamplingFull:
		rows, err = h.runChecked(ctx, fmt.Sprintf(
			"SELECT * FROM %s LIMIT %d", h.tableRef(schema, table), opts.Budget()), nil)
		method = models.SamplingFull

	case models.SamplingPartitionAware:
		rows, err = h.samplePartitions(ctx, schema, table, partInfo, opts)
		method = models.SamplingPartitionAware

	default:
		// TABLESAMPLE gives cheap pseudo-random coverage without a full
		// scan; the percentage targets roughly double the budget.
		percent := float64(opts.Budget()*2) / float64(rowCount) * 100
		if percent > 100 {
			percent = 100
		}
		if percent < 0.01 {
			percent = 0.01
		}
		rows, err = h.runChecked(ctx, fmt.Sprintf(
			"SELECT * FROM %s TABLESAMPLE SYSTEM (%.4f PERCENT) LIMIT %d",
			h.tableRef(schema, table), percent, opts.Budget()), nil)
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

func (h *Handler) samplePartitions(ctx context.Context, schema, table string, info *models.PartitionInfo, opts datasource.SampleOptions) ([]map[string]any, error) {
	parts := make([]models.PartitionStat, 0, len(info.AvailablePartitions))
	for _, p := range info.AvailablePartitions {
		if p.RowCount > 0 && partitionIDRe.MatchString(p.PartitionID) {
			parts = append(parts, p)
		}
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartitionID > parts[j].PartitionID })
	if len(parts) > opts.Count {
		parts = parts[:opts.Count]
	}

	var rows []map[string]any
	for _, p := range parts {
		query := fmt.Sprintf("SELECT * FROM `%s.%s.%s$%s` LIMIT %d",
			h.projectID, schema, table, p.PartitionID, opts.Size)
		batch, err := h.runChecked(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
	}
	return rows, nil
}
