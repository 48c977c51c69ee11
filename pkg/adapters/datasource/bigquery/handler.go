// Package bigquery is the BigQuery adapter. Clients are long-lived and
// reused across requests; every table-scanning query passes a dry-run cost
// check before execution.
package bigquery

import (
	"context"
	"fmt"
	"sort"
	"time"

	bq "cloud.google.com/go/bigquery"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

const (
	// DefaultMaxScanBytes is the dry-run ceiling: 10 GiB.
	DefaultMaxScanBytes = int64(10) << 30

	queryTimeout = 60 * time.Second
	distinctCap  = 100
)

func init() {
	datasource.Register(models.EngineBigQuery, New)
}

// Handler implements the datasource capability set for BigQuery.
type Handler struct {
	client       *bq.Client
	projectID    string
	maxScanBytes int64
	logger       *zap.Logger
}

var _ datasource.Handler = (*Handler)(nil)

// New creates a BigQuery client for the spec's project. CredentialsFile is
// optional; without it the client uses application default credentials.
func New(ctx context.Context, spec *models.ConnectionSpec, secret string, logger *zap.Logger) (datasource.Handler, error) {
	projectID := spec.ProjectID
	if projectID == "" {
		projectID = spec.Database
	}
	if projectID == "" {
		return nil, apperrors.New(apperrors.KindValidation,
			fmt.Sprintf("bigquery connection %q has no project_id", spec.Name))
	}

	var opts []option.ClientOption
	if spec.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(spec.CredentialsFile))
	}

	client, err := bq.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConnectionFailed,
			fmt.Sprintf("open bigquery client for %q", projectID), err)
	}

	return &Handler{
		client:       client,
		projectID:    projectID,
		maxScanBytes: DefaultMaxScanBytes,
		logger:       logger.Named("datasource.bigquery"),
	}, nil
}

func (h *Handler) Engine() models.Engine { return models.EngineBigQuery }

func (h *Handler) Close() error { return h.client.Close() }

func (h *Handler) TestConnection(ctx context.Context) (*datasource.TestResult, error) {
	start := time.Now()

	it := h.client.Datasets(ctx)
	it.PageInfo().MaxSize = 1
	if _, err := it.Next(); err != nil && err != iterator.Done {
		return nil, apperrors.Wrap(apperrors.KindConnectionFailed, "list datasets failed", err)
	}

	return &datasource.TestResult{OK: true, LatencyMS: time.Since(start).Milliseconds()}, nil
}

func (h *Handler) ListSchemas(ctx context.Context) ([]string, error) {
	var out []string
	it := h.client.Datasets(ctx)
	for {
		ds, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ds.DatasetID)
	}
	sort.Strings(out)
	return out, nil
}

func (h *Handler) ListTables(ctx context.Context, schema string) ([]string, error) {
	if err := sqlsafe.CheckIdentifier("dataset", schema); err != nil {
		return nil, err
	}

	var out []string
	it := h.client.Dataset(schema).Tables(ctx)
	for {
		t, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, t.TableID)
	}
	sort.Strings(out)
	return out, nil
}

func (h *Handler) metadata(ctx context.Context, schema, table string) (*bq.TableMetadata, error) {
	if err := sqlsafe.CheckIdentifiers("identifier", schema, table); err != nil {
		return nil, err
	}
	md, err := h.client.Dataset(schema).Table(table).Metadata(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNotFound,
			fmt.Sprintf("table %s.%s metadata", schema, table), err)
	}
	return md, nil
}

func (h *Handler) TableSchema(ctx context.Context, schema, table string) ([]models.ColumnSchema, error) {
	md, err := h.metadata(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	cols := make([]models.ColumnSchema, 0, len(md.Schema))
	for i, f := range md.Schema {
		dataType := string(f.Type)
		if f.Repeated {
			dataType = "ARRAY<" + dataType + ">"
		}
		cols = append(cols, models.ColumnSchema{
			Name:            f.Name,
			DataType:        dataType,
			Nullable:        !f.Required,
			Comment:         f.Description,
			OrdinalPosition: i + 1,
		})
	}
	return cols, nil
}

// Indexes returns nil: BigQuery has no user-visible index catalog.
func (h *Handler) Indexes(ctx context.Context, schema, table string) ([]models.IndexInfo, error) {
	return nil, nil
}

// Constraints returns BigQuery's unenforced primary key, when declared.
func (h *Handler) Constraints(ctx context.Context, schema, table string) (*models.Constraints, error) {
	md, err := h.metadata(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	out := &models.Constraints{}
	if md.TableConstraints != nil && md.TableConstraints.PrimaryKey != nil {
		out.PrimaryKey = md.TableConstraints.PrimaryKey.Columns
	}
	return out, nil
}

func (h *Handler) RowCount(ctx context.Context, schema, table string, estimate bool) (int64, error) {
	md, err := h.metadata(ctx, schema, table)
	if err != nil {
		return 0, err
	}
	if estimate {
		return int64(md.NumRows), nil
	}

	rows, err := h.runQuery(ctx, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", h.tableRef(schema, table)), nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("no rows from count query")
	}
	if n, ok := rows[0]["n"].(int64); ok {
		return n, nil
	}
	return 0, fmt.Errorf("unexpected count type %T", rows[0]["n"])
}

func (h *Handler) DistinctValues(ctx context.Context, schema, table, column string, limit int) ([]string, error) {
	if err := sqlsafe.CheckIdentifiers("identifier", schema, table, column); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > distinctCap {
		limit = distinctCap
	}

	query := fmt.Sprintf("SELECT DISTINCT CAST(`%s` AS STRING) AS v FROM %s WHERE `%s` IS NOT NULL ORDER BY 1 LIMIT %d",
		column, h.tableRef(schema, table), column, limit)
	rows, err := h.runChecked(ctx, query, nil)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if s, ok := r["v"].(string); ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out, nil
}

// CheckCost dry-runs the query and rejects scans above the byte ceiling.
func (h *Handler) CheckCost(ctx context.Context, query string) (*datasource.CostCheck, error) {
	q := h.client.Query(query)
	q.DryRun = true

	job, err := q.Run(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindConnectionFailed, "dry run failed", err)
	}

	stats := job.LastStatus().Statistics
	var bytes int64
	if stats != nil {
		bytes = stats.TotalBytesProcessed
	}

	check := &datasource.CostCheck{BytesProcessed: bytes}
	if bytes > h.maxScanBytes {
		check.Safe = false
		check.Rationale = fmt.Sprintf("query would scan %d bytes, ceiling is %d", bytes, h.maxScanBytes)
		return check, nil
	}
	check.Safe = true
	check.Rationale = fmt.Sprintf("dry run: %d bytes", bytes)
	return check, nil
}

// tableRef builds a fully qualified backtick reference from validated parts.
func (h *Handler) tableRef(schema, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", h.projectID, schema, table)
}

// runChecked dry-runs first and fails with CostExceeded before scanning
// past the ceiling.
func (h *Handler) runChecked(ctx context.Context, query string, params []bq.QueryParameter) ([]map[string]any, error) {
	check, err := h.CheckCost(ctx, query)
	if err != nil {
		return nil, err
	}
	if !check.Safe {
		return nil, apperrors.New(apperrors.KindCostExceeded, check.Rationale)
	}
	return h.runQuery(ctx, query, params)
}

func (h *Handler) runQuery(ctx context.Context, query string, params []bq.QueryParameter) ([]map[string]any, error) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	q := h.client.Query(query)
	q.Parameters = params

	it, err := q.Read(qctx)
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	for {
		var values []bq.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}

		record := make(map[string]any, len(it.Schema))
		for i, f := range it.Schema {
			if i < len(values) {
				record[f.Name] = values[i]
			}
		}
		out = append(out, record)
	}
	return out, nil
}
