// Package datasource defines the uniform capability set every database
// engine adapter implements, plus the registry and connection manager that
// hand out memoized handlers.
package datasource

import (
	"context"

	"github.com/tablesage/tablesage/pkg/models"
)

// TestResult reports the outcome of a connectivity probe.
type TestResult struct {
	OK            bool   `json:"ok"`
	LatencyMS     int64  `json:"latency_ms"`
	ServerVersion string `json:"server_version,omitempty"`
}

// CostCheck is the result of a pre-execution cost estimate. Engines that
// cannot dry-run report Safe with rationale "unchecked".
type CostCheck struct {
	Safe           bool   `json:"safe"`
	Rationale      string `json:"rationale"`
	BytesProcessed int64  `json:"bytes_processed,omitempty"`
}

// SampleOptions controls how a table sample is drawn. Size is rows per
// draw, Count the number of draws. An empty Strategy lets the handler
// choose from the row count and engine capabilities.
type SampleOptions struct {
	Size          int
	Count         int
	Strategy      models.SamplingMethod
	MaxPartitions int
}

// Budget returns the total row budget of the sample.
func (o SampleOptions) Budget() int {
	return o.Size * o.Count
}

// Handler is the per-engine adapter contract. Implementations own a
// bounded connection pool and must be closed when discarded. All methods
// validate identifiers before building SQL; values travel as bind
// parameters, never as SQL text.
type Handler interface {
	// Engine returns the engine this handler speaks to.
	Engine() models.Engine

	// TestConnection verifies reachability and reports round-trip latency.
	TestConnection(ctx context.Context) (*TestResult, error)

	// ListSchemas returns schemas visible to the connection.
	ListSchemas(ctx context.Context) ([]string, error)

	// ListTables returns table names in a schema.
	ListTables(ctx context.Context, schema string) ([]string, error)

	// TableSchema returns declared column info in ordinal order.
	TableSchema(ctx context.Context, schema, table string) ([]models.ColumnSchema, error)

	// Indexes returns the table's indexes.
	Indexes(ctx context.Context, schema, table string) ([]models.IndexInfo, error)

	// Constraints returns primary key, foreign keys, unique and check
	// constraints.
	Constraints(ctx context.Context, schema, table string) (*models.Constraints, error)

	// RowCount returns the table's row count. With estimate true, engine
	// statistics are preferred and an exact count is the last resort.
	RowCount(ctx context.Context, schema, table string, estimate bool) (int64, error)

	// Sample draws a TableSample per the options.
	Sample(ctx context.Context, schema, table string, opts SampleOptions) (*models.TableSample, error)

	// DistinctValues returns up to limit distinct non-null values of a
	// column as strings, sorted.
	DistinctValues(ctx context.Context, schema, table, column string, limit int) ([]string, error)

	// PartitionInfo describes native partitioning, or nil when the table
	// is unpartitioned. AvailablePartitions is newest-first and bounded by
	// maxPartitions.
	PartitionInfo(ctx context.Context, schema, table string, maxPartitions int) (*models.PartitionInfo, error)

	// CheckCost estimates the cost of a query before execution.
	CheckCost(ctx context.Context, query string) (*CostCheck, error)

	// Close releases the handler's pool.
	Close() error
}
