package models

// SamplingMethod tags how a table sample was drawn.
type SamplingMethod string

const (
	SamplingFull           SamplingMethod = "full"
	SamplingRandomOffset   SamplingMethod = "random-offset"
	SamplingStratified     SamplingMethod = "stratified"
	SamplingPartitionAware SamplingMethod = "partition-aware"
)

// TableSample is the materialized sample handed to profiling. The column
// set always equals the table's introspected schema keys.
type TableSample struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Method  SamplingMethod   `json:"method"`
}

// RowCount returns the number of sampled rows.
func (s *TableSample) RowCount() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// ColumnSchema carries declared type information for one column.
type ColumnSchema struct {
	Name             string `json:"name"`
	DataType         string `json:"data_type"`
	Nullable         bool   `json:"nullable"`
	NumericPrecision *int   `json:"numeric_precision,omitempty"`
	NumericScale     *int   `json:"numeric_scale,omitempty"`
	CharMaxLength    *int64 `json:"char_max_length,omitempty"`
	Comment          string `json:"comment,omitempty"`
	OrdinalPosition  int    `json:"ordinal_position"`
}

// IndexInfo describes one index on a table.
type IndexInfo struct {
	Name     string   `json:"name"`
	Columns  []string `json:"columns"`
	IsUnique bool     `json:"is_unique"`
	IsPK     bool     `json:"is_primary"`
}

// ForeignKey describes a referential constraint.
type ForeignKey struct {
	Name              string   `json:"name"`
	Columns           []string `json:"columns"`
	ReferencedTable   string   `json:"referenced_table"`
	ReferencedColumns []string `json:"referenced_columns"`
	OnDelete          string   `json:"on_delete,omitempty"`
}

// UniqueConstraint describes a unique constraint.
type UniqueConstraint struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// CheckConstraint describes a check constraint.
type CheckConstraint struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
}

// Constraints aggregates every constraint facet extracted for a table.
type Constraints struct {
	PrimaryKey []string           `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKey      `json:"foreign_keys,omitempty"`
	Unique     []UniqueConstraint `json:"unique,omitempty"`
	Checks     []CheckConstraint  `json:"checks,omitempty"`
}

// PartitionStat describes one partition of a natively partitioned table.
type PartitionStat struct {
	PartitionID string `json:"partition_id"`
	RowCount    int64  `json:"row_count"`
	ByteSize    int64  `json:"byte_size"`
}

// PartitionInfo is present only for engines that partition natively.
// AvailablePartitions is ordered newest-first and bounded.
type PartitionInfo struct {
	IsPartitioned       bool            `json:"is_partitioned"`
	PartitionType       string          `json:"partition_type,omitempty"`
	PartitionColumn     string          `json:"partition_column,omitempty"`
	ClusteringFields    []string        `json:"clustering_fields,omitempty"`
	AvailablePartitions []PartitionStat `json:"available_partitions,omitempty"`
}

// Classification buckets a column for profiling.
type Classification string

const (
	ClassCategorical Classification = "categorical"
	ClassNumerical   Classification = "numerical"
	ClassOther       Classification = "other"
)

// NumericStats holds descriptive statistics for a numerical column.
// Present iff the column classified numerical with at least two non-null
// observations.
type NumericStats struct {
	Min         float64            `json:"min"`
	Max         float64            `json:"max"`
	Mean        float64            `json:"mean"`
	Median      float64            `json:"median"`
	StdDev      float64            `json:"std"`
	Percentiles map[string]float64 `json:"percentiles"` // p10,p25,p50,p75,p90,p95,p99
	Skewness    float64            `json:"skewness"`
	NonNull     int                `json:"non_null_count"`
}

// QualityMetrics carries per-column data-quality signals.
type QualityMetrics struct {
	Completeness    float64  `json:"completeness_pct"`
	Uniqueness      float64  `json:"uniqueness_pct"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// ColumnProfile is the per-column profiling result.
type ColumnProfile struct {
	Name              string          `json:"name"`
	DataType          string          `json:"data_type"`
	Nullable          bool            `json:"nullable"`
	Classification    Classification  `json:"classification"`
	NumericStats      *NumericStats   `json:"numeric_stats,omitempty"`
	CategoricalValues []string        `json:"categorical_values,omitempty"`
	Quality           *QualityMetrics `json:"quality,omitempty"`
}
