package models

import "time"

// DefinitionSource records how a column definition was produced.
type DefinitionSource string

const (
	SourceEngineSchema DefinitionSource = "engine_schema"
	SourcePatternBased DefinitionSource = "pattern_based"
	SourceLLMEnhanced  DefinitionSource = "llm_enhanced"
	SourceFallback     DefinitionSource = "fallback"
)

// ColumnDefinition is the refined per-column description. Every schema
// column gets exactly one; Source records provenance.
type ColumnDefinition struct {
	Definition    string           `json:"definition"`
	BusinessName  string           `json:"business_name,omitempty"`
	Purpose       string           `json:"purpose,omitempty"`
	Format        string           `json:"format,omitempty"`
	BusinessRules []string         `json:"business_rules,omitempty"`
	Source        DefinitionSource `json:"source"`
}

// DataLifecycle describes how the table's data evolves over time.
type DataLifecycle struct {
	UpdateFrequency  string `json:"update_frequency"`
	RetentionPolicy  string `json:"retention_policy"`
	ArchivalStrategy string `json:"archival_strategy"`
}

// TableInsights is the table-level narrative. The required core is always
// populated (by the LLM or the deterministic fallback); optional
// subdocuments appear only when their section flag is enabled and the LLM
// produced them.
type TableInsights struct {
	Domain        string        `json:"domain"`
	Category      string        `json:"category"`
	Description   string        `json:"description"`
	Purpose       string        `json:"purpose"`
	UsagePatterns []string      `json:"usage_patterns"`
	DataLifecycle DataLifecycle `json:"data_lifecycle"`

	PotentialRelationships  map[string]any `json:"potential_relationships,omitempty"`
	BusinessRules           []string       `json:"business_rules,omitempty"`
	AggregationRules        []string       `json:"aggregation_rules,omitempty"`
	PerformanceOptimization map[string]any `json:"performance_optimization,omitempty"`
	QueryExamples           []QueryExample `json:"query_examples,omitempty"`
	AdditionalInsights      []string       `json:"additional_insights,omitempty"`
}

// QueryExample pairs a described use case with illustrative SQL.
type QueryExample struct {
	Description string `json:"description"`
	SQL         string `json:"sql"`
}

// SectionFlags gates the eight optional output sections. Unspecified flags
// default to true at the boundary.
type SectionFlags struct {
	Relationships          bool `json:"relationships"`
	AggregationRules       bool `json:"aggregation_rules"`
	QueryRules             bool `json:"query_rules"`
	DataQuality            bool `json:"data_quality"`
	QueryExamples          bool `json:"query_examples"`
	AdditionalInsights     bool `json:"additional_insights"`
	BusinessRules          bool `json:"business_rules"`
	CategoricalDefinitions bool `json:"categorical_definitions"`
}

// AllSections returns flags with every optional section enabled, the
// default when a request leaves them unspecified.
func AllSections() SectionFlags {
	return SectionFlags{
		Relationships:          true,
		AggregationRules:       true,
		QueryRules:             true,
		DataQuality:            true,
		QueryExamples:          true,
		AdditionalInsights:     true,
		BusinessRules:          true,
		CategoricalDefinitions: true,
	}
}

// StageTiming records wall-clock boundaries for one pipeline stage.
type StageTiming struct {
	Name        string    `json:"name"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMS  int64     `json:"duration_ms"`
}

// ProcessingStats summarizes one pipeline run.
type ProcessingStats struct {
	StartedAt        time.Time     `json:"started_at"`
	CompletedAt      time.Time     `json:"completed_at"`
	DurationMS       int64         `json:"duration_ms"`
	Steps            []StageTiming `json:"steps"`
	TotalTokens      int           `json:"total_tokens"`
	CostEstimateUSD  float64       `json:"cost_estimate_usd"`
	OptionalSections SectionFlags  `json:"optional_sections"`
}

// ColumnEntry is the per-column slice of the final document: declared
// schema, profile, refined definition, and optional value glossary.
type ColumnEntry struct {
	DataType          string            `json:"data_type"`
	Nullable          bool              `json:"nullable"`
	Classification    Classification    `json:"classification"`
	Definition        ColumnDefinition  `json:"definition"`
	NumericStats      *NumericStats     `json:"numeric_stats,omitempty"`
	CategoricalValues []string          `json:"categorical_values,omitempty"`
	Quality           *QualityMetrics   `json:"quality,omitempty"`
	Glossary          map[string]string `json:"glossary,omitempty"`
	Comment           string            `json:"comment,omitempty"`
}

// CurrentDocumentVersion is stamped on every generated document.
const CurrentDocumentVersion = 2

// MetadataDocument is the pipeline's final output, identified by
// (database, schema, table). Documents are written atomically and never
// mutated in place.
type MetadataDocument struct {
	Version  int    `json:"version"`
	Database string `json:"database"`
	Schema   string `json:"schema"`
	Table    string `json:"table"`
	Engine   Engine `json:"engine"`

	GeneratedAt    time.Time      `json:"generated_at"`
	RowCount       int64          `json:"row_count"`
	SamplingMethod SamplingMethod `json:"sampling_method"`

	ColumnOrder []string                `json:"column_order"`
	Columns     map[string]*ColumnEntry `json:"columns"`

	Constraints   Constraints    `json:"constraints"`
	Indexes       []IndexInfo    `json:"indexes,omitempty"`
	PartitionInfo *PartitionInfo `json:"partition_info,omitempty"`

	TableInsights   TableInsights   `json:"table_insights"`
	ProcessingStats ProcessingStats `json:"processing_stats"`
}
