package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/llm"
	"github.com/tablesage/tablesage/pkg/models"
)

// insightsSampleRows is how many sample rows the insights prompt may
// include.
const insightsSampleRows = 2

// InsightsService derives the table-level narrative from everything the
// earlier stages collected.
type InsightsService struct {
	gateway *llm.Gateway
	logger  *zap.Logger
}

// NewInsightsService creates an insights service.
func NewInsightsService(gateway *llm.Gateway, logger *zap.Logger) *InsightsService {
	return &InsightsService{gateway: gateway, logger: logger.Named("insights")}
}

// BuildInsights asks for the narrative in a single call. Any LLM failure
// yields the deterministic fallback; the error return reports whether the
// fallback was used, for accounting only.
func (s *InsightsService) BuildInsights(ctx context.Context, table string, cols []models.ColumnSchema, constraints models.Constraints, defs map[string]models.ColumnDefinition, sample *models.TableSample, flags models.SectionFlags) (models.TableInsights, error) {
	if s.gateway == nil {
		return FallbackInsights(table), nil
	}

	prompt := s.buildPrompt(table, cols, constraints, defs, sample, flags)
	obj, err := s.gateway.CallJSON(ctx, prompt,
		"You are a data analyst describing a database table for business users. Answer with a single JSON object.")
	if err != nil {
		s.logger.Warn("table insights failed, using fallback",
			zap.String("table", table), zap.Error(err))
		return FallbackInsights(table), err
	}

	insights, ok := decodeInsights(obj)
	if !ok {
		s.logger.Warn("table insights response missing required core, using fallback",
			zap.String("table", table))
		return FallbackInsights(table), nil
	}
	pruneSections(&insights, flags)
	return insights, nil
}

func (s *InsightsService) buildPrompt(table string, cols []models.ColumnSchema, constraints models.Constraints, defs map[string]models.ColumnDefinition, sample *models.TableSample, flags models.SectionFlags) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the database table %q.\n\nColumns:\n", table)
	for _, col := range cols {
		fmt.Fprintf(&b, "- %s %s", col.Name, col.DataType)
		if def, ok := defs[col.Name]; ok && def.Definition != "" {
			fmt.Fprintf(&b, ": %s", def.Definition)
		}
		b.WriteString("\n")
	}

	if len(constraints.PrimaryKey) > 0 {
		fmt.Fprintf(&b, "\nPrimary key: %s\n", strings.Join(constraints.PrimaryKey, ", "))
	}
	for _, fk := range constraints.ForeignKeys {
		fmt.Fprintf(&b, "Foreign key: %s references %s (%s)\n",
			strings.Join(fk.Columns, ", "), fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", "))
	}

	if sample != nil && len(sample.Rows) > 0 {
		b.WriteString("\nSample rows:\n")
		n := len(sample.Rows)
		if n > insightsSampleRows {
			n = insightsSampleRows
		}
		for _, row := range sample.Rows[:n] {
			parts := make([]string, 0, len(sample.Columns))
			for _, col := range sample.Columns {
				parts = append(parts, fmt.Sprintf("%s=%s", col, datasource.Stringify(row[col])))
			}
			fmt.Fprintf(&b, "  %s\n", strings.Join(parts, ", "))
		}
	}

	b.WriteString(`
Return a JSON object with these required keys:
  "domain": the business domain this table belongs to,
  "category": a short table category,
  "description": a markdown description of the table,
  "purpose": why the table exists,
  "usage_patterns": a list of typical usage patterns,
  "data_lifecycle": {"update_frequency", "retention_policy", "archival_strategy"}`)

	var optional []string
	if flags.Relationships {
		optional = append(optional, `"potential_relationships": an object describing likely joins to other tables`)
	}
	if flags.BusinessRules {
		optional = append(optional, `"business_rules": a list of business rules implied by the schema`)
	}
	if flags.AggregationRules {
		optional = append(optional, `"aggregation_rules": a list of sensible aggregations`)
	}
	if flags.QueryRules {
		optional = append(optional, `"performance_optimization": an object with query performance guidance`)
	}
	if flags.QueryExamples {
		optional = append(optional, `"query_examples": a list of {"description", "sql"} objects`)
	}
	if flags.AdditionalInsights {
		optional = append(optional, `"additional_insights": a list of further observations`)
	}
	if len(optional) > 0 {
		b.WriteString("\nand these optional keys:\n  " + strings.Join(optional, ",\n  "))
	}
	b.WriteString("\nReturn only JSON, no commentary.")
	return b.String()
}

// decodeInsights validates that the required core survived the round
// trip.
func decodeInsights(obj map[string]any) (models.TableInsights, bool) {
	data, err := json.Marshal(obj)
	if err != nil {
		return models.TableInsights{}, false
	}
	var insights models.TableInsights
	if err := json.Unmarshal(data, &insights); err != nil {
		return models.TableInsights{}, false
	}
	if insights.Domain == "" || insights.Description == "" {
		return models.TableInsights{}, false
	}
	return insights, true
}

// pruneSections drops optional subdocuments whose flag is off, in case
// the model volunteered them anyway.
func pruneSections(insights *models.TableInsights, flags models.SectionFlags) {
	if !flags.Relationships {
		insights.PotentialRelationships = nil
	}
	if !flags.BusinessRules {
		insights.BusinessRules = nil
	}
	if !flags.AggregationRules {
		insights.AggregationRules = nil
	}
	if !flags.QueryRules {
		insights.PerformanceOptimization = nil
	}
	if !flags.QueryExamples {
		insights.QueryExamples = nil
	}
	if !flags.AdditionalInsights {
		insights.AdditionalInsights = nil
	}
}

// FallbackInsights populates the required core deterministically from
// the table name.
func FallbackInsights(table string) models.TableInsights {
	display := strings.ReplaceAll(table, "_", " ")
	return models.TableInsights{
		Domain:      "Business Data",
		Category:    "Data Table",
		Description: fmt.Sprintf("Table containing %s records.", display),
		Purpose:     fmt.Sprintf("Stores %s data.", display),
		UsagePatterns: []string{
			fmt.Sprintf("Query %s records by key columns", display),
		},
		DataLifecycle: models.DataLifecycle{
			UpdateFrequency:  "unknown",
			RetentionPolicy:  "unknown",
			ArchivalStrategy: "unknown",
		},
	}
}
