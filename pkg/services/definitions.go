package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/llm"
	"github.com/tablesage/tablesage/pkg/models"
)

// minSufficientComment is the shortest engine-supplied comment accepted
// verbatim as a definition.
const minSufficientComment = 20

// genericCommentTerms disqualify a comment that is mostly filler.
var genericCommentTerms = map[string]bool{
	"column": true, "field": true, "value": true, "data": true,
	"the": true, "a": true, "an": true, "of": true, "for": true,
	"this": true, "table": true,
}

// selfExplanatoryPatterns maps column-name shapes to definition
// templates. Checked in order; first match wins.
var selfExplanatoryPatterns = []struct {
	re       *regexp.Regexp
	template string
}{
	{regexp.MustCompile(`^id$`), "Unique identifier for this record"},
	{regexp.MustCompile(`^created_at$`), "Timestamp when the record was created"},
	{regexp.MustCompile(`^updated_at$`), "Timestamp when the record was last updated"},
	{regexp.MustCompile(`^version$`), "Version number of the record"},
	{regexp.MustCompile(`^(.+)_id$`), "Identifier referencing the %s entity"},
	{regexp.MustCompile(`^is_(.+)$`), "Flag indicating whether the record is %s"},
	{regexp.MustCompile(`^has_(.+)$`), "Flag indicating whether the record has %s"},
	{regexp.MustCompile(`^(.+)_at$`), "Timestamp when the %s event occurred"},
	{regexp.MustCompile(`^(.+)_time$`), "Time of the %s event"},
	{regexp.MustCompile(`^(.+)_date$`), "Date of the %s event"},
	{regexp.MustCompile(`^(.+)_count$`), "Count of %s"},
	{regexp.MustCompile(`^num_(.+)$`), "Number of %s"},
}

// DefinitionService produces one ColumnDefinition per schema column,
// choosing between the engine comment, a name-pattern template, and a
// batched LLM call.
type DefinitionService struct {
	gateway *llm.Gateway
	logger  *zap.Logger
}

// NewDefinitionService creates a definition service. A nil gateway
// disables LLM enhancement; affected columns fall back.
func NewDefinitionService(gateway *llm.Gateway, logger *zap.Logger) *DefinitionService {
	return &DefinitionService{gateway: gateway, logger: logger.Named("definitions")}
}

// DefineColumns resolves a definition for every column. partitionColumn,
// when set, gets a note about its partitioning role appended.
func (s *DefinitionService) DefineColumns(ctx context.Context, database, schema, table string, cols []models.ColumnSchema, profiles []models.ColumnProfile, partitionColumn string) map[string]models.ColumnDefinition {
	defs := make(map[string]models.ColumnDefinition, len(cols))
	var needLLM []models.ColumnSchema

	for _, col := range cols {
		if sufficientComment(col) {
			defs[col.Name] = models.ColumnDefinition{
				Definition:   strings.TrimSpace(col.Comment),
				BusinessName: humanize(col.Name),
				Source:       models.SourceEngineSchema,
			}
			continue
		}
		if def, ok := patternDefinition(col.Name); ok {
			defs[col.Name] = def
			continue
		}
		needLLM = append(needLLM, col)
	}

	if len(needLLM) > 0 {
		llmDefs := s.enhanceBatch(ctx, database, schema, table, needLLM, profiles)
		for _, col := range needLLM {
			if def, ok := llmDefs[col.Name]; ok {
				defs[col.Name] = def
			} else {
				defs[col.Name] = fallbackDefinition(col)
			}
		}
	}

	if partitionColumn != "" {
		if def, ok := defs[partitionColumn]; ok {
			def.Definition = strings.TrimRight(def.Definition, ". ") +
				". This column is the table's partitioning key."
			defs[partitionColumn] = def
		}
	}
	return defs
}

// sufficientComment judges whether an engine-supplied comment can serve
// as the definition unmodified.
func sufficientComment(col models.ColumnSchema) bool {
	comment := strings.TrimSpace(col.Comment)
	if len(comment) < minSufficientComment {
		return false
	}

	normalized := strings.ToLower(strings.NewReplacer("_", " ", "-", " ").Replace(comment))
	name := strings.ToLower(strings.ReplaceAll(col.Name, "_", " "))
	if normalized == name {
		return false
	}

	words := strings.Fields(normalized)
	generic := 0
	for _, w := range words {
		if genericCommentTerms[strings.Trim(w, ".,:;")] {
			generic++
		}
	}
	return float64(generic) < float64(len(words))*0.6
}

// patternDefinition emits a templated definition for self-explanatory
// column names.
func patternDefinition(name string) (models.ColumnDefinition, bool) {
	lower := strings.ToLower(name)
	for _, p := range selfExplanatoryPatterns {
		m := p.re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		text := p.template
		if len(m) > 1 {
			text = fmt.Sprintf(p.template, strings.ReplaceAll(m[1], "_", " "))
		}
		return models.ColumnDefinition{
			Definition:   text,
			BusinessName: humanize(name),
			Source:       models.SourcePatternBased,
		}, true
	}
	return models.ColumnDefinition{}, false
}

func fallbackDefinition(col models.ColumnSchema) models.ColumnDefinition {
	return models.ColumnDefinition{
		Definition: fmt.Sprintf("Column %s of type %s", col.Name, col.DataType),
		Source:     models.SourceFallback,
	}
}

// humanize turns snake_case into a short display name.
func humanize(name string) string {
	words := strings.Split(strings.ToLower(name), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " ")
}

// enhanceBatch asks the gateway for definitions of every remaining
// column in a single prompt keyed by column name. Any failure leaves the
// map incomplete and the caller substitutes fallbacks.
func (s *DefinitionService) enhanceBatch(ctx context.Context, database, schema, table string, cols []models.ColumnSchema, profiles []models.ColumnProfile) map[string]models.ColumnDefinition {
	if s.gateway == nil {
		return nil
	}

	classByName := make(map[string]models.Classification, len(profiles))
	valuesByName := make(map[string][]string, len(profiles))
	for _, p := range profiles {
		classByName[p.Name] = p.Classification
		if len(p.CategoricalValues) > 0 {
			sample := p.CategoricalValues
			if len(sample) > 10 {
				sample = sample[:10]
			}
			valuesByName[p.Name] = sample
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Database %s, schema %s, table %s has the following columns that need business definitions:\n\n", database, schema, table)
	for _, col := range cols {
		fmt.Fprintf(&b, "- %s (%s", col.Name, col.DataType)
		if class, ok := classByName[col.Name]; ok {
			fmt.Fprintf(&b, ", %s", class)
		}
		b.WriteString(")")
		if vals := valuesByName[col.Name]; len(vals) > 0 {
			fmt.Fprintf(&b, " example values: %s", strings.Join(vals, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString(`
Return a JSON object keyed by column name. Each value must be an object with:
  "definition": one or two sentences describing the column,
  "business_name": a display name of at most 3 words,
  "purpose": what the column is used for,
  "format": the expected value format,
  "business_rules": a list of rules or constraints (may be empty).
Return only JSON, no commentary.`)

	obj, err := s.gateway.CallJSON(ctx, b.String(),
		"You are a data analyst documenting database tables for business users.")
	if err != nil {
		s.logger.Warn("llm column definitions failed, using fallbacks",
			zap.String("table", table), zap.Int("columns", len(cols)), zap.Error(err))
		return nil
	}

	out := make(map[string]models.ColumnDefinition, len(cols))
	for _, col := range cols {
		raw, ok := obj[col.Name]
		if !ok {
			continue
		}
		if def, ok := decodeDefinition(raw); ok {
			def.Source = models.SourceLLMEnhanced
			out[col.Name] = def
		}
	}
	return out
}

// decodeDefinition accepts either a structured object or a bare string
// from the model.
func decodeDefinition(raw any) (models.ColumnDefinition, bool) {
	switch v := raw.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return models.ColumnDefinition{}, false
		}
		return models.ColumnDefinition{Definition: v}, true
	case map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return models.ColumnDefinition{}, false
		}
		var def models.ColumnDefinition
		if err := json.Unmarshal(data, &def); err != nil {
			return models.ColumnDefinition{}, false
		}
		if strings.TrimSpace(def.Definition) == "" {
			return models.ColumnDefinition{}, false
		}
		return def, true
	}
	return models.ColumnDefinition{}, false
}
