package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/llm"
	"github.com/tablesage/tablesage/pkg/models"
)

// maxGlossaryValues is the largest meaningful-value set that still gets
// a glossary; above this the values speak for themselves poorly but the
// prompt cost does not.
const maxGlossaryValues = 20

// GlossaryService asks the LLM for short per-value definitions of
// categorical columns.
type GlossaryService struct {
	gateway *llm.Gateway
	logger  *zap.Logger
}

// NewGlossaryService creates a glossary service.
func NewGlossaryService(gateway *llm.Gateway, logger *zap.Logger) *GlossaryService {
	return &GlossaryService{gateway: gateway, logger: logger.Named("glossary")}
}

// BuildGlossaries produces a value glossary for each qualifying
// categorical column. A failed column is skipped, never fatal.
func (s *GlossaryService) BuildGlossaries(ctx context.Context, table string, profiles []models.ColumnProfile) map[string]map[string]string {
	if s.gateway == nil {
		return nil
	}

	out := map[string]map[string]string{}
	for _, p := range profiles {
		if p.Classification != models.ClassCategorical {
			continue
		}
		meaningful := MeaningfulValues(p.CategoricalValues)
		if len(meaningful) == 0 || len(meaningful) > maxGlossaryValues {
			continue
		}

		glossary, err := s.defineValues(ctx, table, p.Name, meaningful)
		if err != nil {
			s.logger.Warn("glossary generation failed, skipping column",
				zap.String("table", table), zap.String("column", p.Name), zap.Error(err))
			continue
		}
		if len(glossary) > 0 {
			out[p.Name] = glossary
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *GlossaryService) defineValues(ctx context.Context, table, column string, values []string) (map[string]string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Table %s has a categorical column %s with these observed values:\n", table, column)
	for _, v := range values {
		fmt.Fprintf(&b, "- %s\n", v)
	}
	b.WriteString("\nReturn a JSON object mapping each value to a short one-sentence definition. Return only JSON.")

	obj, err := s.gateway.CallJSON(ctx, b.String(),
		"You are a data analyst writing a business glossary for database values.")
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(values))
	for _, v := range values {
		allowed[v] = true
	}

	glossary := make(map[string]string, len(obj))
	for k, v := range obj {
		if !allowed[k] {
			continue
		}
		if def, ok := v.(string); ok && strings.TrimSpace(def) != "" {
			glossary[k] = def
		}
	}
	return glossary, nil
}
