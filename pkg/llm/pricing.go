package llm

import "strings"

// DefaultPricePerK is the blended per-1k-token price assumed for models
// without a configured rate.
const DefaultPricePerK = 0.002

// PriceTable maps model name prefixes to blended USD per 1k tokens.
// Configured entries override the built-in defaults.
type PriceTable struct {
	perK     map[string]float64
	fallback float64
}

// builtinPrices are blended input/output rates for common model families.
var builtinPrices = map[string]float64{
	"gpt-4o-mini":       0.000375,
	"gpt-4o":            0.00625,
	"gpt-4.1-mini":      0.001,
	"gpt-4.1":           0.005,
	"o3-mini":           0.00275,
	"claude-3-5-haiku":  0.0024,
	"claude-3-5-sonnet": 0.009,
	"claude-sonnet-4":   0.009,
	"claude-opus-4":     0.045,
}

// NewPriceTable builds a price table. overrides come from configuration and
// win over the built-in rates; fallback of 0 selects DefaultPricePerK.
func NewPriceTable(overrides map[string]float64, fallback float64) *PriceTable {
	perK := make(map[string]float64, len(builtinPrices)+len(overrides))
	for k, v := range builtinPrices {
		perK[k] = v
	}
	for k, v := range overrides {
		perK[strings.ToLower(k)] = v
	}
	if fallback <= 0 {
		fallback = DefaultPricePerK
	}
	return &PriceTable{perK: perK, fallback: fallback}
}

// PerK returns the per-1k-token rate for model, matching the longest
// configured prefix.
func (t *PriceTable) PerK(model string) float64 {
	model = strings.ToLower(model)
	bestLen := 0
	best := t.fallback
	for prefix, rate := range t.perK {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			bestLen = len(prefix)
			best = rate
		}
	}
	return best
}

// Cost converts a token count to USD for model.
func (t *PriceTable) Cost(model string, tokens int) float64 {
	return float64(tokens) / 1000.0 * t.PerK(model)
}
