package services

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tablesage/tablesage/pkg/models"
)

// percentileLabels is the fixed quantile set reported for numerical
// columns.
var percentileLabels = map[string]float64{
	"p10": 0.10,
	"p25": 0.25,
	"p50": 0.50,
	"p75": 0.75,
	"p90": 0.90,
	"p95": 0.95,
	"p99": 0.99,
}

// coerceNumeric converts a sampled value to float64 where possible.
// Strings that fail to parse are treated as absent, not as errors.
func coerceNumeric(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case []byte:
		return parseNumericString(string(x))
	case string:
		return parseNumericString(x)
	}
	return 0, false
}

func parseNumericString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ComputeNumericStats computes descriptive statistics over a column's
// sampled values. Returns nil when fewer than two values coerce to
// numbers.
func ComputeNumericStats(values []any) *models.NumericStats {
	nums := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := coerceNumeric(v); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) < 2 {
		return nil
	}
	sort.Float64s(nums)

	n := float64(len(nums))
	var sum float64
	for _, f := range nums {
		sum += f
	}
	mean := sum / n

	var m2, m3 float64
	for _, f := range nums {
		d := f - mean
		m2 += d * d
		m3 += d * d * d
	}
	variance := m2 / (n - 1)
	std := math.Sqrt(variance)

	skew := 0.0
	if std > 0 {
		// Population skewness; adequate for the quality heuristics.
		popStd := math.Sqrt(m2 / n)
		skew = (m3 / n) / (popStd * popStd * popStd)
	}

	pct := make(map[string]float64, len(percentileLabels))
	for label, q := range percentileLabels {
		pct[label] = quantile(nums, q)
	}

	return &models.NumericStats{
		Min:         nums[0],
		Max:         nums[len(nums)-1],
		Mean:        mean,
		Median:      quantile(nums, 0.5),
		StdDev:      std,
		Percentiles: pct,
		Skewness:    skew,
		NonNull:     len(nums),
	}
}

// quantile interpolates linearly over a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
