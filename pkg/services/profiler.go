package services

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/models"
)

const (
	// classifySampleCap bounds how many non-null values the classifier
	// inspects per column.
	classifySampleCap = 100

	// distinctDirectThreshold is the row count above which categorical
	// values come from the sample instead of a DISTINCT query.
	distinctDirectThreshold = 100_000

	// categoricalValueCap bounds the stored value list per column.
	categoricalValueCap = 100

	longTextAvgLen = 100
)

// categoricalNameRe matches column names that conventionally hold
// enumerated values.
var categoricalNameRe = regexp.MustCompile(`(?i)(_id$|_code$|^status$|_status$|_type$|_flag$|_date$|_at$|^is_|^has_)`)

// dateLayouts is the fixed set of formats used to recognize date-like
// string values.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"20060102",
	time.RFC3339,
}

// Profiler derives column classifications, statistics, quality metrics,
// and constraints from an introspected table and its sample.
type Profiler struct {
	logger *zap.Logger
}

// NewProfiler creates a profiler.
func NewProfiler(logger *zap.Logger) *Profiler {
	return &Profiler{logger: logger.Named("profiler")}
}

// ProfileResult is the combined output of one profiling run.
type ProfileResult struct {
	Columns     []models.ColumnProfile
	Constraints models.Constraints
}

// Profile runs the four profiling facets concurrently over a table.
// Individual facet failures are absorbed: a failed facet contributes its
// zero value and profiling still completes.
func (p *Profiler) Profile(ctx context.Context, h datasource.Handler, schema, table string, cols []models.ColumnSchema, sample *models.TableSample, rowCount int64) *ProfileResult {
	byColumn := columnValues(sample)

	profiles := make([]models.ColumnProfile, len(cols))
	for i, col := range cols {
		profiles[i] = models.ColumnProfile{
			Name:           col.Name,
			DataType:       col.DataType,
			Nullable:       col.Nullable,
			Classification: ClassifyColumn(col, byColumn[col.Name]),
		}
	}

	var (
		constraints models.Constraints
		stats       = make([]*models.NumericStats, len(cols))
		quality     = make([]*models.QualityMetrics, len(cols))
		catValues   = make([][]string, len(cols))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	g.Go(func() error {
		c, err := h.Constraints(gctx, schema, table)
		if err != nil {
			p.logger.Warn("constraint extraction failed",
				zap.String("table", table), zap.Error(err))
			return nil
		}
		if c != nil {
			constraints = *c
		}
		return nil
	})

	g.Go(func() error {
		for i, col := range cols {
			if profiles[i].Classification == models.ClassNumerical {
				stats[i] = ComputeNumericStats(byColumn[col.Name])
			}
		}
		return nil
	})

	g.Go(func() error {
		for i, col := range cols {
			quality[i] = computeQuality(col, byColumn[col.Name])
		}
		return nil
	})

	g.Go(func() error {
		for i, col := range cols {
			if profiles[i].Classification != models.ClassCategorical {
				continue
			}
			catValues[i] = p.categoricalValues(gctx, h, schema, table, col.Name, byColumn[col.Name], rowCount)
		}
		return nil
	})

	// Facet goroutines never return errors; Wait only observes ctx.
	_ = g.Wait()

	// Quality runs concurrently with stats, so the skew rule is applied
	// after the join.
	for i := range profiles {
		profiles[i].NumericStats = stats[i]
		profiles[i].CategoricalValues = catValues[i]
		profiles[i].Quality = quality[i]
		if q := profiles[i].Quality; q != nil && stats[i] != nil {
			if skew := stats[i].Skewness; skew > 3 || skew < -3 {
				q.Issues = append(q.Issues, "highly skewed distribution")
				q.Recommendations = append(q.Recommendations, "consider log transform or outlier review before aggregation")
			}
		}
	}

	return &ProfileResult{Columns: profiles, Constraints: constraints}
}

// ClassifyColumn buckets a column by declared type first, falling back
// to inspecting sampled values when the declaration is ambiguous.
func ClassifyColumn(col models.ColumnSchema, values []any) models.Classification {
	dt := strings.ToLower(col.DataType)

	if datasource.NumericType(dt) {
		return models.ClassNumerical
	}
	if datasource.BooleanType(dt) {
		return models.ClassCategorical
	}
	if datasource.TemporalType(dt) {
		return models.ClassOther
	}
	if stringType(dt) {
		if longText(values) {
			return models.ClassOther
		}
		return models.ClassCategorical
	}

	return classifyBySample(col.Name, values)
}

func stringType(dt string) bool {
	for _, frag := range []string{"char", "text", "string", "clob", "enum", "uuid"} {
		if strings.Contains(dt, frag) {
			return true
		}
	}
	return false
}

// longText reports whether sampled values look like free-form prose:
// long on average and nearly all distinct.
func longText(values []any) bool {
	var (
		total   int
		nonNull int
		uniq    = map[string]bool{}
	)
	for _, v := range values {
		if v == nil {
			continue
		}
		s := datasource.Stringify(v)
		nonNull++
		total += len(s)
		uniq[s] = true
	}
	if nonNull == 0 {
		return false
	}
	avg := float64(total) / float64(nonNull)
	uniqueRatio := float64(len(uniq)) / float64(nonNull)
	return avg > longTextAvgLen && uniqueRatio >= 0.99
}

// classifyBySample handles columns whose declared type gives no signal.
func classifyBySample(name string, values []any) models.Classification {
	nonNull := make([]any, 0, classifySampleCap)
	for _, v := range values {
		if v == nil {
			continue
		}
		nonNull = append(nonNull, v)
		if len(nonNull) == classifySampleCap {
			break
		}
	}
	if len(nonNull) == 0 {
		if categoricalNameRe.MatchString(name) {
			return models.ClassCategorical
		}
		return models.ClassOther
	}

	numeric := 0
	uniq := map[string]bool{}
	for _, v := range nonNull {
		if _, ok := coerceNumeric(v); ok {
			numeric++
		}
		uniq[datasource.Stringify(v)] = true
	}
	if float64(numeric)/float64(len(nonNull)) >= 0.8 {
		return models.ClassNumerical
	}

	uniqueRatio := float64(len(uniq)) / float64(len(nonNull))
	if uniqueRatio <= 0.03 || categoricalNameRe.MatchString(name) {
		return models.ClassCategorical
	}
	return models.ClassOther
}

// computeQuality derives completeness, uniqueness, and rule-based issue
// flags for one column. The skewness rule is applied by the caller once
// numeric stats are available.
func computeQuality(col models.ColumnSchema, values []any) *models.QualityMetrics {
	q := &models.QualityMetrics{}
	if len(values) == 0 {
		return q
	}

	nonNull := 0
	nonNumeric := 0
	uniq := map[string]bool{}
	for _, v := range values {
		if v == nil {
			continue
		}
		nonNull++
		uniq[datasource.Stringify(v)] = true
		if _, ok := coerceNumeric(v); !ok {
			nonNumeric++
		}
	}

	total := float64(len(values))
	q.Completeness = float64(nonNull) / total * 100
	if nonNull > 0 {
		q.Uniqueness = float64(len(uniq)) / float64(nonNull) * 100
	}

	if q.Completeness < 95 {
		q.Issues = append(q.Issues, "high missing values")
		q.Recommendations = append(q.Recommendations, "investigate source for incomplete records")
	}
	if len(values) >= 100 {
		if nonNull > 0 && len(uniq) == nonNull {
			q.Recommendations = append(q.Recommendations, "potential primary key")
		}
		if len(uniq) > 0 && len(uniq) <= 5 {
			q.Issues = append(q.Issues, "low cardinality: "+strings.Join(sortedKeys(uniq), ", "))
		}
	}
	if datasource.NumericType(strings.ToLower(col.DataType)) && nonNumeric > 0 {
		q.Issues = append(q.Issues, "type mismatch: non-numeric values in numeric column")
	}
	return q
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	// Deterministic issue text matters for stored documents.
	sort.Strings(out)
	return out
}

// categoricalValues extracts the distinct value list for a categorical
// column, preferring a direct query on small tables and falling back to
// the sample.
func (p *Profiler) categoricalValues(ctx context.Context, h datasource.Handler, schema, table, column string, sampled []any, rowCount int64) []string {
	if h != nil && rowCount >= 0 && rowCount <= distinctDirectThreshold {
		vals, err := h.DistinctValues(ctx, schema, table, column, categoricalValueCap)
		if err == nil {
			return vals
		}
		p.logger.Warn("distinct value extraction failed, using sample",
			zap.String("column", column), zap.Error(err))
	}

	uniq := map[string]bool{}
	var out []string
	for _, v := range sampled {
		if v == nil {
			continue
		}
		s := datasource.Stringify(v)
		if !uniq[s] {
			uniq[s] = true
			out = append(out, s)
			if len(out) == categoricalValueCap {
				break
			}
		}
	}
	return out
}

// MeaningfulValues filters a categorical value list down to the entries
// worth defining in a glossary: date-like and numeric-looking values are
// dropped.
func MeaningfulValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || looksLikeDate(v) {
			continue
		}
		if _, ok := parseNumericString(v); ok {
			continue
		}
		out = append(out, v)
	}
	return out
}

func looksLikeDate(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 6 || len(s) > 35 {
		return false
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// columnValues pivots a row-oriented sample into per-column value
// slices, preserving row order.
func columnValues(sample *models.TableSample) map[string][]any {
	out := map[string][]any{}
	if sample == nil {
		return out
	}
	for _, col := range sample.Columns {
		out[col] = make([]any, 0, len(sample.Rows))
	}
	for _, row := range sample.Rows {
		for _, col := range sample.Columns {
			out[col] = append(out[col], row[col])
		}
	}
	return out
}
