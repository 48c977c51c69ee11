package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/models"
)

// stubHandler implements just enough of the handler contract for
// profiling tests.
type stubHandler struct {
	datasource.Handler

	constraints    *models.Constraints
	constraintsErr error
	distinct       []string
	distinctErr    error
	distinctCalls  int
}

func (h *stubHandler) Constraints(ctx context.Context, schema, table string) (*models.Constraints, error) {
	return h.constraints, h.constraintsErr
}

func (h *stubHandler) DistinctValues(ctx context.Context, schema, table, column string, limit int) ([]string, error) {
	h.distinctCalls++
	return h.distinct, h.distinctErr
}

func sampleOf(columns []string, rows ...map[string]any) *models.TableSample {
	return &models.TableSample{Columns: columns, Rows: rows, Method: models.SamplingFull}
}

func TestClassifyColumn_DeclaredTypes(t *testing.T) {
	cases := []struct {
		dataType string
		want     models.Classification
	}{
		{"integer", models.ClassNumerical},
		{"numeric(10,2)", models.ClassNumerical},
		{"double precision", models.ClassNumerical},
		{"boolean", models.ClassCategorical},
		{"timestamp with time zone", models.ClassOther},
		{"date", models.ClassOther},
		{"varchar(50)", models.ClassCategorical},
		{"text", models.ClassCategorical},
	}
	for _, tc := range cases {
		got := ClassifyColumn(models.ColumnSchema{Name: "c", DataType: tc.dataType}, nil)
		assert.Equal(t, tc.want, got, "data type %s", tc.dataType)
	}
}

func TestClassifyColumn_ShortUniqueTextIsStillCategorical(t *testing.T) {
	// Three distinct one-letter values must not be demoted to "other".
	got := ClassifyColumn(
		models.ColumnSchema{Name: "name", DataType: "TEXT"},
		[]any{"a", "b", "c"},
	)
	assert.Equal(t, models.ClassCategorical, got)
}

func TestClassifyColumn_LongUniqueTextIsOther(t *testing.T) {
	long := make([]any, 50)
	for i := range long {
		s := make([]byte, 150)
		for j := range s {
			s[j] = byte('a' + (i+j)%26)
		}
		long[i] = string(s)
	}
	got := ClassifyColumn(models.ColumnSchema{Name: "body", DataType: "text"}, long)
	assert.Equal(t, models.ClassOther, got)
}

func TestClassifyBySample_MostlyNumeric(t *testing.T) {
	values := []any{"1", "2", "3", "4", "x"}
	got := classifyBySample("mystery", values)
	assert.Equal(t, models.ClassNumerical, got)
}

func TestClassifyBySample_NamePatterns(t *testing.T) {
	values := []any{"alpha", "beta", "gamma", "delta", "epsilon"}
	assert.Equal(t, models.ClassCategorical, classifyBySample("region_code", values))
	assert.Equal(t, models.ClassCategorical, classifyBySample("status", values))
	assert.Equal(t, models.ClassOther, classifyBySample("notes", values))
}

func TestComputeQuality_Rules(t *testing.T) {
	t.Run("missing values", func(t *testing.T) {
		values := []any{nil, nil, "a", "b", "c", "d", "e", "f", "g", "h"}
		q := computeQuality(models.ColumnSchema{Name: "c", DataType: "text"}, values)
		assert.InDelta(t, 80, q.Completeness, 0.01)
		assert.Contains(t, q.Issues, "high missing values")
	})

	t.Run("potential primary key", func(t *testing.T) {
		values := make([]any, 100)
		for i := range values {
			values[i] = i
		}
		q := computeQuality(models.ColumnSchema{Name: "id", DataType: "integer"}, values)
		assert.InDelta(t, 100, q.Uniqueness, 0.01)
		assert.Contains(t, q.Recommendations, "potential primary key")
	})

	t.Run("unique column with nulls is still flagged as key", func(t *testing.T) {
		values := make([]any, 100)
		for i := range values {
			values[i] = i
		}
		values[50] = nil
		q := computeQuality(models.ColumnSchema{Name: "external_ref", DataType: "text"}, values)
		assert.InDelta(t, 100, q.Uniqueness, 0.01)
		assert.Contains(t, q.Recommendations, "potential primary key")
	})

	t.Run("low cardinality", func(t *testing.T) {
		values := make([]any, 100)
		for i := range values {
			values[i] = []string{"a", "b"}[i%2]
		}
		q := computeQuality(models.ColumnSchema{Name: "flag", DataType: "text"}, values)
		require.NotEmpty(t, q.Issues)
		assert.Contains(t, q.Issues[0], "low cardinality")
		assert.Contains(t, q.Issues[0], "a, b")
	})

	t.Run("type mismatch", func(t *testing.T) {
		q := computeQuality(models.ColumnSchema{Name: "amount", DataType: "numeric"}, []any{"1", "oops", "3"})
		assert.Contains(t, q.Issues, "type mismatch: non-numeric values in numeric column")
	})

	t.Run("small unique sample is not flagged as key", func(t *testing.T) {
		q := computeQuality(models.ColumnSchema{Name: "name", DataType: "text"}, []any{"a", "b", "c"})
		assert.NotContains(t, q.Recommendations, "potential primary key")
	})
}

func TestProfile_FanOutMergesFacets(t *testing.T) {
	h := &stubHandler{
		constraints: &models.Constraints{PrimaryKey: []string{"id"}},
		distinct:    []string{"active", "closed"},
	}
	cols := []models.ColumnSchema{
		{Name: "id", DataType: "integer"},
		{Name: "status", DataType: "varchar(10)"},
	}
	sample := sampleOf([]string{"id", "status"},
		map[string]any{"id": 1, "status": "active"},
		map[string]any{"id": 2, "status": "closed"},
		map[string]any{"id": 3, "status": "active"},
	)

	p := NewProfiler(zaptest.NewLogger(t))
	result := p.Profile(context.Background(), h, "main", "accounts", cols, sample, 3)

	require.Len(t, result.Columns, 2)
	assert.Equal(t, []string{"id"}, result.Constraints.PrimaryKey)

	id := result.Columns[0]
	assert.Equal(t, models.ClassNumerical, id.Classification)
	require.NotNil(t, id.NumericStats)
	assert.Equal(t, 1.0, id.NumericStats.Min)
	assert.Equal(t, 3.0, id.NumericStats.Max)

	status := result.Columns[1]
	assert.Equal(t, models.ClassCategorical, status.Classification)
	assert.Equal(t, []string{"active", "closed"}, status.CategoricalValues)
	require.NotNil(t, status.Quality)
	assert.InDelta(t, 100, status.Quality.Completeness, 0.01)
}

func TestProfile_ConstraintFailureIsAbsorbed(t *testing.T) {
	h := &stubHandler{constraintsErr: errors.New("catalog unavailable")}
	cols := []models.ColumnSchema{{Name: "id", DataType: "integer"}}
	sample := sampleOf([]string{"id"}, map[string]any{"id": 1}, map[string]any{"id": 2})

	p := NewProfiler(zaptest.NewLogger(t))
	result := p.Profile(context.Background(), h, "main", "t", cols, sample, 2)

	assert.Empty(t, result.Constraints.PrimaryKey)
	require.Len(t, result.Columns, 1)
	assert.NotNil(t, result.Columns[0].NumericStats)
}

func TestProfile_LargeTableUsesSampleForCategoricals(t *testing.T) {
	h := &stubHandler{distinct: []string{"never", "queried"}}
	cols := []models.ColumnSchema{{Name: "status", DataType: "text"}}
	sample := sampleOf([]string{"status"},
		map[string]any{"status": "active"},
		map[string]any{"status": "closed"},
	)

	p := NewProfiler(zaptest.NewLogger(t))
	result := p.Profile(context.Background(), h, "main", "big", cols, sample, 2_000_000)

	assert.Zero(t, h.distinctCalls)
	assert.ElementsMatch(t, []string{"active", "closed"}, result.Columns[0].CategoricalValues)
}

func TestProfile_DistinctFailureFallsBackToSample(t *testing.T) {
	h := &stubHandler{distinctErr: errors.New("permission denied")}
	cols := []models.ColumnSchema{{Name: "status", DataType: "text"}}
	sample := sampleOf([]string{"status"}, map[string]any{"status": "active"})

	p := NewProfiler(zaptest.NewLogger(t))
	result := p.Profile(context.Background(), h, "main", "t", cols, sample, 10)

	assert.Equal(t, []string{"active"}, result.Columns[0].CategoricalValues)
}

func TestProfile_SkewIssueAppliedAfterJoin(t *testing.T) {
	rows := make([]map[string]any, 0, 101)
	for i := 0; i < 100; i++ {
		rows = append(rows, map[string]any{"v": 1})
	}
	rows = append(rows, map[string]any{"v": 100000})

	cols := []models.ColumnSchema{{Name: "v", DataType: "bigint"}}
	p := NewProfiler(zaptest.NewLogger(t))
	result := p.Profile(context.Background(), &stubHandler{}, "main", "t", cols, sampleOf([]string{"v"}, rows...), int64(len(rows)))

	require.NotNil(t, result.Columns[0].Quality)
	assert.Contains(t, result.Columns[0].Quality.Issues, "highly skewed distribution")
}

func TestMeaningfulValues_DropsDatesAndNumbers(t *testing.T) {
	got := MeaningfulValues([]string{"active", "2024-01-02", "42", "3.14", "closed", ""})
	assert.Equal(t, []string{"active", "closed"}, got)
}

func TestProfile_EmptySample(t *testing.T) {
	cols := []models.ColumnSchema{{Name: "id", DataType: "integer"}}
	p := NewProfiler(zaptest.NewLogger(t))
	result := p.Profile(context.Background(), &stubHandler{}, "main", "empty", cols, sampleOf([]string{"id"}), 0)

	require.Len(t, result.Columns, 1)
	assert.Nil(t, result.Columns[0].NumericStats)
	require.NotNil(t, result.Columns[0].Quality)
	assert.Zero(t, result.Columns[0].Quality.Completeness)
	assert.Zero(t, result.Columns[0].Quality.Uniqueness)
}
