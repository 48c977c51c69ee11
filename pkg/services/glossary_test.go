package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tablesage/tablesage/pkg/llm"
	"github.com/tablesage/tablesage/pkg/models"
)

func TestBuildGlossaries_DefinesCategoricalValues(t *testing.T) {
	gw := testGateway(t, llm.MockResponse{Content: `{
		"active": "The account is in good standing.",
		"closed": "The account was terminated.",
		"hallucinated": "Not an observed value."
	}`})
	svc := NewGlossaryService(gw, zaptest.NewLogger(t))

	profiles := []models.ColumnProfile{
		{Name: "status", Classification: models.ClassCategorical, CategoricalValues: []string{"active", "closed"}},
		{Name: "amount", Classification: models.ClassNumerical},
	}
	got := svc.BuildGlossaries(context.Background(), "accounts", profiles)

	require.Contains(t, got, "status")
	assert.Equal(t, "The account is in good standing.", got["status"]["active"])
	assert.Equal(t, "The account was terminated.", got["status"]["closed"])
	// Values the model invented are dropped.
	assert.NotContains(t, got["status"], "hallucinated")
}

func TestBuildGlossaries_SkipsColumnsWithoutMeaningfulValues(t *testing.T) {
	svc := NewGlossaryService(testGateway(t), zaptest.NewLogger(t))

	profiles := []models.ColumnProfile{
		// Only dates and numbers: nothing worth defining.
		{Name: "event_date", Classification: models.ClassCategorical, CategoricalValues: []string{"2024-01-01", "2024-01-02"}},
		{Name: "bucket", Classification: models.ClassCategorical, CategoricalValues: []string{"1", "2", "3"}},
	}
	got := svc.BuildGlossaries(context.Background(), "events", profiles)
	assert.Nil(t, got)
}

func TestBuildGlossaries_SkipsOversizedValueSets(t *testing.T) {
	values := make([]string, 25)
	for i := range values {
		values[i] = "value_" + string(rune('a'+i))
	}
	svc := NewGlossaryService(testGateway(t), zaptest.NewLogger(t))

	profiles := []models.ColumnProfile{
		{Name: "code", Classification: models.ClassCategorical, CategoricalValues: values},
	}
	assert.Nil(t, svc.BuildGlossaries(context.Background(), "t", profiles))
}

func TestBuildGlossaries_PerColumnFailureSkipsColumn(t *testing.T) {
	// A non-retryable error fails the first column's call fast.
	gw := testGateway(t,
		llm.MockResponse{Err: errors.New("invalid api key")},
		llm.MockResponse{Content: `{"red": "Alert state."}`},
	)
	svc := NewGlossaryService(gw, zaptest.NewLogger(t))

	profiles := []models.ColumnProfile{
		{Name: "status", Classification: models.ClassCategorical, CategoricalValues: []string{"active"}},
		{Name: "severity", Classification: models.ClassCategorical, CategoricalValues: []string{"red"}},
	}
	got := svc.BuildGlossaries(context.Background(), "t", profiles)

	require.NotNil(t, got)
	assert.NotContains(t, got, "status")
	assert.Equal(t, "Alert state.", got["severity"]["red"])
}
