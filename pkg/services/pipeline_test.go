package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/llm"
	"github.com/tablesage/tablesage/pkg/models"
)

// pipeHandler is a scriptable in-memory engine for pipeline tests.
type pipeHandler struct {
	schema      []models.ColumnSchema
	schemaErr   error
	sample      *models.TableSample
	sampleErr   error
	constraints models.Constraints
	partitions  *models.PartitionInfo
	rowCount    int64
}

func (h *pipeHandler) Engine() models.Engine { return models.EngineDuckDB }
func (h *pipeHandler) TestConnection(ctx context.Context) (*datasource.TestResult, error) {
	return &datasource.TestResult{OK: true}, nil
}
func (h *pipeHandler) ListSchemas(ctx context.Context) ([]string, error) {
	return []string{"main"}, nil
}
func (h *pipeHandler) ListTables(ctx context.Context, schema string) ([]string, error) {
	return []string{"t"}, nil
}
func (h *pipeHandler) TableSchema(ctx context.Context, schema, table string) ([]models.ColumnSchema, error) {
	return h.schema, h.schemaErr
}
func (h *pipeHandler) Indexes(ctx context.Context, schema, table string) ([]models.IndexInfo, error) {
	return nil, nil
}
func (h *pipeHandler) Constraints(ctx context.Context, schema, table string) (*models.Constraints, error) {
	return &h.constraints, nil
}
func (h *pipeHandler) RowCount(ctx context.Context, schema, table string, estimate bool) (int64, error) {
	return h.rowCount, nil
}
func (h *pipeHandler) Sample(ctx context.Context, schema, table string, opts datasource.SampleOptions) (*models.TableSample, error) {
	return h.sample, h.sampleErr
}
func (h *pipeHandler) DistinctValues(ctx context.Context, schema, table, column string, limit int) ([]string, error) {
	return nil, errors.New("not scripted")
}
func (h *pipeHandler) PartitionInfo(ctx context.Context, schema, table string, maxPartitions int) (*models.PartitionInfo, error) {
	return h.partitions, nil
}
func (h *pipeHandler) CheckCost(ctx context.Context, query string) (*datasource.CostCheck, error) {
	return &datasource.CostCheck{Safe: true, Rationale: "unchecked"}, nil
}
func (h *pipeHandler) Close() error { return nil }

var _ datasource.Handler = (*pipeHandler)(nil)

// newPipelineFixture registers a fake duckdb factory serving h and
// returns a pipeline over a single file-tier connection named "mem".
func newPipelineFixture(t *testing.T, h *pipeHandler, gateway *llm.Gateway) *Pipeline {
	t.Helper()
	logger := zaptest.NewLogger(t)

	datasource.Register(models.EngineDuckDB, func(ctx context.Context, spec *models.ConnectionSpec, secret string, l *zap.Logger) (datasource.Handler, error) {
		return h, nil
	})

	manager := datasource.NewManager(logger)
	t.Cleanup(manager.Close)

	registry := NewConnectionRegistry(manager, NewSessionCache(),
		nil,
		[]models.ConnectionSpec{{Name: "mem", Engine: models.EngineDuckDB, Path: ":memory:"}},
		logger)
	return NewPipeline(registry, gateway, logger)
}

func simpleTable() *pipeHandler {
	return &pipeHandler{
		schema: []models.ColumnSchema{
			{Name: "id", DataType: "INTEGER", OrdinalPosition: 1},
			{Name: "name", DataType: "TEXT", OrdinalPosition: 2},
		},
		sample: &models.TableSample{
			Columns: []string{"id", "name"},
			Rows: []map[string]any{
				{"id": 1, "name": "a"},
				{"id": 2, "name": "b"},
				{"id": 3, "name": "c"},
			},
			Method: models.SamplingFull,
		},
		constraints: models.Constraints{PrimaryKey: []string{"id"}},
		rowCount:    3,
	}
}

func TestGenerate_SimpleTableAllSectionsOff(t *testing.T) {
	p := newPipelineFixture(t, simpleTable(), nil)

	var progress []float64
	req := &models.GenerateRequest{
		Database: "mem", Schema: "main", Table: "t",
		SampleSize: 10, NumSamples: 1,
	}
	doc, err := p.Generate(context.Background(), "alice", req, func(f float64) {
		progress = append(progress, f)
	})
	require.NoError(t, err)
	require.NotNil(t, doc)

	assert.Equal(t, models.CurrentDocumentVersion, doc.Version)
	assert.Equal(t, []string{"id", "name"}, doc.ColumnOrder)
	assert.Equal(t, models.SamplingFull, doc.SamplingMethod)
	assert.Equal(t, []string{"id"}, doc.Constraints.PrimaryKey)

	id := doc.Columns["id"]
	require.NotNil(t, id)
	assert.Equal(t, models.ClassNumerical, id.Classification)
	assert.Equal(t, models.SourcePatternBased, id.Definition.Source)

	name := doc.Columns["name"]
	require.NotNil(t, name)
	assert.Equal(t, models.ClassCategorical, name.Classification)
	assert.Nil(t, name.Glossary)

	assert.Equal(t, models.SectionFlags{}, doc.ProcessingStats.OptionalSections)
	assert.Empty(t, doc.TableInsights.BusinessRules)
	assert.Equal(t, []float64{0.1, 0.4, 0.7, 1.0}, progress)

	stageNames := make([]string, 0, len(doc.ProcessingStats.Steps))
	for _, s := range doc.ProcessingStats.Steps {
		stageNames = append(stageNames, s.Name)
	}
	// Glossary is gated off by its flag.
	assert.Equal(t, []string{StageAcquire, StageProfile, StageDefinitions, StageInsights, StageAssemble}, stageNames)
}

func TestGenerate_EnrichedMilestoneFollowsLLMStages(t *testing.T) {
	client := llm.NewMockClient(
		llm.MockResponse{Content: `{"name": "Customer name.", "customer_region": "Geographic region of the customer account."}`},
		llm.MockResponse{Content: `{"domain": "Sales", "category": "Reference Data", "description": "Customer regions.", "purpose": "Lookup."}`},
	)
	gateway := llm.NewGateway(client, llm.NewCostLedger(100), llm.NewPriceTable(nil, 0), zaptest.NewLogger(t))

	h := simpleTable()
	h.schema = append(h.schema, models.ColumnSchema{Name: "customer_region", DataType: "TEXT", OrdinalPosition: 3})
	h.sample.Columns = append(h.sample.Columns, "customer_region")
	for i, region := range []string{"north", "south", "east"} {
		h.sample.Rows[i]["customer_region"] = region
	}

	p := newPipelineFixture(t, h, gateway)

	callsAt := map[float64]int{}
	req := &models.GenerateRequest{
		Database: "mem", Schema: "main", Table: "t",
		SampleSize: 10, NumSamples: 1,
	}
	_, err := p.Generate(context.Background(), "alice", req, func(f float64) {
		callsAt[f] = client.CallCount()
	})
	require.NoError(t, err)

	// The 0.7 milestone covers the LLM stages as a group: both the
	// definitions batch and the insights call land between 0.4 and 0.7.
	assert.Equal(t, 0, callsAt[ProgressProfiled])
	assert.Equal(t, 2, callsAt[ProgressEnriched])
}

func TestGenerate_AcquireFailureAborts(t *testing.T) {
	h := simpleTable()
	h.schemaErr = errors.New("connection reset by peer")
	p := newPipelineFixture(t, h, nil)

	req := &models.GenerateRequest{Database: "mem", Schema: "main", Table: "t"}
	doc, err := p.Generate(context.Background(), "alice", req, nil)

	assert.Nil(t, doc)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindStageFailed, apperrors.KindOf(err))

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, StageAcquire, appErr.Stage)
}

func TestGenerate_MissingTableStaysNotFound(t *testing.T) {
	h := simpleTable()
	h.schemaErr = apperrors.New(apperrors.KindNotFound, "relation does not exist")
	p := newPipelineFixture(t, h, nil)

	req := &models.GenerateRequest{Database: "mem", Schema: "main", Table: "t"}
	_, err := p.Generate(context.Background(), "alice", req, nil)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestGenerate_RejectsUnsafeIdentifiers(t *testing.T) {
	p := newPipelineFixture(t, simpleTable(), nil)

	req := &models.GenerateRequest{Database: "mem", Schema: "main", Table: "t; DROP TABLE users"}
	doc, err := p.Generate(context.Background(), "alice", req, nil)

	assert.Nil(t, doc)
	assert.Equal(t, apperrors.KindInvalidIdentifier, apperrors.KindOf(err))
}

func TestGenerate_UnknownConnection(t *testing.T) {
	p := newPipelineFixture(t, simpleTable(), nil)

	req := &models.GenerateRequest{Database: "nope", Schema: "main", Table: "t"}
	_, err := p.Generate(context.Background(), "alice", req, nil)
	require.Error(t, err)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestGenerate_CostCeilingDegradesToFallbacks(t *testing.T) {
	// A ledger this tight rejects every call before dialing.
	gw := llm.NewGateway(
		llm.NewMockClient(llm.MockResponse{Content: `{"name": {"definition": "never reached"}}`}),
		llm.NewCostLedger(0.0000001),
		llm.NewPriceTable(nil, 0),
		zaptest.NewLogger(t),
	)
	p := newPipelineFixture(t, simpleTable(), gw)

	req := &models.GenerateRequest{Database: "mem", Schema: "main", Table: "t", Sections: models.AllSections()}
	doc, err := p.Generate(context.Background(), "alice", req, nil)
	require.NoError(t, err)

	assert.Equal(t, models.SourceFallback, doc.Columns["name"].Definition.Source)
	assert.Equal(t, "Business Data", doc.TableInsights.Domain)
	assert.Zero(t, doc.ProcessingStats.TotalTokens)
}

func TestGenerate_PartitionColumnNoted(t *testing.T) {
	h := simpleTable()
	h.schema = append(h.schema, models.ColumnSchema{Name: "event_date", DataType: "DATE", OrdinalPosition: 3})
	h.partitions = &models.PartitionInfo{
		IsPartitioned:   true,
		PartitionType:   "time",
		PartitionColumn: "event_date",
		AvailablePartitions: []models.PartitionStat{
			{PartitionID: "20240103", RowCount: 1000000},
			{PartitionID: "20240102", RowCount: 1000000},
			{PartitionID: "20240101", RowCount: 1000000},
		},
	}
	p := newPipelineFixture(t, h, nil)

	req := &models.GenerateRequest{Database: "mem", Schema: "main", Table: "t"}
	doc, err := p.Generate(context.Background(), "alice", req, nil)
	require.NoError(t, err)

	require.NotNil(t, doc.PartitionInfo)
	assert.True(t, doc.PartitionInfo.IsPartitioned)
	assert.Contains(t, doc.Columns["event_date"].Definition.Definition, "partitioning key")
}

func TestGenerate_CancelledContext(t *testing.T) {
	p := newPipelineFixture(t, simpleTable(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := &models.GenerateRequest{Database: "mem", Schema: "main", Table: "t"}
	_, err := p.Generate(ctx, "alice", req, nil)
	require.Error(t, err)
}
