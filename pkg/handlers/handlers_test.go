package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/jobs"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/services"
	"github.com/tablesage/tablesage/pkg/storage"
)

// fakeEngine is an in-memory handler backing the HTTP tests.
type fakeEngine struct {
	schemaCalls atomic.Int64
}

func (h *fakeEngine) Engine() models.Engine { return models.EngineSQLite }
func (h *fakeEngine) TestConnection(ctx context.Context) (*datasource.TestResult, error) {
	return &datasource.TestResult{OK: true, LatencyMS: 3, ServerVersion: "3.46"}, nil
}
func (h *fakeEngine) ListSchemas(ctx context.Context) ([]string, error) {
	return []string{"main", "audit"}, nil
}
func (h *fakeEngine) ListTables(ctx context.Context, schema string) ([]string, error) {
	if schema == "audit" {
		return []string{"events"}, nil
	}
	return []string{"t", "users"}, nil
}
func (h *fakeEngine) TableSchema(ctx context.Context, schema, table string) ([]models.ColumnSchema, error) {
	h.schemaCalls.Add(1)
	return []models.ColumnSchema{
		{Name: "id", DataType: "INTEGER", OrdinalPosition: 1},
		{Name: "name", DataType: "TEXT", OrdinalPosition: 2},
	}, nil
}
func (h *fakeEngine) Indexes(ctx context.Context, schema, table string) ([]models.IndexInfo, error) {
	return []models.IndexInfo{{Name: "pk", Columns: []string{"id"}, IsUnique: true, IsPK: true}}, nil
}
func (h *fakeEngine) Constraints(ctx context.Context, schema, table string) (*models.Constraints, error) {
	return &models.Constraints{PrimaryKey: []string{"id"}}, nil
}
func (h *fakeEngine) RowCount(ctx context.Context, schema, table string, estimate bool) (int64, error) {
	return 3, nil
}
func (h *fakeEngine) Sample(ctx context.Context, schema, table string, opts datasource.SampleOptions) (*models.TableSample, error) {
	return &models.TableSample{
		Columns: []string{"id", "name"},
		Rows: []map[string]any{
			{"id": 1, "name": "a"},
			{"id": 2, "name": "b"},
			{"id": 3, "name": "c"},
		},
		Method: models.SamplingFull,
	}, nil
}
func (h *fakeEngine) DistinctValues(ctx context.Context, schema, table, column string, limit int) ([]string, error) {
	return []string{"a", "b", "c"}, nil
}
func (h *fakeEngine) PartitionInfo(ctx context.Context, schema, table string, maxPartitions int) (*models.PartitionInfo, error) {
	return nil, nil
}
func (h *fakeEngine) CheckCost(ctx context.Context, query string) (*datasource.CostCheck, error) {
	return &datasource.CostCheck{Safe: true, Rationale: "unchecked"}, nil
}
func (h *fakeEngine) Close() error { return nil }

var _ datasource.Handler = (*fakeEngine)(nil)

type fixture struct {
	server *Server
	engine *fakeEngine
	store  *storage.DocumentStore
}

func newFixture(t *testing.T, fileSpecs []models.ConnectionSpec) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	engine := &fakeEngine{}

	datasource.Register(models.EngineSQLite, func(ctx context.Context, spec *models.ConnectionSpec, secret string, l *zap.Logger) (datasource.Handler, error) {
		return engine, nil
	})

	manager := datasource.NewManager(logger)
	t.Cleanup(manager.Close)

	registry := services.NewConnectionRegistry(manager, services.NewSessionCache(), nil, fileSpecs, logger)
	pipeline := services.NewPipeline(registry, nil, logger)

	store, err := storage.NewDocumentStore(t.TempDir(), logger)
	require.NoError(t, err)

	jobManager := jobs.NewManager(logger)
	t.Cleanup(jobManager.Shutdown)

	semantic := services.NewSemanticModelService(store, logger)
	return &fixture{
		server: NewServer(registry, pipeline, semantic, store, jobManager, logger),
		engine: engine,
		store:  store,
	}
}

func memConnection() []models.ConnectionSpec {
	return []models.ConnectionSpec{{Name: "mem", Engine: models.EngineSQLite, Path: ":memory:"}}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.server.Routes().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestConnectionCRUD(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/connections", models.ConnectionSpec{
		Name: "local", Engine: models.EngineSQLite, Path: "/tmp/x.db",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/connections/local", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	spec := decode[models.ConnectionSpec](t, rec)
	assert.Equal(t, models.EngineSQLite, spec.Engine)

	rec = f.do(t, http.MethodGet, "/api/connections", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/connections/local", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/connections/local", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateConnection_UnknownEngine(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/connections", map[string]any{
		"name": "bad", "engine": "mongodb",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTestConnection(t *testing.T) {
	f := newFixture(t, memConnection())
	rec := f.do(t, http.MethodPost, "/api/connections/mem/test", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	result := decode[datasource.TestResult](t, rec)
	assert.True(t, result.OK)
	assert.Equal(t, "3.46", result.ServerVersion)
}

func TestListSchemas_HonorsFilter(t *testing.T) {
	specs := memConnection()
	specs[0].PredefinedSchemas = map[string]*models.SchemaFilter{
		"main": {Enabled: true, IncludePatterns: []string{"^wont_match$"}},
	}
	f := newFixture(t, specs)

	rec := f.do(t, http.MethodGet, "/api/connections/mem/schemas", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Schemas []schemaListing `json:"schemas"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Schemas, 2)

	byName := map[string]schemaListing{}
	for _, s := range body.Schemas {
		byName[s.Name] = s
	}
	// Filtered to nothing is an empty listing, not an error.
	assert.Zero(t, byName["main"].TableCount)
	assert.Empty(t, byName["main"].Tables)
	// Unfiltered schemas pass through.
	assert.Equal(t, []string{"events"}, byName["audit"].Tables)
}

func TestListTables_AllowedSchemas(t *testing.T) {
	specs := memConnection()
	specs[0].AllowedSchemas = []string{"main"}
	f := newFixture(t, specs)

	rec := f.do(t, http.MethodGet, "/api/connections/mem/schemas/audit/tables", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/connections/mem/schemas/main/tables", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestTableInfo(t *testing.T) {
	f := newFixture(t, memConnection())
	rec := f.do(t, http.MethodGet, "/api/connections/mem/schemas/main/tables/t", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Columns  []models.ColumnSchema `json:"columns"`
		RowCount int64                 `json:"row_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Columns, 2)
	assert.Equal(t, int64(3), body.RowCount)
}

func TestPredefinedSchemaCRUD(t *testing.T) {
	f := newFixture(t, memConnection())

	rec := f.do(t, http.MethodPost, "/api/connections/mem/predefined-schemas/main", models.SchemaFilter{
		Enabled: true, Tables: []string{"t"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/connections/mem/predefined-schemas", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		PredefinedSchemas map[string]*models.SchemaFilter `json:"predefined_schemas"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body.PredefinedSchemas, "main")
	assert.Equal(t, []string{"t"}, body.PredefinedSchemas["main"].Tables)

	rec = f.do(t, http.MethodDelete, "/api/connections/mem/predefined-schemas/main", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/connections/mem/predefined-schemas/main", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateSync(t *testing.T) {
	f := newFixture(t, memConnection())

	rec := f.do(t, http.MethodPost, "/api/metadata/generate", map[string]any{
		"database": "mem", "schema": "main", "table": "t",
		"sample_size": 10, "num_samples": 1,
		"sections": models.SectionFlags{},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	doc := decode[models.MetadataDocument](t, rec)
	assert.Equal(t, []string{"id", "name"}, doc.ColumnOrder)
	assert.Equal(t, models.ClassNumerical, doc.Columns["id"].Classification)
	assert.Equal(t, models.ClassCategorical, doc.Columns["name"].Classification)
	assert.Equal(t, models.SectionFlags{}, doc.ProcessingStats.OptionalSections)

	// The document is persisted as part of the sync call.
	rec = f.do(t, http.MethodGet, "/api/metadata/documents/mem/main/t", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/metadata/documents/mem/main/t", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/metadata/documents/mem/main/t", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGenerateSync_ValidationErrors(t *testing.T) {
	f := newFixture(t, memConnection())

	rec := f.do(t, http.MethodPost, "/api/metadata/generate", map[string]any{
		"database": "mem", "schema": "main", "table": "t", "sample_size": 20000,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/metadata/generate", map[string]any{
		"database": "mem", "schema": "main",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateSync_RejectsInjectionBeforeAnyQuery(t *testing.T) {
	f := newFixture(t, memConnection())

	rec := f.do(t, http.MethodPost, "/api/metadata/generate", map[string]any{
		"database": "mem", "schema": "main", "table": "t; DROP TABLE users",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.engine.schemaCalls.Load())
}

func TestGenerateAsync(t *testing.T) {
	f := newFixture(t, memConnection())

	rec := f.do(t, http.MethodPost, "/api/metadata/jobs", map[string]any{
		"database": "mem", "schema": "main", "table": "t",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.JobID)

	deadline := time.After(5 * time.Second)
	for {
		rec = f.do(t, http.MethodGet, "/api/metadata/jobs/"+submitted.JobID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		job := decode[models.Job](t, rec)
		if job.State.Terminal() {
			require.Equal(t, models.JobCompleted, job.State, job.Error)
			assert.Equal(t, 1.0, job.Progress)
			break
		}
		select {
		case <-deadline:
			t.Fatal("job never completed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Async completion implies the document is already durable.
	rec = f.do(t, http.MethodGet, "/api/metadata/documents/mem/main/t", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJobStatus_Unknown(t *testing.T) {
	f := newFixture(t, memConnection())
	rec := f.do(t, http.MethodGet, "/api/metadata/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoreDocument(t *testing.T) {
	f := newFixture(t, nil)

	doc := models.MetadataDocument{Database: "ext", Schema: "public", Table: "orders"}
	rec := f.do(t, http.MethodPost, "/api/metadata/documents", doc)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/metadata/documents/ext/public/orders", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[models.MetadataDocument](t, rec)
	assert.Equal(t, models.CurrentDocumentVersion, got.Version)
}

func TestSemanticModelEndpoint(t *testing.T) {
	f := newFixture(t, memConnection())

	rec := f.do(t, http.MethodGet, "/api/semantic-model/mem", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/metadata/generate", map[string]any{
		"database": "mem", "schema": "main", "table": "t",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/semantic-model/mem", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	model := decode[services.SemanticModel](t, rec)
	require.Len(t, model.Entities, 1)
	assert.Equal(t, "t", model.Entities[0].Table)
}
