package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/jobs"
	"github.com/tablesage/tablesage/pkg/services"
	"github.com/tablesage/tablesage/pkg/storage"
)

// Server bundles the HTTP handlers and their dependencies.
type Server struct {
	registry *services.ConnectionRegistry
	pipeline *services.Pipeline
	semantic *services.SemanticModelService
	store    *storage.DocumentStore
	jobs     *jobs.Manager
	validate *validator.Validate
	logger   *zap.Logger
}

// NewServer creates the HTTP surface over the assembled services.
func NewServer(registry *services.ConnectionRegistry, pipeline *services.Pipeline, semantic *services.SemanticModelService, store *storage.DocumentStore, jobManager *jobs.Manager, logger *zap.Logger) *Server {
	return &Server{
		registry: registry,
		pipeline: pipeline,
		semantic: semantic,
		store:    store,
		jobs:     jobManager,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.Named("http"),
	}
}

// Routes registers every endpoint on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	// Connection management.
	mux.HandleFunc("GET /api/connections", s.handleListConnections)
	mux.HandleFunc("POST /api/connections", s.handleCreateConnection)
	mux.HandleFunc("GET /api/connections/{name}", s.handleGetConnection)
	mux.HandleFunc("PUT /api/connections/{name}", s.handleUpdateConnection)
	mux.HandleFunc("DELETE /api/connections/{name}", s.handleDeleteConnection)
	mux.HandleFunc("POST /api/connections/{name}/test", s.handleTestConnection)

	// Schema browsing.
	mux.HandleFunc("GET /api/connections/{name}/schemas", s.handleListSchemas)
	mux.HandleFunc("GET /api/connections/{name}/schemas/{schema}/tables", s.handleListTables)
	mux.HandleFunc("GET /api/connections/{name}/schemas/{schema}/tables/{table}", s.handleTableInfo)

	// Predefined schema filters.
	mux.HandleFunc("GET /api/connections/{name}/predefined-schemas", s.handleGetPredefinedSchemas)
	mux.HandleFunc("PUT /api/connections/{name}/predefined-schemas", s.handlePutPredefinedSchemas)
	mux.HandleFunc("POST /api/connections/{name}/predefined-schemas/{schema}", s.handleSetPredefinedSchema)
	mux.HandleFunc("DELETE /api/connections/{name}/predefined-schemas/{schema}", s.handleDeletePredefinedSchema)

	// Metadata generation and stored documents.
	mux.HandleFunc("POST /api/metadata/generate", s.handleGenerateSync)
	mux.HandleFunc("POST /api/metadata/jobs", s.handleGenerateAsync)
	mux.HandleFunc("GET /api/metadata/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/metadata/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("DELETE /api/metadata/jobs/{id}", s.handleCancelJob)
	mux.HandleFunc("POST /api/metadata/documents", s.handleStoreDocument)
	mux.HandleFunc("GET /api/metadata/documents/{db}/{schema}/{table}", s.handleGetDocument)
	mux.HandleFunc("DELETE /api/metadata/documents/{db}/{schema}/{table}", s.handleDeleteDocument)

	// Semantic model.
	mux.HandleFunc("GET /api/semantic-model/{db}", s.handleSemanticModel)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
