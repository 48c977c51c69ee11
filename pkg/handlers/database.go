package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/services"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	specs := s.registry.List(ownerFrom(r))
	if specs == nil {
		specs = []models.ConnectionSpec{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": specs})
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	spec, err := s.registry.Get(ownerFrom(r), r.PathValue("name"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (s *Server) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var spec models.ConnectionSpec
	if err := decodeBody(r, &spec); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.registry.Add(ownerFrom(r), spec); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created", "name": spec.Name})
}

func (s *Server) handleUpdateConnection(w http.ResponseWriter, r *http.Request) {
	var spec models.ConnectionSpec
	if err := decodeBody(r, &spec); err != nil {
		writeError(w, s.logger, err)
		return
	}
	spec.Name = r.PathValue("name")
	if err := s.registry.Update(ownerFrom(r), spec); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(ownerFrom(r), r.PathValue("name")); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	handler, _, err := s.registry.Resolve(r.Context(), ownerFrom(r), r.PathValue("name"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	result, err := handler.TestConnection(r.Context())
	if err != nil {
		writeError(w, s.logger, apperrors.Wrap(apperrors.KindConnectionFailed, "connection test failed", err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// schemaListing is the response shape of the schema browser.
type schemaListing struct {
	Name       string   `json:"name"`
	TableCount int      `json:"table_count"`
	Tables     []string `json:"tables"`
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)
	handler, spec, err := s.registry.Resolve(r.Context(), owner, r.PathValue("name"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	schemas, err := handler.ListSchemas(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	schemas = restrictSchemas(schemas, spec.AllowedSchemas)

	out := make([]schemaListing, 0, len(schemas))
	for _, schema := range schemas {
		tables, err := handler.ListTables(r.Context(), schema)
		if err != nil {
			s.logger.Warn("table listing failed", zap.String("schema", schema), zap.Error(err))
			tables = nil
		}
		filtered := services.FilterTables(tables, spec.PredefinedSchemas[schema], s.logger)
		out = append(out, schemaListing{Name: schema, TableCount: len(filtered), Tables: filtered})
	}
	writeJSON(w, http.StatusOK, map[string]any{"schemas": out})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	schema := r.PathValue("schema")
	if err := sqlsafe.CheckIdentifier("schema", schema); err != nil {
		writeError(w, s.logger, err)
		return
	}

	owner := ownerFrom(r)
	handler, spec, err := s.registry.Resolve(r.Context(), owner, r.PathValue("name"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if !schemaAllowed(schema, spec.AllowedSchemas) {
		writeError(w, s.logger, apperrors.New(apperrors.KindNotFound, "schema "+schema+" not found"))
		return
	}

	tables, err := handler.ListTables(r.Context(), schema)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	filtered := services.FilterTables(tables, spec.PredefinedSchemas[schema], s.logger)
	writeJSON(w, http.StatusOK, map[string]any{"schema": schema, "tables": filtered})
}

func (s *Server) handleTableInfo(w http.ResponseWriter, r *http.Request) {
	schema, table := r.PathValue("schema"), r.PathValue("table")
	if err := sqlsafe.CheckIdentifier("schema", schema); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := sqlsafe.CheckIdentifier("table", table); err != nil {
		writeError(w, s.logger, err)
		return
	}

	handler, spec, err := s.registry.Resolve(r.Context(), ownerFrom(r), r.PathValue("name"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if !schemaAllowed(schema, spec.AllowedSchemas) {
		writeError(w, s.logger, apperrors.New(apperrors.KindNotFound, "schema "+schema+" not found"))
		return
	}

	cols, err := handler.TableSchema(r.Context(), schema, table)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	indexes, err := handler.Indexes(r.Context(), schema, table)
	if err != nil {
		s.logger.Warn("index introspection failed", zap.String("table", table), zap.Error(err))
		indexes = nil
	}
	rowCount, err := handler.RowCount(r.Context(), schema, table, true)
	if err != nil {
		s.logger.Warn("row count failed", zap.String("table", table), zap.Error(err))
		rowCount = -1
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"schema":    schema,
		"table":     table,
		"columns":   cols,
		"indexes":   indexes,
		"row_count": rowCount,
	})
}

func (s *Server) handleGetPredefinedSchemas(w http.ResponseWriter, r *http.Request) {
	spec, err := s.registry.Get(ownerFrom(r), r.PathValue("name"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	schemas := spec.PredefinedSchemas
	if schemas == nil {
		schemas = map[string]*models.SchemaFilter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"predefined_schemas": schemas})
}

func (s *Server) handlePutPredefinedSchemas(w http.ResponseWriter, r *http.Request) {
	var schemas map[string]*models.SchemaFilter
	if err := decodeBody(r, &schemas); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.registry.SetPredefinedSchemas(ownerFrom(r), r.PathValue("name"), schemas); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleSetPredefinedSchema(w http.ResponseWriter, r *http.Request) {
	var filter models.SchemaFilter
	if err := decodeBody(r, &filter); err != nil {
		writeError(w, s.logger, err)
		return
	}

	owner, name, schema := ownerFrom(r), r.PathValue("name"), r.PathValue("schema")
	spec, err := s.registry.Get(owner, name)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	schemas := make(map[string]*models.SchemaFilter, len(spec.PredefinedSchemas)+1)
	for k, v := range spec.PredefinedSchemas {
		schemas[k] = v
	}
	schemas[schema] = &filter

	if err := s.registry.SetPredefinedSchemas(owner, name, schemas); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleDeletePredefinedSchema(w http.ResponseWriter, r *http.Request) {
	owner, name, schema := ownerFrom(r), r.PathValue("name"), r.PathValue("schema")
	spec, err := s.registry.Get(owner, name)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if _, ok := spec.PredefinedSchemas[schema]; !ok {
		writeError(w, s.logger, apperrors.New(apperrors.KindNotFound, "no filter for schema "+schema))
		return
	}

	schemas := make(map[string]*models.SchemaFilter, len(spec.PredefinedSchemas))
	for k, v := range spec.PredefinedSchemas {
		if k != schema {
			schemas[k] = v
		}
	}
	if err := s.registry.SetPredefinedSchemas(owner, name, schemas); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func restrictSchemas(schemas, allowed []string) []string {
	if len(allowed) == 0 {
		return schemas
	}
	allowSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowSet[a] = true
	}
	out := schemas[:0:0]
	for _, s := range schemas {
		if allowSet[s] {
			out = append(out, s)
		}
	}
	return out
}

func schemaAllowed(schema string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == schema {
			return true
		}
	}
	return false
}
