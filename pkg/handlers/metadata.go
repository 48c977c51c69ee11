package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

// generateBody is the wire shape of a generation request. Sections is a
// pointer so an omitted block defaults to all-enabled.
type generateBody struct {
	Database      string               `json:"database"`
	Schema        string               `json:"schema"`
	Table         string               `json:"table"`
	SampleSize    int                  `json:"sample_size"`
	NumSamples    int                  `json:"num_samples"`
	MaxPartitions int                  `json:"max_partitions"`
	Sections      *models.SectionFlags `json:"sections"`
}

func (s *Server) decodeGenerateRequest(r *http.Request) (*models.GenerateRequest, error) {
	var body generateBody
	if err := decodeBody(r, &body); err != nil {
		return nil, err
	}

	req := &models.GenerateRequest{
		Database:      body.Database,
		Schema:        body.Schema,
		Table:         body.Table,
		SampleSize:    body.SampleSize,
		NumSamples:    body.NumSamples,
		MaxPartitions: body.MaxPartitions,
	}
	if body.Sections != nil {
		req.Sections = *body.Sections
	} else {
		req.Sections = models.AllSections()
	}
	req.ApplyDefaults()

	if err := s.validate.Struct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "invalid generation request", err)
	}
	if err := sqlsafe.CheckIdentifier("schema", req.Schema); err != nil {
		return nil, err
	}
	if err := sqlsafe.CheckIdentifier("table", req.Table); err != nil {
		return nil, err
	}
	if findings := sqlsafe.ScreenAll(map[string]string{
		"database": req.Database,
		"schema":   req.Schema,
		"table":    req.Table,
	}); len(findings) > 0 {
		return nil, apperrors.New(apperrors.KindValidation,
			fmt.Sprintf("request field %q matched an injection signature", findings[0].Field))
	}
	return req, nil
}

func (s *Server) handleGenerateSync(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeGenerateRequest(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	doc, err := s.pipeline.Generate(r.Context(), ownerFrom(r), req, nil)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.store.Write(doc); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGenerateAsync(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeGenerateRequest(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	owner := ownerFrom(r)

	job := s.jobs.Submit(models.JobKindMetadata, func(ctx context.Context, progress func(float64)) (any, error) {
		doc, err := s.pipeline.Generate(ctx, owner, req, progress)
		if err != nil {
			return nil, err
		}
		// The document must be durable before the job reads as completed.
		if err := s.store.Write(doc); err != nil {
			return nil, err
		}
		return doc, nil
	})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.State,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.jobs.List()})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Cancel(r.PathValue("id")); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
}

func (s *Server) documentIdentity(r *http.Request) (db, schema, table string, err error) {
	db, schema, table = r.PathValue("db"), r.PathValue("schema"), r.PathValue("table")
	if err := sqlsafe.CheckIdentifier("schema", schema); err != nil {
		return "", "", "", err
	}
	if err := sqlsafe.CheckIdentifier("table", table); err != nil {
		return "", "", "", err
	}
	return db, schema, table, nil
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	db, schema, table, err := s.documentIdentity(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	doc, err := s.store.Read(db, schema, table)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	db, schema, table, err := s.documentIdentity(r)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if err := s.store.Delete(db, schema, table); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleStoreDocument(w http.ResponseWriter, r *http.Request) {
	var doc models.MetadataDocument
	if err := decodeBody(r, &doc); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if doc.Database == "" || doc.Schema == "" || doc.Table == "" {
		writeError(w, s.logger, apperrors.New(apperrors.KindValidation, "database, schema and table are required"))
		return
	}
	if err := sqlsafe.CheckIdentifiers("identifier", doc.Schema, doc.Table); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if doc.Version == 0 {
		doc.Version = models.CurrentDocumentVersion
	}
	if err := s.store.Write(&doc); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "stored"})
}

func (s *Server) handleSemanticModel(w http.ResponseWriter, r *http.Request) {
	model, err := s.semantic.Build(r.PathValue("db"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model)
}
