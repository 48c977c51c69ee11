package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/adapters/datasource"
	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/llm"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

// Stage names reported in processing stats and structured errors.
const (
	StageAcquire     = "acquire"
	StageProfile     = "profile"
	StageDefinitions = "column_definitions"
	StageGlossary    = "categorical_glossary"
	StageInsights    = "table_insights"
	StageAssemble    = "assemble"
)

// Progress values reported at stage boundaries. The LLM stages
// (definitions, glossary, insights) report as one group.
const (
	ProgressAcquired = 0.1
	ProgressProfiled = 0.4
	ProgressEnriched = 0.7
	ProgressComplete = 1.0
)

// ProgressFunc receives pipeline progress in [0, 1].
type ProgressFunc func(float64)

// Pipeline runs the six-stage metadata generation sequence.
type Pipeline struct {
	registry    *ConnectionRegistry
	profiler    *Profiler
	definitions *DefinitionService
	glossary    *GlossaryService
	insights    *InsightsService
	gateway     *llm.Gateway
	logger      *zap.Logger
}

// NewPipeline wires the orchestrator. gateway may be nil, in which case
// every LLM stage degrades to its deterministic fallback.
func NewPipeline(registry *ConnectionRegistry, gateway *llm.Gateway, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		registry:    registry,
		profiler:    NewProfiler(logger),
		definitions: NewDefinitionService(gateway, logger),
		glossary:    NewGlossaryService(gateway, logger),
		insights:    NewInsightsService(gateway, logger),
		gateway:     gateway,
		logger:      logger.Named("pipeline"),
	}
}

// stageClock accumulates per-stage timings.
type stageClock struct {
	steps []models.StageTiming
}

func (c *stageClock) run(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	end := time.Now()
	c.steps = append(c.steps, models.StageTiming{
		Name:        name,
		StartedAt:   start,
		CompletedAt: end,
		DurationMS:  end.Sub(start).Milliseconds(),
	})
	return err
}

// Generate runs the full pipeline for one table and returns the
// assembled document. Stage 1 failure aborts with a structured error;
// later stages degrade to fallbacks. progress may be nil.
func (p *Pipeline) Generate(ctx context.Context, owner string, req *models.GenerateRequest, progress ProgressFunc) (*models.MetadataDocument, error) {
	req.ApplyDefaults()
	if progress == nil {
		progress = func(float64) {}
	}
	if err := sqlsafe.CheckIdentifiers("identifier", req.Schema, req.Table); err != nil {
		return nil, err
	}

	startedAt := time.Now()
	usageBefore := p.usage()
	clock := &stageClock{}

	// Stage 1: acquire.
	var (
		handler  datasource.Handler
		spec     *models.ConnectionSpec
		cols     []models.ColumnSchema
		indexes  []models.IndexInfo
		partInfo *models.PartitionInfo
		rowCount int64
		sample   *models.TableSample
	)
	err := clock.run(StageAcquire, func() error {
		var err error
		handler, spec, err = p.registry.Resolve(ctx, owner, req.Database)
		if err != nil {
			return err
		}

		cols, err = handler.TableSchema(ctx, req.Schema, req.Table)
		if err != nil {
			return err
		}

		if indexes, err = handler.Indexes(ctx, req.Schema, req.Table); err != nil {
			p.logger.Warn("index introspection failed", zap.String("table", req.Table), zap.Error(err))
			indexes, err = nil, nil
		}
		if partInfo, err = handler.PartitionInfo(ctx, req.Schema, req.Table, req.MaxPartitions); err != nil {
			p.logger.Warn("partition introspection failed", zap.String("table", req.Table), zap.Error(err))
			partInfo, err = nil, nil
		}
		if rowCount, err = handler.RowCount(ctx, req.Schema, req.Table, true); err != nil {
			p.logger.Warn("row count failed", zap.String("table", req.Table), zap.Error(err))
			rowCount, err = -1, nil
		}

		sample, err = handler.Sample(ctx, req.Schema, req.Table, datasource.SampleOptions{
			Size:          req.SampleSize,
			Count:         req.NumSamples,
			MaxPartitions: req.MaxPartitions,
		})
		return err
	})
	if err != nil {
		// Keep caller-meaningful kinds visible through the stage wrapper;
		// everything else is a stage failure.
		switch kind := apperrors.KindOf(err); kind {
		case apperrors.KindNotFound, apperrors.KindAuthMissing, apperrors.KindInvalidIdentifier,
			apperrors.KindConnectionFailed, apperrors.KindCostExceeded, apperrors.KindCancelled:
			return nil, apperrors.Stage(kind, StageAcquire, "failed to acquire schema and sample", err)
		default:
			return nil, apperrors.Stage(apperrors.KindStageFailed, StageAcquire, "failed to acquire schema and sample", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindCancelled, "pipeline cancelled", err)
	}
	progress(ProgressAcquired)

	// Stage 2: profile fan-out. Facet failures are absorbed inside.
	var profile *ProfileResult
	_ = clock.run(StageProfile, func() error {
		profile = p.profiler.Profile(ctx, handler, req.Schema, req.Table, cols, sample, rowCount)
		return nil
	})
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindCancelled, "pipeline cancelled", err)
	}
	progress(ProgressProfiled)

	// Stage 3: column definitions. LLM failure degrades per column.
	partitionColumn := ""
	if partInfo != nil && partInfo.IsPartitioned {
		partitionColumn = partInfo.PartitionColumn
	}
	var defs map[string]models.ColumnDefinition
	_ = clock.run(StageDefinitions, func() error {
		defs = p.definitions.DefineColumns(ctx, req.Database, req.Schema, req.Table, cols, profile.Columns, partitionColumn)
		return nil
	})
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindCancelled, "pipeline cancelled", err)
	}

	// Stage 4: categorical glossary, gated by its flag.
	var glossaries map[string]map[string]string
	if req.Sections.CategoricalDefinitions {
		_ = clock.run(StageGlossary, func() error {
			glossaries = p.glossary.BuildGlossaries(ctx, req.Table, profile.Columns)
			return nil
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindCancelled, "pipeline cancelled", err)
	}

	// Stage 5: table insights. Always runs; falls back on LLM failure.
	var insights models.TableInsights
	_ = clock.run(StageInsights, func() error {
		insights, _ = p.insights.BuildInsights(ctx, req.Table, cols, profile.Constraints, defs, sample, req.Sections)
		return nil
	})
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.KindCancelled, "pipeline cancelled", err)
	}
	progress(ProgressEnriched)

	// Stage 6: assemble.
	var doc *models.MetadataDocument
	_ = clock.run(StageAssemble, func() error {
		doc = assemble(spec, req, cols, indexes, partInfo, rowCount, sample, profile, defs, glossaries, insights)
		return nil
	})

	usageAfter := p.usage()
	completedAt := time.Now()
	doc.ProcessingStats = models.ProcessingStats{
		StartedAt:        startedAt,
		CompletedAt:      completedAt,
		DurationMS:       completedAt.Sub(startedAt).Milliseconds(),
		Steps:            clock.steps,
		TotalTokens:      usageAfter.TotalTokens - usageBefore.TotalTokens,
		CostEstimateUSD:  usageAfter.TotalCostUSD - usageBefore.TotalCostUSD,
		OptionalSections: req.Sections,
	}

	progress(ProgressComplete)
	p.logger.Info("metadata generated",
		zap.String("database", req.Database),
		zap.String("schema", req.Schema),
		zap.String("table", req.Table),
		zap.Int64("duration_ms", doc.ProcessingStats.DurationMS),
		zap.Int("tokens", doc.ProcessingStats.TotalTokens))
	return doc, nil
}

func (p *Pipeline) usage() llm.Usage {
	if p.gateway == nil {
		return llm.Usage{}
	}
	return p.gateway.Usage()
}

func assemble(spec *models.ConnectionSpec, req *models.GenerateRequest, cols []models.ColumnSchema, indexes []models.IndexInfo, partInfo *models.PartitionInfo, rowCount int64, sample *models.TableSample, profile *ProfileResult, defs map[string]models.ColumnDefinition, glossaries map[string]map[string]string, insights models.TableInsights) *models.MetadataDocument {
	profileByName := make(map[string]*models.ColumnProfile, len(profile.Columns))
	for i := range profile.Columns {
		profileByName[profile.Columns[i].Name] = &profile.Columns[i]
	}

	order := make([]string, 0, len(cols))
	entries := make(map[string]*models.ColumnEntry, len(cols))
	for _, col := range cols {
		order = append(order, col.Name)
		entry := &models.ColumnEntry{
			DataType: col.DataType,
			Nullable: col.Nullable,
			Comment:  col.Comment,
		}
		if prof, ok := profileByName[col.Name]; ok {
			entry.Classification = prof.Classification
			entry.NumericStats = prof.NumericStats
			entry.CategoricalValues = prof.CategoricalValues
			entry.Quality = prof.Quality
		}
		if def, ok := defs[col.Name]; ok {
			entry.Definition = def
		}
		if g, ok := glossaries[col.Name]; ok {
			entry.Glossary = g
		}
		entries[col.Name] = entry
	}

	method := models.SamplingFull
	if sample != nil && sample.Method != "" {
		method = sample.Method
	}

	return &models.MetadataDocument{
		Version:        models.CurrentDocumentVersion,
		Database:       req.Database,
		Schema:         req.Schema,
		Table:          req.Table,
		Engine:         spec.Engine,
		GeneratedAt:    time.Now().UTC(),
		RowCount:       rowCount,
		SamplingMethod: method,
		ColumnOrder:    order,
		Columns:        entries,
		Constraints:    profile.Constraints,
		Indexes:        indexes,
		PartitionInfo:  partInfo,
		TableInsights:  insights,
	}
}
