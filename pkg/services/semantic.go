package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/storage"
)

// SemanticModel is a business-level view over every metadata document
// stored for one database: entities, their attributes, and the
// relationships implied by foreign keys.
type SemanticModel struct {
	Database    string           `json:"database"`
	GeneratedAt time.Time        `json:"generated_at"`
	Entities    []SemanticEntity `json:"entities"`
}

// SemanticEntity is one table viewed as a business entity.
type SemanticEntity struct {
	Name          string                 `json:"name"`
	BusinessName  string                 `json:"business_name"`
	Schema        string                 `json:"schema"`
	Table         string                 `json:"table"`
	Description   string                 `json:"description,omitempty"`
	Domain        string                 `json:"domain,omitempty"`
	PrimaryKey    []string               `json:"primary_key,omitempty"`
	Attributes    []SemanticAttribute    `json:"attributes"`
	Relationships []SemanticRelationship `json:"relationships,omitempty"`
}

// SemanticAttribute is one column of an entity.
type SemanticAttribute struct {
	Name           string                `json:"name"`
	BusinessName   string                `json:"business_name,omitempty"`
	DataType       string                `json:"data_type"`
	Classification models.Classification `json:"classification"`
	Description    string                `json:"description,omitempty"`
}

// SemanticRelationship is a foreign-key edge between entities.
type SemanticRelationship struct {
	FromColumns []string `json:"from_columns"`
	ToTable     string   `json:"to_table"`
	ToColumns   []string `json:"to_columns"`
	Kind        string   `json:"kind"`
}

// SemanticModelService assembles semantic models from stored documents.
type SemanticModelService struct {
	store  *storage.DocumentStore
	logger *zap.Logger
}

// NewSemanticModelService creates a semantic model service.
func NewSemanticModelService(store *storage.DocumentStore, logger *zap.Logger) *SemanticModelService {
	return &SemanticModelService{store: store, logger: logger.Named("semantic")}
}

// Build assembles the semantic model for a database from every stored
// document. A database with no documents is NotFound.
func (s *SemanticModelService) Build(database string) (*SemanticModel, error) {
	refs, err := s.store.List(database)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, apperrors.New(apperrors.KindNotFound,
			fmt.Sprintf("no metadata documents for database %q", database))
	}

	model := &SemanticModel{
		Database:    database,
		GeneratedAt: time.Now().UTC(),
	}
	for _, ref := range refs {
		doc, err := s.store.Read(ref.Database, ref.Schema, ref.Table)
		if err != nil {
			s.logger.Warn("skipping unreadable document",
				zap.String("table", ref.Table), zap.Error(err))
			continue
		}
		model.Entities = append(model.Entities, entityFromDocument(doc))
	}
	if len(model.Entities) == 0 {
		return nil, apperrors.New(apperrors.KindNotFound,
			fmt.Sprintf("no readable metadata documents for database %q", database))
	}
	return model, nil
}

func entityFromDocument(doc *models.MetadataDocument) SemanticEntity {
	entity := SemanticEntity{
		Name:         inflection.Singular(doc.Table),
		BusinessName: entityBusinessName(doc.Table),
		Schema:       doc.Schema,
		Table:        doc.Table,
		Description:  doc.TableInsights.Description,
		Domain:       doc.TableInsights.Domain,
		PrimaryKey:   doc.Constraints.PrimaryKey,
	}

	for _, name := range doc.ColumnOrder {
		entry, ok := doc.Columns[name]
		if !ok {
			continue
		}
		entity.Attributes = append(entity.Attributes, SemanticAttribute{
			Name:           name,
			BusinessName:   entry.Definition.BusinessName,
			DataType:       entry.DataType,
			Classification: entry.Classification,
			Description:    entry.Definition.Definition,
		})
	}

	for _, fk := range doc.Constraints.ForeignKeys {
		entity.Relationships = append(entity.Relationships, SemanticRelationship{
			FromColumns: fk.Columns,
			ToTable:     fk.ReferencedTable,
			ToColumns:   fk.ReferencedColumns,
			Kind:        "many_to_one",
		})
	}
	return entity
}

// entityBusinessName turns a table name like "order_items" into
// "Order Item".
func entityBusinessName(table string) string {
	words := strings.Split(strings.ToLower(table), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		if i == len(words)-1 {
			w = inflection.Singular(w)
		}
		if w != "" {
			w = strings.ToUpper(w[:1]) + w[1:]
		}
		words[i] = w
	}
	return strings.Join(words, " ")
}
