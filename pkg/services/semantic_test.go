package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/storage"
)

func storedDoc(database, schema, table string) *models.MetadataDocument {
	return &models.MetadataDocument{
		Version:     models.CurrentDocumentVersion,
		Database:    database,
		Schema:      schema,
		Table:       table,
		Engine:      models.EnginePostgres,
		GeneratedAt: time.Now().UTC(),
		ColumnOrder: []string{"id", "customer_id"},
		Columns: map[string]*models.ColumnEntry{
			"id": {
				DataType:       "integer",
				Classification: models.ClassNumerical,
				Definition: models.ColumnDefinition{
					Definition: "Unique identifier for this record",
					Source:     models.SourcePatternBased,
				},
			},
			"customer_id": {
				DataType:       "integer",
				Classification: models.ClassNumerical,
				Definition: models.ColumnDefinition{
					Definition:   "Identifier referencing the customer entity",
					BusinessName: "Customer Id",
					Source:       models.SourcePatternBased,
				},
			},
		},
		Constraints: models.Constraints{
			PrimaryKey: []string{"id"},
			ForeignKeys: []models.ForeignKey{{
				Name: "fk_customer", Columns: []string{"customer_id"},
				ReferencedTable: "customers", ReferencedColumns: []string{"id"},
			}},
		},
		TableInsights: models.TableInsights{
			Domain:      "Sales",
			Description: "Orders placed by customers.",
		},
	}
}

func TestSemanticModel_Build(t *testing.T) {
	store, err := storage.NewDocumentStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, store.Write(storedDoc("shop", "public", "orders")))
	require.NoError(t, store.Write(storedDoc("shop", "public", "order_items")))

	svc := NewSemanticModelService(store, zaptest.NewLogger(t))
	model, err := svc.Build("shop")
	require.NoError(t, err)

	assert.Equal(t, "shop", model.Database)
	require.Len(t, model.Entities, 2)

	byTable := map[string]SemanticEntity{}
	for _, e := range model.Entities {
		byTable[e.Table] = e
	}

	orders := byTable["orders"]
	assert.Equal(t, "order", orders.Name)
	assert.Equal(t, "Order", orders.BusinessName)
	assert.Equal(t, "Sales", orders.Domain)
	assert.Equal(t, []string{"id"}, orders.PrimaryKey)
	require.Len(t, orders.Attributes, 2)
	assert.Equal(t, "Customer Id", orders.Attributes[1].BusinessName)
	require.Len(t, orders.Relationships, 1)
	assert.Equal(t, "customers", orders.Relationships[0].ToTable)
	assert.Equal(t, "many_to_one", orders.Relationships[0].Kind)

	items := byTable["order_items"]
	assert.Equal(t, "Order Item", items.BusinessName)
}

func TestSemanticModel_NoDocuments(t *testing.T) {
	store, err := storage.NewDocumentStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)

	svc := NewSemanticModelService(store, zaptest.NewLogger(t))
	_, err = svc.Build("empty")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestEntityBusinessName(t *testing.T) {
	assert.Equal(t, "Order Item", entityBusinessName("order_items"))
	assert.Equal(t, "User", entityBusinessName("users"))
	assert.Equal(t, "Daily Revenue", entityBusinessName("daily_revenues"))
}
