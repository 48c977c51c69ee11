package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/models"
)

func newStore(t *testing.T) *DocumentStore {
	t.Helper()
	s, err := NewDocumentStore(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func doc(database, schema, table string) *models.MetadataDocument {
	return &models.MetadataDocument{
		Version:  models.CurrentDocumentVersion,
		Database: database,
		Schema:   schema,
		Table:    table,
		Engine:   models.EnginePostgres,
	}
}

func TestSanitizeComponent(t *testing.T) {
	assert.Equal(t, "a_b_c_d_e_f_g_h_i", SanitizeComponent(`a/b\c:d<e>f|g*h?i`))
	assert.Equal(t, `a_b`, SanitizeComponent(`a"b`))
	assert.Equal(t, "name", SanitizeComponent("  name. "))
	assert.Equal(t, "_", SanitizeComponent("  "))
	assert.Equal(t, "plain_name", SanitizeComponent("plain_name"))
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Write(doc("db", "public", "orders")))

	got, err := s.Read("db", "public", "orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", got.Table)
	assert.Equal(t, models.CurrentDocumentVersion, got.Version)
}

func TestWriteOverwrites(t *testing.T) {
	s := newStore(t)
	first := doc("db", "public", "orders")
	first.RowCount = 1
	require.NoError(t, s.Write(first))

	second := doc("db", "public", "orders")
	second.RowCount = 2
	require.NoError(t, s.Write(second))

	got, err := s.Read("db", "public", "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.RowCount)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Write(doc("db", "public", "orders")))

	dir := filepath.Dir(s.Path("db", "public", "orders"))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "orders.json", entries[0].Name())
}

func TestReadMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.Read("db", "public", "absent")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Write(doc("db", "public", "orders")))
	require.NoError(t, s.Delete("db", "public", "orders"))

	_, err := s.Read("db", "public", "orders")
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(s.Delete("db", "public", "orders")))
}

func TestList(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Write(doc("db1", "public", "orders")))
	require.NoError(t, s.Write(doc("db1", "public", "users")))
	require.NoError(t, s.Write(doc("db2", "main", "events")))

	all, err := s.List("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	scoped, err := s.List("db1")
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	for _, ref := range scoped {
		assert.Equal(t, "db1", ref.Database)
	}
}

func TestList_EmptyStore(t *testing.T) {
	s := newStore(t)
	refs, err := s.List("nothing")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestPathSanitizesIdentity(t *testing.T) {
	s := newStore(t)
	d := doc(`we/ird`, "sch:ema", `ta*ble`)
	require.NoError(t, s.Write(d))

	got, err := s.Read(`we/ird`, "sch:ema", `ta*ble`)
	require.NoError(t, err)
	assert.Equal(t, `ta*ble`, got.Table)
}
