package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/tablesage/tablesage/pkg/models"
)

func TestFilterTables_NilFilterPassesThrough(t *testing.T) {
	raw := []string{"orders", "users"}
	got := FilterTables(raw, nil, zaptest.NewLogger(t))
	assert.ElementsMatch(t, raw, got)
}

func TestFilterTables_DisabledReturnsEmpty(t *testing.T) {
	got := FilterTables([]string{"orders", "users"}, &models.SchemaFilter{Enabled: false}, zaptest.NewLogger(t))
	assert.Empty(t, got)
}

func TestFilterTables_AllowListIntersectsRaw(t *testing.T) {
	f := &models.SchemaFilter{Enabled: true, Tables: []string{"orders", "missing"}}
	got := FilterTables([]string{"orders", "users"}, f, zaptest.NewLogger(t))
	assert.Equal(t, []string{"orders"}, got)
}

func TestFilterTables_AllowListAndIncludePatternsIntersect(t *testing.T) {
	f := &models.SchemaFilter{
		Enabled:         true,
		Tables:          []string{"orders", "order_items", "users"},
		IncludePatterns: []string{"^order"},
	}
	got := FilterTables([]string{"orders", "order_items", "users", "order_audit"}, f, zaptest.NewLogger(t))
	assert.Equal(t, []string{"order_items", "orders"}, got)
}

func TestFilterTables_ExcludesRunAfterIncludes(t *testing.T) {
	f := &models.SchemaFilter{
		Enabled:         true,
		IncludePatterns: []string{"^order"},
		ExcludedTables:  []string{"order_audit"},
		ExcludePatterns: []string{"_tmp$"},
	}
	raw := []string{"orders", "order_audit", "order_tmp", "users"}
	got := FilterTables(raw, f, zaptest.NewLogger(t))
	assert.Equal(t, []string{"orders"}, got)
}

func TestFilterTables_NoMatchesYieldsEmptyNotError(t *testing.T) {
	raw := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		raw = append(raw, "table_"+string(rune('a'+i%26)))
	}
	f := &models.SchemaFilter{Enabled: true, IncludePatterns: []string{"^wont_match$"}}
	got := FilterTables(raw, f, zaptest.NewLogger(t))
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFilterTables_MalformedPatternSkipped(t *testing.T) {
	f := &models.SchemaFilter{Enabled: true, IncludePatterns: []string{"([", "^orders$"}}
	got := FilterTables([]string{"orders", "users"}, f, zaptest.NewLogger(t))
	assert.Equal(t, []string{"orders"}, got)
}
