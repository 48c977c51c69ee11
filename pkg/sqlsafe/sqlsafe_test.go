package sqlsafe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablesage/tablesage/pkg/apperrors"
)

func TestValidIdentifier(t *testing.T) {
	valid := []string{"users", "_private", "Order_Items2", "a", strings.Repeat("x", 128)}
	for _, name := range valid {
		assert.True(t, ValidIdentifier(name), name)
	}

	invalid := []string{
		"",
		"1table",
		"user-name",
		"users; DROP TABLE accounts",
		`users"`,
		"sp ace",
		"naïve",
		strings.Repeat("x", 129),
	}
	for _, name := range invalid {
		assert.False(t, ValidIdentifier(name), name)
	}
}

func TestCheckIdentifierKind(t *testing.T) {
	err := CheckIdentifier("table", "t; DROP TABLE users")
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidIdentifier, apperrors.KindOf(err))
	assert.Contains(t, err.Error(), "table name")

	require.NoError(t, CheckIdentifiers("column", "id", "created_at"))
	require.Error(t, CheckIdentifiers("column", "id", "bad col"))
}

func TestQualifyTable(t *testing.T) {
	assert.Equal(t, `"public"."orders"`, QualifyTable("public", "orders"))
	assert.Equal(t, `"orders"`, QualifyTable("", "orders"))
}

func TestTranslateQuestionStyle(t *testing.T) {
	sql, args, err := Translate(
		"SELECT * FROM t WHERE a = :lo AND b BETWEEN :lo AND :hi",
		StyleQuestion,
		map[string]any{"lo": 1, "hi": 9},
	)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b BETWEEN ? AND ?", sql)
	assert.Equal(t, []any{1, 1, 9}, args)
}

func TestTranslateDollarStyleDeduplicates(t *testing.T) {
	sql, args, err := Translate(
		"SELECT * FROM t WHERE a = :x OR b = :x OR c = :y",
		StyleDollar,
		map[string]any{"x": "v", "y": 2},
	)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 OR b = $1 OR c = $2", sql)
	assert.Equal(t, []any{"v", 2}, args)
}

func TestTranslateAtNameStyle(t *testing.T) {
	sql, args, err := Translate(
		"SELECT * FROM t WHERE a = :x",
		StyleAtName,
		map[string]any{"x": 7},
	)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = @x", sql)
	require.Len(t, args, 1)
	assert.Equal(t, NamedArg{Name: "x", Value: 7}, args[0])
}

func TestTranslateIgnoresPostgresCasts(t *testing.T) {
	sql, args, err := Translate(
		"SELECT col::text FROM t WHERE a = :x",
		StyleDollar,
		map[string]any{"x": 1},
	)
	require.NoError(t, err)
	assert.Equal(t, "SELECT col::text FROM t WHERE a = $1", sql)
	assert.Len(t, args, 1)
}

func TestTranslateMissingParam(t *testing.T) {
	_, _, err := Translate("SELECT * FROM t WHERE a = :missing", StyleQuestion, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestScreenValue(t *testing.T) {
	assert.Nil(t, ScreenValue("pattern", "^fact_.*$"))
	assert.Nil(t, ScreenValue("name", "orders"))

	finding := ScreenValue("table", "'; DROP TABLE users--")
	require.NotNil(t, finding)
	assert.Equal(t, "table", finding.Field)
	assert.NotEmpty(t, finding.Fingerprint)
}
