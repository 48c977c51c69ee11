package mssql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablesage/tablesage/pkg/models"
)

func TestDSN(t *testing.T) {
	d := dialect{}
	dsn, err := d.DSN(&models.ConnectionSpec{
		Host: "sql.internal", Port: 1433, Database: "crm", User: "reader",
	}, "p@ss/word")
	require.NoError(t, err)
	assert.Contains(t, dsn, "sqlserver://")
	assert.Contains(t, dsn, "sql.internal:1433")
	assert.Contains(t, dsn, "database=crm")
	// Credentials must be URL-escaped, not dropped.
	assert.NotContains(t, dsn, "p@ss/word")
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "[orders]", dialect{}.QuoteIdent("orders"))
	assert.Equal(t, "[we]]ird]", dialect{}.QuoteIdent("we]ird"))
}

func TestSelectWindow_RequiresOrderBy(t *testing.T) {
	got := dialect{}.SelectWindow("[dbo].[orders]", 20, 400)
	assert.Equal(t,
		"SELECT * FROM [dbo].[orders] ORDER BY (SELECT NULL) OFFSET 400 ROWS FETCH NEXT 20 ROWS ONLY",
		got)
}

func TestDistinctLimit_UsesTop(t *testing.T) {
	got := dialect{}.DistinctLimit("[dbo].[orders]", "[status]", 11)
	assert.Equal(t,
		"SELECT DISTINCT TOP 11 [status] FROM [dbo].[orders] WHERE [status] IS NOT NULL ORDER BY 1",
		got)
}
