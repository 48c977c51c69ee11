package mysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablesage/tablesage/pkg/models"
)

func TestDSN(t *testing.T) {
	d := dialect{}
	dsn, err := d.DSN(&models.ConnectionSpec{
		Host: "db.internal", Port: 3307, Database: "sales", User: "reader",
	}, "s3cret")
	require.NoError(t, err)
	assert.Contains(t, dsn, "tcp(db.internal:3307)")
	assert.Contains(t, dsn, "/sales")
	assert.Contains(t, dsn, "parseTime=true")
}

func TestDSN_DefaultPort(t *testing.T) {
	d := dialect{}
	dsn, err := d.DSN(&models.ConnectionSpec{Host: "localhost", Database: "app", User: "u"}, "")
	require.NoError(t, err)
	assert.Contains(t, dsn, "localhost:3306")
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "`orders`", dialect{}.QuoteIdent("orders"))
	assert.Equal(t, "`we``ird`", dialect{}.QuoteIdent("we`ird"))
}

func TestSelectWindow(t *testing.T) {
	got := dialect{}.SelectWindow("`sales`.`orders`", 20, 400)
	assert.Equal(t, "SELECT * FROM `sales`.`orders` LIMIT 20 OFFSET 400", got)
}
