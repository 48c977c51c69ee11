package oracle

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuoteIdent_FoldsUpper(t *testing.T) {
	assert.Equal(t, `"ORDERS"`, dialect{}.QuoteIdent("orders"))
}

func TestSelectWindow(t *testing.T) {
	got := dialect{}.SelectWindow(`"SALES"."ORDERS"`, 20, 400)
	assert.Equal(t, `SELECT * FROM "SALES"."ORDERS" OFFSET 400 ROWS FETCH NEXT 20 ROWS ONLY`, got)
}

func TestDistinctLimit(t *testing.T) {
	got := dialect{}.DistinctLimit(`"SALES"."ORDERS"`, `"STATUS"`, 11)
	assert.Equal(t,
		`SELECT DISTINCT "STATUS" FROM "SALES"."ORDERS" WHERE "STATUS" IS NOT NULL ORDER BY 1 FETCH FIRST 11 ROWS ONLY`,
		got)
}
