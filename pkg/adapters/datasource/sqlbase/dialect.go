// Package sqlbase implements the datasource Handler contract once over
// database/sql. Engine packages contribute a Dialect: driver name, DSN
// construction, placeholder style, quoting, and the introspection queries
// their catalog speaks.
package sqlbase

import (
	"github.com/tablesage/tablesage/pkg/models"
	"github.com/tablesage/tablesage/pkg/sqlsafe"
)

// Query pairs SQL using canonical :name placeholders with its bind values.
// An empty SQL string marks the capability as unsupported by the engine.
type Query struct {
	SQL    string
	Params map[string]any
}

// Dialect supplies everything engine-specific the base handler needs.
// Introspection queries return fixed column shapes, documented per method;
// the base scans positionally.
type Dialect interface {
	Engine() models.Engine
	DriverName() string

	// DSN builds the driver connection string. secret is the resolved
	// credential and must never be logged.
	DSN(spec *models.ConnectionSpec, secret string) (string, error)

	ParamStyle() sqlsafe.ParamStyle

	// QuoteIdent quotes one already-validated identifier.
	QuoteIdent(name string) string

	// ListSchemas returns one column: schema_name.
	ListSchemas() Query

	// ListTables returns one column: table_name.
	ListTables(schema string) Query

	// Columns returns, in ordinal order: name, data_type, nullable,
	// numeric_precision, numeric_scale, char_max_length, comment.
	Columns(schema, table string) Query

	// PrimaryKey returns one column: column_name, in key order.
	PrimaryKey(schema, table string) Query

	// ForeignKeys returns: constraint_name, column_name, referenced_table,
	// referenced_column, on_delete. Multi-column keys repeat the name.
	ForeignKeys(schema, table string) Query

	// UniqueConstraints returns: constraint_name, column_name.
	UniqueConstraints(schema, table string) Query

	// CheckConstraints returns: constraint_name, expression.
	CheckConstraints(schema, table string) Query

	// Indexes returns: index_name, column_name, is_unique, is_primary.
	Indexes(schema, table string) Query

	// EstimatedRowCount returns one value from engine statistics. May be
	// negative or NULL when statistics are stale or absent.
	EstimatedRowCount(schema, table string) Query

	// Version returns one string describing the server.
	Version() Query

	// SelectWindow wraps a full-table select with the engine's limit and
	// offset syntax. qualified is an already-quoted table reference.
	SelectWindow(qualified string, limit int, offset int64) string

	// DistinctLimit builds a bounded distinct-values select over one
	// already-quoted column.
	DistinctLimit(qualified, quotedColumn string, limit int) string
}

// qualify joins quoted schema and table, dropping an empty schema.
func qualify(d Dialect, schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}
