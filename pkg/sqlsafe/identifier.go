// Package sqlsafe guards every identifier and parameter that reaches
// generated SQL. Identifiers are validated against a strict pattern before
// interpolation; values are never interpolated and always bound.
package sqlsafe

import (
	"regexp"
	"strings"

	"github.com/tablesage/tablesage/pkg/apperrors"
)

// MaxIdentifierLength is the hard cap on schema/table/column name length.
const MaxIdentifierLength = 128

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to interpolate as a SQL
// identifier.
func ValidIdentifier(name string) bool {
	return name != "" && len(name) <= MaxIdentifierLength && identifierRe.MatchString(name)
}

// CheckIdentifier returns an InvalidIdentifier error when name fails the
// safety pattern. kind names the identifier for the error message
// ("schema", "table", "column").
func CheckIdentifier(kind, name string) error {
	if !ValidIdentifier(name) {
		return apperrors.New(apperrors.KindInvalidIdentifier, kind+" name "+strconvQuote(name)+" is not a valid identifier")
	}
	return nil
}

// CheckIdentifiers validates a set of identifiers of the same kind.
func CheckIdentifiers(kind string, names ...string) error {
	for _, n := range names {
		if err := CheckIdentifier(kind, n); err != nil {
			return err
		}
	}
	return nil
}

// Quote wraps a validated identifier in double quotes, doubling any
// embedded quotes. Callers must validate first; quoting is defense in
// depth for engines that accept quoted identifiers.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifyTable returns schema.table with both parts quoted. An empty
// schema yields just the quoted table.
func QualifyTable(schema, table string) string {
	if schema == "" {
		return Quote(table)
	}
	return Quote(schema) + "." + Quote(table)
}

func strconvQuote(s string) string {
	const max = 64
	if len(s) > max {
		s = s[:max] + "..."
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
