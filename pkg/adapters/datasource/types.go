package datasource

import (
	"fmt"
	"strings"
)

// normalizeType lowercases a declared type and strips any size suffix, so
// "VARCHAR(255)" and "varchar" compare equal.
func normalizeType(dataType string) string {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

// NumericType reports whether a declared type is numeric.
func NumericType(dataType string) bool {
	switch normalizeType(dataType) {
	case "smallint", "integer", "int", "int2", "int4", "int8", "bigint", "tinyint", "mediumint",
		"decimal", "numeric", "real", "double", "double precision", "float", "float4", "float8",
		"number", "money", "smallmoney", "int64", "float64", "numeric_scaled", "bignumeric", "hugeint":
		return true
	}
	return false
}

// TemporalType reports whether a declared type is date or time valued.
func TemporalType(dataType string) bool {
	t := normalizeType(dataType)
	switch t {
	case "date", "time", "datetime", "datetime2", "smalldatetime", "timestamp", "timestamptz", "interval":
		return true
	}
	return strings.HasPrefix(t, "timestamp")
}

// BooleanType reports whether a declared type is boolean.
func BooleanType(dataType string) bool {
	switch normalizeType(dataType) {
	case "bool", "boolean", "bit":
		return true
	}
	return false
}

// TruthyNullable normalizes the engine-specific nullable markers found in
// information schemas ("YES"/"NO", 1/0, true/false).
func TruthyNullable(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		s := strings.ToUpper(strings.TrimSpace(t))
		return s == "YES" || s == "Y" || s == "TRUE" || s == "1"
	case []byte:
		return TruthyNullable(string(t))
	case int64:
		return t != 0
	case int:
		return t != 0
	}
	return false
}

// Stringify renders a sampled cell for distinct-value lists.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
