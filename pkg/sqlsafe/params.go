package sqlsafe

import (
	"fmt"
	"regexp"
	"strings"
)

// ParamStyle identifies an engine's native placeholder syntax.
type ParamStyle int

const (
	// StyleQuestion uses positional "?" (MySQL, SQLite, DuckDB).
	StyleQuestion ParamStyle = iota
	// StyleDollar uses positional "$1" (PostgreSQL).
	StyleDollar
	// StyleAtName uses named "@name" (SQL Server, BigQuery).
	StyleAtName
	// StyleColonName keeps named ":name" (Oracle).
	StyleColonName
)

// canonical :name placeholders; a leading double colon (postgres cast) is
// not a placeholder.
var placeholderRe = regexp.MustCompile(`(^|[^:]):([A-Za-z_][A-Za-z0-9_]*)`)

// Translate rewrites canonical :name placeholders into the target style and
// returns the rewritten SQL plus the bind arguments in placeholder order.
// Named styles deduplicate repeated parameters; positional styles repeat the
// value for each occurrence.
func Translate(query string, style ParamStyle, params map[string]any) (string, []any, error) {
	var args []any
	seen := make(map[string]int) // name -> 1-based position for named/dollar styles
	var missing []string

	out := placeholderRe.ReplaceAllStringFunc(query, func(m string) string {
		sub := placeholderRe.FindStringSubmatch(m)
		prefix, name := sub[1], sub[2]

		val, ok := params[name]
		if !ok {
			missing = append(missing, name)
			return m
		}

		switch style {
		case StyleQuestion:
			args = append(args, val)
			return prefix + "?"
		case StyleDollar:
			pos, dup := seen[name]
			if !dup {
				args = append(args, val)
				pos = len(args)
				seen[name] = pos
			}
			return prefix + fmt.Sprintf("$%d", pos)
		case StyleAtName:
			if _, dup := seen[name]; !dup {
				args = append(args, NamedArg{Name: name, Value: val})
				seen[name] = len(args)
			}
			return prefix + "@" + name
		case StyleColonName:
			if _, dup := seen[name]; !dup {
				args = append(args, NamedArg{Name: name, Value: val})
				seen[name] = len(args)
			}
			return m
		}
		return m
	})

	if len(missing) > 0 {
		return "", nil, fmt.Errorf("unbound parameters: %s", strings.Join(missing, ", "))
	}
	return out, args, nil
}

// NamedArg carries a named bind value for engines with named placeholders.
// Adapters convert it to their driver's named-argument type.
type NamedArg struct {
	Name  string
	Value any
}
