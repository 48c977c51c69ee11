package services

import (
	"regexp"
	"sort"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/models"
)

// FilterTables applies a schema filter to a raw table list. Evaluation
// order is fixed: enabled gate, allow-list intersection, include
// patterns, deny-list, exclude patterns. When both the allow-list and
// include patterns are set they combine by intersection. A nil filter
// passes everything through.
func FilterTables(raw []string, f *models.SchemaFilter, logger *zap.Logger) []string {
	out := make([]string, 0, len(raw))
	if f == nil {
		return append(out, raw...)
	}
	if !f.Enabled {
		return out
	}

	allowed := raw
	if len(f.Tables) > 0 {
		allow := make(map[string]bool, len(f.Tables))
		for _, t := range f.Tables {
			allow[t] = true
		}
		kept := allowed[:0:0]
		for _, t := range allowed {
			if allow[t] {
				kept = append(kept, t)
			}
		}
		allowed = kept
	}

	if len(f.IncludePatterns) > 0 {
		res := compilePatterns(f.IncludePatterns, logger)
		kept := allowed[:0:0]
		for _, t := range allowed {
			if matchesAny(t, res) {
				kept = append(kept, t)
			}
		}
		allowed = kept
	}

	if len(f.ExcludedTables) > 0 {
		deny := make(map[string]bool, len(f.ExcludedTables))
		for _, t := range f.ExcludedTables {
			deny[t] = true
		}
		kept := allowed[:0:0]
		for _, t := range allowed {
			if !deny[t] {
				kept = append(kept, t)
			}
		}
		allowed = kept
	}

	if len(f.ExcludePatterns) > 0 {
		res := compilePatterns(f.ExcludePatterns, logger)
		kept := allowed[:0:0]
		for _, t := range allowed {
			if !matchesAny(t, res) {
				kept = append(kept, t)
			}
		}
		allowed = kept
	}

	out = append(out, allowed...)
	sort.Strings(out)
	return out
}

// compilePatterns compiles the usable patterns, skipping (and logging)
// malformed ones rather than failing the whole listing.
func compilePatterns(patterns []string, logger *zap.Logger) []*regexp.Regexp {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			if logger != nil {
				logger.Warn("skipping malformed table filter pattern",
					zap.String("pattern", p), zap.Error(err))
			}
			continue
		}
		res = append(res, re)
	}
	return res
}

func matchesAny(name string, res []*regexp.Regexp) bool {
	for _, re := range res {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}
