package datasource

import (
	"math/rand"

	"github.com/tablesage/tablesage/pkg/models"
)

// maxStrata is the stratum ceiling for stratified sampling; a probe
// observing more distinct values than this disqualifies the column.
const maxStrata = 10

// ChooseStrategy picks a sampling method from the row count and engine
// capabilities. Explicit strategies pass through untouched.
func ChooseStrategy(opts SampleOptions, rowCount int64, partitioned bool) models.SamplingMethod {
	if opts.Strategy != "" {
		return opts.Strategy
	}
	if rowCount >= 0 && rowCount <= int64(opts.Budget()) {
		return models.SamplingFull
	}
	if partitioned {
		return models.SamplingPartitionAware
	}
	return models.SamplingStratified
}

// RandomOffsets generates up to count distinct offsets in
// [0, rowCount-size] for random-offset sampling. Offsets are sorted to
// keep sequential engines happy.
func RandomOffsets(rowCount int64, size, count int) []int64 {
	maxOffset := rowCount - int64(size)
	if maxOffset <= 0 {
		return []int64{0}
	}

	seen := make(map[int64]struct{}, count)
	offsets := make([]int64, 0, count)
	// Distinct draws; the attempt bound avoids spinning on tiny ranges.
	for attempts := 0; len(offsets) < count && attempts < count*4; attempts++ {
		off := rand.Int63n(maxOffset + 1)
		if _, dup := seen[off]; dup {
			continue
		}
		seen[off] = struct{}{}
		offsets = append(offsets, off)
	}

	for i := 1; i < len(offsets); i++ {
		for j := i; j > 0 && offsets[j] < offsets[j-1]; j-- {
			offsets[j], offsets[j-1] = offsets[j-1], offsets[j]
		}
	}
	return offsets
}

// StratumQuota returns rows per stratum for stratified sampling.
func StratumQuota(size, strata int) int {
	if strata <= 0 {
		return size
	}
	return (size + strata - 1) / strata
}

// StratifyCandidates orders columns by suitability as a stratification
// key: short textual columns first, skipping obvious identifiers.
func StratifyCandidates(columns []models.ColumnSchema) []string {
	var out []string
	for _, c := range columns {
		if !textualType(c.DataType) {
			continue
		}
		if c.CharMaxLength != nil && *c.CharMaxLength > 100 {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

func textualType(dataType string) bool {
	switch normalizeType(dataType) {
	case "char", "varchar", "text", "nvarchar", "nchar", "character", "character varying", "string", "enum", "varchar2":
		return true
	}
	return false
}
