package metadata

import (
	"strings"

	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

// Health score heuristic. This is a placeholder quality signal with no
// statistical derivation behind it; treat it as a rough indicator only.
const (
	BaseHealthScore      = 65
	HighNullPenalty      = 10
	UniqueColumnBonus    = 5
	HighNullThresholdPct = 50.0
	MinHealthScore       = 0
	MaxHealthScore       = 100
)

// TableRollup is the per-table aggregate derived from its statistics.
type TableRollup struct {
	HealthScore            int
	ColumnTypeDistribution map[string]int
	NullableColumns        int
	NonNullableColumns     int
}

// typeBuckets is checked in order; the first bucket with a matching
// substring wins.
var typeBuckets = []struct {
	bucket   string
	patterns []string
}{
	{models.TypeBucketText, []string{"char", "text", "string", "uuid"}},
	{models.TypeBucketNumeric, []string{"int", "numeric", "decimal", "float", "double", "real", "number", "serial", "money"}},
	{models.TypeBucketDatetime, []string{"date", "time"}},
	{models.TypeBucketBoolean, []string{"bool"}},
}

// BucketType classifies a declared column type by substring matching on its
// lower-cased name.
func BucketType(dataType string) string {
	t := strings.ToLower(dataType)
	for _, b := range typeBuckets {
		for _, p := range b.patterns {
			if strings.Contains(t, p) {
				return b.bucket
			}
		}
	}
	return models.TypeBucketOther
}

// Aggregate folds one table's statistics into a rollup.
func Aggregate(group TableStatsGroup) TableRollup {
	rollup := TableRollup{
		HealthScore:            BaseHealthScore,
		ColumnTypeDistribution: map[string]int{},
	}

	score := BaseHealthScore
	for _, s := range group.Statistics {
		if s.NullPercentage > HighNullThresholdPct {
			score -= HighNullPenalty
		}
		if s.IsUnique {
			score += UniqueColumnBonus
		}

		rollup.ColumnTypeDistribution[BucketType(s.DataType)]++

		if s.NullPercentage == 0 {
			rollup.NonNullableColumns++
		} else {
			rollup.NullableColumns++
		}
	}
	rollup.HealthScore = ClampHealthScore(score)
	return rollup
}

// ClampHealthScore bounds a score to [MinHealthScore, MaxHealthScore].
func ClampHealthScore(score int) int {
	if score < MinHealthScore {
		return MinHealthScore
	}
	if score > MaxHealthScore {
		return MaxHealthScore
	}
	return score
}

// columnRollup derives distribution and nullability from declared columns
// for tables that have no statistics.
func columnRollup(cols []models.Column) TableRollup {
	rollup := TableRollup{
		HealthScore:            BaseHealthScore,
		ColumnTypeDistribution: map[string]int{},
	}
	for _, c := range cols {
		rollup.ColumnTypeDistribution[BucketType(c.DataType)]++
		if c.IsNullable {
			rollup.NullableColumns++
		} else {
			rollup.NonNullableColumns++
		}
	}
	return rollup
}

// BuildSummary computes snapshot-wide totals.
func BuildSummary(tables []models.Table, columns []models.Column, statistics []models.Statistic) models.Summary {
	summary := models.Summary{
		TotalTables:      len(tables),
		TotalColumns:     len(columns),
		TotalStatistics:  len(statistics),
		TypeDistribution: map[string]int{},
	}

	for _, t := range tables {
		summary.TotalRows += t.RowCount
		if t.RowCount > 0 {
			summary.TablesWithData++
		}
		if summary.LargestTable == nil || t.RowCount > summary.LargestTable.RowCount {
			summary.LargestTable = &models.TableSize{Name: t.Name, RowCount: t.RowCount}
		}
		for bucket, n := range t.ColumnTypeDistribution {
			summary.TypeDistribution[bucket] += n
		}
	}
	return summary
}
