package metadata

import (
	"sort"

	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

// TableStatsGroup is the set of statistics owned by one table.
// RowCount is the statistics-derived row count, nil when statistics carry none.
type TableStatsGroup struct {
	Statistics []models.Statistic
	RowCount   *int64
}

// JoinResult maps table names to their owned columns and statistics.
type JoinResult struct {
	ColumnsByTable map[string][]models.Column
	StatsByTable   map[string]TableStatsGroup
	// Statistics is the flat statistics sequence after type enrichment.
	Statistics []models.Statistic
}

// Join groups columns and statistics under their owning table. The join key
// is the exact table name string: no case folding or trimming is applied, so
// tables named inconsistently across sources do not join.
//
// Every table gets an entry in ColumnsByTable, possibly empty. Statistics
// without a data type inherit the type of the matching column.
func Join(tables []models.Table, columns []models.Column, statistics []models.Statistic, tableRowCounts map[string]int64) JoinResult {
	result := JoinResult{
		ColumnsByTable: make(map[string][]models.Column, len(tables)),
		StatsByTable:   make(map[string]TableStatsGroup),
		Statistics:     make([]models.Statistic, 0, len(statistics)),
	}

	for _, t := range tables {
		result.ColumnsByTable[t.Name] = []models.Column{}
	}

	type columnKey struct{ table, column string }
	columnTypes := make(map[columnKey]string, len(columns))
	for _, c := range columns {
		result.ColumnsByTable[c.TableName] = append(result.ColumnsByTable[c.TableName], c)
		columnTypes[columnKey{c.TableName, c.Name}] = c.DataType
	}
	for name, cols := range result.ColumnsByTable {
		result.ColumnsByTable[name] = sortByOrdinal(cols)
	}

	for _, s := range statistics {
		if s.DataType == "" {
			if dt, ok := columnTypes[columnKey{s.TableName, s.ColumnName}]; ok && dt != "unknown" {
				s.DataType = dt
			}
		}
		result.Statistics = append(result.Statistics, s)

		group := result.StatsByTable[s.TableName]
		group.Statistics = append(group.Statistics, s)
		if group.RowCount == nil && s.RowCount != nil {
			rc := *s.RowCount
			group.RowCount = &rc
		}
		result.StatsByTable[s.TableName] = group
	}

	for name, rc := range tableRowCounts {
		group := result.StatsByTable[name]
		count := rc
		group.RowCount = &count
		result.StatsByTable[name] = group
	}

	return result
}

// sortByOrdinal orders columns by ordinal position when every column has one,
// otherwise it keeps payload order.
func sortByOrdinal(cols []models.Column) []models.Column {
	for _, c := range cols {
		if c.OrdinalPosition <= 0 {
			return cols
		}
	}
	sort.SliceStable(cols, func(i, j int) bool {
		return cols[i].OrdinalPosition < cols[j].OrdinalPosition
	})
	return cols
}
