package metadata

import (
	"time"

	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

// SnapshotInput holds the decoded bodies of the fetches that succeeded.
// A nil body means that fetch was skipped or failed.
type SnapshotInput struct {
	ConnectionID string
	Tables       any
	Columns      any
	Statistics   any
	Freshness    models.Freshness
	Now          time.Time
}

// Variants records which envelope layout matched for each entity kind.
type Variants map[EntityKind]string

// BuildSnapshot runs extraction, mapping, joining and aggregation over the
// fetched bodies and returns a new snapshot.
func BuildSnapshot(in SnapshotInput) (*models.IntegratedSnapshot, Variants) {
	variants := Variants{}

	tablesExt := Extract(KindTables, in.Tables)
	columnsExt := Extract(KindColumns, in.Columns)
	statsExt := Extract(KindStatistics, in.Statistics)
	variants[KindTables] = tablesExt.Variant
	variants[KindColumns] = columnsExt.Variant
	variants[KindStatistics] = statsExt.Variant

	records := MapTables(tablesExt)
	columns := MapColumns(columnsExt)
	stats := MapStatistics(statsExt)

	baseTables := make([]models.Table, len(records))
	for i, r := range records {
		baseTables[i] = r.Table
	}
	joined := Join(baseTables, columns, stats.Statistics, stats.TableRowCounts)

	tables := make([]models.Table, 0, len(records))
	for _, r := range records {
		group, hasStats := joined.StatsByTable[r.Table.Name]
		tables = append(tables, buildTable(r, joined.ColumnsByTable[r.Table.Name], group, hasStats))
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	return &models.IntegratedSnapshot{
		ConnectionID: in.ConnectionID,
		Tables:       tables,
		Columns:      columns,
		Statistics:   joined.Statistics,
		Summary:      BuildSummary(tables, columns, joined.Statistics),
		Freshness:    in.Freshness,
		GeneratedAt:  now,
	}, variants
}

// buildTable applies joined columns and statistics to a mapped table.
// Row count comes from statistics when the table has a statistics entry with
// a row count, otherwise from the table payload.
func buildTable(r TableRecord, cols []models.Column, group TableStatsGroup, hasStats bool) models.Table {
	t := r.Table
	if cols == nil {
		cols = []models.Column{}
	}
	t.Columns = cols

	if hasStats && group.RowCount != nil {
		t.RowCount = *group.RowCount
	}

	var rollup TableRollup
	if hasStats && len(group.Statistics) > 0 {
		rollup = Aggregate(group)
	} else {
		rollup = columnRollup(cols)
		if r.HealthScore != nil {
			rollup.HealthScore = ClampHealthScore(*r.HealthScore)
		}
	}
	t.HealthScore = rollup.HealthScore
	t.ColumnTypeDistribution = rollup.ColumnTypeDistribution
	t.NullableColumns = rollup.NullableColumns
	t.NonNullableColumns = rollup.NonNullableColumns

	switch {
	case len(cols) > 0:
		t.ColumnCount = len(cols)
	case t.ColumnCount == 0:
		t.ColumnCount = len(group.Statistics)
	}

	if len(t.PrimaryKeys) == 0 {
		for _, c := range cols {
			if c.IsPrimaryKey {
				t.PrimaryKeys = append(t.PrimaryKeys, c.Name)
			}
		}
	}
	t.HasPrimaryKey = t.HasPrimaryKey || len(t.PrimaryKeys) > 0

	return t
}

// FilterTable cuts one table, its columns and statistics out of a snapshot.
// The second return value is false when the snapshot has no such table.
func FilterTable(snapshot *models.IntegratedSnapshot, tableName string) (*models.EnhancedTableInfo, bool) {
	if snapshot == nil {
		return nil, false
	}
	for _, t := range snapshot.Tables {
		if t.Name != tableName {
			continue
		}
		info := &models.EnhancedTableInfo{
			Table:      t,
			Columns:    []models.Column{},
			Statistics: []models.Statistic{},
			Freshness:  snapshot.Freshness,
		}
		for _, c := range snapshot.Columns {
			if c.TableName == tableName {
				info.Columns = append(info.Columns, c)
			}
		}
		for _, s := range snapshot.Statistics {
			if s.TableName == tableName {
				info.Statistics = append(info.Statistics, s)
			}
		}
		return info, true
	}
	return nil, false
}
