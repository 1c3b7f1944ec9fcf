package postgres

import (
	"math"
	"strings"
	"time"
)

type tableRow struct {
	Schema       string
	Name         string
	RowCount     int64
	SizeBytes    int64
	LastAnalyzed *time.Time
	PrimaryKeys  []string
	ColumnCount  int32
}

type columnRow struct {
	Schema       string
	Table        string
	Name         string
	DataType     string
	IsNullable   bool
	IsPrimaryKey bool
	Ordinal      int32
	Default      *string
}

type statRow struct {
	Schema       string
	Table        string
	Column       string
	DataType     string
	NullFrac     float64
	NDistinct    float64
	AvgWidth     int32
	RowCount     int64
	LastAnalyzed *time.Time
}

// schemaOwners records which schema owns each bare table name. Entities
// are joined by bare name, so the first schema seen for a name wins and
// same-name tables in later schemas are dropped. Every catalog query orders
// by schema first, so all three bodies pick the same owner.
type schemaOwners map[string]string

// claim reports whether schema owns table, recording it on first sight.
func (o schemaOwners) claim(table, schema string) bool {
	if owner, seen := o[table]; seen {
		return owner == schema
	}
	o[table] = schema
	return true
}

// tablesBody renders table rows in the metadata.tables envelope.
func tablesBody(rows []tableRow) map[string]any {
	tables := make([]any, 0, len(rows))
	owners := schemaOwners{}
	for _, r := range rows {
		if !owners.claim(r.Name, r.Schema) {
			continue
		}
		pks := make([]any, 0, len(r.PrimaryKeys))
		for _, pk := range r.PrimaryKeys {
			pks = append(pks, pk)
		}
		rec := map[string]any{
			"name":            r.Name,
			"schema":          r.Schema,
			"row_count":       r.RowCount,
			"size_bytes":      r.SizeBytes,
			"column_count":    int64(r.ColumnCount),
			"primary_keys":    pks,
			"has_primary_key": len(pks) > 0,
		}
		if r.LastAnalyzed != nil {
			rec["last_analyzed"] = r.LastAnalyzed.UTC().Format(time.RFC3339)
		}
		tables = append(tables, rec)
	}
	return map[string]any{"metadata": map[string]any{"tables": tables}}
}

// columnsBody renders column rows as a flat metadata.columns list.
func columnsBody(rows []columnRow) map[string]any {
	columns := make([]any, 0, len(rows))
	owners := schemaOwners{}
	for _, r := range rows {
		if !owners.claim(r.Table, r.Schema) {
			continue
		}
		rec := map[string]any{
			"table_name":       r.Table,
			"schema":           r.Schema,
			"name":             r.Name,
			"data_type":        r.DataType,
			"is_nullable":      r.IsNullable,
			"is_primary_key":   r.IsPrimaryKey,
			"ordinal_position": int64(r.Ordinal),
		}
		if r.Default != nil {
			rec["default_value"] = *r.Default
		}
		columns = append(columns, rec)
	}
	return map[string]any{"metadata": map[string]any{"columns": columns}}
}

// statisticsBody renders pg_stats rows in the metadata.statistics_by_table
// envelope and returns the oldest analyze time seen.
func statisticsBody(rows []statRow) (map[string]any, *time.Time) {
	byTable := map[string]any{}
	owners := schemaOwners{}
	var oldest *time.Time

	for _, r := range rows {
		if !owners.claim(r.Table, r.Schema) {
			continue
		}

		entry, ok := byTable[r.Table].(map[string]any)
		if !ok {
			entry = map[string]any{
				"row_count":         r.RowCount,
				"column_statistics": map[string]any{},
			}
			byTable[r.Table] = entry
		}

		nullCount := int64(math.Round(r.NullFrac * float64(r.RowCount)))
		stat := map[string]any{
			"data_type": r.DataType,
			"basic": map[string]any{
				"null_count":     nullCount,
				"distinct_count": estimateDistinct(r.NDistinct, r.RowCount),
				"is_unique":      r.NDistinct == -1,
			},
		}
		if isTextType(r.DataType) && r.AvgWidth > 0 {
			stat["string_stats"] = map[string]any{"avg_length": float64(r.AvgWidth)}
		}
		entry["column_statistics"].(map[string]any)[r.Column] = stat

		if r.LastAnalyzed != nil && (oldest == nil || r.LastAnalyzed.Before(*oldest)) {
			t := *r.LastAnalyzed
			oldest = &t
		}
	}

	return map[string]any{"metadata": map[string]any{"statistics_by_table": byTable}}, oldest
}

// estimateDistinct converts pg_stats.n_distinct to a count. Negative values
// are the negated fraction of rows that are distinct.
func estimateDistinct(nDistinct float64, rowCount int64) int64 {
	if nDistinct >= 0 {
		return int64(nDistinct)
	}
	return int64(math.Round(-nDistinct * float64(rowCount)))
}

func isTextType(dataType string) bool {
	dt := strings.ToLower(dataType)
	for _, prefix := range []string{"character", "text", "varchar", "citext", "char"} {
		if strings.HasPrefix(dt, prefix) {
			return true
		}
	}
	return false
}
