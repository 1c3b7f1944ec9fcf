package mssql

import "time"

type tableRow struct {
	Schema       string
	Name         string
	RowCount     int64
	SizeBytes    int64
	ColumnCount  int64
	PrimaryKeys  string // comma-separated, key order
	LastAnalyzed *time.Time
}

type columnRow struct {
	Schema       string
	Table        string
	Name         string
	DataType     string
	IsNullable   bool
	IsPrimaryKey bool
	Ordinal      int64
	Default      *string
}

type columnProfile struct {
	Schema        string
	Table         string
	Column        string
	DataType      string
	RowCount      int64
	NonNullCount  int64
	DistinctCount int64
	MinLength     *int64
	MaxLength     *int64
	AvgLength     *float64
	MinValue      *float64
	MaxValue      *float64
	AvgValue      *float64
}

func tablesBody(rows []tableRow) map[string]any {
	tables := make([]any, 0, len(rows))
	for _, r := range rows {
		rec := map[string]any{
			"name":         r.Name,
			"schema":       r.Schema,
			"row_count":    r.RowCount,
			"size_bytes":   r.SizeBytes,
			"column_count": r.ColumnCount,
			"primary_keys": r.PrimaryKeys,
		}
		if r.LastAnalyzed != nil {
			rec["last_analyzed"] = r.LastAnalyzed.UTC().Format(time.RFC3339)
		}
		tables = append(tables, rec)
	}
	return map[string]any{"tables": tables}
}

func columnsBody(rows []columnRow) map[string]any {
	columns := make([]any, 0, len(rows))
	for _, r := range rows {
		rec := map[string]any{
			"table_name":       r.Table,
			"schema":           r.Schema,
			"name":             r.Name,
			"data_type":        r.DataType,
			"is_nullable":      r.IsNullable,
			"is_primary_key":   r.IsPrimaryKey,
			"ordinal_position": r.Ordinal,
		}
		if r.Default != nil {
			rec["default_value"] = *r.Default
		}
		columns = append(columns, rec)
	}
	return map[string]any{"columns": columns}
}

// statisticsBody renders profiles as a flat statistics list.
func statisticsBody(profiles []columnProfile) map[string]any {
	stats := make([]any, 0, len(profiles))
	for _, p := range profiles {
		nullCount := p.RowCount - p.NonNullCount
		rec := map[string]any{
			"table_name":  p.Table,
			"column_name": p.Column,
			"data_type":   p.DataType,
			"basic": map[string]any{
				"row_count":      p.RowCount,
				"null_count":     nullCount,
				"distinct_count": p.DistinctCount,
				"is_unique":      p.RowCount > 0 && nullCount == 0 && p.DistinctCount == p.RowCount,
			},
		}
		if p.MinLength != nil || p.MaxLength != nil || p.AvgLength != nil {
			str := map[string]any{}
			if p.MinLength != nil {
				str["min_length"] = *p.MinLength
			}
			if p.MaxLength != nil {
				str["max_length"] = *p.MaxLength
			}
			if p.AvgLength != nil {
				str["avg_length"] = *p.AvgLength
			}
			rec["string_stats"] = str
		}
		if p.MinValue != nil || p.MaxValue != nil || p.AvgValue != nil {
			num := map[string]any{}
			if p.MinValue != nil {
				num["min"] = *p.MinValue
			}
			if p.MaxValue != nil {
				num["max"] = *p.MaxValue
			}
			if p.AvgValue != nil {
				num["avg"] = *p.AvgValue
			}
			rec["numeric_stats"] = num
		}
		stats = append(stats, rec)
	}
	return map[string]any{"statistics": stats}
}

// profilePlan selects the columns to profile: comparable types only, at most
// limit per table, in ordinal order. A limit <= 0 means no cap.
func profilePlan(columns []columnRow, limit int) []columnRow {
	perTable := map[string]int{}
	plan := make([]columnRow, 0, len(columns))
	for _, c := range columns {
		if !isProfilable(c.DataType) {
			continue
		}
		key := c.Schema + "." + c.Table
		if limit > 0 && perTable[key] >= limit {
			continue
		}
		perTable[key]++
		plan = append(plan, c)
	}
	return plan
}
