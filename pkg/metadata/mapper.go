package metadata

import (
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-dq/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

// DefaultSchema is assumed when a table record carries no schema.
const DefaultSchema = "public"

// TableRecord is a mapped table plus the payload values that later stages
// may override.
type TableRecord struct {
	Table models.Table
	// HealthScore is the score reported by the table payload, if any.
	HealthScore *int
}

// StatisticsResult is the flattened statistics payload. TableRowCounts holds
// the row count reported per table by a statistics_by_table payload.
type StatisticsResult struct {
	Statistics     []models.Statistic
	TableRowCounts map[string]int64
}

// MapTable converts one raw table record. Records without a name are skipped.
func MapTable(r models.RawRecord) (TableRecord, bool) {
	name := stringField(r, "name", "table_name")
	if name == "" {
		return TableRecord{}, false
	}

	t := models.Table{
		Name:                   name,
		Schema:                 stringField(r, "schema", "schema_name", "table_schema"),
		PrimaryKeys:            stringList(r, "primary_keys", "primary_key"),
		ColumnTypeDistribution: map[string]int{},
		Columns:                []models.Column{},
	}
	if t.Schema == "" {
		t.Schema = DefaultSchema
	}
	if n, ok := int64Field(r, "row_count", "rows", "estimated_rows", "row_estimate"); ok {
		t.RowCount = n
	}
	if n, ok := int64Field(r, "column_count", "columns_count"); ok {
		t.ColumnCount = int(n)
	}
	if n, ok := int64Field(r, "size_bytes", "size", "total_bytes"); ok {
		t.SizeBytes = n
	}
	if hasPK, ok := boolField(r, "has_primary_key"); ok {
		t.HasPrimaryKey = hasPK
	}
	t.HasPrimaryKey = t.HasPrimaryKey || len(t.PrimaryKeys) > 0
	if v, ok := firstValue(r, "last_analyzed", "last_updated", "analyzed_at"); ok {
		if ts, ok := jsonutil.FlexibleTime(v); ok {
			t.LastAnalyzed = &ts
		}
	}

	rec := TableRecord{Table: t}
	if score, ok := int64Field(r, "health_score"); ok {
		s := int(score)
		rec.HealthScore = &s
	}
	return rec, true
}

// MapColumn converts one raw column record. tableName is used when the record
// does not name its table (by-table payloads).
func MapColumn(r models.RawRecord, tableName string) (models.Column, bool) {
	name := stringField(r, "name", "column_name")
	if name == "" {
		return models.Column{}, false
	}

	c := models.Column{
		TableName:  stringField(r, "table_name", "table"),
		Name:       name,
		DataType:   stringField(r, "data_type", "type", "column_type"),
		IsNullable: true,
	}
	if c.TableName == "" {
		c.TableName = tableName
	}
	if c.DataType == "" {
		c.DataType = "unknown"
	}
	if nullable, ok := boolField(r, "nullable", "is_nullable"); ok {
		c.IsNullable = nullable
	}
	if pk, ok := boolField(r, "is_primary_key", "primary_key", "is_pk"); ok {
		c.IsPrimaryKey = pk
	}
	if pos, ok := int64Field(r, "ordinal_position", "position", "ordinal"); ok {
		c.OrdinalPosition = int(pos)
	}
	if v, ok := firstValue(r, "default_value", "column_default", "default"); ok {
		if s, ok := jsonutil.FlexibleString(v); ok {
			c.DefaultValue = &s
		}
	}
	return c, true
}

// MapStatistic converts one raw statistic record. Profiling fields are read
// from the "basic" sub-object when present, otherwise from the record itself.
func MapStatistic(r models.RawRecord, tableName string) (models.Statistic, bool) {
	basic, ok := asObject(r["basic"])
	if !ok {
		basic = r
	}

	s := models.Statistic{
		TableName:  stringField(r, "table_name", "table"),
		ColumnName: stringField(r, "column_name", "name", "column"),
		DataType:   stringField(r, "data_type", "type"),
	}
	if s.ColumnName == "" {
		return models.Statistic{}, false
	}
	if s.TableName == "" {
		s.TableName = tableName
	}
	if s.DataType == "" {
		s.DataType = stringField(basic, "data_type", "type")
	}

	if n, ok := int64Field(basic, "row_count", "total_count"); ok {
		s.RowCount = &n
	} else if n, ok := int64Field(r, "row_count", "total_count"); ok {
		s.RowCount = &n
	}
	if n, ok := int64Field(basic, "null_count"); ok {
		s.NullCount = n
	}
	if n, ok := int64Field(basic, "distinct_count", "unique_count"); ok {
		s.DistinctCount = n
	}

	if pct, ok := floatField(basic, "null_percentage", "null_percent", "null_pct"); ok {
		s.NullPercentage = pct
	} else if s.RowCount != nil && *s.RowCount > 0 {
		s.NullPercentage = float64(s.NullCount) * 100 / float64(*s.RowCount)
	}
	if pct, ok := floatField(basic, "distinct_percentage", "distinct_percent", "unique_percentage"); ok {
		s.DistinctPercentage = pct
	} else if s.RowCount != nil && *s.RowCount > 0 {
		s.DistinctPercentage = float64(s.DistinctCount) * 100 / float64(*s.RowCount)
	}
	if unique, ok := boolField(basic, "is_unique", "unique"); ok {
		s.IsUnique = unique
	}

	if numeric, ok := subObject(r, basic, "numeric_stats", "numeric"); ok {
		s.MinValue = floatPtr(numeric, "min", "min_value")
		s.MaxValue = floatPtr(numeric, "max", "max_value")
		s.AvgValue = floatPtr(numeric, "avg", "mean", "avg_value")
	}
	if str, ok := subObject(r, basic, "string_stats", "string"); ok {
		s.MinLength = int64Ptr(str, "min_length")
		s.MaxLength = int64Ptr(str, "max_length")
		s.AvgLength = floatPtr(str, "avg_length")
	}
	return s, true
}

// MapTables maps every record of a tables extraction.
func MapTables(ext Extraction) []TableRecord {
	out := make([]TableRecord, 0, len(ext.Records))
	for _, r := range ext.Records {
		if t, ok := MapTable(r); ok {
			out = append(out, t)
		}
	}
	return out
}

// MapColumns maps every record of a columns extraction.
func MapColumns(ext Extraction) []models.Column {
	out := make([]models.Column, 0, len(ext.Records))
	for _, r := range ext.Records {
		if c, ok := MapColumn(r, ""); ok {
			out = append(out, c)
		}
	}
	return out
}

// MapStatistics flattens a statistics extraction. For statistics_by_table
// payloads it emits one Statistic per (table, column) pair and carries the
// table's row_count onto every row.
func MapStatistics(ext Extraction) StatisticsResult {
	result := StatisticsResult{
		Statistics:     []models.Statistic{},
		TableRowCounts: map[string]int64{},
	}

	switch ext.Shape {
	case ShapeList:
		for _, r := range ext.Records {
			if s, ok := MapStatistic(r, ""); ok {
				result.Statistics = append(result.Statistics, s)
			}
		}
	case ShapeByTable:
		for _, tableName := range sortedKeys(ext.ByTable) {
			entry := ext.ByTable[tableName]
			rowCount, hasRowCount := int64Field(entry, "row_count", "rows", "total_rows")
			if hasRowCount {
				result.TableRowCounts[tableName] = rowCount
			}

			for _, rec := range columnStatistics(entry) {
				s, ok := MapStatistic(rec, tableName)
				if !ok {
					continue
				}
				s.TableName = tableName
				if hasRowCount {
					rc := rowCount
					s.RowCount = &rc
				}
				result.Statistics = append(result.Statistics, s)
			}
		}
	}
	return result
}

// columnStatistics returns the per-column records of a statistics_by_table
// entry. The map form is keyed by column name.
func columnStatistics(entry models.RawRecord) []models.RawRecord {
	raw, ok := firstValue(entry, "column_statistics", "columns")
	if !ok {
		return nil
	}
	if list, ok := asList(raw); ok {
		return records(list)
	}
	obj, ok := asObject(raw)
	if !ok {
		return nil
	}
	out := make([]models.RawRecord, 0, len(obj))
	for _, col := range sortedKeys(obj) {
		if rec, ok := asObject(obj[col]); ok {
			out = append(out, withDefault(rec, "column_name", col))
		}
	}
	return out
}

// --- field helpers ---

func firstValue(r models.RawRecord, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(r models.RawRecord, keys ...string) string {
	for _, k := range keys {
		if s, ok := jsonutil.FlexibleString(r[k]); ok && s != "" {
			return s
		}
	}
	return ""
}

func int64Field(r models.RawRecord, keys ...string) (int64, bool) {
	for _, k := range keys {
		if n, ok := jsonutil.FlexibleInt64(r[k]); ok {
			return n, true
		}
	}
	return 0, false
}

func floatField(r models.RawRecord, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := jsonutil.FlexibleFloat64(r[k]); ok {
			return f, true
		}
	}
	return 0, false
}

func boolField(r models.RawRecord, keys ...string) (bool, bool) {
	for _, k := range keys {
		if b, ok := jsonutil.FlexibleBool(r[k]); ok {
			return b, true
		}
	}
	return false, false
}

func floatPtr(r models.RawRecord, keys ...string) *float64 {
	if f, ok := floatField(r, keys...); ok {
		return &f
	}
	return nil
}

func int64Ptr(r models.RawRecord, keys ...string) *int64 {
	if n, ok := int64Field(r, keys...); ok {
		return &n
	}
	return nil
}

// subObject finds a nested object under any of keys, first in primary then
// in fallback.
func subObject(primary, fallback models.RawRecord, keys ...string) (models.RawRecord, bool) {
	for _, src := range []models.RawRecord{primary, fallback} {
		for _, k := range keys {
			if obj, ok := asObject(src[k]); ok {
				return obj, true
			}
		}
	}
	return nil, false
}

// stringList reads a list of names, accepting an array, a single string or a
// comma-separated string.
func stringList(r models.RawRecord, keys ...string) []string {
	v, ok := firstValue(r, keys...)
	if !ok {
		return []string{}
	}
	if _, isBool := v.(bool); isBool {
		return []string{}
	}
	if list, ok := asList(v); ok {
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := jsonutil.FlexibleString(item); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	s, ok := jsonutil.FlexibleString(v)
	if !ok || s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
