// Package metadata normalizes table, column and statistics payloads from
// heterogeneous metadata responses into one integrated snapshot.
//
// Everything in this package is a pure function of its inputs. Fetching,
// concurrency and error collection live in pkg/services.
package metadata

import (
	"sort"

	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

// EntityKind identifies which entity a payload carries.
type EntityKind string

const (
	KindTables     EntityKind = "tables"
	KindColumns    EntityKind = "columns"
	KindStatistics EntityKind = "statistics"
)

// Shape describes how the records of an Extraction are laid out.
type Shape int

const (
	// ShapeNone means no known envelope matched; the extraction is empty.
	ShapeNone Shape = iota
	// ShapeList is a flat sequence of records.
	ShapeList
	// ShapeByTable is a statistics_by_table map: table name -> table entry
	// holding row_count and a column_statistics map.
	ShapeByTable
)

// Extraction is the payload located inside one response envelope.
type Extraction struct {
	Shape   Shape
	Variant string
	Records []models.RawRecord
	ByTable map[string]models.RawRecord
}

// Len returns the number of top-level entries found.
func (e Extraction) Len() int {
	if e.Shape == ShapeByTable {
		return len(e.ByTable)
	}
	return len(e.Records)
}

// matcher recognises one known envelope layout.
type matcher struct {
	variant string
	path    []string
	byTable bool
}

// Envelope layouts in priority order: current format first, legacy after.
var matchers = map[EntityKind][]matcher{
	KindTables: {
		{variant: "metadata.metadata.tables", path: []string{"metadata", "metadata", "tables"}},
		{variant: "metadata.tables", path: []string{"metadata", "tables"}},
		{variant: "data.tables", path: []string{"data", "tables"}},
		{variant: "tables", path: []string{"tables"}},
		{variant: "root", path: nil},
	},
	KindColumns: {
		{variant: "metadata.metadata.columns", path: []string{"metadata", "metadata", "columns"}},
		{variant: "metadata.columns", path: []string{"metadata", "columns"}},
		{variant: "data.columns", path: []string{"data", "columns"}},
		{variant: "columns", path: []string{"columns"}},
		{variant: "root", path: nil},
	},
	KindStatistics: {
		{variant: "metadata.statistics_by_table", path: []string{"metadata", "statistics_by_table"}, byTable: true},
		{variant: "metadata.metadata.statistics_by_table", path: []string{"metadata", "metadata", "statistics_by_table"}, byTable: true},
		{variant: "statistics_by_table", path: []string{"statistics_by_table"}, byTable: true},
		{variant: "metadata.statistics", path: []string{"metadata", "statistics"}},
		{variant: "data.statistics", path: []string{"data", "statistics"}},
		{variant: "statistics", path: []string{"statistics"}},
		{variant: "root", path: nil},
	},
}

// Extract locates the records for kind inside body. Unrecognised shapes
// yield an empty extraction rather than an error.
func Extract(kind EntityKind, body any) Extraction {
	for _, m := range matchers[kind] {
		if ext, ok := m.match(body); ok {
			return ext
		}
	}
	return Extraction{Shape: ShapeNone}
}

func (m matcher) match(body any) (Extraction, bool) {
	value, ok := lookup(body, m.path)
	if !ok {
		return Extraction{}, false
	}

	if m.byTable {
		obj, ok := asObject(value)
		if !ok {
			return Extraction{}, false
		}
		byTable := make(map[string]models.RawRecord, len(obj))
		for name, entry := range obj {
			if rec, ok := asObject(entry); ok {
				byTable[name] = rec
			}
		}
		return Extraction{Shape: ShapeByTable, Variant: m.variant, ByTable: byTable}, true
	}

	if list, ok := asList(value); ok {
		return Extraction{Shape: ShapeList, Variant: m.variant, Records: records(list)}, true
	}

	// The root of a response is always an object; only an explicit path may
	// resolve to a keyed map.
	if m.path == nil {
		return Extraction{}, false
	}
	if obj, ok := asObject(value); ok {
		return Extraction{Shape: ShapeList, Variant: m.variant, Records: expandKeyed(obj)}, true
	}
	return Extraction{}, false
}

// expandKeyed turns {"name": {...}} into records carrying name. A value that
// is itself a list is treated as the records owned by that key, so
// {"orders": [{...}]} yields records with table_name "orders".
func expandKeyed(obj map[string]any) []models.RawRecord {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]models.RawRecord, 0, len(obj))
	for _, k := range keys {
		if rec, ok := asObject(obj[k]); ok {
			out = append(out, withDefault(rec, "name", k))
			continue
		}
		if list, ok := asList(obj[k]); ok {
			for _, rec := range records(list) {
				out = append(out, withDefault(rec, "table_name", k))
			}
		}
	}
	return out
}

// withDefault returns a shallow copy of rec with key set when absent.
func withDefault(rec models.RawRecord, key, value string) models.RawRecord {
	if v, ok := rec[key]; ok && v != nil && v != "" {
		return rec
	}
	cp := make(models.RawRecord, len(rec)+1)
	for k, v := range rec {
		cp[k] = v
	}
	cp[key] = value
	return cp
}

func lookup(body any, path []string) (any, bool) {
	current := body
	for _, key := range path {
		obj, ok := asObject(current)
		if !ok {
			return nil, false
		}
		next, ok := obj[key]
		if !ok || next == nil {
			return nil, false
		}
		current = next
	}
	return current, current != nil
}

func records(list []any) []models.RawRecord {
	out := make([]models.RawRecord, 0, len(list))
	for _, item := range list {
		if rec, ok := asObject(item); ok {
			out = append(out, rec)
		}
	}
	return out
}

func asObject(v any) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	return obj, ok
}

func asList(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []map[string]any:
		out := make([]any, len(list))
		for i, rec := range list {
			out[i] = rec
		}
		return out, true
	default:
		return nil, false
	}
}
