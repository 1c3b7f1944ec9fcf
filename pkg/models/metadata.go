package models

import "time"

// RawRecord is one decoded record from a metadata payload.
type RawRecord = map[string]any

// RawResponse is the decoded body of one metadata fetch together with the
// freshness the source reported for it.
type RawResponse struct {
	Body      any       `json:"body"`
	Freshness Freshness `json:"freshness"`
}

// FreshnessStatus is a qualitative staleness indicator for a metadata fetch.
type FreshnessStatus string

// Freshness statuses, best to worst.
const (
	FreshnessFresh   FreshnessStatus = "fresh"
	FreshnessRecent  FreshnessStatus = "recent"
	FreshnessStale   FreshnessStatus = "stale"
	FreshnessUnknown FreshnessStatus = "unknown"
	FreshnessError   FreshnessStatus = "error"
)

// Freshness describes how old a fetched (or integrated) result is.
type Freshness struct {
	Status     FreshnessStatus `json:"status"`
	AgeSeconds int64           `json:"age_seconds"`
}

// Column type buckets used by type distributions.
const (
	TypeBucketText     = "text"
	TypeBucketNumeric  = "numeric"
	TypeBucketDatetime = "datetime"
	TypeBucketBoolean  = "boolean"
	TypeBucketOther    = "other"
)

// Table is a normalized table with its rollups and joined columns.
type Table struct {
	Name                   string         `json:"name"`
	Schema                 string         `json:"schema"`
	RowCount               int64          `json:"row_count"`
	ColumnCount            int            `json:"column_count"`
	HealthScore            int            `json:"health_score"`
	HasPrimaryKey          bool           `json:"has_primary_key"`
	PrimaryKeys            []string       `json:"primary_keys"`
	SizeBytes              int64          `json:"size_bytes"`
	LastAnalyzed           *time.Time     `json:"last_analyzed,omitempty"`
	ColumnTypeDistribution map[string]int `json:"column_type_distribution"`
	NullableColumns        int            `json:"nullable_columns"`
	NonNullableColumns     int            `json:"non_nullable_columns"`
	Columns                []Column       `json:"columns"`
}

// Column is a normalized column, keyed by (TableName, Name).
type Column struct {
	TableName       string  `json:"table_name"`
	Name            string  `json:"name"`
	DataType        string  `json:"data_type"`
	IsNullable      bool    `json:"is_nullable"`
	IsPrimaryKey    bool    `json:"is_primary_key"`
	OrdinalPosition int     `json:"ordinal_position"`
	DefaultValue    *string `json:"default_value,omitempty"`
}

// Statistic holds profiling results for one column, keyed by (TableName, ColumnName).
type Statistic struct {
	TableName          string   `json:"table_name"`
	ColumnName         string   `json:"column_name"`
	DataType           string   `json:"data_type,omitempty"`
	RowCount           *int64   `json:"row_count,omitempty"`
	NullCount          int64    `json:"null_count"`
	NullPercentage     float64  `json:"null_percentage"`
	DistinctCount      int64    `json:"distinct_count"`
	DistinctPercentage float64  `json:"distinct_percentage"`
	IsUnique           bool     `json:"is_unique"`
	MinValue           *float64 `json:"min_value,omitempty"`
	MaxValue           *float64 `json:"max_value,omitempty"`
	AvgValue           *float64 `json:"avg_value,omitempty"`
	MinLength          *int64   `json:"min_length,omitempty"`
	MaxLength          *int64   `json:"max_length,omitempty"`
	AvgLength          *float64 `json:"avg_length,omitempty"`
}

// TableSize names a table and its row count.
type TableSize struct {
	Name     string `json:"name"`
	RowCount int64  `json:"row_count"`
}

// Summary holds snapshot-wide totals.
type Summary struct {
	TotalTables      int            `json:"total_tables"`
	TotalColumns     int            `json:"total_columns"`
	TotalStatistics  int            `json:"total_statistics"`
	TotalRows        int64          `json:"total_rows"`
	TablesWithData   int            `json:"tables_with_data"`
	LargestTable     *TableSize     `json:"largest_table,omitempty"`
	TypeDistribution map[string]int `json:"type_distribution"`
}

// IntegratedSnapshot is the normalized, point-in-time view of one connection's
// metadata. It is built per request and never mutated after it is returned.
type IntegratedSnapshot struct {
	ConnectionID string      `json:"connection_id"`
	Tables       []Table     `json:"tables"`
	Columns      []Column    `json:"columns"`
	Statistics   []Statistic `json:"statistics"`
	Summary      Summary     `json:"summary"`
	Freshness    Freshness   `json:"freshness"`
	GeneratedAt  time.Time   `json:"generated_at"`
}

// EmptySnapshot returns a snapshot with non-nil empty collections.
func EmptySnapshot(connectionID string) *IntegratedSnapshot {
	return &IntegratedSnapshot{
		ConnectionID: connectionID,
		Tables:       []Table{},
		Columns:      []Column{},
		Statistics:   []Statistic{},
		Summary:      Summary{TypeDistribution: map[string]int{}},
		Freshness:    Freshness{Status: FreshnessError},
		GeneratedAt:  time.Now().UTC(),
	}
}

// IntegrationOptions selects which fetches an integration issues.
type IntegrationOptions struct {
	IncludeColumns    bool `json:"include_columns"`
	IncludeStatistics bool `json:"include_statistics"`
	ForceFresh        bool `json:"force_fresh"`
}

// DefaultIntegrationOptions includes columns and statistics without forcing a refresh.
func DefaultIntegrationOptions() IntegrationOptions {
	return IntegrationOptions{IncludeColumns: true, IncludeStatistics: true}
}

// IntegrationResult is the outcome of integrating one connection's metadata.
// Success is true when the tables fetch succeeded; Errors carries advisory
// messages for fetches that failed.
type IntegrationResult struct {
	Success   bool                `json:"success"`
	Data      *IntegratedSnapshot `json:"data"`
	Errors    []string            `json:"errors"`
	Freshness Freshness           `json:"freshness"`
}

// EnhancedTableInfo is one table cut out of a full snapshot.
type EnhancedTableInfo struct {
	Table      Table       `json:"table"`
	Columns    []Column    `json:"columns"`
	Statistics []Statistic `json:"statistics"`
	Freshness  Freshness   `json:"freshness"`
}
