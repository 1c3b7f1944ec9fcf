package mssql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-dq/pkg/metadata"
)

func TestQuoteName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"orders", "[orders]"},
		{"order items", "[order items]"},
		{"weird]name", "[weird]]name]"},
		{"x]; DROP TABLE users;--", "[x]]; DROP TABLE users;--]"},
	}
	for _, tt := range tests {
		if got := quoteName(tt.in); got != tt.want {
			t.Errorf("quoteName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := buildFullyQualifiedName("dbo", "orders"); got != "[dbo].[orders]" {
		t.Errorf("buildFullyQualifiedName = %q", got)
	}
}

func TestProfileQuery_TypeSpecificAggregates(t *testing.T) {
	str := profileQuery("dbo", "users", "email", "nvarchar")
	assert.Contains(t, str, "COUNT_BIG(DISTINCT [email])")
	assert.Contains(t, str, "MAX(LEN([email]))")
	assert.NotContains(t, str, "AS min_value")
	assert.Contains(t, str, "FROM [dbo].[users] WITH (NOLOCK)")

	num := profileQuery("dbo", "orders", "total", "decimal")
	assert.Contains(t, num, "AVG(CAST([total] AS FLOAT))")
	assert.NotContains(t, num, "LEN(")

	plain := profileQuery("dbo", "orders", "placed_at", "datetime2")
	assert.NotContains(t, plain, "LEN(")
	assert.NotContains(t, plain, "AS min_value")

	simple := simplifiedProfileQuery("sales", "o]rders", "id")
	assert.Contains(t, simple, "FROM [sales].[o]]rders]")
}

func TestProfilePlan(t *testing.T) {
	columns := []columnRow{
		{Schema: "dbo", Table: "docs", Name: "id", DataType: "int"},
		{Schema: "dbo", Table: "docs", Name: "body", DataType: "ntext"},
		{Schema: "dbo", Table: "docs", Name: "title", DataType: "nvarchar"},
		{Schema: "dbo", Table: "docs", Name: "author", DataType: "nvarchar"},
		{Schema: "dbo", Table: "tags", Name: "id", DataType: "int"},
		{Schema: "dbo", Table: "tags", Name: "shape", DataType: "geography"},
	}

	plan := profilePlan(columns, 2)
	var names []string
	for _, c := range plan {
		names = append(names, c.Table+"."+c.Name)
	}
	assert.Equal(t, []string{"docs.id", "docs.title", "tags.id"}, names)

	assert.Len(t, profilePlan(columns, 0), 4, "zero limit profiles every comparable column")
}

func TestBodies_RoundTripThroughMapper(t *testing.T) {
	tables := metadata.MapTables(metadata.Extract(metadata.KindTables, tablesBody([]tableRow{
		{Schema: "dbo", Name: "order_lines", RowCount: 40, SizeBytes: 16384, ColumnCount: 3, PrimaryKeys: "order_id,line_no"},
		{Schema: "dbo", Name: "heap", ColumnCount: 1},
	})))
	require.Len(t, tables, 2)
	assert.Equal(t, []string{"order_id", "line_no"}, tables[0].Table.PrimaryKeys)
	assert.True(t, tables[0].Table.HasPrimaryKey)
	assert.Equal(t, "dbo", tables[0].Table.Schema)
	assert.False(t, tables[1].Table.HasPrimaryKey)

	def := "((0))"
	columns := metadata.MapColumns(metadata.Extract(metadata.KindColumns, columnsBody([]columnRow{
		{Schema: "dbo", Table: "order_lines", Name: "qty", DataType: "int", Ordinal: 3, Default: &def},
	})))
	require.Len(t, columns, 1)
	assert.Equal(t, "order_lines", columns[0].TableName)
	assert.Equal(t, 3, columns[0].OrdinalPosition)
	require.NotNil(t, columns[0].DefaultValue)
	assert.Equal(t, "((0))", *columns[0].DefaultValue)

	maxLen := int64(12)
	avg := 4.5
	stats := metadata.MapStatistics(metadata.Extract(metadata.KindStatistics, statisticsBody([]columnProfile{
		{Table: "order_lines", Column: "sku", DataType: "varchar", RowCount: 40, NonNullCount: 30, DistinctCount: 8, MaxLength: &maxLen},
		{Table: "order_lines", Column: "qty", DataType: "int", RowCount: 40, NonNullCount: 40, DistinctCount: 40, AvgValue: &avg},
	})))
	require.Len(t, stats.Statistics, 2)

	sku := stats.Statistics[0]
	assert.Equal(t, int64(10), sku.NullCount)
	assert.InDelta(t, 25.0, sku.NullPercentage, 1e-9)
	assert.InDelta(t, 20.0, sku.DistinctPercentage, 1e-9)
	assert.False(t, sku.IsUnique)
	require.NotNil(t, sku.MaxLength)
	assert.Equal(t, int64(12), *sku.MaxLength)

	qty := stats.Statistics[1]
	assert.True(t, qty.IsUnique)
	require.NotNil(t, qty.AvgValue)
	assert.Equal(t, 4.5, *qty.AvgValue)
}

func TestDriverFor(t *testing.T) {
	if got := driverFor("sqlserver://host:1433?database=wh"); got != "sqlserver" {
		t.Errorf("driverFor(sql auth) = %q", got)
	}
	dsn := "sqlserver://host:1433?database=wh&fedauth=ActiveDirectoryServicePrincipal"
	if got := driverFor(dsn); got != "azuresql" {
		t.Errorf("driverFor(%q) = %q", dsn, got)
	}
}
