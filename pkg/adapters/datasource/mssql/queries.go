package mssql

import "fmt"

const tablesQuery = `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(t.schema_id) AS table_schema,
	    t.name AS table_name,
	    (SELECT SUM(p.rows) FROM sys.partitions p
	     WHERE p.object_id = t.object_id AND p.index_id IN (0, 1)) AS row_count,  -- Heap or clustered index
	    (SELECT SUM(a.total_pages) * 8192 FROM sys.partitions p
	     INNER JOIN sys.allocation_units a ON a.container_id = p.partition_id
	     WHERE p.object_id = t.object_id) AS size_bytes,
	    (SELECT COUNT(*) FROM sys.columns c WHERE c.object_id = t.object_id) AS column_count,
	    (SELECT STRING_AGG(c.name, ',') WITHIN GROUP (ORDER BY ic.key_ordinal)
	     FROM sys.indexes i
	     INNER JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	     INNER JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
	     WHERE i.object_id = t.object_id AND i.is_primary_key = 1) AS primary_keys,
	    (SELECT MAX(STATS_DATE(st.object_id, st.stats_id)) FROM sys.stats st
	     WHERE st.object_id = t.object_id) AS last_analyzed
	FROM sys.tables t
	WHERE t.is_ms_shipped = 0   -- Exclude system tables
	ORDER BY table_schema, table_name
`

const columnsQuery = `
	SET NOCOUNT ON;
	SELECT
	    SCHEMA_NAME(t.schema_id) AS table_schema,
	    t.name AS table_name,
	    c.name AS column_name,
	    tp.name AS data_type,
	    CASE WHEN c.is_nullable = 1 THEN 1 ELSE 0 END AS is_nullable,
	    CASE WHEN pk.column_id IS NOT NULL THEN 1 ELSE 0 END AS is_primary_key,
	    c.column_id AS ordinal_position,
	    dc.definition AS column_default
	FROM sys.tables t
	INNER JOIN sys.columns c ON c.object_id = t.object_id
	INNER JOIN sys.types tp ON c.user_type_id = tp.user_type_id
	LEFT JOIN sys.default_constraints dc ON dc.object_id = c.default_object_id
	LEFT JOIN (
	    SELECT ic.object_id, ic.column_id
	    FROM sys.index_columns ic
	    INNER JOIN sys.indexes i ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	    WHERE i.is_primary_key = 1
	) pk ON c.object_id = pk.object_id AND c.column_id = pk.column_id
	WHERE t.is_ms_shipped = 0
	ORDER BY table_schema, table_name, c.column_id
`

// profileQuery builds the per-column profiling query. String columns add
// length stats; numeric columns add min/max/avg.
func profileQuery(schema, table, column, dataType string) string {
	col := quoteName(column)
	from := buildFullyQualifiedName(schema, table)

	extra := ""
	switch {
	case isStringType(dataType):
		extra = fmt.Sprintf(`,
	    CAST(MIN(LEN(%[1]s)) AS BIGINT) AS min_length,
	    CAST(MAX(LEN(%[1]s)) AS BIGINT) AS max_length,
	    AVG(CAST(LEN(%[1]s) AS FLOAT)) AS avg_length`, col)
	case isNumericType(dataType):
		extra = fmt.Sprintf(`,
	    MIN(CAST(%[1]s AS FLOAT)) AS min_value,
	    MAX(CAST(%[1]s AS FLOAT)) AS max_value,
	    AVG(CAST(%[1]s AS FLOAT)) AS avg_value`, col)
	}

	return fmt.Sprintf(`
	SET NOCOUNT ON;
	SELECT
	    COUNT_BIG(*) AS row_count,
	    COUNT_BIG(%[1]s) AS non_null_count,
	    COUNT_BIG(DISTINCT %[1]s) AS distinct_count%[2]s
	FROM %[3]s WITH (NOLOCK)
	`, col, extra, from)
}

// simplifiedProfileQuery drops the type-specific aggregates. Used when the
// full query fails (overflowing casts, exotic collations).
func simplifiedProfileQuery(schema, table, column string) string {
	col := quoteName(column)
	return fmt.Sprintf(`
	SET NOCOUNT ON;
	SELECT
	    COUNT_BIG(*) AS row_count,
	    COUNT_BIG(%[1]s) AS non_null_count,
	    COUNT_BIG(DISTINCT %[1]s) AS distinct_count
	FROM %[2]s WITH (NOLOCK)
	`, col, buildFullyQualifiedName(schema, table))
}
