package postgres

// Catalog queries. All three skip system schemas and read planner estimates
// rather than scanning user data.
const (
	tablesQuery = `
		SELECT
			n.nspname::text AS table_schema,
			c.relname::text AS table_name,
			GREATEST(c.reltuples, 0)::bigint AS row_count,
			pg_total_relation_size(c.oid) AS size_bytes,
			GREATEST(s.last_analyze, s.last_autoanalyze) AS last_analyzed,
			COALESCE(pk.columns, ARRAY[]::text[]) AS primary_keys,
			(
				SELECT count(*)
				FROM pg_attribute a
				WHERE a.attrelid = c.oid AND a.attnum > 0 AND NOT a.attisdropped
			)::int AS column_count
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_stat_user_tables s ON s.relid = c.oid
		LEFT JOIN LATERAL (
			-- pg_index.indisprimary also catches PKs created as unique indexes
			SELECT array_agg(a.attname::text ORDER BY array_position(ix.indkey::int2[], a.attnum)) AS columns
			FROM pg_index ix
			JOIN pg_attribute a ON a.attrelid = ix.indrelid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indrelid = c.oid AND ix.indisprimary
		) pk ON true
		WHERE c.relkind IN ('r', 'p')
		  AND n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY n.nspname, c.relname
	`

	columnsQuery = `
		SELECT
			c.table_schema::text,
			c.table_name::text,
			c.column_name::text,
			c.data_type::text,
			c.is_nullable = 'YES' AS is_nullable,
			COALESCE(pk.is_pk, false) AS is_primary_key,
			c.ordinal_position::int,
			c.column_default::text
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema
		 AND t.table_name = c.table_name
		 AND t.table_type = 'BASE TABLE'
		LEFT JOIN (
			SELECT n.nspname AS table_schema, t.relname AS table_name, a.attname AS column_name, true AS is_pk
			FROM pg_index ix
			JOIN pg_class t ON t.oid = ix.indrelid
			JOIN pg_namespace n ON n.oid = t.relnamespace
			JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
			WHERE ix.indisprimary
		) pk ON pk.table_schema = c.table_schema
		    AND pk.table_name = c.table_name
		    AND pk.column_name = c.column_name
		WHERE c.table_schema NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY c.table_schema, c.table_name, c.ordinal_position
	`

	statisticsQuery = `
		SELECT
			s.schemaname::text,
			s.tablename::text,
			s.attname::text,
			format_type(a.atttypid, a.atttypmod) AS data_type,
			COALESCE(s.null_frac, 0)::float8 AS null_frac,
			COALESCE(s.n_distinct, 0)::float8 AS n_distinct,
			COALESCE(s.avg_width, 0) AS avg_width,
			GREATEST(c.reltuples, 0)::bigint AS row_count,
			GREATEST(st.last_analyze, st.last_autoanalyze) AS last_analyzed
		FROM pg_stats s
		JOIN pg_namespace n ON n.nspname = s.schemaname
		JOIN pg_class c ON c.relnamespace = n.oid AND c.relname = s.tablename
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attname = s.attname
		LEFT JOIN pg_stat_user_tables st ON st.relid = c.oid
		WHERE NOT s.inherited
		  AND s.schemaname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		ORDER BY s.schemaname, s.tablename, a.attnum
	`
)
