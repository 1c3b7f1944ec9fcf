package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

// Source reads metadata from SQL Server catalog views and profiles columns
// with aggregate queries. Everything it returns is computed at request time.
type Source struct {
	conns       *datasource.ConnectionManager
	sampleLimit int
	logger      *zap.Logger
}

var _ datasource.MetadataSource = (*Source)(nil)

// NewSource creates a SQL Server source. sampleLimit caps the columns
// profiled per table.
func NewSource(conns *datasource.ConnectionManager, sampleLimit int, logger *zap.Logger) *Source {
	return &Source{
		conns:       conns,
		sampleLimit: sampleLimit,
		logger:      logger,
	}
}

// FetchTables lists user tables with partition row counts and sizes.
func (s *Source) FetchTables(ctx context.Context, connectionID string, _ datasource.FetchOptions) (*models.RawResponse, error) {
	db, err := s.db(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []tableRow
	for rows.Next() {
		var (
			t           tableRow
			rowCount    sql.NullInt64
			sizeBytes   sql.NullInt64
			primaryKeys sql.NullString
			analyzed    sql.NullTime
		)
		if err := rows.Scan(&t.Schema, &t.Name, &rowCount, &sizeBytes, &t.ColumnCount, &primaryKeys, &analyzed); err != nil {
			return nil, fmt.Errorf("scan table row: %w", err)
		}
		t.RowCount = rowCount.Int64
		t.SizeBytes = sizeBytes.Int64
		t.PrimaryKeys = primaryKeys.String
		if analyzed.Valid {
			ts := analyzed.Time
			t.LastAnalyzed = &ts
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table rows: %w", err)
	}

	s.logger.Debug("fetched tables", zap.String("connection_id", connectionID), zap.Int("count", len(tables)))
	return &models.RawResponse{Body: tablesBody(tables), Freshness: live()}, nil
}

// FetchColumns lists every column of every user table.
func (s *Source) FetchColumns(ctx context.Context, connectionID string, _ datasource.FetchOptions) (*models.RawResponse, error) {
	db, err := s.db(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	columns, err := queryColumns(ctx, db)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("fetched columns", zap.String("connection_id", connectionID), zap.Int("count", len(columns)))
	return &models.RawResponse{Body: columnsBody(columns), Freshness: live()}, nil
}

// FetchStatistics profiles columns one query at a time. A column whose
// profile query fails is retried without type-specific aggregates and then
// skipped; the remaining columns are still profiled.
func (s *Source) FetchStatistics(ctx context.Context, connectionID string, _ datasource.FetchOptions) (*models.RawResponse, error) {
	db, err := s.db(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	columns, err := queryColumns(ctx, db)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	plan := profilePlan(columns, s.sampleLimit)
	profiles := make([]columnProfile, 0, len(plan))
	var skipped []string

	for _, col := range plan {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("profile columns: %w", err)
		}
		profile, ok := s.profileColumn(ctx, db, col)
		if !ok {
			skipped = append(skipped, col.Table+"."+col.Name)
			continue
		}
		profiles = append(profiles, profile)
	}

	if len(skipped) > 0 {
		s.logger.Info("Some columns could not be profiled",
			zap.String("connection_id", connectionID),
			zap.Int("skipped_count", len(skipped)),
			zap.Strings("skipped_columns", skipped))
	}
	s.logger.Debug("profiled columns",
		zap.String("connection_id", connectionID),
		zap.Int("count", len(profiles)),
		zap.Duration("elapsed", time.Since(start)))

	return &models.RawResponse{Body: statisticsBody(profiles), Freshness: live()}, nil
}

// Close closes every database handle opened by the source.
func (s *Source) Close() error {
	return s.conns.Close()
}

// ConnectionStats reports the state of the source's database handles.
func (s *Source) ConnectionStats() datasource.ConnectionStats {
	return s.conns.GetStats()
}

func (s *Source) profileColumn(ctx context.Context, db *sql.DB, col columnRow) (columnProfile, bool) {
	p := columnProfile{Schema: col.Schema, Table: col.Table, Column: col.Name, DataType: col.DataType}

	dest := []any{&p.RowCount, &p.NonNullCount, &p.DistinctCount}
	var minLen, maxLen sql.NullInt64
	var avgLen, minVal, maxVal, avgVal sql.NullFloat64
	switch {
	case isStringType(col.DataType):
		dest = append(dest, &minLen, &maxLen, &avgLen)
	case isNumericType(col.DataType):
		dest = append(dest, &minVal, &maxVal, &avgVal)
	}

	err := db.QueryRowContext(ctx, profileQuery(col.Schema, col.Table, col.Name, col.DataType)).Scan(dest...)
	if err == nil {
		p.MinLength = nullInt(minLen)
		p.MaxLength = nullInt(maxLen)
		p.AvgLength = nullFloat(avgLen)
		p.MinValue = nullFloat(minVal)
		p.MaxValue = nullFloat(maxVal)
		p.AvgValue = nullFloat(avgVal)
		return p, true
	}

	retryErr := db.QueryRowContext(ctx, simplifiedProfileQuery(col.Schema, col.Table, col.Name)).
		Scan(&p.RowCount, &p.NonNullCount, &p.DistinctCount)
	if retryErr != nil {
		s.logger.Warn("Failed to profile column after retry",
			zap.String("schema", col.Schema),
			zap.String("table", col.Table),
			zap.String("column", col.Name),
			zap.Error(err),
			zap.NamedError("retry_error", retryErr))
		return columnProfile{}, false
	}
	return p, true
}

func queryColumns(ctx context.Context, db *sql.DB) ([]columnRow, error) {
	rows, err := db.QueryContext(ctx, columnsQuery)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []columnRow
	for rows.Next() {
		var (
			c                     columnRow
			isNullable, isPrimary int
			def                   sql.NullString
		)
		if err := rows.Scan(&c.Schema, &c.Table, &c.Name, &c.DataType, &isNullable, &isPrimary, &c.Ordinal, &def); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		c.IsNullable = isNullable == 1
		c.IsPrimaryKey = isPrimary == 1
		if def.Valid {
			v := def.String
			c.Default = &v
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate column rows: %w", err)
	}
	return columns, nil
}

func (s *Source) db(ctx context.Context, connectionID string) (*sql.DB, error) {
	conn, err := s.conns.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	p, ok := conn.(*Pool)
	if !ok {
		return nil, fmt.Errorf("unexpected pool type %T for mssql", conn)
	}
	return p.DB, nil
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return &v.Int64
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func live() models.Freshness {
	return models.Freshness{Status: models.FreshnessFresh}
}
