package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dq/pkg/metadata"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

// Source reads metadata straight from PostgreSQL system catalogs. Table and
// column responses are always live; statistics are as old as the last
// ANALYZE.
type Source struct {
	conns      *datasource.ConnectionManager
	thresholds metadata.FreshnessThresholds
	logger     *zap.Logger
	now        func() time.Time
}

var _ datasource.MetadataSource = (*Source)(nil)

// NewSource creates a PostgreSQL source over a connection manager.
func NewSource(conns *datasource.ConnectionManager, thresholds metadata.FreshnessThresholds, logger *zap.Logger) *Source {
	return &Source{
		conns:      conns,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
	}
}

// FetchTables lists user tables with planner row estimates and sizes.
func (s *Source) FetchTables(ctx context.Context, connectionID string, _ datasource.FetchOptions) (*models.RawResponse, error) {
	pool, err := s.pool(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []tableRow
	for rows.Next() {
		var t tableRow
		if err := rows.Scan(&t.Schema, &t.Name, &t.RowCount, &t.SizeBytes, &t.LastAnalyzed, &t.PrimaryKeys, &t.ColumnCount); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	s.logger.Debug("fetched tables", zap.String("connection_id", connectionID), zap.Int("count", len(tables)))
	return &models.RawResponse{Body: tablesBody(tables), Freshness: live()}, nil
}

// FetchColumns lists every column of every user table.
func (s *Source) FetchColumns(ctx context.Context, connectionID string, _ datasource.FetchOptions) (*models.RawResponse, error) {
	pool, err := s.pool(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, columnsQuery)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var columns []columnRow
	for rows.Next() {
		var c columnRow
		if err := rows.Scan(&c.Schema, &c.Table, &c.Name, &c.DataType, &c.IsNullable, &c.IsPrimaryKey, &c.Ordinal, &c.Default); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	s.logger.Debug("fetched columns", zap.String("connection_id", connectionID), zap.Int("count", len(columns)))
	return &models.RawResponse{Body: columnsBody(columns), Freshness: live()}, nil
}

// FetchStatistics reads planner statistics from pg_stats. Columns that have
// never been analyzed are absent.
func (s *Source) FetchStatistics(ctx context.Context, connectionID string, _ datasource.FetchOptions) (*models.RawResponse, error) {
	pool, err := s.pool(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, statisticsQuery)
	if err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}
	defer rows.Close()

	var stats []statRow
	for rows.Next() {
		var r statRow
		if err := rows.Scan(&r.Schema, &r.Table, &r.Column, &r.DataType, &r.NullFrac, &r.NDistinct, &r.AvgWidth, &r.RowCount, &r.LastAnalyzed); err != nil {
			return nil, fmt.Errorf("scan statistic: %w", err)
		}
		stats = append(stats, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statistics: %w", err)
	}

	body, oldest := statisticsBody(stats)
	freshness := models.Freshness{Status: models.FreshnessUnknown}
	if oldest != nil {
		freshness = metadata.FreshnessFromAge(s.now().Sub(*oldest), s.thresholds)
	}

	s.logger.Debug("fetched statistics",
		zap.String("connection_id", connectionID),
		zap.Int("columns", len(stats)),
		zap.String("freshness", string(freshness.Status)),
	)
	return &models.RawResponse{Body: body, Freshness: freshness}, nil
}

// Close closes every pool opened by the source.
func (s *Source) Close() error {
	return s.conns.Close()
}

// ConnectionStats reports the state of the source's pools.
func (s *Source) ConnectionStats() datasource.ConnectionStats {
	return s.conns.GetStats()
}

func (s *Source) pool(ctx context.Context, connectionID string) (*pgxpool.Pool, error) {
	conn, err := s.conns.Get(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	p, ok := conn.(*Pool)
	if !ok {
		return nil, fmt.Errorf("unexpected pool type %T for postgres", conn)
	}
	return p.Pool, nil
}

func live() models.Freshness {
	return models.Freshness{Status: models.FreshnessFresh}
}
