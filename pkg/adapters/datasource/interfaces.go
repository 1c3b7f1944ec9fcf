package datasource

import (
	"context"

	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

// FetchOptions tune a single metadata fetch.
type FetchOptions struct {
	// ForceFresh asks the source to bypass any cache it keeps.
	ForceFresh bool
}

// MetadataSource produces the raw table, column and statistics responses
// for a connection. Bodies are returned as decoded JSON-like values in
// whatever envelope the source natively produces; normalization happens
// downstream.
//
// Implementations must be safe for concurrent use: the three fetches for one
// snapshot run in parallel.
type MetadataSource interface {
	FetchTables(ctx context.Context, connectionID string, opts FetchOptions) (*models.RawResponse, error)
	FetchColumns(ctx context.Context, connectionID string, opts FetchOptions) (*models.RawResponse, error)
	FetchStatistics(ctx context.Context, connectionID string, opts FetchOptions) (*models.RawResponse, error)

	// Close releases connections held by the source.
	Close() error
}

// PoolConnector abstracts connection pool operations across database types
// (pgxpool for PostgreSQL, database/sql for SQL Server).
type PoolConnector interface {
	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close closes all connections in the pool
	Close() error

	// GetType returns the database type for logging/stats
	GetType() string
}

// StatsReporter is implemented by sources that hold database pools.
type StatsReporter interface {
	ConnectionStats() ConnectionStats
}
