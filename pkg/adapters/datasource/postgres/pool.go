package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource"
)

const defaultMaxConnIdleTime = 2 * time.Minute

// Pool wraps a pgxpool.Pool to implement datasource.PoolConnector.
type Pool struct {
	*pgxpool.Pool
}

// Close closes the underlying pgx pool.
func (p *Pool) Close() error {
	p.Pool.Close()
	return nil
}

// GetType returns "postgres".
func (p *Pool) GetType() string {
	return "postgres"
}

// NewOpener returns a datasource.Opener that creates pgx pools capped at
// maxConns connections.
func NewOpener(maxConns int32) datasource.Opener {
	return func(ctx context.Context, dsn string) (datasource.PoolConnector, error) {
		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse connection string: %w", err)
		}
		if maxConns > 0 {
			poolCfg.MaxConns = maxConns
		}
		poolCfg.MaxConnIdleTime = defaultMaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return &Pool{Pool: pool}, nil
	}
}
