package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dq/pkg/config"
)

func init() {
	datasource.Register(datasource.SourceRegistration{
		Info: datasource.SourceInfo{
			Type:        config.SourcePostgres,
			DisplayName: "PostgreSQL",
			Description: "Read catalog metadata and planner statistics from PostgreSQL 12+",
		},
		Factory: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (datasource.MetadataSource, error) {
			if len(cfg.Source.Connections) == 0 {
				return nil, fmt.Errorf("no connections configured (set SOURCE_CONNECTIONS)")
			}
			conns := datasource.NewConnectionManager(
				cfg.Source.Connections,
				NewOpener(cfg.Source.PoolMaxConns),
				datasource.ConnectionManagerConfig{},
				logger,
			)
			return NewSource(conns, cfg.Freshness.Thresholds(), logger), nil
		},
	})
}
