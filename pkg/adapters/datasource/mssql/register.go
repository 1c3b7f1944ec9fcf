package mssql

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
			Type:        config.SourceMSSQL,
			DisplayName: "Microsoft SQL Server",
			Description: "Read catalog metadata and profile columns on SQL Server 2019+, Azure SQL Database",
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
			return NewSource(conns, cfg.Source.StatisticsSampleLimit, logger), nil
		},
	})
}
