package fixture

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dq/pkg/config"
)

func init() {
	datasource.Register(datasource.SourceRegistration{
		Info: datasource.SourceInfo{
			Type:        config.SourceFixture,
			DisplayName: "Fixture file",
			Description: "Serve canned metadata responses from a YAML file",
		},
		Factory: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (datasource.MetadataSource, error) {
			file, err := Load(cfg.Source.FixturePath)
			if err != nil {
				return nil, err
			}
			logger.Info("loaded fixture file",
				zap.String("path", cfg.Source.FixturePath),
				zap.Int("connections", len(file.Connections)))
			return NewSource(file, cfg.Freshness.Thresholds(), logger), nil
		},
	})
}
