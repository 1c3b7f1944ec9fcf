package backend

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dq/pkg/config"
	"github.com/ekaya-inc/ekaya-dq/pkg/retry"
)

func init() {
	datasource.Register(datasource.SourceRegistration{
		Info: datasource.SourceInfo{
			Type:        config.SourceBackend,
			DisplayName: "Metadata backend",
			Description: "Fetch metadata from the backend HTTP API",
		},
		Factory: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (datasource.MetadataSource, error) {
			retryCfg := retry.DefaultConfig()
			retryCfg.MaxRetries = cfg.Backend.MaxRetries

			return NewClient(ClientConfig{
				BaseURL:    cfg.Backend.BaseURL,
				PathPrefix: cfg.Backend.PathPrefix,
				Token:      cfg.Backend.APIToken,
				Timeout:    cfg.Backend.Timeout(),
				Retry:      retryCfg,
				Thresholds: cfg.Freshness.Thresholds(),
			}, logger), nil
		},
	})
}
