package datasource

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/config"
)

// NewMetadataSource creates the source selected by cfg.Source.Type using the
// global registry. Source packages register themselves from init(), so the
// binary must import the ones it supports.
func NewMetadataSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (MetadataSource, error) {
	factory := GetFactory(cfg.Source.Type)
	if factory == nil {
		return nil, fmt.Errorf("unsupported source type: %s (not compiled in)", cfg.Source.Type)
	}

	source, err := factory(ctx, cfg, logger.Named("source").With(zap.String("type", cfg.Source.Type)))
	if err != nil {
		return nil, fmt.Errorf("create %s source: %w", cfg.Source.Type, err)
	}
	return source, nil
}
