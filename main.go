// Command ekaya-dq serves integrated table, column and statistics metadata
// for configured database connections over HTTP and MCP.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource"
	_ "github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource/backend"
	_ "github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource/fixture"
	_ "github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource/postgres"
	"github.com/ekaya-inc/ekaya-dq/pkg/cache"
	"github.com/ekaya-inc/ekaya-dq/pkg/config"
	"github.com/ekaya-inc/ekaya-dq/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

// configPath is the YAML configuration file; environment variables override it.
var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ekaya-dq",
		Short: "Integrated database metadata service",
		Long: `ekaya-dq normalizes table, column and statistics metadata for database
connections into one snapshot with per-table health scores and freshness.

Metadata comes from the configured source: the ekaya backend API, PostgreSQL
or SQL Server catalogs, or a YAML fixture file.`,
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	rootCmd.AddCommand(newServeCmd(), newSnapshotCmd(), newTableCmd())
	return rootCmd
}

// newLogger builds a production logger unless running locally.
func newLogger(env string) (*zap.Logger, error) {
	switch env {
	case "local", "dev", "test":
		return zap.NewDevelopment()
	default:
		return zap.NewProduction()
	}
}

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	source  datasource.MetadataSource
	service services.MetadataIntegrationService
	cleanup []func()
}

// newApp loads configuration and builds the metadata source and the
// integration service, wrapped with the snapshot cache when enabled.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath, Version)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.cleanup = append(a.cleanup, func() { _ = logger.Sync() })

	source, err := datasource.NewMetadataSource(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.source = source
	a.cleanup = append(a.cleanup, func() {
		if err := source.Close(); err != nil {
			logger.Warn("Failed to close metadata source", zap.Error(err))
		}
	})

	a.service = services.NewMetadataIntegrationService(source, logger)

	redisClient, err := cache.NewRedisClient(ctx, &cfg.Cache)
	if err != nil {
		a.Close()
		return nil, err
	}
	if redisClient != nil {
		a.cleanup = append(a.cleanup, func() { _ = redisClient.Close() })
		a.service = cache.NewCachingService(a.service, cache.NewRedisSnapshotCache(redisClient), cache.CachingConfig{
			TTL:        cfg.Cache.TTL(),
			Thresholds: cfg.Freshness.Thresholds(),
		}, logger)
		logger.Info("Snapshot cache enabled",
			zap.String("addr", cfg.Cache.Addr()),
			zap.Duration("ttl", cfg.Cache.TTL()))
	}

	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}
