package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dq/pkg/auth"
	"github.com/ekaya-inc/ekaya-dq/pkg/handlers"
	dqmcp "github.com/ekaya-inc/ekaya-dq/pkg/mcp"
	"github.com/ekaya-inc/ekaya-dq/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-dq/pkg/middleware"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the metadata HTTP API, MCP endpoint and metrics",
		Long: `Start the HTTP server.

Routes:
  GET /health, GET /ping
  GET /api/connections/{cid}/metadata
  GET /api/connections/{cid}/metadata/tables/{tableName}
  /mcp        (when mcp.enabled)
  /metrics    (when metrics.enabled)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, logger := a.cfg, a.logger
	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("source", cfg.Source.Type),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.Bool("cache", cfg.Cache.Enabled),
		zap.Bool("mcp", cfg.MCP.Enabled),
	)

	jwksClient, err := auth.NewJWKSClient(ctx, &auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		Audience:           cfg.Auth.Audience,
	})
	if err != nil {
		return fmt.Errorf("create JWKS client: %w", err)
	}
	defer jwksClient.Close()
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwksClient, logger.Named("auth")), logger.Named("auth"))

	mux := http.NewServeMux()

	stats, _ := a.source.(datasource.StatsReporter)
	handlers.NewHealthHandler(cfg, stats, logger).RegisterRoutes(mux)
	handlers.NewMetadataHandler(a.service, logger.Named("handlers")).RegisterRoutes(mux, authMiddleware)

	if cfg.MCP.Enabled {
		mcpServer := dqmcp.NewServer("ekaya-dq", cfg.Version, logger.Named("mcp"))
		tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version, cfg.Source.Type)
		tools.RegisterMetadataTools(mcpServer.MCP(), &tools.MetadataToolDeps{
			MetadataService: a.service,
			Logger:          logger.Named("mcp"),
		})
		mcpHTTP := mcpServer.NewStreamableHTTPServer()
		mux.Handle("/mcp", middleware.MCPRequestLogger(logger.Named("mcp"))(authMiddleware.RequireAuth(mcpHTTP.ServeHTTP)))
	}

	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger.Named("http"))(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting ekaya-dq",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		var err error
		if cfg.TLSCertPath != "" {
			err = srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}
