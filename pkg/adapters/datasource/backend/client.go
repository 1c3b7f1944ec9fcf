// Package backend fetches raw metadata responses from the metadata backend
// HTTP API.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dq/pkg/auth"
	"github.com/ekaya-inc/ekaya-dq/pkg/logging"
	"github.com/ekaya-inc/ekaya-dq/pkg/metadata"
	"github.com/ekaya-inc/ekaya-dq/pkg/middleware"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
	"github.com/ekaya-inc/ekaya-dq/pkg/retry"
)

// DefaultTimeout is the maximum time to wait for one backend response.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is kept for messages.
const maxErrorBody = 512

// ClientConfig configures a backend client.
type ClientConfig struct {
	BaseURL    string
	PathPrefix string
	// Token is sent when the request context carries no caller token.
	Token      string
	Timeout    time.Duration
	Retry      *retry.Config
	Thresholds metadata.FreshnessThresholds
}

// Client provides access to the metadata backend API.
//
//	GET {base}{prefix}/connections/{id}/metadata/{tables|columns|statistics}
type Client struct {
	httpClient *http.Client
	cfg        ClientConfig
	logger     *zap.Logger
	now        func() time.Time
}

var _ datasource.MetadataSource = (*Client)(nil)

// NewClient creates a new backend client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger.Named("backend"),
		now:        time.Now,
	}
}

func (c *Client) FetchTables(ctx context.Context, connectionID string, opts datasource.FetchOptions) (*models.RawResponse, error) {
	return c.fetch(ctx, connectionID, metadata.KindTables, opts)
}

func (c *Client) FetchColumns(ctx context.Context, connectionID string, opts datasource.FetchOptions) (*models.RawResponse, error) {
	return c.fetch(ctx, connectionID, metadata.KindColumns, opts)
}

func (c *Client) FetchStatistics(ctx context.Context, connectionID string, opts datasource.FetchOptions) (*models.RawResponse, error) {
	return c.fetch(ctx, connectionID, metadata.KindStatistics, opts)
}

// Close releases idle HTTP connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// fetch GETs one metadata kind, retrying transient failures.
func (c *Client) fetch(ctx context.Context, connectionID string, kind metadata.EntityKind, opts datasource.FetchOptions) (*models.RawResponse, error) {
	if connectionID == "" || connectionID == "." || connectionID == ".." || strings.ContainsAny(connectionID, `/\?#`) {
		return nil, fmt.Errorf("%w: connection ID %q", apperrors.ErrInvalidInput, connectionID)
	}

	endpoint, err := buildURL(c.cfg.BaseURL, c.cfg.PathPrefix, "connections", connectionID, "metadata", string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}
	if opts.ForceFresh {
		endpoint += "?force_refresh=true"
	}

	c.logger.Debug("Fetching metadata from backend",
		zap.String("url", endpoint),
		zap.String("connection_id", connectionID),
		zap.String("kind", string(kind)))

	start := time.Now()
	body, err := retry.DoIfRetryable(ctx, c.cfg.Retry, func() (any, error) {
		return c.get(ctx, endpoint)
	})
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownConnection, connectionID)
		}
		return nil, err
	}

	freshness := metadata.ParseFreshness(body, c.now(), c.cfg.Thresholds)
	c.logger.Debug("Got metadata from backend",
		zap.String("connection_id", connectionID),
		zap.String("kind", string(kind)),
		zap.String("freshness", string(freshness.Status)),
		zap.Duration("elapsed", time.Since(start)))

	return &models.RawResponse{Body: body, Freshness: freshness}, nil
}

// get executes one request and decodes the JSON body.
func (c *Client) get(ctx context.Context, endpoint string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	requestID := middleware.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(middleware.RequestIDHeader, requestID)
	if token := c.token(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("Backend returned error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", logging.SanitizeMessage(string(snippet))))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(snippet)}
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	var body any
	if err := decoder.Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return body, nil
}

// token prefers the caller's own JWT so the backend applies its permissions.
func (c *Client) token(ctx context.Context) string {
	if token, ok := auth.GetToken(ctx); ok && token != "" {
		return token
	}
	return c.cfg.Token
}

// buildURL constructs a URL by parsing the base and joining path segments.
func buildURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base URL: %q", baseURL)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...)

	return u.String(), nil
}
