// Package cache keeps recently integrated snapshots in Redis so repeated
// requests for the same connection skip the upstream fetches.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ekaya-inc/ekaya-dq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dq/pkg/auth"
	"github.com/ekaya-inc/ekaya-dq/pkg/logging"
	"github.com/ekaya-inc/ekaya-dq/pkg/metadata"
	"github.com/ekaya-inc/ekaya-dq/pkg/metrics"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
	"github.com/ekaya-inc/ekaya-dq/pkg/services"
)

// SnapshotCache stores integration results by key.
type SnapshotCache interface {
	// Get returns the cached result. The bool is false on a miss.
	Get(ctx context.Context, key string) (*models.IntegrationResult, bool, error)
	Set(ctx context.Context, key string, result *models.IntegrationResult, ttl time.Duration) error
}

// ServiceScope keys entries for requests that carry no caller token. The
// source then fetches with its own credentials, so every such caller sees
// the same data.
const ServiceScope = "service"

// DefaultFlightTimeout bounds one shared upstream integration.
const DefaultFlightTimeout = 2 * time.Minute

// SnapshotKey builds the cache key for a connection, the caller scope and
// the fetches included.
func SnapshotKey(connectionID, scope string, opts models.IntegrationOptions) string {
	return fmt.Sprintf("%s%s:%s:c%ds%d", KeyPrefix, connectionID, scope, btoi(opts.IncludeColumns), btoi(opts.IncludeStatistics))
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

// callerScope returns the scope a request's result may be shared within.
// A forwarded caller token makes the upstream apply that caller's
// permissions, so results are shared only between requests for the same
// subject. A token without a subject cannot be scoped and is not cached.
func callerScope(ctx context.Context) (string, bool) {
	token, ok := auth.GetToken(ctx)
	if !ok || token == "" {
		return ServiceScope, true
	}
	if subject := auth.GetUserIDFromContext(ctx); subject != "" {
		return "sub:" + subject, true
	}
	return "", false
}

// CachingConfig holds configuration for the caching service.
type CachingConfig struct {
	// TTL is how long a successful result is kept.
	TTL time.Duration
	// Thresholds reclassify the freshness of results served from the cache.
	Thresholds metadata.FreshnessThresholds
	// FlightTimeout bounds one upstream integration shared by coalesced
	// callers. It runs detached from any single caller's cancellation.
	FlightTimeout time.Duration
}

// CachingService decorates a MetadataIntegrationService with a snapshot cache.
// Only successful results are cached. Cache failures are logged and the
// request falls through to the wrapped service.
type CachingService struct {
	next          services.MetadataIntegrationService
	cache         SnapshotCache
	ttl           time.Duration
	thresholds    metadata.FreshnessThresholds
	flightTimeout time.Duration
	inflight      singleflight.Group
	logger        *zap.Logger
	now           func() time.Time
}

// NewCachingService wraps next with cache.
func NewCachingService(next services.MetadataIntegrationService, cache SnapshotCache, cfg CachingConfig, logger *zap.Logger) *CachingService {
	if cfg.Thresholds == (metadata.FreshnessThresholds{}) {
		cfg.Thresholds = metadata.DefaultFreshnessThresholds()
	}
	if cfg.FlightTimeout <= 0 {
		cfg.FlightTimeout = DefaultFlightTimeout
	}
	return &CachingService{
		next:          next,
		cache:         cache,
		ttl:           cfg.TTL,
		thresholds:    cfg.Thresholds,
		flightTimeout: cfg.FlightTimeout,
		logger:        logger.Named("cache"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

var _ services.MetadataIntegrationService = (*CachingService)(nil)

// GetIntegratedMetadata serves from the cache unless opts.ForceFresh is set.
// A forced request still refreshes the cached entry. Concurrent identical
// requests share one upstream integration; a caller that goes away stops
// waiting without cancelling it for the others.
func (c *CachingService) GetIntegratedMetadata(ctx context.Context, connectionID string, opts models.IntegrationOptions) (*models.IntegrationResult, error) {
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return nil, fmt.Errorf("%w: connection ID is required", apperrors.ErrInvalidInput)
	}

	scope, ok := callerScope(ctx)
	if !ok {
		metrics.RecordCache("bypass")
		return c.next.GetIntegratedMetadata(ctx, connectionID, opts)
	}
	key := SnapshotKey(connectionID, scope, opts)

	if !opts.ForceFresh {
		result, hit, err := c.cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.RecordCache("error")
			c.logger.Warn("Snapshot cache read failed",
				zap.String("key", key),
				zap.String("error", logging.SanitizeError(err)),
			)
		case hit:
			metrics.RecordCache("hit")
			return c.aged(result), nil
		default:
			metrics.RecordCache("miss")
		}
	}

	flightKey := key
	if opts.ForceFresh {
		flightKey += ":force"
	}
	ch := c.inflight.DoChan(flightKey, func() (any, error) {
		// Keeps request values such as the caller token and request ID.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.flightTimeout)
		defer cancel()

		result, err := c.next.GetIntegratedMetadata(flightCtx, connectionID, opts)
		if err != nil {
			return nil, err
		}
		if result.Success {
			if err := c.cache.Set(flightCtx, key, result, c.ttl); err != nil {
				c.logger.Warn("Snapshot cache write failed",
					zap.String("key", key),
					zap.String("error", logging.SanitizeError(err)),
				)
			}
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.IntegrationResult), nil
	}
}

// aged returns a copy of a cached result whose freshness accounts for the
// time spent in the cache. Freshness only ever gets worse.
func (c *CachingService) aged(result *models.IntegrationResult) *models.IntegrationResult {
	if result == nil || result.Data == nil {
		return result
	}
	elapsed := c.now().Sub(result.Data.GeneratedAt)
	if elapsed <= 0 {
		return result
	}

	age := func(f models.Freshness) models.Freshness {
		total := time.Duration(f.AgeSeconds)*time.Second + elapsed
		return metadata.ResolveFreshness(f, metadata.FreshnessFromAge(total, c.thresholds))
	}

	out := *result
	data := *result.Data
	data.Freshness = age(data.Freshness)
	out.Data = &data
	out.Freshness = age(result.Freshness)
	return &out
}

// GetEnhancedTableInfo reads through the cached full snapshot.
func (c *CachingService) GetEnhancedTableInfo(ctx context.Context, connectionID, tableName string) (*models.EnhancedTableInfo, error) {
	if strings.TrimSpace(tableName) == "" {
		return nil, fmt.Errorf("%w: table name is required", apperrors.ErrInvalidInput)
	}

	result, err := c.GetIntegratedMetadata(ctx, connectionID, models.DefaultIntegrationOptions())
	if err != nil {
		return nil, err
	}
	return services.TableFromResult(result, tableName)
}
