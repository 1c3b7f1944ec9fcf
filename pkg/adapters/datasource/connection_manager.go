package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dq/pkg/logging"
	"github.com/ekaya-inc/ekaya-dq/pkg/retry"
)

const (
	DefaultConnectionTTL   = 5 * time.Minute
	DefaultCleanupInterval = 1 * time.Minute
	DefaultHealthTimeout   = 5 * time.Second
)

// Opener creates a pool for a DSN.
type Opener func(ctx context.Context, dsn string) (PoolConnector, error)

// ConnectionManagerConfig holds configuration for the connection manager
type ConnectionManagerConfig struct {
	// TTL is how long an idle pool is kept before it is closed.
	TTL time.Duration
	// CleanupInterval is how often idle pools are swept.
	CleanupInterval time.Duration
	// Retry controls pool creation and health check retries.
	Retry *retry.Config
}

// ConnectionManager lazily opens one pool per configured connection ID and
// closes pools that sit idle longer than the TTL.
type ConnectionManager struct {
	mu          sync.RWMutex
	dsns        map[string]string
	open        Opener
	connections map[string]*managedConnection // key: connection ID
	ttl         time.Duration
	retryCfg    *retry.Config
	stopped     bool
	stopChan    chan struct{}
	logger      *zap.Logger
}

type managedConnection struct {
	pool     PoolConnector
	lastUsed time.Time
	mu       sync.Mutex
}

// NewConnectionManager creates a connection manager over a fixed
// connection ID -> DSN map. Starts a background cleanup goroutine that runs
// until Close() is called.
func NewConnectionManager(dsns map[string]string, open Opener, cfg ConnectionManagerConfig, logger *zap.Logger) *ConnectionManager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConnectionTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.DefaultConfig()
	}

	copied := make(map[string]string, len(dsns))
	for id, dsn := range dsns {
		copied[id] = dsn
	}

	manager := &ConnectionManager{
		dsns:        copied,
		open:        open,
		connections: make(map[string]*managedConnection),
		ttl:         cfg.TTL,
		retryCfg:    cfg.Retry,
		stopChan:    make(chan struct{}),
		logger:      logger.Named("connections"),
	}

	go manager.cleanupExpiredConnections(cfg.CleanupInterval)
	return manager
}

// Has reports whether connectionID is configured.
func (m *ConnectionManager) Has(connectionID string) bool {
	_, ok := m.dsns[connectionID]
	return ok
}

// Get returns a healthy pool for connectionID, opening one if needed.
// Unconfigured IDs return apperrors.ErrUnknownConnection.
func (m *ConnectionManager) Get(ctx context.Context, connectionID string) (PoolConnector, error) {
	dsn, ok := m.dsns[connectionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownConnection, connectionID)
	}

	m.mu.RLock()
	managed, exists := m.connections[connectionID]
	stopped := m.stopped
	m.mu.RUnlock()

	if stopped {
		return nil, fmt.Errorf("connection manager closed")
	}

	if exists {
		managed.mu.Lock()

		healthCtx, cancel := context.WithTimeout(ctx, DefaultHealthTimeout)
		err := retry.Do(healthCtx, m.retryCfg, func() error {
			return managed.pool.Ping(healthCtx)
		})
		cancel()

		if err != nil {
			m.logger.Warn("connection unhealthy, recreating",
				zap.String("connection_id", connectionID),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock()
			m.removeConnection(connectionID, managed)
			return m.createNewPool(ctx, connectionID, dsn)
		}

		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.pool, nil
	}

	return m.createNewPool(ctx, connectionID, dsn)
}

// createNewPool opens a pool with retry logic.
// Caller must NOT hold any locks (this method acquires write lock).
func (m *ConnectionManager) createNewPool(ctx context.Context, connectionID, dsn string) (PoolConnector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("connection manager closed")
	}

	// Another goroutine may have created it while we waited for the lock.
	if managed, exists := m.connections[connectionID]; exists && managed != nil {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.pool, nil
	}

	pool, err := retry.DoWithResult(ctx, m.retryCfg, func() (PoolConnector, error) {
		return m.open(ctx, dsn)
	})
	if err != nil {
		m.logger.Error("failed to open pool after retries",
			zap.String("connection_id", connectionID),
			zap.String("dsn", logging.SanitizeConnectionString(dsn)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("open pool for %s: %w", connectionID, err)
	}

	m.connections[connectionID] = &managedConnection{
		pool:     pool,
		lastUsed: time.Now(),
	}

	m.logger.Info("opened connection pool",
		zap.String("connection_id", connectionID),
		zap.String("type", pool.GetType()),
		zap.Int("open_pools", len(m.connections)),
	)

	return pool, nil
}

// removeConnection closes and forgets the pool for connectionID if it is
// still the given managed entry.
// Caller must NOT hold m.mu lock (this method acquires write lock).
func (m *ConnectionManager) removeConnection(connectionID string, stale *managedConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.connections[connectionID]; exists && managed == stale {
		if err := managed.pool.Close(); err != nil {
			m.logger.Debug("error closing pool", zap.String("connection_id", connectionID), zap.Error(err))
		}
		delete(m.connections, connectionID)
	}
}

// cleanupExpiredConnections runs periodically until stopChan is closed.
func (m *ConnectionManager) cleanupExpiredConnections(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup(time.Now())
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup closes pools that haven't been used within the TTL.
// Lock ordering: manager lock -> connection lock.
func (m *ConnectionManager) performCleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	expired := 0
	for id, managed := range m.connections {
		managed.mu.Lock()
		idle := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idle > m.ttl {
			if err := managed.pool.Close(); err != nil {
				m.logger.Debug("error closing pool", zap.String("connection_id", id), zap.Error(err))
			}
			delete(m.connections, id)
			expired++
		}
	}

	if expired > 0 {
		m.logger.Info("closed idle connection pools",
			zap.Int("count", expired),
			zap.Int("remaining", len(m.connections)),
		)
	}
}

// Close closes all pools and stops the cleanup goroutine.
// This method is idempotent and safe to call multiple times.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for _, managed := range m.connections {
		if managed != nil && managed.pool != nil {
			_ = managed.pool.Close()
		}
	}

	m.connections = make(map[string]*managedConnection)
	m.logger.Info("connection manager closed")
	return nil
}

// GetStats returns statistics about the connection manager.
// Safe to call concurrently.
func (m *ConnectionManager) GetStats() ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	stats := ConnectionStats{
		ConfiguredConnections: len(m.dsns),
		OpenPools:             len(m.connections),
		TTLSeconds:            int(m.ttl.Seconds()),
	}

	for _, managed := range m.connections {
		managed.mu.Lock()
		idleSeconds := int(now.Sub(managed.lastUsed).Seconds())
		managed.mu.Unlock()
		if idleSeconds > stats.OldestIdleSeconds {
			stats.OldestIdleSeconds = idleSeconds
		}
	}

	return stats
}

// ConnectionStats contains statistics about the connection manager state.
type ConnectionStats struct {
	ConfiguredConnections int `json:"configured_connections"`
	OpenPools             int `json:"open_pools"`
	TTLSeconds            int `json:"ttl_seconds"`
	OldestIdleSeconds     int `json:"oldest_idle_seconds"`
}
