package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-dq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dq/pkg/auth"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*models.IntegrationResult
	ttls    map[string]time.Duration
	getErr  error
	setErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		entries: map[string]*models.IntegrationResult{},
		ttls:    map[string]time.Duration{},
	}
}

func (m *memoryCache) Get(_ context.Context, key string) (*models.IntegrationResult, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	r, ok := m.entries[key]
	return r, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, result *models.IntegrationResult, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.entries[key] = result
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCache) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

type countingService struct {
	calls   atomic.Int32
	success bool
	release chan struct{}

	mu     sync.Mutex
	tokens []string
}

func (s *countingService) GetIntegratedMetadata(ctx context.Context, connectionID string, opts models.IntegrationOptions) (*models.IntegrationResult, error) {
	s.calls.Add(1)
	token, _ := auth.GetToken(ctx)
	s.mu.Lock()
	s.tokens = append(s.tokens, token)
	s.mu.Unlock()

	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	snapshot := models.EmptySnapshot(connectionID)
	snapshot.GeneratedAt = testNow
	errs := []string{}
	if s.success {
		snapshot.Tables = []models.Table{{Name: "orders", RowCount: 10}}
		snapshot.Freshness = models.Freshness{Status: models.FreshnessFresh}
	} else {
		errs = []string{"tables: unavailable"}
	}
	return &models.IntegrationResult{Success: s.success, Data: snapshot, Errors: errs, Freshness: snapshot.Freshness}, nil
}

func (s *countingService) GetEnhancedTableInfo(context.Context, string, string) (*models.EnhancedTableInfo, error) {
	return nil, errors.New("not used")
}

func (s *countingService) seenTokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}

func newTestCachingService(t *testing.T, next *countingService, store SnapshotCache, cfg CachingConfig) *CachingService {
	t.Helper()
	if cfg.TTL == 0 {
		cfg.TTL = time.Minute
	}
	svc := NewCachingService(next, store, cfg, zaptest.NewLogger(t))
	svc.now = func() time.Time { return testNow }
	return svc
}

func withCaller(ctx context.Context, subject, token string) context.Context {
	claims := &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: subject}}
	return auth.WithAuth(ctx, claims, token)
}

func TestSnapshotKey(t *testing.T) {
	tests := []struct {
		scope string
		opts  models.IntegrationOptions
		want  string
	}{
		{ServiceScope, models.IntegrationOptions{IncludeColumns: true, IncludeStatistics: true}, "ekaya-dq:snapshot:wh:service:c1s1"},
		{ServiceScope, models.IntegrationOptions{IncludeColumns: true}, "ekaya-dq:snapshot:wh:service:c1s0"},
		{"sub:alice", models.IntegrationOptions{IncludeStatistics: true, ForceFresh: true}, "ekaya-dq:snapshot:wh:sub:alice:c0s1"},
		{"sub:alice", models.IntegrationOptions{}, "ekaya-dq:snapshot:wh:sub:alice:c0s0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SnapshotKey("wh", tt.scope, tt.opts))
	}
}

func TestCachingService_HitAfterMiss(t *testing.T) {
	next := &countingService{success: true}
	store := newMemoryCache()
	svc := newTestCachingService(t, next, store, CachingConfig{})
	ctx := context.Background()
	opts := models.DefaultIntegrationOptions()

	first, err := svc.GetIntegratedMetadata(ctx, "wh", opts)
	require.NoError(t, err)
	second, err := svc.GetIntegratedMetadata(ctx, "wh", opts)
	require.NoError(t, err)

	assert.Equal(t, int32(1), next.calls.Load())
	assert.Equal(t, first, second)
	assert.Equal(t, time.Minute, store.ttls["ekaya-dq:snapshot:wh:service:c1s1"])
}

func TestCachingService_OptionsAreSeparateEntries(t *testing.T) {
	next := &countingService{success: true}
	svc := newTestCachingService(t, next, newMemoryCache(), CachingConfig{})
	ctx := context.Background()

	_, err := svc.GetIntegratedMetadata(ctx, "wh", models.DefaultIntegrationOptions())
	require.NoError(t, err)
	_, err = svc.GetIntegratedMetadata(ctx, "wh", models.IntegrationOptions{})
	require.NoError(t, err)

	assert.Equal(t, int32(2), next.calls.Load())
}

func TestCachingService_ForceFreshBypassesAndRefreshes(t *testing.T) {
	next := &countingService{success: true}
	store := newMemoryCache()
	svc := newTestCachingService(t, next, store, CachingConfig{})
	ctx := context.Background()

	_, err := svc.GetIntegratedMetadata(ctx, "wh", models.DefaultIntegrationOptions())
	require.NoError(t, err)

	forced := models.DefaultIntegrationOptions()
	forced.ForceFresh = true
	fresh, err := svc.GetIntegratedMetadata(ctx, "wh", forced)
	require.NoError(t, err)

	assert.Equal(t, int32(2), next.calls.Load())
	assert.Same(t, fresh, store.entries["ekaya-dq:snapshot:wh:service:c1s1"], "forced result replaces cached entry")
}

func TestCachingService_FailuresNotCached(t *testing.T) {
	next := &countingService{success: false}
	store := newMemoryCache()
	svc := newTestCachingService(t, next, store, CachingConfig{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := svc.GetIntegratedMetadata(ctx, "wh", models.DefaultIntegrationOptions())
		require.NoError(t, err)
		assert.False(t, result.Success)
	}

	assert.Equal(t, int32(2), next.calls.Load())
	assert.Empty(t, store.entries)
}

func TestCachingService_CacheErrorsFallThrough(t *testing.T) {
	next := &countingService{success: true}
	store := newMemoryCache()
	store.getErr = errors.New("redis: connection refused")
	store.setErr = errors.New("redis: connection refused")
	svc := newTestCachingService(t, next, store, CachingConfig{})

	result, err := svc.GetIntegratedMetadata(context.Background(), "wh", models.DefaultIntegrationOptions())

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestCachingService_CoalescesConcurrentRequests(t *testing.T) {
	next := &countingService{success: true, release: make(chan struct{})}
	svc := newTestCachingService(t, next, newMemoryCache(), CachingConfig{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.GetIntegratedMetadata(ctx, "wh", models.DefaultIntegrationOptions())
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(next.release)
	wg.Wait()

	assert.Equal(t, int32(1), next.calls.Load())
}

func TestCachingService_CancelledCallerLeavesSharedFlightRunning(t *testing.T) {
	next := &countingService{success: true, release: make(chan struct{})}
	svc := newTestCachingService(t, next, newMemoryCache(), CachingConfig{})
	opts := models.DefaultIntegrationOptions()

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := svc.GetIntegratedMetadata(ctxA, "wh", opts)
		errA <- err
	}()
	require.Eventually(t, func() bool { return next.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type outcome struct {
		result *models.IntegrationResult
		err    error
	}
	doneB := make(chan outcome, 1)
	go func() {
		result, err := svc.GetIntegratedMetadata(context.Background(), "wh", opts)
		doneB <- outcome{result, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(next.release)
	select {
	case out := <-doneB:
		require.NoError(t, out.err)
		assert.True(t, out.result.Success)
	case <-time.After(time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestCachingService_FlightTimeout(t *testing.T) {
	next := &countingService{success: true, release: make(chan struct{})}
	svc := newTestCachingService(t, next, newMemoryCache(), CachingConfig{FlightTimeout: 20 * time.Millisecond})

	_, err := svc.GetIntegratedMetadata(context.Background(), "wh", models.DefaultIntegrationOptions())

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCachingService_HitAgesFreshness(t *testing.T) {
	tests := []struct {
		name    string
		stored  models.Freshness
		inCache time.Duration
		want    models.Freshness
	}{
		{"fresh becomes stale", models.Freshness{Status: models.FreshnessFresh}, 2 * time.Hour, models.Freshness{Status: models.FreshnessStale, AgeSeconds: 7200}},
		{"fresh becomes recent", models.Freshness{Status: models.FreshnessFresh, AgeSeconds: 30}, 10 * time.Minute, models.Freshness{Status: models.FreshnessRecent, AgeSeconds: 630}},
		{"unknown stays unknown", models.Freshness{Status: models.FreshnessUnknown}, time.Minute, models.Freshness{Status: models.FreshnessUnknown, AgeSeconds: 60}},
		{"stale never improves", models.Freshness{Status: models.FreshnessStale, AgeSeconds: 100}, time.Minute, models.Freshness{Status: models.FreshnessStale, AgeSeconds: 160}},
		{"error stays error", models.Freshness{Status: models.FreshnessError}, time.Minute, models.Freshness{Status: models.FreshnessError, AgeSeconds: 60}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := models.DefaultIntegrationOptions()
			snapshot := models.EmptySnapshot("wh")
			snapshot.Tables = []models.Table{{Name: "orders", RowCount: 10}}
			snapshot.Freshness = tt.stored
			snapshot.GeneratedAt = testNow.Add(-tt.inCache)
			stored := &models.IntegrationResult{Success: true, Data: snapshot, Errors: []string{}, Freshness: tt.stored}

			store := newMemoryCache()
			store.entries[SnapshotKey("wh", ServiceScope, opts)] = stored
			next := &countingService{success: true}
			svc := newTestCachingService(t, next, store, CachingConfig{})

			result, err := svc.GetIntegratedMetadata(context.Background(), "wh", opts)
			require.NoError(t, err)

			assert.Zero(t, next.calls.Load())
			assert.Equal(t, tt.want, result.Freshness)
			assert.Equal(t, tt.want, result.Data.Freshness)
			assert.Equal(t, tt.stored, stored.Freshness, "cached entry is not modified")

			info, err := svc.GetEnhancedTableInfo(context.Background(), "wh", "orders")
			require.NoError(t, err)
			assert.Equal(t, tt.want.Status, info.Freshness.Status)
		})
	}
}

func TestCachingService_ScopesEntriesByCaller(t *testing.T) {
	next := &countingService{success: true}
	store := newMemoryCache()
	svc := newTestCachingService(t, next, store, CachingConfig{})
	ctx := context.Background()
	opts := models.DefaultIntegrationOptions()

	alice := withCaller(ctx, "alice", "alice-token")
	bob := withCaller(ctx, "bob", "bob-token")

	for _, c := range []context.Context{alice, alice, bob, ctx} {
		_, err := svc.GetIntegratedMetadata(c, "wh", opts)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(3), next.calls.Load(), "bob is not served alice's snapshot")
	assert.Equal(t, []string{"alice-token", "bob-token", ""}, next.seenTokens(), "each upstream call carries its own caller token")
	assert.ElementsMatch(t, []string{
		"ekaya-dq:snapshot:wh:sub:alice:c1s1",
		"ekaya-dq:snapshot:wh:sub:bob:c1s1",
		"ekaya-dq:snapshot:wh:service:c1s1",
	}, store.keys())
}

func TestCachingService_TokenWithoutSubjectBypassesCache(t *testing.T) {
	next := &countingService{success: true}
	store := newMemoryCache()
	svc := newTestCachingService(t, next, store, CachingConfig{})
	ctx := withCaller(context.Background(), "", "opaque-token")

	for i := 0; i < 2; i++ {
		result, err := svc.GetIntegratedMetadata(ctx, "wh", models.DefaultIntegrationOptions())
		require.NoError(t, err)
		assert.True(t, result.Success)
	}

	assert.Equal(t, int32(2), next.calls.Load())
	assert.Empty(t, store.keys())
}

func TestCachingService_InvalidConnection(t *testing.T) {
	svc := newTestCachingService(t, &countingService{success: true}, newMemoryCache(), CachingConfig{})

	_, err := svc.GetIntegratedMetadata(context.Background(), " ", models.DefaultIntegrationOptions())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCachingService_GetEnhancedTableInfo(t *testing.T) {
	next := &countingService{success: true}
	svc := newTestCachingService(t, next, newMemoryCache(), CachingConfig{})
	ctx := context.Background()

	info, err := svc.GetEnhancedTableInfo(ctx, "wh", "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Table.RowCount)

	_, err = svc.GetEnhancedTableInfo(ctx, "wh", "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, int32(1), next.calls.Load(), "second lookup served from cache")

	failing := newTestCachingService(t, &countingService{success: false}, newMemoryCache(), CachingConfig{})
	_, err = failing.GetEnhancedTableInfo(ctx, "wh", "orders")
	assert.ErrorIs(t, err, apperrors.ErrTablesUnavailable)
}
