package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

type fakeResponse struct {
	resp *models.RawResponse
	err  error
}

// fakeSource serves canned responses and records the calls it receives.
type fakeSource struct {
	tables, columns, statistics fakeResponse

	mu    sync.Mutex
	calls []string
	opts  []datasource.FetchOptions
	block chan struct{}
}

func (f *fakeSource) record(kind string, opts datasource.FetchOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, kind)
	f.opts = append(f.opts, opts)
}

func (f *fakeSource) serve(ctx context.Context, kind string, opts datasource.FetchOptions, r fakeResponse) (*models.RawResponse, error) {
	f.record(kind, opts)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.resp, r.err
}

func (f *fakeSource) FetchTables(ctx context.Context, _ string, opts datasource.FetchOptions) (*models.RawResponse, error) {
	return f.serve(ctx, "tables", opts, f.tables)
}

func (f *fakeSource) FetchColumns(ctx context.Context, _ string, opts datasource.FetchOptions) (*models.RawResponse, error) {
	return f.serve(ctx, "columns", opts, f.columns)
}

func (f *fakeSource) FetchStatistics(ctx context.Context, _ string, opts datasource.FetchOptions) (*models.RawResponse, error) {
	return f.serve(ctx, "statistics", opts, f.statistics)
}

func (f *fakeSource) Close() error { return nil }

func (f *fakeSource) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func ok(body any, status models.FreshnessStatus, age int64) fakeResponse {
	return fakeResponse{resp: &models.RawResponse{Body: body, Freshness: models.Freshness{Status: status, AgeSeconds: age}}}
}

func failed(msg string) fakeResponse {
	return fakeResponse{err: errors.New(msg)}
}

func legacyTablesBody() any {
	return map[string]any{
		"metadata": map[string]any{
			"metadata": map[string]any{
				"tables": map[string]any{
					"t1": map[string]any{"row_count": 5},
				},
			},
		},
	}
}

func statisticsByTableBody() any {
	return map[string]any{
		"metadata": map[string]any{
			"statistics_by_table": map[string]any{
				"t1": map[string]any{
					"row_count": 12,
					"column_statistics": map[string]any{
						"c1": map[string]any{
							"basic": map[string]any{"null_percentage": 0, "is_unique": true},
						},
					},
				},
			},
		},
	}
}

func columnsBody() any {
	return map[string]any{
		"columns": []any{
			map[string]any{"table_name": "t1", "column_name": "c1", "data_type": "integer", "is_nullable": false, "is_primary_key": true},
		},
	}
}

func newTestService(t *testing.T, source datasource.MetadataSource) *metadataIntegrationService {
	t.Helper()
	svc := NewMetadataIntegrationService(source, zaptest.NewLogger(t)).(*metadataIntegrationService)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestGetIntegratedMetadata_LegacyTablesWithStatistics(t *testing.T) {
	source := &fakeSource{
		tables:     ok(legacyTablesBody(), models.FreshnessFresh, 10),
		columns:    ok(map[string]any{"columns": []any{}}, models.FreshnessFresh, 10),
		statistics: ok(statisticsByTableBody(), models.FreshnessRecent, 600),
	}
	svc := newTestService(t, source)

	result, err := svc.GetIntegratedMetadata(context.Background(), "conn-1", models.DefaultIntegrationOptions())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	assert.NotNil(t, result.Errors)
	require.Len(t, result.Data.Tables, 1)

	table := result.Data.Tables[0]
	assert.Equal(t, "t1", table.Name)
	assert.Equal(t, int64(12), table.RowCount, "statistics row count wins")
	assert.Equal(t, 70, table.HealthScore)
	assert.Equal(t, 1, table.NonNullableColumns)

	assert.Equal(t, models.Freshness{Status: models.FreshnessRecent, AgeSeconds: 600}, result.Freshness)
	assert.Equal(t, result.Freshness, result.Data.Freshness)
	assert.Equal(t, "conn-1", result.Data.ConnectionID)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), result.Data.GeneratedAt)
}

func TestGetIntegratedMetadata_TablesFailure(t *testing.T) {
	source := &fakeSource{
		tables:     failed("backend returned 503"),
		columns:    ok(columnsBody(), models.FreshnessFresh, 0),
		statistics: ok(statisticsByTableBody(), models.FreshnessFresh, 0),
	}
	svc := newTestService(t, source)

	result, err := svc.GetIntegratedMetadata(context.Background(), "conn-1", models.DefaultIntegrationOptions())
	require.NoError(t, err)

	assert.False(t, result.Success)
	require.NotNil(t, result.Data)
	assert.NotNil(t, result.Data.Tables)
	assert.Empty(t, result.Data.Tables)
	assert.NotNil(t, result.Data.Columns)
	assert.NotNil(t, result.Data.Statistics)
	assert.Equal(t, []string{"tables: backend returned 503"}, result.Errors)
	assert.Equal(t, models.FreshnessError, result.Freshness.Status)
	assert.Equal(t, models.FreshnessError, result.Data.Freshness.Status)
}

func TestGetIntegratedMetadata_StatisticsFailure(t *testing.T) {
	source := &fakeSource{
		tables:     ok(legacyTablesBody(), models.FreshnessFresh, 0),
		columns:    ok(columnsBody(), models.FreshnessFresh, 0),
		statistics: failed("statistics timed out"),
	}
	svc := newTestService(t, source)

	result, err := svc.GetIntegratedMetadata(context.Background(), "conn-1", models.DefaultIntegrationOptions())
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.NotEmpty(t, result.Data.Tables)
	assert.Equal(t, []string{"statistics: statistics timed out"}, result.Errors)
	assert.Equal(t, models.FreshnessError, result.Freshness.Status, "failed fetch contributes error freshness")

	table := result.Data.Tables[0]
	assert.Equal(t, int64(5), table.RowCount, "falls back to table payload row count")
	assert.Equal(t, []string{"c1"}, table.PrimaryKeys)
	assert.Len(t, table.Columns, 1)
	assert.Empty(t, result.Data.Statistics)
}

func TestGetIntegratedMetadata_NilResponseIsFetchError(t *testing.T) {
	source := &fakeSource{
		tables:     ok(legacyTablesBody(), models.FreshnessFresh, 0),
		columns:    fakeResponse{},
		statistics: ok(statisticsByTableBody(), models.FreshnessFresh, 0),
	}
	svc := newTestService(t, source)

	result, err := svc.GetIntegratedMetadata(context.Background(), "conn-1", models.DefaultIntegrationOptions())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"columns: empty response"}, result.Errors)
	assert.Equal(t, models.FreshnessError, result.Freshness.Status)
}

func TestGetIntegratedMetadata_AllFetchesFail(t *testing.T) {
	source := &fakeSource{
		tables:     failed("tables down"),
		columns:    failed("columns down"),
		statistics: failed("statistics down"),
	}
	svc := newTestService(t, source)

	result, err := svc.GetIntegratedMetadata(context.Background(), "conn-1", models.DefaultIntegrationOptions())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, []string{"tables: tables down", "columns: columns down", "statistics: statistics down"}, result.Errors)
}

func TestGetIntegratedMetadata_SanitizesErrors(t *testing.T) {
	source := &fakeSource{
		tables: failed("dial postgres://dq:hunter2@db:5432/wh failed"),
	}
	svc := newTestService(t, source)

	result, err := svc.GetIntegratedMetadata(context.Background(), "conn-1", models.IntegrationOptions{})
	require.NoError(t, err)

	require.Len(t, result.Errors, 1)
	assert.NotContains(t, result.Errors[0], "hunter2")
	assert.Contains(t, result.Errors[0], "tables: ")
}

func TestGetIntegratedMetadata_SkippedFetches(t *testing.T) {
	source := &fakeSource{
		tables:     ok(legacyTablesBody(), models.FreshnessFresh, 3),
		columns:    failed("must not be called"),
		statistics: failed("must not be called"),
	}
	svc := newTestService(t, source)

	result, err := svc.GetIntegratedMetadata(context.Background(), "conn-1", models.IntegrationOptions{ForceFresh: true})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"tables"}, source.called())
	assert.Equal(t, models.Freshness{Status: models.FreshnessFresh, AgeSeconds: 3}, result.Freshness, "skipped fetches do not count")
	assert.True(t, source.opts[0].ForceFresh)
	assert.Equal(t, 65, result.Data.Tables[0].HealthScore)
}

func TestGetIntegratedMetadata_FetchesRunConcurrently(t *testing.T) {
	block := make(chan struct{})
	source := &fakeSource{
		tables:     ok(legacyTablesBody(), models.FreshnessFresh, 0),
		columns:    ok(columnsBody(), models.FreshnessFresh, 0),
		statistics: ok(statisticsByTableBody(), models.FreshnessFresh, 0),
		block:      block,
	}
	svc := newTestService(t, source)

	var finished atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.GetIntegratedMetadata(context.Background(), "conn-1", models.DefaultIntegrationOptions())
		finished.Store(true)
	}()

	require.Eventually(t, func() bool { return len(source.called()) == 3 }, time.Second, 5*time.Millisecond,
		"all three fetches should be in flight before any completes")
	assert.False(t, finished.Load())

	close(block)
	<-done
}

func TestGetIntegratedMetadata_InvalidInput(t *testing.T) {
	svc := newTestService(t, &fakeSource{})

	for _, id := range []string{"", "   "} {
		_, err := svc.GetIntegratedMetadata(context.Background(), id, models.DefaultIntegrationOptions())
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}
}

func TestGetIntegratedMetadata_ContextCancelled(t *testing.T) {
	source := &fakeSource{
		tables: ok(legacyTablesBody(), models.FreshnessFresh, 0),
		block:  make(chan struct{}),
	}
	svc := newTestService(t, source)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.GetIntegratedMetadata(ctx, "conn-1", models.IntegrationOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestGetEnhancedTableInfo(t *testing.T) {
	source := &fakeSource{
		tables:     ok(legacyTablesBody(), models.FreshnessFresh, 0),
		columns:    ok(columnsBody(), models.FreshnessFresh, 0),
		statistics: ok(statisticsByTableBody(), models.FreshnessFresh, 0),
	}
	svc := newTestService(t, source)

	info, err := svc.GetEnhancedTableInfo(context.Background(), "conn-1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", info.Table.Name)
	assert.Len(t, info.Columns, 1)
	assert.Len(t, info.Statistics, 1)
	assert.Equal(t, models.FreshnessFresh, info.Freshness.Status)
	assert.ElementsMatch(t, []string{"tables", "columns", "statistics"}, source.called())
}

func TestGetEnhancedTableInfo_MissingTable(t *testing.T) {
	source := &fakeSource{
		tables:     ok(legacyTablesBody(), models.FreshnessFresh, 0),
		columns:    ok(columnsBody(), models.FreshnessFresh, 0),
		statistics: ok(statisticsByTableBody(), models.FreshnessFresh, 0),
	}
	svc := newTestService(t, source)

	info, err := svc.GetEnhancedTableInfo(context.Background(), "conn-1", "missing_table")
	assert.Nil(t, info)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetEnhancedTableInfo_TablesUnavailable(t *testing.T) {
	source := &fakeSource{
		tables:     failed("backend returned 502"),
		columns:    ok(columnsBody(), models.FreshnessFresh, 0),
		statistics: ok(statisticsByTableBody(), models.FreshnessFresh, 0),
	}
	svc := newTestService(t, source)

	_, err := svc.GetEnhancedTableInfo(context.Background(), "conn-1", "t1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTablesUnavailable)
	assert.Contains(t, err.Error(), "backend returned 502")
}

func TestGetEnhancedTableInfo_EmptyTableName(t *testing.T) {
	svc := newTestService(t, &fakeSource{})

	_, err := svc.GetEnhancedTableInfo(context.Background(), "conn-1", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
