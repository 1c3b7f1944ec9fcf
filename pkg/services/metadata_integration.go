package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dq/pkg/logging"
	"github.com/ekaya-inc/ekaya-dq/pkg/metadata"
	"github.com/ekaya-inc/ekaya-dq/pkg/metrics"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

// MetadataIntegrationService builds integrated metadata snapshots for a connection.
type MetadataIntegrationService interface {
	// GetIntegratedMetadata fetches tables and, depending on opts, columns
	// and statistics, and normalizes them into one snapshot. Fetch failures
	// are reported in the result; the returned error is reserved for invalid
	// input and cancellation.
	GetIntegratedMetadata(ctx context.Context, connectionID string, opts models.IntegrationOptions) (*models.IntegrationResult, error)

	// GetEnhancedTableInfo builds a full snapshot and returns the slice of it
	// for one table.
	GetEnhancedTableInfo(ctx context.Context, connectionID, tableName string) (*models.EnhancedTableInfo, error)
}

type metadataIntegrationService struct {
	source datasource.MetadataSource
	logger *zap.Logger
	now    func() time.Time
}

// NewMetadataIntegrationService creates the facade over a metadata source.
func NewMetadataIntegrationService(source datasource.MetadataSource, logger *zap.Logger) MetadataIntegrationService {
	return &metadataIntegrationService{
		source: source,
		logger: logger.Named("integration"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ MetadataIntegrationService = (*metadataIntegrationService)(nil)

var errEmptyResponse = errors.New("empty response")

type fetchFunc func(ctx context.Context, connectionID string, opts datasource.FetchOptions) (*models.RawResponse, error)

// fetchSlot holds the outcome of one fetch. Each goroutine owns one slot.
type fetchSlot struct {
	kind   metadata.EntityKind
	fetch  fetchFunc
	issued bool
	resp   *models.RawResponse
	err    error
}

func (s *fetchSlot) body() any {
	if s.err != nil || s.resp == nil {
		return nil
	}
	return s.resp.Body
}

func (s *metadataIntegrationService) GetIntegratedMetadata(ctx context.Context, connectionID string, opts models.IntegrationOptions) (*models.IntegrationResult, error) {
	connectionID = strings.TrimSpace(connectionID)
	if connectionID == "" {
		return nil, fmt.Errorf("%w: connection ID is required", apperrors.ErrInvalidInput)
	}

	start := time.Now()
	slots := []*fetchSlot{
		{kind: metadata.KindTables, fetch: s.source.FetchTables, issued: true},
		{kind: metadata.KindColumns, fetch: s.source.FetchColumns, issued: opts.IncludeColumns},
		{kind: metadata.KindStatistics, fetch: s.source.FetchStatistics, issued: opts.IncludeStatistics},
	}
	fetchOpts := datasource.FetchOptions{ForceFresh: opts.ForceFresh}

	// Every fetch settles on its own; no goroutine returns an error so a
	// failure never cancels its siblings.
	var g errgroup.Group
	for _, slot := range slots {
		if !slot.issued {
			continue
		}
		g.Go(func() error {
			fetchStart := time.Now()
			slot.resp, slot.err = slot.fetch(ctx, connectionID, fetchOpts)
			if slot.err == nil && slot.resp == nil {
				slot.err = errEmptyResponse
			}
			metrics.RecordFetch(string(slot.kind), slot.err, time.Since(fetchStart))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	errs := []string{}
	freshness := make([]models.Freshness, 0, len(slots))
	for _, slot := range slots {
		if !slot.issued {
			continue
		}
		if slot.err != nil {
			msg := logging.SanitizeError(slot.err)
			errs = append(errs, fmt.Sprintf("%s: %s", slot.kind, msg))
			freshness = append(freshness, models.Freshness{Status: models.FreshnessError})
			s.logger.Warn("Metadata fetch failed",
				zap.String("connection_id", connectionID),
				zap.String("kind", string(slot.kind)),
				zap.String("error", msg),
			)
			continue
		}
		freshness = append(freshness, slot.resp.Freshness)
	}
	resolved := metadata.ResolveFreshness(freshness...)

	tables := slots[0]
	if tables.err != nil {
		snapshot := models.EmptySnapshot(connectionID)
		snapshot.GeneratedAt = s.now()
		s.logger.Error("Metadata integration failed: tables unavailable",
			zap.String("connection_id", connectionID),
			zap.Strings("errors", errs),
		)
		metrics.RecordIntegration(false, len(errs), time.Since(start))
		return &models.IntegrationResult{
			Success:   false,
			Data:      snapshot,
			Errors:    errs,
			Freshness: models.Freshness{Status: models.FreshnessError},
		}, nil
	}

	snapshot, variants := metadata.BuildSnapshot(metadata.SnapshotInput{
		ConnectionID: connectionID,
		Tables:       tables.body(),
		Columns:      slots[1].body(),
		Statistics:   slots[2].body(),
		Freshness:    resolved,
		Now:          s.now(),
	})
	for _, slot := range slots {
		if slot.issued && slot.err == nil {
			metrics.RecordVariant(string(slot.kind), variants[slot.kind])
		}
	}

	s.logger.Debug("Integrated metadata",
		zap.String("connection_id", connectionID),
		zap.Int("tables", len(snapshot.Tables)),
		zap.Int("columns", len(snapshot.Columns)),
		zap.Int("statistics", len(snapshot.Statistics)),
		zap.String("freshness", string(resolved.Status)),
		zap.Int("errors", len(errs)),
	)
	metrics.RecordIntegration(true, len(errs), time.Since(start))

	return &models.IntegrationResult{
		Success:   true,
		Data:      snapshot,
		Errors:    errs,
		Freshness: resolved,
	}, nil
}

func (s *metadataIntegrationService) GetEnhancedTableInfo(ctx context.Context, connectionID, tableName string) (*models.EnhancedTableInfo, error) {
	if strings.TrimSpace(tableName) == "" {
		return nil, fmt.Errorf("%w: table name is required", apperrors.ErrInvalidInput)
	}

	result, err := s.GetIntegratedMetadata(ctx, connectionID, models.DefaultIntegrationOptions())
	if err != nil {
		return nil, err
	}
	return TableFromResult(result, tableName)
}

// TableFromResult cuts one table out of an integration result.
func TableFromResult(result *models.IntegrationResult, tableName string) (*models.EnhancedTableInfo, error) {
	if !result.Success {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrTablesUnavailable, strings.Join(result.Errors, "; "))
	}
	info, ok := metadata.FilterTable(result.Data, tableName)
	if !ok {
		return nil, fmt.Errorf("table %q: %w", tableName, apperrors.ErrNotFound)
	}
	return info, nil
}
