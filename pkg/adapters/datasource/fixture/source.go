package fixture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dq/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dq/pkg/metadata"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

// Source serves responses from a parsed fixture file.
type Source struct {
	file       *File
	thresholds metadata.FreshnessThresholds
	logger     *zap.Logger
	now        func() time.Time
}

var _ datasource.MetadataSource = (*Source)(nil)

// NewSource creates a fixture source.
func NewSource(file *File, thresholds metadata.FreshnessThresholds, logger *zap.Logger) *Source {
	return &Source{
		file:       file,
		thresholds: thresholds,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Source) FetchTables(ctx context.Context, connectionID string, _ datasource.FetchOptions) (*models.RawResponse, error) {
	return s.respond(ctx, connectionID, metadata.KindTables)
}

func (s *Source) FetchColumns(ctx context.Context, connectionID string, _ datasource.FetchOptions) (*models.RawResponse, error) {
	return s.respond(ctx, connectionID, metadata.KindColumns)
}

func (s *Source) FetchStatistics(ctx context.Context, connectionID string, _ datasource.FetchOptions) (*models.RawResponse, error) {
	return s.respond(ctx, connectionID, metadata.KindStatistics)
}

func (s *Source) Close() error { return nil }

func (s *Source) respond(ctx context.Context, connectionID string, kind metadata.EntityKind) (*models.RawResponse, error) {
	conn, ok := s.file.Connections[connectionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownConnection, connectionID)
	}

	var resp *Response
	switch kind {
	case metadata.KindTables:
		resp = conn.Tables
	case metadata.KindColumns:
		resp = conn.Columns
	case metadata.KindStatistics:
		resp = conn.Statistics
	}
	if resp == nil {
		return nil, fmt.Errorf("no %s fixture for connection %s", kind, connectionID)
	}

	if resp.DelayMS > 0 {
		timer := time.NewTimer(time.Duration(resp.DelayMS) * time.Millisecond)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if resp.Error != "" {
		s.logger.Debug("serving fixture error",
			zap.String("connection_id", connectionID),
			zap.String("kind", string(kind)))
		return nil, errors.New(resp.Error)
	}

	freshness := metadata.ParseFreshness(resp.Body, s.now(), s.thresholds)
	if resp.Freshness != nil {
		freshness = models.Freshness{
			Status:     metadata.NormalizeStatus(resp.Freshness.Status),
			AgeSeconds: resp.Freshness.AgeSeconds,
		}
	}
	return &models.RawResponse{Body: resp.Body, Freshness: freshness}, nil
}
