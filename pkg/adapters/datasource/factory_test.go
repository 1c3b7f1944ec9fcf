package datasource

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/config"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

type stubSource struct{}

func (stubSource) FetchTables(context.Context, string, FetchOptions) (*models.RawResponse, error) {
	return &models.RawResponse{}, nil
}
func (stubSource) FetchColumns(context.Context, string, FetchOptions) (*models.RawResponse, error) {
	return &models.RawResponse{}, nil
}
func (stubSource) FetchStatistics(context.Context, string, FetchOptions) (*models.RawResponse, error) {
	return &models.RawResponse{}, nil
}
func (stubSource) Close() error { return nil }

func TestNewMetadataSource_UsesRegistry(t *testing.T) {
	Register(SourceRegistration{
		Info: SourceInfo{Type: "stub-ok", DisplayName: "Stub"},
		Factory: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (MetadataSource, error) {
			return stubSource{}, nil
		},
	})
	Register(SourceRegistration{
		Info: SourceInfo{Type: "stub-fail"},
		Factory: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (MetadataSource, error) {
			return nil, errors.New("boom")
		},
	})

	cfg := &config.Config{}

	cfg.Source.Type = "stub-ok"
	source, err := NewMetadataSource(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("expected source, got error %v", err)
	}
	if _, ok := source.(stubSource); !ok {
		t.Errorf("expected stubSource, got %T", source)
	}

	cfg.Source.Type = "stub-fail"
	if _, err := NewMetadataSource(context.Background(), cfg, zap.NewNop()); err == nil || err.Error() != "create stub-fail source: boom" {
		t.Errorf("expected wrapped factory error, got %v", err)
	}

	cfg.Source.Type = "oracle"
	if _, err := NewMetadataSource(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Error("expected error for unregistered type")
	}

	if !IsRegistered("stub-ok") || IsRegistered("oracle") {
		t.Error("IsRegistered mismatch")
	}

	found := false
	for _, info := range RegisteredSources() {
		if info.Type == "stub-ok" && info.DisplayName == "Stub" {
			found = true
		}
	}
	if !found {
		t.Error("expected stub-ok in RegisteredSources")
	}
}
