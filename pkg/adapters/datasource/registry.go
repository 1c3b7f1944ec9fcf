package datasource

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dq/pkg/config"
)

// SourceInfo describes a registered metadata source.
type SourceInfo struct {
	Type        string `json:"type"`         // "backend", "postgres", "mssql", "fixture"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
	Description string `json:"description"`
}

// SourceFactory builds a source from configuration.
type SourceFactory func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (MetadataSource, error)

// SourceRegistration contains info + factory for creating a source.
type SourceRegistration struct {
	Info    SourceInfo
	Factory SourceFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]SourceRegistration)
)

// Register is called by each source's init() function.
// Thread-safe for concurrent init() calls.
func Register(reg SourceRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredSources returns info for all registered sources, sorted by type.
func RegisteredSources() []SourceInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]SourceInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// GetFactory returns the factory for a source type.
// Returns nil if type is not registered.
func GetFactory(sourceType string) SourceFactory {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if reg, ok := registry[sourceType]; ok {
		return reg.Factory
	}
	return nil
}

// IsRegistered checks if a source type is available.
func IsRegistered(sourceType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[sourceType]
	return ok
}
