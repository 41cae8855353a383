package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/formgrid/toolpack/internal/domain/model"
)

// SnapshotCacheService caches tool snapshots so a burst of concurrent exports
// of the same tool reads the tool tables once. The cache is read-through and
// never invalidated by the export core: a snapshot is immutable for the
// lifetime of a publication, and the TTL bounds staleness across republishes.
type SnapshotCacheService struct {
	cache CacheRepository
	tools ToolRepository
	ttl   time.Duration
}

// SnapshotCacheConfig holds configuration for snapshot caching.
type SnapshotCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// SnapshotCacheServiceOptions bundles dependencies for NewSnapshotCacheService.
type SnapshotCacheServiceOptions struct {
	Cache  CacheRepository
	Tools  ToolRepository
	Config SnapshotCacheConfig
}

// DefaultSnapshotCacheConfig returns a SnapshotCacheConfig with sensible defaults.
func DefaultSnapshotCacheConfig() SnapshotCacheConfig {
	return SnapshotCacheConfig{
		TTL: 10 * time.Minute,
	}
}

// NewSnapshotCacheService creates a new SnapshotCacheService.
func NewSnapshotCacheService(opts SnapshotCacheServiceOptions) *SnapshotCacheService {
	ttl := opts.Config.TTL
	if ttl <= 0 {
		ttl = DefaultSnapshotCacheConfig().TTL
	}
	return &SnapshotCacheService{
		cache: opts.Cache,
		tools: opts.Tools,
		ttl:   ttl,
	}
}

// GetSnapshot returns the tool snapshot, serving from cache when possible.
// Cache failures degrade to a direct repository read; they never fail a job.
func (s *SnapshotCacheService) GetSnapshot(ctx context.Context, toolID string) (*model.ToolSnapshot, error) {
	if s.cache == nil {
		return s.tools.GetSnapshot(ctx, toolID)
	}

	key := s.snapshotKey(toolID)
	if cached, err := s.cache.Get(ctx, key); err == nil && len(cached) > 0 {
		var snap model.ToolSnapshot
		if unmarshalErr := json.Unmarshal(cached, &snap); unmarshalErr == nil {
			return &snap, nil
		}
		// Corrupt entry: drop it and fall through to the repository.
		_, _ = s.cache.Delete(ctx, key)
	}

	snap, err := s.tools.GetSnapshot(ctx, toolID)
	if err != nil {
		return nil, err
	}

	if payload, marshalErr := json.Marshal(snap); marshalErr == nil {
		_ = s.cache.Set(ctx, key, payload, s.ttl)
	}

	return snap, nil
}

func (s *SnapshotCacheService) snapshotKey(toolID string) string {
	return fmt.Sprintf("toolpack:snapshot:%s", toolID)
}
