package domain

import (
	"context"
	"time"
)

// Cache defines the caching contract. The catalog's active-version lookups
// are read-heavy across every page of the product, so they are fronted by
// a local LRU (Community) or two-phase LRU + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetActiveVersionID retrieves the cached active regulation version id
	// for a jurisdiction. Returns "" on miss.
	GetActiveVersionID(ctx context.Context, tenantID string, jurisdictionID string) (string, error)

	// SetActiveVersionID caches the active regulation version id for a
	// jurisdiction. Invalidated on publish.
	SetActiveVersionID(ctx context.Context, tenantID string, jurisdictionID, versionID string, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. Used to rate operational counters (e.g. publishes per window).
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
