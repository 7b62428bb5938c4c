package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require insurerID for strict per-insurer isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, insurerID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, insurerID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, insurerID string, key string) error

	// GetCatalog retrieves a cached published catalog.
	GetCatalog(ctx context.Context, insurerID, productID string, version int) (*RuleCatalog, error)

	// SetCatalog caches a published catalog so warm restarts and sibling
	// nodes avoid a repository read.
	SetCatalog(ctx context.Context, insurerID string, catalog *RuleCatalog, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns the new
	// value. Used for per-insurer evaluation counters.
	IncrementCounter(ctx context.Context, insurerID string, key string, window time.Duration) (int64, error)

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
