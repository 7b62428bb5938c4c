package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require insurerID for strict per-insurer isolation.
type Repository interface {
	// Catalog operations. SaveCatalog persists one published version;
	// versions are immutable and never updated in place.
	SaveCatalog(ctx context.Context, insurerID string, catalog *RuleCatalog) error
	GetCatalog(ctx context.Context, insurerID, productID string, version int) (*RuleCatalog, error)
	GetCurrentCatalog(ctx context.Context, insurerID, productID string) (*RuleCatalog, error)
	ListCurrentCatalogs(ctx context.Context) ([]*RuleCatalog, error)
	ListCatalogVersions(ctx context.Context, insurerID, productID string) ([]int, error)

	// Evaluation results (audit trail)
	SaveEvaluation(ctx context.Context, insurerID string, result *AdjustmentResult) error
	GetEvaluation(ctx context.Context, insurerID string, evaluationID string) (*AdjustmentResult, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
