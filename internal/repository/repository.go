// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensure/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCatalog stores one published catalog version. Versions are
// immutable: inserting an existing (insurer, product, version) is an
// error, never an update.
func (r *SQLRepository) SaveCatalog(ctx context.Context, insurerID string, catalog *domain.RuleCatalog) error {
	if insurerID == "" {
		return fmt.Errorf("%w: insurerID is required", ErrInvalidInput)
	}
	if catalog.Version < 1 {
		return fmt.Errorf("%w: catalog version %d was never published", ErrInvalidInput, catalog.Version)
	}

	dimensions, err := json.Marshal(catalog.Dimensions)
	if err != nil {
		return fmt.Errorf("failed to encode dimensions: %w", err)
	}

	query := `
		INSERT INTO catalogs (insurer_id, product_id, version, published_at, dimensions)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		insurerID, catalog.ProductID, catalog.Version,
		catalog.PublishedAt, string(dimensions),
	)
	return err
}

// GetCatalog retrieves one specific catalog version.
func (r *SQLRepository) GetCatalog(ctx context.Context, insurerID, productID string, version int) (*domain.RuleCatalog, error) {
	if insurerID == "" {
		return nil, fmt.Errorf("%w: insurerID is required", ErrInvalidInput)
	}

	query := `
		SELECT insurer_id, product_id, version, published_at, dimensions
		FROM catalogs
		WHERE insurer_id = ? AND product_id = ? AND version = ?
	`
	return r.scanCatalog(r.db.QueryRowContext(ctx, r.rebind(query), insurerID, productID, version))
}

// GetCurrentCatalog retrieves the highest published version for a pair.
func (r *SQLRepository) GetCurrentCatalog(ctx context.Context, insurerID, productID string) (*domain.RuleCatalog, error) {
	if insurerID == "" {
		return nil, fmt.Errorf("%w: insurerID is required", ErrInvalidInput)
	}

	query := `
		SELECT insurer_id, product_id, version, published_at, dimensions
		FROM catalogs
		WHERE insurer_id = ? AND product_id = ?
		ORDER BY version DESC
		LIMIT 1
	`
	return r.scanCatalog(r.db.QueryRowContext(ctx, r.rebind(query), insurerID, productID))
}

// ListCurrentCatalogs retrieves the highest published version of every
// insurer/product pair, for loading the engine at startup.
func (r *SQLRepository) ListCurrentCatalogs(ctx context.Context) ([]*domain.RuleCatalog, error) {
	query := `
		SELECT c.insurer_id, c.product_id, c.version, c.published_at, c.dimensions
		FROM catalogs c
		JOIN (
			SELECT insurer_id, product_id, MAX(version) AS version
			FROM catalogs
			GROUP BY insurer_id, product_id
		) latest
		ON c.insurer_id = latest.insurer_id
		AND c.product_id = latest.product_id
		AND c.version = latest.version
		ORDER BY c.insurer_id, c.product_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var catalogs []*domain.RuleCatalog
	for rows.Next() {
		catalog, err := r.scanCatalog(rows)
		if err != nil {
			return nil, err
		}
		catalogs = append(catalogs, catalog)
	}
	return catalogs, rows.Err()
}

// ListCatalogVersions returns all published versions for a pair, oldest
// first.
func (r *SQLRepository) ListCatalogVersions(ctx context.Context, insurerID, productID string) ([]int, error) {
	if insurerID == "" {
		return nil, fmt.Errorf("%w: insurerID is required", ErrInvalidInput)
	}

	query := `
		SELECT version FROM catalogs
		WHERE insurer_id = ? AND product_id = ?
		ORDER BY version
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), insurerID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanCatalog(row rowScanner) (*domain.RuleCatalog, error) {
	var catalog domain.RuleCatalog
	var dimensions string

	err := row.Scan(
		&catalog.InsurerID, &catalog.ProductID, &catalog.Version,
		&catalog.PublishedAt, &dimensions,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(dimensions), &catalog.Dimensions); err != nil {
		return nil, fmt.Errorf("failed to parse catalog dimensions: %w", err)
	}
	return &catalog, nil
}

// SaveEvaluation stores one evaluation result for the audit trail.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, insurerID string, result *domain.AdjustmentResult) error {
	if insurerID == "" {
		return fmt.Errorf("%w: insurerID is required", ErrInvalidInput)
	}

	perTier, err := json.Marshal(result.PerTier)
	if err != nil {
		return fmt.Errorf("failed to encode contributions: %w", err)
	}
	metadata, _ := json.Marshal(result.Metadata)

	query := `
		INSERT INTO evaluations (
			id, insurer_id, product_id, quote_id, catalog_version,
			evaluated_at, base_premium, total_percentage, total_fixed,
			final_premium, decision, explanation, per_tier, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		result.EvaluationID, insurerID, result.ProductID, result.QuoteID,
		result.CatalogVersion, result.EvaluatedAt,
		result.BasePremium, result.TotalPercentage, result.TotalFixed,
		result.FinalPremium, string(result.Decision), result.Explanation,
		string(perTier), string(metadata),
	)
	return err
}

// GetEvaluation retrieves an evaluation by ID with insurer isolation.
func (r *SQLRepository) GetEvaluation(ctx context.Context, insurerID string, evaluationID string) (*domain.AdjustmentResult, error) {
	if insurerID == "" {
		return nil, fmt.Errorf("%w: insurerID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, insurer_id, product_id, quote_id, catalog_version,
			   evaluated_at, base_premium, total_percentage, total_fixed,
			   final_premium, decision, explanation, per_tier, metadata
		FROM evaluations
		WHERE insurer_id = ? AND id = ?
	`

	var result domain.AdjustmentResult
	var decision, perTier, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), insurerID, evaluationID).Scan(
		&result.EvaluationID, &result.InsurerID, &result.ProductID,
		&result.QuoteID, &result.CatalogVersion, &result.EvaluatedAt,
		&result.BasePremium, &result.TotalPercentage, &result.TotalFixed,
		&result.FinalPremium, &decision, &result.Explanation,
		&perTier, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	result.Decision = domain.QuoteOption(decision)
	if err := json.Unmarshal([]byte(perTier), &result.PerTier); err != nil {
		return nil, fmt.Errorf("failed to parse contributions: %w", err)
	}
	if metadata != "" {
		json.Unmarshal([]byte(metadata), &result.Metadata)
	}

	return &result, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
