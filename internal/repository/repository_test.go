package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensure/kestrel/internal/domain"
)

func testRangeCatalog(insurerID, productID string, version int) *domain.RuleCatalog {
	to := 24.0
	return &domain.RuleCatalog{
		InsurerID:   insurerID,
		ProductID:   productID,
		Version:     version,
		PublishedAt: time.Now().UTC(),
		Dimensions: map[domain.DimensionKey]*domain.Dimension{
			domain.DimProjectDuration: {
				Key: domain.DimProjectDuration, Kind: domain.KindRange, Active: true,
				Ranges: []domain.RangeTier{
					{From: 0, To: &to, PricingType: domain.PricingPercentage, Value: 0, QuoteOption: domain.AutoQuote},
					{From: 24, PricingType: domain.PricingPercentage, Value: 0.10, QuoteOption: domain.QuoteAndRefer},
				},
			},
		},
	}
}

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	insurerID := "acme"
	productID := "contractors-all-risks"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetCatalog", func(t *testing.T) {
		catalog := testRangeCatalog(insurerID, productID, 1)
		if err := repo.SaveCatalog(ctx, insurerID, catalog); err != nil {
			t.Fatalf("SaveCatalog failed: %v", err)
		}

		retrieved, err := repo.GetCatalog(ctx, insurerID, productID, 1)
		if err != nil {
			t.Fatalf("GetCatalog failed: %v", err)
		}
		if retrieved.Version != 1 {
			t.Errorf("expected version 1, got %d", retrieved.Version)
		}
		dim := retrieved.Dimensions[domain.DimProjectDuration]
		if dim == nil || len(dim.Ranges) != 2 {
			t.Fatalf("dimensions not round-tripped: %+v", retrieved.Dimensions)
		}
		if dim.Ranges[1].To != nil {
			t.Errorf("open-ended tier gained a bound: %v", *dim.Ranges[1].To)
		}
		if dim.Ranges[0].To == nil || *dim.Ranges[0].To != 24 {
			t.Errorf("bounded tier lost its bound: %+v", dim.Ranges[0])
		}
	})

	t.Run("VersionsAreImmutable", func(t *testing.T) {
		if err := repo.SaveCatalog(ctx, insurerID, testRangeCatalog(insurerID, productID, 1)); err == nil {
			t.Error("expected error re-inserting version 1")
		}
	})

	t.Run("GetCurrentCatalog", func(t *testing.T) {
		for _, v := range []int{2, 3} {
			if err := repo.SaveCatalog(ctx, insurerID, testRangeCatalog(insurerID, productID, v)); err != nil {
				t.Fatalf("SaveCatalog v%d failed: %v", v, err)
			}
		}

		current, err := repo.GetCurrentCatalog(ctx, insurerID, productID)
		if err != nil {
			t.Fatalf("GetCurrentCatalog failed: %v", err)
		}
		if current.Version != 3 {
			t.Errorf("expected version 3, got %d", current.Version)
		}
	})

	t.Run("ListCatalogVersions", func(t *testing.T) {
		versions, err := repo.ListCatalogVersions(ctx, insurerID, productID)
		if err != nil {
			t.Fatalf("ListCatalogVersions failed: %v", err)
		}
		if len(versions) != 3 || versions[0] != 1 || versions[2] != 3 {
			t.Errorf("versions = %v", versions)
		}
	})

	t.Run("ListCurrentCatalogs", func(t *testing.T) {
		other := testRangeCatalog("zephyr", productID, 5)
		if err := repo.SaveCatalog(ctx, "zephyr", other); err != nil {
			t.Fatalf("SaveCatalog failed: %v", err)
		}

		catalogs, err := repo.ListCurrentCatalogs(ctx)
		if err != nil {
			t.Fatalf("ListCurrentCatalogs failed: %v", err)
		}
		if len(catalogs) != 2 {
			t.Fatalf("expected 2 current catalogs, got %d", len(catalogs))
		}
		// acme sorts first; only its highest version is returned.
		if catalogs[0].InsurerID != "acme" || catalogs[0].Version != 3 {
			t.Errorf("first = %s v%d", catalogs[0].InsurerID, catalogs[0].Version)
		}
		if catalogs[1].InsurerID != "zephyr" || catalogs[1].Version != 5 {
			t.Errorf("second = %s v%d", catalogs[1].InsurerID, catalogs[1].Version)
		}
	})

	t.Run("InsurerIsolation", func(t *testing.T) {
		if _, err := repo.GetCatalog(ctx, "zephyr", productID, 1); err != ErrNotFound {
			t.Errorf("expected ErrNotFound for other insurer, got: %v", err)
		}
	})

	t.Run("RequiresInsurerID", func(t *testing.T) {
		if err := repo.SaveCatalog(ctx, "", testRangeCatalog("", productID, 9)); err == nil {
			t.Error("expected error for empty insurerID")
		}
		if _, err := repo.GetCurrentCatalog(ctx, "", productID); err == nil {
			t.Error("expected error for empty insurerID")
		}
	})

	t.Run("RejectsUnpublishedVersion", func(t *testing.T) {
		if err := repo.SaveCatalog(ctx, insurerID, testRangeCatalog(insurerID, productID, 0)); err == nil {
			t.Error("expected error for version 0")
		}
	})

	t.Run("SaveAndGetEvaluation", func(t *testing.T) {
		result := &domain.AdjustmentResult{
			EvaluationID:    "eval-001",
			QuoteID:         "q-100",
			InsurerID:       insurerID,
			ProductID:       productID,
			CatalogVersion:  3,
			EvaluatedAt:     time.Now().UTC(),
			BasePremium:     10000,
			TotalPercentage: 0.10,
			TotalFixed:      500,
			FinalPremium:    11500,
			PerTier: []domain.TierContribution{
				{Dimension: domain.DimProjectDuration, Tier: "24+", PricingType: domain.PricingPercentage, Value: 0.10, Percentage: 0.10, QuoteOption: domain.QuoteAndRefer},
			},
			Decision: domain.QuoteAndRefer,
			Metadata: domain.EvaluationMetadata{TraceID: "trace-001", DimensionsEvaluated: 1, EngineVersion: "kestrel-1.0"},
		}

		if err := repo.SaveEvaluation(ctx, insurerID, result); err != nil {
			t.Fatalf("SaveEvaluation failed: %v", err)
		}

		retrieved, err := repo.GetEvaluation(ctx, insurerID, "eval-001")
		if err != nil {
			t.Fatalf("GetEvaluation failed: %v", err)
		}
		if retrieved.FinalPremium != 11500 {
			t.Errorf("expected FinalPremium 11500, got %g", retrieved.FinalPremium)
		}
		if retrieved.Decision != domain.QuoteAndRefer {
			t.Errorf("expected decision QUOTE_AND_REFER, got %s", retrieved.Decision)
		}
		if len(retrieved.PerTier) != 1 || retrieved.PerTier[0].Tier != "24+" {
			t.Errorf("contributions not round-tripped: %+v", retrieved.PerTier)
		}
		if retrieved.Metadata.TraceID != "trace-001" {
			t.Errorf("metadata not round-tripped: %+v", retrieved.Metadata)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetCatalog(ctx, insurerID, "marine-cargo", 1); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetEvaluation(ctx, insurerID, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
