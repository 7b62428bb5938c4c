package rating

import (
	"errors"
	"sync"
	"testing"

	"github.com/opensure/kestrel/internal/domain"
)

func testCatalog() *domain.RuleCatalog {
	return draftWith(
		rangeDim(domain.DimProjectDuration,
			domain.RangeTier{From: 0, To: fp(12), PricingType: domain.PricingPercentage, Value: -0.05, QuoteOption: domain.AutoQuote},
			domain.RangeTier{From: 12, To: fp(24), PricingType: domain.PricingPercentage, Value: 0, QuoteOption: domain.AutoQuote},
			domain.RangeTier{From: 24, To: fp(36), PricingType: domain.PricingPercentage, Value: 0.10, QuoteOption: domain.QuoteAndRefer},
			domain.RangeTier{From: 36, PricingType: domain.PricingPercentage, Value: 0.25, QuoteOption: domain.NoQuote},
		),
		&domain.Dimension{
			Key: domain.DimSoilType, Kind: domain.KindCategorical, Active: true,
			Labels: []domain.CategoricalTier{
				{Label: "Sand", RiskBucket: domain.RiskModerate, PricingType: domain.PricingPercentage, Value: 0.05, QuoteOption: domain.AutoQuote},
				{Label: "Clay", RiskBucket: domain.RiskHigh, PricingType: domain.PricingPercentage, Value: 0.15, QuoteOption: domain.QuoteAndRefer},
				{Label: "Rock", RiskBucket: domain.RiskLow, PricingType: domain.PricingPercentage, Value: 0, QuoteOption: domain.AutoQuote},
			},
		},
		&domain.Dimension{
			Key: domain.DimCrossLiability, Kind: domain.KindBinary, Active: true,
			Choices: []domain.BinaryChoiceTier{
				{Choice: "yes", PricingType: domain.PricingFixedAmount, Value: 500, QuoteOption: domain.AutoQuote},
				{Choice: "no", PricingType: domain.PricingFixedAmount, Value: 0, QuoteOption: domain.AutoQuote},
			},
		},
		&domain.Dimension{
			Key: domain.DimClausePricing, Kind: domain.KindClause, Active: true,
			Clauses: []domain.ClauseTier{
				{Code: "MR004", PricingType: domain.PricingPercentage, Value: 0.02, QuoteOption: domain.AutoQuote},
				{Code: "MR012", Condition: `attr["sum_insured"] > 1000000.0`, PricingType: domain.PricingFixedAmount, Value: 1000, QuoteOption: domain.QuoteAndRefer},
			},
		},
		&domain.Dimension{
			Key: domain.DimDeductible, Kind: domain.KindRange, Active: false,
			Ranges: []domain.RangeTier{{From: 0, PricingType: domain.PricingPercentage, Value: -0.99}},
		},
	)
}

func publishedEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, report, err := engine.Publish(testCatalog()); err != nil {
		t.Fatalf("Publish: %v (issues %+v)", err, report.Issues)
	}
	return engine
}

func TestEnginePublish(t *testing.T) {
	engine := publishedEngine(t)

	t.Run("first publish is version one", func(t *testing.T) {
		current, ok := engine.Current("acme", "contractors-all-risks")
		if !ok {
			t.Fatal("no current catalog")
		}
		if current.Version != 1 {
			t.Fatalf("version = %d", current.Version)
		}
		if current.PublishedAt.IsZero() {
			t.Error("PublishedAt not stamped")
		}
	})

	t.Run("republish increments version", func(t *testing.T) {
		published, _, err := engine.Publish(testCatalog())
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if published.Version != 2 {
			t.Fatalf("version = %d", published.Version)
		}
	})

	t.Run("invalid draft leaves previous version live", func(t *testing.T) {
		before, _ := engine.Current("acme", "contractors-all-risks")

		broken := testCatalog()
		broken.Dimensions[domain.DimProjectDuration].Ranges[3].To = fp(48) // drops the open end
		_, report, err := engine.Publish(broken)
		if !errors.Is(err, ErrInvalidCatalog) {
			t.Fatalf("err = %v", err)
		}
		if report == nil || report.Valid {
			t.Fatalf("report = %+v", report)
		}

		after, _ := engine.Current("acme", "contractors-all-risks")
		if after.Version != before.Version {
			t.Fatalf("live version changed from %d to %d", before.Version, after.Version)
		}
	})

	t.Run("published catalog is detached from the draft", func(t *testing.T) {
		draft := testCatalog()
		draft.InsurerID = "zephyr"
		published, _, err := engine.Publish(draft)
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
		draft.Dimensions[domain.DimSoilType].Labels[0].Value = 9.99
		if published.Dimensions[domain.DimSoilType].Labels[0].Value == 9.99 {
			t.Fatal("published catalog shares tier storage with the draft")
		}
	})
}

func TestEngineLoad(t *testing.T) {
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	stored := testCatalog()
	stored.Version = 7
	if err := engine.Load(stored); err != nil {
		t.Fatalf("Load: %v", err)
	}
	current, ok := engine.Current("acme", "contractors-all-risks")
	if !ok || current.Version != 7 {
		t.Fatalf("current = %+v ok=%v", current, ok)
	}

	stale := testCatalog()
	stale.Version = 3
	if err := engine.Load(stale); err != nil {
		t.Fatalf("Load stale: %v", err)
	}
	current, _ = engine.Current("acme", "contractors-all-risks")
	if current.Version != 7 {
		t.Fatalf("stale version replaced newer: %d", current.Version)
	}

	next, _, err := engine.Publish(testCatalog())
	if err != nil {
		t.Fatalf("Publish after load: %v", err)
	}
	if next.Version != 8 {
		t.Fatalf("publish after load assigned version %d", next.Version)
	}
}

func TestEngineEvaluate(t *testing.T) {
	engine := publishedEngine(t)

	baseContext := func() *domain.QuoteContext {
		return &domain.QuoteContext{
			QuoteID:     "q-100",
			InsurerID:   "acme",
			ProductID:   "contractors-all-risks",
			BasePremium: 10000,
			Numeric:     map[domain.DimensionKey]float64{domain.DimProjectDuration: 18},
			Labels:      map[domain.DimensionKey]string{domain.DimSoilType: "Clay"},
			Choices:     map[domain.DimensionKey]bool{domain.DimCrossLiability: true},
		}
	}

	t.Run("composes contributions across dimension kinds", func(t *testing.T) {
		result, err := engine.Evaluate(baseContext())
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}

		// duration 18 -> 0%, Clay -> +15%, cross liability -> +500.
		if result.FinalPremium != 12000 {
			t.Fatalf("final premium = %g, want 12000", result.FinalPremium)
		}
		if result.Decision != domain.QuoteAndRefer {
			t.Fatalf("decision = %s", result.Decision)
		}
		if len(result.PerTier) != 3 {
			t.Fatalf("per-tier contributions = %d: %+v", len(result.PerTier), result.PerTier)
		}
		if result.CatalogVersion != 1 {
			t.Errorf("catalog version = %d", result.CatalogVersion)
		}
		if result.EvaluationID == "" {
			t.Error("evaluation id missing")
		}
		if result.Metadata.DimensionsEvaluated != 3 {
			t.Errorf("dimensions evaluated = %d", result.Metadata.DimensionsEvaluated)
		}
		// clause_pricing has no selected clauses; deductible is inactive
		// and never counted.
		if result.Metadata.DimensionsSkipped != 1 {
			t.Errorf("dimensions skipped = %d", result.Metadata.DimensionsSkipped)
		}
	})

	t.Run("absent dimensions are skipped", func(t *testing.T) {
		q := baseContext()
		q.Labels = nil
		q.Choices = nil
		result, err := engine.Evaluate(q)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if result.FinalPremium != 10000 {
			t.Fatalf("final premium = %g, want 10000", result.FinalPremium)
		}
		if result.Decision != domain.AutoQuote {
			t.Fatalf("decision = %s", result.Decision)
		}
	})

	t.Run("inactive dimensions never contribute", func(t *testing.T) {
		q := baseContext()
		q.Numeric[domain.DimDeductible] = 5
		result, err := engine.Evaluate(q)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		for _, c := range result.PerTier {
			if c.Dimension == domain.DimDeductible {
				t.Fatalf("inactive dimension contributed: %+v", c)
			}
		}
	})

	t.Run("no-quote tier forces decline", func(t *testing.T) {
		q := baseContext()
		q.Numeric[domain.DimProjectDuration] = 48
		result, err := engine.Evaluate(q)
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if result.Decision != domain.NoQuote {
			t.Fatalf("decision = %s", result.Decision)
		}
		// Pricing is still composed for the audit trail.
		if len(result.PerTier) != 3 {
			t.Fatalf("per-tier contributions = %d", len(result.PerTier))
		}
	})

	t.Run("unknown label declines conservatively", func(t *testing.T) {
		q := baseContext()
		q.Labels[domain.DimSoilType] = "Basalt"
		result, err := engine.Evaluate(q)

		var evalErr *EvaluationError
		if !errors.As(err, &evalErr) {
			t.Fatalf("err = %v", err)
		}
		if evalErr.Code != EvalUnknownLabel || evalErr.Dimension != domain.DimSoilType {
			t.Fatalf("evaluation error = %+v", evalErr)
		}
		if result == nil {
			t.Fatal("declined evaluation must still return a result")
		}
		if result.Decision != domain.NoQuote {
			t.Fatalf("decision = %s", result.Decision)
		}
		if result.Explanation == "" {
			t.Error("explanation missing on forced decline")
		}
	})

	t.Run("value below lowest tier declines", func(t *testing.T) {
		draft := testCatalog()
		draft.InsurerID = "gapco"
		draft.Dimensions[domain.DimProjectDuration].Ranges[0].From = 6
		if _, _, err := engine.Publish(draft); err != nil {
			t.Fatalf("Publish: %v", err)
		}

		q := baseContext()
		q.InsurerID = "gapco"
		q.Numeric[domain.DimProjectDuration] = 3
		result, err := engine.Evaluate(q)

		var evalErr *EvaluationError
		if !errors.As(err, &evalErr) {
			t.Fatalf("err = %v", err)
		}
		if evalErr.Code != EvalNoMatchingTier {
			t.Fatalf("code = %s", evalErr.Code)
		}
		if result.Decision != domain.NoQuote {
			t.Fatalf("decision = %s", result.Decision)
		}
	})

	t.Run("unknown catalog", func(t *testing.T) {
		q := baseContext()
		q.ProductID = "marine-cargo"
		if _, err := engine.Evaluate(q); !errors.Is(err, ErrCatalogNotFound) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestEngineEvaluateClauses(t *testing.T) {
	engine := publishedEngine(t)

	quote := func(clauses []string, sumInsured float64) *domain.QuoteContext {
		return &domain.QuoteContext{
			QuoteID:     "q-200",
			InsurerID:   "acme",
			ProductID:   "contractors-all-risks",
			BasePremium: 10000,
			Numeric:     map[domain.DimensionKey]float64{domain.DimSumInsured: sumInsured},
			Clauses:     clauses,
		}
	}

	t.Run("unconditional clause contributes when selected", func(t *testing.T) {
		result, err := engine.Evaluate(quote([]string{"MR004"}, 0))
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if result.FinalPremium != 10200 {
			t.Fatalf("final premium = %g, want 10200", result.FinalPremium)
		}
	})

	t.Run("conditional clause applies only when its condition holds", func(t *testing.T) {
		result, err := engine.Evaluate(quote([]string{"MR012"}, 2_000_000))
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if result.FinalPremium != 11000 {
			t.Fatalf("final premium = %g, want 11000", result.FinalPremium)
		}
		if result.Decision != domain.QuoteAndRefer {
			t.Fatalf("decision = %s", result.Decision)
		}

		result, err = engine.Evaluate(quote([]string{"MR012"}, 500_000))
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if result.FinalPremium != 10000 {
			t.Fatalf("inapplicable clause changed premium to %g", result.FinalPremium)
		}
		if result.Decision != domain.AutoQuote {
			t.Fatalf("inapplicable clause changed decision to %s", result.Decision)
		}
	})

	t.Run("unknown clause code declines", func(t *testing.T) {
		result, err := engine.Evaluate(quote([]string{"MR999"}, 0))
		var evalErr *EvaluationError
		if !errors.As(err, &evalErr) || evalErr.Code != EvalUnknownLabel {
			t.Fatalf("err = %v", err)
		}
		if result.Decision != domain.NoQuote {
			t.Fatalf("decision = %s", result.Decision)
		}
	})
}

func TestEngineConcurrentPublishAndEvaluate(t *testing.T) {
	engine := publishedEngine(t)

	q := &domain.QuoteContext{
		QuoteID:     "q-300",
		InsurerID:   "acme",
		ProductID:   "contractors-all-risks",
		BasePremium: 10000,
		Numeric:     map[domain.DimensionKey]float64{domain.DimProjectDuration: 18},
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				result, err := engine.Evaluate(q)
				if err != nil {
					t.Errorf("Evaluate: %v", err)
					return
				}
				if result.CatalogVersion < 1 {
					t.Errorf("catalog version = %d", result.CatalogVersion)
					return
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 20 {
			if _, _, err := engine.Publish(testCatalog()); err != nil {
				t.Errorf("Publish: %v", err)
				return
			}
		}
	}()

	wg.Wait()

	current, _ := engine.Current("acme", "contractors-all-risks")
	if current.Version != 21 {
		t.Fatalf("final version = %d, want 21", current.Version)
	}
}
