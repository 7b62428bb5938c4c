package rating

import (
	"math"
	"testing"

	"github.com/opensure/kestrel/internal/domain"
)

func pctContribution(key domain.DimensionKey, value float64) domain.TierContribution {
	return contribution(key, "t", domain.PricingPercentage, value, domain.AutoQuote)
}

func fixedContribution(key domain.DimensionKey, value float64) domain.TierContribution {
	return contribution(key, "t", domain.PricingFixedAmount, value, domain.AutoQuote)
}

func TestCompose(t *testing.T) {
	t.Run("percentages apply once to base, fixed added after", func(t *testing.T) {
		// 10000 * (1 + 0.10 - 0.05) + 500 + 250 = 11250.
		comp := Compose(10000, []domain.TierContribution{
			pctContribution(domain.DimProjectDuration, 0.10),
			pctContribution(domain.DimContractorExperience, -0.05),
			fixedContribution(domain.DimSoilType, 500),
			fixedContribution(domain.DimClausePricing, 250),
		})
		if comp.FinalPremium != 11250 {
			t.Fatalf("final premium = %g, want 11250", comp.FinalPremium)
		}
		if comp.TotalPercentage != 0.05 {
			t.Errorf("total percentage = %g, want 0.05", comp.TotalPercentage)
		}
		if comp.TotalFixed != 750 {
			t.Errorf("total fixed = %g, want 750", comp.TotalFixed)
		}
	})

	t.Run("no contributions leaves base unchanged", func(t *testing.T) {
		comp := Compose(10000, nil)
		if comp.FinalPremium != 10000 {
			t.Fatalf("final premium = %g", comp.FinalPremium)
		}
	})

	t.Run("percentages never compound", func(t *testing.T) {
		// Additive: 1000 * (1 + 0.1 + 0.1) = 1200, not 1000*1.1*1.1 = 1210.
		comp := Compose(1000, []domain.TierContribution{
			pctContribution(domain.DimProjectDuration, 0.10),
			pctContribution(domain.DimSoilType, 0.10),
		})
		if comp.FinalPremium != 1200 {
			t.Fatalf("final premium = %g, want 1200", comp.FinalPremium)
		}
	})

	t.Run("result is order-independent", func(t *testing.T) {
		forward := []domain.TierContribution{
			pctContribution(domain.DimProjectDuration, 0.17),
			fixedContribution(domain.DimSoilType, 123.45),
			pctContribution(domain.DimClaimsFrequency, -0.033),
			fixedContribution(domain.DimCrossLiability, -50),
		}
		reversed := make([]domain.TierContribution, len(forward))
		for i, c := range forward {
			reversed[len(forward)-1-i] = c
		}
		a := Compose(9876.54, forward)
		b := Compose(9876.54, reversed)
		if a != b {
			t.Fatalf("order changed result: %+v vs %+v", a, b)
		}
	})

	t.Run("float-hostile fractions stay exact", func(t *testing.T) {
		// 0.1 + 0.2 is not 0.3 in binary floats; decimal sums must be.
		comp := Compose(100, []domain.TierContribution{
			pctContribution(domain.DimProjectDuration, 0.1),
			pctContribution(domain.DimSoilType, 0.2),
		})
		if comp.TotalPercentage != 0.3 {
			t.Errorf("total percentage = %v, want exactly 0.3", comp.TotalPercentage)
		}
		if comp.FinalPremium != 130 {
			t.Errorf("final premium = %g, want 130", comp.FinalPremium)
		}
	})

	t.Run("final premium rounded to cents", func(t *testing.T) {
		comp := Compose(999.99, []domain.TierContribution{
			pctContribution(domain.DimProjectDuration, 0.0333),
		})
		cents := comp.FinalPremium * 100
		if cents != math.Trunc(cents) {
			t.Fatalf("final premium %v not rounded to cents", comp.FinalPremium)
		}
	})
}

func TestContribution(t *testing.T) {
	pct := contribution(domain.DimProjectDuration, "24-36", domain.PricingPercentage, 0.10, domain.QuoteAndRefer)
	if pct.Percentage != 0.10 || pct.Fixed != 0 {
		t.Errorf("percentage contribution split wrong: %+v", pct)
	}
	if pct.Tier != "24-36" || pct.QuoteOption != domain.QuoteAndRefer {
		t.Errorf("audit fields wrong: %+v", pct)
	}

	fixed := contribution(domain.DimSoilType, "Clay", domain.PricingFixedAmount, 500, domain.AutoQuote)
	if fixed.Fixed != 500 || fixed.Percentage != 0 {
		t.Errorf("fixed contribution split wrong: %+v", fixed)
	}
}
