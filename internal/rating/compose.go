package rating

import (
	"github.com/shopspring/decimal"

	"github.com/opensure/kestrel/internal/domain"
)

// Composition is the aggregate pricing effect of all resolved tiers.
type Composition struct {
	TotalPercentage float64
	TotalFixed      float64
	FinalPremium    float64
}

// Compose combines per-tier pricing effects into one premium delta.
//
// Percentage contributions are summed (not compounded) into a single
// aggregate fraction applied once to the base premium; fixed amounts are
// summed and added afterwards:
//
//	final = base * (1 + Σ pct) + Σ fixed
//
// Addition makes the result independent of tier order and trivially
// auditable from the per-tier contributions. Decimal arithmetic keeps
// the sums exact regardless of how many tiers stack; the final premium
// is rounded to cents.
func Compose(basePremium float64, contributions []domain.TierContribution) Composition {
	pct := decimal.Zero
	fixed := decimal.Zero

	for _, c := range contributions {
		pct = pct.Add(decimal.NewFromFloat(c.Percentage))
		fixed = fixed.Add(decimal.NewFromFloat(c.Fixed))
	}

	base := decimal.NewFromFloat(basePremium)
	final := base.Mul(decimal.NewFromInt(1).Add(pct)).Add(fixed).Round(2)

	return Composition{
		TotalPercentage: pct.InexactFloat64(),
		TotalFixed:      fixed.InexactFloat64(),
		FinalPremium:    final.InexactFloat64(),
	}
}

// contribution builds the audit record for one resolved tier.
func contribution(key domain.DimensionKey, tier string, pricing domain.PricingType, value float64, opt domain.QuoteOption) domain.TierContribution {
	c := domain.TierContribution{
		Dimension:   key,
		Tier:        tier,
		PricingType: pricing,
		Value:       value,
		QuoteOption: opt,
	}
	switch pricing {
	case domain.PricingPercentage:
		c.Percentage = value
	case domain.PricingFixedAmount:
		c.Fixed = value
	}
	return c
}
