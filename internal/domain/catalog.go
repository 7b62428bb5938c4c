// Package domain defines the core interfaces and types for Kestrel.
package domain

import "time"

// PricingType determines how a tier's value is applied to the base premium.
type PricingType string

const (
	// PricingPercentage applies the value as a signed fraction of the base
	// premium (loading positive, discount negative).
	PricingPercentage PricingType = "PERCENTAGE"

	// PricingFixedAmount adds the value as a signed currency amount.
	PricingFixedAmount PricingType = "FIXED_AMOUNT"
)

// QuoteOption is the underwriting disposition a tier carries.
type QuoteOption string

const (
	AutoQuote     QuoteOption = "AUTO_QUOTE"
	QuoteAndRefer QuoteOption = "QUOTE_AND_REFER"
	NoQuote       QuoteOption = "NO_QUOTE"
)

// Severity orders quote options strictest-last. A higher severity always
// wins when per-tier decisions are combined.
func (q QuoteOption) Severity() int {
	switch q {
	case NoQuote:
		return 2
	case QuoteAndRefer:
		return 1
	default:
		return 0
	}
}

// RiskBucket classifies a categorical label.
type RiskBucket string

const (
	RiskLow      RiskBucket = "LOW"
	RiskModerate RiskBucket = "MODERATE"
	RiskHigh     RiskBucket = "HIGH"
	RiskVeryHigh RiskBucket = "VERY_HIGH"
)

// DimensionKind discriminates the tier variant a dimension holds.
type DimensionKind string

const (
	KindRange       DimensionKind = "range"
	KindCategorical DimensionKind = "categorical"
	KindBinary      DimensionKind = "binary"
	KindClause      DimensionKind = "clause"
)

// DimensionKey identifies one rating factor within a catalog.
type DimensionKey string

// Rating dimensions for contractors-all-risks products.
const (
	DimProjectDuration      DimensionKey = "project_duration"
	DimMaintenancePeriod    DimensionKey = "maintenance_period"
	DimContractorExperience DimensionKey = "contractor_experience"
	DimClaimsFrequency      DimensionKey = "claims_frequency"
	DimClaimAmount          DimensionKey = "claim_amount"
	DimContractorCount      DimensionKey = "contractor_count"
	DimSubcontractorCount   DimensionKey = "subcontractor_count"
	DimSumInsured           DimensionKey = "sum_insured"
	DimProjectValue         DimensionKey = "project_value"
	DimContractWorks        DimensionKey = "contract_works"
	DimPlant                DimensionKey = "plant"
	DimTemporaryWorks       DimensionKey = "temporary_works"
	DimOtherMaterials       DimensionKey = "other_materials"
	DimPrincipalProperty    DimensionKey = "principal_property"
	DimPolicyLimit          DimensionKey = "policy_limit"
	DimDeductible           DimensionKey = "deductible"
	DimSoilType             DimensionKey = "soil_type"
	DimSecurityArrangement  DimensionKey = "security_arrangement"
	DimLocationHazard       DimensionKey = "location_hazard"
	DimCrossLiability       DimensionKey = "cross_liability"
	DimClausePricing        DimensionKey = "clause_pricing"
)

// RangeTier maps a half-open numeric interval [From, To) to a pricing
// effect and a quote option. A nil To marks the open-ended tier, which
// matches any x >= From.
type RangeTier struct {
	From         float64     `json:"from"`
	To           *float64    `json:"to,omitempty"`
	PricingType  PricingType `json:"pricingType"`
	Value        float64     `json:"value"`
	QuoteOption  QuoteOption `json:"quoteOption"`
	DisplayOrder int         `json:"displayOrder"`
}

// OpenEnded reports whether the tier has no upper bound.
func (t *RangeTier) OpenEnded() bool {
	return t.To == nil
}

// Matches reports whether x falls inside the tier.
func (t *RangeTier) Matches(x float64) bool {
	if x < t.From {
		return false
	}
	return t.To == nil || x < *t.To
}

// CategoricalTier maps a named label to a risk bucket and pricing effect.
type CategoricalTier struct {
	Label       string      `json:"label"`
	RiskBucket  RiskBucket  `json:"riskBucket"`
	PricingType PricingType `json:"pricingType"`
	Value       float64     `json:"value"`
	QuoteOption QuoteOption `json:"quoteOption"`
}

// BinaryChoiceTier prices a yes/no election such as cross liability.
type BinaryChoiceTier struct {
	Choice      string      `json:"choice"` // "yes" or "no"
	PricingType PricingType `json:"pricingType"`
	Value       float64     `json:"value"`
	QuoteOption QuoteOption `json:"quoteOption"`
}

// ClauseTier prices an optional policy clause. Condition, when set, is a
// CEL expression over the quote context; the clause contributes only when
// the expression evaluates true. Compiled at publish time.
type ClauseTier struct {
	Code        string      `json:"code"`
	Condition   string      `json:"condition,omitempty"`
	PricingType PricingType `json:"pricingType"`
	Value       float64     `json:"value"`
	QuoteOption QuoteOption `json:"quoteOption"`
}

// Dimension is one rating factor: an ordered set of tiers of a single
// kind. Inactive dimensions contribute nothing to an evaluation.
type Dimension struct {
	Key    DimensionKey  `json:"key"`
	Kind   DimensionKind `json:"kind"`
	Active bool          `json:"active"`

	// Exactly one of the following holds tiers, selected by Kind.
	Ranges  []RangeTier        `json:"ranges,omitempty"`
	Labels  []CategoricalTier  `json:"labels,omitempty"`
	Choices []BinaryChoiceTier `json:"choices,omitempty"`
	Clauses []ClauseTier       `json:"clauses,omitempty"`
}

// RuleCatalog is one immutable, versioned snapshot of all rating
// dimensions for an (insurer, product) pair. Edits build a new draft;
// a draft becomes current only after validation, never in place.
type RuleCatalog struct {
	InsurerID   string                      `json:"insurerId"`
	ProductID   string                      `json:"productId"`
	Version     int                         `json:"version"`
	PublishedAt time.Time                   `json:"publishedAt,omitempty"`
	Dimensions  map[DimensionKey]*Dimension `json:"dimensions"`
}

// Key returns the registry key for the catalog's insurer/product pair.
func (c *RuleCatalog) Key() string {
	return c.InsurerID + "/" + c.ProductID
}

// Clone returns a deep copy suitable for use as an editable draft.
func (c *RuleCatalog) Clone() *RuleCatalog {
	out := &RuleCatalog{
		InsurerID:   c.InsurerID,
		ProductID:   c.ProductID,
		Version:     c.Version,
		PublishedAt: c.PublishedAt,
		Dimensions:  make(map[DimensionKey]*Dimension, len(c.Dimensions)),
	}
	for k, d := range c.Dimensions {
		nd := &Dimension{Key: d.Key, Kind: d.Kind, Active: d.Active}
		nd.Ranges = append([]RangeTier(nil), d.Ranges...)
		nd.Labels = append([]CategoricalTier(nil), d.Labels...)
		nd.Choices = append([]BinaryChoiceTier(nil), d.Choices...)
		nd.Clauses = append([]ClauseTier(nil), d.Clauses...)
		out.Dimensions[k] = nd
	}
	return out
}
