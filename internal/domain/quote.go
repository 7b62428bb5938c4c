package domain

import "time"

// QuoteContext is the caller-supplied attribute set for one quote plus
// its base premium. Attribute maps are keyed by dimension so the facade
// can skip any dimension the context does not speak to.
type QuoteContext struct {
	QuoteID   string `json:"quoteId"`
	InsurerID string `json:"insurerId"`
	ProductID string `json:"productId"`

	// BasePremium is the upstream base premium the adjustment applies to.
	BasePremium float64 `json:"basePremium"`

	// Numeric holds scalar attributes for range dimensions
	// (duration in months, sum insured, claims count, ...).
	Numeric map[DimensionKey]float64 `json:"numeric,omitempty"`

	// Labels holds categorical attributes (soil type, security
	// arrangement, location hazard).
	Labels map[DimensionKey]string `json:"labels,omitempty"`

	// Choices holds binary elections (cross liability).
	Choices map[DimensionKey]bool `json:"choices,omitempty"`

	// Clauses lists the selected clause codes for clause pricing.
	Clauses []string `json:"clauses,omitempty"`
}

// TierContribution records the pricing delta one resolved tier produced,
// for auditability of the composed premium.
type TierContribution struct {
	Dimension   DimensionKey `json:"dimension"`
	Tier        string       `json:"tier"` // range bounds, label, choice or clause code
	PricingType PricingType  `json:"pricingType"`
	Value       float64      `json:"value"`
	Percentage  float64      `json:"percentage"` // fraction added to the aggregate percentage
	Fixed       float64      `json:"fixed"`      // amount added to the aggregate fixed delta
	QuoteOption QuoteOption  `json:"quoteOption"`
}

// AdjustmentResult is the complete outcome of evaluating one quote
// context against one catalog version.
type AdjustmentResult struct {
	EvaluationID   string    `json:"evaluationId"`
	QuoteID        string    `json:"quoteId,omitempty"`
	InsurerID      string    `json:"insurerId"`
	ProductID      string    `json:"productId"`
	CatalogVersion int       `json:"catalogVersion"`
	EvaluatedAt    time.Time `json:"evaluatedAt"`

	BasePremium     float64 `json:"basePremium"`
	TotalPercentage float64 `json:"totalPercentage"`
	TotalFixed      float64 `json:"totalFixed"`
	FinalPremium    float64 `json:"finalPremium"`

	PerTier  []TierContribution `json:"perTier"`
	Decision QuoteOption        `json:"decision"`

	// Explanation is set when the decision was forced to NO_QUOTE by an
	// evaluation failure (unconfigured input), identifying the dimension
	// and offending value.
	Explanation string `json:"explanation,omitempty"`

	// Processing metadata
	Metadata EvaluationMetadata `json:"metadata"`
}

// EvaluationMetadata carries processing information for one evaluation.
type EvaluationMetadata struct {
	TraceID             string `json:"traceId,omitempty"`
	DimensionsEvaluated int    `json:"dimensionsEvaluated"`
	DimensionsSkipped   int    `json:"dimensionsSkipped"`
	EvalMicros          int64  `json:"evalMicros"`
	EngineVersion       string `json:"engineVersion"`
}
