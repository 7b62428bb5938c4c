// Package configstore talks to the external configuration store that
// supplies draft rating rules, and normalizes its wire shapes into typed
// draft catalogs. Everything it returns is untrusted until validated.
package configstore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opensure/kestrel/internal/domain"
)

// openEndedSentinel is the legacy "no upper bound" marker some store
// screens write instead of null. Normalized away here; nothing past this
// boundary ever sees it.
const openEndedSentinel = 999

// WirePayload is the store's per insurer/product rating configuration.
type WirePayload struct {
	InsurerID  string          `json:"insurer_id"`
	ProductID  string          `json:"product_id"`
	Version    int             `json:"version,omitempty"`
	Dimensions []WireDimension `json:"dimensions"`
}

// WireDimension carries one dimension's tier rows. Kind may be omitted
// by older store versions; it is then inferred from which tier array is
// populated.
type WireDimension struct {
	Dimension string `json:"dimension"`
	Kind      string `json:"kind,omitempty"`
	IsActive  bool   `json:"is_active"`

	Ranges     []WireRange       `json:"ranges,omitempty"`
	Categories []WireCategory    `json:"categories,omitempty"`
	Options    []WireCoverOption `json:"options,omitempty"`
	Clauses    []WireClause      `json:"clauses,omitempty"`
}

// WireRange is one numeric tier row. The store names the bound columns
// after the unit of the screen that produced them, so every alias is
// accepted; at most one of each group is expected to be set.
type WireRange struct {
	FromAmount *float64 `json:"from_amount,omitempty"`
	FromMonths *float64 `json:"from_months,omitempty"`
	FromYears  *float64 `json:"from_years,omitempty"`

	// A nil upper bound and the 999 sentinel both mean open-ended.
	ToAmount *float64 `json:"to_amount,omitempty"`
	ToMonths *float64 `json:"to_months,omitempty"`
	ToYears  *float64 `json:"to_years,omitempty"`

	PricingType     string   `json:"pricing_type"`
	Value           *float64 `json:"value,omitempty"`
	LoadingDiscount *float64 `json:"loading_discount,omitempty"`
	QuoteOption     string   `json:"quote_option"`
	DisplayOrder    int      `json:"display_order"`
}

// WireCategory is one categorical tier row.
type WireCategory struct {
	Name            string   `json:"name,omitempty"` // legacy alias for label
	Label           string   `json:"label,omitempty"`
	RiskBucket      string   `json:"risk_bucket"`
	PricingType     string   `json:"pricing_type"`
	Value           *float64 `json:"value,omitempty"`
	LoadingDiscount *float64 `json:"loading_discount,omitempty"`
	QuoteOption     string   `json:"quote_option"`
}

// WireCoverOption is one binary election row.
type WireCoverOption struct {
	CoverOption     string   `json:"cover_option"` // "Yes" or "No"
	PricingType     string   `json:"pricing_type"`
	Value           *float64 `json:"value,omitempty"`
	LoadingDiscount *float64 `json:"loading_discount,omitempty"`
	QuoteOption     string   `json:"quote_option"`
}

// WireClause is one optional-clause pricing row.
type WireClause struct {
	Code            string   `json:"code"`
	Condition       string   `json:"condition,omitempty"`
	PricingType     string   `json:"pricing_type"`
	Value           *float64 `json:"value,omitempty"`
	LoadingDiscount *float64 `json:"loading_discount,omitempty"`
	QuoteOption     string   `json:"quote_option"`
}

// BuildDraft normalizes a wire payload into a typed draft catalog.
// Normalization is shape-level only (column aliases, open-end sentinels,
// legacy enum names); semantic checks belong to catalog validation.
func BuildDraft(payload *WirePayload) (*domain.RuleCatalog, error) {
	draft := &domain.RuleCatalog{
		InsurerID:  payload.InsurerID,
		ProductID:  payload.ProductID,
		Version:    payload.Version,
		Dimensions: make(map[domain.DimensionKey]*domain.Dimension, len(payload.Dimensions)),
	}

	for _, wd := range payload.Dimensions {
		key := domain.DimensionKey(strings.TrimSpace(wd.Dimension))
		if key == "" {
			return nil, fmt.Errorf("dimension with empty key")
		}
		if _, dup := draft.Dimensions[key]; dup {
			return nil, fmt.Errorf("dimension %q appears twice", key)
		}

		dim := &domain.Dimension{Key: key, Active: wd.IsActive}
		kind, err := dimensionKind(&wd)
		if err != nil {
			return nil, fmt.Errorf("dimension %q: %w", key, err)
		}
		dim.Kind = kind

		switch kind {
		case domain.KindRange:
			dim.Ranges, err = buildRanges(wd.Ranges)
		case domain.KindCategorical:
			dim.Labels, err = buildCategories(wd.Categories)
		case domain.KindBinary:
			dim.Choices, err = buildChoices(wd.Options)
		case domain.KindClause:
			dim.Clauses, err = buildClauses(wd.Clauses)
		}
		if err != nil {
			return nil, fmt.Errorf("dimension %q: %w", key, err)
		}
		draft.Dimensions[key] = dim
	}
	return draft, nil
}

func dimensionKind(wd *WireDimension) (domain.DimensionKind, error) {
	if wd.Kind != "" {
		kind := domain.DimensionKind(strings.ToLower(wd.Kind))
		switch kind {
		case domain.KindRange, domain.KindCategorical, domain.KindBinary, domain.KindClause:
			return kind, nil
		}
		return "", fmt.Errorf("unknown kind %q", wd.Kind)
	}
	switch {
	case len(wd.Ranges) > 0:
		return domain.KindRange, nil
	case len(wd.Categories) > 0:
		return domain.KindCategorical, nil
	case len(wd.Options) > 0:
		return domain.KindBinary, nil
	case len(wd.Clauses) > 0:
		return domain.KindClause, nil
	}
	return "", fmt.Errorf("no tiers and no kind")
}

func buildRanges(rows []WireRange) ([]domain.RangeTier, error) {
	tiers := make([]domain.RangeTier, 0, len(rows))
	for i, row := range rows {
		pricing, err := normalizePricing(row.PricingType)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		opt, err := normalizeQuoteOption(row.QuoteOption)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		tiers = append(tiers, domain.RangeTier{
			From:         firstOf(row.FromAmount, row.FromMonths, row.FromYears),
			To:           upperBound(row.ToAmount, row.ToMonths, row.ToYears),
			PricingType:  pricing,
			Value:        rowValue(row.Value, row.LoadingDiscount),
			QuoteOption:  opt,
			DisplayOrder: row.DisplayOrder,
		})
	}
	return tiers, nil
}

func buildCategories(rows []WireCategory) ([]domain.CategoricalTier, error) {
	tiers := make([]domain.CategoricalTier, 0, len(rows))
	for i, row := range rows {
		label := row.Label
		if label == "" {
			label = row.Name
		}
		pricing, err := normalizePricing(row.PricingType)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		opt, err := normalizeQuoteOption(row.QuoteOption)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		tiers = append(tiers, domain.CategoricalTier{
			Label:       strings.TrimSpace(label),
			RiskBucket:  domain.RiskBucket(strings.ToUpper(strings.TrimSpace(row.RiskBucket))),
			PricingType: pricing,
			Value:       rowValue(row.Value, row.LoadingDiscount),
			QuoteOption: opt,
		})
	}
	return tiers, nil
}

func buildChoices(rows []WireCoverOption) ([]domain.BinaryChoiceTier, error) {
	tiers := make([]domain.BinaryChoiceTier, 0, len(rows))
	for i, row := range rows {
		choice := strings.ToLower(strings.TrimSpace(row.CoverOption))
		if choice != "yes" && choice != "no" {
			return nil, fmt.Errorf("row %d: cover option %q is not Yes/No", i, row.CoverOption)
		}
		pricing, err := normalizePricing(row.PricingType)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		opt, err := normalizeQuoteOption(row.QuoteOption)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		tiers = append(tiers, domain.BinaryChoiceTier{
			Choice:      choice,
			PricingType: pricing,
			Value:       rowValue(row.Value, row.LoadingDiscount),
			QuoteOption: opt,
		})
	}
	return tiers, nil
}

func buildClauses(rows []WireClause) ([]domain.ClauseTier, error) {
	tiers := make([]domain.ClauseTier, 0, len(rows))
	for i, row := range rows {
		pricing, err := normalizePricing(row.PricingType)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		opt, err := normalizeQuoteOption(row.QuoteOption)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		tiers = append(tiers, domain.ClauseTier{
			Code:        strings.TrimSpace(row.Code),
			Condition:   strings.TrimSpace(row.Condition),
			PricingType: pricing,
			Value:       rowValue(row.Value, row.LoadingDiscount),
			QuoteOption: opt,
		})
	}
	return tiers, nil
}

// normalizePricing folds the legacy FIXED_RATE name into PERCENTAGE.
// Both named a fraction of base premium; the store UI never told them
// apart either.
func normalizePricing(raw string) (domain.PricingType, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PERCENTAGE", "FIXED_RATE":
		return domain.PricingPercentage, nil
	case "FIXED_AMOUNT":
		return domain.PricingFixedAmount, nil
	}
	return "", fmt.Errorf("unknown pricing type %q", raw)
}

func normalizeQuoteOption(raw string) (domain.QuoteOption, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "AUTO_QUOTE", "":
		return domain.AutoQuote, nil
	case "QUOTE_AND_REFER":
		return domain.QuoteAndRefer, nil
	case "NO_QUOTE":
		return domain.NoQuote, nil
	}
	return "", fmt.Errorf("unknown quote option %q", raw)
}

func firstOf(candidates ...*float64) float64 {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return 0
}

// upperBound maps both open-end spellings (absent column, 999 sentinel)
// to nil.
func upperBound(candidates ...*float64) *float64 {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if *c == openEndedSentinel {
			return nil
		}
		to := *c
		return &to
	}
	return nil
}

func rowValue(value, loadingDiscount *float64) float64 {
	if value != nil {
		return *value
	}
	if loadingDiscount != nil {
		return *loadingDiscount
	}
	return 0
}

// ExportWire renders a catalog back into the canonical wire shape:
// amount-named bounds, explicit kinds, open ends as absent columns and
// value never spelled loading_discount. BuildDraft(ExportWire(c))
// reproduces c's tiers exactly.
func ExportWire(catalog *domain.RuleCatalog) *WirePayload {
	payload := &WirePayload{
		InsurerID: catalog.InsurerID,
		ProductID: catalog.ProductID,
		Version:   catalog.Version,
	}

	keys := make([]domain.DimensionKey, 0, len(catalog.Dimensions))
	for k := range catalog.Dimensions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, key := range keys {
		dim := catalog.Dimensions[key]
		wd := WireDimension{
			Dimension: string(key),
			Kind:      string(dim.Kind),
			IsActive:  dim.Active,
		}

		for _, t := range dim.Ranges {
			from := t.From
			row := WireRange{
				FromAmount:   &from,
				PricingType:  string(t.PricingType),
				Value:        ptrOf(t.Value),
				QuoteOption:  string(t.QuoteOption),
				DisplayOrder: t.DisplayOrder,
			}
			if t.To != nil {
				to := *t.To
				row.ToAmount = &to
			}
			wd.Ranges = append(wd.Ranges, row)
		}
		for _, t := range dim.Labels {
			wd.Categories = append(wd.Categories, WireCategory{
				Label:       t.Label,
				RiskBucket:  string(t.RiskBucket),
				PricingType: string(t.PricingType),
				Value:       ptrOf(t.Value),
				QuoteOption: string(t.QuoteOption),
			})
		}
		for _, t := range dim.Choices {
			wd.Options = append(wd.Options, WireCoverOption{
				CoverOption: capitalize(t.Choice),
				PricingType: string(t.PricingType),
				Value:       ptrOf(t.Value),
				QuoteOption: string(t.QuoteOption),
			})
		}
		for _, t := range dim.Clauses {
			wd.Clauses = append(wd.Clauses, WireClause{
				Code:        t.Code,
				Condition:   t.Condition,
				PricingType: string(t.PricingType),
				Value:       ptrOf(t.Value),
				QuoteOption: string(t.QuoteOption),
			})
		}
		payload.Dimensions = append(payload.Dimensions, wd)
	}
	return payload
}

func ptrOf(x float64) *float64 { return &x }

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
