package configstore

import (
	"reflect"
	"testing"

	"github.com/opensure/kestrel/internal/domain"
)

func wp(x float64) *float64 { return &x }

func TestBuildDraftRanges(t *testing.T) {
	payload := &WirePayload{
		InsurerID: "acme",
		ProductID: "contractors-all-risks",
		Dimensions: []WireDimension{{
			Dimension: "project_duration",
			IsActive:  true,
			Ranges: []WireRange{
				{FromMonths: wp(0), ToMonths: wp(12), PricingType: "FIXED_RATE", LoadingDiscount: wp(-0.05), QuoteOption: "AUTO_QUOTE", DisplayOrder: 1},
				{FromMonths: wp(12), ToMonths: wp(24), PricingType: "PERCENTAGE", Value: wp(0), QuoteOption: "AUTO_QUOTE", DisplayOrder: 2},
				{FromMonths: wp(24), ToMonths: wp(999), PricingType: "PERCENTAGE", Value: wp(0.10), QuoteOption: "QUOTE_AND_REFER", DisplayOrder: 3},
			},
		}},
	}

	draft, err := BuildDraft(payload)
	if err != nil {
		t.Fatalf("BuildDraft: %v", err)
	}

	dim := draft.Dimensions[domain.DimProjectDuration]
	if dim == nil {
		t.Fatal("project_duration missing")
	}
	if dim.Kind != domain.KindRange || !dim.Active {
		t.Fatalf("dimension = %+v", dim)
	}
	if len(dim.Ranges) != 3 {
		t.Fatalf("ranges = %d", len(dim.Ranges))
	}

	first := dim.Ranges[0]
	// FIXED_RATE is the legacy spelling of PERCENTAGE, and
	// loading_discount of value.
	if first.PricingType != domain.PricingPercentage {
		t.Errorf("pricing = %s", first.PricingType)
	}
	if first.Value != -0.05 {
		t.Errorf("value = %g", first.Value)
	}
	if first.To == nil || *first.To != 12 {
		t.Errorf("to = %v", first.To)
	}

	// The 999 sentinel means open-ended, never a finite bound.
	last := dim.Ranges[2]
	if last.To != nil {
		t.Errorf("sentinel bound survived: %v", *last.To)
	}
	if last.QuoteOption != domain.QuoteAndRefer {
		t.Errorf("quote option = %s", last.QuoteOption)
	}
}

func TestBuildDraftNullUpperBound(t *testing.T) {
	payload := &WirePayload{
		InsurerID: "acme",
		ProductID: "contractors-all-risks",
		Dimensions: []WireDimension{{
			Dimension: "sum_insured",
			IsActive:  true,
			Ranges: []WireRange{
				{FromAmount: wp(0), ToAmount: wp(1_000_000), PricingType: "PERCENTAGE", Value: wp(0)},
				{FromAmount: wp(1_000_000), PricingType: "PERCENTAGE", Value: wp(0.08)},
			},
		}},
	}
	draft, err := BuildDraft(payload)
	if err != nil {
		t.Fatalf("BuildDraft: %v", err)
	}
	tiers := draft.Dimensions[domain.DimSumInsured].Ranges
	if tiers[1].To != nil {
		t.Fatalf("null upper bound not open-ended: %v", *tiers[1].To)
	}
}

func TestBuildDraftCategoriesAndOptions(t *testing.T) {
	payload := &WirePayload{
		InsurerID: "acme",
		ProductID: "contractors-all-risks",
		Dimensions: []WireDimension{
			{
				Dimension: "soil_type",
				IsActive:  true,
				Categories: []WireCategory{
					{Name: "Clay", RiskBucket: "high", PricingType: "PERCENTAGE", Value: wp(0.15), QuoteOption: "QUOTE_AND_REFER"},
					{Label: "Sand", RiskBucket: "MODERATE", PricingType: "PERCENTAGE", Value: wp(0.05), QuoteOption: "AUTO_QUOTE"},
				},
			},
			{
				Dimension: "cross_liability",
				IsActive:  true,
				Options: []WireCoverOption{
					{CoverOption: "Yes", PricingType: "FIXED_AMOUNT", Value: wp(500), QuoteOption: "AUTO_QUOTE"},
					{CoverOption: "No", PricingType: "FIXED_AMOUNT", Value: wp(0), QuoteOption: "AUTO_QUOTE"},
				},
			},
		},
	}

	draft, err := BuildDraft(payload)
	if err != nil {
		t.Fatalf("BuildDraft: %v", err)
	}

	soil := draft.Dimensions[domain.DimSoilType]
	if soil.Kind != domain.KindCategorical {
		t.Fatalf("soil kind = %s", soil.Kind)
	}
	// The name alias and lowercase bucket are both normalized.
	if soil.Labels[0].Label != "Clay" || soil.Labels[0].RiskBucket != domain.RiskHigh {
		t.Errorf("first label = %+v", soil.Labels[0])
	}

	cross := draft.Dimensions[domain.DimCrossLiability]
	if cross.Kind != domain.KindBinary {
		t.Fatalf("cross kind = %s", cross.Kind)
	}
	if cross.Choices[0].Choice != "yes" || cross.Choices[1].Choice != "no" {
		t.Errorf("choices = %+v", cross.Choices)
	}
}

func TestBuildDraftRejectsBadRows(t *testing.T) {
	cases := []struct {
		name string
		dim  WireDimension
	}{
		{"unknown pricing type", WireDimension{
			Dimension: "plant",
			Ranges:    []WireRange{{FromAmount: wp(0), PricingType: "SURCHARGE"}},
		}},
		{"unknown quote option", WireDimension{
			Dimension: "plant",
			Ranges:    []WireRange{{FromAmount: wp(0), PricingType: "PERCENTAGE", QuoteOption: "MAYBE"}},
		}},
		{"bad cover option", WireDimension{
			Dimension: "cross_liability",
			Options:   []WireCoverOption{{CoverOption: "Perhaps", PricingType: "PERCENTAGE"}},
		}},
		{"empty dimension", WireDimension{Dimension: "plant"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildDraft(&WirePayload{
				InsurerID:  "acme",
				ProductID:  "contractors-all-risks",
				Dimensions: []WireDimension{tc.dim},
			})
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestWireRoundTrip(t *testing.T) {
	catalog := &domain.RuleCatalog{
		InsurerID: "acme",
		ProductID: "contractors-all-risks",
		Version:   3,
		Dimensions: map[domain.DimensionKey]*domain.Dimension{
			domain.DimProjectDuration: {
				Key: domain.DimProjectDuration, Kind: domain.KindRange, Active: true,
				Ranges: []domain.RangeTier{
					{From: 0, To: wp(12), PricingType: domain.PricingPercentage, Value: -0.05, QuoteOption: domain.AutoQuote, DisplayOrder: 1},
					{From: 12, PricingType: domain.PricingPercentage, Value: 0.10, QuoteOption: domain.NoQuote, DisplayOrder: 2},
				},
			},
			domain.DimSoilType: {
				Key: domain.DimSoilType, Kind: domain.KindCategorical, Active: false,
				Labels: []domain.CategoricalTier{
					{Label: "Clay", RiskBucket: domain.RiskHigh, PricingType: domain.PricingPercentage, Value: 0.15, QuoteOption: domain.QuoteAndRefer},
				},
			},
			domain.DimCrossLiability: {
				Key: domain.DimCrossLiability, Kind: domain.KindBinary, Active: true,
				Choices: []domain.BinaryChoiceTier{
					{Choice: "yes", PricingType: domain.PricingFixedAmount, Value: 500, QuoteOption: domain.AutoQuote},
					{Choice: "no", PricingType: domain.PricingFixedAmount, Value: 0, QuoteOption: domain.AutoQuote},
				},
			},
			domain.DimClausePricing: {
				Key: domain.DimClausePricing, Kind: domain.KindClause, Active: true,
				Clauses: []domain.ClauseTier{
					{Code: "MR004", Condition: `attr["sum_insured"] > 1000000.0`, PricingType: domain.PricingPercentage, Value: 0.02, QuoteOption: domain.AutoQuote},
				},
			},
		},
	}

	back, err := BuildDraft(ExportWire(catalog))
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if !reflect.DeepEqual(catalog.Dimensions, back.Dimensions) {
		t.Fatalf("dimensions changed across round trip:\nwant %+v\ngot  %+v", catalog.Dimensions, back.Dimensions)
	}
	if back.Version != catalog.Version {
		t.Errorf("version = %d", back.Version)
	}
}
