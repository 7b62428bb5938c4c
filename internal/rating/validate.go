package rating

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opensure/kestrel/internal/domain"
)

// Validate checks every dimension of a draft catalog against the catalog
// invariants and returns all violations found, not just the first.
// Inactive dimensions are validated too: a broken dimension should be
// caught while it is being edited, not when it is switched on.
func Validate(draft *domain.RuleCatalog) *ValidationReport {
	report := &ValidationReport{Valid: true}

	keys := make([]domain.DimensionKey, 0, len(draft.Dimensions))
	for k := range draft.Dimensions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, key := range keys {
		dim := draft.Dimensions[key]
		switch dim.Kind {
		case domain.KindRange:
			validateRanges(report, key, dim.Ranges)
		case domain.KindCategorical:
			validateLabels(report, key, dim.Labels)
		case domain.KindBinary:
			validateChoices(report, key, dim.Choices)
		case domain.KindClause:
			validateClauses(report, key, dim.Clauses)
		}
	}

	for _, issue := range report.Issues {
		if issue.Severity == SeverityError {
			report.Valid = false
			break
		}
	}
	return report
}

func addIssue(r *ValidationReport, code ConfigCode, key domain.DimensionKey, sev Severity, format string, args ...any) {
	r.Issues = append(r.Issues, &ConfigurationError{
		Code:      code,
		Dimension: key,
		Severity:  sev,
		Detail:    fmt.Sprintf(format, args...),
	})
}

// validateRanges checks total ordering, overlap, gaps and the trailing
// open-ended sentinel of one numeric dimension.
func validateRanges(r *ValidationReport, key domain.DimensionKey, tiers []domain.RangeTier) {
	if len(tiers) == 0 {
		return
	}

	sorted := append([]domain.RangeTier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })

	for i := range sorted {
		tier := &sorted[i]

		if tier.To != nil && *tier.To <= tier.From {
			addIssue(r, ConfigInvalidTierBound, key, SeverityError,
				"tier [%g, %g) has non-positive width", tier.From, *tier.To)
		}

		if tier.OpenEnded() && i != len(sorted)-1 {
			addIssue(r, ConfigOverlappingRange, key, SeverityError,
				"open-ended tier starting at %g is not the last tier", tier.From)
			continue
		}

		if i == 0 {
			continue
		}
		prev := &sorted[i-1]
		switch {
		case prev.To == nil:
			// Already reported above as a misplaced open-ended tier.
		case *prev.To > tier.From:
			addIssue(r, ConfigOverlappingRange, key, SeverityError,
				"tier starting at %g overlaps previous tier ending at %g", tier.From, *prev.To)
		case *prev.To < tier.From:
			// A finite hole: legal for the resolver only below the lowest
			// tier, so an interior hole is surfaced for the editor.
			addIssue(r, ConfigGapInRange, key, SeverityWarning,
				"gap between %g and %g is not covered by any tier", *prev.To, tier.From)
		}
	}

	if last := sorted[len(sorted)-1]; !last.OpenEnded() {
		addIssue(r, ConfigMissingOpenEndedTier, key, SeverityError,
			"last tier ends at %g; dimension has no open-ended tier", *last.To)
	}
}

// validateLabels checks that each label belongs to exactly one bucket.
// Comparison is case-insensitive, mirroring how labels are resolved.
func validateLabels(r *ValidationReport, key domain.DimensionKey, tiers []domain.CategoricalTier) {
	seen := make(map[string]domain.RiskBucket, len(tiers))
	for _, tier := range tiers {
		label := strings.ToLower(strings.TrimSpace(tier.Label))
		if label == "" {
			addIssue(r, ConfigDuplicateLabel, key, SeverityError, "empty label")
			continue
		}
		if bucket, dup := seen[label]; dup {
			addIssue(r, ConfigDuplicateLabel, key, SeverityError,
				"label %q assigned to both %s and %s buckets", tier.Label, bucket, tier.RiskBucket)
			continue
		}
		seen[label] = tier.RiskBucket
	}
}

func validateChoices(r *ValidationReport, key domain.DimensionKey, tiers []domain.BinaryChoiceTier) {
	seen := make(map[string]bool, 2)
	for _, tier := range tiers {
		choice := strings.ToLower(strings.TrimSpace(tier.Choice))
		if choice != "yes" && choice != "no" {
			addIssue(r, ConfigInvalidBinaryChoice, key, SeverityError,
				"choice %q is not yes/no", tier.Choice)
			continue
		}
		if seen[choice] {
			addIssue(r, ConfigInvalidBinaryChoice, key, SeverityError,
				"choice %q configured twice", tier.Choice)
			continue
		}
		seen[choice] = true
	}
}

func validateClauses(r *ValidationReport, key domain.DimensionKey, tiers []domain.ClauseTier) {
	env, err := newClauseEnv()
	if err != nil {
		addIssue(r, ConfigInvalidClauseCondition, key, SeverityError,
			"clause environment unavailable: %v", err)
		return
	}

	seen := make(map[string]bool, len(tiers))
	for _, tier := range tiers {
		code := strings.TrimSpace(tier.Code)
		if code == "" {
			addIssue(r, ConfigDuplicateClauseCode, key, SeverityError, "empty clause code")
			continue
		}
		if seen[strings.ToLower(code)] {
			addIssue(r, ConfigDuplicateClauseCode, key, SeverityError,
				"clause %q configured twice", tier.Code)
			continue
		}
		seen[strings.ToLower(code)] = true

		if tier.Condition == "" {
			continue
		}
		if _, err := compileClauseCondition(env, tier.Condition); err != nil {
			addIssue(r, ConfigInvalidClauseCondition, key, SeverityError,
				"clause %q: %v", tier.Code, err)
		}
	}
}
