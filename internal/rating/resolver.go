package rating

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/opensure/kestrel/internal/domain"
)

// ResolveRange maps a scalar input to the single matching tier of a
// numeric dimension. Tiers must come from a validated catalog and be
// sorted by From: binary search finds the last tier with From <= x, and
// validation guarantees no tier above can also match. A value below the
// lowest From is a legal lower gap and fails with NoMatchingTier.
func ResolveRange(key domain.DimensionKey, tiers []domain.RangeTier, x float64) (*domain.RangeTier, *EvaluationError) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil, &EvaluationError{Code: EvalNoMatchingTier, Dimension: key, Input: formatFloat(x)}
	}

	// Index of the first tier with From > x; the candidate is the one
	// before it.
	idx := sort.Search(len(tiers), func(i int) bool { return tiers[i].From > x })
	if idx == 0 {
		return nil, &EvaluationError{Code: EvalNoMatchingTier, Dimension: key, Input: formatFloat(x)}
	}

	tier := &tiers[idx-1]
	if !tier.Matches(x) {
		// Interior hole: validation flags these as warnings, so a value
		// can still land in one at runtime.
		return nil, &EvaluationError{Code: EvalNoMatchingTier, Dimension: key, Input: formatFloat(x)}
	}
	return tier, nil
}

// labelIndex is the O(1) label lookup built once per catalog version.
type labelIndex map[string]*domain.CategoricalTier

func buildLabelIndex(tiers []domain.CategoricalTier) labelIndex {
	idx := make(labelIndex, len(tiers))
	for i := range tiers {
		idx[normalizeLabel(tiers[i].Label)] = &tiers[i]
	}
	return idx
}

// ResolveLabel maps a categorical input to its configured tier.
func (idx labelIndex) resolve(key domain.DimensionKey, label string) (*domain.CategoricalTier, *EvaluationError) {
	tier, ok := idx[normalizeLabel(label)]
	if !ok {
		return nil, &EvaluationError{Code: EvalUnknownLabel, Dimension: key, Input: label}
	}
	return tier, nil
}

// choiceIndex resolves binary elections.
type choiceIndex map[string]*domain.BinaryChoiceTier

func buildChoiceIndex(tiers []domain.BinaryChoiceTier) choiceIndex {
	idx := make(choiceIndex, len(tiers))
	for i := range tiers {
		idx[normalizeLabel(tiers[i].Choice)] = &tiers[i]
	}
	return idx
}

func (idx choiceIndex) resolve(key domain.DimensionKey, elected bool) (*domain.BinaryChoiceTier, *EvaluationError) {
	choice := "no"
	if elected {
		choice = "yes"
	}
	tier, ok := idx[choice]
	if !ok {
		return nil, &EvaluationError{Code: EvalUnknownLabel, Dimension: key, Input: choice}
	}
	return tier, nil
}

func normalizeLabel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func formatFloat(x float64) string {
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// tierName renders the audit label for a range tier, e.g. "12-24" or "36+".
func tierName(t *domain.RangeTier) string {
	if t.OpenEnded() {
		return fmt.Sprintf("%g+", t.From)
	}
	return fmt.Sprintf("%g-%g", t.From, *t.To)
}
