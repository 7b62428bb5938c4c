package rating

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"github.com/opensure/kestrel/internal/domain"
)

// EngineVersion is stamped into evaluation metadata.
const EngineVersion = "kestrel-1.0"

// Engine holds the current published catalog version per insurer/product
// pair and evaluates quote contexts against them.
//
// Publication is the only mutating operation: a draft is validated,
// compiled, and installed with an atomic pointer swap, so concurrent
// evaluations always read one complete version. Evaluation itself is
// pure, lock-free and performs no I/O.
type Engine struct {
	mu       sync.RWMutex
	catalogs map[string]*atomic.Pointer[compiledCatalog]
	env      *cel.Env
}

// compiledCatalog is an immutable, lookup-optimized catalog version:
// ranges sorted for binary search, label and choice maps built once,
// clause conditions pre-compiled.
type compiledCatalog struct {
	catalog  *domain.RuleCatalog
	dimOrder []domain.DimensionKey
	ranges   map[domain.DimensionKey][]domain.RangeTier
	labels   map[domain.DimensionKey]labelIndex
	choices  map[domain.DimensionKey]choiceIndex
	clauses  map[domain.DimensionKey]map[string]*compiledClause
}

type compiledClause struct {
	tier    *domain.ClauseTier
	program cel.Program // nil when the clause has no condition
}

// NewEngine creates a rating engine with an empty catalog registry.
func NewEngine() (*Engine, error) {
	env, err := newClauseEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create clause environment: %w", err)
	}
	return &Engine{
		catalogs: make(map[string]*atomic.Pointer[compiledCatalog]),
		env:      env,
	}, nil
}

// Validate runs catalog validation without publishing.
func (e *Engine) Validate(draft *domain.RuleCatalog) *ValidationReport {
	return Validate(draft)
}

// Publish validates a draft and, on success, installs it as the new
// current version for its insurer/product pair. The version number is
// assigned here: one past the current version. On validation failure the
// previous version stays live and the report carries every violation.
func (e *Engine) Publish(draft *domain.RuleCatalog) (*domain.RuleCatalog, *ValidationReport, error) {
	report := Validate(draft)
	if !report.Valid {
		return nil, report, ErrInvalidCatalog
	}

	published := draft.Clone()
	published.PublishedAt = time.Now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	ptr := e.catalogs[published.Key()]
	if ptr == nil {
		ptr = &atomic.Pointer[compiledCatalog]{}
		e.catalogs[published.Key()] = ptr
	}

	published.Version = 1
	if cur := ptr.Load(); cur != nil {
		published.Version = cur.catalog.Version + 1
	}

	compiled, err := e.compile(published)
	if err != nil {
		return nil, report, err
	}

	ptr.Store(compiled)
	return published, report, nil
}

// Load installs an already-published catalog (e.g. read back from the
// repository at startup) keeping its stored version. Older versions
// never replace a newer one already loaded.
func (e *Engine) Load(catalog *domain.RuleCatalog) error {
	report := Validate(catalog)
	if !report.Valid {
		return fmt.Errorf("%w: stored version %d of %s", ErrInvalidCatalog, catalog.Version, catalog.Key())
	}

	compiled, err := e.compile(catalog)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ptr := e.catalogs[catalog.Key()]
	if ptr == nil {
		ptr = &atomic.Pointer[compiledCatalog]{}
		e.catalogs[catalog.Key()] = ptr
	}
	if cur := ptr.Load(); cur != nil && cur.catalog.Version >= catalog.Version {
		return nil
	}
	ptr.Store(compiled)
	return nil
}

// Current returns the live catalog version for an insurer/product pair.
func (e *Engine) Current(insurerID, productID string) (*domain.RuleCatalog, bool) {
	cc := e.lookup(insurerID, productID)
	if cc == nil {
		return nil, false
	}
	return cc.catalog, true
}

// Catalogs returns every live catalog version.
func (e *Engine) Catalogs() []*domain.RuleCatalog {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.RuleCatalog, 0, len(e.catalogs))
	for _, ptr := range e.catalogs {
		if cc := ptr.Load(); cc != nil {
			out = append(out, cc.catalog)
		}
	}
	return out
}

// CatalogCount returns the number of insurer/product pairs with a live
// catalog.
func (e *Engine) CatalogCount() int {
	return len(e.Catalogs())
}

func (e *Engine) lookup(insurerID, productID string) *compiledCatalog {
	e.mu.RLock()
	ptr := e.catalogs[insurerID+"/"+productID]
	e.mu.RUnlock()
	if ptr == nil {
		return nil
	}
	return ptr.Load()
}

// Evaluate resolves every active dimension the context speaks to,
// composes the pricing effects and combines the per-tier decisions.
//
// Dimensions absent from the context are skipped; an unconfigured input
// is a conservative failure: the returned result carries decision
// NO_QUOTE and an explanation, alongside the typed *EvaluationError.
func (e *Engine) Evaluate(q *domain.QuoteContext) (*domain.AdjustmentResult, error) {
	start := time.Now()

	cc := e.lookup(q.InsurerID, q.ProductID)
	if cc == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrCatalogNotFound, q.InsurerID, q.ProductID)
	}

	var (
		contributions []domain.TierContribution
		options       []domain.QuoteOption
		evaluated     int
		skipped       int
	)

	var failure *EvaluationError
	for _, key := range cc.dimOrder {
		dim := cc.catalog.Dimensions[key]

		var (
			contribs []domain.TierContribution
			opts     []domain.QuoteOption
			present  bool
			err      *EvaluationError
		)
		switch dim.Kind {
		case domain.KindRange:
			contribs, opts, present, err = e.evalRange(cc, key, q)
		case domain.KindCategorical:
			contribs, opts, present, err = e.evalLabel(cc, key, q)
		case domain.KindBinary:
			contribs, opts, present, err = e.evalChoice(cc, key, q)
		case domain.KindClause:
			contribs, opts, present, err = e.evalClauses(cc, key, q)
		}

		if err != nil {
			failure = err
			evaluated++
			break
		}
		if !present {
			skipped++
			continue
		}
		evaluated++
		contributions = append(contributions, contribs...)
		options = append(options, opts...)
	}

	comp := Compose(q.BasePremium, contributions)

	result := &domain.AdjustmentResult{
		EvaluationID:    uuid.New().String(),
		QuoteID:         q.QuoteID,
		InsurerID:       q.InsurerID,
		ProductID:       q.ProductID,
		CatalogVersion:  cc.catalog.Version,
		EvaluatedAt:     time.Now().UTC(),
		BasePremium:     q.BasePremium,
		TotalPercentage: comp.TotalPercentage,
		TotalFixed:      comp.TotalFixed,
		FinalPremium:    comp.FinalPremium,
		PerTier:         contributions,
		Decision:        ResolveDecision(options),
		Metadata: domain.EvaluationMetadata{
			DimensionsEvaluated: evaluated,
			DimensionsSkipped:   skipped,
			EvalMicros:          time.Since(start).Microseconds(),
			EngineVersion:       EngineVersion,
		},
	}

	if failure != nil {
		result.Decision = domain.NoQuote
		result.Explanation = failure.Error()
		return result, failure
	}
	return result, nil
}

func (e *Engine) evalRange(cc *compiledCatalog, key domain.DimensionKey, q *domain.QuoteContext) ([]domain.TierContribution, []domain.QuoteOption, bool, *EvaluationError) {
	x, ok := q.Numeric[key]
	if !ok {
		return nil, nil, false, nil
	}
	tier, err := ResolveRange(key, cc.ranges[key], x)
	if err != nil {
		return nil, nil, true, err
	}
	c := contribution(key, tierName(tier), tier.PricingType, tier.Value, tier.QuoteOption)
	return []domain.TierContribution{c}, []domain.QuoteOption{tier.QuoteOption}, true, nil
}

func (e *Engine) evalLabel(cc *compiledCatalog, key domain.DimensionKey, q *domain.QuoteContext) ([]domain.TierContribution, []domain.QuoteOption, bool, *EvaluationError) {
	label, ok := q.Labels[key]
	if !ok || strings.TrimSpace(label) == "" {
		return nil, nil, false, nil
	}
	tier, err := cc.labels[key].resolve(key, label)
	if err != nil {
		return nil, nil, true, err
	}
	c := contribution(key, tier.Label, tier.PricingType, tier.Value, tier.QuoteOption)
	return []domain.TierContribution{c}, []domain.QuoteOption{tier.QuoteOption}, true, nil
}

func (e *Engine) evalChoice(cc *compiledCatalog, key domain.DimensionKey, q *domain.QuoteContext) ([]domain.TierContribution, []domain.QuoteOption, bool, *EvaluationError) {
	elected, ok := q.Choices[key]
	if !ok {
		return nil, nil, false, nil
	}
	tier, err := cc.choices[key].resolve(key, elected)
	if err != nil {
		return nil, nil, true, err
	}
	c := contribution(key, tier.Choice, tier.PricingType, tier.Value, tier.QuoteOption)
	return []domain.TierContribution{c}, []domain.QuoteOption{tier.QuoteOption}, true, nil
}

// evalClauses resolves every selected clause code. A clause whose
// condition evaluates false was selected but is not applicable to this
// quote; it contributes nothing, which is not an error.
func (e *Engine) evalClauses(cc *compiledCatalog, key domain.DimensionKey, q *domain.QuoteContext) ([]domain.TierContribution, []domain.QuoteOption, bool, *EvaluationError) {
	if len(q.Clauses) == 0 {
		return nil, nil, false, nil
	}

	index := cc.clauses[key]
	var contribs []domain.TierContribution
	var opts []domain.QuoteOption

	for _, code := range q.Clauses {
		clause, ok := index[normalizeLabel(code)]
		if !ok {
			return nil, nil, true, &EvaluationError{Code: EvalUnknownLabel, Dimension: key, Input: code}
		}
		if clause.program != nil {
			applies, err := evalClauseCondition(clause.program, q)
			if err != nil {
				return nil, nil, true, &EvaluationError{Code: EvalClauseCondition, Dimension: key, Input: code}
			}
			if !applies {
				continue
			}
		}
		contribs = append(contribs, contribution(key, clause.tier.Code, clause.tier.PricingType, clause.tier.Value, clause.tier.QuoteOption))
		opts = append(opts, clause.tier.QuoteOption)
	}
	return contribs, opts, true, nil
}

// compile builds the lookup structures for one validated catalog.
func (e *Engine) compile(catalog *domain.RuleCatalog) (*compiledCatalog, error) {
	cc := &compiledCatalog{
		catalog: catalog,
		ranges:  make(map[domain.DimensionKey][]domain.RangeTier),
		labels:  make(map[domain.DimensionKey]labelIndex),
		choices: make(map[domain.DimensionKey]choiceIndex),
		clauses: make(map[domain.DimensionKey]map[string]*compiledClause),
	}

	for key, dim := range catalog.Dimensions {
		if !dim.Active {
			continue
		}
		switch dim.Kind {
		case domain.KindRange:
			sorted := append([]domain.RangeTier(nil), dim.Ranges...)
			sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })
			cc.ranges[key] = sorted
		case domain.KindCategorical:
			cc.labels[key] = buildLabelIndex(dim.Labels)
		case domain.KindBinary:
			cc.choices[key] = buildChoiceIndex(dim.Choices)
		case domain.KindClause:
			index := make(map[string]*compiledClause, len(dim.Clauses))
			for i := range dim.Clauses {
				tier := &dim.Clauses[i]
				compiled := &compiledClause{tier: tier}
				if tier.Condition != "" {
					program, err := compileClauseCondition(e.env, tier.Condition)
					if err != nil {
						return nil, fmt.Errorf("clause %q in %s: %w", tier.Code, key, err)
					}
					compiled.program = program
				}
				index[normalizeLabel(tier.Code)] = compiled
			}
			cc.clauses[key] = index
		}
		cc.dimOrder = append(cc.dimOrder, key)
	}

	// Deterministic order keeps audit output stable; the additive
	// composer makes the premium itself order-independent.
	sort.Slice(cc.dimOrder, func(i, j int) bool { return cc.dimOrder[i] < cc.dimOrder[j] })
	return cc, nil
}
