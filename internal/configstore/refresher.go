package configstore

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"github.com/opensure/kestrel/internal/domain"
	"github.com/opensure/kestrel/internal/rating"
)

// Publisher is the slice of the rating engine the refresher needs:
// publishing fetched drafts and reading the live catalog so unchanged
// store content does not mint a new version.
type Publisher interface {
	Publish(draft *domain.RuleCatalog) (*domain.RuleCatalog, *rating.ValidationReport, error)
	Current(insurerID, productID string) (*domain.RuleCatalog, bool)
}

// Pair identifies one insurer/product rating configuration to keep
// refreshed.
type Pair struct {
	InsurerID string
	ProductID string
}

// Refresher periodically pulls drafts from the store and republishes
// them. A draft that fails validation is logged and dropped; the
// previously published version stays live, so a bad edit in the store
// can never take quoting down.
type Refresher struct {
	client   *Client
	engine   Publisher
	repo     domain.Repository // nil when persistence is disabled
	pairs    []Pair
	interval time.Duration
	logger   *slog.Logger
}

// NewRefresher creates a refresher for a fixed set of pairs.
func NewRefresher(client *Client, engine Publisher, repo domain.Repository, pairs []Pair, interval time.Duration, logger *slog.Logger) *Refresher {
	return &Refresher{
		client:   client,
		engine:   engine,
		repo:     repo,
		pairs:    pairs,
		interval: interval,
		logger:   logger,
	}
}

// Run refreshes all pairs once immediately, then on every tick until
// the context is cancelled.
func (r *Refresher) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("catalog refresh disabled")
		return
	}

	r.logger.Info("starting catalog refresher",
		"interval", r.interval.String(),
		"pairs", len(r.pairs))

	r.refreshAll(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("catalog refresher stopped")
			return
		case <-ticker.C:
			r.refreshAll(ctx)
		}
	}
}

func (r *Refresher) refreshAll(ctx context.Context) {
	for _, pair := range r.pairs {
		if ctx.Err() != nil {
			return
		}
		r.refresh(ctx, pair)
	}
}

func (r *Refresher) refresh(ctx context.Context, pair Pair) {
	draft, err := r.client.FetchDraft(ctx, pair.InsurerID, pair.ProductID)
	if err != nil {
		r.logger.Error("failed to fetch draft",
			"insurer_id", pair.InsurerID,
			"product_id", pair.ProductID,
			"error", err)
		return
	}

	if current, ok := r.engine.Current(pair.InsurerID, pair.ProductID); ok && unchanged(draft, current) {
		r.logger.Debug("store content unchanged, keeping current version",
			"insurer_id", pair.InsurerID,
			"product_id", pair.ProductID,
			"version", current.Version)
		return
	}

	published, report, err := r.engine.Publish(draft)
	if err != nil {
		r.logger.Error("draft rejected, previous version stays live",
			"insurer_id", pair.InsurerID,
			"product_id", pair.ProductID,
			"issues", len(report.Issues),
			"error", err)
		return
	}
	for _, warning := range report.Issues {
		r.logger.Warn("catalog published with warning",
			"insurer_id", pair.InsurerID,
			"product_id", pair.ProductID,
			"code", string(warning.Code),
			"detail", warning.Detail)
	}

	if r.repo != nil {
		if err := r.repo.SaveCatalog(ctx, pair.InsurerID, published); err != nil {
			r.logger.Error("failed to persist published catalog",
				"insurer_id", pair.InsurerID,
				"product_id", pair.ProductID,
				"version", published.Version,
				"error", err)
		}
	}

	r.logger.Info("catalog refreshed",
		"insurer_id", pair.InsurerID,
		"product_id", pair.ProductID,
		"version", published.Version)
}

// unchanged reports whether the fetched draft carries the same content
// as the live catalog. Both sides are compared in canonical wire form,
// version aside, so column aliases and open-end sentinels in the store
// payload do not register as edits.
func unchanged(draft, current *domain.RuleCatalog) bool {
	a := ExportWire(draft)
	b := ExportWire(current)
	a.Version, b.Version = 0, 0
	return reflect.DeepEqual(a, b)
}
