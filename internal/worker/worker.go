// Package worker provides async quote processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensure/kestrel/internal/domain"
	"github.com/opensure/kestrel/internal/rating"
)

// Worker evaluates quote requests arriving on the EventBus, so quote
// intake can run fire-and-forget against the same engine the HTTP API
// uses.
type Worker struct {
	bus    domain.EventBus
	repo   domain.Repository
	engine *rating.Engine

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// InsurerIDs is the list of insurers to process.
	InsurerIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine *rating.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		repo:   repo,
		engine: engine,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing quote requests for the given insurers.
func (w *Worker) Start(cfg Config) error {
	for _, insurerID := range cfg.InsurerIDs {
		if err := w.startInsurerWorker(insurerID); err != nil {
			slog.Error("failed to start worker for insurer",
				"insurer_id", insurerID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"insurer_count", len(cfg.InsurerIDs),
	)

	return nil
}

// startInsurerWorker subscribes one insurer's quote request topic.
// Each in-flight handler is tracked so Stop can wait for quotes that
// already started processing.
func (w *Worker) startInsurerWorker(insurerID string) error {
	sub, err := w.bus.Subscribe(w.ctx, insurerID, domain.TopicQuoteRequested, func(ctx context.Context, msg *domain.Message) error {
		w.wg.Add(1)
		defer w.wg.Done()
		return w.processQuote(ctx, insurerID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("insurer worker started",
		"insurer_id", insurerID,
		"topic", domain.TopicQuoteRequested,
	)

	return nil
}

// QuoteRequestMessage is the message payload for async quote evaluation.
type QuoteRequestMessage struct {
	QuoteID     string                          `json:"quoteId"`
	InsurerID   string                          `json:"insurerId,omitempty"`
	ProductID   string                          `json:"productId"`
	TraceID     string                          `json:"traceId,omitempty"`
	BasePremium float64                         `json:"basePremium"`
	Numeric     map[domain.DimensionKey]float64 `json:"numeric,omitempty"`
	Labels      map[domain.DimensionKey]string  `json:"labels,omitempty"`
	Choices     map[domain.DimensionKey]bool    `json:"choices,omitempty"`
	Clauses     []string                        `json:"clauses,omitempty"`
}

// processQuote evaluates one quote request through the pipeline.
func (w *Worker) processQuote(ctx context.Context, insurerID string, msg *domain.Message) error {
	start := time.Now()

	// Parse message
	var req QuoteRequestMessage
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		slog.Error("failed to parse quote request",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message insurer if provided
	if req.InsurerID != "" {
		insurerID = req.InsurerID
	}

	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing quote",
		"quote_id", req.QuoteID,
		"insurer_id", insurerID,
		"trace_id", traceID,
	)

	// 1. Evaluate against the current catalog
	result, evalErr := w.engine.Evaluate(&domain.QuoteContext{
		QuoteID:     req.QuoteID,
		InsurerID:   insurerID,
		ProductID:   req.ProductID,
		BasePremium: req.BasePremium,
		Numeric:     req.Numeric,
		Labels:      req.Labels,
		Choices:     req.Choices,
		Clauses:     req.Clauses,
	})
	if result == nil {
		// No catalog: nothing to evaluate against, not even a decline.
		slog.Error("quote evaluation failed",
			"quote_id", req.QuoteID,
			"insurer_id", insurerID,
			"error", evalErr,
		)
		return evalErr
	}
	result.Metadata.TraceID = traceID

	// 2. Save evaluation
	if w.repo != nil {
		if err := w.repo.SaveEvaluation(ctx, insurerID, result); err != nil {
			slog.Error("failed to save evaluation",
				"quote_id", req.QuoteID,
				"error", err,
			)
		}
	}

	// 3. Publish result
	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, insurerID, domain.TopicQuoteEvaluated, resultPayload); err != nil {
		slog.Error("failed to publish evaluation",
			"quote_id", req.QuoteID,
			"error", err,
		)
	}

	// 4. Declines go to their own topic for underwriter follow-up
	if result.Decision == domain.NoQuote {
		if err := w.bus.Publish(ctx, insurerID, domain.TopicQuoteDeclined, resultPayload); err != nil {
			slog.Error("failed to publish decline",
				"quote_id", req.QuoteID,
				"error", err,
			)
		}
	}

	var evaluationErr *rating.EvaluationError
	if errors.As(evalErr, &evaluationErr) {
		slog.Warn("quote declined on unconfigured input",
			"quote_id", req.QuoteID,
			"insurer_id", insurerID,
			"dimension", string(evaluationErr.Dimension),
			"input", evaluationErr.Input,
		)
	}

	slog.Info("quote processed",
		"quote_id", req.QuoteID,
		"insurer_id", insurerID,
		"decision", string(result.Decision),
		"final_premium", result.FinalPremium,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
