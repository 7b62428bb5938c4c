package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensure/kestrel/internal/configstore"
	"github.com/opensure/kestrel/internal/domain"
	"github.com/opensure/kestrel/internal/rating"
)

// catalogCacheTTL bounds how long a published catalog version stays in
// the cache. Versions are immutable, so a long TTL is safe.
const catalogCacheTTL = time.Hour

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *rating.Engine
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rating.Engine, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		version: version,
	}
}

// EvaluateRequest is the request body for POST /evaluate.
type EvaluateRequest struct {
	QuoteID     string                          `json:"quoteId,omitempty"`
	ProductID   string                          `json:"productId"`
	BasePremium float64                         `json:"basePremium"`
	Numeric     map[domain.DimensionKey]float64 `json:"numeric,omitempty"`
	Labels      map[domain.DimensionKey]string  `json:"labels,omitempty"`
	Choices     map[domain.DimensionKey]bool    `json:"choices,omitempty"`
	Clauses     []string                        `json:"clauses,omitempty"`
}

// Evaluate handles POST /evaluate requests. A quote the catalog cannot
// price (unconfigured input) is still a successful evaluation: the
// response carries a NO_QUOTE decision and an explanation, not a 5xx.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	insurerID := GetInsurerID(ctx)
	traceID := GetTraceID(ctx)

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "productId is required",
		})
		return
	}
	if req.BasePremium <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "basePremium must be positive",
		})
		return
	}

	quote := &domain.QuoteContext{
		QuoteID:     req.QuoteID,
		InsurerID:   insurerID,
		ProductID:   req.ProductID,
		BasePremium: req.BasePremium,
		Numeric:     req.Numeric,
		Labels:      req.Labels,
		Choices:     req.Choices,
		Clauses:     req.Clauses,
	}

	result, evalErr := h.engine.Evaluate(quote)
	if result == nil {
		if errors.Is(evalErr, rating.ErrCatalogNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "no published catalog for " + insurerID + "/" + req.ProductID,
			})
			return
		}
		slog.Error("evaluation failed", "error", evalErr, "insurer_id", insurerID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "evaluation failed",
		})
		return
	}

	var evalFailure *rating.EvaluationError
	if errors.As(evalErr, &evalFailure) {
		slog.Warn("quote declined on unconfigured input",
			"insurer_id", insurerID,
			"dimension", evalFailure.Dimension,
			"input", evalFailure.Input,
		)
	}

	result.Metadata.TraceID = traceID

	if h.repo != nil {
		if err := h.repo.SaveEvaluation(ctx, insurerID, result); err != nil {
			slog.Error("failed to save evaluation", "id", result.EvaluationID, "error", err)
		}
	}

	if h.cache != nil {
		if _, err := h.cache.IncrementCounter(ctx, insurerID, "evaluations", 24*time.Hour); err != nil {
			slog.Warn("failed to increment evaluation counter", "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(result)
		if err := h.bus.Publish(ctx, insurerID, domain.TopicQuoteEvaluated, payload); err != nil {
			slog.Warn("failed to publish evaluation event", "error", err)
		}
		if result.Decision == domain.NoQuote {
			if err := h.bus.Publish(ctx, insurerID, domain.TopicQuoteDeclined, payload); err != nil {
				slog.Warn("failed to publish decline event", "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// ValidateCatalog handles POST /catalogs/validate. The draft arrives in
// store wire format and is normalized before validation; nothing is
// published.
func (h *Handler) ValidateCatalog(w http.ResponseWriter, r *http.Request) {
	insurerID := GetInsurerID(r.Context())

	draft, ok := h.decodeDraft(w, r, insurerID)
	if !ok {
		return
	}

	report := h.engine.Validate(draft)
	writeJSON(w, http.StatusOK, report)
}

// PublishCatalog handles POST /catalogs. The draft is validated and, if
// clean, becomes the current catalog version atomically; in-flight
// evaluations keep the version they started with.
func (h *Handler) PublishCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	insurerID := GetInsurerID(ctx)

	draft, ok := h.decodeDraft(w, r, insurerID)
	if !ok {
		return
	}

	published, report, err := h.engine.Publish(draft)
	if err != nil {
		if errors.Is(err, rating.ErrInvalidCatalog) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":  "catalog failed validation",
				"report": report,
			})
			return
		}
		slog.Error("failed to publish catalog", "insurer_id", insurerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to publish catalog",
		})
		return
	}

	// The engine swap already happened, so a persistence failure leaves
	// the version live but unrecoverable across restarts. Keep serving
	// it, but tell the caller.
	var persistErr error
	if h.repo != nil {
		if err := h.repo.SaveCatalog(ctx, insurerID, published); err != nil {
			persistErr = err
			slog.Error("failed to persist catalog",
				"insurer_id", insurerID,
				"product_id", published.ProductID,
				"version", published.Version,
				"error", err,
			)
		}
	}

	if h.cache != nil {
		if err := h.cache.SetCatalog(ctx, insurerID, published, catalogCacheTTL); err != nil {
			slog.Warn("failed to cache catalog", "error", err)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(map[string]any{
			"insurerId": published.InsurerID,
			"productId": published.ProductID,
			"version":   published.Version,
		})
		if err := h.bus.Publish(ctx, insurerID, domain.TopicCatalogPublished, payload); err != nil {
			slog.Warn("failed to publish catalog event", "error", err)
		}
	}

	slog.Info("catalog published",
		"insurer_id", published.InsurerID,
		"product_id", published.ProductID,
		"version", published.Version,
	)
	resp := map[string]any{
		"catalog": published,
		"report":  report,
	}
	if persistErr != nil {
		resp["persistenceError"] = "catalog is live but was not persisted: " + persistErr.Error()
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetCurrentCatalog handles GET /catalogs/{product}/current. The live
// engine is authoritative; the repository serves cold starts.
func (h *Handler) GetCurrentCatalog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	insurerID := GetInsurerID(ctx)
	productID := chi.URLParam(r, "product")

	if catalog, ok := h.engine.Current(insurerID, productID); ok {
		writeJSON(w, http.StatusOK, catalog)
		return
	}

	if h.repo != nil {
		catalog, err := h.repo.GetCurrentCatalog(ctx, insurerID, productID)
		if err == nil {
			writeJSON(w, http.StatusOK, catalog)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "no published catalog for " + insurerID + "/" + productID,
	})
}

// GetCatalogVersion handles GET /catalogs/{product}/versions/{version}.
// Immutable versions are cached on first read.
func (h *Handler) GetCatalogVersion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	insurerID := GetInsurerID(ctx)
	productID := chi.URLParam(r, "product")

	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "version must be a positive integer",
		})
		return
	}

	if h.cache != nil {
		if catalog, err := h.cache.GetCatalog(ctx, insurerID, productID, version); err == nil && catalog != nil {
			writeJSON(w, http.StatusOK, catalog)
			return
		}
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	catalog, err := h.repo.GetCatalog(ctx, insurerID, productID, version)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "catalog version not found",
		})
		return
	}

	if h.cache != nil {
		if err := h.cache.SetCatalog(ctx, insurerID, catalog, catalogCacheTTL); err != nil {
			slog.Warn("failed to cache catalog", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, catalog)
}

// ListCatalogVersions handles GET /catalogs/{product}/versions.
func (h *Handler) ListCatalogVersions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	insurerID := GetInsurerID(ctx)
	productID := chi.URLParam(r, "product")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	versions, err := h.repo.ListCatalogVersions(ctx, insurerID, productID)
	if err != nil {
		slog.Error("failed to list catalog versions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list catalog versions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"productId": productID,
		"versions":  versions,
		"count":     len(versions),
	})
}

// ExportCatalog handles GET /catalogs/{product}/export. The current
// catalog is returned in store wire format so the editor can round-trip
// it back through validate/publish.
func (h *Handler) ExportCatalog(w http.ResponseWriter, r *http.Request) {
	insurerID := GetInsurerID(r.Context())
	productID := chi.URLParam(r, "product")

	catalog, ok := h.engine.Current(insurerID, productID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no published catalog for " + insurerID + "/" + productID,
		})
		return
	}

	writeJSON(w, http.StatusOK, configstore.ExportWire(catalog))
}

// GetEvaluation retrieves an evaluation by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	insurerID := GetInsurerID(ctx)
	evalID := chi.URLParam(r, "id")

	if evalID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "evaluation id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	eval, err := h.repo.GetEvaluation(ctx, insurerID, evalID)
	if err != nil {
		slog.Error("failed to get evaluation", "id", evalID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "evaluation not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, eval)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   status,
		"version":  h.version,
		"catalogs": h.engine.CatalogCount(),
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// decodeDraft reads a store wire payload from the request body and
// normalizes it into a draft catalog. The insurer from the request
// header always wins over the one in the payload.
func (h *Handler) decodeDraft(w http.ResponseWriter, r *http.Request, insurerID string) (*domain.RuleCatalog, bool) {
	var payload configstore.WirePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return nil, false
	}

	payload.InsurerID = insurerID
	if payload.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "product_id is required",
		})
		return nil, false
	}

	draft, err := configstore.BuildDraft(&payload)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "malformed catalog payload: " + err.Error(),
		})
		return nil, false
	}

	return draft, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
