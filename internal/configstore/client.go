package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/opensure/kestrel/internal/domain"
)

// ErrNotConfigured is returned when the store has no rating
// configuration for the requested insurer/product pair.
var ErrNotConfigured = errors.New("no rating configuration in store")

// Client fetches draft rating configurations over the store's REST API.
// Fetch timeouts live here; the evaluation path never waits on the
// store.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a configuration store client.
func NewClient(cfg domain.ConfigStoreConfig, logger *slog.Logger) *Client {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// FetchDraft retrieves and normalizes the current rating configuration
// for one insurer/product pair. The result is a draft: callers must
// validate before publishing.
func (c *Client) FetchDraft(ctx context.Context, insurerID, productID string) (*domain.RuleCatalog, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/insurers/%s/products/%s/rating-config",
		c.baseURL, url.PathEscape(insurerID), url.PathEscape(productID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build store request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rating config: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s/%s", ErrNotConfigured, insurerID, productID)
	default:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("store returned status %d for %s/%s", resp.StatusCode, insurerID, productID)
	}

	var payload WirePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode rating config: %w", err)
	}
	if payload.InsurerID == "" {
		payload.InsurerID = insurerID
	}
	if payload.ProductID == "" {
		payload.ProductID = productID
	}

	draft, err := BuildDraft(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize rating config for %s/%s: %w", insurerID, productID, err)
	}

	c.logger.Debug("fetched rating config draft",
		"insurer_id", insurerID,
		"product_id", productID,
		"dimensions", len(draft.Dimensions))
	return draft, nil
}
