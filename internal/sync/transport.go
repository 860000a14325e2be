package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// BatchResponse is the reconciliation endpoint's reply to a typed batch.
type BatchResponse struct {
	Success bool          `json:"success"`
	Synced  []string      `json:"synced"`
	Failed  []FailedEntry `json:"failed"`
}

// FailedEntry reports a per-entry failure.
type FailedEntry struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// TokenSource returns the current session token for outgoing requests.
type TokenSource func(ctx context.Context) (string, error)

// HTTPDeliverer posts queue entries to the reconciliation endpoint over
// HTTP. Each entry is sent as a typed batch of one so the server applies it
// through the same per-entry dispatch as larger batches.
type HTTPDeliverer struct {
	baseURL string
	token   TokenSource
	client  *http.Client
}

// NewHTTPDeliverer creates an HTTP deliverer. If client is nil a default
// with a 30s timeout is used; per-attempt timeouts come from the
// orchestrator's context.
func NewHTTPDeliverer(baseURL string, token TokenSource, client *http.Client) *HTTPDeliverer {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPDeliverer{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
	}
}

// Deliver posts one entry and interprets the outcome. Network failures,
// timeouts and 5xx responses are retryable; rejections (malformed entry,
// ownership conflict, missing update target) are permanent.
func (d *HTTPDeliverer) Deliver(ctx context.Context, entry Entry) error {
	body, err := json.Marshal([]Entry{entry})
	if err != nil {
		return NewNonRetryableError(fmt.Errorf("marshal entry: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/api/v1/sync", bytes.NewReader(body))
	if err != nil {
		return NewNonRetryableError(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := d.token(ctx)
	if err != nil {
		return NewRetryableError(fmt.Errorf("%w: %v", ErrNotAuthenticated, err))
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(req)
	if err != nil {
		// Timeouts and connection failures follow the retry path.
		return NewRetryableError(fmt.Errorf("deliver entry: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Session expired mid-cycle; retried once it is refreshed.
		return NewRetryableError(ErrNotAuthenticated)
	case resp.StatusCode == http.StatusForbidden:
		return NewNonRetryableError(ErrForbidden)
	case resp.StatusCode >= 500:
		return NewRetryableError(fmt.Errorf("server error: %s", resp.Status))
	case resp.StatusCode >= 400:
		return NewNonRetryableError(fmt.Errorf("%w: %s", ErrRejected, resp.Status))
	}

	var result BatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return NewRetryableError(fmt.Errorf("decode response: %w", err))
	}

	for _, f := range result.Failed {
		if f.ID != entry.ID {
			continue
		}
		if strings.HasPrefix(f.Reason, "forbidden") {
			return NewNonRetryableError(fmt.Errorf("%w: %s", ErrForbidden, f.Reason))
		}
		return NewNonRetryableError(fmt.Errorf("%w: %s", ErrRejected, f.Reason))
	}

	return nil
}
