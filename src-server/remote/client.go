package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"elastiview/src-server/occurrence"
)

const maxRetries = 3

// APIError is a non-2xx response from the recurrence store.
type APIError struct {
	StatusCode int
	// first 512 bytes of the response body
	Body string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("recurrence store: HTTP %d: %s", e.StatusCode, e.Body)
}

// Client talks to the remote recurrence store. 5xx responses are
// retried with exponential backoff; everything else surfaces as a
// typed *APIError.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// called with each round trip's duration, for metrics; may be nil
	onLatency func(time.Duration)
}

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLatencyHook installs a per-request latency callback.
func WithLatencyHook(hook func(time.Duration)) Option {
	return func(c *Client) {
		c.onLatency = hook
	}
}

// New creates a Client against the store's base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetRecurrence fetches one recurrence by id.
func (c *Client) GetRecurrence(ctx context.Context, id string) (*occurrence.Recurrence, error) {
	rec := new(occurrence.Recurrence)
	if err := c.do(ctx, http.MethodGet, "/recurrences/"+url.PathEscape(id), nil, rec); err != nil {
		return nil, fmt.Errorf("GetRecurrence: %w", err)
	}
	return rec, nil
}

// UpdateRecurrence replaces a recurrence's type and payload.
func (c *Client) UpdateRecurrence(ctx context.Context, id string, recType occurrence.RecurrenceType, payload *occurrence.Payload) error {
	body := map[string]any{"type": recType, "payload": payload}
	if err := c.do(ctx, http.MethodPut, "/recurrences/"+url.PathEscape(id), body, nil); err != nil {
		return fmt.Errorf("UpdateRecurrence: %w", err)
	}
	return nil
}

// CreateRecurrence creates a recurrence and returns the stored record
// with its assigned id.
func (c *Client) CreateRecurrence(ctx context.Context, recType occurrence.RecurrenceType, payload *occurrence.Payload) (*occurrence.Recurrence, error) {
	body := map[string]any{"type": recType, "payload": payload}
	created := new(occurrence.Recurrence)
	if err := c.do(ctx, http.MethodPost, "/recurrences", body, created); err != nil {
		return nil, fmt.Errorf("CreateRecurrence: %w", err)
	}
	return created, nil
}

// DeleteRecurrence removes a recurrence by id.
func (c *Client) DeleteRecurrence(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/recurrences/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("DeleteRecurrence: %w", err)
	}
	return nil
}

// ListOccurrences fetches the occurrence feed for [start, end).
func (c *Client) ListOccurrences(ctx context.Context, start, end time.Time) ([]*occurrence.Occurrence, error) {
	query := url.Values{}
	query.Set("start", start.UTC().Format(time.RFC3339))
	query.Set("end", end.UTC().Format(time.RFC3339))
	occs := make([]*occurrence.Occurrence, 0)
	if err := c.do(ctx, http.MethodGet, "/blobs?"+query.Encode(), nil, &occs); err != nil {
		return nil, fmt.Errorf("ListOccurrences: %w", err)
	}
	return occs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("do: marshal body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(1<<(attempt-1)) * time.Second
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("do: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		started := time.Now()
		resp, err := c.httpClient.Do(req)
		if c.onLatency != nil {
			c.onLatency(time.Since(started))
		}
		if err != nil {
			return fmt.Errorf("do: %w", err)
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("do: read body: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if dest == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, dest); err != nil {
				return fmt.Errorf("do: unmarshal response: %w", err)
			}
			return nil
		}

		bodyStr := string(respBody)
		if len(bodyStr) > 512 {
			bodyStr = bodyStr[:512]
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: bodyStr}
		if resp.StatusCode >= 500 {
			lastErr = apiErr
			continue
		}
		return apiErr
	}
	return lastErr
}
