// Package remote reads pages from a livelogd server.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/livelog/internal/cursor"
	"github.com/abelbrown/livelog/internal/page"
	"github.com/abelbrown/livelog/internal/store"
)

// maxErrorBodyBytes bounds the body read from a non-success response.
// Success bodies are decoded as a stream: a live page has no row limit.
const maxErrorBodyBytes = 64 << 10

// StatusError is a non-success HTTP response.
type StatusError struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client talks to the livelogd HTTP API. It implements page.Source.
type Client struct {
	base    string
	client  *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client for the server at baseURL, issuing at most rps
// requests per second with the given burst. rps <= 0 disables limiting.
func NewClient(baseURL string, rps float64, burst int) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(limit, burst),
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) { c.client = hc }

// FetchPage requests one page. Transport failures and 5xx responses return a
// *page.QueryError; a 400 returns cursor.ErrInvalidCursor.
func (c *Client) FetchPage(ctx context.Context, cur cursor.Cursor) (page.Page, error) {
	if err := cur.Validate(); err != nil {
		return page.Page{}, err
	}

	q := url.Values{}
	q.Set("direction", string(cur.Direction()))
	if !cur.IsNull() {
		q.Set("cursor", strconv.FormatInt(cur.Key().Timestamp, 10))
		if id := cur.Key().ID; id != "" {
			q.Set("cursorId", id)
		}
	}

	var env page.Envelope
	err := c.do(ctx, http.MethodGet, "/api/v1/rows?"+q.Encode(), nil, &env)
	if err != nil {
		return page.Page{}, c.classify(cur, err)
	}
	return env.Page(), nil
}

// Append posts rows to the server and returns how many were new.
func (c *Client) Append(ctx context.Context, rows []store.Row) (int, error) {
	body, err := json.Marshal(rows)
	if err != nil {
		return 0, fmt.Errorf("marshal rows: %w", err)
	}
	var res struct {
		Inserted int `json:"inserted"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/rows", body, &res); err != nil {
		return 0, err
	}
	return res.Inserted, nil
}

// Stats returns the server's row count, bounds and clock.
func (c *Client) Stats(ctx context.Context) (store.Stats, error) {
	var st store.Stats
	if err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &st); err != nil {
		return store.Stats{}, err
	}
	return st, nil
}

func (c *Client) classify(cur cursor.Cursor, err error) error {
	if se, ok := err.(*StatusError); ok && se.Status == http.StatusBadRequest {
		return fmt.Errorf("%w: server: %s", cursor.ErrInvalidCursor, se.Message)
	}
	if se, ok := err.(*StatusError); ok && se.Status < 500 && se.Status != http.StatusTooManyRequests {
		return err
	}
	return &page.QueryError{Direction: cur.Direction(), Cursor: cur.String(), Err: err}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		se := &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var eb struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &eb) == nil && eb.Error != "" {
			se.Message = eb.Error
		}
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
			se.RetryAfter = time.Duration(s) * time.Second
		}
		return se
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
