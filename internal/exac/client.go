// Package exac queries the ExAC REST service for variant annotations.
package exac

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/inodb/exac-annotator/internal/annotate"
)

// DefaultBaseURL is the ExAC REST server.
const DefaultBaseURL = "http://exac.hms.harvard.edu"

// DefaultTimeout bounds a single HTTP request.
const DefaultTimeout = 60 * time.Second

// DefaultRetries is the number of attempts made for a request that keeps
// failing with a transient error.
const DefaultRetries = 3

const (
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

const (
	variantPath     = "/rest/variant/"
	bulkVariantPath = "/rest/bulk/variant"
	maxErrorBody    = 512
)

// StatusError is returned for an unexpected HTTP status.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("exac: %s returned HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("exac: %s returned HTTP %d: %s", e.URL, e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when repeated.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client looks up variants in ExAC. It implements annotate.Service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	attempts        int
	initialInterval time.Duration
	maxInterval     time.Duration
}

var _ annotate.Service = (*Client)(nil)

// NewClient creates a client for the given base URL; empty means DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:          zap.NewNop(),
		attempts:        DefaultRetries,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
	}
}

// SetTimeout sets the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) {
	c.httpClient.Timeout = d
}

// SetRetries sets how many times a request is attempted before a transient
// failure is returned. Values below 1 mean a single attempt.
func (c *Client) SetRetries(n int) {
	c.attempts = max(n, 1)
}

// SetBackoff sets the first wait between attempts and its upper bound.
func (c *Client) SetBackoff(initial, maxInterval time.Duration) {
	c.initialInterval = initial
	c.maxInterval = maxInterval
}

// SetLogger sets the logger used to report retried requests.
func (c *Client) SetLogger(l *zap.Logger) {
	c.logger = l
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Lookup fetches the annotation for one query key. A 404 or a JSON null body
// yields (nil, nil).
func (c *Client) Lookup(ctx context.Context, key string) (*annotate.Annotation, error) {
	u := c.baseURL + variantPath + url.PathEscape(key)

	var ann *annotate.Annotation
	found, err := c.do(ctx, http.MethodGet, u, nil, &ann)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", key, err)
	}
	if !found {
		return nil, nil
	}
	return ann, nil
}

// BulkLookup fetches annotations for many keys with one request. Keys the
// service does not know map to nil or are absent from the result.
func (c *Client) BulkLookup(ctx context.Context, keys []string) (map[string]*annotate.Annotation, error) {
	if len(keys) == 0 {
		return map[string]*annotate.Annotation{}, nil
	}
	body, err := json.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("encode bulk request: %w", err)
	}

	var anns map[string]*annotate.Annotation
	if _, err := c.do(ctx, http.MethodPost, c.baseURL+bulkVariantPath, body, &anns); err != nil {
		return nil, fmt.Errorf("bulk lookup of %d keys: %w", len(keys), err)
	}
	if anns == nil {
		anns = map[string]*annotate.Annotation{}
	}
	return anns, nil
}

// do sends the request with retries and decodes a 2xx body into out.
// found is false when the server answered 404.
func (c *Client) do(ctx context.Context, method, u string, body []byte, out any) (bool, error) {
	attempt := 0
	op := func() (bool, error) {
		attempt++
		return c.send(ctx, method, u, body, out)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("exac request failed",
			zap.String("method", method),
			zap.String("url", u),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	}
	return backoff.RetryNotifyWithData(op, c.newBackOff(ctx), notify)
}

// newBackOff builds the schedule for one request: exponential waits, bounded
// by the attempt count rather than elapsed time, stopped early by ctx.
func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = c.maxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.attempts-1)), ctx)
}

func (c *Client) send(ctx context.Context, method, u string, body []byte, out any) (bool, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return false, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, backoff.Permanent(err)
		}
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &StatusError{StatusCode: resp.StatusCode, URL: u, Body: strings.TrimSpace(string(msg))}
		if serr.Temporary() {
			return false, serr
		}
		return false, backoff.Permanent(serr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return true, nil
}
