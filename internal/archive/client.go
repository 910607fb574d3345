// Package archive is the HTTP client for the upstream archive service: it
// POSTs queries to /query, GETs /status for the current archive height,
// and retries transient failures on a fixed backoff schedule, reporting
// each retry to an optional RetryObserver.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/archivehq/evm-processor/internal/query"
)

// requestTimeout bounds a single HTTP attempt; a timeout counts as a
// retryable transport error.
const requestTimeout = 60 * time.Second

// RetryObserver is invoked on every retry. req is the query document being
// retried, or nil when the retry happened while polling /status.
type RetryObserver func(err error, req *query.Document, consecutiveErrors int, backoffMs int64)

// ErrorDetail is one entry of the archive's `errors` envelope field.
type ErrorDetail struct {
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// QueryResponse is the body returned by POST /query.
type QueryResponse struct {
	Status        string            `json:"status"`
	Data          [][]json.RawMessage `json:"data"`
	NextBlock     uint64            `json:"nextBlock"`
	ArchiveHeight int64             `json:"archiveHeight"`
	Metrics       json.RawMessage   `json:"metrics,omitempty"`
	Errors        []ErrorDetail     `json:"errors,omitempty"`
}

// statusResponse is the body returned by GET /status.
type statusResponse struct {
	ParquetBlockNumber int64 `json:"parquetBlockNumber"`
	DBMaxBlockNumber   int64 `json:"dbMaxBlockNumber"`
	DBMinBlockNumber   int64 `json:"dbMinBlockNumber"`
}

// Client is the retrying HTTP client for one archive endpoint.
type Client struct {
	baseURL    string
	squidID    string
	httpClient *http.Client
	limiter    *rate.Limiter
	onRetry    RetryObserver
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithHTTPClient overrides the underlying *http.Client (e.g. for tests
// that need a custom Transport).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimiter caps outgoing request rate to the archive endpoint.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithRetryObserver installs the onRetry callback. cmd/processor installs
// one that writes a structured log line per retry; no retry metric is
// recorded.
func WithRetryObserver(o RetryObserver) Option {
	return func(c *Client) { c.onRetry = o }
}

// New builds a Client against baseURL, sending squidID on every request
// via the x-squid-id header.
func New(baseURL, squidID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		squidID:    squidID,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(20), 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query POSTs body to /query and returns the decoded response, retrying
// transient failures on the fixed backoff schedule.
func (c *Client) Query(ctx context.Context, body query.Document) (*QueryResponse, error) {
	var (
		result      *QueryResponse
		consecutive int
	)

	op := func() error {
		data, err := c.do(ctx, http.MethodPost, "/query", body)
		if err != nil {
			return err
		}
		var qr QueryResponse
		if err := json.Unmarshal(data, &qr); err != nil {
			return backoff.Permanent(fmt.Errorf("archive: decode query response: %w", err))
		}
		if len(qr.Errors) > 0 {
			return backoff.Permanent(&ArchiveError{Messages: errorMessages(qr.Errors)})
		}
		result = &qr
		return nil
	}

	notify := func(err error, d time.Duration) {
		consecutive++
		if c.onRetry != nil {
			c.onRetry(err, &body, consecutive, d.Milliseconds())
		}
	}

	if err := backoff.RetryNotify(op, newFixedSchedule(), notify); err != nil {
		return nil, err
	}
	return result, nil
}

// GetHeight fetches the archive's current queryable height. It remaps 0
// to -1 ("no data yet"). height = parquetBlockNumber > dbMinBlockNumber ?
// dbMaxBlockNumber : parquetBlockNumber.
func (c *Client) GetHeight(ctx context.Context) (int64, error) {
	var (
		height      int64
		consecutive int
	)

	op := func() error {
		data, err := c.do(ctx, http.MethodGet, "/status", nil)
		if err != nil {
			return err
		}
		var st statusResponse
		if err := json.Unmarshal(data, &st); err != nil {
			return backoff.Permanent(fmt.Errorf("archive: decode status response: %w", err))
		}
		h := st.ParquetBlockNumber
		if st.ParquetBlockNumber > st.DBMinBlockNumber {
			h = st.DBMaxBlockNumber
		}
		if h == 0 {
			h = -1
		}
		height = h
		return nil
	}

	notify := func(err error, d time.Duration) {
		consecutive++
		if c.onRetry != nil {
			c.onRetry(err, nil, consecutive, d.Milliseconds())
		}
	}

	if err := backoff.RetryNotify(op, newFixedSchedule(), notify); err != nil {
		return 0, err
	}
	return height, nil
}

// do performs one HTTP round-trip, classifying the result as a plain
// error (retryable) or a backoff.Permanent error (fatal).
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
	}

	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("archive: marshal request: %w", err))
		}
		reader = bytes.NewReader(b)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("archive: build request: %w", err))
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("accept-encoding", "gzip, br")
	if payload != nil {
		req.Header.Set("content-type", "application/json")
	}
	req.Header.Set("x-squid-id", c.squidID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		te := &TransportError{URL: path, Err: err, Retryable: isRetryableTransportErr(err)}
		if te.Retryable {
			return nil, te
		}
		return nil, backoff.Permanent(te)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("archive: read response body: %w", err))
	}

	if isRetryableStatus(resp.StatusCode) {
		return nil, &TransportError{URL: path, Err: fmt.Errorf("http %d", resp.StatusCode), Retryable: true}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backoff.Permanent(&TransportError{
			URL:       path,
			Err:       fmt.Errorf("http %d: %s", resp.StatusCode, truncate(data, 256)),
			Retryable: false,
		})
	}

	return data, nil
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable:
		return true
	default:
		return false
	}
}

// isRetryableTransportErr classifies connection-reset/DNS/timeout
// transport failures as retryable; everything else (malformed URL, TLS
// verification failure, ...) is fatal.
func isRetryableTransportErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "EOF")
}

func errorMessages(details []ErrorDetail) []string {
	out := make([]string, len(details))
	for i, d := range details {
		out[i] = d.Message
	}
	return out
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
