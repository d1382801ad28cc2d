// Package openbd implements catalog.Source against the openBD bibliographic API.
package openbd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

// DefaultBaseURL is the public openBD v1 endpoint.
const DefaultBaseURL = "https://api.openbd.jp/v1"

const maxBodyBytes = 64 << 20

// Config controls the client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int
	RatePerSecond float64
	// RetryInterval is the first backoff delay; it grows exponentially between attempts.
	RetryInterval time.Duration
	UserAgent     string
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openbd: unexpected status %d", e.Code)
}

// Temporary reports whether retrying may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= http.StatusInternalServerError || e.Code == http.StatusTooManyRequests
}

// Client fetches catalog batches from openBD.
type Client struct {
	baseURL       string
	http          *http.Client
	limiter       *rate.Limiter
	maxRetries    int
	retryInterval time.Duration
	userAgent     string
	logger        *zap.Logger
}

// New validates cfg and constructs a Client. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if cfg.MaxRetries < 0 {
		return nil, errors.New("max retries must be >= 0")
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "bookfeed/1.0"
	}
	return &Client{
		baseURL:       base,
		http:          httpClient,
		limiter:       rate.NewLimiter(limit, 1),
		maxRetries:    cfg.MaxRetries,
		retryInterval: interval,
		userAgent:     ua,
		logger:        logger,
	}, nil
}

// FetchLatest retrieves up to limit of the most recent records. Null entries and records
// without an ISBN are dropped; any transport, status or decode failure fails the whole batch.
func (c *Client) FetchLatest(ctx context.Context, limit int) ([]feed.BookRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	endpoint := c.baseURL + "/get?isbn=*&limit=" + strconv.Itoa(limit)

	var body []byte
	op := func() error {
		b, err := c.get(ctx, endpoint)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && !se.Temporary() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("openbd fetch failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, fmt.Errorf("fetch latest: %w", err)
	}

	books, dropped, err := decode(body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("openbd batch fetched",
		zap.Int("books", len(books)),
		zap.Int("dropped", dropped),
	)
	return books, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

var nullLiteral = []byte("null")

func decode(body []byte) ([]feed.BookRecord, int, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, 0, fmt.Errorf("decode batch: %w", err)
	}
	books := make([]feed.BookRecord, 0, len(raw))
	dropped := 0
	for i, entry := range raw {
		if bytes.Equal(bytes.TrimSpace(entry), nullLiteral) {
			dropped++
			continue
		}
		var rec Record
		if err := json.Unmarshal(entry, &rec); err != nil {
			return nil, 0, fmt.Errorf("decode record %d: %w", i, err)
		}
		book := Extract(rec)
		if book.ISBN13 == "" {
			dropped++
			continue
		}
		books = append(books, book)
	}
	return books, dropped, nil
}
