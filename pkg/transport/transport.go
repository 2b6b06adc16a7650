// Package transport builds the HTTP client shared by the API client and the
// audio downloader: browser-like headers, bounded connection pool, optional
// request pacing and retries with exponential backoff on transient 5xx.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds the wait for response headers of one attempt.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 5

	defaultMaxConnsPerHost = 8
	defaultInitialInterval = time.Second
	defaultMaxInterval     = 30 * time.Second

	// UserAgent mimics a desktop Chrome so the vendor serves the regular API.
	UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_13_6) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/69.0.3497.100 Safari/537.36"
)

// ErrRetriesExhausted is returned once every attempt of a retryable request failed.
var ErrRetriesExhausted = errors.New("transport: retries exhausted")

// ErrHeaderTimeout means the server did not answer within Config.Timeout.
var ErrHeaderTimeout = errors.New("transport: no response headers")

// StatusError reports a non-success HTTP status that was worth retrying.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
}

// Config tunes the client. Zero values fall back to defaults.
type Config struct {
	// Timeout bounds the wait for response headers, not the body read.
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	MaxConnsPerHost   int
	// InitialInterval is the first backoff delay; tests shrink it.
	InitialInterval time.Duration
	Logger          *slog.Logger
}

// New returns an *http.Client wired with the retrying round tripper.
func New(cfg Config) *http.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxConnsPerHost <= 0 {
		cfg.MaxConnsPerHost = defaultMaxConnsPerHost
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = defaultInitialInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxConnsPerHost * 2,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	rt := &retryTransport{
		next:            base,
		maxRetries:      cfg.MaxRetries,
		timeout:         cfg.Timeout,
		initialInterval: cfg.InitialInterval,
		log:             logger.With("component", "transport"),
	}
	if cfg.RequestsPerSecond > 0 {
		rt.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	// Per-attempt deadlines are applied inside the round tripper, so the
	// client itself carries no overall timeout (retries would eat into it).
	return &http.Client{Transport: rt}
}

// IsRetryableStatus reports whether the vendor answer is a transient server error.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

type retryTransport struct {
	next            http.RoundTripper
	limiter         *rate.Limiter
	maxRetries      int
	timeout         time.Duration
	initialInterval time.Duration
	log             *slog.Logger
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	idempotent := req.Method == http.MethodGet || req.Method == http.MethodHead
	ctx := req.Context()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.initialInterval
	bo.MaxInterval = defaultMaxInterval
	bo.MaxElapsedTime = 0
	var policy backoff.BackOff = bo
	if idempotent {
		policy = backoff.WithMaxRetries(bo, uint64(t.maxRetries))
	} else {
		policy = backoff.WithMaxRetries(bo, 0)
	}
	policy = backoff.WithContext(policy, ctx)

	var (
		resp    *http.Response
		lastErr error
		attempt int
	)
	op := func() error {
		attempt++
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		r, err := t.attempt(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			lastErr = err
			return err
		}
		if IsRetryableStatus(r.StatusCode) {
			drain(r)
			lastErr = &StatusError{Method: req.Method, URL: req.URL.String(), StatusCode: r.StatusCode}
			return lastErr
		}
		resp = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		t.log.WarnContext(ctx, "request failed, retrying",
			slog.String("url", req.URL.String()),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if lastErr != nil && attempt > 1 {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, lastErr)
		}
		return nil, err
	}
	return resp, nil
}

// attempt performs one request. The timeout bounds the wait for response
// headers only; the body stays readable until it is closed or the caller's
// context ends.
func (t *retryTransport) attempt(req *http.Request) (*http.Response, error) {
	ctx, cancel := context.WithCancel(req.Context())
	timer := time.AfterFunc(t.timeout, cancel)
	r := req.Clone(ctx)
	if r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", UserAgent)
	}
	if r.Header.Get("Accept-Language") == "" {
		r.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	}
	resp, err := t.next.RoundTrip(r)
	fired := !timer.Stop()
	if fired && req.Context().Err() == nil {
		if err == nil {
			resp.Body.Close()
		}
		cancel()
		return nil, fmt.Errorf("%w after %s: %s %s", ErrHeaderTimeout, t.timeout, req.Method, req.URL)
	}
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
