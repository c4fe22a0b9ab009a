// Package provider holds the HTTP plumbing shared by the LLM provider
// adapters: rate limiting, retries, status classification, SSE reading and
// relaxed JSON parsing.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/houzhh15/factlens/cmd/server/internal/metrics"
	"github.com/houzhh15/factlens/cmd/server/internal/orchestrator/errs"
	"github.com/houzhh15/factlens/pkg/logger"
	"github.com/houzhh15/factlens/pkg/retry"
)

// ClientConfig configures a provider Client.
type ClientConfig struct {
	// Name labels logs and metrics ("openai", "gemini").
	Name    string
	BaseURL string

	// Timeout bounds one HTTP attempt including reading the body.
	Timeout time.Duration

	// RPS and Burst configure the client-side rate limiter. RPS <= 0 disables it.
	RPS   float64
	Burst int

	// Retry policy; zero values fall back to retry.DefaultPolicy.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// Authorize adds credentials to every request.
	Authorize func(*http.Request)

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client sends requests to one provider API.
type Client struct {
	name      string
	baseURL   string
	timeout   time.Duration
	http      *http.Client
	limiter   *rate.Limiter
	policy    retry.Policy
	authorize func(*http.Request)
	logger    *slog.Logger
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	policy := retry.DefaultPolicy(errs.IsRetryable)
	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.BaseDelay > 0 {
		policy.BaseDelay = cfg.BaseDelay
	}
	if cfg.MaxDelay > 0 {
		policy.MaxDelay = cfg.MaxDelay
	}

	authorize := cfg.Authorize
	if authorize == nil {
		authorize = func(*http.Request) {}
	}

	c := &Client{
		name:      cfg.Name,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   cfg.Timeout,
		http:      httpClient,
		limiter:   limiter,
		authorize: authorize,
		logger:    logger.OrDefault(cfg.Logger).With("component", cfg.Name),
	}
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		c.logger.Warn("provider call failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	}
	c.policy = policy
	return c
}

// Name returns the provider label.
func (c *Client) Name() string { return c.name }

// URL joins path onto the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Logger returns the client's component logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// RequestFunc builds a fresh request for one attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// JSONRequest returns a RequestFunc posting payload as JSON to path.
func (c *Client) JSONRequest(method, path string, payload any) (RequestFunc, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, errs.NewProviderError("cannot encode request", false, err)
		}
	}
	url := c.URL(path)
	return func(ctx context.Context) (*http.Request, error) {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, r)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}, nil
}

// Do sends the request with retries and returns the response body of a 2xx reply.
func (c *Client) Do(ctx context.Context, operation string, build RequestFunc) ([]byte, error) {
	return retry.Do(ctx, c.policy, func(ctx context.Context) ([]byte, error) {
		body, err := c.attempt(ctx, build)
		c.record(operation, err)
		return body, err
	})
}

// DoJSON posts payload to path and decodes the reply into out.
func (c *Client) DoJSON(ctx context.Context, operation, method, path string, payload, out any) error {
	build, err := c.JSONRequest(method, path, payload)
	if err != nil {
		return err
	}
	body, err := c.Do(ctx, operation, build)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.NewValidationError(c.name+" returned an unreadable response", err)
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, build RequestFunc) ([]byte, error) {
	resp, cancel, err := c.open(ctx, build)
	if err != nil {
		return nil, err
	}
	defer cancel()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyTransportError(c.name, err)
	}
	return body, nil
}

// open waits for the rate limiter, sends one request and checks the status.
// The returned cancel releases the attempt's timeout and must be called after
// the body has been consumed.
func (c *Client) open(ctx context.Context, build RequestFunc) (*http.Response, context.CancelFunc, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, errs.NewProviderError(c.name+" rate limiter wait aborted", false, err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := build(attemptCtx)
	if err != nil {
		cancel()
		return nil, nil, errs.NewProviderError("cannot build request", false, err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, nil, ClassifyTransportError(c.name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		cancel()
		return nil, nil, ClassifyStatus(c.name, resp.StatusCode, payload)
	}
	return resp, cancel, nil
}

func (c *Client) record(operation string, err error) {
	status := "success"
	if err != nil {
		status = "fatal"
		if errs.IsRetryable(err) {
			status = "retryable"
		}
	}
	metrics.RecordProviderCall(c.name, operation, status)
}

// ClassifyStatus maps an HTTP error status to a ProviderError. Rate limits,
// timeouts and server errors are retryable; auth, quota and request errors are not.
func ClassifyStatus(provider string, status int, body []byte) error {
	detail := extractErrorMessage(body)
	msg := fmt.Sprintf("%s returned HTTP %d", provider, status)
	if detail != "" {
		msg += ": " + detail
	}
	retryable := status == http.StatusTooManyRequests ||
		status == http.StatusRequestTimeout ||
		status >= 500
	if status == http.StatusTooManyRequests && isQuotaExhausted(detail) {
		retryable = false
	}
	return errs.NewProviderError(msg, retryable, nil)
}

// ClassifyTransportError maps network failures to retryable ProviderErrors.
// Cancellation by the caller is not retryable.
func ClassifyTransportError(provider string, err error) error {
	if errors.Is(err, context.Canceled) {
		return errs.NewProviderError(provider+" request cancelled", false, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errs.NewProviderError(provider+" request timed out", true, err)
	}
	return errs.NewProviderError(provider+" request failed", true, err)
}

func extractErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 300 {
		text = text[:300]
	}
	return text
}

func isQuotaExhausted(detail string) bool {
	lower := strings.ToLower(detail)
	return strings.Contains(lower, "insufficient_quota") ||
		strings.Contains(lower, "exceeded your current quota") ||
		strings.Contains(lower, "billing")
}
