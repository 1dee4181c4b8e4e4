// Package external is the boundary between the precompute pipeline and the
// inventory provider. All outbound HTTP calls go through BaseClient, which
// applies the shared retry policy, request throttling, request ID propagation
// and error mapping.
package external

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"time"

	"reorder/internal/types"

	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/time/rate"
)

// RetryPolicy configures the retry behavior for the BaseClient.
type RetryPolicy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxJitter   time.Duration
}

// DefaultRetryPolicy returns the provider defaults: three retries starting at
// 500ms with up to 100ms of jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BaseBackoff: 500 * time.Millisecond,
		MaxJitter:   100 * time.Millisecond,
	}
}

// BaseClient wraps an *http.Client with retries and exponential backoff.
// Provider clients hold a BaseClient rather than an *http.Client.
type BaseClient struct {
	client      *http.Client
	retryPolicy RetryPolicy
	userAgent   string
	limiter     *rate.Limiter
	sleepFn     func(time.Duration)
	jitterFn    func() time.Duration
}

// BaseClientOption is a functional option for configuring a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc overrides the sleep between retries. Tests use it to record
// delays without waiting. A custom sleep does not observe cancellation.
func WithSleepFunc(fn func(time.Duration)) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// WithJitterFunc overrides the random jitter added to each backoff.
func WithJitterFunc(fn func() time.Duration) BaseClientOption {
	return func(c *BaseClient) {
		c.jitterFn = fn
	}
}

// WithRateLimiter makes every attempt, retries included, wait for a token.
// One limiter is shared by all clients talking to the same provider account.
func WithRateLimiter(l *rate.Limiter) BaseClientOption {
	return func(c *BaseClient) {
		c.limiter = l
	}
}

// NewHTTPClient returns an *http.Client with gzip negotiation on the transport.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: gzhttp.Transport(http.DefaultTransport),
	}
}

// NewBaseClient creates a BaseClient. A nil httpClient gets NewHTTPClient with
// a 15 second timeout.
func NewBaseClient(
	httpClient *http.Client,
	retryPolicy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	if httpClient == nil {
		httpClient = NewHTTPClient(15 * time.Second)
	}
	if retryPolicy.MaxRetries < 0 {
		retryPolicy.MaxRetries = 0
	}

	bc := &BaseClient{
		client:      httpClient,
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
	}
	bc.jitterFn = bc.randomJitter

	for _, opt := range opts {
		opt(bc)
	}

	return bc
}

// Do executes the request with up to MaxRetries+1 attempts.
//
// 429, 5xx and transport errors are retried. After failed attempt k the
// client waits BaseBackoff*2^k plus jitter. Any other status is returned
// immediately for the caller to interpret.
//
// When retries run out on a 429 or 5xx, that last response is returned with a
// nil error. When they run out on a transport error, Do returns an AppError
// with ErrCodeUpstreamUnavailable, or ErrCodeInternalUnexpected when the
// request context was cancelled. The caller closes the response body.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	if requestID := types.GetRequestID(ctx); requestID != "" {
		req.Header.Set("X-Request-Id", requestID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	// Snapshot the body so it can be replayed on retries.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, types.NewAppError(
				types.ErrCodeInternalUnexpected,
				"failed to read request body for retry support",
				err,
			)
		}
		req.Body.Close()
	}

	var lastErr error
	maxAttempts := 1 + c.retryPolicy.MaxRetries

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, cancelledError(ctx, err)
			}
		}

		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.client.Do(req)
		last := attempt == maxAttempts-1

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, cancelledError(ctx, err)
			}
			lastErr = err
		case retryable(resp.StatusCode):
			if last {
				return resp, nil
			}
			drain(resp)
		default:
			return resp, nil
		}

		if !last {
			if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
				return nil, cancelledError(ctx, err)
			}
		}
	}

	return nil, types.NewAppError(
		types.ErrCodeUpstreamUnavailable,
		"upstream request failed after retries",
		lastErr,
	)
}

// backoff returns the wait after failed attempt k: BaseBackoff*2^k + jitter.
func (c *BaseClient) backoff(attempt int) time.Duration {
	wait := c.retryPolicy.BaseBackoff << uint(attempt)
	return wait + c.jitterFn()
}

func (c *BaseClient) randomJitter() time.Duration {
	if c.retryPolicy.MaxJitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(c.retryPolicy.MaxJitter)))
}

func (c *BaseClient) sleep(ctx context.Context, d time.Duration) error {
	if c.sleepFn != nil {
		c.sleepFn(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// drain discards a response that is about to be retried so the connection can
// be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

func cancelledError(ctx context.Context, err error) *types.AppError {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = err
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "upstream request deadline exceeded", cause)
	}
	return types.NewAppError(types.ErrCodeInternalUnexpected, "upstream request cancelled", cause)
}
