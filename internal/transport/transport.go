package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// HTTPError is returned by callers that require a 2xx and got something else.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// Policy is the single configurable retry policy. The two historical helpers
// (gateway-timeout-only with linear backoff, 5xx with capped exponential
// backoff and per-attempt timeouts) are presets of this one shape.
type Policy struct {
	// MaxAttempts is the total attempt budget, first try included.
	MaxAttempts int

	// RetryableStatus reports whether a response status is transient. 4xx
	// statuses are permanent client failures and must never be retryable.
	RetryableStatus func(status int) bool

	// Backoff returns the delay after the given 1-based completed attempt.
	Backoff func(attempt int) time.Duration

	// AttemptTimeout bounds each individual attempt via context cancellation.
	// Zero disables it (streaming callers bound the whole request instead).
	AttemptTimeout time.Duration
}

// GatewayTimeoutPolicy retries only 504s, twice, with linear backoff. Used
// when opening generation streams.
func GatewayTimeoutPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		RetryableStatus: func(status int) bool { return status == http.StatusGatewayTimeout },
		Backoff:         func(attempt int) time.Duration { return time.Duration(attempt) * 500 * time.Millisecond },
	}
}

// TransientPolicy retries any 5xx with exponential backoff doubling from base
// and capped, and bounds every attempt with a hard timeout. Used for finalize
// and other non-streaming calls.
func TransientPolicy(base, ceiling, attemptTimeout time.Duration) Policy {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	if ceiling <= 0 {
		ceiling = 4 * time.Second
	}
	return Policy{
		MaxAttempts:     3,
		RetryableStatus: func(status int) bool { return status >= 500 },
		Backoff: func(attempt int) time.Duration {
			d := base << (attempt - 1)
			if d > ceiling {
				return ceiling
			}
			return d
		},
		AttemptTimeout: attemptTimeout,
	}
}

// Executor runs HTTP requests under a retry policy.
type Executor struct {
	httpClient *http.Client
	policy     Policy
}

func NewExecutor(httpClient *http.Client, policy Policy) *Executor {
	if httpClient == nil {
		httpClient = &http.Client{Transport: defaultTransport()}
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Executor{httpClient: httpClient, policy: policy}
}

func defaultTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// Do executes the request, rebuilding it via build for every attempt (request
// bodies are single-use). Transient statuses and transport errors are retried
// within the budget; once the budget is spent the last response (or error) is
// handed back as-is for the caller to interpret. Caller cancellation is
// terminal: it propagates immediately and is never retried.
func (e *Executor) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if e.policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, e.policy.AttemptTimeout)
		}

		req, err := build(attemptCtx)
		if err != nil {
			cancel()
			return nil, err
		}

		resp, err := e.httpClient.Do(req)
		if err != nil {
			cancel()
			// An aborted attempt is terminal, not transient.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		} else if e.policy.RetryableStatus != nil && e.policy.RetryableStatus(resp.StatusCode) && attempt < e.policy.MaxAttempts {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
			_ = resp.Body.Close()
			cancel()
			lastErr = nil
		} else {
			// Keep the attempt context alive until the body is closed.
			resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
			return resp, nil
		}

		if attempt < e.policy.MaxAttempts && e.policy.Backoff != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.policy.Backoff(attempt)):
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("request failed after %d attempts", e.policy.MaxAttempts)
	}
	return nil, lastErr
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
