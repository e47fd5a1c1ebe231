package transport

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func respWithStatus(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader("")),
	}
}

func buildGet(url string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func fastPolicy(p Policy) Policy {
	p.Backoff = func(int) time.Duration { return time.Millisecond }
	return p
}

func TestRetryBudgetExhaustion(t *testing.T) {
	var calls int32
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return respWithStatus(http.StatusGatewayTimeout), nil
		}),
	}

	e := NewExecutor(client, fastPolicy(GatewayTimeoutPolicy()))
	resp, err := e.Do(context.Background(), buildGet("http://upstream/v1/outlines/preview"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls=%d", got)
	}
	// Beyond the budget the caller gets the last response as-is.
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	var calls int32
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return respWithStatus(http.StatusGatewayTimeout), nil
			}
			return respWithStatus(http.StatusOK), nil
		}),
	}

	e := NewExecutor(client, fastPolicy(GatewayTimeoutPolicy()))
	resp, err := e.Do(context.Background(), buildGet("http://upstream/x"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls=%d", got)
	}
}

func TestClientErrorsNeverRetried(t *testing.T) {
	var calls int32
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return respWithStatus(http.StatusBadRequest), nil
		}),
	}

	e := NewExecutor(client, fastPolicy(TransientPolicy(time.Millisecond, time.Millisecond, 0)))
	resp, err := e.Do(context.Background(), buildGet("http://upstream/x"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls=%d", got)
	}
}

func TestServerErrorsRetriedUnderTransientPolicy(t *testing.T) {
	var calls int32
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return respWithStatus(http.StatusInternalServerError), nil
		}),
	}

	e := NewExecutor(client, fastPolicy(TransientPolicy(time.Millisecond, time.Millisecond, 0)))
	resp, err := e.Do(context.Background(), buildGet("http://upstream/x"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls=%d", got)
	}
}

func TestCancellationIsTerminal(t *testing.T) {
	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			cancel()
			return nil, context.Canceled
		}),
	}

	e := NewExecutor(client, fastPolicy(GatewayTimeoutPolicy()))
	if _, err := e.Do(ctx, buildGet("http://upstream/x")); err == nil {
		t.Fatalf("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls=%d (aborted attempts must not be retried)", got)
	}
}

func TestTransientBackoffShape(t *testing.T) {
	p := TransientPolicy(100*time.Millisecond, 300*time.Millisecond, 0)
	if d := p.Backoff(1); d != 100*time.Millisecond {
		t.Fatalf("backoff(1)=%v", d)
	}
	if d := p.Backoff(2); d != 200*time.Millisecond {
		t.Fatalf("backoff(2)=%v", d)
	}
	if d := p.Backoff(3); d != 300*time.Millisecond {
		t.Fatalf("backoff(3)=%v (cap)", d)
	}
	if p.RetryableStatus(http.StatusNotFound) {
		t.Fatalf("4xx must not be retryable")
	}
	if !p.RetryableStatus(http.StatusBadGateway) {
		t.Fatalf("5xx must be retryable")
	}
}
