// Package external provides the anti-corruption layer between the
// notification pipeline and third-party APIs. Outbound HTTP calls are
// routed through the BaseClient, which enforces circuit breaking, trace
// propagation, and error mapping. The Bot Framework connector embeds it.
package external

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"teamsjira/internal/types"
)

// BaseClient wraps an *http.Client and a circuit breaker to enforce
// consistent resilience patterns on outbound HTTP calls.
//
// The client performs no retries: delivery dispatch is at-most-once per
// call, and whole-message retry is the queue's responsibility. The breaker
// sheds load while the upstream is failing.
type BaseClient struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	userAgent string
}

// NewBaseClient creates a BaseClient with the given http client, breaker
// name, and user agent string.
func NewBaseClient(httpClient *http.Client, breakerName string, userAgent string) *BaseClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &BaseClient{
		client:    httpClient,
		breaker:   cb,
		userAgent: userAgent,
	}
}

// Do executes the HTTP request with:
//  1. Trace ID injection (X-B3-TraceId from context)
//  2. User-Agent header injection
//  3. Circuit breaker wrapping
//  4. Error mapping to types.AppError
//
// 5xx and 429 responses count as breaker failures and are returned as
// AppErrors; other statuses are returned as-is for the caller to
// interpret. The caller is responsible for closing the response body.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if traceID := types.GetRequestID(req.Context()); traceID != "" {
		req.Header.Set("X-B3-TraceId", traceID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			return r, fmt.Errorf("upstream returned %d", r.StatusCode)
		}
		return r, nil
	})
	if err == nil {
		return resp, nil
	}

	if resp != nil {
		resp.Body.Close()
	}
	return nil, c.mapError(resp, err)
}

// mapError converts a transport failure into a typed AppError.
func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeUpstreamTeams, "circuit breaker open", err)
	}
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limited", err)
	}
	return types.NewAppError(types.ErrCodeUpstreamTeams, "upstream request failed", err)
}
