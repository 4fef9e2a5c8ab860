package interceptor

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// DefaultRetryStatuses is the status code set retried by default.
var DefaultRetryStatuses = []int{
	http.StatusRequestTimeout,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// RetryPolicy retries requests answered with a retryable status, honoring a
// Retry-After header when present and falling back to exponential backoff.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	statuses   map[int]struct{}
}

// NewRetryPolicy creates a retry policy. Zero maxRetries defaults to 3, zero
// baseDelay to 500ms, empty statuses to DefaultRetryStatuses.
func NewRetryPolicy(maxRetries int, baseDelay time.Duration, statuses ...int) *RetryPolicy {
	if maxRetries == 0 {
		maxRetries = 3
	}
	if baseDelay == 0 {
		baseDelay = 500 * time.Millisecond
	}
	if len(statuses) == 0 {
		statuses = DefaultRetryStatuses
	}

	set := make(map[int]struct{}, len(statuses))
	for _, code := range statuses {
		set[code] = struct{}{}
	}

	return &RetryPolicy{
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		statuses:   set,
	}
}

// Retryable reports whether the status code is in the retry set.
func (p *RetryPolicy) Retryable(status int) bool {
	_, ok := p.statuses[status]
	return ok
}

// do performs the request with an explicit per-logical-request attempt
// counter. Requests with a body need req.GetBody so the body can be replayed.
func (p *RetryPolicy) do(client *http.Client, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	var err error

	for attempt := 0; ; attempt++ {
		resp, err = client.Do(req)
		if err != nil {
			return nil, err
		}

		if !p.Retryable(resp.StatusCode) || attempt >= p.MaxRetries {
			return resp, nil
		}

		delay := p.delayFor(resp, attempt)

		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, fmt.Errorf("failed to rewind request body for retry: %w", bodyErr)
			}
			req.Body = body
		}

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
	}
}

// delayFor picks the wait before the next attempt: Retry-After when the
// server sent one, else exponential backoff from the base delay.
func (p *RetryPolicy) delayFor(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(header); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
			return 0
		}
	}
	return p.BaseDelay << uint(attempt)
}
