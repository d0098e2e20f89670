package jobs

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spherical/slide-deck/internal/domain"
)

// RetryConfig bounds how often a request is repeated after a transient failure.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig retries three times, starting at one second.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}
}

// backoff doubles per attempt up to MaxBackoff.
func (rc *RetryConfig) backoff(attempt int) time.Duration {
	d := rc.InitialBackoff
	for i := 0; i < attempt && d < rc.MaxBackoff; i++ {
		d *= 2
	}
	if d > rc.MaxBackoff {
		return rc.MaxBackoff
	}
	return d
}

// shouldRetry reports whether a status is worth another attempt.
func shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// send issues the request built by build, repeating it while the backend
// answers with a transient status or the round trip fails. build runs once
// per attempt so bodies are never reused.
func (c *Client) send(ctx context.Context, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := build()
		if err != nil {
			return nil, domain.ValidationError("failed to build request", err)
		}

		resp, err := c.httpClient.Do(req)
		switch {
		case err != nil:
			lastErr = err
		case shouldRetry(resp.StatusCode):
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			resp.Body.Close()
		default:
			return resp, nil
		}

		if attempt >= c.retry.MaxRetries {
			break
		}

		wait := c.retry.backoff(attempt)
		c.logger.Warn().
			Err(lastErr).
			Str("url", req.URL.Path).
			Int("attempt", attempt+1).
			Int("max_retries", c.retry.MaxRetries).
			Dur("backoff", wait).
			Msg("request failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, domain.TransportError(fmt.Sprintf("request failed after %d retries", c.retry.MaxRetries), lastErr)
}
