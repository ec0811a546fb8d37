package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultBackoff        = time.Second
	defaultRateLimitDelay = 65 * time.Second // 60s + 5s buffer
)

// StatusError is a non-2xx answer from a provider API.
type StatusError struct {
	StatusCode int
	// RetryAfter is the server's retry hint for 429 answers (0 = none).
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, truncate(e.Body, 500))
}

// rateLimitState is a pause shared by every in-flight request of one client.
// A 429 seen by one worker holds back the others until the delay has passed.
type rateLimitState struct {
	mu       sync.Mutex
	paused   int32 // atomic: 1 = paused
	pauseEnd time.Time
}

func (r *rateLimitState) isPaused() bool {
	return atomic.LoadInt32(&r.paused) == 1
}

func (r *rateLimitState) pause(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if end := time.Now().Add(d); end.After(r.pauseEnd) {
		r.pauseEnd = end
	}
	atomic.StoreInt32(&r.paused, 1)
}

func (r *rateLimitState) unpause() {
	atomic.StoreInt32(&r.paused, 0)
}

// waitIfPaused blocks until the rate limit pause is over.
func (r *rateLimitState) waitIfPaused(ctx context.Context) error {
	for r.isPaused() {
		r.mu.Lock()
		remaining := time.Until(r.pauseEnd)
		r.mu.Unlock()
		if remaining <= 0 {
			r.unpause()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(min(remaining, 100*time.Millisecond)):
		}
	}
	return nil
}

// retrier retries transport failures, 5xx answers and rate limits with
// exponential backoff, up to maxRetries extra attempts.
type retrier struct {
	maxRetries     int
	backoff        time.Duration
	rateLimitDelay time.Duration
	rl             rateLimitState
	logger         *slog.Logger
}

func newRetrier(maxRetries int) *retrier {
	return &retrier{
		maxRetries:     max(maxRetries, 0),
		backoff:        defaultBackoff,
		rateLimitDelay: defaultRateLimitDelay,
		logger:         slog.Default(),
	}
}

func (r *retrier) do(ctx context.Context, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := r.rl.waitIfPaused(ctx); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		retry, rateLimited, after := classify(err)
		if !retry {
			return err
		}
		if attempt >= r.maxRetries {
			if rateLimited {
				return fmt.Errorf("rate limited after %d retries: %w", r.maxRetries, err)
			}
			return err
		}

		if rateLimited {
			if after <= 0 {
				after = r.rateLimitDelay
			}
			r.logger.Warn("rate limited, pausing requests", "wait", after, "attempt", attempt+1, "max_retries", r.maxRetries)
			r.rl.pause(after)
			continue
		}

		wait := r.backoff << attempt
		r.logger.Warn("request failed, retrying", "error", err, "wait", wait, "attempt", attempt+1, "max_retries", r.maxRetries)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// classify reports whether err is worth another attempt, and whether it is a
// rate limit (with the server's retry hint, if any).
func classify(err error) (retry, rateLimited bool, after time.Duration) {
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == 429:
			return true, true, se.RetryAfter
		case se.StatusCode >= 500:
			return true, false, 0
		}
		return false, false, 0
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true, false, 0
	}
	return false, false, 0
}

// parseRetryDelay reads the retry hint of a 429 answer: the Retry-After
// header (seconds) or Google's RetryInfo detail in the body. It returns 0
// when neither is present.
func parseRetryDelay(header string, body []byte) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}

	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return 0
	}
	for _, detail := range errResp.Error.Details {
		if strings.Contains(detail.Type, "RetryInfo") && detail.RetryDelay != "" {
			d := strings.TrimSuffix(detail.RetryDelay, "s")
			if secs, err := strconv.ParseFloat(d, 64); err == nil {
				return time.Duration(secs*1000)*time.Millisecond + 5*time.Second
			}
		}
	}
	return 0
}
