package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/minios-linux/batchtr/translate"
)

// ErrCircuitOpen is returned without contacting the provider while the
// breaker is open after repeated failures.
var ErrCircuitOpen = errors.New("provider circuit open")

// BreakerSettings configures WithBreaker.
type BreakerSettings struct {
	Name string
	// Failures is the number of consecutive failed requests that opens the
	// circuit. 0 disables the breaker.
	Failures uint32
	// Timeout is how long the circuit stays open before a trial request.
	Timeout time.Duration
	Logger   *slog.Logger
}

type breakerClient struct {
	next translate.Client
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps next in a circuit breaker. Only provider errors count as
// failures; line count mismatches are answers, not failures.
func WithBreaker(next translate.Client, s BreakerSettings) translate.Client {
	if s.Failures == 0 {
		return next
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    s.Name,
		Timeout: s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.Failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return &breakerClient{next: next, cb: cb}
}

func (b *breakerClient) TranslateChunk(ctx context.Context, req translate.Request) (translate.Result, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.TranslateChunk(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return translate.Result{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return translate.Result{}, err
	}
	return out.(translate.Result), nil
}
