package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/minios-linux/batchtr/logging"
	"github.com/minios-linux/batchtr/translate"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	next := translate.ClientFunc(func(_ context.Context, req translate.Request) (translate.Result, error) {
		calls++
		return translate.Result{}, boom
	})

	c := WithBreaker(next, BreakerSettings{Name: "test", Failures: 2, Timeout: time.Minute, Logger: logging.Discard()})

	for i := 0; i < 2; i++ {
		if _, err := c.TranslateChunk(context.Background(), translate.Request{}); !errors.Is(err, boom) {
			t.Fatalf("call %d error = %v, want boom", i+1, err)
		}
	}
	_, err := c.TranslateChunk(context.Background(), translate.Request{})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestBreakerPassesResults(t *testing.T) {
	next := translate.ClientFunc(func(_ context.Context, req translate.Request) (translate.Result, error) {
		return translate.Result{Seq: req.Seq, Original: req.Lines, Translated: []string{"x"}}, nil
	})
	c := WithBreaker(next, BreakerSettings{Name: "test", Failures: 1, Timeout: time.Minute})

	res, err := c.TranslateChunk(context.Background(), translate.Request{Seq: 4, Lines: []string{"a"}})
	if err != nil {
		t.Fatalf("TranslateChunk() error: %v", err)
	}
	if res.Seq != 4 || len(res.Translated) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestBreakerDisabled(t *testing.T) {
	boom := errors.New("boom")
	next := translate.ClientFunc(func(context.Context, translate.Request) (translate.Result, error) {
		return translate.Result{}, boom
	})
	c := WithBreaker(next, BreakerSettings{})
	for i := 0; i < 10; i++ {
		if _, err := c.TranslateChunk(context.Background(), translate.Request{}); !errors.Is(err, boom) {
			t.Fatalf("call %d error = %v, want boom", i+1, err)
		}
	}
}
