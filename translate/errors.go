package translate

import (
	"errors"
	"fmt"
)

// ErrRetryExhausted matches any *RetryExhaustedError via errors.Is.
var ErrRetryExhausted = errors.New("retry depth exhausted")

// RetryExhaustedError is returned when a chunk still comes back with the
// wrong number of lines at the maximum retry depth. It usually means the
// provider is systematically failing on these lines.
type RetryExhaustedError struct {
	Depth      int
	Offset     int
	Original   []string
	Translated []string
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("line count mismatch persists at retry depth %d (input lines %d-%d): got %d, want %d",
		e.Depth, e.Offset+1, e.Offset+len(e.Original), len(e.Translated), len(e.Original))
}

// Is reports whether target is ErrRetryExhausted.
func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// ProviderError wraps a transport or provider failure for one chunk.
type ProviderError struct {
	Seq int
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("translating chunk %d: %v", e.Seq, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
