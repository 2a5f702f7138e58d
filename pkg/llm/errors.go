package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrCircuitOpen is returned without contacting the provider while the breaker is open.
	ErrCircuitOpen = errors.New("provider circuit breaker is open")
	// ErrRetriesExhausted wraps the last transient error after all attempts failed.
	ErrRetriesExhausted = errors.New("provider retries exhausted")
	// ErrProviderTimeout marks an attempt that hit its per-call timeout.
	ErrProviderTimeout = errors.New("provider call timed out")

	errCallCancelled = errors.New("provider call cancelled")
)

// ProviderError carries the HTTP status returned by the provider. StatusCode 0 means
// no response was received.
type ProviderError struct {
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider returned status %d: %v", e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying: timeouts, connection failures,
// rate limiting and 5xx responses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrProviderTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.StatusCode == 0:
			return true
		case pe.StatusCode == http.StatusTooManyRequests, pe.StatusCode == http.StatusRequestTimeout:
			return true
		case pe.StatusCode >= 500:
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
