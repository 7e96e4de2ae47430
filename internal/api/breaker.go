package api

import (
	stderrors "errors"
	"net/http"

	"github.com/sony/gobreaker/v2"
	"resumelift/internal/config"
	"resumelift/internal/errors"
)

// BackendBreaker wraps backend HTTP calls with circuit breaker pattern.
// A nil breaker means the feature is disabled and calls pass through.
type BackendBreaker struct {
	cb *gobreaker.CircuitBreaker[*http.Response]
}

// NewBackendBreaker creates a circuit breaker for backend requests
func NewBackendBreaker(cfg config.CircuitBreakerConfig, logger *errors.Logger) *BackendBreaker {
	if !cfg.Enabled {
		return nil
	}

	settings := gobreaker.Settings{
		Name:        "backend",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests &&
				failureRatio >= cfg.FailureThreshold
		},
		// Client mistakes (bad input, missing auth) are not backend
		// failures and must not trip the breaker.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var appErr *errors.AppError
			if stderrors.As(err, &appErr) {
				return appErr.Type != errors.ErrorTypeNetwork &&
					appErr.Type != errors.ErrorTypeServer
			}
			return false
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if logger != nil {
				logger.Info("Circuit breaker state changed",
					"name", name,
					"from", from.String(),
					"to", to.String(),
					"max_requests", cfg.MaxRequests,
					"failure_threshold", cfg.FailureThreshold)
			}
		},
	}

	return &BackendBreaker{
		cb: gobreaker.NewCircuitBreaker[*http.Response](settings),
	}
}

// Execute executes the provided function with circuit breaker protection
func (b *BackendBreaker) Execute(fn func() (*http.Response, error)) (*http.Response, error) {
	if b == nil || b.cb == nil {
		return fn()
	}
	return b.cb.Execute(fn)
}

// GetStats returns circuit breaker statistics
func (b *BackendBreaker) GetStats() map[string]any {
	if b == nil || b.cb == nil {
		return map[string]any{
			"enabled": false,
		}
	}

	return map[string]any{
		"name":    b.cb.Name(),
		"state":   b.cb.State().String(),
		"counts":  b.cb.Counts(),
		"enabled": true,
	}
}

// IsHealthy returns true if the circuit breaker is in closed state
func (b *BackendBreaker) IsHealthy() bool {
	if b == nil || b.cb == nil {
		return true
	}
	return b.cb.State() == gobreaker.StateClosed
}
