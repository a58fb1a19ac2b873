// Package exchange defines the price provider contracts and the CoinGecko
// adapter that implements them.
package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tomx220052/cryptoprice/internal/models"
	"github.com/tomx220052/cryptoprice/internal/settlement"
)

// PriceFetcher retrieves raw price samples for a query window.
type PriceFetcher interface {
	// FetchRange returns the samples reported for coinID within window, in
	// provider order. A successful response with no samples yields an empty
	// slice and a nil error. Terminal failures return a classified error.
	FetchRange(ctx context.Context, coinID string, window settlement.QueryWindow, opts FetchOptions) ([]models.PriceSample, error)
}

// HistoryProvider retrieves the provider's snapshot price for a single day.
type HistoryProvider interface {
	FetchHistory(ctx context.Context, coinID string, date models.Date, opts FetchOptions) (decimal.Decimal, error)
}

// RateLimitInfo exposes the client-side request budget.
type RateLimitInfo interface {
	GetLimits() RateLimit
	WaitForLimit(ctx context.Context) error
}

// HealthChecker verifies the provider is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ExchangeAdapter combines every provider capability.
type ExchangeAdapter interface {
	PriceFetcher
	HistoryProvider
	RateLimitInfo
	HealthChecker
}

// Canceller is a cooperative cancellation token polled between attempts and waits.
type Canceller interface {
	Cancelled() bool
}

// FetchOptions carries per-call settings.
type FetchOptions struct {
	// Cancel, when set, is checked before every attempt and every wait
	Cancel Canceller
}

func (o FetchOptions) cancelled() bool {
	return o.Cancel != nil && o.Cancel.Cancelled()
}

// RetryPolicy bounds the retry loop of a single fetch.
type RetryPolicy struct {
	// MaxAttempts is the total number of requests allowed, including the first
	MaxAttempts int `json:"max_attempts"`

	// RateLimitCooldown is the minimum wait after a 429; a larger Retry-After wins
	RateLimitCooldown time.Duration `json:"rate_limit_cooldown"`

	// TransportDelay is the initial wait after a transport failure
	TransportDelay time.Duration `json:"transport_delay"`

	// MaxTransportDelay caps growing strategies
	MaxTransportDelay time.Duration `json:"max_transport_delay"`

	// Strategy is fixed, linear or exponential
	Strategy string `json:"strategy"`

	// Jitter adds up to ±10% to transport delays
	Jitter bool `json:"jitter"`
}

// DefaultRetryPolicy returns the interactive defaults: 20 attempts, a 15s
// cooldown after rate limiting and a fixed 2s delay after transport failures.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       20,
		RateLimitCooldown: 15 * time.Second,
		TransportDelay:    2 * time.Second,
		MaxTransportDelay: 30 * time.Second,
		Strategy:          "fixed",
	}
}

// Validate checks the policy bounds.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return &ValidationError{Field: "max_attempts", Message: "must be at least 1"}
	}
	if p.RateLimitCooldown < 0 {
		return &ValidationError{Field: "rate_limit_cooldown", Message: "cannot be negative"}
	}
	if p.TransportDelay < 0 {
		return &ValidationError{Field: "transport_delay", Message: "cannot be negative"}
	}
	switch p.Strategy {
	case "", "fixed", "linear", "exponential":
	default:
		return &ValidationError{Field: "strategy", Message: fmt.Sprintf("unknown strategy %q", p.Strategy)}
	}
	return nil
}

// RateLimit describes the client-side request budget.
type RateLimit struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	BurstSize         int `json:"burst_size"`
}

// ValidationError represents a configuration or request validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}
