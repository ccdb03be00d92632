package rider

import (
	"fmt"
	"strings"
	"time"

	"deliveryBack/internal/rider/pricing"
	"deliveryBack/internal/rider/repo"
	"deliveryBack/internal/rider/retry"
)

const (
	defaultBaseFee           = 300
	defaultPerKMRate         = 60
	defaultMinCharge         = 500
	defaultInactivityTimeout = 5 * time.Minute
	defaultLocationInterval  = 15 * time.Second
	defaultCity              = "astana"
	defaultEventBuffer       = 64
	defaultEventChannel      = "rider:events"
	defaultReconcileInterval = time.Minute
	defaultStatementFolder   = "statements"
	defaultNearbyRadius      = 3000
)

// Config holds runtime configuration for the rider module.
type Config struct {
	Pricing           pricing.Config
	InactivityTimeout time.Duration
	LocationInterval  time.Duration
	City              string
	EventBuffer       int
	EventChannel      string
	ReconcileInterval time.Duration
	PendingLimit      int
	CompletedLimit    int
	StatementFolder   string
	NearbyRadius      float64
	// Retry applies to earnings writes and ledger reads. A nil Retryable
	// retries the transient store errors reported by repo.IsTransient.
	Retry retry.Policy
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Pricing:           pricing.Config{BaseFee: defaultBaseFee, PerKMRate: defaultPerKMRate, MinCharge: defaultMinCharge},
		InactivityTimeout: defaultInactivityTimeout,
		LocationInterval:  defaultLocationInterval,
		City:              defaultCity,
		EventBuffer:       defaultEventBuffer,
		EventChannel:      defaultEventChannel,
		ReconcileInterval: defaultReconcileInterval,
		StatementFolder:   defaultStatementFolder,
		NearbyRadius:      defaultNearbyRadius,
		Retry: retry.Policy{
			Attempts:  retry.DefaultPolicy.Attempts,
			BaseDelay: retry.DefaultPolicy.BaseDelay,
			MaxDelay:  retry.DefaultPolicy.MaxDelay,
			Retryable: repo.IsTransient,
		},
	}
}

// Validate checks the values a running module relies on.
func (c *Config) Validate() error {
	c.City = strings.ToLower(strings.TrimSpace(c.City))
	if c.Pricing.BaseFee < 0 || c.Pricing.PerKMRate < 0 || c.Pricing.MinCharge < 0 {
		return fmt.Errorf("rider pricing values must not be negative")
	}
	if c.InactivityTimeout <= 0 {
		return fmt.Errorf("rider inactivity timeout must be positive")
	}
	if c.LocationInterval <= 0 {
		return fmt.Errorf("rider location interval must be positive")
	}
	if c.City == "" {
		return fmt.Errorf("rider city is required")
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("rider event buffer must be positive")
	}
	if c.ReconcileInterval <= 0 {
		return fmt.Errorf("rider reconcile interval must be positive")
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("rider retry attempts must be at least 1")
	}
	if c.Retry.Retryable == nil {
		c.Retry.Retryable = repo.IsTransient
	}
	return nil
}
