package worker

import (
	"fmt"
	"time"

	"github.com/nancybwi/DrainGuardHCM-sub000/internal/domain"
)

// Config holds the configuration for the fingerprint retention janitor.
type Config struct {
	// Interval is how often the janitor scans for expired fingerprints.
	// Default: 1 hour
	Interval time.Duration

	// RetentionWindow is how long fingerprints are kept. Must match the
	// window the duplicate check queries against, or pruning would either
	// shrink the dedup horizon or leave dead rows behind.
	// Default: 30 days
	RetentionWindow time.Duration

	// ShutdownTimeout is how long to wait for an in-flight sweep to finish
	// during graceful shutdown.
	// Default: 30 seconds
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Interval:        time.Hour,
		RetentionWindow: domain.FingerprintRetention,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Interval < time.Minute {
		return fmt.Errorf("interval must be at least 1 minute, got %v", c.Interval)
	}
	if c.RetentionWindow < time.Hour {
		return fmt.Errorf("retention window must be at least 1 hour, got %v", c.RetentionWindow)
	}
	if c.ShutdownTimeout < time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	return nil
}
