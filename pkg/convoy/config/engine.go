package config

import (
	"errors"
	"fmt"
	"time"
)

// EngineConfig is the typed configuration for the dialogue engine.
type EngineConfig struct {
	// MaxIterations bounds the node executions per turn. A turn that
	// exceeds it is escalated, never looped forever.
	MaxIterations int

	// NodeTimeout is the hard per-node-invocation timeout.
	NodeTimeout time.Duration

	// TurnBudget is the overall wall-clock budget for one turn. Past
	// it the engine abandons routing, persists an escalation state and
	// returns a degraded response.
	TurnBudget time.Duration

	// ValidationRetries is how many times a node is re-invoked with
	// feedback after a validation failure before escalating.
	ValidationRetries int

	// Retry parameters for transient failures of retry-eligible nodes.
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryBackoffFactor  float64
	RetryJitter         float64

	// Circuit breaker parameters, shared per node class.
	BreakerFailureThreshold int
	BreakerCoolDown         time.Duration

	// Compaction limits applied before every checkpoint write.
	MessageCap       int
	MessageCharLimit int

	// ConfirmationKeywords drives the confirmation intent. The exact
	// list is business-specific and varies per deployment.
	ConfirmationKeywords []string

	// RejectionKeywords drives the rejection intent.
	RejectionKeywords []string
}

// DefaultEngine returns the default engine configuration.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		MaxIterations:           16,
		NodeTimeout:             30 * time.Second,
		TurnBudget:              2 * time.Minute,
		ValidationRetries:       2,
		RetryMaxAttempts:        3,
		RetryInitialBackoff:     1 * time.Second,
		RetryMaxBackoff:         30 * time.Second,
		RetryBackoffFactor:      2.0,
		RetryJitter:             0.1,
		BreakerFailureThreshold: 3,
		BreakerCoolDown:         30 * time.Second,
		MessageCap:              200,
		MessageCharLimit:        4000,
		ConfirmationKeywords:    []string{"yes", "yep", "ok", "okay", "sure", "confirm", "deal", "take it"},
		RejectionKeywords:       []string{"no", "nope", "cancel", "stop", "not interested"},
	}
}

// EngineFromConfig reads the "engine" section of a Config, falling back
// to defaults for anything unset.
func EngineFromConfig(c Config) EngineConfig {
	def := DefaultEngine()
	e := c.Section("engine")
	return EngineConfig{
		MaxIterations:           e.Int("max_iterations", def.MaxIterations),
		NodeTimeout:             e.Duration("node_timeout", def.NodeTimeout),
		TurnBudget:              e.Duration("turn_budget", def.TurnBudget),
		ValidationRetries:       e.Int("validation_retries", def.ValidationRetries),
		RetryMaxAttempts:        e.Int("retry_max_attempts", def.RetryMaxAttempts),
		RetryInitialBackoff:     e.Duration("retry_initial_backoff", def.RetryInitialBackoff),
		RetryMaxBackoff:         e.Duration("retry_max_backoff", def.RetryMaxBackoff),
		RetryBackoffFactor:      e.Float("retry_backoff_factor", def.RetryBackoffFactor),
		RetryJitter:             e.Float("retry_jitter", def.RetryJitter),
		BreakerFailureThreshold: e.Int("breaker_failure_threshold", def.BreakerFailureThreshold),
		BreakerCoolDown:         e.Duration("breaker_cool_down", def.BreakerCoolDown),
		MessageCap:              e.Int("message_cap", def.MessageCap),
		MessageCharLimit:        e.Int("message_char_limit", def.MessageCharLimit),
		ConfirmationKeywords:    e.StringSlice("confirmation_keywords", def.ConfirmationKeywords),
		RejectionKeywords:       e.StringSlice("rejection_keywords", def.RejectionKeywords),
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (e EngineConfig) Validate() error {
	var errs []error
	if e.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max_iterations must be positive, got %d", e.MaxIterations))
	}
	if e.NodeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("node_timeout must be positive, got %s", e.NodeTimeout))
	}
	if e.TurnBudget <= 0 {
		errs = append(errs, fmt.Errorf("turn_budget must be positive, got %s", e.TurnBudget))
	}
	if e.RetryMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("retry_max_attempts must be positive, got %d", e.RetryMaxAttempts))
	}
	if e.BreakerFailureThreshold <= 0 {
		errs = append(errs, fmt.Errorf("breaker_failure_threshold must be positive, got %d", e.BreakerFailureThreshold))
	}
	if e.MessageCap <= 0 {
		errs = append(errs, fmt.Errorf("message_cap must be positive, got %d", e.MessageCap))
	}
	if e.MessageCharLimit <= 0 {
		errs = append(errs, fmt.Errorf("message_char_limit must be positive, got %d", e.MessageCharLimit))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
