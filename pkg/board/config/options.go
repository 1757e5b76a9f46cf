package config

import (
	"fmt"
	"time"
)

// Defaults for board options.
const (
	DefaultGenerationTimeout = 60 * time.Second
	DefaultManualRetryLimit  = 3
	DefaultResizeDebounce    = 400 * time.Millisecond
	DefaultRequestTimeout    = 30 * time.Second
)

// Options are the typed settings consumed by the flow manager and derivers.
type Options struct {
	// APIOrigin is the backend HTTP origin, e.g. "https://api.example.com".
	APIOrigin string

	// BearerToken authenticates backend calls. Supplied by the out-of-scope
	// auth collaborator.
	BearerToken string

	// GenerationTimeout bounds one generation attempt (the watchdog).
	GenerationTimeout time.Duration

	// ManualRetryLimit caps manual retries of a failed generation.
	ManualRetryLimit int

	// ResizeDebounce delays persisting resize deltas during a drag.
	ResizeDebounce time.Duration

	// RequestTimeout bounds non-streaming backend calls.
	RequestTimeout time.Duration

	// SnapshotPath is the local SQLite snapshot database path.
	// Empty selects the in-memory store.
	SnapshotPath string
}

// OptionsFrom extracts Options from a Config, filling defaults for missing
// keys.
func OptionsFrom(cfg Config) Options {
	return Options{
		APIOrigin:         cfg.String("api_origin", ""),
		BearerToken:       cfg.String("bearer_token", ""),
		GenerationTimeout: cfg.Duration("generation_timeout", DefaultGenerationTimeout),
		ManualRetryLimit:  cfg.Int("manual_retry_limit", DefaultManualRetryLimit),
		ResizeDebounce:    cfg.Duration("resize_debounce", DefaultResizeDebounce),
		RequestTimeout:    cfg.Duration("request_timeout", DefaultRequestTimeout),
		SnapshotPath:      cfg.String("snapshot_path", ""),
	}
}

// DefaultOptions returns Options with every default applied.
func DefaultOptions() Options {
	return OptionsFrom(New(nil))
}

// Validate rejects settings that would disable the generation watchdog or the
// retry cap outright. Zero values for the durations mean "no bound" and are
// never what a deployment wants.
func (o Options) Validate() error {
	if o.GenerationTimeout <= 0 {
		return fmt.Errorf("generation_timeout must be positive, got %s", o.GenerationTimeout)
	}
	if o.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", o.RequestTimeout)
	}
	if o.ResizeDebounce < 0 {
		return fmt.Errorf("resize_debounce must not be negative, got %s", o.ResizeDebounce)
	}
	if o.ManualRetryLimit < 0 {
		return fmt.Errorf("manual_retry_limit must not be negative, got %d", o.ManualRetryLimit)
	}
	return nil
}
