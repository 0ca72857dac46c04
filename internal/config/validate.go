package config

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Validate checks the configuration for values the engine cannot run
// with.
func (c *Config) Validate() error {
	var errs error
	if c.RulesPath == "" {
		errs = multierr.Append(errs, errors.New("rules_path is required"))
	}
	if _, ok := c.Profiles[c.ActiveProfile]; !ok {
		errs = multierr.Append(errs, fmt.Errorf("active_profile %q is not defined in profiles", c.ActiveProfile))
	}
	if c.MaxConcurrency < 1 {
		errs = multierr.Append(errs, fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency))
	}
	if c.TaskTimeout < 0 {
		errs = multierr.Append(errs, fmt.Errorf("task_timeout must not be negative, got %s", c.TaskTimeout))
	}
	if c.Cache.MaxEntries < 1 {
		errs = multierr.Append(errs, fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries))
	}
	if c.Cache.MaxBytes == 0 {
		errs = multierr.Append(errs, errors.New("cache.max_bytes must be positive"))
	}
	if c.Memory.SoftLimit == 0 {
		errs = multierr.Append(errs, errors.New("memory.soft_limit must be positive"))
	}
	if c.Memory.HardLimit <= c.Memory.SoftLimit {
		errs = multierr.Append(errs, fmt.Errorf("memory.hard_limit (%s) must exceed memory.soft_limit (%s)",
			c.Memory.HardLimit, c.Memory.SoftLimit))
	}
	if c.Memory.MaxBatch < 1 {
		errs = multierr.Append(errs, fmt.Errorf("memory.max_batch must be positive, got %d", c.Memory.MaxBatch))
	}
	if c.Memory.InitialBatch < 1 || c.Memory.InitialBatch > c.Memory.MaxBatch {
		errs = multierr.Append(errs, fmt.Errorf("memory.initial_batch must be between 1 and max_batch, got %d", c.Memory.InitialBatch))
	}
	if c.Recovery.MaxRetries < 0 {
		errs = multierr.Append(errs, fmt.Errorf("recovery.max_retries must not be negative, got %d", c.Recovery.MaxRetries))
	}
	if c.Recovery.RetryDelay < 0 {
		errs = multierr.Append(errs, fmt.Errorf("recovery.retry_delay must not be negative, got %s", c.Recovery.RetryDelay))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	return errs
}
