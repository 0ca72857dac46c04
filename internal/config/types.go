// Package config loads vaultlint configuration.
//
// Values are layered with koanf, lowest priority first: built-in defaults,
// the config file (vaultlint.yaml or vaultlint.yml), VAULTLINT_ environment
// variables and finally explicitly set command line flags.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
)

// Config holds all vaultlint options.
type Config struct {
	// RulesPath is the root of the per-profile rule directories.
	RulesPath     string             `koanf:"rules_path"`
	ActiveProfile string             `koanf:"active_profile"`
	Profiles      map[string]Profile `koanf:"profiles"`

	// Ignore lists glob patterns of vault paths the scanner skips.
	Ignore []string `koanf:"ignore"`
	// Extensions admitted by the scanner; "*" admits every file.
	Extensions []string `koanf:"extensions"`

	Parallel       bool          `koanf:"parallel"`
	MaxConcurrency int           `koanf:"max_concurrency"`
	TaskTimeout    time.Duration `koanf:"task_timeout"`

	Cache    CacheConfig    `koanf:"cache"`
	Memory   MemoryConfig   `koanf:"memory"`
	Recovery RecoveryConfig `koanf:"recovery"`

	LogLevel string `koanf:"log_level"`

	// File is the config file that was read; empty when none was found.
	File string `koanf:"-"`
	// BaseDir anchors relative paths: the config file's directory, or the
	// search directory when there is no file.
	BaseDir string `koanf:"-"`
}

// Profile selects a rule set.
type Profile struct {
	Description string `koanf:"description"`
	// RulesPath overrides <rules_path>/<profile name>.
	RulesPath string `koanf:"rules_path"`
}

// CacheConfig bounds the result cache.
type CacheConfig struct {
	MaxEntries int      `koanf:"max_entries"`
	MaxBytes   ByteSize `koanf:"max_bytes"`
}

// MemoryConfig tunes adaptive batching.
type MemoryConfig struct {
	SoftLimit    ByteSize `koanf:"soft_limit"`
	HardLimit    ByteSize `koanf:"hard_limit"`
	MaxBatch     int      `koanf:"max_batch"`
	InitialBatch int      `koanf:"initial_batch"`
}

// RecoveryConfig controls retries of file operations.
type RecoveryConfig struct {
	MaxRetries  int           `koanf:"max_retries"`
	RetryDelay  time.Duration `koanf:"retry_delay"`
	SkipOnError bool          `koanf:"skip_on_error"`
}

// ByteSize is a size in bytes. In config files it may be written as a
// number or a human readable string such as "64MiB" or "1 GB".
type ByteSize uint64

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	n, err := humanize.ParseBytes(string(text))
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", text, err)
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// ProfileRulesPath returns the rules directory of the named profile, or of
// the active profile when name is empty.
func (c *Config) ProfileRulesPath(name string) (string, error) {
	if name == "" {
		name = c.ActiveProfile
	}
	p, ok := c.Profiles[name]
	if !ok {
		return "", fmt.Errorf("unknown profile %q", name)
	}
	if p.RulesPath != "" {
		return p.RulesPath, nil
	}
	return filepath.Join(c.RulesPath, name), nil
}

// ProfileNames returns the configured profile names in no particular order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for n := range c.Profiles {
		names = append(names, n)
	}
	return names
}
