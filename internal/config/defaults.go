package config

import (
	"runtime"
	"time"
)

// Default configuration values.
const (
	FileName    = "vaultlint.yaml"
	FileNameAlt = "vaultlint.yml"
	EnvPrefix   = "VAULTLINT_"

	DefaultRulesPath      = ".vaultlint/rules"
	DefaultProfile        = "default"
	DefaultTaskTimeout    = 30 * time.Second
	DefaultCacheEntries   = 10_000
	DefaultCacheBytes     = 64 << 20
	DefaultSoftLimit      = 512 << 20
	DefaultHardLimit      = 1 << 30
	DefaultMaxBatch       = 64
	DefaultInitialBatch   = 8
	DefaultMaxRetries     = 2
	DefaultRetryDelay     = 50 * time.Millisecond
	DefaultLogLevel       = "info"
	maxUpwardSearchLevels = 10
)

// DefaultIgnore lists paths skipped in every vault.
var DefaultIgnore = []string{".git", ".obsidian", ".trash", "node_modules"}

// DefaultExtensions are the document extensions scanned by default.
var DefaultExtensions = []string{".md", ".markdown"}

// defaults returns the lowest configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"rules_path":     DefaultRulesPath,
		"active_profile": DefaultProfile,
		"profiles": map[string]any{
			DefaultProfile: map[string]any{"description": "Default rule set"},
		},
		"ignore":          DefaultIgnore,
		"extensions":      DefaultExtensions,
		"parallel":        false,
		"max_concurrency": runtime.NumCPU(),
		"task_timeout":    DefaultTaskTimeout.String(),
		"cache": map[string]any{
			"max_entries": DefaultCacheEntries,
			"max_bytes":   DefaultCacheBytes,
		},
		"memory": map[string]any{
			"soft_limit":    DefaultSoftLimit,
			"hard_limit":    DefaultHardLimit,
			"max_batch":     DefaultMaxBatch,
			"initial_batch": DefaultInitialBatch,
		},
		"recovery": map[string]any{
			"max_retries":   DefaultMaxRetries,
			"retry_delay":   DefaultRetryDelay.String(),
			"skip_on_error": true,
		},
		"log_level": DefaultLogLevel,
	}
}
