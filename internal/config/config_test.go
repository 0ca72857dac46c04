package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/vaultlint/pkg/core"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(Options{SearchDir: dir, Env: []string{}})
	require.NoError(t, err)

	assert.Empty(t, cfg.File)
	assert.Equal(t, dir, cfg.BaseDir)
	assert.Equal(t, filepath.Join(dir, DefaultRulesPath), cfg.RulesPath)
	assert.Equal(t, DefaultProfile, cfg.ActiveProfile)
	assert.Equal(t, DefaultIgnore, cfg.Ignore)
	assert.Equal(t, DefaultExtensions, cfg.Extensions)
	assert.Equal(t, DefaultTaskTimeout, cfg.TaskTimeout)
	assert.Equal(t, DefaultCacheEntries, cfg.Cache.MaxEntries)
	assert.Equal(t, ByteSize(DefaultCacheBytes), cfg.Cache.MaxBytes)
	assert.Equal(t, ByteSize(DefaultSoftLimit), cfg.Memory.SoftLimit)
	assert.Equal(t, ByteSize(DefaultHardLimit), cfg.Memory.HardLimit)
	assert.Equal(t, DefaultRetryDelay, cfg.Recovery.RetryDelay)
	assert.True(t, cfg.Recovery.SkipOnError)
	assert.GreaterOrEqual(t, cfg.MaxConcurrency, 1)

	rules, err := cfg.ProfileRulesPath("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultRulesPath, DefaultProfile), rules)
}

func TestLoad_FileSearchedUpward(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileNameAlt), `
rules_path: lint-rules
active_profile: work
profiles:
  work:
    description: Work vault
  archive:
    rules_path: /srv/archive-rules
ignore: [templates]
parallel: true
max_concurrency: 3
task_timeout: 5s
cache:
  max_bytes: 16MiB
memory:
  soft_limit: 100 MB
  hard_limit: 1GiB
  max_batch: 10
  initial_batch: 2
`)
	vault := filepath.Join(root, "a", "b", "vault")
	require.NoError(t, os.MkdirAll(vault, 0o755))

	cfg, err := Load(Options{SearchDir: vault, Env: []string{}})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, FileNameAlt), cfg.File)
	assert.Equal(t, root, cfg.BaseDir)
	assert.Equal(t, filepath.Join(root, "lint-rules"), cfg.RulesPath)
	assert.Equal(t, []string{"templates"}, cfg.Ignore)
	assert.True(t, cfg.Parallel)
	assert.Equal(t, 3, cfg.MaxConcurrency)
	assert.Equal(t, 5*time.Second, cfg.TaskTimeout)
	assert.Equal(t, ByteSize(16<<20), cfg.Cache.MaxBytes)
	assert.Equal(t, DefaultCacheEntries, cfg.Cache.MaxEntries, "unset nested keys keep defaults")
	assert.Equal(t, ByteSize(100_000_000), cfg.Memory.SoftLimit)
	assert.Equal(t, 10, cfg.Memory.MaxBatch)
	assert.ElementsMatch(t, []string{"default", "work", "archive"}, cfg.ProfileNames())

	work, err := cfg.ProfileRulesPath("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "lint-rules", "work"), work)

	archive, err := cfg.ProfileRulesPath("archive")
	require.NoError(t, err)
	assert.Equal(t, "/srv/archive-rules", archive)

	_, err = cfg.ProfileRulesPath("missing")
	assert.Error(t, err)
}

func TestLoad_SearchStopsAfterTenLevels(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), "parallel: true\n")
	deep := root
	for i := range 11 {
		deep = filepath.Join(deep, string(rune('a'+i)))
	}
	require.NoError(t, os.MkdirAll(deep, 0o755))

	assert.Empty(t, FindConfigFile(deep))
	assert.Equal(t, filepath.Join(root, FileName), FindConfigFile(filepath.Dir(filepath.Dir(deep))))
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, FileName), "max_concurrency: 2\nlog_level: warn\nparallel: false\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("max-concurrency", 0, "")
	flags.Bool("parallel", false, "")
	flags.Bool("fix", false, "")
	flags.String("rules-path", "", "")
	require.NoError(t, flags.Parse([]string{"--max-concurrency=7", "--fix", "--rules-path=rel/rules"}))

	cfg, err := Load(Options{
		SearchDir: dir,
		Flags:     flags,
		Env: []string{
			"VAULTLINT_MAX_CONCURRENCY=5",
			"VAULTLINT_LOG_LEVEL=debug",
			"VAULTLINT_CACHE__MAX_ENTRIES=42",
			"VAULTLINT_IGNORE=drafts,archive",
			"OTHER=1",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.MaxConcurrency, "flag beats env and file")
	assert.Equal(t, "debug", cfg.LogLevel, "env beats file")
	assert.False(t, cfg.Parallel, "unset flag does not override")
	assert.Equal(t, 42, cfg.Cache.MaxEntries)
	assert.Equal(t, []string{"drafts", "archive"}, cfg.Ignore)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "rel", "rules"), cfg.RulesPath, "flag paths resolve against the working directory")
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(Options{File: filepath.Join(dir, "nope.yaml"), Env: []string{}})
	assert.Equal(t, core.CodeConfigNotFound, core.CodeOf(err))

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "parallel: [unclosed\n")
	_, err = Load(Options{File: bad, Env: []string{}})
	assert.Equal(t, core.CodeConfigInvalid, core.CodeOf(err))

	invalid := filepath.Join(dir, "invalid.yaml")
	writeFile(t, invalid, "active_profile: ghost\nmemory:\n  soft_limit: 2GiB\n")
	_, err = Load(Options{File: invalid, Env: []string{}})
	require.Error(t, err)
	assert.Equal(t, core.CodeConfigInvalid, core.CodeOf(err))
	assert.ErrorContains(t, err, "ghost")
	assert.ErrorContains(t, err, "hard_limit")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"zero concurrency", func(c *Config) { c.MaxConcurrency = 0 }, "max_concurrency"},
		{"negative timeout", func(c *Config) { c.TaskTimeout = -time.Second }, "task_timeout"},
		{"no cache entries", func(c *Config) { c.Cache.MaxEntries = 0 }, "cache.max_entries"},
		{"hard equals soft", func(c *Config) { c.Memory.HardLimit = c.Memory.SoftLimit }, "hard_limit"},
		{"initial above max", func(c *Config) { c.Memory.InitialBatch = c.Memory.MaxBatch + 1 }, "initial_batch"},
		{"negative retries", func(c *Config) { c.Recovery.MaxRetries = -1 }, "max_retries"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"unknown profile", func(c *Config) { c.ActiveProfile = "nope" }, "active_profile"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte("rules_path: rules\nrecovery:\n  retry_delay: 1s\n"), "/vault")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/vault", "rules"), cfg.RulesPath)
	assert.Equal(t, time.Second, cfg.Recovery.RetryDelay)

	_, err = Parse([]byte("max_concurrency: -1\n"), "/vault")
	assert.Equal(t, core.CodeConfigInvalid, core.CodeOf(err))
}

func TestByteSize(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("64MiB")))
	assert.Equal(t, ByteSize(64<<20), b)
	assert.Equal(t, "64 MiB", b.String())
	assert.Error(t, b.UnmarshalText([]byte("lots")))
}
