package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/vaultlint/pkg/core"
)

// flagKeys maps command line flags to config keys. Flags not listed here
// are not configuration.
var flagKeys = map[string]string{
	"rules-path":      "rules_path",
	"profile":         "active_profile",
	"ignore":          "ignore",
	"extensions":      "extensions",
	"parallel":        "parallel",
	"max-concurrency": "max_concurrency",
	"task-timeout":    "task_timeout",
	"log-level":       "log_level",
}

// Options controls where Load looks for configuration.
type Options struct {
	// File is an explicit config file. It must exist.
	File string
	// SearchDir is where the upward search for vaultlint.yaml starts,
	// usually the vault. Defaults to the working directory.
	SearchDir string
	// Flags are applied last; only flags that were set count.
	Flags *pflag.FlagSet
	// Env overrides os.Environ, mainly for tests.
	Env []string
}

// configIn returns the config file in dir, or "".
func configIn(dir string) string {
	for _, name := range []string{FileName, FileNameAlt} {
		p := filepath.Join(dir, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

// FindConfigFile searches startDir and its parents, at most ten levels,
// for a config file.
func FindConfigFile(startDir string) string {
	dir := startDir
	for range maxUpwardSearchLevels {
		if p := configIn(dir); p != "" {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// Default returns the built-in configuration anchored at baseDir.
func Default(baseDir string) *Config {
	cfg, err := build(koanf.New("."), "", baseDir, "")
	if err != nil {
		// The defaults are static; failing here is a programming error.
		panic(err)
	}
	return cfg
}

// Load reads the layered configuration and validates it.
func Load(opts Options) (*Config, error) {
	searchDir := opts.SearchDir
	if searchDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, core.NewError(core.CodeConfigInvalid, "load config", "", err)
		}
		searchDir = wd
	}
	if abs, err := filepath.Abs(searchDir); err == nil {
		searchDir = abs
	}

	cfgFile := opts.File
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			code := core.CodeConfigInvalid
			if errors.Is(err, fs.ErrNotExist) {
				code = core.CodeConfigNotFound
			}
			return nil, core.NewError(code, "load config", cfgFile, err)
		}
	} else {
		cfgFile = FindConfigFile(searchDir)
	}

	k := koanf.New(".")
	baseDir := searchDir
	if cfgFile != "" {
		abs, err := filepath.Abs(cfgFile)
		if err == nil {
			cfgFile = abs
		}
		baseDir = filepath.Dir(cfgFile)
	}

	if err := loadLayers(k, cfgFile, opts); err != nil {
		return nil, err
	}

	var flagRules string
	if opts.Flags != nil && opts.Flags.Changed("rules-path") {
		if v, _ := opts.Flags.GetString("rules-path"); v != "" {
			flagRules, _ = filepath.Abs(v)
		}
	}

	cfg, err := build(k, cfgFile, baseDir, flagRules)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, core.NewError(core.CodeConfigInvalid, "validate config", cfgFile, err)
	}
	return cfg, nil
}

// Parse reads configuration from YAML bytes on top of the defaults without
// consulting files, environment or flags.
func Parse(data []byte, baseDir string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, core.NewError(core.CodeConfigInvalid, "parse config", "", err)
	}
	cfg, err := build(k, "", baseDir, "")
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, core.NewError(core.CodeConfigInvalid, "validate config", "", err)
	}
	return cfg, nil
}

func loadLayers(k *koanf.Koanf, cfgFile string, opts Options) error {
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return core.NewError(core.CodeConfigInvalid, "read config", cfgFile, err)
		}
	}

	// VAULTLINT_CACHE__MAX_ENTRIES -> cache.max_entries
	envCb := func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}
	var envProvider koanf.Provider = env.Provider(EnvPrefix, ".", envCb)
	if opts.Env != nil {
		envProvider = confmap.Provider(envMap(opts.Env, envCb), ".")
	}
	if err := k.Load(envProvider, nil); err != nil {
		return core.NewError(core.CodeConfigInvalid, "load env", "", err)
	}

	if opts.Flags != nil {
		err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		}), nil)
		if err != nil {
			return core.NewError(core.CodeConfigInvalid, "load flags", "", err)
		}
	}
	return nil
}

// envMap applies the env key transform to explicit KEY=VALUE pairs.
func envMap(pairs []string, cb func(string) string) map[string]any {
	out := map[string]any{}
	for _, kv := range pairs {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		out[cb(key)] = val
	}
	return out
}

// build merges k over the defaults, decodes it and resolves paths.
func build(k *koanf.Koanf, cfgFile, baseDir, flagRules string) (*Config, error) {
	merged := koanf.New(".")
	if err := merged.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := merged.Merge(k); err != nil {
		return nil, core.NewError(core.CodeConfigInvalid, "merge config", cfgFile, err)
	}

	var cfg Config
	err := merged.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, core.NewError(core.CodeConfigInvalid, "decode config", cfgFile, err)
	}

	cfg.File = cfgFile
	cfg.BaseDir = baseDir
	if flagRules != "" {
		cfg.RulesPath = flagRules
	} else {
		cfg.RulesPath = resolve(cfg.RulesPath, baseDir)
	}
	for name, p := range cfg.Profiles {
		p.RulesPath = resolve(p.RulesPath, baseDir)
		cfg.Profiles[name] = p
	}
	return &cfg, nil
}

// resolve makes p absolute against baseDir. Empty and absolute paths are
// returned unchanged.
func resolve(p, baseDir string) string {
	if p == "" || filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}
