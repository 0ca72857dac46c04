// Package commands implements the vaultlint subcommands.
package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/vaultlint/internal/config"
	"github.com/leapstack-labs/vaultlint/internal/engine"
	"github.com/leapstack-labs/vaultlint/internal/metrics"
)

// globalsKey is used to store Globals in context.
type globalsKey struct{}

// Globals are the root command settings shared with every subcommand.
type Globals struct {
	// ConfigFile is the explicit --config path, if any.
	ConfigFile string
	Verbose    bool
	Logger     *slog.Logger
	// Level controls Logger; the configured log_level is applied to it
	// once configuration is loaded, unless Verbose forces debug.
	Level *slog.LevelVar
}

// WithGlobals stores g in ctx.
func WithGlobals(ctx context.Context, g *Globals) context.Context {
	return context.WithValue(ctx, globalsKey{}, g)
}

// GetGlobals retrieves the Globals from ctx. Commands executed on their own
// get a discard logger and no config file.
func GetGlobals(ctx context.Context) *Globals {
	if ctx != nil {
		if g, ok := ctx.Value(globalsKey{}).(*Globals); ok {
			return g
		}
	}
	return &Globals{Logger: slog.New(slog.DiscardHandler)}
}

// loadConfig loads the layered configuration for a command. searchDir is
// where the upward config search starts when no --config was given.
func loadConfig(cmd *cobra.Command, searchDir string) (*config.Config, error) {
	g := GetGlobals(cmd.Context())
	cfg, err := config.Load(config.Options{
		File:      g.ConfigFile,
		SearchDir: searchDir,
		Flags:     cmd.Flags(),
	})
	if err != nil {
		return nil, err
	}
	if g.Level != nil && !g.Verbose {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			g.Level.Set(lvl)
		}
	}
	g.Logger.Debug("configuration loaded", "file", cfg.File, "profile", cfg.ActiveProfile)
	return cfg, nil
}

// newEngine creates an engine configured for searchDir. The caller closes
// it.
func newEngine(cmd *cobra.Command, searchDir string, m *metrics.Metrics) (*engine.Engine, error) {
	cfg, err := loadConfig(cmd, searchDir)
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Options{
		Config:  cfg,
		Metrics: m,
		Logger:  GetGlobals(cmd.Context()).Logger,
	})
}
