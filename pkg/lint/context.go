package lint

import (
	"log/slog"
	"maps"

	"github.com/leapstack-labs/vaultlint/pkg/document"
)

// ExecOptions are the run-level flags copied into every ExecutionContext.
type ExecOptions struct {
	DryRun  bool
	Verbose bool
}

// ExecutionContext is the per file x rule input to Lint and Fix.
// It is created per invocation and must not be retained by rules.
type ExecutionContext struct {
	File      *document.Document
	VaultPath string
	DryRun    bool
	Verbose   bool

	// Metadata holds derived document facts merged with caller extras
	Metadata map[string]any

	Logger *slog.Logger
}

// NewExecutionContext builds a context with derived metadata merged with
// extra. Keys in extra override derived facts.
func NewExecutionContext(file *document.Document, vaultPath string, opts ExecOptions, extra map[string]any) *ExecutionContext {
	meta := map[string]any{}
	if file != nil {
		meta = file.Stats()
	}
	maps.Copy(meta, extra)
	return &ExecutionContext{
		File:      file,
		VaultPath: vaultPath,
		DryRun:    opts.DryRun,
		Verbose:   opts.Verbose,
		Metadata:  meta,
	}
}

// Path returns the vault-relative path of the file, or "" when unset.
func (ec *ExecutionContext) Path() string {
	if ec == nil || ec.File == nil {
		return ""
	}
	return ec.File.Path
}

// Log returns the context logger, never nil.
func (ec *ExecutionContext) Log() *slog.Logger {
	if ec == nil || ec.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return ec.Logger
}
