// Package scanner enumerates the files of a vault.
package scanner

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/leapstack-labs/vaultlint/internal/pathmatch"
	"github.com/leapstack-labs/vaultlint/pkg/core"
)

// DefaultExtensions are scanned when Options.Extensions is empty.
var DefaultExtensions = []string{".md", ".markdown"}

// File is one scanned file.
type File struct {
	RelPath string // Vault-relative, slash separated, NFC
	AbsPath string
}

// Options configures a scan.
type Options struct {
	// Ignore patterns are matched against vault-relative paths. Patterns
	// without a slash also match any path segment.
	Ignore []string
	// Extensions limits the scan to these suffixes (case-insensitive).
	// A single "*" admits every file.
	Extensions []string
	// SkipOnError records unreadable entries and continues.
	SkipOnError bool
	Logger      *slog.Logger
}

// Result holds the scanned files in lexical order and any skipped errors.
type Result struct {
	Files  []File
	Errors []error
}

// Scan walks vaultPath.
func Scan(ctx context.Context, vaultPath string, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	root, err := filepath.Abs(vaultPath)
	if err != nil {
		return nil, core.NewError(core.CodeReadFailed, "scan", vaultPath, err)
	}

	res := &Result{}
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = pathmatch.Normalize(rel)

		if walkErr != nil {
			if p == root {
				return walkErr
			}
			wrapped := core.NewError(core.CodeOf(walkErr), "scan", rel, walkErr)
			if wrapped.Code == core.CodeUnknown {
				wrapped.Code = core.CodeReadFailed
			}
			if !opts.SkipOnError {
				return wrapped
			}
			logger.Warn("skipping unreadable entry", "path", rel, "error", walkErr)
			res.Errors = append(res.Errors, wrapped)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if p == root {
			return nil
		}
		if pathmatch.Ignored(opts.Ignore, rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if !hasExtension(rel, exts) {
			return nil
		}
		res.Files = append(res.Files, File{RelPath: rel, AbsPath: p})
		return nil
	})
	if err != nil {
		var coreErr *core.Error
		if errors.As(err, &coreErr) {
			return nil, err
		}
		code := core.CodeOf(err)
		if code == core.CodeUnknown {
			code = core.CodeReadFailed
		}
		return nil, core.NewError(code, "scan", vaultPath, err)
	}

	slices.SortFunc(res.Files, func(a, b File) int { return strings.Compare(a.RelPath, b.RelPath) })
	logger.Debug("vault scanned", "vault", root, "files", len(res.Files), "skipped", len(res.Errors))
	return res, nil
}

func hasExtension(p string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range exts {
		if e == "*" || strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
