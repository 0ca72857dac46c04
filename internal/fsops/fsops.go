// Package fsops performs the engine's file system operations with retry
// and error classification.
package fsops

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/leapstack-labs/vaultlint/pkg/core"
)

// RecoveryPolicy controls how failed operations are retried.
type RecoveryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// Delay is the constant wait between attempts.
	Delay time.Duration
	// Fallback, when set, supplies content for a read that failed after
	// all retries. Returning an error keeps the read failed.
	Fallback func(path string, err error) ([]byte, error)
	// SkipOnError lets callers drop a failed file and continue.
	SkipOnError bool
}

// DefaultRecoveryPolicy returns the policy used when none is configured.
func DefaultRecoveryPolicy() RecoveryPolicy {
	return RecoveryPolicy{
		MaxRetries:  2,
		Delay:       50 * time.Millisecond,
		SkipOnError: true,
	}
}

// FileData is the result of a read.
type FileData struct {
	Content []byte
	ModTime time.Time
	Size    int64
}

// FS wraps the operating system file system.
type FS struct {
	policy RecoveryPolicy
	logger *slog.Logger

	readFile  func(string) ([]byte, error)
	writeFile func(string, []byte, fs.FileMode) error
}

// New creates an FS.
func New(policy RecoveryPolicy, logger *slog.Logger) *FS {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &FS{
		policy:    policy,
		logger:    logger,
		readFile:  os.ReadFile,
		writeFile: writeAtomic,
	}
}

// Policy returns the recovery policy.
func (f *FS) Policy() RecoveryPolicy {
	return f.policy
}

// ShouldSkip reports whether a failed file may be dropped from a run.
func (f *FS) ShouldSkip(err error) bool {
	return f.policy.SkipOnError && !core.IsFatal(err)
}

// ReadFile reads path, retrying transient failures.
func (f *FS) ReadFile(ctx context.Context, path string) (*FileData, error) {
	var data []byte
	err := f.do(ctx, "read", path, func() error {
		var err error
		data, err = f.readFile(path)
		return err
	})
	if err != nil && f.policy.Fallback != nil {
		if fb, fbErr := f.policy.Fallback(path, err); fbErr == nil {
			f.logger.Warn("using fallback content", "path", path, "error", err)
			return &FileData{Content: fb, Size: int64(len(fb))}, nil
		}
	}
	if err != nil {
		return nil, classify("read", path, err, core.CodeReadFailed)
	}

	fd := &FileData{Content: data, Size: int64(len(data))}
	if info, statErr := os.Stat(path); statErr == nil {
		fd.ModTime = info.ModTime()
	}
	return fd, nil
}

// WriteFile replaces path's content atomically, keeping its permissions.
func (f *FS) WriteFile(ctx context.Context, path string, data []byte) error {
	perm := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	err := f.do(ctx, "write", path, func() error {
		return f.writeFile(path, data, perm)
	})
	if err != nil {
		return classify("write", path, err, core.CodeWriteFailed)
	}
	return nil
}

// Rename moves oldPath to newPath, creating parent directories. It refuses
// to overwrite an existing file.
func (f *FS) Rename(ctx context.Context, oldPath, newPath string) error {
	if _, err := os.Lstat(newPath); err == nil {
		return core.NewError(core.CodeWriteFailed, "rename", newPath, fs.ErrExist)
	}
	err := f.do(ctx, "rename", oldPath, func() error {
		if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
			return err
		}
		return os.Rename(oldPath, newPath)
	})
	if err != nil {
		return classify("rename", oldPath, err, core.CodeWriteFailed)
	}
	return nil
}

// do runs op under the retry policy. Missing files and permission errors
// are permanent.
func (f *FS) do(ctx context.Context, name, path string, op func() error) error {
	backoff := retry.WithMaxRetries(uint64(f.policy.MaxRetries), retry.NewConstant(max(f.policy.Delay, time.Millisecond)))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return err
		}
		f.logger.Debug("file operation failed, retrying",
			"op", name,
			"path", path,
			"attempt", attempt,
			"error", err)
		return retry.RetryableError(err)
	})
}

func classify(op, path string, err error, fallback core.ErrorCode) error {
	code := fallback
	switch {
	case errors.Is(err, fs.ErrNotExist):
		code = core.CodeFileNotFound
	case errors.Is(err, fs.ErrPermission):
		code = core.CodeAccessDenied
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = core.CodeCanceled
	}
	return core.NewError(code, op, path, err)
}

func writeAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		return cleanup(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
