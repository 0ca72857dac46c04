package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// =============================================================================
// Error codes
// =============================================================================

// ErrorCode is a stable, machine-readable error classification.
type ErrorCode string

// Error codes grouped by taxonomy.
const (
	// Configuration errors.
	CodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	CodeConfigInvalid  ErrorCode = "CONFIG_INVALID"

	// Rule errors.
	CodeRuleConflict ErrorCode = "RULE_CONFLICT"
	CodeRuleInvalid  ErrorCode = "RULE_INVALID"

	// Filesystem errors.
	CodeFileNotFound ErrorCode = "FILE_NOT_FOUND"
	CodeAccessDenied ErrorCode = "ACCESS_DENIED"
	CodeReadFailed   ErrorCode = "READ_FAILED"
	CodeWriteFailed  ErrorCode = "WRITE_FAILED"
	CodeParseFailed  ErrorCode = "PARSE_FAILED"

	// Execution errors.
	CodeRuleExecution ErrorCode = "RULE_EXECUTION"
	CodeTaskTimeout   ErrorCode = "TASK_TIMEOUT"
	CodeCanceled      ErrorCode = "CANCELED"

	CodeUnknown ErrorCode = "UNKNOWN"
)

// ErrTaskTimeout is returned when a worker unit exceeds its time budget.
var ErrTaskTimeout = errors.New("task timed out")

// Error is the common error type for configuration, rule and filesystem failures.
type Error struct {
	Code ErrorCode
	Op   string // Operation that failed, e.g. "load rules", "write file"
	Path string // File or directory involved (optional)
	Err  error  // Underlying cause (optional)
}

// NewError creates an Error.
func NewError(code ErrorCode, op, path string, err error) *Error {
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ExecutionError reports a specific rule failing against a specific file.
type ExecutionError struct {
	RuleID   string
	FilePath string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("rule %s failed on %s: %v", e.RuleID, e.FilePath, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// CodeOf classifies any error into an ErrorCode.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Code
	}
	switch {
	case errors.Is(err, ErrTaskTimeout):
		return CodeTaskTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	}
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return CodeRuleExecution
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return CodeFileNotFound
	case errors.Is(err, fs.ErrPermission):
		return CodeAccessDenied
	}
	return CodeUnknown
}

// IsFatal reports whether err is a load-time condition that must stop a run
// before any file is processed.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeConfigNotFound, CodeConfigInvalid, CodeRuleConflict, CodeRuleInvalid:
		return true
	default:
		return false
	}
}
