package core_test

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leapstack-labs/vaultlint/pkg/core"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want core.ErrorCode
	}{
		{name: "nil", err: nil, want: ""},
		{name: "core error", err: core.NewError(core.CodeWriteFailed, "write file", "a.md", errors.New("disk full")), want: core.CodeWriteFailed},
		{name: "wrapped core error", err: fmt.Errorf("outer: %w", core.NewError(core.CodeRuleConflict, "load rules", "", nil)), want: core.CodeRuleConflict},
		{name: "execution error", err: &core.ExecutionError{RuleID: "x.y", FilePath: "a.md", Err: errors.New("boom")}, want: core.CodeRuleExecution},
		{name: "timeout", err: fmt.Errorf("unit 3: %w", core.ErrTaskTimeout), want: core.CodeTaskTimeout},
		{name: "not exist", err: fs.ErrNotExist, want: core.CodeFileNotFound},
		{name: "permission", err: fs.ErrPermission, want: core.CodeAccessDenied},
		{name: "other", err: errors.New("x"), want: core.CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.CodeOf(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, core.IsFatal(core.NewError(core.CodeRuleConflict, "load rules", "", nil)))
	assert.True(t, core.IsFatal(core.NewError(core.CodeConfigInvalid, "load config", "", nil)))
	assert.False(t, core.IsFatal(&core.ExecutionError{RuleID: "x.y", FilePath: "a.md", Err: errors.New("boom")}))
}

func TestExecutionErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &core.ExecutionError{RuleID: "x.y", FilePath: "notes/a.md", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "x.y")
	assert.Contains(t, err.Error(), "notes/a.md")
}
