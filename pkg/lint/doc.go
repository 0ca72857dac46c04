// Package lint defines the contracts between the vaultlint engine and rule
// implementations.
//
// # Rules
//
// A Rule is built from a Definition loaded from a TOML file. Every rule
// lints; rules that can repair their findings also implement Fixer, and
// rules with custom applicability implement PathFilter:
//
//	type Rule interface {
//		ID() core.RuleID
//		Lint(ctx context.Context, ec *ExecutionContext) ([]core.Issue, error)
//		...
//	}
//
// # Families
//
// Concrete implementations are selected by the major segment of the rule
// id through a Registry. Family packages register themselves from init():
//
//	import _ "github.com/leapstack-labs/vaultlint/pkg/lint/families"
//
// A majorId with no registered family resolves to a placeholder rule that
// logs a warning and reports nothing, so definitions can be written ahead
// of their implementation.
//
// # Settings
//
// The [settings] table of a definition is decoded into a family-specific
// struct with DecodeSettings, which applies defaults and runs Validate.
package lint
