// Package core defines the shared language of the vaultlint system.
//
// This package contains:
//   - Rule identity (RuleID) and parsing
//   - Lint findings (Issue) and remediations (Fix, FileChange)
//   - The error taxonomy shared by the loader, executor and engine
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
