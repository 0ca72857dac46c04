package core

// =============================================================================
// Issues
// =============================================================================

// Issue represents a lint finding for one file.
type Issue struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file"`
	Line     int      `json:"line,omitempty"`   // 1-based; 0 when not applicable
	Column   int      `json:"column,omitempty"` // 1-based; 0 when not applicable
	Fixable  bool     `json:"fixable"`
}

// =============================================================================
// Fixes
// =============================================================================

// ChangeType tags a FileChange.
type ChangeType string

// Supported change types.
const (
	ChangeInsert  ChangeType = "insert"
	ChangeReplace ChangeType = "replace"
	ChangeDelete  ChangeType = "delete"
	ChangeMove    ChangeType = "move"
)

// FileChange is one edit within a Fix.
//
// Fields used per type:
//   - insert:  Line, Column, NewText
//   - replace: Line (optional anchor), OldText, NewText
//   - delete:  Line, OldText (empty OldText deletes the whole line)
//   - move:    OldPath, NewPath (vault-relative)
type FileChange struct {
	Type    ChangeType `json:"type"`
	Line    int        `json:"line,omitempty"`
	Column  int        `json:"column,omitempty"`
	OldText string     `json:"old_text,omitempty"`
	NewText string     `json:"new_text,omitempty"`
	OldPath string     `json:"old_path,omitempty"`
	NewPath string     `json:"new_path,omitempty"`
}

// Fix is an ordered set of changes resolving one or more issues.
type Fix struct {
	RuleID      string       `json:"rule_id"`
	File        string       `json:"file"`
	Description string       `json:"description"`
	Changes     []FileChange `json:"changes"`
}
