// Package fixer applies fixes to file content in memory.
package fixer

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/leapstack-labs/vaultlint/pkg/core"
)

// Result is the outcome of applying fixes to one file.
type Result struct {
	Content string
	Changed bool
	// Applied lists fixes whose changes all applied, in order.
	Applied []core.Fix
	// Moves are the path changes of applied fixes, for the caller to perform
	// after content is written.
	Moves []core.FileChange
}

// Apply applies fixes to content in order. Each fix is all-or-nothing: when
// one of its changes cannot be applied the fix is skipped and the error is
// collected, and later fixes still run against the content so far.
func Apply(content string, fixes []core.Fix) (Result, error) {
	res := Result{Content: content}
	var errs error
	for _, f := range fixes {
		next, moves, err := applyFix(res.Content, f)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("fix %q for %s: %w", f.Description, f.RuleID, err))
			continue
		}
		res.Content = next
		res.Moves = append(res.Moves, moves...)
		res.Applied = append(res.Applied, f)
	}
	res.Changed = res.Content != content
	return res, errs
}

func applyFix(content string, f core.Fix) (string, []core.FileChange, error) {
	var moves []core.FileChange
	for i, ch := range f.Changes {
		var err error
		switch ch.Type {
		case core.ChangeInsert:
			content = insert(content, ch)
		case core.ChangeReplace:
			content, err = replace(content, ch)
		case core.ChangeDelete:
			content, err = remove(content, ch)
		case core.ChangeMove:
			if ch.NewPath == "" {
				err = fmt.Errorf("move without destination")
			}
			moves = append(moves, ch)
		default:
			err = fmt.Errorf("unknown change type %q", ch.Type)
		}
		if err != nil {
			return "", nil, fmt.Errorf("change %d (%s): %w", i, ch.Type, err)
		}
	}
	return content, moves, nil
}

// lineStart returns the byte offset of 1-based line n. Lines past the end
// map to len(content).
func lineStart(content string, n int) int {
	if n <= 1 {
		return 0
	}
	off := 0
	for line := 1; line < n; line++ {
		i := strings.IndexByte(content[off:], '\n')
		if i < 0 {
			return len(content)
		}
		off += i + 1
	}
	return off
}

// lineEnd returns the offset just past the newline ending the line that
// starts at off.
func lineEnd(content string, off int) int {
	i := strings.IndexByte(content[off:], '\n')
	if i < 0 {
		return len(content)
	}
	return off + i + 1
}

func insert(content string, ch core.FileChange) string {
	off := lineStart(content, ch.Line)
	if ch.Column > 1 {
		end := lineEnd(content, off)
		col := off + ch.Column - 1
		if col > end {
			col = end
		}
		if end > off && content[end-1] == '\n' && col == end {
			col = end - 1
		}
		off = col
	}
	return content[:off] + ch.NewText + content[off:]
}

func replace(content string, ch core.FileChange) (string, error) {
	if ch.OldText == "" {
		return "", fmt.Errorf("replace without old text")
	}
	off := lineStart(content, ch.Line)
	i := strings.Index(content[off:], ch.OldText)
	if i < 0 {
		return "", fmt.Errorf("text %q not found", ch.OldText)
	}
	at := off + i
	return content[:at] + ch.NewText + content[at+len(ch.OldText):], nil
}

func remove(content string, ch core.FileChange) (string, error) {
	off := lineStart(content, ch.Line)
	if ch.OldText == "" {
		if ch.Line < 1 || off >= len(content) {
			return "", fmt.Errorf("line %d out of range", ch.Line)
		}
		return content[:off] + content[lineEnd(content, off):], nil
	}
	i := strings.Index(content[off:], ch.OldText)
	if i < 0 {
		return "", fmt.Errorf("text %q not found", ch.OldText)
	}
	at := off + i
	return content[:at] + content[at+len(ch.OldText):], nil
}
