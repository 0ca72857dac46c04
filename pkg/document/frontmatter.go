package document

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatterPattern matches a leading "---" ... "---" YAML block.
// The closing delimiter may also be "..." as YAML allows.
var frontmatterPattern = regexp.MustCompile(`(?s)\A---[ \t]*\r?\n(?:(.*?)\r?\n)??(?:---|\.\.\.)[ \t]*(?:\r?\n|\z)`)

// FrontmatterResult holds the result of frontmatter extraction.
type FrontmatterResult struct {
	Fields  map[string]any
	Body    string // Content after the frontmatter block
	HasYAML bool   // Whether a frontmatter block was found
	EndLine int    // 1-based line of the closing delimiter; 0 when absent
}

// ExtractFrontmatter extracts YAML frontmatter from document content.
// Content without a leading "---" line is returned unchanged with HasYAML false.
func ExtractFrontmatter(content string) (*FrontmatterResult, error) {
	result := &FrontmatterResult{
		Fields: map[string]any{},
		Body:   content,
	}

	loc := frontmatterPattern.FindStringSubmatchIndex(content)
	if loc == nil {
		return result, nil
	}

	result.HasYAML = true
	block := content[loc[0]:loc[1]]
	result.Body = content[loc[1]:]
	result.EndLine = strings.Count(strings.TrimRight(block, "\r\n"), "\n") + 1

	if loc[2] < 0 {
		return result, nil
	}
	yamlContent := content[loc[2]:loc[3]]
	if strings.TrimSpace(yamlContent) == "" {
		return result, nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal([]byte(yamlContent), &fields); err != nil {
		return nil, &FrontmatterParseError{
			Line:    2,
			Message: fmt.Sprintf("invalid YAML: %v", err),
		}
	}
	if fields != nil {
		result.Fields = fields
	}
	return result, nil
}

// FrontmatterParseError represents a frontmatter parsing error.
type FrontmatterParseError struct {
	File    string
	Line    int
	Message string
}

func (e *FrontmatterParseError) Error() string {
	if e.File != "" {
		if e.Line > 0 {
			return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
		}
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}
