// Package document parses vault files into the structured form rules consume.
package document

// Document is a parsed vault file.
type Document struct {
	Path           string         // Vault-relative, slash separated
	AbsPath        string         // Absolute path on disk
	Content        string         // Raw content
	Frontmatter    map[string]any // Parsed YAML frontmatter (empty when absent)
	HasFrontmatter bool
	FrontmatterEnd int // 1-based line of the closing delimiter; 0 when absent
	Headings       []Heading
	Links          []Link
	Attachments    []string // Embedded non-note targets
	AST            any      // Reserved for parsers that produce a syntax tree
}

// Heading is an ATX heading.
type Heading struct {
	Level int
	Text  string
	Line  int
}

// Link is a wiki-style or markdown link.
type Link struct {
	Target string
	Text   string
	Line   int
	Embed  bool // "![[...]]" or "![...](...)"
	Wiki   bool // "[[...]]" form
}

// Stats returns the derived facts exposed to rules as execution metadata.
func (d *Document) Stats() map[string]any {
	lines := 0
	if d.Content != "" {
		lines = 1
		for i := 0; i < len(d.Content); i++ {
			if d.Content[i] == '\n' && i < len(d.Content)-1 {
				lines++
			}
		}
	}
	return map[string]any{
		"size":             len(d.Content),
		"line_count":       lines,
		"heading_count":    len(d.Headings),
		"link_count":       len(d.Links),
		"attachment_count": len(d.Attachments),
		"has_frontmatter":  d.HasFrontmatter,
	}
}
