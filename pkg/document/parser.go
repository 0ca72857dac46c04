package document

import (
	"path"
	"regexp"
	"strings"
)

// Parser turns raw file bytes into a Document.
type Parser interface {
	Parse(relPath string, content []byte) (*Document, error)
}

var (
	headingPattern  = regexp.MustCompile(`^(#{1,6})[ \t]+(.*?)[ \t#]*$`)
	wikiLinkPattern = regexp.MustCompile(`(!?)\[\[([^\]|#]+)(?:#[^\]|]*)?(?:\|([^\]]*))?\]\]`)
	mdLinkPattern   = regexp.MustCompile(`(!?)\[([^\]]*)\]\(([^)\s]+)(?:\s+"[^"]*")?\)`)
)

// noteExtensions are link targets that are notes rather than attachments.
var noteExtensions = map[string]bool{
	"":        true,
	".md":     true,
	".mdx":    true,
	".txt":    true,
	".canvas": true,
}

// MarkdownParser parses markdown notes with optional YAML frontmatter.
type MarkdownParser struct{}

// NewMarkdownParser creates a markdown parser.
func NewMarkdownParser() *MarkdownParser {
	return &MarkdownParser{}
}

// Parse implements Parser.
func (p *MarkdownParser) Parse(relPath string, content []byte) (*Document, error) {
	text := string(content)
	fm, err := ExtractFrontmatter(text)
	if err != nil {
		if pe, ok := err.(*FrontmatterParseError); ok {
			pe.File = relPath
		}
		return nil, err
	}

	doc := &Document{
		Path:           relPath,
		Content:        text,
		Frontmatter:    fm.Fields,
		HasFrontmatter: fm.HasYAML,
		FrontmatterEnd: fm.EndLine,
	}

	inFence := false
	fence := ""
	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		if lineNo <= fm.EndLine {
			continue
		}
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			marker := trimmed[:3]
			switch {
			case !inFence:
				inFence, fence = true, marker
			case marker == fence:
				inFence, fence = false, ""
			}
			continue
		}
		if inFence {
			continue
		}

		if m := headingPattern.FindStringSubmatch(line); m != nil {
			doc.Headings = append(doc.Headings, Heading{Level: len(m[1]), Text: m[2], Line: lineNo})
		}

		for _, m := range wikiLinkPattern.FindAllStringSubmatch(line, -1) {
			link := Link{Target: strings.TrimSpace(m[2]), Text: m[3], Line: lineNo, Embed: m[1] == "!", Wiki: true}
			doc.addLink(link)
		}
		for _, m := range mdLinkPattern.FindAllStringSubmatch(line, -1) {
			if strings.Contains(m[3], "://") || strings.HasPrefix(m[3], "mailto:") {
				doc.Links = append(doc.Links, Link{Target: m[3], Text: m[2], Line: lineNo, Embed: m[1] == "!"})
				continue
			}
			doc.addLink(Link{Target: m[3], Text: m[2], Line: lineNo, Embed: m[1] == "!"})
		}
	}

	return doc, nil
}

func (d *Document) addLink(link Link) {
	d.Links = append(d.Links, link)
	if link.Embed && !noteExtensions[strings.ToLower(path.Ext(link.Target))] {
		d.Attachments = append(d.Attachments, link.Target)
	}
}
