package syncer

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Section is one importable chunk of a markdown file.
type Section struct {
	// Header is the "## " heading text, empty for preamble content.
	Header string
	// Body is the section text with surrounding whitespace trimmed.
	Body string
}

// Slug returns the header as a lowercase entity tag, or empty when the
// section has no header.
func (s Section) Slug() string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s.Header)), " ", "-")
}

// Frontmatter is the optional YAML block at the top of a memory file. It
// overrides per-file import defaults.
type Frontmatter struct {
	// Type overrides the memory type for every section in the file.
	Type string `yaml:"type"`

	// Importance overrides the default import importance when positive.
	Importance float64 `yaml:"importance"`

	// Entities are added to every section's entity tags.
	Entities []string `yaml:"entities"`
}

// ParseDocument splits a markdown document into frontmatter and sections.
// Sections split on "## " headings; "# " title lines are dropped; content
// before the first heading becomes a headerless section.
func ParseDocument(content string) (Frontmatter, []Section, error) {
	var fm Frontmatter
	body, raw := splitFrontmatter(content)
	if raw != "" {
		if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
			return Frontmatter{}, nil, fmt.Errorf("invalid frontmatter: %w", err)
		}
	}
	return fm, SplitSections(body), nil
}

// splitFrontmatter separates a leading "---" delimited YAML block from the
// rest of the document. Returns the body and the raw YAML (empty when the
// document has no frontmatter).
func splitFrontmatter(content string) (body, raw string) {
	if !strings.HasPrefix(content, "---\n") && content != "---" {
		return content, ""
	}
	rest := strings.TrimPrefix(content, "---\n")
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return content, ""
	}
	raw = rest[:end]
	body = rest[end+len("\n---"):]
	return strings.TrimPrefix(body, "\n"), raw
}

// SplitSections splits markdown content on "## " headings.
func SplitSections(content string) []Section {
	var sections []Section
	current := Section{}
	var buf strings.Builder

	flush := func() {
		body := strings.TrimSpace(buf.String())
		if body != "" {
			current.Body = body
			sections = append(sections, current)
		}
		buf.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "## "):
			flush()
			current = Section{Header: strings.TrimSpace(line[3:])}
		case strings.HasPrefix(line, "# "):
			// Document title, not content.
		default:
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
	flush()
	return sections
}

// SectionContent renders a section as stored memory content: the header as
// a prefix so the context survives outside the file.
func SectionContent(s Section) string {
	if s.Header == "" {
		return s.Body
	}
	return s.Header + ": " + s.Body
}
