// Package markdown implements the MarkdownFrontmatter built-in syntax from
// spec.md §4.2: a fenced code block opens and closes a candidate, with an
// optional "---"-delimited YAML metadata section as its first interior
// lines. The fence scanning (parseFence/isClosingFence/countLeadingSpaces)
// is adapted line-for-line from the teacher's streaming markdown renderer
// (internal/ui/streaming/streaming.go), which uses the same CommonMark fence
// rules to find where a fenced block ends while rendering partial input.
package markdown

import (
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"streamblocks/syntax"
)

// Frontmatter implements the MarkdownFrontmatter syntax.
type Frontmatter struct {
	md goldmark.Markdown
}

// New constructs a Frontmatter syntax with a default goldmark parser.
func New() *Frontmatter {
	return &Frontmatter{md: goldmark.New()}
}

func (s *Frontmatter) Name() string { return "markdown_frontmatter" }

// fenceKey names the InlineMetadata key under which the opening fence's
// shape (char, length, indent) is stashed, so
// Candidate stays syntax-agnostic (spec.md §9: the Syntax, not the
// Candidate, owns format-specific detection state).
func fenceKey(key string) string { return "_fence_" + key }

func (s *Frontmatter) Detect(lineText string, candidate *syntax.Candidate) syntax.DetectionResult {
	if candidate == nil {
		char, length, indent := parseFence(lineText)
		if length < 3 {
			return syntax.DetectionResult{}
		}
		return syntax.DetectionResult{
			IsOpening: true,
			InlineMetadata: map[string]string{
				fenceKey("char"):   string(char),
				fenceKey("length"): strconv.Itoa(length),
				fenceKey("indent"): strconv.Itoa(indent),
			},
		}
	}

	openChar := rune(candidate.InlineMetadata[fenceKey("char")][0])
	openLen, _ := strconv.Atoi(candidate.InlineMetadata[fenceKey("length")])
	openIndent, _ := strconv.Atoi(candidate.InlineMetadata[fenceKey("indent")])

	if isClosingFence(lineText, openChar, openLen, openIndent) {
		return syntax.DetectionResult{IsClosing: true}
	}

	trimmed := strings.TrimRight(lineText, " \t\r")
	if trimmed == "---" {
		switch candidate.CurrentSection {
		case syntax.SectionHeader:
			candidate.CurrentSection = syntax.SectionMetadata
			return syntax.DetectionResult{IsSectionBoundary: true}
		case syntax.SectionMetadata:
			candidate.CurrentSection = syntax.SectionContent
			return syntax.DetectionResult{IsSectionBoundary: true}
		default:
			return syntax.DetectionResult{}
		}
	}

	if candidate.CurrentSection == syntax.SectionHeader {
		candidate.CurrentSection = syntax.SectionContent
	}
	return syntax.DetectionResult{}
}

func (s *Frontmatter) Parse(c *syntax.Candidate) (syntax.ParseResult, *syntax.ParseError) {
	metaLines := c.MetadataLines
	if n := len(metaLines); n > 0 && strings.TrimSpace(metaLines[n-1]) == "---" {
		metaLines = metaLines[:n-1]
	}

	metadata := map[string]any{}
	if len(metaLines) > 0 {
		if err := yaml.Unmarshal([]byte(strings.Join(metaLines, "\n")), &metadata); err != nil {
			return syntax.ParseResult{}, &syntax.ParseError{
				SyntaxName: s.Name(),
				Kind:       syntax.ErrYAML,
				Message:    err.Error(),
			}
		}
	}

	content := map[string]any{"lines": append([]string(nil), c.ContentLines...)}
	return syntax.ParseResult{Metadata: metadata, Content: content}, nil
}

// Validate requires the content lines, parsed as markdown, to resolve to at
// least one block-level node — it rejects a fenced block whose content is
// pure whitespace even when metadata parsed cleanly.
func (s *Frontmatter) Validate(metadata, content map[string]any) bool {
	lines, _ := content["lines"].([]string)
	src := []byte(strings.Join(lines, "\n"))
	doc := s.md.Parser().Parse(text.NewReader(src))
	return doc.FirstChild() != nil
}

func (s *Frontmatter) AllowsOverlappingOpenings() bool { return false }
