package delimiter

import (
	"strings"

	"gopkg.in/yaml.v3"

	"streamblocks/syntax"
)

// Frontmatter implements the DelimiterFrontmatter syntax: an opening marker
// ("!!start") followed by an optional "---"-delimited YAML metadata section,
// then content, then a closing marker ("!!end"). If the line right after the
// opening marker is not "---", no metadata section exists for this block and
// every interior line is content — the same permissive rule spec.md §4.2
// states explicitly for MarkdownFrontmatter, applied here for consistency.
type Frontmatter struct {
	delimiter string
}

// NewFrontmatter constructs a Frontmatter syntax using delimiter as the
// marker prefix. An empty delimiter falls back to DefaultDelimiter.
func NewFrontmatter(delimiter string) *Frontmatter {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return &Frontmatter{delimiter: delimiter}
}

func (s *Frontmatter) Name() string { return "delimiter_frontmatter" }

func (s *Frontmatter) openingMarker() string { return s.delimiter + "start" }
func (s *Frontmatter) closingMarker() string { return s.delimiter + "end" }

func (s *Frontmatter) Detect(lineText string, candidate *syntax.Candidate) syntax.DetectionResult {
	trimmed := strings.TrimRight(lineText, " \t\r")

	if candidate == nil {
		if trimmed == s.openingMarker() {
			return syntax.DetectionResult{IsOpening: true}
		}
		return syntax.DetectionResult{}
	}

	if trimmed == s.closingMarker() {
		return syntax.DetectionResult{IsClosing: true}
	}

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

func (s *Frontmatter) Validate(metadata, content map[string]any) bool {
	return metadata != nil && content != nil
}

func (s *Frontmatter) AllowsOverlappingOpenings() bool { return false }
