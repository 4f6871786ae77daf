// Package delimiter implements the two built-in delimiter-marker syntaxes
// from spec.md §4.2: DelimiterPreamble and DelimiterFrontmatter. Both are
// grounded in the teacher's internal/edit.StreamParser, which recognizes a
// small fixed set of marker lines (>>>>>>> SEARCH, =======, <<<<<<< REPLACE)
// to drive a line-oriented state machine; these two syntaxes generalize that
// idea to a configurable marker prefix and a registry of block types instead
// of one hardcoded file-edit grammar.
package delimiter

import (
	"strings"

	"streamblocks/syntax"
)

// DefaultDelimiter is the marker prefix both variants use unless overridden.
const DefaultDelimiter = "!!"

// Preamble implements the DelimiterPreamble syntax: a single opening line
// carries the block id, type, and any parameters inline
// ("!!id:type[:param...]"); everything up to the closing marker ("!!end")
// is content. There is no separate metadata section.
type Preamble struct {
	delimiter string
}

// NewPreamble constructs a Preamble syntax using delimiter as the marker
// prefix. An empty delimiter falls back to DefaultDelimiter.
func NewPreamble(delimiter string) *Preamble {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	return &Preamble{delimiter: delimiter}
}

func (s *Preamble) Name() string { return "delimiter_preamble" }

func (s *Preamble) closingMarker() string { return s.delimiter + "end" }

func (s *Preamble) Detect(lineText string, candidate *syntax.Candidate) syntax.DetectionResult {
	trimmed := strings.TrimRight(lineText, " \t\r")

	if candidate != nil {
		if trimmed == s.closingMarker() {
			return syntax.DetectionResult{IsClosing: true}
		}
		candidate.CurrentSection = syntax.SectionContent
		return syntax.DetectionResult{}
	}

	if !strings.HasPrefix(trimmed, s.delimiter) || trimmed == s.closingMarker() {
		return syntax.DetectionResult{}
	}
	rest := trimmed[len(s.delimiter):]
	parts := strings.Split(rest, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return syntax.DetectionResult{}
	}

	meta := map[string]string{"id": parts[0], "block_type": parts[1]}
	if len(parts) > 2 {
		meta["params"] = strings.Join(parts[2:], ",")
	}
	return syntax.DetectionResult{IsOpening: true, InlineMetadata: meta}
}

func (s *Preamble) Parse(c *syntax.Candidate) (syntax.ParseResult, *syntax.ParseError) {
	metadata := map[string]any{
		"id":         c.InlineMetadata["id"],
		"block_type": c.InlineMetadata["block_type"],
	}
	if p, ok := c.InlineMetadata["params"]; ok && p != "" {
		metadata["params"] = strings.Split(p, ",")
	}

	lines := append([]string(nil), c.ContentLines...)
	content := map[string]any{"lines": lines}

	return syntax.ParseResult{Metadata: metadata, Content: content}, nil
}

func (s *Preamble) Validate(metadata, content map[string]any) bool {
	id, _ := metadata["id"].(string)
	blockType, _ := metadata["block_type"].(string)
	return id != "" && blockType != ""
}

func (s *Preamble) AllowsOverlappingOpenings() bool { return false }
