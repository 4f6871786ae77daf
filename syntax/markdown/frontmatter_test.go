package markdown

import (
	"testing"

	"streamblocks/syntax"
)

// drive mirrors block.StateMachine's per-line bookkeeping: capture the
// pre-detect section, call Detect, record a closing line with
// AppendClosing, and append any other line using the pre-mutation section
// for boundary lines and the post-mutation section otherwise.
func drive(s *Frontmatter, c *syntax.Candidate, lineNo int, text string) syntax.DetectionResult {
	old := c.CurrentSection
	det := s.Detect(text, c)
	if det.IsClosing {
		c.AppendClosing(lineNo, text)
		return det
	}
	section := c.CurrentSection
	if det.IsSectionBoundary {
		section = old
	}
	c.Append(section, lineNo, text)
	return det
}

func newOpenedCandidate(t *testing.T, s *Frontmatter, opening string) *syntax.Candidate {
	t.Helper()
	det := s.Detect(opening, nil)
	if !det.IsOpening {
		t.Fatalf("expected %q to open a fence", opening)
	}
	c := syntax.NewCandidate(s.Name(), "b1", 1, 0)
	c.InlineMetadata = det.InlineMetadata
	c.Append(syntax.SectionHeader, 1, opening)
	return c
}

func TestFrontmatter_DetectFenceOpenRequiresThreeChars(t *testing.T) {
	s := New()
	if det := s.Detect("``code``", nil); det.IsOpening {
		t.Fatalf("two backticks should not open a fence")
	}
	if det := s.Detect("```json", nil); !det.IsOpening {
		t.Fatalf("three backticks should open a fence")
	}
}

func TestFrontmatter_FullRoundTripWithFrontmatter(t *testing.T) {
	s := New()
	c := newOpenedCandidate(t, s, "```json")

	lines := []string{"---", "id: cfg01", "block_type: config", "---", `{"k":1}`}
	for i, l := range lines {
		drive(s, c, i+2, l)
	}
	drive(s, c, 7, "```")

	result, perr := s.Parse(c)
	if perr != nil {
		t.Fatalf("unexpected parse error: %v", perr)
	}
	if result.Metadata["id"] != "cfg01" || result.Metadata["block_type"] != "config" {
		t.Fatalf("unexpected metadata: %+v", result.Metadata)
	}

	wantRaw := "```json\n---\nid: cfg01\nblock_type: config\n---\n{\"k\":1}\n```"
	if got := c.RawText(); got != wantRaw {
		t.Fatalf("RawText() = %q, want %q", got, wantRaw)
	}

	if len(c.MetadataLines) != 3 {
		t.Fatalf("MetadataLines = %+v, want 3 entries", c.MetadataLines)
	}

	if !s.Validate(result.Metadata, result.Content) {
		t.Fatalf("expected content with a JSON line to validate as markdown")
	}
}

func TestFrontmatter_NoFrontmatterIsAllContent(t *testing.T) {
	s := New()
	c := newOpenedCandidate(t, s, "```go")

	drive(s, c, 2, "package main")
	drive(s, c, 3, "```")

	if len(c.MetadataLines) != 0 {
		t.Fatalf("expected no metadata lines, got %+v", c.MetadataLines)
	}
	if len(c.ContentLines) != 1 || c.ContentLines[0] != "package main" {
		t.Fatalf("unexpected content lines: %+v", c.ContentLines)
	}
}

func TestFrontmatter_ClosingFenceMustMatchLengthAndChar(t *testing.T) {
	s := New()
	c := newOpenedCandidate(t, s, "````go")

	det := drive(s, c, 2, "```")
	if det.IsClosing {
		t.Fatalf("shorter fence run must not close a longer opening fence")
	}
	det = drive(s, c, 3, "~~~~")
	if det.IsClosing {
		t.Fatalf("mismatched fence character must not close")
	}
	det = drive(s, c, 4, "````")
	if !det.IsClosing {
		t.Fatalf("matching fence length and char should close")
	}
}

func TestFrontmatter_Validate_RejectsBlankContent(t *testing.T) {
	s := New()
	if s.Validate(map[string]any{}, map[string]any{"lines": []string{"   ", ""}}) {
		t.Fatalf("expected blank content to fail validation")
	}
}
