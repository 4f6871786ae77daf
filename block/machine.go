package block

import (
	"fmt"
	"strings"

	"streamblocks/syntax"
)

// StateMachine drives one Syntax over a stream of numbered lines,
// maintaining zero or more concurrent Candidates (spec.md §4.3, §4.4). A
// StateMachine is single-owner, created fresh per stream, the same lifetime
// discipline the teacher's edit.StreamParser follows.
type StateMachine struct {
	syn          syntax.Syntax
	maxBlockSize int

	active  []*syntax.Candidate
	counter int
}

// New creates a StateMachine driving syn, rejecting any candidate whose
// accumulated size exceeds maxBlockSize (<=0 disables the limit).
func New(syn syntax.Syntax, maxBlockSize int) *StateMachine {
	return &StateMachine{syn: syn, maxBlockSize: maxBlockSize}
}

// ActiveCount reports the number of candidates currently in flight.
func (m *StateMachine) ActiveCount() int { return len(m.active) }

// Peek reports the block ID and current section of the oldest active
// candidate, for callers (the orchestrator's TextDelta annotation) that need
// to know "are we inside a block right now" without driving the machine.
func (m *StateMachine) Peek() (blockID string, section syntax.Section, ok bool) {
	if len(m.active) == 0 {
		return "", "", false
	}
	c := m.active[0]
	return c.BlockID, c.CurrentSection, true
}

// publicInlineMetadata drops any implementation-private key (one that a
// Syntax prefixed with "_" for its own later Detect calls, e.g. the fenced
// markdown syntax's stashed fence shape) before a map reaches a public
// event.
func publicInlineMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ProcessLine runs one Line through the state machine, returning the
// internal events it produced, in emission order (spec.md §4.4's per-line
// algorithm).
func (m *StateMachine) ProcessLine(lineNumber int, text string) []Event {
	if len(m.active) > 0 {
		events := m.advanceActive(lineNumber, text)
		if !m.syn.AllowsOverlappingOpenings() {
			return events
		}
		if opened := m.tryOpen(lineNumber, text); opened != nil {
			events = append(events, *opened)
		}
		return events
	}

	if opened := m.tryOpen(lineNumber, text); opened != nil {
		return []Event{*opened}
	}

	return []Event{{Kind: RawLine, LineNumber: lineNumber, Text: text}}
}

// advanceActive hands the line to every currently active candidate, in
// creation order, closing or rejecting any that finish on this line.
func (m *StateMachine) advanceActive(lineNumber int, text string) []Event {
	var events []Event
	remaining := m.active[:0]

	for _, c := range m.active {
		oldSection := c.CurrentSection
		det := m.syn.Detect(text, c)

		if det.IsClosing {
			c.AppendClosing(lineNumber, text)
			if c.SizeExceeded() {
				events = append(events, m.reject(c, SizeExceeded, fmt.Sprintf(
					"accumulated size %d exceeded max_block_size", c.AccumulatedSize)))
				continue
			}
			events = append(events, m.finalize(c)...)
			continue
		}

		section := c.CurrentSection
		if det.IsSectionBoundary {
			section = oldSection
		}
		c.Append(section, lineNumber, text)

		if c.SizeExceeded() {
			events = append(events, m.reject(c, SizeExceeded, fmt.Sprintf(
				"accumulated size %d exceeded max_block_size", c.AccumulatedSize)))
			continue
		}

		events = append(events, deltaEvent(c, section, lineNumber, text, det.IsSectionBoundary))
		remaining = append(remaining, c)
	}

	m.active = remaining
	return events
}

func deltaEvent(c *syntax.Candidate, section syntax.Section, lineNumber int, text string, isBoundary bool) Event {
	e := Event{
		BlockID:         c.BlockID,
		LineNumber:      lineNumber,
		Delta:           text,
		AccumulatedSize: c.AccumulatedSize,
		IsBoundary:      isBoundary,
	}
	switch section {
	case syntax.SectionHeader:
		e.Kind = HeaderDelta
	case syntax.SectionMetadata:
		e.Kind = MetadataDelta
	default:
		e.Kind = ContentDelta
	}
	return e
}

// tryOpen probes for a new opening on a line no active candidate absorbed.
func (m *StateMachine) tryOpen(lineNumber int, text string) *Event {
	det := m.syn.Detect(text, nil)
	if !det.IsOpening {
		return nil
	}

	m.counter++
	blockID := fmt.Sprintf("%s-%d-%d", m.syn.Name(), lineNumber, m.counter)
	c := syntax.NewCandidate(m.syn.Name(), blockID, lineNumber, m.maxBlockSize)
	c.InlineMetadata = det.InlineMetadata
	c.Append(syntax.SectionHeader, lineNumber, text)

	m.active = append(m.active, c)

	blockType := ""
	if det.InlineMetadata != nil {
		blockType = det.InlineMetadata["block_type"]
	}

	return &Event{
		Kind:           Opened,
		LineNumber:     lineNumber,
		BlockID:        blockID,
		SyntaxName:     m.syn.Name(),
		StartLine:      lineNumber,
		BlockType:      blockType,
		InlineMetadata: publicInlineMetadata(det.InlineMetadata),
	}
}

// finalize parses and syntax-validates a candidate whose closing marker was
// just seen, transitioning it to COMPLETED or REJECTED (spec.md §4.3's
// CLOSING_DETECTED row) and returning the resulting Closed or Rejected
// event. The candidate is never returned to m.active.
func (m *StateMachine) finalize(c *syntax.Candidate) []Event {
	c.SetState(syntax.ClosingDetected)

	result, perr := m.syn.Parse(c)
	if perr != nil {
		return []Event{m.reject(c, parseErrorCode(perr), perr.Error())}
	}

	if !m.syn.Validate(result.Metadata, result.Content) {
		return []Event{m.reject(c, missingSectionCode(result), "syntax-level validation failed")}
	}

	c.SetState(syntax.Completed)
	blockType := blockTypeOf(c, result.Metadata)

	return []Event{{
		Kind:       Closed,
		LineNumber: c.LastLine(),
		BlockID:    c.BlockID,
		SyntaxName: c.SyntaxName,
		StartLine:  c.StartLine,
		EndLine:    c.LastLine(),
		BlockType:  blockType,
		Metadata:   result.Metadata,
		Content:    result.Content,
		RawText:    c.RawText(),
	}}
}

func (m *StateMachine) reject(c *syntax.Candidate, code ErrorCode, reason string) Event {
	c.SetState(syntax.Rejected)
	return Event{
		Kind:       Rejected,
		LineNumber: c.LastLine(),
		BlockID:    c.BlockID,
		SyntaxName: c.SyntaxName,
		StartLine:  c.StartLine,
		EndLine:    c.LastLine(),
		BlockType:  blockTypeOf(c, nil),
		RawText:    c.RawText(),
		Code:       code,
		Reason:     reason,
	}
}

// Flush rejects every still-active candidate as UNCLOSED_BLOCK, in creation
// order (spec.md §4.4's end-of-stream flush). Called at most once per
// stream, by the orchestrator's finalize.
func (m *StateMachine) Flush() []Event {
	var events []Event
	for _, c := range m.active {
		events = append(events, m.reject(c, UnclosedBlock,
			fmt.Sprintf("stream ended with block still open since line %d", c.StartLine)))
	}
	m.active = nil
	return events
}

func blockTypeOf(c *syntax.Candidate, metadata map[string]any) string {
	if c.InlineMetadata != nil {
		if bt := c.InlineMetadata["block_type"]; bt != "" {
			return bt
		}
	}
	if metadata != nil {
		if bt, _ := metadata["block_type"].(string); bt != "" {
			return bt
		}
	}
	return ""
}

func parseErrorCode(perr *syntax.ParseError) ErrorCode {
	if perr.Kind == syntax.ErrValidation {
		return ValidationFailed
	}
	return ParseFailed
}

// missingSectionCode guesses the most specific BlockErrorCode for a syntax
// that validated a successfully-parsed dictionary pair as false, inspecting
// the shape every built-in syntax produces (a "lines" key under content, a
// possibly-empty metadata map).
func missingSectionCode(result syntax.ParseResult) ErrorCode {
	if lines, ok := result.Content["lines"].([]string); ok && len(lines) == 0 {
		return MissingContent
	}
	if len(result.Metadata) == 0 {
		return MissingMetadata
	}
	return SyntaxErrorCode
}
