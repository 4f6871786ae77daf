// Package syntax defines the pluggable format contract StreamBlocks drives
// to detect, accumulate, and parse blocks — and the BlockCandidate state
// every concrete Syntax implementation mutates during detection. The shape
// mirrors the teacher's StreamParser/ParserState pair
// (internal/edit/parser.go): a small state enum plus a mutable accumulator,
// generalized here so the state machine in package block can drive any
// registered format, not just one hardcoded edit syntax.
package syntax

import (
	"fmt"
	"strings"
)

// Section identifies which region of a candidate a line belongs to.
type Section string

const (
	SectionHeader   Section = "header"
	SectionMetadata Section = "metadata"
	SectionContent  Section = "content"
)

// State is a BlockCandidate's position in its lifecycle.
type State int

const (
	HeaderDetected State = iota
	AccumulatingMetadata
	AccumulatingContent
	ClosingDetected
	Completed
	Rejected
)

func (s State) String() string {
	switch s {
	case HeaderDetected:
		return "header-detected"
	case AccumulatingMetadata:
		return "accumulating-metadata"
	case AccumulatingContent:
		return "accumulating-content"
	case ClosingDetected:
		return "closing-detected"
	case Completed:
		return "completed"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Candidate is a mutable record for an in-flight block. It is owned
// exclusively by the block.StateMachine that created it; a Syntax is only
// ever given a pointer to it for the duration of a single Detect or Parse
// call, and may only mutate CurrentSection (spec.md §4.2, §9).
type Candidate struct {
	SyntaxName string
	StartLine  int
	BlockID    string

	state          State
	CurrentSection Section

	HeaderLines   []string
	MetadataLines []string
	ContentLines  []string

	// ClosingLine holds the raw text of the detected closing marker. It is
	// kept separate from the three section slices because the closing
	// marker does not belong to header/metadata/content content-wise, yet
	// must still contribute to RawText and AccumulatedSize (spec.md §3).
	ClosingLine string
	hasClosing  bool

	AccumulatedSize int
	InlineMetadata  map[string]string

	maxBlockSize int
	lastLine     int
}

// NewCandidate creates a candidate opened at startLine by the named syntax.
func NewCandidate(syntaxName, blockID string, startLine, maxBlockSize int) *Candidate {
	return &Candidate{
		SyntaxName:     syntaxName,
		StartLine:      startLine,
		BlockID:        blockID,
		state:          HeaderDetected,
		CurrentSection: SectionHeader,
		maxBlockSize:   maxBlockSize,
		lastLine:       startLine,
	}
}

// State returns the candidate's current lifecycle state.
func (c *Candidate) State() State { return c.state }

// SetState advances the candidate's lifecycle state. Terminal states
// (Completed, Rejected) may not be left once entered.
func (c *Candidate) SetState(s State) {
	if c.state == Completed || c.state == Rejected {
		return
	}
	c.state = s
}

// LastLine returns the number of the most recently absorbed line.
func (c *Candidate) LastLine() int { return c.lastLine }

// HasClosing reports whether a closing marker has been recorded.
func (c *Candidate) HasClosing() bool { return c.hasClosing }

// Append records text as belonging to section, updating AccumulatedSize by
// the line's length plus one separator byte — the same bookkeeping
// spec.md §3 requires ("accumulated_size equals the sum of retained line
// lengths plus separators").
func (c *Candidate) Append(section Section, lineNumber int, text string) {
	switch section {
	case SectionHeader:
		c.HeaderLines = append(c.HeaderLines, text)
	case SectionMetadata:
		c.MetadataLines = append(c.MetadataLines, text)
	default:
		c.ContentLines = append(c.ContentLines, text)
	}
	c.AccumulatedSize += len(text) + 1
	c.lastLine = lineNumber
}

// AppendClosing records the raw text of a detected closing marker. It is
// kept out of HeaderLines/MetadataLines/ContentLines so a syntax-level
// MISSING_CONTENT or MISSING_METADATA check never mistakes the closing
// marker itself for a content or metadata line, while RawText still
// reproduces it in its original stream position.
func (c *Candidate) AppendClosing(lineNumber int, text string) {
	c.ClosingLine = text
	c.hasClosing = true
	c.AccumulatedSize += len(text) + 1
	c.lastLine = lineNumber
}

// SizeExceeded reports whether AccumulatedSize has crossed maxBlockSize.
// maxBlockSize <= 0 disables the limit.
func (c *Candidate) SizeExceeded() bool {
	return c.maxBlockSize > 0 && c.AccumulatedSize > c.maxBlockSize
}

// RawText reconstructs the exact bytes of the candidate as they appeared in
// the stream: header lines, metadata lines, content lines, and the closing
// marker (if any), each newline-joined in accumulation order.
func (c *Candidate) RawText() string {
	var b strings.Builder
	first := true
	writeLine := func(l string) {
		if !first {
			b.WriteByte('\n')
		}
		b.WriteString(l)
		first = false
	}
	writeAll := func(lines []string) {
		for _, l := range lines {
			writeLine(l)
		}
	}
	writeAll(c.HeaderLines)
	writeAll(c.MetadataLines)
	writeAll(c.ContentLines)
	if c.hasClosing {
		writeLine(c.ClosingLine)
	}
	return b.String()
}

// DetectionResult is what Syntax.Detect reports about a single line.
type DetectionResult struct {
	IsOpening         bool
	IsClosing         bool
	IsSectionBoundary bool
	InlineMetadata    map[string]string
}

// ErrorKind enumerates the ways Syntax.Parse can fail (spec.md §4.2).
type ErrorKind int

const (
	ErrYAML ErrorKind = iota
	ErrValidation
	ErrType
	ErrKey
	ErrFormat
)

func (k ErrorKind) String() string {
	switch k {
	case ErrYAML:
		return "yaml"
	case ErrValidation:
		return "validation"
	case ErrType:
		return "type"
	case ErrKey:
		return "key"
	case ErrFormat:
		return "format"
	default:
		return "unknown"
	}
}

// ParseError carries enough context for a useful diagnostic message,
// following the shape of the teacher's edit.ParseError.
type ParseError struct {
	SyntaxName string
	Kind       ErrorKind
	Message    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s parse failed: %s", e.SyntaxName, e.Kind, e.Message)
}

// ParseResult is the successful output of Syntax.Parse: dictionary-shaped
// metadata and content. Type-level binding to schemas happens at the
// Registry boundary, not here (spec.md §4.2).
type ParseResult struct {
	Metadata map[string]any
	Content  map[string]any
}

// Syntax is a pluggable format module. Implementations must be safe to
// share across streams; all mutable per-block state lives on the Candidate
// passed to Detect and Parse, never on the Syntax value itself.
type Syntax interface {
	// Name identifies the syntax, e.g. "delimiter_preamble".
	Name() string

	// Detect classifies line against an optional in-flight candidate.
	// When candidate is nil, Detect probes only for a new opening. When
	// candidate is non-nil, Detect may also mutate candidate.CurrentSection
	// to record a section transition (e.g. the closing "---" of
	// frontmatter); it must not mutate any other candidate field.
	Detect(lineText string, candidate *Candidate) DetectionResult

	// Parse converts all lines accumulated on candidate into dictionary-
	// shaped metadata and content.
	Parse(candidate *Candidate) (ParseResult, *ParseError)

	// Validate performs a syntax-level invariant check over parsed
	// dictionaries, independent of any registered schema.
	Validate(metadata, content map[string]any) bool

	// AllowsOverlappingOpenings reports whether this syntax's opening
	// marker can appear while another candidate from the same syntax is
	// still open, forcing the state machine to track more than one
	// concurrent candidate at a time (spec.md §4.4, §9's "Multi-candidate
	// policy"). The three built-in syntaxes all return false.
	AllowsOverlappingOpenings() bool
}
