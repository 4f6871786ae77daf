// Package block drives the per-syntax detection/accumulation state machine
// spec'd by the candidate lifecycle in package syntax: it owns the set of
// in-flight Candidates for one stream, feeds them lines one at a time, and
// emits a small internal event stream that the orchestrator wraps into its
// public Event type. The shape is grounded in the teacher's
// internal/edit.StreamParser, which plays the same role (drive a state
// machine line by line, report results through callbacks) for one hardcoded
// grammar instead of a pluggable Syntax.
package block

// ErrorCode is the BlockErrorCode taxonomy (spec.md §7). It is defined here,
// not in the orchestrator package, because rejection decisions are made at
// this layer; the orchestrator package re-exports it under its own name for
// callers who never need to import block directly.
type ErrorCode int

const (
	ValidationFailed ErrorCode = iota
	SizeExceeded
	UnclosedBlock
	UnknownType
	ParseFailed
	MissingMetadata
	MissingContent
	SyntaxErrorCode

	// SourceError is stream-level, not block-level: it marks a StreamError
	// raised by a failure in the upstream chunk source itself (spec.md §7,
	// "errors in the upstream chunk source are surfaced as StreamError and
	// terminate processing"). No candidate is involved, so it never appears
	// on a BlockError event, only on StreamError.
	SourceError
)

func (c ErrorCode) String() string {
	switch c {
	case ValidationFailed:
		return "VALIDATION_FAILED"
	case SizeExceeded:
		return "SIZE_EXCEEDED"
	case UnclosedBlock:
		return "UNCLOSED_BLOCK"
	case UnknownType:
		return "UNKNOWN_TYPE"
	case ParseFailed:
		return "PARSE_FAILED"
	case MissingMetadata:
		return "MISSING_METADATA"
	case MissingContent:
		return "MISSING_CONTENT"
	case SyntaxErrorCode:
		return "SYNTAX_ERROR"
	case SourceError:
		return "SOURCE_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Kind discriminates the internal Event tagged union.
type Kind int

const (
	RawLine Kind = iota
	Opened
	HeaderDelta
	MetadataDelta
	ContentDelta
	Closed
	Rejected
)

func (k Kind) String() string {
	switch k {
	case RawLine:
		return "raw-line"
	case Opened:
		return "opened"
	case HeaderDelta:
		return "header-delta"
	case MetadataDelta:
		return "metadata-delta"
	case ContentDelta:
		return "content-delta"
	case Closed:
		return "closed"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Event is the state machine's internal tagged union, mirroring the shape
// of the teacher's internal/llm.Event: one struct, a Kind discriminator,
// and a set of fields only some of which are populated per kind.
type Event struct {
	Kind       Kind
	LineNumber int

	// RawLine
	Text string

	// Opened, deltas, Closed, Rejected
	BlockID        string
	SyntaxName     string
	StartLine      int
	EndLine        int
	BlockType      string // from inline metadata at Opened/Closed/Rejected; at Closed also from parsed metadata; empty if neither has it
	InlineMetadata map[string]string

	// Header/Metadata/Content deltas
	Delta           string
	AccumulatedSize int
	IsBoundary      bool

	// Closed
	Metadata map[string]any
	Content  map[string]any
	RawText  string

	// Rejected
	Code   ErrorCode
	Reason string
}
