package streamblocks

import (
	"time"

	"streamblocks/block"
)

// BlockErrorCode is the taxonomy from spec.md §7, re-exported from package
// block (where rejection decisions are actually made) so callers never need
// to import block directly.
type BlockErrorCode = block.ErrorCode

const (
	ValidationFailed = block.ValidationFailed
	SizeExceeded     = block.SizeExceeded
	UnclosedBlock    = block.UnclosedBlock
	UnknownType      = block.UnknownType
	ParseFailed      = block.ParseFailed
	MissingMetadata  = block.MissingMetadata
	MissingContent   = block.MissingContent
	SyntaxErrorCode  = block.SyntaxErrorCode
	SourceError      = block.SourceError
)

// EventType discriminates the public Event tagged union (spec.md §6).
type EventType string

const (
	EventStreamStarted      EventType = "stream_started"
	EventStreamFinished     EventType = "stream_finished"
	EventStreamError        EventType = "stream_error"
	EventOriginalChunk      EventType = "original_chunk"
	EventTextContent        EventType = "text_content"
	EventTextDelta          EventType = "text_delta"
	EventBlockStart         EventType = "block_start"
	EventBlockHeaderDelta   EventType = "block_header_delta"
	EventBlockMetadataDelta EventType = "block_metadata_delta"
	EventBlockContentDelta  EventType = "block_content_delta"
	EventBlockEnd           EventType = "block_end"
	EventBlockError         EventType = "block_error"
)

// Event is the single public event type the engine emits. Only the fields
// relevant to Type are populated; this mirrors the teacher's
// internal/llm.Event, one struct carrying every variant's payload rather
// than a Go sum type (which the language doesn't have natively).
type Event struct {
	ID        uint64
	Type      EventType
	Timestamp time.Time

	// StreamStarted, StreamFinished, StreamError
	StreamID        string
	BlocksExtracted int
	BlocksRejected  int
	TotalEvents     int
	DurationMS      int64
	ErrorMessage    string

	// OriginalChunk: the upstream chunk, forwarded untouched, boxed as any
	// because the engine itself is agnostic to the chunk's concrete shape.
	RawChunk any

	// TextContent
	LineNumber  int
	LineContent string

	// TextDelta: raw chunk text, independent of line boundaries.
	Delta       string
	InsideBlock bool
	Section     string

	// BlockStart, BlockHeaderDelta, BlockMetadataDelta, BlockContentDelta,
	// BlockEnd, BlockError
	BlockID        string
	SyntaxName     string
	StartLine      int
	EndLine        int
	BlockType      string
	InlineMetadata map[string]string

	// Header/Metadata/Content deltas
	CurrentLine     int
	AccumulatedSize int
	IsBoundary      bool

	// BlockEnd
	Metadata map[string]any
	Content  map[string]any
	RawText  string
	HashID   string

	// BlockError
	ErrorCode BlockErrorCode
	Reason    string
}
