// Package streamblocks is the root orchestrator: it wires a line.Accumulator
// into a block.StateMachine into a registry.Registry, the way the teacher's
// internal/ui/streaming.StreamRenderer wires a byte buffer into a markdown
// renderer, and surfaces the result as the single public Event stream
// spec.md §4.5 and §6 describe.
package streamblocks

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"streamblocks/block"
	"streamblocks/line"
	"streamblocks/registry"
	"streamblocks/source"
)

// Source is a pull-based sequence of opaque upstream chunks. Process drains
// one to exhaustion; Feed/Finalize are the push-based alternative for
// callers already iterating their own source (an SSE reader, a channel).
type Source[C any] interface {
	Next() (chunk C, ok bool, err error)
}

// sliceSource adapts a pre-collected slice of chunks into a Source.
type sliceSource[C any] struct {
	chunks []C
	pos    int
}

// FromSlice builds a Source that yields chunks in order, then exhausts.
func FromSlice[C any](chunks []C) Source[C] {
	return &sliceSource[C]{chunks: chunks}
}

func (s *sliceSource[C]) Next() (C, bool, error) {
	if s.pos >= len(s.chunks) {
		var zero C
		return zero, false, nil
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, true, nil
}

// channelSource adapts a receive-only channel into a Source.
type channelSource[C any] struct {
	ch <-chan C
}

// FromChannel builds a Source that yields chunks received on ch until it is
// closed.
func FromChannel[C any](ch <-chan C) Source[C] {
	return &channelSource[C]{ch: ch}
}

func (s *channelSource[C]) Next() (C, bool, error) {
	chunk, ok := <-s.ch
	return chunk, ok, nil
}

// StreamProcessor is the engine: it owns exactly one stream's worth of
// LineAccumulator and StateMachine state, and is not safe for reuse across
// concurrent streams (spec.md §4.5, §5). Call Reset to run a second stream
// through the same processor and Registry.
type StreamProcessor[C any] struct {
	cfg Config
	reg *registry.Registry

	adapter         source.Adapter[C]
	adapterIsSet    bool
	adapterExplicit bool

	lineAcc *line.Accumulator
	machine *block.StateMachine

	streamID  string
	startedAt time.Time
	started   bool
	finished  bool

	eventSeq        uint64
	blocksExtracted int
	blocksRejected  int
	totalEvents     int

	recent []line.Line
}

// New creates a StreamProcessor over chunks of dynamic shape (any), the
// common case: adapter auto-detection (spec.md §6) runs against the first
// chunk unless WithSourceAdapter or WithAutoDetectAdapter(false) was passed.
func New(reg *registry.Registry, opts ...Option) *StreamProcessor[any] {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	p := newProcessor[any](reg, cfg)
	if cfg.adapter != nil {
		p.adapter = cfg.adapter
		p.adapterIsSet = true
		p.adapterExplicit = true
	}
	return p
}

// NewTyped creates a StreamProcessor over a concrete chunk type C, with an
// explicit Adapter[C]. Auto-detection is unavailable here: source.Detect
// only ever returns an Adapter[any], and for C other than any that can never
// satisfy Adapter[C], so a nil adapter leaves every chunk unextracted.
func NewTyped[C any](reg *registry.Registry, adapter source.Adapter[C], opts ...Option) *StreamProcessor[C] {
	cfg := defaultConfig()
	cfg.AutoDetectAdapter = false
	for _, o := range opts {
		o(&cfg)
	}
	p := newProcessor[C](reg, cfg)
	if adapter != nil {
		p.adapter = adapter
		p.adapterIsSet = true
		p.adapterExplicit = true
	}
	return p
}

func newProcessor[C any](reg *registry.Registry, cfg Config) *StreamProcessor[C] {
	return &StreamProcessor[C]{
		cfg:     cfg,
		reg:     reg,
		lineAcc: line.New(cfg.MaxLineLength),
		machine: block.New(reg.Syntax(), cfg.MaxBlockSize),
	}
}

// Stats is a point-in-time snapshot of a stream's progress, supplementing
// the counts carried on StreamFinished with something callers can poll
// mid-stream.
type Stats struct {
	BlocksExtracted  int
	BlocksRejected   int
	TotalEvents      int
	ActiveCandidates int
}

// Stats reports the processor's current counters.
func (p *StreamProcessor[C]) Stats() Stats {
	return Stats{
		BlocksExtracted:  p.blocksExtracted,
		BlocksRejected:   p.blocksRejected,
		TotalEvents:      p.totalEvents,
		ActiveCandidates: p.machine.ActiveCount(),
	}
}

// StreamID returns the current stream's identifier, empty until the first
// Feed or Process call has started a stream.
func (p *StreamProcessor[C]) StreamID() string { return p.streamID }

// Process drains src to exhaustion (or its first error) and finalizes the
// stream, returning every event produced in emission order. A Source error
// surfaces as a terminal StreamError event and is also returned.
func (p *StreamProcessor[C]) Process(src Source[C]) ([]Event, error) {
	var events []Event
	for {
		chunk, ok, err := src.Next()
		if err != nil {
			events = append(events, p.streamError(err))
			return events, err
		}
		if !ok {
			break
		}
		events = append(events, p.Feed(chunk)...)
		if p.finished {
			return events, nil
		}
	}
	events = append(events, p.Finalize()...)
	return events, nil
}

// Feed pushes one upstream chunk through the engine, returning the events it
// produced. Feed is a no-op once the stream has finished (Finalize called,
// or a StreamError already emitted).
func (p *StreamProcessor[C]) Feed(chunk C) []Event {
	if p.finished {
		return nil
	}

	var events []Event
	if !p.started {
		events = append(events, p.emitStreamStarted())
	}

	if p.cfg.EmitOriginalEvents {
		ev := p.newEvent(EventOriginalChunk)
		ev.RawChunk = chunk
		events = append(events, ev)
	}

	if !p.adapterIsSet && p.cfg.AutoDetectAdapter {
		if a, ok := source.Detect(any(chunk)); ok {
			if typed, ok2 := any(a).(source.Adapter[C]); ok2 {
				p.adapter = typed
				p.adapterIsSet = true
				p.cfg.Logger.Debug("streamblocks: auto-detected source adapter",
					"stream_id", p.streamID, "adapter", adapterName(a))
			}
		}
	}

	if !p.adapterIsSet {
		return events
	}

	text, ok := p.adapter.ExtractText(chunk)
	if !ok {
		return events
	}

	if p.cfg.EmitTextDeltas {
		events = append(events, p.textDeltaEvent(text))
	}

	for _, l := range p.lineAcc.Push(text) {
		events = append(events, p.processLine(l)...)
	}

	if p.adapter.IsComplete(chunk) {
		p.cfg.Logger.Debug("streamblocks: adapter signaled completion", "stream_id", p.streamID)
	}

	return events
}

// Finalize flushes any buffered partial line, rejects every still-open
// candidate as UNCLOSED_BLOCK, and emits the terminal StreamFinished event.
// Calling Finalize more than once is a no-op after the first call.
func (p *StreamProcessor[C]) Finalize() []Event {
	if p.finished {
		return nil
	}

	var events []Event
	if !p.started {
		events = append(events, p.emitStreamStarted())
	}

	for _, l := range p.lineAcc.Finalize() {
		events = append(events, p.processLine(l)...)
	}
	for _, e := range p.machine.Flush() {
		events = append(events, p.translate(e)...)
	}

	p.finished = true
	events = append(events, p.emitStreamFinished())
	return events
}

// Reset discards all per-stream state so the processor can run a second
// stream against the same Registry. An adapter supplied explicitly at
// construction is kept; an auto-detected one is forgotten so re-detection
// can run again on the new stream's first chunk.
func (p *StreamProcessor[C]) Reset() {
	p.lineAcc = line.New(p.cfg.MaxLineLength)
	p.machine = block.New(p.reg.Syntax(), p.cfg.MaxBlockSize)
	p.streamID = ""
	p.startedAt = time.Time{}
	p.started = false
	p.finished = false
	p.eventSeq = 0
	p.blocksExtracted = 0
	p.blocksRejected = 0
	p.totalEvents = 0
	p.recent = nil
	if !p.adapterExplicit {
		p.adapterIsSet = false
		var zero source.Adapter[C]
		p.adapter = zero
	}
}

func (p *StreamProcessor[C]) processLine(l line.Line) []Event {
	p.pushRecent(l)
	var events []Event
	for _, e := range p.machine.ProcessLine(l.Number, l.Text) {
		events = append(events, p.translate(e)...)
	}
	return events
}

func (p *StreamProcessor[C]) pushRecent(l line.Line) {
	if p.cfg.LinesBuffer <= 0 {
		return
	}
	p.recent = append(p.recent, l)
	if len(p.recent) > p.cfg.LinesBuffer {
		p.recent = p.recent[len(p.recent)-p.cfg.LinesBuffer:]
	}
}

// translate maps one internal block.Event into zero or more public Events,
// running Registry validation on a candidate's close per spec.md §4.5
// ("the processor, not the state machine, binds parsed dictionaries to
// typed schemas via the Registry").
func (p *StreamProcessor[C]) translate(e block.Event) []Event {
	switch e.Kind {
	case block.RawLine:
		ev := p.newEvent(EventTextContent)
		ev.LineNumber = e.LineNumber
		ev.LineContent = e.Text
		return []Event{ev}

	case block.Opened:
		ev := p.newEvent(EventBlockStart)
		ev.BlockID = e.BlockID
		ev.SyntaxName = e.SyntaxName
		ev.StartLine = e.StartLine
		ev.BlockType = e.BlockType
		ev.InlineMetadata = e.InlineMetadata
		return []Event{ev}

	case block.HeaderDelta, block.MetadataDelta, block.ContentDelta:
		ev := p.newEvent(deltaEventType(e.Kind))
		ev.BlockID = e.BlockID
		ev.Delta = e.Delta
		ev.CurrentLine = e.LineNumber
		ev.AccumulatedSize = e.AccumulatedSize
		ev.IsBoundary = e.IsBoundary
		return []Event{ev}

	case block.Closed:
		return p.finalizeBlock(e)

	case block.Rejected:
		p.blocksRejected++
		ev := p.newEvent(EventBlockError)
		ev.BlockID = e.BlockID
		ev.BlockType = e.BlockType
		ev.StartLine = e.StartLine
		ev.EndLine = e.EndLine
		ev.RawText = e.RawText
		ev.ErrorCode = e.Code
		ev.Reason = e.Reason
		p.cfg.Logger.Warn("streamblocks: block rejected",
			"stream_id", p.streamID, "block_id", e.BlockID, "code", e.Code.String(), "reason", e.Reason,
			"recent_lines", p.recent)
		return []Event{ev}

	default:
		return nil
	}
}

func deltaEventType(k block.Kind) EventType {
	switch k {
	case block.HeaderDelta:
		return EventBlockHeaderDelta
	case block.MetadataDelta:
		return EventBlockMetadataDelta
	default:
		return EventBlockContentDelta
	}
}

// finalizeBlock runs Registry validation over a syntax-level-valid closed
// candidate, the UNKNOWN_TYPE/VALIDATION_FAILED boundary spec.md §4.6
// assigns to the processor rather than the state machine.
func (p *StreamProcessor[C]) finalizeBlock(e block.Event) []Event {
	if err := p.reg.Validate(e.BlockType, e.Metadata, e.Content); err != nil {
		p.blocksRejected++
		code := ValidationFailed
		if errors.Is(err, registry.ErrUnknownType) {
			code = UnknownType
		}
		ev := p.newEvent(EventBlockError)
		ev.BlockID = e.BlockID
		ev.BlockType = e.BlockType
		ev.StartLine = e.StartLine
		ev.EndLine = e.EndLine
		ev.RawText = e.RawText
		ev.ErrorCode = code
		ev.Reason = err.Error()
		p.cfg.Logger.Warn("streamblocks: block failed registry validation",
			"stream_id", p.streamID, "block_id", e.BlockID, "block_type", e.BlockType, "code", code.String(),
			"recent_lines", p.recent)
		return []Event{ev}
	}

	p.blocksExtracted++
	ev := p.newEvent(EventBlockEnd)
	ev.BlockID = e.BlockID
	ev.BlockType = e.BlockType
	ev.StartLine = e.StartLine
	ev.EndLine = e.EndLine
	ev.Metadata = e.Metadata
	ev.Content = e.Content
	ev.RawText = e.RawText
	ev.HashID = hashID(e.RawText)
	return []Event{ev}
}

func (p *StreamProcessor[C]) textDeltaEvent(text string) Event {
	ev := p.newEvent(EventTextDelta)
	ev.Delta = text
	if blockID, section, ok := p.machine.Peek(); ok {
		ev.InsideBlock = true
		ev.BlockID = blockID
		ev.Section = string(section)
	}
	return ev
}

func (p *StreamProcessor[C]) emitStreamStarted() Event {
	p.streamID = uuid.NewString()
	p.startedAt = time.Now()
	p.started = true
	ev := p.newEvent(EventStreamStarted)
	ev.StreamID = p.streamID
	p.cfg.Logger.Info("streamblocks: stream started", "stream_id", p.streamID)
	return ev
}

func (p *StreamProcessor[C]) emitStreamFinished() Event {
	ev := p.newEvent(EventStreamFinished)
	ev.StreamID = p.streamID
	ev.BlocksExtracted = p.blocksExtracted
	ev.BlocksRejected = p.blocksRejected
	ev.TotalEvents = p.totalEvents
	ev.DurationMS = time.Since(p.startedAt).Milliseconds()
	p.cfg.Logger.Info("streamblocks: stream finished",
		"stream_id", p.streamID, "blocks_extracted", p.blocksExtracted,
		"blocks_rejected", p.blocksRejected, "duration_ms", ev.DurationMS)
	return ev
}

func (p *StreamProcessor[C]) streamError(err error) Event {
	p.finished = true
	ev := p.newEvent(EventStreamError)
	ev.StreamID = p.streamID
	ev.ErrorMessage = err.Error()
	ev.ErrorCode = SourceError
	p.cfg.Logger.Error("streamblocks: stream error",
		"stream_id", p.streamID, "error", err, "recent_lines", p.recent)
	return ev
}

func (p *StreamProcessor[C]) newEvent(t EventType) Event {
	p.eventSeq++
	p.totalEvents++
	return Event{ID: p.eventSeq, Type: t, Timestamp: time.Now()}
}

func adapterName(a source.Adapter[any]) string {
	switch a.(type) {
	case source.Identity:
		return "identity"
	case source.AttributePick:
		return "attribute_pick"
	case source.EventEnvelope:
		return "event_envelope"
	default:
		return "unknown"
	}
}
