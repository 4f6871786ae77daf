package streamblocks

import (
	"errors"
	"testing"

	"streamblocks/registry"
	"streamblocks/source"
	"streamblocks/syntax/delimiter"
)

// erroringSource yields okChunks, then fails with err on the next Next call.
type erroringSource struct {
	okChunks []any
	pos      int
	err      error
}

func (s *erroringSource) Next() (any, bool, error) {
	if s.pos < len(s.okChunks) {
		c := s.okChunks[s.pos]
		s.pos++
		return c, true, nil
	}
	return nil, false, s.err
}

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New(delimiter.NewPreamble(""))
	if err := reg.Register("files_operations", nil, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func eventsOfType(events []Event, et EventType) []Event {
	var out []Event
	for _, e := range events {
		if e.Type == et {
			out = append(out, e)
		}
	}
	return out
}

func runChunks(t *testing.T, p *StreamProcessor[any], chunks []any) []Event {
	t.Helper()
	events, err := p.Process(FromSlice(chunks))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	return events
}

func TestStreamProcessor_HappyPathPreamble(t *testing.T) {
	reg := newTestRegistry(t)
	p := New(reg, WithSourceAdapter(source.Identity{}))

	input := "!!f01:files_operations\nsrc/main.py\n!!end\n"
	events := runChunks(t, p, []any{input})

	starts := eventsOfType(events, EventBlockStart)
	ends := eventsOfType(events, EventBlockEnd)
	if len(starts) != 1 || len(ends) != 1 {
		t.Fatalf("starts=%d ends=%d, want 1 and 1 (events=%+v)", len(starts), len(ends), events)
	}
	if ends[0].BlockType != "files_operations" {
		t.Fatalf("BlockType = %q", ends[0].BlockType)
	}
	if ends[0].HashID == "" || len(ends[0].HashID) != 8 {
		t.Fatalf("HashID = %q, want 8 hex chars", ends[0].HashID)
	}
	lines, _ := ends[0].Content["lines"].([]string)
	if len(lines) != 1 || lines[0] != "src/main.py" {
		t.Fatalf("Content[lines] = %#v", ends[0].Content["lines"])
	}

	finished := eventsOfType(events, EventStreamFinished)
	if len(finished) != 1 {
		t.Fatalf("expected exactly one StreamFinished, got %d", len(finished))
	}
	if finished[0].BlocksExtracted != 1 || finished[0].BlocksRejected != 0 {
		t.Fatalf("StreamFinished counts = %+v", finished[0])
	}
}

func TestStreamProcessor_UnknownTypeRejected(t *testing.T) {
	reg := registry.New(delimiter.NewPreamble("")) // nothing registered
	p := New(reg, WithSourceAdapter(source.Identity{}))

	input := "!!f01:mystery_type\nbody\n!!end\n"
	events := runChunks(t, p, []any{input})

	errs := eventsOfType(events, EventBlockError)
	if len(errs) != 1 {
		t.Fatalf("expected one BlockError, got %d (%+v)", len(errs), events)
	}
	if errs[0].ErrorCode != UnknownType {
		t.Fatalf("ErrorCode = %v, want UnknownType", errs[0].ErrorCode)
	}
	if len(eventsOfType(events, EventBlockEnd)) != 0 {
		t.Fatalf("expected no BlockEnd for an unregistered type")
	}
}

func TestStreamProcessor_RawLinesOutsideBlocksBecomeTextContent(t *testing.T) {
	reg := newTestRegistry(t)
	p := New(reg, WithSourceAdapter(source.Identity{}))

	events := runChunks(t, p, []any{"hello\nworld\n"})

	content := eventsOfType(events, EventTextContent)
	if len(content) != 2 || content[0].LineContent != "hello" || content[1].LineContent != "world" {
		t.Fatalf("TextContent events = %+v", content)
	}
}

func TestStreamProcessor_UnclosedBlockRejectedOnFinalize(t *testing.T) {
	reg := newTestRegistry(t)
	p := New(reg, WithSourceAdapter(source.Identity{}))

	events := runChunks(t, p, []any{"!!f01:files_operations\nbody without a close\n"})

	errs := eventsOfType(events, EventBlockError)
	if len(errs) != 1 || errs[0].ErrorCode != UnclosedBlock {
		t.Fatalf("expected one UnclosedBlock BlockError, got %+v", errs)
	}
}

func TestStreamProcessor_OriginalEventsForwardChunksByDefault(t *testing.T) {
	reg := newTestRegistry(t)
	p := New(reg, WithSourceAdapter(source.Identity{}))

	events := runChunks(t, p, []any{"a\n", "b\n"})

	original := eventsOfType(events, EventOriginalChunk)
	if len(original) != 2 {
		t.Fatalf("expected one EventOriginalChunk per Feed call, got %d", len(original))
	}
	if original[0].RawChunk != "a\n" || original[1].RawChunk != "b\n" {
		t.Fatalf("RawChunk values = %v, %v", original[0].RawChunk, original[1].RawChunk)
	}
}

func TestStreamProcessor_TextDeltasOptIn(t *testing.T) {
	reg := newTestRegistry(t)
	p := New(reg, WithSourceAdapter(source.Identity{}), WithEmitTextDeltas(true))

	events := runChunks(t, p, []any{"!!f01:files_operations\n", "a\n", "!!end\n"})

	deltas := eventsOfType(events, EventTextDelta)
	if len(deltas) != 3 {
		t.Fatalf("expected 3 TextDelta events, got %d (%+v)", len(deltas), deltas)
	}
	if !deltas[1].InsideBlock || deltas[1].BlockID == "" {
		t.Fatalf("second delta should be inside the open block: %+v", deltas[1])
	}
}

// TestStreamProcessor_ChunkSplitInvariance exercises P1 from spec.md §8: the
// same logical input, split into chunks of different sizes, must produce an
// identical sequence of non-TextDelta/non-OriginalChunk events.
func TestStreamProcessor_ChunkSplitInvariance(t *testing.T) {
	text := "before\n!!f01:files_operations\na.py\nb.py\n!!end\nafter\n"

	splitSizes := []int{len(text), 7, 3, 1}

	var baseline []Event
	for i, size := range splitSizes {
		reg := newTestRegistry(t)
		p := New(reg, WithSourceAdapter(source.Identity{}))
		events := runChunks(t, p, splitEvery(text, size))

		var filtered []Event
		for _, e := range events {
			if e.Type == EventOriginalChunk || e.Type == EventTextDelta {
				continue
			}
			filtered = append(filtered, e)
		}

		if i == 0 {
			baseline = filtered
			continue
		}
		if len(filtered) != len(baseline) {
			t.Fatalf("split size %d produced %d events, want %d", size, len(filtered), len(baseline))
		}
		for j := range filtered {
			got, want := filtered[j], baseline[j]
			if got.Type != want.Type || got.BlockID != want.BlockID || got.LineContent != want.LineContent ||
				got.BlockType != want.BlockType || got.RawText != want.RawText {
				t.Fatalf("split size %d event %d mismatch: got %+v, want %+v", size, j, got, want)
			}
		}
	}
}

func TestRoundtrip_MatchesOriginalDecode(t *testing.T) {
	reg := newTestRegistry(t)
	rawText := "!!f01:files_operations\nsrc/main.py\n!!end"

	p := New(reg, WithSourceAdapter(source.Identity{}))
	events := runChunks(t, p, []any{rawText})
	ends := eventsOfType(events, EventBlockEnd)
	if len(ends) != 1 {
		t.Fatalf("expected one BlockEnd, got %d", len(ends))
	}

	if err := Roundtrip(reg, ends[0].RawText, ends[0].Metadata, ends[0].Content); err != nil {
		t.Fatalf("Roundtrip: %v", err)
	}
}

func TestStreamProcessor_SourceErrorSurfacesAsStreamError(t *testing.T) {
	reg := newTestRegistry(t)
	p := New(reg, WithSourceAdapter(source.Identity{}))

	upstreamErr := errors.New("upstream connection reset")
	src := &erroringSource{okChunks: []any{"hello\n"}, err: upstreamErr}

	events, err := p.Process(src)
	if !errors.Is(err, upstreamErr) {
		t.Fatalf("Process error = %v, want %v", err, upstreamErr)
	}

	errs := eventsOfType(events, EventStreamError)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one EventStreamError, got %d (%+v)", len(errs), events)
	}
	if errs[0].ErrorCode != SourceError {
		t.Fatalf("ErrorCode = %v, want SourceError", errs[0].ErrorCode)
	}
	if errs[0].ErrorMessage != upstreamErr.Error() {
		t.Fatalf("ErrorMessage = %q, want %q", errs[0].ErrorMessage, upstreamErr.Error())
	}
	if errs[0].StreamID == "" {
		t.Fatalf("expected StreamError to carry a stream_id")
	}

	// A StreamError terminates processing: no StreamFinished is emitted, and
	// the stream is left finished so a later Feed/Finalize is a no-op.
	if len(eventsOfType(events, EventStreamFinished)) != 0 {
		t.Fatalf("did not expect StreamFinished after a StreamError")
	}
	if more := p.Feed("too late\n"); more != nil {
		t.Fatalf("Feed after StreamError should be a no-op, got %+v", more)
	}
}

func TestStreamProcessor_Reset_RunsSecondStream(t *testing.T) {
	reg := newTestRegistry(t)
	p := New(reg, WithSourceAdapter(source.Identity{}))

	first := runChunks(t, p, []any{"!!f01:files_operations\na\n!!end\n"})
	if len(eventsOfType(first, EventBlockEnd)) != 1 {
		t.Fatalf("first stream: expected one BlockEnd")
	}
	firstID := p.StreamID()

	p.Reset()

	second := runChunks(t, p, []any{"!!f02:files_operations\nb\n!!end\n"})
	if len(eventsOfType(second, EventBlockEnd)) != 1 {
		t.Fatalf("second stream: expected one BlockEnd")
	}
	if p.StreamID() == firstID {
		t.Fatalf("Reset should issue a new stream_id")
	}
}

func splitEvery(s string, n int) []any {
	if n <= 0 {
		n = 1
	}
	var out []any
	for i := 0; i < len(s); i += n {
		end := i + n
		if end > len(s) {
			end = len(s)
		}
		out = append(out, s[i:end])
	}
	return out
}
