package streamblocks

import (
	"fmt"
	"reflect"

	"streamblocks/registry"
	"streamblocks/source"
)

// Roundtrip operationalizes spec.md §8's round-trip/idempotence property: it
// replays a completed block's raw_text through a fresh StreamProcessor
// sharing reg, and reports whether the resulting BlockEnd's metadata and
// content are structurally identical to the ones passed in.
//
// Defined here rather than in package registry because it needs a full
// StreamProcessor, and registry must not
// import this package — the dependency only runs the other way.
func Roundtrip(reg *registry.Registry, rawText string, metadata, content map[string]any) error {
	p := New(reg,
		WithEmitOriginalEvents(false),
		WithSourceAdapter(source.Identity{}),
	)

	var ended *Event
	for _, ev := range p.Feed(rawText) {
		if ev.Type == EventBlockEnd {
			e := ev
			ended = &e
		}
	}
	for _, ev := range p.Finalize() {
		if ev.Type == EventBlockEnd {
			e := ev
			ended = &e
		}
	}

	if ended == nil {
		return fmt.Errorf("streamblocks: roundtrip produced no BlockEnd for raw_text")
	}
	if !reflect.DeepEqual(ended.Metadata, metadata) {
		return fmt.Errorf("streamblocks: roundtrip metadata mismatch: got %#v, want %#v", ended.Metadata, metadata)
	}
	if !reflect.DeepEqual(ended.Content, content) {
		return fmt.Errorf("streamblocks: roundtrip content mismatch: got %#v, want %#v", ended.Content, content)
	}
	return nil
}
