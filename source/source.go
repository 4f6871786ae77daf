// Package source implements the SourceAdapter abstraction from spec.md §6:
// a small strategy object that pulls the textual payload (and optionally a
// completion signal) out of an opaque upstream chunk shape, so the engine
// never hardcodes a specific provider's wire format. The three built-in
// adapters work over chunk as `any` via reflection, because unlike the
// teacher's internal/llm.Stream (which always returns its own concrete
// Event type), this engine's chunk shape is a caller concern — the
// teacher's many provider-specific stream wrappers (internal/llm/*.go) are
// exactly the kind of thing a SourceAdapter here replaces with one
// reflective, format-agnostic strategy.
package source

import (
	"reflect"
	"strings"
)

// Adapter extracts text from a chunk of type C, and optionally signals
// stream completion. C is fixed per StreamProcessor instance: callers with
// a concrete, stable chunk type can implement Adapter[TheirType] directly
// and skip reflection entirely; the built-in adapters below target
// Adapter[any] for auto-detected or dynamically-shaped chunks.
type Adapter[C any] interface {
	ExtractText(chunk C) (string, bool)
	IsComplete(chunk C) bool
}

// Identity treats the chunk itself as the text: chunk is a string or a
// []byte, and every non-empty chunk is text.
type Identity struct{}

func (Identity) ExtractText(chunk any) (string, bool) {
	switch v := chunk.(type) {
	case string:
		return v, v != ""
	case []byte:
		return string(v), len(v) > 0
	default:
		return "", false
	}
}

func (Identity) IsComplete(any) bool { return false }

// DefaultAttributeKeys are the field/key names AttributePick checks by
// default, in order, per spec.md §6.
var DefaultAttributeKeys = []string{"text", "delta", "content"}

// AttributePick extracts text from the first of Keys present and non-empty
// on chunk, whether chunk is a map[string]any or a struct (matched by
// field name or `json` tag, case-insensitively).
type AttributePick struct {
	Keys []string
}

// NewAttributePick constructs an AttributePick using DefaultAttributeKeys.
func NewAttributePick() AttributePick {
	return AttributePick{Keys: DefaultAttributeKeys}
}

func (a AttributePick) ExtractText(chunk any) (string, bool) {
	keys := a.Keys
	if len(keys) == 0 {
		keys = DefaultAttributeKeys
	}
	for _, key := range keys {
		if v, ok := lookupField(chunk, key); ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func (a AttributePick) IsComplete(any) bool { return false }

// EventEnvelope extracts text from a chunk that carries a type
// discriminator selecting among several text-bearing shapes. Variants maps
// a discriminator value to the key holding that variant's text; when
// Variants is empty, any chunk carrying TypeKey falls back to
// AttributePick's default keys on the same chunk (a generic envelope
// shape, not tied to one provider's field names).
type EventEnvelope struct {
	TypeKey  string
	Variants map[string]string
}

// NewEventEnvelope constructs an EventEnvelope keyed on "type".
func NewEventEnvelope() EventEnvelope {
	return EventEnvelope{TypeKey: "type"}
}

func (e EventEnvelope) ExtractText(chunk any) (string, bool) {
	typeKey := e.TypeKey
	if typeKey == "" {
		typeKey = "type"
	}
	discriminatorVal, ok := lookupField(chunk, typeKey)
	if !ok {
		return "", false
	}
	discriminator, _ := discriminatorVal.(string)

	if textKey, ok := e.Variants[discriminator]; ok {
		v, ok := lookupField(chunk, textKey)
		if !ok {
			return "", false
		}
		s, ok := v.(string)
		return s, ok && s != ""
	}
	if len(e.Variants) > 0 {
		return "", false
	}

	return AttributePick{}.ExtractText(chunk)
}

func (e EventEnvelope) IsComplete(chunk any) bool {
	typeKey := e.TypeKey
	if typeKey == "" {
		typeKey = "type"
	}
	v, ok := lookupField(chunk, typeKey)
	if !ok {
		return false
	}
	s, _ := v.(string)
	switch s {
	case "done", "stop", "close", "end":
		return true
	default:
		return false
	}
}

// Detect tries Identity, then AttributePick, then EventEnvelope against the
// first non-empty chunk, returning the first whose ExtractText succeeds.
// The returned adapter is meant to persist for the rest of the stream
// (spec.md §6).
func Detect(chunk any) (Adapter[any], bool) {
	candidates := []Adapter[any]{Identity{}, NewAttributePick(), NewEventEnvelope()}
	for _, a := range candidates {
		if _, ok := a.ExtractText(chunk); ok {
			return a, true
		}
	}
	return nil, false
}

// lookupField reads key from chunk, whether chunk is a map[string]any or a
// struct (or pointer to struct), matching struct fields by name or `json`
// tag, case-insensitively.
func lookupField(chunk any, key string) (any, bool) {
	if chunk == nil {
		return nil, false
	}
	if m, ok := chunk.(map[string]any); ok {
		v, ok := m[key]
		return v, ok
	}

	v := reflect.ValueOf(chunk)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil, false
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if strings.EqualFold(f.Name, key) || jsonTagMatches(f.Tag.Get("json"), key) {
			return v.Field(i).Interface(), true
		}
	}
	return nil, false
}

// jsonTagMatches reports whether a struct field's `json` tag names key,
// ignoring any trailing options (e.g. ",omitempty").
func jsonTagMatches(tag, key string) bool {
	if tag == "" {
		return false
	}
	name := tag
	if i := strings.IndexByte(tag, ','); i >= 0 {
		name = tag[:i]
	}
	return strings.EqualFold(name, key)
}
