// Package registry implements the block-type → schema mapping from
// spec.md §4.6: one active Syntax plus a table of (metadata schema, content
// schema, validators) entries, consulted by the orchestrator once a
// candidate's syntax-level parse and validate succeed. Schema compilation
// is grounded in github.com/google/jsonschema-go, already reachable from
// the teacher's dependency graph; type lookup generalizes to hierarchical
// doublestar patterns the way the teacher's internal/tools/glob.go matches
// file paths, layered on top of the single literal "*" default sentinel
// spec.md §4.6 requires.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/jsonschema-go/jsonschema"

	"streamblocks/syntax"
)

// Wildcard is the reserved sentinel for the single default entry. Passing
// it to Register is an error; use RegisterDefault instead.
const Wildcard = "*"

// ErrUnknownType is returned by Validate when no exact, pattern, or default
// entry matches a block type.
var ErrUnknownType = errors.New("registry: unknown block type")

// Validator runs an additional, user-supplied check over a block's parsed
// metadata and content after schema validation has passed. Returning a
// non-nil error short-circuits any later validators.
type Validator func(metadata, content map[string]any) error

// decodeFunc is the type-erased shape behind RegisterTyped's generic
// decode closures (spec.md §9: "each registration is a closure
// (raw_fields) → Result<Block, ParseError> that both constructs and
// validates").
type decodeFunc func(metadata, content map[string]any) (any, any, error)

type entry struct {
	blockType      string
	metadataSchema *jsonschema.Resolved
	contentSchema  *jsonschema.Resolved
	validators     []Validator
	decode         decodeFunc
}

// Registry holds one Syntax and the block-type → schema table bound to it.
// Registries are built before stream processing begins and are read-only
// for the duration of any stream referencing them (spec.md §4.6, §5).
type Registry struct {
	syn       syntax.Syntax
	exact     map[string]*entry
	wildcards []*entry // keyed by entry.blockType, a doublestar pattern
	def       *entry
}

// New creates an empty Registry bound to syn.
func New(syn syntax.Syntax) *Registry {
	return &Registry{syn: syn, exact: make(map[string]*entry)}
}

// Syntax returns the Registry's active Syntax.
func (r *Registry) Syntax() syntax.Syntax { return r.syn }

// Register inserts or replaces the entry for blockType. blockType may be a
// literal type name or a doublestar pattern (e.g. "tool/**") for
// hierarchical matching; the literal "*" sentinel is reserved — use
// RegisterDefault for the single default entry.
func (r *Registry) Register(blockType string, metadataSchema, contentSchema *jsonschema.Schema, validators ...Validator) error {
	if blockType == Wildcard {
		return fmt.Errorf("registry: %q is reserved, use RegisterDefault", Wildcard)
	}
	if blockType == "" {
		return errors.New("registry: block type must not be empty")
	}
	return r.register(blockType, metadataSchema, contentSchema, validators, nil)
}

// RegisterDefault installs the fallback entry consulted when no exact or
// pattern match exists.
func (r *Registry) RegisterDefault(metadataSchema, contentSchema *jsonschema.Schema, validators ...Validator) error {
	return r.register(Wildcard, metadataSchema, contentSchema, validators, nil)
}

// RegisterTyped is Register's generic counterpart (spec.md §9): decode
// converts validated raw dictionaries into caller types M and C. Decode
// runs only after schema validation and Validators have all passed; its
// error, if any, is treated the same as a validator failure.
func RegisterTyped[M, C any](r *Registry, blockType string, metadataSchema, contentSchema *jsonschema.Schema, decode func(metadata, content map[string]any) (M, C, error), validators ...Validator) error {
	if blockType == Wildcard {
		return fmt.Errorf("registry: %q is reserved, use RegisterDefault", Wildcard)
	}
	wrapped := func(metadata, content map[string]any) (any, any, error) {
		return decode(metadata, content)
	}
	return r.register(blockType, metadataSchema, contentSchema, validators, wrapped)
}

func (r *Registry) register(blockType string, metadataSchema, contentSchema *jsonschema.Schema, validators []Validator, decode decodeFunc) error {
	e := &entry{blockType: blockType, validators: validators, decode: decode}

	if metadataSchema != nil {
		resolved, err := metadataSchema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("registry: resolve metadata schema for %q: %w", blockType, err)
		}
		e.metadataSchema = resolved
	}
	if contentSchema != nil {
		resolved, err := contentSchema.Resolve(nil)
		if err != nil {
			return fmt.Errorf("registry: resolve content schema for %q: %w", blockType, err)
		}
		e.contentSchema = resolved
	}

	switch {
	case blockType == Wildcard:
		r.def = e
	case isPattern(blockType):
		r.wildcards = append(r.wildcards, e)
	default:
		r.exact[blockType] = e
	}
	return nil
}

// isPattern reports whether blockType carries doublestar meta-characters,
// distinguishing a hierarchical wildcard registration from a literal type
// name. The reserved "*" sentinel is handled separately by its callers.
func isPattern(blockType string) bool {
	return strings.ContainsAny(blockType, "*?[{")
}

func (r *Registry) lookup(blockType string) *entry {
	if e, ok := r.exact[blockType]; ok {
		return e
	}
	for _, e := range r.wildcards {
		if ok, _ := doublestar.Match(e.blockType, blockType); ok {
			return e
		}
	}
	return r.def
}

// Validate resolves blockType to a registered entry and runs its schema
// checks, then its validators in registration order, then (for a
// RegisterTyped entry) its decode closure, short-circuiting on the first
// failure. ErrUnknownType is returned verbatim so the
// orchestrator can map it to the UNKNOWN_TYPE error code.
func (r *Registry) Validate(blockType string, metadata, content map[string]any) error {
	e := r.lookup(blockType)
	if e == nil {
		return ErrUnknownType
	}

	if e.metadataSchema != nil {
		if err := e.metadataSchema.Validate(metadata); err != nil {
			return fmt.Errorf("metadata: %w", err)
		}
	}
	if e.contentSchema != nil {
		if err := e.contentSchema.Validate(content); err != nil {
			return fmt.Errorf("content: %w", err)
		}
	}
	for _, v := range e.validators {
		if err := v(metadata, content); err != nil {
			return err
		}
	}
	if e.decode != nil {
		if _, _, err := e.decode(metadata, content); err != nil {
			return err
		}
	}
	return nil
}

// Decode runs blockType's registered typed decode closure, if any, over
// already-validated metadata and content. The second return reports
// whether a decode closure was registered for this type at all (an entry
// with no RegisterTyped call never has one).
func (r *Registry) Decode(blockType string, metadata, content map[string]any) (m, c any, ok bool, err error) {
	e := r.lookup(blockType)
	if e == nil || e.decode == nil {
		return nil, nil, false, nil
	}
	m, c, err = e.decode(metadata, content)
	return m, c, true, err
}

// Lookup reports whether blockType resolves to a registered entry (exact,
// pattern, or default), without running validation.
func (r *Registry) Lookup(blockType string) bool {
	return r.lookup(blockType) != nil
}
