package registry

import (
	"errors"
	"testing"

	"streamblocks/syntax/delimiter"
)

func TestRegistry_ExactLookupAndValidate(t *testing.T) {
	r := New(delimiter.NewPreamble(""))
	if err := r.Register("files_operations", nil, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !r.Lookup("files_operations") {
		t.Fatalf("expected files_operations to be registered")
	}
	if r.Lookup("no_such_type") {
		t.Fatalf("expected no_such_type to be unregistered")
	}

	if err := r.Validate("files_operations", map[string]any{"id": "f01"}, map[string]any{}); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := r.Validate("no_such_type", nil, nil); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("Validate(unknown) = %v, want ErrUnknownType", err)
	}
}

func TestRegistry_RegisterRejectsWildcardSentinel(t *testing.T) {
	r := New(delimiter.NewPreamble(""))
	if err := r.Register(Wildcard, nil, nil); err == nil {
		t.Fatalf("expected Register(%q) to fail", Wildcard)
	}
}

func TestRegistry_DefaultEntryIsFallback(t *testing.T) {
	r := New(delimiter.NewPreamble(""))
	if err := r.RegisterDefault(nil, nil); err != nil {
		t.Fatalf("RegisterDefault: %v", err)
	}

	if !r.Lookup("anything") {
		t.Fatalf("expected default entry to match anything")
	}
	if err := r.Validate("anything", map[string]any{}, map[string]any{}); err != nil {
		t.Fatalf("Validate via default: %v", err)
	}
}

func TestRegistry_HierarchicalWildcard(t *testing.T) {
	r := New(delimiter.NewPreamble(""))
	if err := r.Register("tool/**", nil, nil); err != nil {
		t.Fatalf("Register pattern: %v", err)
	}

	if !r.Lookup("tool/search") || !r.Lookup("tool/edit/apply") {
		t.Fatalf("expected hierarchical pattern to match nested types")
	}
	if r.Lookup("other") {
		t.Fatalf("pattern should not match an unrelated type")
	}
}

func TestRegistry_ExactBeatsWildcardBeatsDefault(t *testing.T) {
	r := New(delimiter.NewPreamble(""))
	var order []string
	mark := func(name string) Validator {
		return func(metadata, content map[string]any) error {
			order = append(order, name)
			return nil
		}
	}

	_ = r.RegisterDefault(nil, nil, mark("default"))
	_ = r.Register("tool/**", nil, nil, mark("wildcard"))
	_ = r.Register("tool/search", nil, nil, mark("exact"))

	if err := r.Validate("tool/search", nil, nil); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := r.Validate("tool/other", nil, nil); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := r.Validate("unrelated", nil, nil); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	want := []string{"exact", "wildcard", "default"}
	for i, w := range want {
		if order[i] != w {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestRegistry_ValidatorShortCircuits(t *testing.T) {
	r := New(delimiter.NewPreamble(""))
	var calledSecond bool
	failing := func(metadata, content map[string]any) error { return errors.New("boom") }
	second := func(metadata, content map[string]any) error { calledSecond = true; return nil }

	_ = r.Register("files_operations", nil, nil, failing, second)

	if err := r.Validate("files_operations", nil, nil); err == nil {
		t.Fatalf("expected validator failure to propagate")
	}
	if calledSecond {
		t.Fatalf("second validator must not run after the first fails")
	}
}

type fileOp struct {
	Path   string
	Action string
}

type filesContent struct {
	Operations []fileOp
}

type filesMeta struct {
	ID string
}

func TestRegistry_RegisterTypedDecode(t *testing.T) {
	r := New(delimiter.NewPreamble(""))
	err := RegisterTyped(r, "files_operations", nil, nil,
		func(metadata, content map[string]any) (filesMeta, filesContent, error) {
			id, _ := metadata["id"].(string)
			return filesMeta{ID: id}, filesContent{Operations: []fileOp{{Path: "src/main.py", Action: "create"}}}, nil
		})
	if err != nil {
		t.Fatalf("RegisterTyped: %v", err)
	}

	m, c, ok, err := r.Decode("files_operations", map[string]any{"id": "f01"}, map[string]any{})
	if err != nil || !ok {
		t.Fatalf("Decode: ok=%v err=%v", ok, err)
	}
	meta, isMeta := m.(filesMeta)
	content, isContent := c.(filesContent)
	if !isMeta || !isContent {
		t.Fatalf("unexpected decoded types: %T, %T", m, c)
	}
	if meta.ID != "f01" || len(content.Operations) != 1 || content.Operations[0].Path != "src/main.py" {
		t.Fatalf("unexpected decode result: %+v %+v", meta, content)
	}

	if _, _, ok, _ := r.Decode("no_such_type", nil, nil); ok {
		t.Fatalf("Decode on unregistered type should report ok=false")
	}
}
