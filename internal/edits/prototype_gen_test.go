package edits

import (
	"os"
	"strings"
	"testing"
)

func TestChangePrototypeReturnType(t *testing.T) {
	dir := t.TempDir()
	src := "int add(int a, int b);\nint add(int a, int b){return a+b;}\n"
	path := writeFile(t, dir, "m.cpp", src)

	table := tableWith(funcSym("add", path, 1))
	gen := &ChangePrototype{Target: "add", Spec: ChangeSpec{NewReturnType: "long"}}

	all := drain(t, gen.Generate(dir, table))
	if len(all) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(all))
	}
	e := all[0]
	if e.Message != "Change return type to long for add" {
		t.Errorf("Message = %q", e.Message)
	}
	if e.Probability != 0.3 {
		t.Errorf("return type change probability = %v", e.Probability)
	}

	if err := e.Apply(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "long add(int a, int b);") {
		t.Errorf("return type not changed: %q", string(data))
	}
}

func TestChangePrototypeNoopYieldsNothing(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "m.cpp", "int add(int a, int b);\n")

	table := tableWith(funcSym("add", path, 1))

	// Renaming a parameter to its current name changes nothing.
	gen := &ChangePrototype{Target: "add", Spec: ChangeSpec{
		ParamChanges: []ParamChange{{Index: 0, NewName: "a"}},
	}}
	if all := drain(t, gen.Generate(dir, table)); len(all) != 0 {
		t.Errorf("no-op change should yield nothing, got %d", len(all))
	}

	// An empty spec yields nothing either.
	gen = &ChangePrototype{Target: "add"}
	if all := drain(t, gen.Generate(dir, table)); len(all) != 0 {
		t.Errorf("empty spec should yield nothing, got %d", len(all))
	}
}

func TestChangePrototypeUnknownSymbol(t *testing.T) {
	gen := &ChangePrototype{Target: "ghost", Spec: ChangeSpec{NewReturnType: "long"}}
	if all := drain(t, gen.Generate(t.TempDir(), tableWith())); len(all) != 0 {
		t.Errorf("unknown symbol should yield nothing, got %d", len(all))
	}
}

func TestChangePrototypeParamEdits(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "m.cpp", "int f(int a, int b, int c);\n")

	table := tableWith(funcSym("f", path, 1))
	gen := &ChangePrototype{Target: "f", Spec: ChangeSpec{
		ParamChanges:   []ParamChange{{Index: 0, NewType: "long"}},
		ParamsToRemove: []int{2},
	}}

	all := drain(t, gen.Generate(dir, table))
	if len(all) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(all))
	}
	if err := all[0].Apply(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "int f(long a, int b);") {
		t.Errorf("param edits wrong: %q", string(data))
	}
}

func TestRegistry(t *testing.T) {
	for _, id := range []string{"add_override", "add_nodiscard", "remove_inline", "remove_static", "ms_macro_replacement"} {
		g, err := FromID(id)
		if err != nil {
			t.Errorf("FromID(%q): %v", id, err)
			continue
		}
		if g.ID() != id {
			t.Errorf("FromID(%q).ID() = %q", id, g.ID())
		}
	}

	if _, err := FromID("nonexistent"); err == nil {
		t.Error("unknown mod id should error")
	}

	if len(Available()) != 5 {
		t.Errorf("Available() = %d mods, want 5", len(Available()))
	}
}

func TestStreamIsNotRestartable(t *testing.T) {
	s := sliceStream([]*Edit{{Message: "only"}})
	e, _ := s.Next()
	if e == nil || e.Message != "only" {
		t.Fatal("first pull should yield the edit")
	}
	if e, _ := s.Next(); e != nil {
		t.Error("exhausted stream must stay exhausted")
	}
	if e, _ := s.Next(); e != nil {
		t.Error("exhausted stream must stay exhausted on every pull")
	}
}
