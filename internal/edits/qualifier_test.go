package edits

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"levelup/internal/symbols"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func tableWith(syms ...*symbols.Symbol) *symbols.Table {
	table := symbols.NewTable()
	table.Load(syms)
	return table
}

func funcSym(qualified, file string, line int) *symbols.Symbol {
	s := symbols.NewFunction()
	s.Name = qualified[strings.LastIndex(qualified, ":")+1:]
	s.QualifiedName = qualified
	s.FilePath = file
	s.LineStart = line
	s.LineEnd = line
	return s
}

func drain(t *testing.T, s *Stream) []*Edit {
	t.Helper()
	var out []*Edit
	for {
		e, err := s.Next()
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		if e == nil {
			return out
		}
		out = append(out, e)
	}
}

func TestAddOverride(t *testing.T) {
	dir := t.TempDir()
	src := "class Shape {\npublic:\n    virtual void bar();\n};\n"
	path := writeFile(t, dir, "shape.h", src)

	table := tableWith(funcSym("Shape::bar", path, 3))
	gen := NewAddQualifier("add_override", "Add Override Keywords", "override", true)

	all := drain(t, gen.Generate(dir, table))
	if len(all) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(all))
	}
	e := all[0]
	if e.Message != "Add override to bar in shape.h" {
		t.Errorf("Message = %q", e.Message)
	}
	if e.ValidatorID != "asm_o0" {
		t.Errorf("ValidatorID = %q", e.ValidatorID)
	}
	if e.Probability != 0.9 {
		t.Errorf("Probability = %v", e.Probability)
	}

	if err := e.Apply(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "virtual void bar() override;") {
		t.Errorf("override not inserted: %q", string(data))
	}

	// Idempotence: the transformed repository yields no further edits.
	again := drain(t, gen.Generate(dir, tableWith(funcSym("Shape::bar", path, 3))))
	if len(again) != 0 {
		t.Errorf("second run should yield nothing, got %d edits", len(again))
	}
}

func TestAddOverrideSkipsNonVirtual(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "plain.h", "void free_function();\n")

	table := tableWith(funcSym("free_function", path, 1))
	gen := NewAddQualifier("add_override", "Add Override Keywords", "override", true)

	if all := drain(t, gen.Generate(dir, table)); len(all) != 0 {
		t.Errorf("non-virtual function should produce no edits, got %d", len(all))
	}
}

func TestAddNodiscardBeforeReturnType(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "calc.h", "static int total();\n")

	table := tableWith(funcSym("total", path, 1))
	gen := NewAddQualifier("add_nodiscard", "Add [[nodiscard]] Attributes", "[[nodiscard]]", false)

	all := drain(t, gen.Generate(dir, table))
	if len(all) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(all))
	}
	if err := all[0].Apply(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "static [[nodiscard]] int total();") {
		t.Errorf("attribute placement wrong: %q", string(data))
	}
}

func TestRemoveInline(t *testing.T) {
	dir := t.TempDir()
	src := "inline int squared(int x){return x*x;}\nint f(){return squared(4)+1;}\n"
	path := writeFile(t, dir, "sq.cpp", src)

	table := tableWith(funcSym("squared", path, 1), funcSym("f", path, 2))
	gen := NewRemoveQualifier("remove_inline", "Remove Inline Keywords", "inline")

	all := drain(t, gen.Generate(dir, table))
	if len(all) != 1 {
		t.Fatalf("expected 1 edit, got %d", len(all))
	}
	if all[0].Message != "Remove inline from squared in sq.cpp" {
		t.Errorf("Message = %q", all[0].Message)
	}

	if err := all[0].Apply(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "int squared(int x){return x*x;}") {
		t.Errorf("inline not removed cleanly: %q", string(data))
	}
}

func TestRemoveQualifierWholeTokenOnly(t *testing.T) {
	line := removeQualifier("int inlined_helper();", "inline")
	if line != "int inlined_helper();" {
		t.Errorf("partial token must not match: %q", line)
	}
}

func TestGeneratorOrderIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.cpp", "inline int one();\ninline int two();\n")
	b := writeFile(t, dir, "b.cpp", "inline int three();\n")

	table := tableWith(
		funcSym("three", b, 1),
		funcSym("two", a, 2),
		funcSym("one", a, 1),
	)
	gen := NewRemoveQualifier("remove_inline", "Remove Inline Keywords", "inline")

	all := drain(t, gen.Generate(dir, table))
	if len(all) != 3 {
		t.Fatalf("expected 3 edits, got %d", len(all))
	}
	want := []string{
		"Remove inline from one in a.cpp",
		"Remove inline from two in a.cpp",
		"Remove inline from three in b.cpp",
	}
	for i, e := range all {
		if e.Message != want[i] {
			t.Errorf("edit %d = %q, want %q", i, e.Message, want[i])
		}
	}
}
