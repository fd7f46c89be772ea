package edits

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"levelup/internal/symbols"
)

func applyAll(t *testing.T, edits []*Edit) {
	t.Helper()
	for _, e := range edits {
		if err := e.Apply(); err != nil {
			t.Fatalf("apply %q: %v", e.Message, err)
		}
	}
}

func TestMSMacroReplacementScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.cpp", "__forceinline int h(){return 1;}\n")
	writeFile(t, dir, "b.cpp", "const char* s = \"x __int64 y\";\n")

	gen := &MSMacroReplacement{}
	all := drain(t, gen.Generate(dir, symbols.NewTable()))

	want := []string{
		"Add levelup_msvc_compat.h with macro definitions",
		"Add levelup_msvc_compat.h include to a.cpp",
		"Replace '__forceinline' with LEVELUP_FORCEINLINE at a.cpp:1",
	}
	if len(all) != len(want) {
		var got []string
		for _, e := range all {
			got = append(got, e.Message)
		}
		t.Fatalf("expected %d edits, got %v", len(want), got)
	}
	for i, e := range all {
		if e.Message != want[i] {
			t.Errorf("edit %d = %q, want %q", i, e.Message, want[i])
		}
	}

	applyAll(t, all)

	header, err := os.ReadFile(filepath.Join(dir, HeaderName))
	if err != nil {
		t.Fatalf("header not written: %v", err)
	}
	h := string(header)
	for _, frag := range []string{
		"#ifndef LEVELUP_MSVC_COMPAT_H",
		"#ifdef _MSC_VER",
		"#define LEVELUP_FORCEINLINE __forceinline",
		"#define LEVELUP_FORCEINLINE inline",
	} {
		if !strings.Contains(h, frag) {
			t.Errorf("header missing %q:\n%s", frag, h)
		}
	}
	// Only __forceinline was used: no fixed-width macros, no cstdint.
	if strings.Contains(h, "cstdint") {
		t.Error("header should not include <cstdint> for __forceinline alone")
	}

	a, _ := os.ReadFile(filepath.Join(dir, "a.cpp"))
	text := string(a)
	if !strings.Contains(text, "#include \"levelup_msvc_compat.h\"") {
		t.Errorf("include missing in a.cpp: %q", text)
	}
	if !strings.Contains(text, "LEVELUP_FORCEINLINE int h(){return 1;}") {
		t.Errorf("replacement missing in a.cpp: %q", text)
	}
	if strings.Contains(text, "__forceinline") {
		t.Errorf("__forceinline should be gone: %q", text)
	}

	// The string-literal match in b.cpp must be untouched.
	b, _ := os.ReadFile(filepath.Join(dir, "b.cpp"))
	if string(b) != "const char* s = \"x __int64 y\";\n" {
		t.Errorf("b.cpp should be untouched: %q", string(b))
	}
}

func TestMSMacroNoPatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "clean.cpp", "int main() { return 0; }\n")

	gen := &MSMacroReplacement{}
	if all := drain(t, gen.Generate(dir, symbols.NewTable())); len(all) != 0 {
		t.Errorf("clean repository should yield nothing, got %d edits", len(all))
	}
	if _, err := os.Stat(filepath.Join(dir, HeaderName)); !os.IsNotExist(err) {
		t.Error("header must not be created when nothing is replaced")
	}
}

func TestMSMacroCommentsAndStringsOnly(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc.cpp", "// __forceinline mentioned in a comment\nconst char* s = \"__int64\";\n/* __assume(0) */\n")

	gen := &MSMacroReplacement{}
	if all := drain(t, gen.Generate(dir, symbols.NewTable())); len(all) != 0 {
		t.Errorf("masked-only matches should yield nothing, got %d edits", len(all))
	}
}

func TestMSMacroCstdintForIntWidths(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "w.cpp", "__int64 big;\n")

	gen := &MSMacroReplacement{}
	all := drain(t, gen.Generate(dir, symbols.NewTable()))
	applyAll(t, all)

	header, err := os.ReadFile(filepath.Join(dir, HeaderName))
	if err != nil {
		t.Fatal(err)
	}
	h := string(header)
	if !strings.Contains(h, "#include <cstdint>") {
		t.Error("integer-width macro requires <cstdint>")
	}
	if !strings.Contains(h, "#define LEVELUP_INT64 int64_t") {
		t.Errorf("non-MSVC expansion missing:\n%s", h)
	}
}

func TestMSMacroDeclspecAlignKeepsArgument(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "al.cpp", "__declspec(align(16)) struct S { int x; };\n")

	gen := &MSMacroReplacement{}
	all := drain(t, gen.Generate(dir, symbols.NewTable()))
	applyAll(t, all)

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "LEVELUP_DECLSPEC_ALIGN(16) struct S") {
		t.Errorf("align argument lost: %q", string(data))
	}
}

func TestMSMacroIncludeAfterLeadingComments(t *testing.T) {
	dir := t.TempDir()
	src := "// Copyright notice\n// spans two lines\n\n__forceinline int g(){return 2;}\n"
	path := writeFile(t, dir, "c.cpp", src)

	gen := &MSMacroReplacement{}
	all := drain(t, gen.Generate(dir, symbols.NewTable()))
	applyAll(t, all)

	data, _ := os.ReadFile(path)
	lines := strings.Split(string(data), "\n")
	if lines[3] != "#include \"levelup_msvc_compat.h\"" {
		t.Errorf("include should land after the comment block, got lines: %q", lines[:5])
	}
}

func TestMSMacroAssume(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "as.cpp", "void f(int x){ __assume(x > 0); }\n")

	gen := &MSMacroReplacement{}
	all := drain(t, gen.Generate(dir, symbols.NewTable()))
	applyAll(t, all)

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "LEVELUP_ASSUME(x > 0);") {
		t.Errorf("__assume call not rewritten: %q", string(data))
	}
}
