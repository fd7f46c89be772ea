package symbols

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestFunction(qualified, file string, line int) *Symbol {
	s := NewFunction()
	s.Name = qualified
	s.QualifiedName = qualified
	s.FilePath = file
	s.LineStart = line
	s.LineEnd = line
	return s
}

func TestTableLoadAndLookup(t *testing.T) {
	table := NewTable()
	table.Load([]*Symbol{
		newTestFunction("add", "/src/a.cpp", 3),
		newTestFunction("sub", "/src/a.cpp", 9),
		newTestFunction("main", "/src/main.cpp", 1),
	})

	if table.Len() != 3 {
		t.Fatalf("Len = %d, want 3", table.Len())
	}
	if table.Get("add") == nil {
		t.Error("add should resolve")
	}
	if table.Get("missing") != nil {
		t.Error("missing symbol should be nil")
	}

	inA := table.InFile("/src/a.cpp")
	if len(inA) != 2 {
		t.Errorf("InFile(a.cpp) = %d symbols, want 2", len(inA))
	}
	if len(table.All()) != 3 {
		t.Error("All should return every symbol")
	}
}

func TestTableUpdateMovesFileIndex(t *testing.T) {
	table := NewTable()
	table.Load([]*Symbol{newTestFunction("f", "/src/old.cpp", 5)})

	moved := newTestFunction("f", "/src/new.cpp", 12)
	table.Update(moved)

	if len(table.InFile("/src/old.cpp")) != 0 {
		t.Error("old file index should be empty")
	}
	if len(table.InFile("/src/new.cpp")) != 1 {
		t.Error("new file index should contain the symbol")
	}
}

func TestTableUpdateUnknownIsNoop(t *testing.T) {
	table := NewTable()
	table.Update(newTestFunction("ghost", "/src/x.cpp", 1))
	if table.Len() != 0 {
		t.Error("updating an unknown symbol must not insert it")
	}
}

func TestRefreshFromSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.cpp")
	src := "// hdr\nlong add(long a, long b);\n"
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}

	s := newTestFunction("add", path, 2)
	s.ReturnType = "int"
	table := NewTable()
	table.Load([]*Symbol{s})

	table.RefreshFromSource("add")

	got := table.Get("add")
	if got.ReturnType != "long" {
		t.Errorf("ReturnType = %q, want long", got.ReturnType)
	}
	if len(got.Params) != 2 || got.Params[0].Type != "long" {
		t.Errorf("Params = %v", got.Params)
	}
}

func TestDirtySet(t *testing.T) {
	table := NewTable()
	table.Load(nil)

	if table.NeedsReparse() {
		t.Error("fresh table should not need a reparse")
	}

	table.MarkDirty("/src/a.cpp")
	if !table.NeedsReparse() {
		t.Error("dirty file should schedule a reparse")
	}
	if len(table.DirtyFiles()) != 1 {
		t.Errorf("DirtyFiles = %v", table.DirtyFiles())
	}

	// A fresh load clears the dirty set.
	table.Load(nil)
	if table.NeedsReparse() {
		t.Error("load should clear the dirty set")
	}
}
