package symbols

import (
	"path/filepath"
	"sync"

	"levelup/internal/cpp"
	"levelup/internal/logging"
)

// Table indexes symbols by qualified name and by source file. Writes come
// from the single job worker; reads may come from HTTP handlers, so access
// is guarded.
type Table struct {
	mu        sync.RWMutex
	symbols   map[string]*Symbol
	fileIndex map[string]map[string]bool

	// dirty holds files modified since the last full parse. A dirty file
	// triggers a re-parse on the next end-to-end run, not the current one -
	// Doxygen is far too slow for per-edit refresh.
	dirty map[string]bool
}

// NewTable creates an empty symbol table.
func NewTable() *Table {
	return &Table{
		symbols:   make(map[string]*Symbol),
		fileIndex: make(map[string]map[string]bool),
		dirty:     make(map[string]bool),
	}
}

// Load replaces the table contents with freshly parsed symbols and clears
// the dirty set.
func (t *Table) Load(syms []*Symbol) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.symbols = make(map[string]*Symbol, len(syms))
	t.fileIndex = make(map[string]map[string]bool)
	t.dirty = make(map[string]bool)

	for _, s := range syms {
		t.symbols[s.QualifiedName] = s
		t.indexFile(s)
	}
	logging.Symbols("Loaded %d symbols", len(t.symbols))
}

func (t *Table) indexFile(s *Symbol) {
	key := canonPath(s.FilePath)
	if t.fileIndex[key] == nil {
		t.fileIndex[key] = make(map[string]bool)
	}
	t.fileIndex[key][s.QualifiedName] = true
}

// Get returns the symbol with the given qualified name, or nil.
func (t *Table) Get(qualifiedName string) *Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.symbols[qualifiedName]
}

// InFile returns all symbols recorded in the given source file.
func (t *Table) InFile(path string) []*Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*Symbol
	for qn := range t.fileIndex[canonPath(path)] {
		if s, ok := t.symbols[qn]; ok {
			out = append(out, s)
		}
	}
	return out
}

// All returns every symbol in the table.
func (t *Table) All() []*Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Symbol, 0, len(t.symbols))
	for _, s := range t.symbols {
		out = append(out, s)
	}
	return out
}

// Update replaces a symbol after a successful refactoring, keeping the file
// index consistent when the symbol moved files.
func (t *Table) Update(updated *Symbol) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old, ok := t.symbols[updated.QualifiedName]
	if !ok {
		logging.Get(logging.CategorySymbols).Warn("Attempted to update unknown symbol: %s", updated.QualifiedName)
		return
	}

	t.symbols[updated.QualifiedName] = updated

	oldKey := canonPath(old.FilePath)
	newKey := canonPath(updated.FilePath)
	if oldKey != newKey {
		if set := t.fileIndex[oldKey]; set != nil {
			delete(set, updated.QualifiedName)
			if len(set) == 0 {
				delete(t.fileIndex, oldKey)
			}
		}
		if t.fileIndex[newKey] == nil {
			t.fileIndex[newKey] = make(map[string]bool)
		}
		t.fileIndex[newKey][updated.QualifiedName] = true
	}
	logging.SymbolsDebug("Updated symbol: %s", updated.QualifiedName)
}

// RefreshFromSource re-reads a function's prototype span from disk and
// replaces return type and parameters in place, without re-running the
// parser. Called after a successful prototype edit.
func (t *Table) RefreshFromSource(qualifiedName string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.symbols[qualifiedName]
	if !ok {
		logging.Get(logging.CategorySymbols).Warn("Attempted to refresh unknown symbol: %s", qualifiedName)
		return
	}
	if s.Kind != KindFunction {
		logging.SymbolsDebug("Skipping refresh for non-function symbol: %s", qualifiedName)
		return
	}

	loc, err := cpp.FindPrototype(s.FilePath, s.LineStart)
	if err != nil || loc == nil {
		logging.Get(logging.CategorySymbols).Warn("Could not find prototype for symbol: %s", qualifiedName)
		return
	}

	s.Prototype = loc.Text
	if ret := cpp.ExtractReturnType(loc.Text); ret != "" {
		s.ReturnType = ret
		// Expanded variant tracks the source text until the next Doxygen run.
		s.ReturnTypeExpanded = ret
	}
	params := cpp.ExtractParameters(loc.Text)
	s.Params = params
	s.ParamsExpanded = params

	logging.SymbolsDebug("Refreshed symbol from source: %s", qualifiedName)
}

// MarkDirty records that a file changed since the last full parse.
func (t *Table) MarkDirty(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty[canonPath(path)] = true
}

// DirtyFiles returns the files changed since the last full parse.
func (t *Table) DirtyFiles() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.dirty))
	for f := range t.dirty {
		out = append(out, f)
	}
	return out
}

// NeedsReparse reports whether the next end-to-end run should trigger a full
// Doxygen re-parse.
func (t *Table) NeedsReparse() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.dirty) > 0
}

// Len returns the number of indexed symbols.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.symbols)
}

func canonPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	return abs
}
