// Package edits implements the library of atomic edit generators. A
// generator consumes the repository and symbol table and yields a lazy,
// finite, non-restartable sequence of edits in deterministic order: files
// sorted by path, edits within a file by line. The consumer pulls one edit
// at a time; backpressure is implicit.
package edits

import (
	"sort"

	"levelup/internal/symbols"
)

// Edit is the smallest unit that is individually compiled, validated, and
// committed. Applying an edit is idempotent given the same source text; the
// engine snapshots the touched files before calling Apply.
type Edit struct {
	// Paths are the files the edit touches (the engine's snapshot set).
	Paths []string
	// CompileFiles are the translation units validated by the oracle. An
	// empty list marks an edit with no unit of its own to compile (the
	// compatibility header); it validates trivially and relies on the
	// follow-up include edits for coverage.
	CompileFiles []string
	// Message is the commit message recorded on acceptance or rejection.
	Message string
	// ValidatorID selects the oracle profile ("asm_o0" or "asm_o3").
	ValidatorID string
	// Probability is the success hint in [0,1] used by batch gating.
	Probability float64
	// Apply mutates the touched files in place.
	Apply func() error
	// OnAccepted, when set, runs after the edit's commit lands (symbol
	// table refresh for prototype edits).
	OnAccepted func()
}

// Stream is a lazy, finite, non-restartable edit sequence. Next returns
// (nil, nil) once exhausted.
type Stream struct {
	next func() (*Edit, error)
}

// Next pulls the next edit.
func (s *Stream) Next() (*Edit, error) {
	return s.next()
}

// NewStream wraps a fixed edit list in a Stream. Used by the commit-sourced
// mod path and by tests; builtin generators build their streams lazily.
func NewStream(edits []*Edit) *Stream {
	return sliceStream(edits)
}

// sliceStream yields a fixed candidate list one edit at a time.
func sliceStream(edits []*Edit) *Stream {
	i := 0
	return &Stream{next: func() (*Edit, error) {
		if i >= len(edits) {
			return nil, nil
		}
		e := edits[i]
		i++
		return e, nil
	}}
}

// deferredStream delays candidate construction until the first pull, so
// generators observe the repository state at iteration time, not at
// registration time.
func deferredStream(build func() ([]*Edit, error)) *Stream {
	var inner *Stream
	var failed error
	return &Stream{next: func() (*Edit, error) {
		if failed != nil {
			return nil, failed
		}
		if inner == nil {
			candidates, err := build()
			if err != nil {
				failed = err
				return nil, err
			}
			inner = sliceStream(candidates)
		}
		return inner.Next()
	}}
}

// Generator produces the edit stream for one mod over a repository.
type Generator interface {
	// ID is the stable external identifier.
	// IMPORTANT: used in APIs; do not change once set.
	ID() string
	// Name is the human-readable mod name.
	Name() string
	// Generate returns the lazy edit sequence.
	Generate(repoPath string, table *symbols.Table) *Stream
}

// functionsByPosition returns the table's function symbols ordered by file
// path, then line - the deterministic iteration order every generator uses.
func functionsByPosition(table *symbols.Table) []*symbols.Symbol {
	var funcs []*symbols.Symbol
	for _, s := range table.All() {
		if s.Kind == symbols.KindFunction {
			funcs = append(funcs, s)
		}
	}
	sort.Slice(funcs, func(i, j int) bool {
		if funcs[i].FilePath != funcs[j].FilePath {
			return funcs[i].FilePath < funcs[j].FilePath
		}
		return funcs[i].LineStart < funcs[j].LineStart
	})
	return funcs
}
