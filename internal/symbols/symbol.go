// Package symbols maintains the keyed index of named program entities
// extracted from a repository. The index is populated once from Doxygen XML
// on workspace preparation and refreshed in-memory when accepted edits
// modify prototypes; a full re-parse only happens between end-to-end runs.
package symbols

import (
	"fmt"
	"strings"

	"levelup/internal/cpp"
)

// Kind discriminates the symbol variant. Consumers switch on it instead of
// downcasting.
type Kind string

const (
	KindFunction Kind = "function"
	KindClass    Kind = "class"
	KindStruct   Kind = "struct"
	KindEnum     Kind = "enum"
)

// EnumValue is one enumerator as (name, initializer text).
type EnumValue struct {
	Name  string
	Value string
}

// Symbol is a tagged variant over {function, class/struct, enum}. The
// function-only, class-only, and enum-only fields are zero for other kinds.
// Cross-references between functions (Calls/CalledBy) hold opaque parser ids
// resolved through the table, never pointers.
type Symbol struct {
	Kind          Kind
	Name          string
	QualifiedName string
	FilePath      string
	LineStart     int
	LineEnd       int
	Prototype     string
	DoxygenID     string

	// Function fields
	ReturnType         string
	ReturnTypeExpanded string
	Params             []cpp.Param
	ParamsExpanded     []cpp.Param
	IsMember           bool
	ClassName          string
	Calls              map[string]bool
	CalledBy           map[string]bool

	// Class/struct fields
	BaseClasses []string

	// Enum fields
	EnumValues []EnumValue
}

// NewFunction creates a function symbol with initialized reference sets.
func NewFunction() *Symbol {
	return &Symbol{
		Kind:     KindFunction,
		Calls:    make(map[string]bool),
		CalledBy: make(map[string]bool),
	}
}

// Signature renders the function signature; expanded selects the
// macro-expanded variant when available.
func (s *Symbol) Signature(expanded bool) string {
	if s.Kind != KindFunction {
		return s.Prototype
	}
	params := s.Params
	ret := s.ReturnType
	if expanded {
		if len(s.ParamsExpanded) > 0 {
			params = s.ParamsExpanded
		}
		if s.ReturnTypeExpanded != "" {
			ret = s.ReturnTypeExpanded
		}
	}
	var parts []string
	for _, p := range params {
		if p.Name != "" {
			parts = append(parts, p.Type+" "+p.Name)
		} else {
			parts = append(parts, p.Type)
		}
	}
	return fmt.Sprintf("%s %s(%s)", ret, s.QualifiedName, strings.Join(parts, ", "))
}

func (s *Symbol) String() string {
	return fmt.Sprintf("%s: %s at %s:%d-%d", s.Kind, s.QualifiedName, s.FilePath, s.LineStart, s.LineEnd)
}
