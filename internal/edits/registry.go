package edits

import "fmt"

// Info describes a registered mod for the HTTP surface.
type Info struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// builtins are the mods reachable by id from the submission API. Ids are
// stable external identifiers; the lookup happens once at job start.
var builtins = []func() Generator{
	func() Generator {
		return NewAddQualifier("add_override", "Add Override Keywords", "override", true)
	},
	func() Generator {
		return NewAddQualifier("add_nodiscard", "Add [[nodiscard]] Attributes", "[[nodiscard]]", false)
	},
	func() Generator {
		return NewRemoveQualifier("remove_inline", "Remove Inline Keywords", "inline")
	},
	func() Generator {
		return NewRemoveQualifier("remove_static", "Remove Static Keywords", "static")
	},
	func() Generator { return &MSMacroReplacement{} },
}

// FromID resolves a mod id to a fresh generator instance.
func FromID(id string) (Generator, error) {
	for _, mk := range builtins {
		g := mk()
		if g.ID() == id {
			return g, nil
		}
	}
	return nil, fmt.Errorf("unsupported mod %q", id)
}

// Available lists the registered mods.
func Available() []Info {
	out := make([]Info, 0, len(builtins))
	for _, mk := range builtins {
		g := mk()
		out = append(out, Info{ID: g.ID(), Name: g.Name()})
	}
	return out
}
