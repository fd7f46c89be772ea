package edits

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"levelup/internal/cpp"
	"levelup/internal/logging"
	"levelup/internal/symbols"
)

// ParamChange rewrites one parameter in place. Empty fields are left as-is.
type ParamChange struct {
	Index   int
	NewType string
	NewName string
}

// ParamAdd inserts a parameter. Position -1 appends.
type ParamAdd struct {
	Type     string
	Name     string
	Position int
}

// ChangeSpec collects the atomic sub-changes of one prototype edit.
type ChangeSpec struct {
	NewReturnType   string
	NewFunctionName string
	ParamChanges    []ParamChange
	ParamsToAdd     []ParamAdd
	ParamsToRemove  []int
}

// HasChanges reports whether the spec requests anything.
func (c *ChangeSpec) HasChanges() bool {
	return c.NewReturnType != "" || c.NewFunctionName != "" ||
		len(c.ParamChanges) > 0 || len(c.ParamsToAdd) > 0 || len(c.ParamsToRemove) > 0
}

// probability estimates how likely the oracle accepts this change. Renames
// of parameters are invisible in assembly; return-type changes shift the
// ABI and almost always fail at any optimization level.
func (c *ChangeSpec) probability() float64 {
	switch {
	case c.NewReturnType != "":
		return 0.3
	case c.NewFunctionName != "" || len(c.ParamsToAdd) > 0 || len(c.ParamsToRemove) > 0:
		return 0.5
	default:
		return 0.85
	}
}

// ChangePrototype rewrites the prototype span of one function. The span
// starts at the symbol's recorded line and extends until the line containing
// ';' or '{'. Yields nothing when the rewrite leaves the text unchanged.
type ChangePrototype struct {
	Target string // qualified name
	Spec   ChangeSpec
}

func (g *ChangePrototype) ID() string   { return "change_prototype" }
func (g *ChangePrototype) Name() string { return "Change Function Prototype" }

func (g *ChangePrototype) Generate(repoPath string, table *symbols.Table) *Stream {
	return deferredStream(func() ([]*Edit, error) {
		if !g.Spec.HasChanges() {
			return nil, nil
		}
		sym := table.Get(g.Target)
		if sym == nil || sym.Kind != symbols.KindFunction {
			logging.ModsDebug("change_prototype: unknown function %q", g.Target)
			return nil, nil
		}

		loc, err := cpp.FindPrototype(sym.FilePath, sym.LineStart)
		if err != nil || loc == nil {
			return nil, err
		}

		modified := applyChanges(loc.Text, &g.Spec)
		if modified == "" || modified == loc.Text {
			return nil, nil
		}

		edit := &Edit{
			Paths:        []string{sym.FilePath},
			CompileFiles: []string{sym.FilePath},
			Message:      commitMessage(sym.Name, &g.Spec),
			ValidatorID:  "asm_o0",
			Probability:  g.Spec.probability(),
			Apply: func() error {
				return replaceSpan(sym.FilePath, loc.LineStart, loc.LineEnd, modified)
			},
			OnAccepted: func() {
				table.RefreshFromSource(sym.QualifiedName)
			},
		}
		return []*Edit{edit}, nil
	})
}

// applyChanges runs every requested sub-change over the prototype text.
// Sub-changes that cannot be located leave the text untouched rather than
// failing the whole edit.
func applyChanges(prototype string, spec *ChangeSpec) string {
	modified := prototype

	if spec.NewReturnType != "" {
		if r := cpp.ReplaceReturnType(modified, spec.NewReturnType); r != "" {
			modified = r
		}
	}
	if spec.NewFunctionName != "" {
		if r := cpp.ReplaceFunctionName(modified, spec.NewFunctionName); r != "" {
			modified = r
		}
	}
	for _, pc := range spec.ParamChanges {
		if pc.NewType != "" {
			if r := cpp.ReplaceParameterType(modified, pc.Index, pc.NewType); r != "" {
				modified = r
			}
		}
		if pc.NewName != "" {
			if r := cpp.ReplaceParameterName(modified, pc.Index, pc.NewName); r != "" {
				modified = r
			}
		}
	}
	// Remove from the highest index down so earlier indexes stay valid.
	removes := append([]int(nil), spec.ParamsToRemove...)
	sort.Sort(sort.Reverse(sort.IntSlice(removes)))
	for _, idx := range removes {
		if r := cpp.RemoveParameter(modified, idx); r != "" {
			modified = r
		}
	}
	for _, add := range spec.ParamsToAdd {
		if r := cpp.AddParameter(modified, cpp.Param{Type: add.Type, Name: add.Name}, add.Position); r != "" {
			modified = r
		}
	}
	return modified
}

func commitMessage(name string, spec *ChangeSpec) string {
	var changes []string
	if spec.NewReturnType != "" {
		changes = append(changes, "return type to "+spec.NewReturnType)
	}
	if spec.NewFunctionName != "" {
		changes = append(changes, "name to "+spec.NewFunctionName)
	}
	if n := len(spec.ParamChanges); n > 0 {
		changes = append(changes, fmt.Sprintf("%d parameter(s)", n))
	}
	if n := len(spec.ParamsToAdd); n > 0 {
		changes = append(changes, fmt.Sprintf("add %d parameter(s)", n))
	}
	if n := len(spec.ParamsToRemove); n > 0 {
		changes = append(changes, fmt.Sprintf("remove %d parameter(s)", n))
	}
	desc := "prototype"
	if len(changes) > 0 {
		desc = strings.Join(changes, ", ")
	}
	return fmt.Sprintf("Change %s for %s", desc, name)
}

// replaceSpan swaps lines [start,end] (1-based, inclusive) with text.
func replaceSpan(path string, start, end int, text string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.SplitAfter(string(data), "\n")
	if start < 1 || end > len(lines) || start > end {
		return fmt.Errorf("span [%d,%d] out of range in %s", start, end, filepath.Base(path))
	}

	var sb strings.Builder
	for _, l := range lines[:start-1] {
		sb.WriteString(l)
	}
	sb.WriteString(text)
	for _, l := range lines[end:] {
		sb.WriteString(l)
	}
	return os.WriteFile(path, []byte(sb.String()), 0644)
}
