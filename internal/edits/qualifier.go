package edits

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"levelup/internal/logging"
	"levelup/internal/symbols"
)

// AddQualifier yields one edit per function that can take the qualifier.
// Trailing qualifiers (const, noexcept, override, final) go between ')' and
// the following ';' or '{'; attribute qualifiers ([[nodiscard]]) go before
// the return type. Adding a qualifier preserves semantics with high
// confidence.
type AddQualifier struct {
	id        string
	name      string
	Qualifier string
	// RequireVirtual restricts candidates to virtual declarations
	// (override/final only make sense there).
	RequireVirtual bool
}

// NewAddQualifier builds a registered add-qualifier mod.
func NewAddQualifier(id, name, qualifier string, requireVirtual bool) *AddQualifier {
	return &AddQualifier{id: id, name: name, Qualifier: qualifier, RequireVirtual: requireVirtual}
}

func (g *AddQualifier) ID() string   { return g.id }
func (g *AddQualifier) Name() string { return g.name }

func (g *AddQualifier) Generate(repoPath string, table *symbols.Table) *Stream {
	return deferredStream(func() ([]*Edit, error) {
		var out []*Edit
		for _, sym := range functionsByPosition(table) {
			sym := sym
			line, err := readLine(sym.FilePath, sym.LineStart)
			if err != nil {
				logging.ModsDebug("Skipping %s: %v", sym.QualifiedName, err)
				continue
			}
			if !qualifierInsertable(line, g.Qualifier) {
				continue
			}
			if g.RequireVirtual && !containsWord(line, "virtual") {
				continue
			}

			out = append(out, &Edit{
				Paths:        []string{sym.FilePath},
				CompileFiles: []string{sym.FilePath},
				Message:      fmt.Sprintf("Add %s to %s in %s", g.Qualifier, sym.Name, filepath.Base(sym.FilePath)),
				ValidatorID:  "asm_o0",
				Probability:  0.9,
				Apply: func() error {
					return editLine(sym.FilePath, sym.LineStart, func(l string) string {
						return insertQualifier(l, g.Qualifier)
					})
				},
			})
		}
		logging.Mods("%s: %d candidate edits", g.id, len(out))
		return out, nil
	})
}

// RemoveQualifier yields one edit per function whose declaration line
// carries the qualifier as a whole token.
type RemoveQualifier struct {
	id        string
	name      string
	Qualifier string
}

// NewRemoveQualifier builds a registered remove-qualifier mod.
func NewRemoveQualifier(id, name, qualifier string) *RemoveQualifier {
	return &RemoveQualifier{id: id, name: name, Qualifier: qualifier}
}

func (g *RemoveQualifier) ID() string   { return g.id }
func (g *RemoveQualifier) Name() string { return g.name }

func (g *RemoveQualifier) Generate(repoPath string, table *symbols.Table) *Stream {
	return deferredStream(func() ([]*Edit, error) {
		var out []*Edit
		for _, sym := range functionsByPosition(table) {
			sym := sym
			line, err := readLine(sym.FilePath, sym.LineStart)
			if err != nil {
				logging.ModsDebug("Skipping %s: %v", sym.QualifiedName, err)
				continue
			}
			if !containsWord(line, g.Qualifier) {
				continue
			}

			out = append(out, &Edit{
				Paths:        []string{sym.FilePath},
				CompileFiles: []string{sym.FilePath},
				Message:      fmt.Sprintf("Remove %s from %s in %s", g.Qualifier, sym.Name, filepath.Base(sym.FilePath)),
				ValidatorID:  "asm_o0",
				Probability:  0.9,
				Apply: func() error {
					return editLine(sym.FilePath, sym.LineStart, func(l string) string {
						return removeQualifier(l, g.Qualifier)
					})
				},
			})
		}
		logging.Mods("%s: %d candidate edits", g.id, len(out))
		return out, nil
	})
}

// qualifierInsertable reports whether the line has an insertion point and
// does not already carry the qualifier.
func qualifierInsertable(line, qualifier string) bool {
	if strings.HasPrefix(qualifier, "[[") {
		return !strings.Contains(line, qualifier) && strings.Contains(line, "(")
	}
	if containsWord(line, qualifier) {
		return false
	}
	if !strings.Contains(line, ")") {
		return false
	}
	paren := strings.LastIndex(line, ")")
	return strings.Contains(line[paren:], ";") || strings.Contains(line[paren:], "{") ||
		strings.TrimSpace(line[paren+1:]) == ""
}

// attrPrefixRe matches the leading qualifier run before a return type.
var attrPrefixRe = regexp.MustCompile(`^(\s*(?:virtual\s+|inline\s+|static\s+)*)`)

// insertQualifier rewrites one declaration line. Attribute qualifiers are
// inserted before the return type; the rest between ')' and the terminator.
func insertQualifier(line, qualifier string) string {
	if strings.HasPrefix(qualifier, "[[") {
		m := attrPrefixRe.FindString(line)
		return m + qualifier + " " + line[len(m):]
	}

	paren := strings.LastIndex(line, ")")
	if paren == -1 {
		return line
	}

	if brace := strings.Index(line[paren:], "{"); brace != -1 {
		at := paren + brace
		return line[:at] + qualifier + " " + line[at:]
	}
	if semi := strings.Index(line[paren:], ";"); semi != -1 {
		at := paren + semi
		return line[:at] + " " + qualifier + line[at:]
	}

	// Prototype continues on the next line; append after ')'.
	trimmed := strings.TrimRight(line, " \t\r\n")
	if strings.HasSuffix(trimmed, ")") {
		return trimmed + " " + qualifier + line[len(trimmed):]
	}
	return line
}

// removeQualifier deletes the first whole-token occurrence together with
// trailing whitespace.
func removeQualifier(line, qualifier string) string {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(qualifier) + `\b\s*`)
	if err != nil {
		return line
	}
	loc := re.FindStringIndex(line)
	if loc == nil {
		return line
	}
	return line[:loc[0]] + line[loc[1]:]
}

func containsWord(line, word string) bool {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(word) + `\b`)
	if err != nil {
		return false
	}
	return re.MatchString(line)
}

// readLine returns line n (1-based) of a file.
func readLine(path string, n int) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	lines := strings.SplitAfter(string(data), "\n")
	if n < 1 || n > len(lines) {
		return "", fmt.Errorf("line %d out of range in %s", n, path)
	}
	return lines[n-1], nil
}

// editLine applies fn to line n (1-based) and writes the file back only
// when something changed.
func editLine(path string, n int, fn func(string) string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.SplitAfter(string(data), "\n")
	if n < 1 || n > len(lines) {
		return fmt.Errorf("line %d out of range in %s", n, path)
	}
	modified := fn(lines[n-1])
	if modified == lines[n-1] {
		return nil
	}
	lines[n-1] = modified
	return os.WriteFile(path, []byte(strings.Join(lines, "")), 0644)
}
