package edits

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"levelup/internal/cpp"
	"levelup/internal/logging"
	"levelup/internal/symbols"
)

// HeaderName is the compatibility header emitted at the repository root.
const HeaderName = "levelup_msvc_compat.h"

// msPattern describes one Microsoft-specific construct and its portable
// macro. Patterns are matched as whole tokens outside strings and comments.
type msPattern struct {
	// re matches one occurrence in masked source text.
	re *regexp.Regexp
	// keyword is the display spelling used in commit messages.
	keyword string
	// macro is the base LEVELUP_ macro name.
	macro string
	// replace renders the replacement for a concrete match.
	replace func(match []string) string
	// needsCstdint marks the fixed-width integer macros.
	needsCstdint bool
}

func plainReplace(macro string) func([]string) string {
	return func([]string) string { return macro }
}

// msPatterns is the closed set of recognized constructs, in deterministic
// order. Patterns that end mid-token (e.g. "__assume(") omit the trailing
// word boundary.
var msPatterns = []msPattern{
	{re: regexp.MustCompile(`\b__forceinline\b`), keyword: "__forceinline", macro: "LEVELUP_FORCEINLINE", replace: plainReplace("LEVELUP_FORCEINLINE")},
	{re: regexp.MustCompile(`\b__declspec\s*\(\s*dllexport\s*\)`), keyword: "__declspec(dllexport)", macro: "LEVELUP_DECLSPEC_DLLEXPORT", replace: plainReplace("LEVELUP_DECLSPEC_DLLEXPORT")},
	{re: regexp.MustCompile(`\b__declspec\s*\(\s*dllimport\s*\)`), keyword: "__declspec(dllimport)", macro: "LEVELUP_DECLSPEC_DLLIMPORT", replace: plainReplace("LEVELUP_DECLSPEC_DLLIMPORT")},
	{re: regexp.MustCompile(`\b__declspec\s*\(\s*nothrow\s*\)`), keyword: "__declspec(nothrow)", macro: "LEVELUP_DECLSPEC_NOTHROW", replace: plainReplace("LEVELUP_DECLSPEC_NOTHROW")},
	{re: regexp.MustCompile(`\b__declspec\s*\(\s*noreturn\s*\)`), keyword: "__declspec(noreturn)", macro: "LEVELUP_DECLSPEC_NORETURN", replace: plainReplace("LEVELUP_DECLSPEC_NORETURN")},
	{re: regexp.MustCompile(`\b__declspec\s*\(\s*align\s*\(\s*(\d+)\s*\)\s*\)`), keyword: "__declspec(align)", macro: "LEVELUP_DECLSPEC_ALIGN",
		replace: func(m []string) string { return "LEVELUP_DECLSPEC_ALIGN(" + m[1] + ")" }},
	{re: regexp.MustCompile(`\b__declspec\s*\(\s*novtable\s*\)`), keyword: "__declspec(novtable)", macro: "LEVELUP_DECLSPEC_NOVTABLE", replace: plainReplace("LEVELUP_DECLSPEC_NOVTABLE")},
	{re: regexp.MustCompile(`\b__assume\s*\(`), keyword: "__assume", macro: "LEVELUP_ASSUME", replace: plainReplace("LEVELUP_ASSUME(")},
	{re: regexp.MustCompile(`\b__int8\b`), keyword: "__int8", macro: "LEVELUP_INT8", replace: plainReplace("LEVELUP_INT8"), needsCstdint: true},
	{re: regexp.MustCompile(`\b__int16\b`), keyword: "__int16", macro: "LEVELUP_INT16", replace: plainReplace("LEVELUP_INT16"), needsCstdint: true},
	{re: regexp.MustCompile(`\b__int32\b`), keyword: "__int32", macro: "LEVELUP_INT32", replace: plainReplace("LEVELUP_INT32"), needsCstdint: true},
	{re: regexp.MustCompile(`\b__int64\b`), keyword: "__int64", macro: "LEVELUP_INT64", replace: plainReplace("LEVELUP_INT64"), needsCstdint: true},
}

// macroDef holds both expansions of one compatibility macro.
type macroDef struct {
	msvc  string
	other string
}

var macroDefs = map[string]macroDef{
	"LEVELUP_FORCEINLINE":        {msvc: "__forceinline", other: "inline"},
	"LEVELUP_DECLSPEC_DLLEXPORT": {msvc: "__declspec(dllexport)", other: ""},
	"LEVELUP_DECLSPEC_DLLIMPORT": {msvc: "__declspec(dllimport)", other: ""},
	"LEVELUP_DECLSPEC_NOTHROW":   {msvc: "__declspec(nothrow)", other: ""},
	"LEVELUP_DECLSPEC_NORETURN":  {msvc: "__declspec(noreturn)", other: ""},
	"LEVELUP_DECLSPEC_ALIGN":     {},
	"LEVELUP_DECLSPEC_NOVTABLE":  {msvc: "__declspec(novtable)", other: ""},
	"LEVELUP_ASSUME":             {},
	"LEVELUP_INT8":               {msvc: "__int8", other: "int8_t"},
	"LEVELUP_INT16":              {msvc: "__int16", other: "int16_t"},
	"LEVELUP_INT32":              {msvc: "__int32", other: "int32_t"},
	"LEVELUP_INT64":              {msvc: "__int64", other: "int64_t"},
}

// MSMacroReplacement replaces Microsoft-specific syntax with portable
// macros. Two passes: a pristine scan discovers which macros are used and
// emits the compatibility header; then, per affected file, an include edit
// followed by one edit per occurrence. Matches inside strings, character
// literals, and comments are ignored.
type MSMacroReplacement struct{}

func (g *MSMacroReplacement) ID() string   { return "ms_macro_replacement" }
func (g *MSMacroReplacement) Name() string { return "MS Macro Replacement" }

func (g *MSMacroReplacement) Generate(repoPath string, table *symbols.Table) *Stream {
	return deferredStream(func() ([]*Edit, error) {
		files, err := sourceFiles(repoPath)
		if err != nil {
			return nil, err
		}

		// First pass: which macros occur anywhere in the repository.
		used := make(map[string]bool)
		needsCstdint := false
		perFile := make(map[string]bool)
		for _, f := range files {
			content, err := os.ReadFile(f)
			if err != nil {
				continue
			}
			masked := cpp.MaskStringsAndComments(string(content))
			for _, p := range msPatterns {
				if p.re.MatchString(masked) {
					used[p.macro] = true
					perFile[f] = true
					if p.needsCstdint {
						needsCstdint = true
					}
				}
			}
		}
		if len(used) == 0 {
			logging.Mods("ms_macro_replacement: no MS-specific syntax found")
			return nil, nil
		}

		var out []*Edit

		// The header comes first; everything after includes it.
		headerPath := filepath.Join(repoPath, HeaderName)
		out = append(out, &Edit{
			Paths:       []string{headerPath},
			Message:     fmt.Sprintf("Add %s with macro definitions", HeaderName),
			ValidatorID: "asm_o0",
			Probability: 1.0,
			Apply: func() error {
				return os.WriteFile(headerPath, []byte(renderHeader(used, needsCstdint)), 0644)
			},
		})

		// Second pass: per affected file, include edit then one edit per
		// occurrence found in the pristine text. Apply re-reads the file so
		// line references stay valid after earlier commits.
		for _, f := range files {
			if !perFile[f] {
				continue
			}
			out = append(out, g.fileEdits(f)...)
		}

		logging.Mods("ms_macro_replacement: %d candidate edits across %d files", len(out), len(perFile))
		return out, nil
	})
}

func (g *MSMacroReplacement) fileEdits(file string) []*Edit {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil
	}
	text := string(content)
	masked := cpp.MaskStringsAndComments(text)

	var out []*Edit

	includeLine := fmt.Sprintf("#include %q", HeaderName)
	if !strings.Contains(text, includeLine) {
		out = append(out, &Edit{
			Paths:        []string{file},
			CompileFiles: []string{file},
			Message:      fmt.Sprintf("Add %s include to %s", HeaderName, filepath.Base(file)),
			ValidatorID:  "asm_o0",
			Probability:  0.9,
			Apply:        func() error { return insertInclude(file, includeLine) },
		})
	}

	for _, p := range msPatterns {
		p := p
		for _, loc := range p.re.FindAllStringIndex(masked, -1) {
			line := strings.Count(masked[:loc[0]], "\n") + 1
			out = append(out, &Edit{
				Paths:        []string{file},
				CompileFiles: []string{file},
				Message: fmt.Sprintf("Replace '%s' with %s at %s:%d",
					text[loc[0]:loc[1]], p.macro, filepath.Base(file), line),
				ValidatorID: "asm_o0",
				Probability: 0.9,
				Apply:       func() error { return replaceFirst(file, &p) },
			})
		}
	}
	return out
}

// insertInclude places the include after the leading comment/whitespace
// block, skipping when it is already present.
func insertInclude(file, includeLine string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	text := string(data)
	if strings.Contains(text, includeLine) {
		return nil
	}

	lines := strings.Split(text, "\n")
	insertPos := 0
	inBlockComment := false
	for i, line := range lines {
		stripped := strings.TrimSpace(line)

		if strings.Contains(stripped, "/*") {
			inBlockComment = true
		}
		if strings.Contains(stripped, "*/") {
			inBlockComment = false
			insertPos = i + 1
			continue
		}
		if inBlockComment || stripped == "" || strings.HasPrefix(stripped, "//") {
			insertPos = i + 1
			continue
		}
		break
	}

	lines = append(lines[:insertPos], append([]string{includeLine}, lines[insertPos:]...)...)
	return os.WriteFile(file, []byte(strings.Join(lines, "\n")), 0644)
}

// replaceFirst rewrites the first masked match of the pattern in the file's
// current content. A no-op when no match remains.
func replaceFirst(file string, p *msPattern) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	text := string(data)
	masked := cpp.MaskStringsAndComments(text)

	loc := p.re.FindStringIndex(masked)
	if loc == nil {
		return nil
	}
	match := p.re.FindStringSubmatch(text[loc[0]:loc[1]])
	if match == nil {
		return nil
	}

	replaced := text[:loc[0]] + p.replace(match) + text[loc[1]:]
	return os.WriteFile(file, []byte(replaced), 0644)
}

// renderHeader emits the compatibility header for the used macro set.
func renderHeader(used map[string]bool, needsCstdint bool) string {
	macros := make([]string, 0, len(used))
	for m := range used {
		macros = append(macros, m)
	}
	sort.Strings(macros)

	var b strings.Builder
	b.WriteString("#ifndef LEVELUP_MSVC_COMPAT_H\n")
	b.WriteString("#define LEVELUP_MSVC_COMPAT_H\n\n")

	if needsCstdint {
		b.WriteString("#include <cstdint>\n\n")
	}

	b.WriteString("#ifdef _MSC_VER\n")
	for _, m := range macros {
		switch m {
		case "LEVELUP_DECLSPEC_ALIGN":
			b.WriteString("  #define LEVELUP_DECLSPEC_ALIGN(x) __declspec(align(x))\n")
		case "LEVELUP_ASSUME":
			b.WriteString("  #define LEVELUP_ASSUME(expr) __assume(expr)\n")
		default:
			b.WriteString(fmt.Sprintf("  #define %s %s\n", m, macroDefs[m].msvc))
		}
	}
	b.WriteString("#else\n")
	for _, m := range macros {
		switch m {
		case "LEVELUP_DECLSPEC_ALIGN":
			b.WriteString("  #define LEVELUP_DECLSPEC_ALIGN(x)\n")
		case "LEVELUP_ASSUME":
			b.WriteString("  #define LEVELUP_ASSUME(expr) (void)(expr)\n")
		default:
			def := macroDefs[m].other
			if def == "" {
				b.WriteString(fmt.Sprintf("  #define %s\n", m))
			} else {
				b.WriteString(fmt.Sprintf("  #define %s %s\n", m, def))
			}
		}
	}
	b.WriteString("#endif\n\n")
	b.WriteString("#endif // LEVELUP_MSVC_COMPAT_H\n")
	return b.String()
}

// sourceFiles lists C/C++ sources and headers under root, sorted by path.
// Previously generated compatibility headers are excluded.
func sourceFiles(root string) ([]string, error) {
	exts := map[string]bool{".cpp": true, ".c": true, ".hpp": true, ".h": true, ".cxx": true, ".cc": true}
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == HeaderName || strings.HasPrefix(d.Name(), "_levelup_") {
			return nil
		}
		if exts[filepath.Ext(path)] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
