// Package oracle decides whether two assembly listings produced by the same
// backend at the same optimization level represent the same observable
// behavior. It is the component that makes the pipeline semantics-preserving.
//
// The decision rests on three observations:
//
//  1. Every function in the original must have a body-equivalent counterpart
//     in the modified listing.
//  2. Extra functions in the modified listing are tolerated iff they are
//     COMDAT (inline) - the linker may discard them.
//  3. Identifier churn (mangled names, auto-generated labels, string/data
//     symbols) must be canonicalized away before bodies are compared.
package oracle

import (
	"regexp"
	"strconv"
	"strings"

	"levelup/internal/logging"
)

// Format identifies the assembly dialect of a listing.
type Format int

const (
	FormatUnknown Format = iota
	FormatMSVC
	FormatClang
)

func (f Format) String() string {
	switch f {
	case FormatMSVC:
		return "msvc"
	case FormatClang:
		return "clang"
	}
	return "unknown"
}

var (
	// comdatPattern matches MSVC "; COMDAT name" markers.
	comdatPattern = regexp.MustCompile(`^\s*;\s*COMDAT\s+(\S+)`)

	// identifierPattern matches identifiers that churn between otherwise
	// equivalent listings: mangled names (?func@@YAHXZ), local labels
	// ($LN3@func), and string/data symbols ($SG1234).
	identifierPattern = regexp.MustCompile(`(\?[\w@]+Z\b)|(\$LN\d+@\w+)|(\$SG\d+)`)

	// clangSkipPrefixes are directives dropped from Clang function bodies.
	clangSkipPrefixes = []string{
		".seh_", ".def", ".scl", ".type", ".endef",
		".p2align", ".file", ".intel_syntax",
		"@feat.00", ".L", ".cfi_",
	}

	// msvcSkipPrefixes are metadata lines dropped from MSVC function bodies.
	msvcSkipPrefixes = []string{"_TEXT", "pdata", "xdata", "CONST", "DD ", "DQ "}
)

// DetectFormat classifies an assembly listing. Unknown listings are treated
// as inequivalent by Equivalent.
func DetectFormat(asm string) Format {
	if asm == "" {
		return FormatUnknown
	}
	if strings.Contains(asm, " PROC") && strings.Contains(asm, " ENDP") {
		return FormatMSVC
	}
	if strings.Contains(asm, ".globl") || strings.Contains(asm, ".text") {
		return FormatClang
	}
	return FormatUnknown
}

// Equivalent reports whether the modified listing preserves the behavior of
// the original.
func Equivalent(original, modified string) bool {
	origFuncs := ExtractFunctions(original)
	modFuncs := ExtractFunctions(modified)

	if DetectFormat(original) == FormatUnknown || DetectFormat(modified) == FormatUnknown {
		logging.Oracle("Unknown assembly format, treating as inequivalent")
		return false
	}

	modComdat := comdatFunctionNames(modified)

	// (a) every original body must have an equal canonical body in modified.
	modCanonical := make([]string, 0, len(modFuncs))
	for _, body := range modFuncs {
		modCanonical = append(modCanonical, canonicalKey(body))
	}

	for name, body := range origFuncs {
		key := canonicalKey(body)
		found := false
		for _, mk := range modCanonical {
			if mk == key {
				found = true
				break
			}
		}
		if !found {
			logging.OracleDebug("No match for original function %s", name)
			return false
		}
	}

	// (b) extra bodies in modified must belong to COMDAT functions.
	origCanonical := make(map[string]bool, len(origFuncs))
	for _, body := range origFuncs {
		origCanonical[canonicalKey(body)] = true
	}
	for name, body := range modFuncs {
		if origCanonical[canonicalKey(body)] {
			continue
		}
		if !modComdat[name] {
			logging.OracleDebug("Extra non-COMDAT function %s in modified listing", name)
			return false
		}
	}

	return true
}

// ExtractFunctions slices a listing into a map from function-entry label to
// its ordered instruction lines, dispatching on the detected format.
func ExtractFunctions(asm string) map[string][]string {
	switch DetectFormat(asm) {
	case FormatMSVC:
		return extractFunctionsMSVC(asm)
	case FormatClang:
		return extractFunctionsClang(asm)
	}
	return map[string][]string{}
}

// extractFunctionsMSVC slices MSVC listings. Functions span "NAME PROC" to
// "NAME ENDP"; metadata sections and local-variable pseudo-definitions
// ("name$ = N") are skipped.
func extractFunctionsMSVC(asm string) map[string][]string {
	functions := make(map[string][]string)
	var currentFunc string
	var currentBody []string

	for _, raw := range strings.Split(asm, "\n") {
		line := strings.TrimRight(raw, " \t\r")

		// Strip comments.
		if i := strings.Index(line, ";"); i >= 0 {
			line = strings.TrimRight(line[:i], " \t")
		}

		line = collapseWhitespace(line)
		if line == "" {
			continue
		}

		if strings.Contains(line, " PROC") {
			parts := strings.Fields(line)
			if len(parts) >= 2 && parts[1] == "PROC" {
				currentFunc = parts[0]
				currentBody = nil
			}
			continue
		}

		if strings.Contains(line, " ENDP") && currentFunc != "" {
			functions[currentFunc] = currentBody
			currentFunc = ""
			currentBody = nil
			continue
		}

		if currentFunc != "" {
			if hasAnyPrefix(line, msvcSkipPrefixes) {
				continue
			}
			if strings.Contains(line, "$ =") {
				continue
			}
			currentBody = append(currentBody, line)
		}
	}

	return functions
}

// extractFunctionsClang slices Clang listings. A function starts at an
// unqualified label "NAME:" (possibly quoted for mangled names) and ends at
// the next .globl, .addrsig, or .section directive. Debug sections are
// suppressed entirely.
func extractFunctionsClang(asm string) map[string][]string {
	functions := make(map[string][]string)
	var currentFunc string
	var currentBody []string
	inDebugSection := false

	for _, raw := range strings.Split(asm, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, ".section") && strings.Contains(strings.ToLower(trimmed), "debug") {
			inDebugSection = true
			continue
		}
		if inDebugSection {
			if strings.HasPrefix(trimmed, ".text") || strings.HasPrefix(trimmed, ".globl") {
				inDebugSection = false
			} else {
				continue
			}
		}

		// Strip comments (Clang uses #).
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimRight(line[:i], " \t")
		}

		line = collapseWhitespace(line)
		if line == "" {
			continue
		}

		// Function entry label, possibly quoted mangled form.
		if strings.HasSuffix(line, ":") && !strings.HasPrefix(line, ".") {
			name := strings.Trim(strings.TrimSuffix(line, ":"), "\"")
			if !strings.HasPrefix(name, ".L") && !strings.HasPrefix(name, ".seh") {
				currentFunc = name
				currentBody = nil
			}
			continue
		}

		if currentFunc != "" {
			if strings.HasPrefix(line, ".globl") || strings.HasPrefix(line, ".addrsig") || strings.HasPrefix(line, ".section") {
				if len(currentBody) > 0 {
					functions[currentFunc] = currentBody
				}
				currentFunc = ""
				currentBody = nil
				continue
			}
			if hasAnyPrefix(line, clangSkipPrefixes) {
				continue
			}
			currentBody = append(currentBody, line)
		}
	}

	if currentFunc != "" && len(currentBody) > 0 {
		functions[currentFunc] = currentBody
	}

	return functions
}

// CanonicalizeBody rewrites churning identifiers within a body using a
// body-local map: mangled names become F0,F1,..., local labels L0,L1,...,
// string/data symbols D0,D1,.... Counters are per body, so two bodies that
// differ only in identifier spelling canonicalize identically. The rewrite
// is a projection: applying it twice equals applying it once.
func CanonicalizeBody(body []string) []string {
	local := make(map[string]string)
	var funcN, labelN, dataN int

	out := make([]string, len(body))
	for i, line := range body {
		out[i] = identifierPattern.ReplaceAllStringFunc(line, func(id string) string {
			if repl, ok := local[id]; ok {
				return repl
			}
			var repl string
			switch {
			case strings.HasPrefix(id, "?"):
				repl = "F" + strconv.Itoa(funcN)
				funcN++
			case strings.HasPrefix(id, "$LN"):
				repl = "L" + strconv.Itoa(labelN)
				labelN++
			case strings.HasPrefix(id, "$SG"):
				repl = "D" + strconv.Itoa(dataN)
				dataN++
			default:
				return id
			}
			local[id] = repl
			return repl
		})
	}
	return out
}

// canonicalKey joins a canonicalized body into a comparable string.
func canonicalKey(body []string) string {
	return strings.Join(CanonicalizeBody(body), "\n")
}

// comdatFunctionNames extracts the set of COMDAT function names from a
// listing's "; COMDAT name" markers.
func comdatFunctionNames(asm string) map[string]bool {
	names := make(map[string]bool)
	for _, line := range strings.Split(asm, "\n") {
		if m := comdatPattern.FindStringSubmatch(line); m != nil {
			names[m[1]] = true
		}
	}
	return names
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
