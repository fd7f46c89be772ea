// Package cpp provides lightweight textual analysis of C++ source: function
// prototype location/parsing/rewriting and string/comment masking. It is a
// deliberately shallow, line-oriented view - the heavy parsing is Doxygen's
// job; this package only needs to be right about the spans the symbol table
// already pinpointed.
package cpp

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Param is one function parameter as (type, name). The name may be empty.
type Param struct {
	Type string
	Name string
}

// PrototypeLocation is the source span of a function prototype: from the
// symbol's recorded line until the first line containing ';' or '{'.
type PrototypeLocation struct {
	FilePath  string
	LineStart int // 1-based, inclusive
	LineEnd   int // 1-based, inclusive
	Text      string
}

// IsDefinition reports whether the span opens a function body.
func (p *PrototypeLocation) IsDefinition() bool {
	return strings.Contains(p.Text, "{")
}

// FindPrototype locates the prototype span starting at line lineStart of the
// given file. Returns nil when the line is out of range.
func FindPrototype(filePath string, lineStart int) (*PrototypeLocation, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	lines := splitKeepEnds(string(data))

	if lineStart < 1 || lineStart > len(lines) {
		return nil, nil
	}

	var span []string
	end := lineStart
	for i := lineStart - 1; i < len(lines); i++ {
		span = append(span, lines[i])
		end = i + 1
		if strings.Contains(lines[i], ";") || strings.Contains(lines[i], "{") {
			break
		}
	}

	return &PrototypeLocation{
		FilePath:  filePath,
		LineStart: lineStart,
		LineEnd:   end,
		Text:      strings.Join(span, ""),
	}, nil
}

var (
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCommentRe  = regexp.MustCompile(`//[^\n]*`)
	spaceRe        = regexp.MustCompile(`\s+`)
)

// prototypeQualifiers are leading keywords that are not part of the return
// type.
var prototypeQualifiers = map[string]bool{
	"inline": true, "static": true, "virtual": true,
	"explicit": true, "constexpr": true, "extern": true,
}

// normalize strips comments and collapses whitespace in a prototype.
func normalize(prototype string) string {
	s := blockCommentRe.ReplaceAllString(prototype, " ")
	s = lineCommentRe.ReplaceAllString(s, "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// ExtractReturnType returns the return type of a prototype, or "" when it
// cannot be determined (constructors, malformed spans).
func ExtractReturnType(prototype string) string {
	s := normalize(prototype)

	parenIdx := strings.Index(s, "(")
	if parenIdx == -1 {
		return ""
	}

	var returnTokens []string
	for _, tok := range strings.Fields(s[:parenIdx]) {
		if !prototypeQualifiers[tok] {
			returnTokens = append(returnTokens, tok)
		}
	}
	if len(returnTokens) >= 1 {
		// Last token is the function name.
		returnTokens = returnTokens[:len(returnTokens)-1]
	}
	return strings.Join(returnTokens, " ")
}

// ExtractFunctionName returns the unqualified function name of a prototype.
func ExtractFunctionName(prototype string) string {
	s := normalize(prototype)

	parenIdx := strings.Index(s, "(")
	if parenIdx == -1 {
		return ""
	}
	tokens := strings.Fields(s[:parenIdx])
	if len(tokens) == 0 {
		return ""
	}
	name := tokens[len(tokens)-1]
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	return name
}

// ExtractParameters parses the parameter list of a prototype. Template
// angle brackets nest; default values are dropped.
func ExtractParameters(prototype string) []Param {
	parenStart := strings.Index(prototype, "(")
	parenEnd := strings.LastIndex(prototype, ")")
	if parenStart == -1 || parenEnd == -1 || parenEnd <= parenStart {
		return nil
	}

	paramsStr := strings.TrimSpace(prototype[parenStart+1 : parenEnd])
	if paramsStr == "" || paramsStr == "void" {
		return nil
	}

	var params []Param
	var current strings.Builder
	depth := 0
	for _, ch := range paramsStr {
		switch ch {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				if p := strings.TrimSpace(current.String()); p != "" {
					params = append(params, parseParam(p))
				}
				current.Reset()
				continue
			}
		}
		current.WriteRune(ch)
	}
	if p := strings.TrimSpace(current.String()); p != "" {
		params = append(params, parseParam(p))
	}
	return params
}

func parseParam(s string) Param {
	s = normalize(s)

	if i := strings.Index(s, "="); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}

	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return Param{}
	}
	if len(tokens) == 1 {
		return Param{Type: tokens[0]}
	}

	name := tokens[len(tokens)-1]
	name = strings.NewReplacer("*", "", "&", "").Replace(name)
	typ := strings.Join(tokens[:len(tokens)-1], " ")

	// Unnamed array parameter: the whole text is the type.
	if strings.HasPrefix(name, "[") {
		return Param{Type: s}
	}
	return Param{Type: typ, Name: name}
}

// ReplaceReturnType rewrites the return type of a prototype, returning ""
// when the current return type cannot be located.
func ReplaceReturnType(prototype, newType string) string {
	current := ExtractReturnType(prototype)
	if current == "" {
		return ""
	}
	parenIdx := strings.Index(prototype, "(")
	if parenIdx == -1 {
		return ""
	}
	before := prototype[:parenIdx]
	after := prototype[parenIdx:]

	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(current) + `\b`)
	if err != nil {
		return ""
	}
	replaced := false
	newBefore := re.ReplaceAllStringFunc(before, func(m string) string {
		if replaced {
			return m
		}
		replaced = true
		return newType
	})
	if !replaced {
		return ""
	}
	return newBefore + after
}

// ReplaceFunctionName rewrites the function name, keeping any namespace
// qualification.
func ReplaceFunctionName(prototype, newName string) string {
	parenIdx := strings.Index(prototype, "(")
	if parenIdx == -1 {
		return ""
	}
	before := prototype[:parenIdx]
	after := prototype[parenIdx:]

	tokens := strings.Fields(strings.TrimSpace(before))
	if len(tokens) == 0 {
		return ""
	}
	oldName := tokens[len(tokens)-1]

	qualified := newName
	if i := strings.LastIndex(oldName, "::"); i >= 0 {
		qualified = oldName[:i] + "::" + newName
	}

	idx := strings.LastIndex(before, oldName)
	if idx == -1 {
		return ""
	}
	return before[:idx] + qualified + after
}

// rebuildParams renders a parameter list back into source text.
func rebuildParams(params []Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.Name != "" {
			parts = append(parts, p.Type+" "+p.Name)
		} else {
			parts = append(parts, p.Type)
		}
	}
	return strings.Join(parts, ", ")
}

// replaceParamList swaps the text between the outer parentheses.
func replaceParamList(prototype string, params []Param) string {
	parenStart := strings.Index(prototype, "(")
	parenEnd := strings.LastIndex(prototype, ")")
	if parenStart == -1 || parenEnd == -1 {
		return ""
	}
	return prototype[:parenStart+1] + rebuildParams(params) + prototype[parenEnd:]
}

// ReplaceParameterType rewrites the type of the parameter at index.
func ReplaceParameterType(prototype string, index int, newType string) string {
	params := ExtractParameters(prototype)
	if index < 0 || index >= len(params) {
		return ""
	}
	params[index].Type = newType
	return replaceParamList(prototype, params)
}

// ReplaceParameterName rewrites the name of the parameter at index.
func ReplaceParameterName(prototype string, index int, newName string) string {
	params := ExtractParameters(prototype)
	if index < 0 || index >= len(params) {
		return ""
	}
	params[index].Name = newName
	return replaceParamList(prototype, params)
}

// AddParameter inserts a parameter at position (append when position is -1
// or past the end).
func AddParameter(prototype string, p Param, position int) string {
	params := ExtractParameters(prototype)
	if position < 0 || position > len(params) {
		position = len(params)
	}
	params = append(params[:position], append([]Param{p}, params[position:]...)...)
	return replaceParamList(prototype, params)
}

// RemoveParameter deletes the parameter at index.
func RemoveParameter(prototype string, index int) string {
	params := ExtractParameters(prototype)
	if index < 0 || index >= len(params) {
		return ""
	}
	params = append(params[:index], params[index+1:]...)
	return replaceParamList(prototype, params)
}

// splitKeepEnds splits source text into lines that retain their newline,
// mirroring how prototype spans are reassembled byte-for-byte.
func splitKeepEnds(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}
