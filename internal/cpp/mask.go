package cpp

import "regexp"

var (
	stringLitRe = regexp.MustCompile(`"(?:[^"\\]|\\.)*"`)
	charLitRe   = regexp.MustCompile(`'(?:[^'\\]|\\.)*'`)
	blockCmtRe  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineCmtRe   = regexp.MustCompile(`//[^\n]*`)
)

// MaskStringsAndComments replaces string literals, character literals, and
// comments with equal-length runs of spaces. Offsets and line numbers in the
// masked text match the original exactly, so pattern matches against the
// masked text can be applied to the original at the same position.
func MaskStringsAndComments(content string) string {
	out := stringLitRe.ReplaceAllStringFunc(content, blank)
	out = charLitRe.ReplaceAllStringFunc(out, blank)
	out = blockCmtRe.ReplaceAllStringFunc(out, blank)
	out = lineCmtRe.ReplaceAllStringFunc(out, blank)
	return out
}

func blank(m string) string {
	b := make([]byte, len(m))
	for i := range b {
		if m[i] == '\n' {
			b[i] = '\n'
		} else {
			b[i] = ' '
		}
	}
	return string(b)
}
