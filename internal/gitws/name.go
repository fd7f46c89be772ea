package gitws

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// dirNameAllowed is the character set local repository directories are
// restricted to.
const dirNameAllowed = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!#()-.=[]{}~"

// SanitizeDirName maps a repository name onto the allowed filename charset.
// The name is NFD-normalized first so accented characters decompose into a
// base letter (kept) plus combining marks (dropped).
func SanitizeDirName(name string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(name) {
		if r < 128 && strings.ContainsRune(dirNameAllowed, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
