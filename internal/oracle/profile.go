package oracle

import "fmt"

// Profile pairs a stable validator id with the optimization level both
// compiles of an edit run at. Profiles are resolved from their string ids at
// job start; no string-keyed dispatch happens inside the per-edit loop.
type Profile struct {
	// ID is the stable external identifier.
	// IMPORTANT: used in APIs; do not change once set.
	ID string
	// Name is the human-readable validator name.
	Name string
	// OptLevel is the optimization level for both compiles.
	OptLevel int
}

var profiles = []Profile{
	{ID: "asm_o0", Name: "Assembly Comparison (O0)", OptLevel: 0},
	{ID: "asm_o3", Name: "Assembly Comparison (O3)", OptLevel: 3},
}

// O0 validates at no optimization: safe textual refactorings.
var O0 = profiles[0]

// O3 validates at aggressive optimization: optimization-sensitive edits.
var O3 = profiles[1]

// ProfileFromID resolves a validator id.
func ProfileFromID(id string) (Profile, error) {
	for _, p := range profiles {
		if p.ID == id {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("unknown validator id %q", id)
}

// Profiles lists all validator profiles for the HTTP surface.
func Profiles() []Profile {
	out := make([]Profile, len(profiles))
	copy(out, profiles)
	return out
}
