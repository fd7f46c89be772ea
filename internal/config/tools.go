package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Tools maps tool names to absolute paths / values, loaded from tools.json
// at the workspace root. The key set is fixed by the deployment; unknown
// lookups are configuration errors.
type Tools struct {
	entries map[string]string
}

// LoadTools reads tools.json from the workspace root.
func LoadTools(workspace string) (*Tools, error) {
	path := filepath.Join(workspace, "tools.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tools.json: %w", err)
	}

	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse tools.json: %w", err)
	}
	return &Tools{entries: entries}, nil
}

// Get returns the configured value for a tool name.
func (t *Tools) Get(name string) (string, error) {
	v, ok := t.entries[name]
	if !ok {
		return "", fmt.Errorf("tool %q not found in tools.json", name)
	}
	return v, nil
}

// Lookup returns the value and whether it is present, without erroring.
func (t *Tools) Lookup(name string) (string, bool) {
	v, ok := t.entries[name]
	return v, ok
}

// GitPath returns the git executable path, defaulting to "git" on PATH.
func (t *Tools) GitPath() string {
	if v, ok := t.entries["git"]; ok {
		return v
	}
	return "git"
}

// DoxygenPath returns the doxygen executable path, defaulting to "doxygen".
func (t *Tools) DoxygenPath() string {
	if v, ok := t.entries["doxygen"]; ok {
		return v
	}
	return "doxygen"
}

// ClPath returns the MSVC cl.exe path.
func (t *Tools) ClPath() (string, error) { return t.Get("cl") }

// ClangPath returns the clang executable path.
func (t *Tools) ClangPath() (string, error) { return t.Get("clang") }

// VcvarsallPath returns the vcvarsall.bat path.
func (t *Tools) VcvarsallPath() (string, error) { return t.Get("vcvarsall") }

// MSVCArch returns the target architecture for vcvarsall (e.g. "x64").
func (t *Tools) MSVCArch() string {
	if v, ok := t.entries["msvc_arch"]; ok {
		return v
	}
	return "x64"
}
