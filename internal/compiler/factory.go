package compiler

import (
	"fmt"
	"path/filepath"

	"levelup/internal/config"
)

// Info describes an available backend for the HTTP surface.
type Info struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Available lists the supported backends.
func Available() []Info {
	return []Info{
		{ID: "msvc", Name: "Microsoft Visual C++"},
		{ID: "clang", Name: "Clang/LLVM"},
	}
}

// New resolves a backend id to a concrete driver using configured tool
// paths. This is the only place that branches on compiler type.
func New(id string, tools *config.Tools, workspace string) (Driver, error) {
	tempRoot := filepath.Join(workspace, "temp")

	switch id {
	case "msvc":
		cl, err := tools.ClPath()
		if err != nil {
			return nil, err
		}
		vcvarsall, err := tools.VcvarsallPath()
		if err != nil {
			return nil, err
		}
		return NewMSVC(cl, vcvarsall, tools.MSVCArch(), tempRoot)
	case "clang":
		clang, err := tools.ClangPath()
		if err != nil {
			return nil, err
		}
		return NewClang(clang, tempRoot)
	default:
		return nil, fmt.Errorf("unknown compiler id %q", id)
	}
}
