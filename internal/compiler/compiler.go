// Package compiler invokes a C++ toolchain to emit Intel-syntax assembly for
// single translation units. Two backends are supported: MSVC cl.exe and
// Clang. The choice of backend is resolved once at job start; nothing else
// in the pipeline branches on compiler type.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Artifact is the immutable output of compiling one translation unit.
type Artifact struct {
	SourceFile string
	Asm        string
	ObjPath    string
}

// Driver compiles a single translation unit to assembly at a requested
// optimization level (0..3).
type Driver interface {
	// ID returns the stable backend identifier ("msvc" or "clang").
	ID() string
	// Compile emits assembly for file. Temp output lives under the driver's
	// temp root and is removed before Compile returns.
	Compile(ctx context.Context, file string, optLevel int) (*Artifact, error)
}

// CompilationError carries the compiler's stderr verbatim. The driver never
// retries; the engine treats this as a rejected edit, not a job failure.
type CompilationError struct {
	File   string
	Stderr string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compilation of %s failed: %s", e.File, firstLine(e.Stderr))
}

// firstLine trims stderr to its first non-empty line for compact messages.
func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return s
}

// readArtifact assembles an Artifact from the generated asm file.
func readArtifact(sourceFile, asmPath, objPath string) (*Artifact, error) {
	data, err := os.ReadFile(asmPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read generated asm %s: %w", asmPath, err)
	}
	a := &Artifact{SourceFile: sourceFile, Asm: string(data)}
	if objPath != "" {
		if _, err := os.Stat(objPath); err == nil {
			a.ObjPath = objPath
		}
	}
	return a, nil
}

// mkTempDir creates a per-compile scratch directory under root (or the
// system temp dir when root is empty).
func mkTempDir(root string) (string, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0755); err != nil {
			return "", err
		}
	}
	dir, err := os.MkdirTemp(root, "levelup-compile-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	return dir, nil
}

// baseName returns the stem of a source file for naming asm/obj outputs.
func baseName(file string) string {
	b := filepath.Base(file)
	return strings.TrimSuffix(b, filepath.Ext(b))
}
