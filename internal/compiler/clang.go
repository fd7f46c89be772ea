package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"levelup/internal/logging"
)

// clangOptFlags maps optimization levels to clang flags.
var clangOptFlags = map[int]string{
	0: "-O0",
	1: "-O1",
	2: "-O2",
	3: "-O3",
}

// clangDefaultFlags are always passed to clang.
var clangDefaultFlags = []string{"-std=c++17", "-Wall"}

// Clang drives the clang executable directly; no environment discovery is
// needed.
type Clang struct {
	clangPath string
	tempRoot  string
}

// NewClang builds a Clang driver, verifying the executable responds.
func NewClang(clangPath, tempRoot string) (*Clang, error) {
	logging.Compiler("Initializing Clang driver")

	cmd := exec.Command(clangPath, "--version")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("clang not usable at %s: %w", clangPath, err)
	}
	version := strings.SplitN(stdout.String(), "\n", 2)[0]
	logging.Compiler("Clang driver ready: %s", version)

	return &Clang{clangPath: clangPath, tempRoot: tempRoot}, nil
}

// ID returns the stable backend identifier.
// IMPORTANT: used in APIs; do not change once set.
func (c *Clang) ID() string { return "clang" }

// clangArgs builds the clang argument list for one compile. Intel syntax
// keeps the oracle's tokenization consistent with MSVC output.
func clangArgs(file, asmPath string, optLevel int) []string {
	args := append([]string{}, clangDefaultFlags...)

	flag, ok := clangOptFlags[optLevel]
	if !ok {
		flag = "-O2"
	}
	args = append(args, flag)
	args = append(args, "-S", "-masm=intel", "-o", asmPath)
	args = append(args, file)
	return args
}

// Compile emits Clang assembly for one translation unit.
func (c *Clang) Compile(ctx context.Context, file string, optLevel int) (*Artifact, error) {
	tempDir, err := mkTempDir(c.tempRoot)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempDir)

	asmPath := filepath.Join(tempDir, baseName(file)+".s")

	args := clangArgs(file, asmPath, optLevel)
	logging.CompilerDebug("Running clang: %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, c.clangPath, args...)
	cmd.Dir = filepath.Dir(file)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logging.Get(logging.CategoryCompiler).Error("clang failed for %s: %s", file, firstLine(stderr.String()))
		return nil, &CompilationError{File: file, Stderr: stderr.String()}
	}

	return readArtifact(file, asmPath, "")
}

// CheckSyntax runs a syntax-only pass.
func (c *Clang) CheckSyntax(ctx context.Context, file string) error {
	cmd := exec.CommandContext(ctx, c.clangPath, "-fsyntax-only", file)
	cmd.Dir = filepath.Dir(file)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &CompilationError{File: file, Stderr: stderr.String()}
	}
	return nil
}
