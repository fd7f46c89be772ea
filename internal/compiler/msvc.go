package compiler

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"levelup/internal/logging"
)

// msvcOptFlags maps optimization levels to cl.exe flags.
var msvcOptFlags = map[int]string{
	0: "/Od",
	1: "/O1",
	2: "/O2",
	3: "/Ox",
}

// msvcDefaultFlags are always passed to cl.exe.
var msvcDefaultFlags = []string{"/EHsc", "/nologo", "/W3"}

// msvcEnvCache holds the developer environment derived from vcvarsall.bat,
// keyed by architecture. Loading it costs seconds; it is process-wide and
// read-only after first load.
var (
	msvcEnvCache   = make(map[string][]string)
	msvcEnvCacheMu sync.Mutex
)

// MSVC drives cl.exe. The developer environment is discovered once per
// architecture via vcvarsall.bat and cached for the process lifetime.
type MSVC struct {
	clPath    string
	vcvarsall string
	arch      string
	tempRoot  string
	env       []string
}

// NewMSVC builds an MSVC driver from configured tool paths.
func NewMSVC(clPath, vcvarsall, arch, tempRoot string) (*MSVC, error) {
	logging.Compiler("Initializing MSVC driver (arch=%s)", arch)

	if _, err := os.Stat(clPath); err != nil {
		return nil, fmt.Errorf("cl.exe not found at %s: %w", clPath, err)
	}
	if _, err := os.Stat(vcvarsall); err != nil {
		return nil, fmt.Errorf("vcvarsall.bat not found at %s: %w", vcvarsall, err)
	}

	m := &MSVC{clPath: clPath, vcvarsall: vcvarsall, arch: arch, tempRoot: tempRoot}

	env, err := m.loadEnvironment()
	if err != nil {
		return nil, err
	}
	m.env = env

	logging.Compiler("MSVC driver ready: cl.exe at %s", clPath)
	return m, nil
}

// ID returns the stable backend identifier.
// IMPORTANT: used in APIs; do not change once set.
func (m *MSVC) ID() string { return "msvc" }

// loadEnvironment runs "vcvarsall.bat <arch> && set" and captures the
// resulting variables, consulting the process-wide cache first.
func (m *MSVC) loadEnvironment() ([]string, error) {
	cacheKey := "msvc_" + m.arch

	msvcEnvCacheMu.Lock()
	defer msvcEnvCacheMu.Unlock()

	if env, ok := msvcEnvCache[cacheKey]; ok {
		logging.CompilerDebug("MSVC environment loaded from cache (%s)", cacheKey)
		return env, nil
	}

	logging.CompilerDebug("Loading MSVC environment via %s %s", m.vcvarsall, m.arch)
	cmd := exec.Command("cmd", "/C", fmt.Sprintf("\"%s\" %s && set", m.vcvarsall, m.arch))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("vcvarsall.bat failed: %w\n%s", err, stderr.String())
	}

	var env []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.Contains(line, "=") {
			env = append(env, line)
		}
	}
	if len(env) == 0 {
		return nil, fmt.Errorf("vcvarsall.bat produced no environment")
	}

	msvcEnvCache[cacheKey] = env
	return env, nil
}

// msvcArgs builds the cl.exe argument list for one compile.
func msvcArgs(file, asmPath, objPath string, optLevel int) []string {
	args := append([]string{}, msvcDefaultFlags...)

	flag, ok := msvcOptFlags[optLevel]
	if !ok {
		flag = "/O2"
	}
	args = append(args, flag)

	// Iterator debugging blocks range-for optimizations at full optimization.
	if optLevel >= 3 {
		args = append(args, "/D_ITERATOR_DEBUG_LEVEL=0")
	}

	args = append(args,
		"/FA",
		"/Fa"+asmPath,
		"/c",
		"/Fo"+objPath,
	)
	args = append(args, file)
	return args
}

// Compile emits MSVC assembly for one translation unit.
func (m *MSVC) Compile(ctx context.Context, file string, optLevel int) (*Artifact, error) {
	tempDir, err := mkTempDir(m.tempRoot)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempDir)

	base := baseName(file)
	asmPath := filepath.Join(tempDir, base+".asm")
	objPath := filepath.Join(tempDir, base+".obj")

	args := msvcArgs(file, asmPath, objPath, optLevel)
	logging.CompilerDebug("Running cl.exe: %s", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, m.clPath, args...)
	cmd.Dir = filepath.Dir(file)
	cmd.Env = m.env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// cl.exe reports diagnostics on stdout.
		msg := stderr.String()
		if strings.TrimSpace(msg) == "" {
			msg = stdout.String()
		}
		logging.Get(logging.CategoryCompiler).Error("cl.exe failed for %s: %s", file, firstLine(msg))
		return nil, &CompilationError{File: file, Stderr: msg}
	}

	return readArtifact(file, asmPath, objPath)
}

// CheckSyntax runs a syntax-only pass (/Zs).
func (m *MSVC) CheckSyntax(ctx context.Context, file string) error {
	cmd := exec.CommandContext(ctx, m.clPath, "/Zs", "/nologo", file)
	cmd.Dir = filepath.Dir(file)
	cmd.Env = m.env

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &CompilationError{File: file, Stderr: stderr.String()}
	}
	return nil
}
