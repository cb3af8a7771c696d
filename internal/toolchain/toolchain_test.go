package toolchain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockprobe/mockprobe/pkg/types"
)

// writeFakeTool drops an executable shell script into dir and returns its path.
func writeFakeTool(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake shell tools require a POSIX shell")
	}
}

func TestDiscoverWithOverrides(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	cpp := writeFakeTool(t, dir, "my-cpp", "exit 0")
	cc := writeFakeTool(t, dir, "my-cc", "exit 0")

	tc, err := Discover(Options{
		Preprocessor: cpp,
		ASTDumper:    cc,
		Linker:       cc,
		Timeout:      time.Second,
	})
	require.NoError(t, err)

	assert.Equal(t, cpp, tc.Preprocessor.Path)
	assert.Equal(t, RolePreprocessor, tc.Preprocessor.Role)
	assert.Equal(t, cc, tc.ASTDumper.Path)
	assert.Equal(t, cc, tc.Linker.Path)
}

func TestDiscoverFromPath(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	writeFakeTool(t, dir, "cpp", "exit 0")
	writeFakeTool(t, dir, "gcc", "exit 0")
	writeFakeTool(t, dir, "clang", "exit 0")
	t.Setenv("PATH", dir)

	tc, err := Discover(Options{Timeout: time.Second})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "cpp"), tc.Preprocessor.Path)
	assert.Equal(t, filepath.Join(dir, "clang"), tc.ASTDumper.Path)
	assert.Equal(t, filepath.Join(dir, "gcc"), tc.Linker.Path)
}

func TestDiscoverMissingRole(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	writeFakeTool(t, dir, "cpp", "exit 0")
	// No clang on PATH: the AST dumper role cannot be satisfied.
	t.Setenv("PATH", dir)

	_, err := Discover(Options{Timeout: time.Second})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrToolchainUnavailable))

	var tcErr *types.ToolchainError
	require.True(t, errors.As(err, &tcErr))
	assert.Equal(t, RoleASTDumper, tcErr.Role)
	assert.Contains(t, tcErr.Candidates, "clang")
}

func TestDiscoverBadOverride(t *testing.T) {
	_, err := Discover(Options{
		Preprocessor: "/nonexistent/bin/cpp",
		Timeout:      time.Second,
	})
	require.Error(t, err)

	var tcErr *types.ToolchainError
	require.True(t, errors.As(err, &tcErr))
	assert.Equal(t, RolePreprocessor, tcErr.Role)
	assert.Equal(t, []string{"/nonexistent/bin/cpp"}, tcErr.Candidates)
}

func TestRunCapturesOutputAndExitCode(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	path := writeFakeTool(t, dir, "tool", "echo out-line\necho err-line >&2\nexit 3")

	tc := &Toolchain{Timeout: 5 * time.Second}
	res, err := tc.Run(context.Background(), Tool{Role: RoleLinker, Path: path})
	require.NoError(t, err)

	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "out-line\n", string(res.Stdout))
	assert.Contains(t, res.Stderr, "err-line")
}

func TestRunInput(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	path := writeFakeTool(t, dir, "tool", "cat")

	tc := &Toolchain{Timeout: 5 * time.Second}
	res, err := tc.RunInput(context.Background(), Tool{Path: path}, []byte("int main;"))
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "int main;", string(res.Stdout))
}

func TestRunTimeout(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	path := writeFakeTool(t, dir, "tool", "sleep 5")

	tc := &Toolchain{Timeout: 100 * time.Millisecond}
	start := time.Now()
	_, err := tc.Run(context.Background(), Tool{Path: path})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)

	var invErr *types.InvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, -1, invErr.ExitCode)
}

func TestVersion(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	path := writeFakeTool(t, dir, "tool", "echo 'fake cc version 12.1.0'\necho 'second line'")

	tc := &Toolchain{Timeout: 5 * time.Second}
	got := tc.Version(context.Background(), Tool{Path: path})
	assert.Equal(t, "fake cc version 12.1.0", got)
}

func TestVersionFailure(t *testing.T) {
	skipOnWindows(t)
	dir := t.TempDir()
	path := writeFakeTool(t, dir, "tool", "exit 1")

	tc := &Toolchain{Timeout: 5 * time.Second}
	assert.Equal(t, "", tc.Version(context.Background(), Tool{Path: path}))
}
