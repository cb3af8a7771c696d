package preproc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockprobe/mockprobe/internal/toolchain"
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

// echoTool prints its argument list, then the contents of its input file.
const echoTool = `for a in "$@"; do last="$a"; done
echo "// args: $*"
cat "$last"`

func fakeToolchain(t *testing.T, name, script string) *toolchain.Toolchain {
	t.Helper()
	path := writeFakeTool(t, t.TempDir(), name, script)
	return &toolchain.Toolchain{
		Preprocessor: toolchain.Tool{Role: toolchain.RolePreprocessor, Path: path},
		Timeout:      10 * time.Second,
	}
}

func writeSource(t *testing.T, dir string) string {
	t.Helper()
	src := filepath.Join(dir, "conn.c")
	content := strings.Join([]string{
		"#ifdef CONFIG_BT_SMP",
		"int bt_smp_init(void) { return 0; }",
		"#endif",
		"int bt_conn_init(void) { return 0; }",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))
	return src
}

func TestNormalizeProducesBothViews(t *testing.T) {
	skipOnWindows(t)
	tc := fakeToolchain(t, "cpp", echoTool)
	srcDir, outDir := t.TempDir(), t.TempDir()
	src := writeSource(t, srcDir)

	n := New(Options{
		Toolchain: tc,
		Defines:   []string{"CONFIG_X86", "CONFIG_BT_SMP"},
		Includes:  []string{"/fake/include"},
	})

	res, err := n.Normalize(context.Background(), src, outDir)
	require.NoError(t, err)

	normal := string(res.Normal)
	assert.Contains(t, normal, "-I/fake/include")
	assert.Contains(t, normal, "-DCONFIG_X86")
	assert.Contains(t, normal, "-DCONFIG_BT_SMP")
	assert.NotContains(t, normal, "_Atomic")
	assert.Contains(t, normal, "#ifdef CONFIG_BT_SMP", "normal view keeps conditionals")

	visible := string(res.Visible)
	assert.Contains(t, visible, "-D_Atomic(x)=x")
	assert.Contains(t, visible, "-D__packed=")
	assert.Contains(t, visible, "-D_Static_assert(...)=")
	assert.NotContains(t, visible, "#ifdef", "flattened input has no conditionals")
	assert.Contains(t, visible, "int bt_smp_init(void)", "guarded function is visible")
}

func TestNormalizeWritesArtifacts(t *testing.T) {
	skipOnWindows(t)
	tc := fakeToolchain(t, "cpp", echoTool)
	srcDir, outDir := t.TempDir(), t.TempDir()
	src := writeSource(t, srcDir)

	n := New(Options{Toolchain: tc})
	res, err := n.Normalize(context.Background(), src, outDir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outDir, "conn.flat.c"), res.FlattenedPath)
	assert.Equal(t, filepath.Join(outDir, "conn.norm.i"), res.NormalPath)
	assert.Equal(t, filepath.Join(outDir, "conn.vis.i"), res.VisiblePath)

	flat, err := os.ReadFile(res.FlattenedPath)
	require.NoError(t, err)
	assert.Equal(t, "\nint bt_smp_init(void) { return 0; }\n\nint bt_conn_init(void) { return 0; }\n", string(flat))

	normal, err := os.ReadFile(res.NormalPath)
	require.NoError(t, err)
	assert.Equal(t, res.Normal, normal)

	visible, err := os.ReadFile(res.VisiblePath)
	require.NoError(t, err)
	assert.Equal(t, res.Visible, visible)
}

func TestNormalizeModeFlagPerTool(t *testing.T) {
	skipOnWindows(t)
	tests := []struct {
		tool     string
		contains string
		absent   string
	}{
		{"cpp", "// args:", "-E"},
		{"gcc", "-E", "--preprocess"},
		{"clang", "--preprocess", "-E"},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			tc := fakeToolchain(t, tt.tool, echoTool)
			src := writeSource(t, t.TempDir())

			n := New(Options{Toolchain: tc})
			res, err := n.Normalize(context.Background(), src, t.TempDir())
			require.NoError(t, err)

			argsLine, _, _ := strings.Cut(string(res.Normal), "\n")
			assert.Contains(t, argsLine, tt.contains)
			assert.NotContains(t, argsLine, tt.absent)
		})
	}
}

func TestNormalizeInvocationFailure(t *testing.T) {
	skipOnWindows(t)
	tc := fakeToolchain(t, "cpp", `echo "conn.c:3: fatal error" >&2
exit 2`)
	src := writeSource(t, t.TempDir())

	n := New(Options{Toolchain: tc})
	_, err := n.Normalize(context.Background(), src, t.TempDir())
	require.Error(t, err)

	var invErr *types.InvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, 2, invErr.ExitCode)
	assert.Contains(t, invErr.Stderr, "fatal error")
}

func TestNormalizeMissingSource(t *testing.T) {
	skipOnWindows(t)
	tc := fakeToolchain(t, "cpp", echoTool)

	n := New(Options{Toolchain: tc})
	_, err := n.Normalize(context.Background(), filepath.Join(t.TempDir(), "gone.c"), t.TempDir())
	assert.Error(t, err)
}

func TestModeArgs(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"/usr/bin/cpp", nil},
		{"/usr/bin/cpp-12", nil},
		{"/usr/bin/gcc", []string{"-E"}},
		{"/opt/cross/x86_64-zephyr-elf-gcc", []string{"-E"}},
		{"/usr/bin/clang", []string{"--preprocess"}},
		{"/usr/lib/llvm-15/bin/clang-15", []string{"--preprocess"}},
	}

	for _, tt := range tests {
		t.Run(filepath.Base(tt.path), func(t *testing.T) {
			got := modeArgs(toolchain.Tool{Role: toolchain.RolePreprocessor, Path: tt.path})
			assert.Equal(t, tt.want, got)
		})
	}
}
