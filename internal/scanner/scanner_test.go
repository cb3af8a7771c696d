package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates files (with trivial content) under root.
func writeTree(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte("/* x */\n"), 0o644))
	}
}

func relPaths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestScanFindsCSourcesAndHeaders(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"host/conn.c",
		"host/conn.h",
		"host/keys.c",
		"host/notes.md",
		"host/start.S",
	)

	files, err := Scan(root)
	require.NoError(t, err)

	paths := relPaths(files)
	assert.Contains(t, paths, "host/conn.c")
	assert.Contains(t, paths, "host/conn.h")
	assert.Contains(t, paths, "host/keys.c")
	assert.NotContains(t, paths, "host/notes.md")
	assert.NotContains(t, paths, "host/start.S")
}

func TestScanSkipsDefaultExcludes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"src/main.c",
		"build/generated.c",
		"twister-out/run.c",
	)

	files, err := Scan(root)
	require.NoError(t, err)

	paths := relPaths(files)
	assert.Equal(t, []string{"src/main.c"}, paths)
}

func TestScanSkipsHidden(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"src/main.c",
		".west/config.c",
	)

	files, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.c"}, relPaths(files))
}

func TestScanRespectsIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"src/main.c",
		"src/legacy.c",
		"gen/tables.c",
	)
	ignore := "# generated code\ngen/\nsrc/legacy.c\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".mockprobeignore"), []byte(ignore), 0o644))

	files, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.c"}, relPaths(files))
}

func TestScanNegationPattern(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"src/a.c",
		"src/b.c",
	)
	ignore := "src/*.c\n!src/b.c\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, ".mockprobeignore"), []byte(ignore), 0o644))

	files, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"src/b.c"}, relPaths(files))
}

func TestModules(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"subsys/bluetooth/host/conn.c",
		"subsys/bluetooth/host/conn.h",
		"subsys/bluetooth/host/keys.c",
		"subsys/bluetooth/common/log.c",
		"include/api.h", // headers alone do not make a module
	)

	modules, err := Modules(root)
	require.NoError(t, err)
	require.Len(t, modules, 2)

	assert.Equal(t, "subsys/bluetooth/common", modules[0].Path)
	assert.Equal(t, "subsys/bluetooth/host", modules[1].Path)

	host := modules[1]
	assert.Equal(t, []string{"subsys/bluetooth/host/conn.c", "subsys/bluetooth/host/keys.c"}, relPaths(host.Sources))
	require.Len(t, host.Headers, 1)
	assert.Equal(t, "subsys/bluetooth/host/conn.h", host.Headers[0].Path)
}

func TestIgnorePatternMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"build/", "build/zephyr/gen.c", true},
		{"build/", "src/build.c", false},
		{"/src/main.c", "src/main.c", true},
		{"/src/main.c", "nested/src/main.c", false},
		{"*.c", "deep/dir/file.c", true},
		{"gen_*.c", "src/gen_tables.c", true},
		{"gen_*.c", "src/tables.c", false},
		{"**/mocks/*.c", "a/b/mocks/fake.c", true},
		{"conn.?", "host/conn.c", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" vs "+tt.path, func(t *testing.T) {
			p := ParseIgnorePattern(tt.pattern)
			assert.Equal(t, tt.want, p.Match(tt.path))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindSource, KindOf("conn.c"))
	assert.Equal(t, KindHeader, KindOf("conn.h"))
	assert.Equal(t, KindAssembly, KindOf("start.S"))
	assert.Equal(t, KindPreprocessed, KindOf("conn.i"))
	assert.Equal(t, KindOther, KindOf("README.md"))
}
