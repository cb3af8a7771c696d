// Package workspace manages per-run scratch directories for intermediate
// toolchain artifacts: flattened sources, preprocessed blobs, AST dumps,
// and probe programs.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Workspace is the scratch directory for a single analysis run.
type Workspace struct {
	RunID string
	Dir   string
	keep  bool
}

// New creates a fresh scratch directory under root. When keep is true the
// directory survives Close so artifacts can be inspected after a run.
func New(root string, keep bool) (*Workspace, error) {
	id := uuid.New().String()
	dir := filepath.Join(root, "run-"+id[:8])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace: %w", err)
	}
	return &Workspace{RunID: id, Dir: dir, keep: keep}, nil
}

// ModuleDir returns (creating if needed) a subdirectory for one module's
// artifacts. The module path is flattened into a single path element.
func (w *Workspace) ModuleDir(modulePath string) (string, error) {
	name := sanitize(modulePath)
	dir := filepath.Join(w.Dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating module dir: %w", err)
	}
	return dir, nil
}

// WriteFile writes an artifact under the workspace and returns its path.
func (w *Workspace) WriteFile(name string, data []byte) (string, error) {
	path := filepath.Join(w.Dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return path, nil
}

// Kept reports whether the scratch directory is retained after Close.
func (w *Workspace) Kept() bool {
	return w.keep
}

// Close removes the scratch directory unless retention was requested.
func (w *Workspace) Close() error {
	if w.keep {
		return nil
	}
	return os.RemoveAll(w.Dir)
}

// sanitize flattens a module path into a filesystem-safe directory name.
func sanitize(p string) string {
	p = strings.Trim(filepath.ToSlash(p), "/")
	if p == "" {
		return "module"
	}
	p = strings.ReplaceAll(p, "/", "_")
	p = strings.ReplaceAll(p, ":", "_")
	return p
}
