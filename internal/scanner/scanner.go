// Package scanner discovers C source files and modules in a platform tree.
// It respects .mockprobeignore files with gitignore-style patterns and skips
// build output directories by default.
package scanner

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo represents information about a discovered source file.
type FileInfo struct {
	Path     string // Relative path from root
	FullPath string // Absolute path
	Kind     Kind   // Classification from extension
	Size     int64  // File size in bytes
}

// Module is a directory containing at least one C source file.
type Module struct {
	Path    string // Relative path from root ("." for the root itself)
	Dir     string // Absolute path
	Sources []FileInfo
	Headers []FileInfo
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	DefaultExcludes []string // Default directories to exclude
	IgnoreFileName  string   // Name of the ignore file (default: .mockprobeignore)
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		IgnoreFileName: ".mockprobeignore",
		DefaultExcludes: []string{
			".git",
			".west",
			".cache",
			"build",
			"twister-out",
			"sanity-out",
			"doc",
			"node_modules",
		},
	}
}

// Scanner provides source tree scanning capabilities.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	return &Scanner{opts: opts}
}

// Scan recursively scans the directory at root and returns every C source
// and header found, respecting ignore patterns and default exclusions.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	ignorePatterns, err := s.loadIgnorePatterns(absRoot)
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}

	var files []FileInfo

	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPathSlash := filepath.ToSlash(relPath)

		if s.opts.SkipHidden && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if s.isDefaultExcluded(info.Name()) {
				return filepath.SkipDir
			}
			nested, err := s.loadIgnorePatterns(path)
			if err == nil && len(nested) > 0 {
				ignorePatterns = append(ignorePatterns, nested...)
			}
			return nil
		}

		if matchesIgnorePatterns(relPathSlash, ignorePatterns) {
			return nil
		}

		kind := KindOf(info.Name())
		if kind != KindSource && kind != KindHeader {
			return nil
		}

		files = append(files, FileInfo{
			Path:     relPathSlash,
			FullPath: path,
			Kind:     kind,
			Size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return files, nil
}

// Modules groups scanned files into per-directory modules. Only directories
// holding at least one .c file become modules; headers attach to the module
// of their directory when one exists.
func (s *Scanner) Modules(root string) ([]Module, error) {
	files, err := s.Scan(root)
	if err != nil {
		return nil, err
	}

	byDir := make(map[string]*Module)
	for _, f := range files {
		dir := filepath.ToSlash(filepath.Dir(f.Path))
		m, ok := byDir[dir]
		if !ok {
			m = &Module{
				Path: dir,
				Dir:  filepath.Dir(f.FullPath),
			}
			byDir[dir] = m
		}
		switch f.Kind {
		case KindSource:
			m.Sources = append(m.Sources, f)
		case KindHeader:
			m.Headers = append(m.Headers, f)
		}
	}

	var modules []Module
	for _, m := range byDir {
		if len(m.Sources) == 0 {
			continue
		}
		sort.Slice(m.Sources, func(i, j int) bool { return m.Sources[i].Path < m.Sources[j].Path })
		sort.Slice(m.Headers, func(i, j int) bool { return m.Headers[i].Path < m.Headers[j].Path })
		modules = append(modules, *m)
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].Path < modules[j].Path })
	return modules, nil
}

// isDefaultExcluded checks if the name matches default exclusion patterns.
func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns loads patterns from the ignore file in dir, if any.
func (s *Scanner) loadIgnorePatterns(dir string) ([]IgnorePattern, error) {
	ignorePath := filepath.Join(dir, s.opts.IgnoreFileName)
	file, err := os.Open(ignorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []IgnorePattern
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, ParseIgnorePattern(line))
	}
	return patterns, sc.Err()
}

// matchesIgnorePatterns applies patterns in order with gitignore semantics;
// later negation patterns override earlier positive matches.
func matchesIgnorePatterns(relPath string, patterns []IgnorePattern) bool {
	ignored := false
	for _, pattern := range patterns {
		if pattern.Match(relPath) {
			ignored = !pattern.IsNegation()
		}
	}
	return ignored
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}

// Modules is a convenience function that discovers modules with default options.
func Modules(root string) ([]Module, error) {
	return New(DefaultOptions()).Modules(root)
}
