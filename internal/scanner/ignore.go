package scanner

import (
	"path"
	"strings"
)

// IgnorePattern represents a single gitignore-style pattern.
type IgnorePattern struct {
	segments []string
	negate   bool // pattern started with !
	dirOnly  bool // pattern ended with /
	anchored bool // pattern started with / (match from root only)
}

// ParseIgnorePattern parses a gitignore-style pattern string.
func ParseIgnorePattern(pattern string) IgnorePattern {
	p := IgnorePattern{}

	if strings.HasPrefix(pattern, "!") {
		p.negate = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		p.anchored = true
		pattern = pattern[1:]
	}

	p.segments = strings.Split(pattern, "/")
	return p
}

// IsNegation returns true if this pattern is a negation pattern.
func (p IgnorePattern) IsNegation() bool {
	return p.negate
}

// Match checks if the given slash-separated relative path matches this
// pattern. Directory patterns match the directory itself and anything
// under it.
func (p IgnorePattern) Match(relPath string) bool {
	pathSegs := strings.Split(relPath, "/")

	if p.anchored {
		return p.matchAt(pathSegs)
	}
	// Unanchored patterns may begin at any path depth.
	for start := 0; start < len(pathSegs); start++ {
		if p.matchAt(pathSegs[start:]) {
			return true
		}
	}
	return false
}

// matchAt matches the pattern segments against the head of pathSegs.
func (p IgnorePattern) matchAt(pathSegs []string) bool {
	return matchSegs(p.segments, pathSegs, p.dirOnly)
}

// matchSegs matches pattern segments (with * ? [..] and ** support) against
// path segments. When dirOnly is false, the pattern must consume the whole
// path; a directory pattern may leave a remainder (files below the dir).
func matchSegs(pat, segs []string, dirOnly bool) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			if len(pat) == 1 {
				return true
			}
			for i := 0; i <= len(segs); i++ {
				if matchSegs(pat[1:], segs[i:], dirOnly) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, err := path.Match(strings.ToLower(pat[0]), strings.ToLower(segs[0])); err != nil || !ok {
			return false
		}
		pat = pat[1:]
		segs = segs[1:]
	}
	if dirOnly {
		// The matched prefix names a directory; anything under it matches.
		return true
	}
	return len(segs) == 0
}
