package scanner

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnorePattern is one gitignore-style line compiled to doublestar globs.
type IgnorePattern struct {
	raw         string
	isNegation  bool
	isDirectory bool
	globs       []string
}

// ParseIgnorePattern parses a gitignore-style pattern string.
//
// A pattern without a slash matches at any depth. A leading slash anchors it
// to the scan root. A trailing slash restricts it to directories and
// everything below them.
func ParseIgnorePattern(pattern string) IgnorePattern {
	p := IgnorePattern{raw: pattern}

	if strings.HasPrefix(pattern, "!") {
		p.isNegation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		p.isDirectory = true
		pattern = strings.TrimSuffix(pattern, "/")
	}

	anchored := strings.HasPrefix(pattern, "/") || strings.Contains(pattern, "/")
	pattern = strings.TrimPrefix(pattern, "/")
	if !anchored && !strings.HasPrefix(pattern, "**") {
		pattern = "**/" + pattern
	}

	p.globs = []string{pattern, pattern + "/**"}
	return p
}

// Match reports whether relPath, slash separated and relative to the scan
// root, is matched by the pattern. Negation is left to the caller.
func (p IgnorePattern) Match(relPath string, isDir bool) bool {
	relPath = strings.TrimPrefix(path.Clean(relPath), "./")
	if ok, _ := doublestar.Match(p.globs[0], relPath); ok && (isDir || !p.isDirectory) {
		return true
	}
	ok, _ := doublestar.Match(p.globs[1], relPath)
	return ok
}

// IsNegation returns true if this pattern is a negation pattern.
func (p IgnorePattern) IsNegation() bool {
	return p.isNegation
}

// String returns the pattern as written.
func (p IgnorePattern) String() string {
	return p.raw
}

// matchAll applies patterns in order so later negations can re-include a path.
func matchAll(relPath string, isDir bool, patterns []IgnorePattern) bool {
	ignored := false
	for _, pattern := range patterns {
		if pattern.Match(relPath, isDir) {
			ignored = !pattern.IsNegation()
		}
	}
	return ignored
}
