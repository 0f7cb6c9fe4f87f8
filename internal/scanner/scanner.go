// Package scanner finds the source files a batch command should chart. It
// walks directories, honours .cflowignore files with gitignore-style
// patterns, expands doublestar globs and keeps only files in a supported
// language.
package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string // Relative path from the scan root, or the argument as given
	FullPath string // Absolute path
	Language string // Canonical flowchart language
	Size     int64  // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	FollowSymlinks  bool     // Follow file symlinks that stay within root
	DefaultExcludes []string // Directory names that are never entered
	IgnoreFileName  string   // Name of the ignore file (default: .cflowignore)
	Exclude         []string // Extra ignore patterns, usually from config
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		IgnoreFileName: ".cflowignore",
		DefaultExcludes: []string{
			"node_modules",
			".git",
			"__pycache__",
			".venv",
			"venv",
			"dist",
			"build",
			"coverage",
			".next",
			".mypy_cache",
			".pytest_cache",
			".tox",
			".nox",
			"site-packages",
		},
	}
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = ".cflowignore"
	}
	return &Scanner{opts: opts}
}

// Scan walks root and returns the supported source files below it, sorted by
// relative path.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	patterns := s.excludePatterns()

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			if d != nil && d.IsDir() && p != absRoot {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." {
				if s.skipName(d.Name()) || s.isDefaultExcluded(d.Name()) || matchAll(rel, true, patterns) {
					return filepath.SkipDir
				}
			}
			nested, err := s.loadIgnorePatterns(p, rel)
			if err != nil {
				return fmt.Errorf("loading ignore patterns: %w", err)
			}
			patterns = append(patterns, nested...)
			return nil
		}

		if s.skipName(d.Name()) || matchAll(rel, false, patterns) {
			return nil
		}
		if fi, ok := s.fileInfo(absRoot, p, d); ok {
			fi.Path = rel
			files = append(files, fi)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (s *Scanner) fileInfo(absRoot, p string, d fs.DirEntry) (FileInfo, bool) {
	language := DetectLanguage(p)
	if language == "" {
		return FileInfo{}, false
	}

	info, err := d.Info()
	if err != nil {
		return FileInfo{}, false
	}
	if info.Mode()&os.ModeSymlink != 0 {
		if !s.opts.FollowSymlinks {
			return FileInfo{}, false
		}
		target, err := filepath.EvalSymlinks(p)
		if err != nil {
			return FileInfo{}, false
		}
		if !strings.HasPrefix(target, absRoot+string(filepath.Separator)) {
			return FileInfo{}, false
		}
		if info, err = os.Stat(target); err != nil || info.IsDir() {
			return FileInfo{}, false
		}
	}
	return FileInfo{FullPath: p, Language: language, Size: info.Size()}, true
}

func (s *Scanner) skipName(name string) bool {
	return s.opts.SkipHidden && strings.HasPrefix(name, ".") && name != s.opts.IgnoreFileName
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnorePatterns reads the ignore file in dir. Patterns in a nested file
// are rebased onto rel so they only apply below that directory.
func (s *Scanner) loadIgnorePatterns(dir, rel string) ([]IgnorePattern, error) {
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
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
		patterns = append(patterns, ParseIgnorePattern(rebase(rel, line)))
	}
	return patterns, sc.Err()
}

func rebase(rel, line string) string {
	if rel == "." {
		return line
	}
	neg := ""
	if strings.HasPrefix(line, "!") {
		neg, line = "!", line[1:]
	}
	trimmed := strings.TrimSuffix(line, "/")
	if !strings.Contains(trimmed, "/") {
		line = "**/" + line
	}
	return neg + "/" + path.Join(rel, strings.TrimPrefix(line, "/")) + suffixSlash(line)
}

func suffixSlash(line string) string {
	if strings.HasSuffix(line, "/") {
		return "/"
	}
	return ""
}

// Expand resolves command-line arguments into source files. A directory is
// scanned, a file is taken as is when its language is supported, and
// anything else is treated as a doublestar glob. Results keep argument order
// and are deduplicated.
func (s *Scanner) Expand(args []string) ([]FileInfo, error) {
	var out []FileInfo
	seen := map[string]bool{}
	add := func(fi FileInfo) {
		if !seen[fi.FullPath] {
			seen[fi.FullPath] = true
			out = append(out, fi)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		switch {
		case err == nil && info.IsDir():
			files, err := s.Scan(arg)
			if err != nil {
				return nil, err
			}
			for _, fi := range files {
				fi.Path = filepath.ToSlash(filepath.Join(arg, fi.Path))
				add(fi)
			}
		case err == nil:
			language := DetectLanguage(arg)
			if language == "" {
				return nil, fmt.Errorf("%s: unsupported file type", arg)
			}
			abs, _ := filepath.Abs(arg)
			add(FileInfo{Path: filepath.ToSlash(arg), FullPath: abs, Language: language, Size: info.Size()})
		case os.IsNotExist(err) && isGlob(arg):
			matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
			}
			for _, m := range matches {
				language := DetectLanguage(m)
				if language == "" || matchAll(filepath.ToSlash(m), false, s.excludePatterns()) {
					continue
				}
				abs, _ := filepath.Abs(m)
				var size int64
				if st, err := os.Stat(m); err == nil {
					size = st.Size()
				}
				add(FileInfo{Path: filepath.ToSlash(m), FullPath: abs, Language: language, Size: size})
			}
		default:
			return nil, fmt.Errorf("%s: %w", arg, err)
		}
	}
	return out, nil
}

func (s *Scanner) excludePatterns() []IgnorePattern {
	out := make([]IgnorePattern, 0, len(s.opts.Exclude))
	for _, e := range s.opts.Exclude {
		out = append(out, ParseIgnorePattern(e))
	}
	return out
}

func isGlob(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}

// Expand is a convenience function that expands args with default options.
func Expand(args []string) ([]FileInfo, error) {
	return New(DefaultOptions()).Expand(args)
}
