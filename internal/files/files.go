package files

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMaxFileBytes is the per-file size limit for prompt contents.
const DefaultMaxFileBytes = 1 << 20 // 1MB

// sniffLen is how much of a file is inspected for NUL bytes.
const sniffLen = 8000

var vcsDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
}

// ErrBinary is returned by Read for files that look binary.
var ErrBinary = errors.New("binary file")

// ErrTooLarge is returned by Read for files above the size limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// ScanOptions controls how a tree is enumerated and read.
type ScanOptions struct {
	// MaxFileBytes caps the size of files returned by Read. Zero means
	// DefaultMaxFileBytes.
	MaxFileBytes int64
	// Only restricts the result to these relative paths when non-nil.
	// Listed paths that are not regular files under root are dropped.
	Only []string
}

// Manager holds the immutable file set of one repository tree.
type Manager struct {
	root     string
	files    []string
	maxBytes int64
}

// Scan walks root and records every regular file.
func Scan(root string, opts ScanOptions) (*Manager, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scanning %s: not a directory", root)
	}

	var paths []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && vcsDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	if opts.Only != nil {
		keep := make(map[string]bool, len(opts.Only))
		for _, p := range opts.Only {
			keep[strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "./")] = true
		}
		paths = slices.DeleteFunc(paths, func(p string) bool { return !keep[p] })
	}

	m := New(root, paths)
	if opts.MaxFileBytes > 0 {
		m.maxBytes = opts.MaxFileBytes
	}
	return m, nil
}

// New builds a Manager from an explicit list of relative paths. Duplicates
// are dropped and the result is sorted.
func New(root string, paths []string) *Manager {
	seen := make(map[string]bool, len(paths))
	files := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "./")
		if p == "" || p == "." || seen[p] {
			continue
		}
		seen[p] = true
		files = append(files, p)
	}
	sort.Strings(files)
	return &Manager{root: root, files: files, maxBytes: DefaultMaxFileBytes}
}

// Root returns the directory the file set was built from.
func (m *Manager) Root() string { return m.root }

// Files returns the sorted relative paths. Callers must not modify the slice.
func (m *Manager) Files() []string { return m.files }

// Len returns the number of files.
func (m *Manager) Len() int { return len(m.files) }

// Match returns the files matching any of the patterns, in sorted order.
func (m *Manager) Match(patterns []string) []string {
	var out []string
	for _, f := range m.files {
		if MatchesAny(f, patterns) {
			out = append(out, f)
		}
	}
	return out
}

// AnyMatch reports whether at least one file matches any of the patterns.
func (m *Manager) AnyMatch(patterns []string) bool {
	for _, f := range m.files {
		if MatchesAny(f, patterns) {
			return true
		}
	}
	return false
}

// Read returns the contents of a file in the set. Binary and oversized files
// are rejected with ErrBinary and ErrTooLarge.
func (m *Manager) Read(rel string) (string, error) {
	full := filepath.Join(m.root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rel, err)
	}
	if m.maxBytes > 0 && info.Size() > m.maxBytes {
		return "", fmt.Errorf("reading %s: %w (%d > %d bytes)", rel, ErrTooLarge, info.Size(), m.maxBytes)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rel, err)
	}
	if isBinary(data) {
		return "", fmt.Errorf("reading %s: %w", rel, ErrBinary)
	}
	return string(data), nil
}

// isBinary uses the same heuristic as git: a NUL byte in the first 8000 bytes.
func isBinary(data []byte) bool {
	n := len(data)
	if n > sniffLen {
		n = sniffLen
	}
	return bytes.IndexByte(data[:n], 0) >= 0
}

// MatchGlob reports whether path matches pattern. "**" spans directories and
// "**/" also matches zero directories. A pattern without "/" is additionally
// tried against the base name, so "*.py" matches "src/app/main.py".
// Invalid patterns never match.
func MatchGlob(p, pattern string) bool {
	p = filepath.ToSlash(p)
	pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
	if pattern == "" {
		return false
	}
	if ok, err := doublestar.Match(pattern, p); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		if ok, err := doublestar.Match(pattern, path.Base(p)); err == nil && ok {
			return true
		}
	}
	return false
}

// MatchesAny returns true if the path matches any of the given glob patterns.
func MatchesAny(p string, patterns []string) bool {
	for _, pattern := range patterns {
		if MatchGlob(p, pattern) {
			return true
		}
	}
	return false
}
