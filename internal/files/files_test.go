package files

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestScan_SkipsVCSAndSorts(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.py":         "print('hi')\n",
		"src/__init__.py": "",
		"src/app/z.go":    "package app\n",
		".git/HEAD":       "ref: refs/heads/main\n",
		".git/objects/ab": "blob",
		"docs/.svn/entry": "x",
	})

	m, err := Scan(root, ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"main.py", "src/__init__.py", "src/app/z.go"}, m.Files())
	assert.Equal(t, root, m.Root())
	assert.Equal(t, 3, m.Len())

	again, err := Scan(root, ScanOptions{})
	require.NoError(t, err)
	assert.Equal(t, m.Files(), again.Files(), "scan must be deterministic")
}

func TestScan_Only(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.py":     "a\n",
		"b.py":     "b\n",
		"src/c.py": "c\n",
	})

	m, err := Scan(root, ScanOptions{Only: []string{"./src/c.py", "a.py", "deleted.py"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "src/c.py"}, m.Files())

	empty, err := Scan(root, ScanOptions{Only: []string{}})
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}

func TestScan_NotADirectory(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := Scan(path, ScanOptions{})
	assert.Error(t, err)
	_, err = Scan(filepath.Join(root, "missing"), ScanOptions{})
	assert.Error(t, err)
}

func TestNew_NormalizesAndDedups(t *testing.T) {
	m := New("/repo", []string{"./b.go", "a.go", "b.go", "dir/../c.go", ""})
	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, m.Files())
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		path    string
		pattern string
		want    bool
	}{
		{"main.py", "*.py", true},
		{"src/__init__.py", "*.py", true},
		{"src/__init__.py", "src/__init__.py", true},
		{"test_exclude.py", "test_*.py", true},
		{"pkg/test_x.py", "test_*.py", true},
		{"main.py", "test_*.py", false},
		{"main.go", "**/*.go", true},
		{"a/b/c/main.go", "**/*.go", true},
		{"a/b/c/main.go", "a/**/main.go", true},
		{"a/main.go", "b/**", false},
		{"vendor/x/y.go", "vendor/**", true},
		{"src/main.py", "src/*.py", true},
		{"src/deep/main.py", "src/*.py", false},
		{"main.go", "[a-", false},
		{"main.go", "", false},
		{"cmd/api/main.go", "./cmd/**/*.go", true},
	}
	for _, tt := range tests {
		t.Run(tt.path+"~"+tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchGlob(tt.path, tt.pattern))
		})
	}
}

func TestManager_Match(t *testing.T) {
	m := New("/repo", []string{"a.go", "b_test.go", "docs/readme.md", "cmd/x/main.go"})
	assert.Equal(t, []string{"a.go", "b_test.go", "cmd/x/main.go"}, m.Match([]string{"*.go"}))
	assert.True(t, m.AnyMatch([]string{"docs/*.md"}))
	assert.False(t, m.AnyMatch([]string{"*.rs"}))
	assert.Empty(t, m.Match(nil))
}

func TestRead(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"ok.txt":  "hello",
		"big.txt": "0123456789abcdef",
		"bin.dat": "ab\x00cd",
	})
	m, err := Scan(root, ScanOptions{MaxFileBytes: 10})
	require.NoError(t, err)

	got, err := m.Read("ok.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = m.Read("big.txt")
	assert.True(t, errors.Is(err, ErrTooLarge))

	_, err = m.Read("bin.dat")
	assert.True(t, errors.Is(err, ErrBinary))

	_, err = m.Read("nope.txt")
	assert.Error(t, err)
}
