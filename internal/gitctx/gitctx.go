package gitctx

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// ErrNotRepository is returned when dir is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// RepoMeta contains git repository metadata.
type RepoMeta struct {
	Root   string
	Head   string
	Branch string
}

// Meta collects repository metadata for dir. Head and Branch are empty in a
// repository with no commits.
func Meta(dir string) (RepoMeta, error) {
	root, err := gitOutput(dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return RepoMeta{}, fmt.Errorf("%w: %s: %v", ErrNotRepository, dir, err)
	}
	head, err := gitOutput(dir, "rev-parse", "HEAD")
	if err != nil {
		head = ""
	}
	branch, err := gitOutput(dir, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		branch = ""
	}
	return RepoMeta{
		Root:   strings.TrimSpace(root),
		Head:   strings.TrimSpace(head),
		Branch: strings.TrimSpace(branch),
	}, nil
}

// TrackedFiles lists the files git tracks under dir, relative to dir.
func TrackedFiles(dir string) ([]string, error) {
	out, err := gitOutput(dir, "ls-files", "--full-name", "--", ".")
	if err != nil {
		return nil, fmt.Errorf("listing tracked files: %w", err)
	}
	return relativeTo(dir, splitLines(out))
}

// ChangedFiles lists files added, copied, modified or renamed between the
// merge base of base and HEAD, relative to dir. Deleted files are omitted.
func ChangedFiles(dir, base string) ([]string, error) {
	if base == "" {
		return nil, errors.New("changed files: empty base revision")
	}
	out, err := gitOutput(dir, "diff", "--name-only", "--diff-filter=ACMR", base+"...HEAD", "--", ".")
	if err != nil {
		return nil, fmt.Errorf("listing files changed since %s: %w", base, err)
	}
	return relativeTo(dir, splitLines(out))
}

// relativeTo rewrites repository-root paths to be relative to dir, which
// may be a subdirectory of the work tree.
func relativeTo(dir string, paths []string) ([]string, error) {
	prefix, err := gitOutput(dir, "rev-parse", "--show-prefix")
	if err != nil {
		return nil, err
	}
	prefix = strings.TrimSpace(prefix)
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if prefix != "" {
			if !strings.HasPrefix(p, prefix) {
				continue
			}
			p = strings.TrimPrefix(p, prefix)
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func gitOutput(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return string(out), fmt.Errorf("%s: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}
