// Package gitctx reads repository metadata and file lists from git.
//
// It shells out to git with -C so callers never change the working
// directory. [TrackedFiles] and [ChangedFiles] return repository-relative
// slash paths suitable for restricting a file scan.
package gitctx
