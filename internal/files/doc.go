// Package files enumerates a repository tree and matches glob patterns
// against it.
//
// The file set is computed once by [Scan] and is immutable afterwards.
// Paths are slash-separated and relative to the repository root; version
// control metadata directories are skipped. Pattern matching uses
// doublestar semantics, with the gitignore convention that a pattern
// without a slash also matches a file's base name at any depth.
package files
