// Package cache provides a file-based cache of model responses for the
// synchronous evaluation path.
//
// Entries are keyed by a SHA-256 hash of the model identifier and the full
// prompt, so a repeated run over unchanged files costs nothing. Each entry
// stores the canonical response with a creation timestamp; entries older
// than the TTL are treated as misses and removed on read.
//
// The default cache directory is $XDG_CACHE_HOME/rulecheck (or the
// OS-appropriate equivalent). Prompts have already been through secret
// redaction before they are hashed.
package cache
