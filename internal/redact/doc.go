// Package redact removes secrets from file contents before they are placed
// in a prompt, either for a synchronous call or inside a batch manifest.
//
// Secret shapes such as private key blocks, JWTs, AWS key ids and provider
// tokens are matched with regular expressions and replaced in place. A
// [Redactor] built with path patterns (gobwas/glob syntax) replaces whole
// files instead, for paths that should never leave the host.
package redact
