package redact

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

const placeholder = "[REDACTED]"

// secretPatterns are regex heuristics for common secret types.
var secretPatterns = []*regexp.Regexp{
	// Generic API keys (long hex/base64 strings after common key patterns)
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// JWTs (three base64 segments separated by dots)
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
}

// Secrets replaces detected secrets in text with [REDACTED].
func Secrets(text string) string {
	result := text
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllLiteralString(result, placeholder)
	}
	return result
}

// Redactor applies secret and path redaction to file contents.
type Redactor struct {
	secrets bool
	paths   []glob.Glob
	// base-name forms of "**/x" patterns so that "**/.env" also matches ".env"
	bases []glob.Glob
}

// New compiles the path patterns. With secrets false and no patterns the
// Redactor returns contents unchanged.
func New(secrets bool, pathPatterns []string) (*Redactor, error) {
	r := &Redactor{secrets: secrets}
	for _, p := range pathPatterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid redact path pattern %q: %w", p, err)
		}
		r.paths = append(r.paths, g)
		if base, ok := strings.CutPrefix(p, "**/"); ok && !strings.Contains(base, "/") {
			bg, err := glob.Compile(base, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid redact path pattern %q: %w", p, err)
			}
			r.bases = append(r.bases, bg)
		}
	}
	return r, nil
}

// ShouldRedactPath reports whether the file at p is covered by the path policy.
func (r *Redactor) ShouldRedactPath(p string) bool {
	if r == nil {
		return false
	}
	for _, g := range r.paths {
		if g.Match(p) {
			return true
		}
	}
	base := path.Base(p)
	for _, g := range r.bases {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// Apply returns content as it may be sent to a model.
func (r *Redactor) Apply(p, content string) string {
	if r == nil {
		return content
	}
	if r.ShouldRedactPath(p) {
		return placeholder + " (file content redacted by path policy)\n"
	}
	if r.secrets {
		return Secrets(content)
	}
	return content
}
