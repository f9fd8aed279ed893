package catalog

import (
	"errors"
	"fmt"
)

// ConfigError reports a catalogue problem that makes evaluation impossible.
// It is raised before any LLM call is made.
type ConfigError struct {
	Rule    string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("catalogue config error: rule %s: %s", e.Rule, e.Message)
	}
	return "catalogue config error: " + e.Message
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func configErrorf(rule, format string, args ...any) *ConfigError {
	return &ConfigError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}
