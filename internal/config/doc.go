// Package config loads and merges rulecheck configuration from multiple
// sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (RULECHECK_MODEL, RULECHECK_REGION, RULECHECK_CONCURRENCY, etc.)
//  3. Config file ($XDG_CONFIG_HOME/rulecheck/config.json, or config.yaml)
//  4. Built-in defaults
//
// Use [Load] to obtain a merged [Config], [Save] to write a config file, and
// [SetField] to update a single dotted key such as "retry.transient.maxAttempts".
package config
