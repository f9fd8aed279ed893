package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/rulecheck/internal/providers"
)

// Config represents the rulecheck configuration.
type Config struct {
	Model                 string        `json:"model" yaml:"model"`
	Region                string        `json:"region" yaml:"region"`
	Endpoint              string        `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Catalogue             string        `json:"catalogue,omitempty" yaml:"catalogue,omitempty"`
	StoreDir              string        `json:"storeDir" yaml:"storeDir"`
	Bucket                string        `json:"bucket" yaml:"bucket"`
	Concurrency           int           `json:"concurrency" yaml:"concurrency"`
	SyncThreshold         int           `json:"syncThreshold" yaml:"syncThreshold"`
	MaxRecordsPerManifest int           `json:"maxRecordsPerManifest" yaml:"maxRecordsPerManifest"`
	MaxFileBytes          int64         `json:"maxFileBytes" yaml:"maxFileBytes"`
	MaxTokens             int           `json:"maxTokens" yaml:"maxTokens"`
	Temperature           float64       `json:"temperature" yaml:"temperature"`
	PersistEvery          int           `json:"persistEvery" yaml:"persistEvery"`
	Format                string        `json:"format" yaml:"format"`
	FailOnFindings        bool          `json:"failOnFindings" yaml:"failOnFindings"`
	Cache                 CacheConfig   `json:"cache" yaml:"cache"`
	Privacy               PrivacyConfig `json:"privacy" yaml:"privacy"`
	Retry                 RetryConfig   `json:"retry" yaml:"retry"`
	Logging               LoggingConfig `json:"logging" yaml:"logging"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Dir        string `json:"dir,omitempty" yaml:"dir,omitempty"`
	TTLSeconds int    `json:"ttlSeconds" yaml:"ttlSeconds"`
}

// PrivacyConfig controls privacy/redaction behavior.
type PrivacyConfig struct {
	RedactSecrets bool     `json:"redactSecrets" yaml:"redactSecrets"`
	RedactPaths   []string `json:"redactPaths,omitempty" yaml:"redactPaths,omitempty"`
}

// RetryConfig configures the retry policies around synchronous calls.
type RetryConfig struct {
	RateLimit PolicyConfig `json:"rateLimit" yaml:"rateLimit"`
	Transient PolicyConfig `json:"transient" yaml:"transient"`
}

// PolicyConfig configures one retry policy.
type PolicyConfig struct {
	MaxAttempts int `json:"maxAttempts" yaml:"maxAttempts"`
	BaseDelayMs int `json:"baseDelayMs" yaml:"baseDelayMs"`
	MaxDelayMs  int `json:"maxDelayMs" yaml:"maxDelayMs"`
}

// LoggingConfig selects log level, format and destination.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	Output string `json:"output" yaml:"output"`
}

// Formats lists the supported report formats.
var Formats = []string{"text", "json", "markdown", "sarif"}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Model:                 "us.anthropic.claude-sonnet-4-20250514-v1:0",
		Region:                "us-east-1",
		StoreDir:              ".rulecheck",
		Bucket:                "rulecheck",
		Concurrency:           4,
		SyncThreshold:         200,
		MaxRecordsPerManifest: 50000,
		MaxFileBytes:          1 << 20,
		MaxTokens:             4096,
		PersistEvery:          500,
		Format:                "text",
		Cache: CacheConfig{
			Enabled:    true,
			TTLSeconds: 7 * 86400,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*", "**/*.pem"},
		},
		Retry: RetryConfig{
			RateLimit: PolicyConfig{MaxAttempts: 10, BaseDelayMs: 4000, MaxDelayMs: 120000},
			Transient: PolicyConfig{MaxAttempts: 3, BaseDelayMs: 1000, MaxDelayMs: 10000},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Policies returns the retry policies, rate limiting outermost.
func (r RetryConfig) Policies() []providers.RetryPolicy {
	return []providers.RetryPolicy{
		providers.RateLimitPolicy(r.RateLimit.MaxAttempts, ms(r.RateLimit.BaseDelayMs), ms(r.RateLimit.MaxDelayMs)),
		providers.TransientPolicy(r.Transient.MaxAttempts, ms(r.Transient.BaseDelayMs), ms(r.Transient.MaxDelayMs)),
	}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Validate checks values that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	var errs []error
	if _, err := providers.ParseModelID(c.Model); err != nil {
		errs = append(errs, err)
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.SyncThreshold < 0 {
		errs = append(errs, fmt.Errorf("syncThreshold must not be negative, got %d", c.SyncThreshold))
	}
	if c.MaxRecordsPerManifest < 1 {
		errs = append(errs, fmt.Errorf("maxRecordsPerManifest must be at least 1, got %d", c.MaxRecordsPerManifest))
	}
	if !slices.Contains(Formats, c.Format) {
		errs = append(errs, fmt.Errorf("format must be one of %s, got %q", strings.Join(Formats, ", "), c.Format))
	}
	if c.Retry.RateLimit.MaxAttempts < 1 || c.Retry.Transient.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry maxAttempts must be at least 1"))
	}
	return errors.Join(errs...)
}

// ConfigDir returns the platform-appropriate config directory for rulecheck.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rulecheck"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "rulecheck"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "rulecheck"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "rulecheck"), nil
	default:
		return filepath.Join(home, ".config", "rulecheck"), nil
	}
}

// ConfigPath returns the config file in use: the first of config.json,
// config.yaml and config.yml that exists, else config.json.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return filepath.Join(dir, "config.json"), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// applyFile decodes the file over cfg, so keys absent from the file keep
// their current values. A missing file is not an error unless required.
func applyFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Save writes the config as JSON or YAML, chosen by the path's extension.
// An empty path means ConfigPath.
func Save(cfg Config, path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadFile returns defaults merged with the config file only, ignoring the
// environment. It is what `config set` edits. An empty path means ConfigPath.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	required := path != ""
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	if err := applyFile(&cfg, path, required); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// path names an explicit config file (which must exist); empty means
// ConfigPath. The overrides map comes from CLI flags and uses SetField keys.
func Load(path string, overrides map[string]string) (Config, error) {
	cfg := Default()

	required := path != ""
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	if err := applyFile(&cfg, path, required); err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKeys maps environment variables to SetField keys.
var envKeys = []struct {
	env string
	key string
}{
	{"RULECHECK_MODEL", "model"},
	{"RULECHECK_REGION", "region"},
	{"RULECHECK_ENDPOINT", "endpoint"},
	{"RULECHECK_CATALOGUE", "catalogue"},
	{"RULECHECK_STORE_DIR", "storeDir"},
	{"RULECHECK_BUCKET", "bucket"},
	{"RULECHECK_CONCURRENCY", "concurrency"},
	{"RULECHECK_SYNC_THRESHOLD", "syncThreshold"},
	{"RULECHECK_MAX_RECORDS", "maxRecordsPerManifest"},
	{"RULECHECK_FORMAT", "format"},
	{"RULECHECK_FAIL_ON_FINDINGS", "failOnFindings"},
	{"RULECHECK_LOG_LEVEL", "logging.level"},
	{"RULECHECK_LOG_FORMAT", "logging.format"},
	{"RULECHECK_CACHE", "cache.enabled"},
}

func mergeEnv(cfg *Config) error {
	for _, e := range envKeys {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		if err := SetField(cfg, e.key, v); err != nil {
			return fmt.Errorf("%s: %w", e.env, err)
		}
	}
	return nil
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v := overrides[k]
		if v == "" {
			continue
		}
		if err := SetField(cfg, k, v); err != nil {
			return fmt.Errorf("flag %s: %w", k, err)
		}
	}
	return nil
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "model":
		cfg.Model = value
	case "region":
		cfg.Region = value
	case "endpoint":
		cfg.Endpoint = value
	case "catalogue":
		cfg.Catalogue = value
	case "storeDir":
		cfg.StoreDir = value
	case "bucket":
		cfg.Bucket = value
	case "format":
		cfg.Format = value
	case "concurrency":
		return setInt(&cfg.Concurrency, key, value)
	case "syncThreshold":
		return setInt(&cfg.SyncThreshold, key, value)
	case "maxRecordsPerManifest":
		return setInt(&cfg.MaxRecordsPerManifest, key, value)
	case "maxTokens":
		return setInt(&cfg.MaxTokens, key, value)
	case "persistEvery":
		return setInt(&cfg.PersistEvery, key, value)
	case "maxFileBytes":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("maxFileBytes must be an integer: %w", err)
		}
		cfg.MaxFileBytes = n
	case "temperature":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("temperature must be a number: %w", err)
		}
		cfg.Temperature = f
	case "failOnFindings":
		return setBool(&cfg.FailOnFindings, key, value)
	case "cache.enabled":
		return setBool(&cfg.Cache.Enabled, key, value)
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.ttlSeconds":
		return setInt(&cfg.Cache.TTLSeconds, key, value)
	case "privacy.redactSecrets":
		return setBool(&cfg.Privacy.RedactSecrets, key, value)
	case "privacy.redactPaths":
		cfg.Privacy.RedactPaths = splitList(value)
	case "retry.rateLimit.maxAttempts":
		return setInt(&cfg.Retry.RateLimit.MaxAttempts, key, value)
	case "retry.rateLimit.baseDelayMs":
		return setInt(&cfg.Retry.RateLimit.BaseDelayMs, key, value)
	case "retry.rateLimit.maxDelayMs":
		return setInt(&cfg.Retry.RateLimit.MaxDelayMs, key, value)
	case "retry.transient.maxAttempts":
		return setInt(&cfg.Retry.Transient.MaxAttempts, key, value)
	case "retry.transient.baseDelayMs":
		return setInt(&cfg.Retry.Transient.BaseDelayMs, key, value)
	case "retry.transient.maxDelayMs":
		return setInt(&cfg.Retry.Transient.MaxDelayMs, key, value)
	case "logging.level":
		cfg.Logging.Level = value
	case "logging.format":
		cfg.Logging.Format = value
	case "logging.output":
		cfg.Logging.Output = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s must be true or false: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(value string) []string {
	var out []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
