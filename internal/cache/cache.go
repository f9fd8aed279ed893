package cache

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/dshills/rulecheck/internal/providers"
)

// Entry is one cached model response.
type Entry struct {
	Key       string             `json:"key"`
	Model     string             `json:"model"`
	Response  providers.Response `json:"response"`
	CreatedAt time.Time          `json:"createdAt"`
}

// Cache stores model responses on disk. A disabled Cache misses every Get
// and ignores every Put.
type Cache struct {
	dir     string
	ttl     time.Duration
	enabled bool
	now     func() time.Time
}

// New creates a Cache. If dir is empty, the default cache directory is used.
func New(enabled bool, dir string, ttlSeconds int) (*Cache, error) {
	if !enabled {
		return &Cache{}, nil
	}
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{
		dir:     dir,
		ttl:     time.Duration(ttlSeconds) * time.Second,
		enabled: true,
		now:     time.Now,
	}, nil
}

// Get returns the cached response for key.
func (c *Cache) Get(key string) (providers.Response, bool) {
	if c == nil || !c.enabled {
		return providers.Response{}, false
	}
	path := c.entryPath(key)
	entry, err := readEntry(path)
	if err != nil {
		return providers.Response{}, false
	}
	if c.expired(entry) {
		os.Remove(path)
		return providers.Response{}, false
	}
	return entry.Response, true
}

// Put stores resp under key.
func (c *Cache) Put(key, model string, resp providers.Response) error {
	if c == nil || !c.enabled {
		return nil
	}
	entry := Entry{Key: key, Model: model, Response: resp, CreatedAt: c.now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, ".entry-*")
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.entryPath(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Clear removes all cache entries and returns how many were removed.
func (c *Cache) Clear() (int, error) {
	if c == nil || !c.enabled {
		return 0, nil
	}
	entries, err := c.list()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range entries {
		if err := os.Remove(filepath.Join(c.dir, name)); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Stats describes the cache contents.
type Stats struct {
	Dir        string `json:"dir"`
	Enabled    bool   `json:"enabled"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"totalBytes"`
	Expired    int    `json:"expired"`
}

// GetStats returns information about the cache.
func (c *Cache) GetStats() (Stats, error) {
	if c == nil || !c.enabled {
		return Stats{}, nil
	}
	stats := Stats{Dir: c.dir, Enabled: true}
	names, err := c.list()
	if err != nil {
		return stats, err
	}
	for _, name := range names {
		path := filepath.Join(c.dir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		stats.Entries++
		stats.TotalBytes += info.Size()
		if entry, err := readEntry(path); err == nil && c.expired(entry) {
			stats.Expired++
		}
	}
	return stats, nil
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

// Enabled returns whether caching is enabled.
func (c *Cache) Enabled() bool {
	return c != nil && c.enabled
}

// HashKey creates a SHA-256 hash of the given key material.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", h)
}

// BuildCacheKey derives a key from everything that determines a response.
func BuildCacheKey(model string, p providers.Prompt) string {
	return HashKey(fmt.Sprintf("%s\x00%d\x00%g\x00%s\x00%s", model, p.MaxTokens, p.Temperature, p.System, p.User))
}

func (c *Cache) expired(e Entry) bool {
	return c.ttl > 0 && c.now().Sub(e.CreatedAt) > c.ttl
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, HashKey(key)+".json")
}

func (c *Cache) list() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func readEntry(path string) (Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// DefaultDir returns the OS-appropriate cache directory.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "rulecheck"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "rulecheck"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "rulecheck", "cache"), nil
		}
		return filepath.Join(home, "AppData", "Local", "rulecheck", "cache"), nil
	default:
		return filepath.Join(home, ".cache", "rulecheck"), nil
	}
}
