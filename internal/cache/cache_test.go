package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/rulecheck/internal/providers"
)

var testResp = providers.Response{Role: "assistant", Content: `{"compliant":true,"findings":[]}`, StopReason: "end_turn", InputTokens: 10, OutputTokens: 4}

func TestCache_PutGet(t *testing.T) {
	c, err := New(true, t.TempDir(), 86400)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	key := BuildCacheKey("amazon.nova-pro-v1:0", providers.Prompt{System: "s", User: "u"})
	if _, ok := c.Get(key); ok {
		t.Error("Expected cache miss before put")
	}
	if err := c.Put(key, "amazon.nova-pro-v1:0", testResp); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	got, ok := c.Get(key)
	if !ok {
		t.Fatal("Expected cache hit after put")
	}
	if got != testResp {
		t.Errorf("Got = %+v, want %+v", got, testResp)
	}
}

func TestCache_TTLExpiration(t *testing.T) {
	c, err := New(true, t.TempDir(), 60)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	now := time.Now()
	c.now = func() time.Time { return now }

	if err := c.Put("expire-test", "m", testResp); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if _, ok := c.Get("expire-test"); !ok {
		t.Error("Expected cache hit before expiration")
	}

	stats, _ := c.GetStats()
	if stats.Expired != 0 {
		t.Errorf("Expired = %d before TTL", stats.Expired)
	}

	now = now.Add(2 * time.Minute)
	stats, _ = c.GetStats()
	if stats.Expired != 1 {
		t.Errorf("Expired = %d after TTL, want 1", stats.Expired)
	}
	if _, ok := c.Get("expire-test"); ok {
		t.Error("Expected cache miss after TTL expiration")
	}
	if _, err := os.Stat(c.entryPath("expire-test")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed on read")
	}
}

func TestCache_Disabled(t *testing.T) {
	c, err := New(false, "", 0)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if c.Enabled() {
		t.Error("Cache should be disabled")
	}
	if err := c.Put("key", "m", testResp); err != nil {
		t.Errorf("Put on disabled cache should not error: %v", err)
	}
	if _, ok := c.Get("key"); ok {
		t.Error("Get on disabled cache should always miss")
	}
	if n, err := c.Clear(); err != nil || n != 0 {
		t.Errorf("Clear on disabled cache = %d, %v", n, err)
	}

	var nilCache *Cache
	if _, ok := nilCache.Get("key"); ok {
		t.Error("nil cache should miss")
	}
}

func TestCache_Clear(t *testing.T) {
	dir := t.TempDir()
	c, err := New(true, dir, 86400)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := c.Put(string(rune('a'+i)), "m", testResp); err != nil {
			t.Fatalf("Put error: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := c.Clear()
	if err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	if n != 5 {
		t.Errorf("Clear removed %d, want 5", n)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "notes.txt" {
		t.Errorf("unexpected directory contents after clear: %v", entries)
	}
}

func TestCache_GetStats(t *testing.T) {
	dir := t.TempDir()
	c, err := New(true, dir, 86400)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	stats, err := c.GetStats()
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}
	if stats.Entries != 0 {
		t.Errorf("Entries = %d, want 0", stats.Entries)
	}

	c.Put("key1", "m", testResp)
	c.Put("key2", "m", testResp)

	stats, err = c.GetStats()
	if err != nil {
		t.Fatalf("GetStats error: %v", err)
	}
	if stats.Entries != 2 {
		t.Errorf("Entries = %d, want 2", stats.Entries)
	}
	if stats.TotalBytes <= 0 {
		t.Error("TotalBytes should be > 0")
	}
	if stats.Dir != dir || !stats.Enabled {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBuildCacheKey(t *testing.T) {
	p := providers.Prompt{System: "sys", User: "file contents", MaxTokens: 1024}
	k1 := BuildCacheKey("anthropic.claude-3-haiku-20240307-v1:0", p)
	k2 := BuildCacheKey("anthropic.claude-3-haiku-20240307-v1:0", p)
	k3 := BuildCacheKey("amazon.nova-pro-v1:0", p)
	p.Temperature = 0.5
	k4 := BuildCacheKey("anthropic.claude-3-haiku-20240307-v1:0", p)

	if k1 != k2 {
		t.Error("Same inputs should produce same cache key")
	}
	if k1 == k3 || k1 == k4 {
		t.Error("Different model or parameters should produce different cache key")
	}
	if len(k1) != 64 {
		t.Errorf("Key length = %d, want 64", len(k1))
	}
}

func TestDefaultDir_XDG(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
	d, err := DefaultDir()
	if err != nil {
		t.Fatal(err)
	}
	if d != filepath.Join("/tmp/xdg", "rulecheck") {
		t.Errorf("DefaultDir = %q", d)
	}
}
