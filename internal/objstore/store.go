package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrNotFound is wrapped by errors for objects that do not exist.
var ErrNotFound = errors.New("object not found")

// Store reads and writes whole objects.
type Store interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Put(ctx context.Context, bucket, key string, data []byte) error
	// List returns the keys under prefix, sorted.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// Join builds an object key from parts, ignoring empty ones.
func Join(parts ...string) string {
	var kept []string
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return path.Join(kept...)
}

func notFound(bucket, key string) error {
	return fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
}

func validKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("invalid object key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("invalid object key %q", key)
		}
	}
	return nil
}

// FSStore stores objects as files under Root/bucket/key.
type FSStore struct {
	Root string
}

// NewFSStore creates a store rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{Root: dir}
}

func validBucket(bucket string) error {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return fmt.Errorf("invalid bucket %q", bucket)
	}
	return nil
}

func (s *FSStore) path(bucket, key string) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	if err := validBucket(bucket); err != nil {
		return "", err
	}
	return filepath.Join(s.Root, bucket, filepath.FromSlash(key)), nil
}

func (s *FSStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	rc, err := s.Open(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (s *FSStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(bucket, key)
		}
		return nil, fmt.Errorf("opening %s/%s: %w", bucket, key, err)
	}
	return f, nil
}

// Put writes the object atomically: readers see either the old or the new
// contents, never a partial file.
func (s *FSStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", bucket, key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s/%s: %w", bucket, key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s/%s: %w", bucket, key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *FSStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validBucket(bucket); err != nil {
		return nil, err
	}
	base := filepath.Join(s.Root, bucket)
	var keys []string
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == base {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s/%s: %w", bucket, prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// MemStore is an in-memory Store, safe for concurrent use.
type MemStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[string][]byte)}
}

func memKey(bucket, key string) string { return bucket + "\x00" + key }

func (m *MemStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[memKey(bucket, key)]
	if !ok {
		return nil, notFound(bucket, key)
	}
	return bytes.Clone(data), nil
}

func (m *MemStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	data, err := m.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(bucket, key)] = bytes.Clone(data)
	return nil
}

func (m *MemStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.objects {
		b, key, _ := strings.Cut(k, "\x00")
		if b == bucket && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
