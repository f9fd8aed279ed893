package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/dshills/rulecheck/internal/objstore"
)

// ErrStateNotFound is returned by LoadState when no state was persisted
// yet. Callers normally treat it as empty state; see LoadOrInit.
var ErrStateNotFound = errors.New("record state not found")

// RecordStore remembers processed records so that output can be processed
// again without duplicating results.
//
// PersistState writes the whole map. Two processes that load, mutate and
// persist the same state concurrently lose each other's records, so access
// must be serialized per job.
type RecordStore interface {
	AddRecord(id string, rec json.RawMessage)
	GetRecord(id string) (json.RawMessage, bool)
	PersistState(ctx context.Context) error
	LoadState(ctx context.Context) error
}

// LoadOrInit loads persisted state, starting empty when there is none.
func LoadOrInit(ctx context.Context, s RecordStore) error {
	if err := s.LoadState(ctx); err != nil && !errors.Is(err, ErrStateNotFound) {
		return err
	}
	return nil
}

// records is the mutex-guarded map shared by the implementations.
type records struct {
	mu sync.RWMutex
	m  map[string]json.RawMessage
}

func (r *records) AddRecord(id string, rec json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		r.m = make(map[string]json.RawMessage)
	}
	r.m[id] = append(json.RawMessage(nil), rec...)
}

func (r *records) GetRecord(id string) (json.RawMessage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.m[id]
	return rec, ok
}

// Len returns the number of records held in memory.
func (r *records) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

func (r *records) snapshot() map[string]json.RawMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(r.m))
	maps.Copy(out, r.m)
	return out
}

func (r *records) replace(m map[string]json.RawMessage) {
	if m == nil {
		m = make(map[string]json.RawMessage)
	}
	r.mu.Lock()
	r.m = m
	r.mu.Unlock()
}

// MemoryRecordStore keeps state in memory. PersistState takes a snapshot
// that LoadState restores.
type MemoryRecordStore struct {
	records
	persisted map[string]json.RawMessage
}

// NewMemoryRecordStore creates an empty store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{}
}

func (s *MemoryRecordStore) PersistState(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := s.snapshot()
	s.mu.Lock()
	s.persisted = snap
	s.mu.Unlock()
	return nil
}

func (s *MemoryRecordStore) LoadState(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	p := s.persisted
	s.mu.RUnlock()
	if p == nil {
		return ErrStateNotFound
	}
	m := make(map[string]json.RawMessage, len(p))
	maps.Copy(m, p)
	s.replace(m)
	return nil
}

// ObjectRecordStore keeps state as one JSON object at {prefix}/state.json.
type ObjectRecordStore struct {
	records
	store  objstore.Store
	bucket string
	prefix string
}

// NewObjectRecordStore creates a store for the job under prefix.
func NewObjectRecordStore(store objstore.Store, bucket, prefix string) *ObjectRecordStore {
	return &ObjectRecordStore{store: store, bucket: bucket, prefix: prefix}
}

// StateKey is the object key of a job's state.
func StateKey(prefix string) string { return objstore.Join(prefix, "state.json") }

// PersistState overwrites the stored state with the full in-memory map.
func (s *ObjectRecordStore) PersistState(ctx context.Context) error {
	data, err := json.Marshal(s.snapshot())
	if err != nil {
		return fmt.Errorf("marshaling record state: %w", err)
	}
	if err := s.store.Put(ctx, s.bucket, StateKey(s.prefix), data); err != nil {
		return fmt.Errorf("persisting record state: %w", err)
	}
	return nil
}

// LoadState replaces the in-memory map with the stored state.
func (s *ObjectRecordStore) LoadState(ctx context.Context) error {
	data, err := s.store.Get(ctx, s.bucket, StateKey(s.prefix))
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrStateNotFound, err)
		}
		return fmt.Errorf("loading record state: %w", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parsing record state: %w", err)
	}
	s.replace(m)
	return nil
}
