package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
//
// Update holds the write lock for the whole unit of work and stages writes
// in an overlay that is merged only when fn succeeds.
type MemoryStore struct {
	reader

	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		data: make(map[string]map[string][]byte),
	}
	for _, b := range buckets {
		s.data[b] = make(map[string][]byte)
	}
	s.reader = reader{view: s.view}
	return s
}

func (s *MemoryStore) Update(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o := &overlay{base: s.data, staged: make(map[string]map[string][]byte)}
	if err := fn(&txn{kv: o}); err != nil {
		return err
	}
	for b, kvs := range o.staged {
		for k, v := range kvs {
			s.data[b][k] = v
		}
	}
	return nil
}

func (s *MemoryStore) view(_ context.Context, fn func(kv) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Reads only; an overlay keeps accidental writes out of committed state.
	return fn(&overlay{base: s.data, staged: make(map[string]map[string][]byte)})
}

func (s *MemoryStore) Close() error { return nil }

// overlay reads through staged writes to the committed maps.
type overlay struct {
	base   map[string]map[string][]byte
	staged map[string]map[string][]byte
}

func (o *overlay) get(bucket, key string) ([]byte, error) {
	if v, ok := o.staged[bucket][key]; ok {
		return v, nil
	}
	return o.base[bucket][key], nil
}

func (o *overlay) insert(bucket, key string, val []byte) error {
	existing, _ := o.get(bucket, key)
	if existing != nil {
		return fmt.Errorf("%w: %s/%s", ErrExists, bucket, key)
	}
	return o.put(bucket, key, val)
}

func (o *overlay) put(bucket, key string, val []byte) error {
	if o.staged[bucket] == nil {
		o.staged[bucket] = make(map[string][]byte)
	}
	// Store a copy to avoid external mutation.
	o.staged[bucket][key] = append([]byte(nil), val...)
	return nil
}

func (o *overlay) scan(bucket string, fn func(val []byte) error) error {
	merged := make(map[string][]byte, len(o.base[bucket]))
	for k, v := range o.base[bucket] {
		merged[k] = v
	}
	for k, v := range o.staged[bucket] {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(merged[k]); err != nil {
			return err
		}
	}
	return nil
}
