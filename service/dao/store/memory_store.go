package store

import (
	"sort"
	"sync"

	"github.com/viant/gatekeep/service/dao"
)

// MemoryStore is a generic insert-only in-memory table.
// It keeps entities of type *T mapped by a comparable key K.
// The key is obtained from the supplied keySelector function.
//
// Records are never deleted; Replace swaps in a modified copy of an existing
// record and fails for an unknown key. Stored values are isolated from callers
// through the clone function.
type MemoryStore[K comparable, T any] struct {
	mu          sync.RWMutex
	records     map[K]*T
	keySelector func(*T) K
	clone       func(*T) *T
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore[K comparable, T any](keySelector func(*T) K, clone func(*T) *T) *MemoryStore[K, T] {
	return &MemoryStore[K, T]{
		records:     make(map[K]*T),
		keySelector: keySelector,
		clone:       clone,
	}
}

// Insert stores a new record.
func (s *MemoryStore[K, T]) Insert(v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.keySelector(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; ok {
		return dao.ErrDuplicate
	}
	s.records[key] = s.clone(v)
	return nil
}

// Has returns true if the key exists.
func (s *MemoryStore[K, T]) Has(key K) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[key]
	return ok
}

// Load returns a copy of the record or nil.
func (s *MemoryStore[K, T]) Load(key K) *T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.records[key]
	if !ok {
		return nil
	}
	return s.clone(v)
}

// Replace overwrites an existing record.
func (s *MemoryStore[K, T]) Replace(v *T) error {
	if v == nil {
		return dao.ErrNilEntity
	}
	key := s.keySelector(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; !ok {
		return dao.ErrNotFound
	}
	s.records[key] = s.clone(v)
	return nil
}

// List returns copies of records accepted by filter, ordered by less.
func (s *MemoryStore[K, T]) List(filter func(*T) bool, less func(a, b *T) bool) []*T {
	s.mu.RLock()
	out := make([]*T, 0, len(s.records))
	for _, v := range s.records {
		if filter == nil || filter(v) {
			out = append(out, s.clone(v))
		}
	}
	s.mu.RUnlock()
	if less != nil {
		sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	}
	return out
}
