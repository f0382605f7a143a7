package report

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the number of records kept in memory when no capacity
// is configured.
const DefaultCapacity = 64

// LRUStore keeps recent records in memory and delegates to a backing Store
// on miss.
type LRUStore struct {
	cache *lru.Cache[string, *Record]
	back  Store
}

// NewLRUStore creates an LRU cache with the given capacity in front of
// back. A capacity below 1 uses DefaultCapacity.
func NewLRUStore(capacity int, back Store) (*LRUStore, error) {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	cache, err := lru.New[string, *Record](capacity)
	if err != nil {
		return nil, err
	}
	return &LRUStore{cache: cache, back: back}, nil
}

// Save caches rec and writes it through to the backing store.
func (s *LRUStore) Save(rec *Record) error {
	if err := s.back.Save(rec); err != nil {
		return err
	}
	s.cache.Add(rec.ID, rec)
	return nil
}

// Load checks the cache first and promotes backing store hits into it.
func (s *LRUStore) Load(id string) (*Record, error) {
	if rec, ok := s.cache.Get(id); ok {
		return rec, nil
	}
	rec, err := s.back.Load(id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, rec)
	return rec, nil
}

// Recent returns cached record IDs, most recently used first.
func (s *LRUStore) Recent() []string {
	keys := s.cache.Keys() // oldest first
	for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
		keys[i], keys[j] = keys[j], keys[i]
	}
	return keys
}
