package session

import (
	"context"
	"sort"
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/Dahimi/File-Search-POC/internal/chat"
)

// MemoryStore holds history for the life of the process only.
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (s *MemoryStore) Append(ctx context.Context, storeID string, turns ...chat.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.get(storeID)
	next := make([]chat.Turn, 0, len(existing)+len(turns))
	next = append(next, existing...)
	next = append(next, turns...)
	s.cache.Set(storeID, next, cache.NoExpiration)
	return nil
}

func (s *MemoryStore) History(ctx context.Context, storeID string) ([]chat.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.get(storeID)
	out := make([]chat.Turn, len(existing))
	copy(out, existing)
	return out, nil
}

func (s *MemoryStore) Clear(ctx context.Context, storeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Delete(storeID)
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	items := s.cache.Items()
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) get(storeID string) []chat.Turn {
	if x, found := s.cache.Get(storeID); found {
		return x.([]chat.Turn)
	}
	return nil
}
