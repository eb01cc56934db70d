// Package inmem is an in-process memory store and trait ledger for development and tests.
// State is scoped per user and owned by the Store value; nothing is process-global.
package inmem

import (
	"context"
	"sort"
	"sync"

	"github.com/easeaico/project-nudge/internal/memory"
	"github.com/easeaico/project-nudge/internal/traits"
	"github.com/easeaico/project-nudge/internal/types"
)

// Store implements memory.Store and traits.Ledger.
type Store struct {
	mu      sync.RWMutex
	entries map[string][]types.MemoryEntry
	owners  map[string]string
	traits  map[string]traits.Traits
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[string][]types.MemoryEntry),
		owners:  make(map[string]string),
		traits:  make(map[string]traits.Traits),
	}
}

func (s *Store) Append(_ context.Context, entry types.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.UserID] = append(s.entries[entry.UserID], cloneEntry(entry))
	s.owners[entry.ID] = entry.UserID
	return nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]types.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.entries[userID]
	out := make([]types.MemoryEntry, 0, len(src))
	for _, e := range src {
		out = append(out, cloneEntry(e))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Get(_ context.Context, id string) (types.MemoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, userID, ok := s.locate(id)
	if !ok {
		return types.MemoryEntry{}, memory.ErrNotFound
	}
	return cloneEntry(s.entries[userID][idx]), nil
}

func (s *Store) UpdateContent(_ context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, userID, ok := s.locate(id)
	if !ok {
		return memory.ErrNotFound
	}
	s.entries[userID][idx].Content = content
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, userID, ok := s.locate(id)
	if !ok {
		return memory.ErrNotFound
	}
	list := s.entries[userID]
	s.entries[userID] = append(list[:idx:idx], list[idx+1:]...)
	delete(s.owners, id)
	return nil
}

func (s *Store) DeleteUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries[userID] {
		delete(s.owners, e.ID)
	}
	delete(s.entries, userID)
	return nil
}

func (s *Store) locate(id string) (int, string, bool) {
	userID, ok := s.owners[id]
	if !ok {
		return 0, "", false
	}
	for i, e := range s.entries[userID] {
		if e.ID == id {
			return i, userID, true
		}
	}
	return 0, "", false
}

func (s *Store) Read(_ context.Context, userID string) (traits.Traits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTraits(s.traits[userID]), nil
}

func (s *Store) Update(ctx context.Context, userID, key string, value any) error {
	return s.Merge(ctx, userID, map[string]any{key: value})
}

func (s *Store) Merge(_ context.Context, userID string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.userTraits(userID)
	for k, v := range values {
		current[k] = traits.Normalize(v)
	}
	return nil
}

func (s *Store) Union(_ context.Context, userID, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.userTraits(userID)
	current[key] = traits.UnionStrings(current.Strings(key), values...)
	return nil
}

func (s *Store) Reset(_ context.Context, userID string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(keys) == 0 {
		delete(s.traits, userID)
		return nil
	}
	current := s.traits[userID]
	for _, k := range keys {
		delete(current, k)
	}
	return nil
}

func (s *Store) userTraits(userID string) traits.Traits {
	current, ok := s.traits[userID]
	if !ok {
		current = make(traits.Traits)
		s.traits[userID] = current
	}
	return current
}

func cloneEntry(e types.MemoryEntry) types.MemoryEntry {
	e.TopicTags = append([]string(nil), e.TopicTags...)
	e.Embedding = append([]float32(nil), e.Embedding...)
	return e
}

func cloneTraits(t traits.Traits) traits.Traits {
	out := make(traits.Traits, len(t))
	for k, v := range t {
		if list, ok := v.([]string); ok {
			v = append([]string(nil), list...)
		}
		out[k] = v
	}
	return out
}
