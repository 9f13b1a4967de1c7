package history

import (
	"context"
	"sort"
	"sync"

	"github.com/fpang/video-insight/internal/analysis"
)

// MemoryStore keeps entries in a map. Entries are deep-copied on the way in
// and out through the payload codec so callers never share state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	created map[string]int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string][]byte),
		created: make(map[string]int64),
	}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, e *Entry) error {
	payload, err := encodePayload(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.ID] = payload
	s.created[e.ID] = e.CreatedAt.UnixNano()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	payload, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodePayload(payload)
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*Entry, error) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ci, cj := s.created[ids[i]], s.created[ids[j]]
		if ci != cj {
			return ci > cj
		}
		return ids[i] < ids[j]
	})
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	payloads := make([][]byte, len(ids))
	for i, id := range ids {
		payloads[i] = s.entries[id]
	}
	s.mu.RUnlock()

	out := make([]*Entry, 0, len(payloads))
	for _, p := range payloads {
		e, err := decodePayload(p)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// AppendChat implements Store.
func (s *MemoryStore) AppendChat(_ context.Context, id string, turns ...analysis.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	e, err := decodePayload(payload)
	if err != nil {
		return err
	}
	e.Chat = append(e.Chat, turns...)
	updated, err := encodePayload(e)
	if err != nil {
		return err
	}
	s.entries[id] = updated
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	delete(s.created, id)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
