// Package memory provides in-memory implementations of
// transport.ResponseStore and transport.ConversationStore for testing and
// lightweight deployments. Data is lost when the process restarts.
// Optional LRU eviction limits memory usage of the response store.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"

	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/storage"
	"github.com/bruecke-ai/bruecke/pkg/transport"
)

// entry holds a stored response and its LRU bookkeeping.
type entry struct {
	resp    *api.Response
	lruElem *list.Element
}

// Store is an in-memory ResponseStore with optional LRU eviction.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	lruList *list.List // front = most recently saved, back = oldest
	maxSize int        // 0 = unlimited
	onEvict func(id string)
}

var _ transport.ResponseStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0, the store grows
// without limit. If maxSize > 0, the oldest entry is evicted when the
// limit is reached.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		lruList: list.New(),
		maxSize: maxSize,
	}
}

// OnEvict registers fn to run whenever the size cap drops a record.
// Eviction destroys the record just like DeleteResponse does, so callers
// use the hook to release state owned by the record, typically its
// continuity entry. Must be called before the store is shared.
func (s *Store) OnEvict(fn func(id string)) {
	s.onEvict = fn
}

// SaveResponse persists a response in memory.
func (s *Store) SaveResponse(_ context.Context, resp *api.Response) error {
	s.mu.Lock()

	if _, exists := s.entries[resp.ID]; exists {
		s.mu.Unlock()
		return storage.ErrConflict
	}

	var evicted string
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		evicted = s.evictOldest()
	}

	elem := s.lruList.PushFront(resp.ID)
	s.entries[resp.ID] = &entry{resp: resp, lruElem: elem}
	s.mu.Unlock()

	// The hook runs unlocked so it may call back into the store.
	if evicted != "" && s.onEvict != nil {
		s.onEvict(evicted)
	}
	return nil
}

// GetResponse retrieves a response by ID. Returns storage.ErrNotFound if
// the response does not exist.
func (s *Store) GetResponse(_ context.Context, id string) (*api.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return e.resp, nil
}

// DeleteResponse removes a response from the store.
func (s *Store) DeleteResponse(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return storage.ErrNotFound
	}

	s.lruList.Remove(e.lruElem)
	delete(s.entries, id)
	return nil
}

// ListResponses returns a paginated list of stored responses with
// cursor-based pagination.
func (s *Store) ListResponses(_ context.Context, opts transport.ListOptions) (*transport.ResponseList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]*api.Response, 0, len(s.entries))
	for _, e := range s.entries {
		matches = append(matches, e.resp)
	}

	// Sort by created_at. Default is desc (newest first).
	asc := opts.Order == "asc"
	sort.Slice(matches, func(i, j int) bool {
		if asc {
			if matches[i].CreatedAt != matches[j].CreatedAt {
				return matches[i].CreatedAt < matches[j].CreatedAt
			}
			return matches[i].ID < matches[j].ID
		}
		if matches[i].CreatedAt != matches[j].CreatedAt {
			return matches[i].CreatedAt > matches[j].CreatedAt
		}
		return matches[i].ID > matches[j].ID
	})

	if opts.After != "" {
		idx := -1
		for i, r := range matches {
			if r.ID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			matches = matches[idx+1:]
		} else {
			matches = nil
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	hasMore := len(matches) > limit
	if hasMore {
		matches = matches[:limit]
	}

	result := &transport.ResponseList{
		Object:  "list",
		Data:    matches,
		HasMore: hasMore,
	}
	if len(matches) > 0 {
		result.FirstID = matches[0].ID
		result.LastID = matches[len(matches)-1].ID
	}
	if result.Data == nil {
		result.Data = []*api.Response{}
	}

	return result, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the oldest entry and returns its ID, or "" when
// the store is empty. Must be called with s.mu held.
func (s *Store) evictOldest() string {
	back := s.lruList.Back()
	if back == nil {
		return ""
	}

	id := back.Value.(string)
	s.lruList.Remove(back)
	delete(s.entries, id)
	return id
}
