package memory

import (
	"context"
	"sync"

	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/storage"
	"github.com/bruecke-ai/bruecke/pkg/transport"
)

// conversation holds a conversation record and its items in append order.
type conversation struct {
	conv  *api.Conversation
	items []api.ConversationItem
}

// ConversationStore is an in-memory transport.ConversationStore.
type ConversationStore struct {
	mu    sync.RWMutex
	convs map[string]*conversation
}

var _ transport.ConversationStore = (*ConversationStore)(nil)

// NewConversationStore creates an empty in-memory conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{convs: make(map[string]*conversation)}
}

// CreateConversation persists a new conversation with its initial items.
func (s *ConversationStore) CreateConversation(_ context.Context, conv *api.Conversation, items []api.ConversationItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.convs[conv.ID]; exists {
		return storage.ErrConflict
	}

	s.convs[conv.ID] = &conversation{
		conv:  conv,
		items: append([]api.ConversationItem(nil), items...),
	}
	return nil
}

// GetConversation retrieves a conversation by ID.
func (s *ConversationStore) GetConversation(_ context.Context, id string) (*api.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.convs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return c.conv, nil
}

// UpdateConversationMetadata replaces the conversation's metadata.
func (s *ConversationStore) UpdateConversationMetadata(_ context.Context, id string, metadata map[string]any) (*api.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c.conv.Metadata = metadata
	return c.conv, nil
}

// DeleteConversation removes the conversation and all its items.
func (s *ConversationStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.convs, id)
	return nil
}

// AddItems appends items to a conversation in order.
func (s *ConversationStore) AddItems(_ context.Context, convID string, items []api.ConversationItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[convID]
	if !ok {
		return storage.ErrNotFound
	}
	c.items = append(c.items, items...)
	return nil
}

// ListItems returns the conversation's items with cursor pagination in
// append order.
func (s *ConversationStore) ListItems(_ context.Context, convID string, opts transport.ListOptions) (*transport.ItemList, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.convs[convID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	items := c.items
	if opts.Order == "desc" {
		reversed := make([]api.ConversationItem, len(items))
		for i, it := range items {
			reversed[len(items)-1-i] = it
		}
		items = reversed
	}

	if opts.After != "" {
		idx := -1
		for i, it := range items {
			if it.ID == opts.After {
				idx = i
				break
			}
		}
		if idx >= 0 {
			items = items[idx+1:]
		} else {
			items = nil
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	result := &transport.ItemList{
		Object:  "list",
		Data:    append([]api.ConversationItem(nil), items...),
		HasMore: hasMore,
	}
	if len(result.Data) > 0 {
		result.FirstID = result.Data[0].ID
		result.LastID = result.Data[len(result.Data)-1].ID
	}
	if result.Data == nil {
		result.Data = []api.ConversationItem{}
	}

	return result, nil
}

// GetItem retrieves a single item from a conversation.
func (s *ConversationStore) GetItem(_ context.Context, convID, itemID string) (*api.ConversationItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.convs[convID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	for i := range c.items {
		if c.items[i].ID == itemID {
			item := c.items[i]
			return &item, nil
		}
	}
	return nil, storage.ErrNotFound
}

// DeleteItem removes a single item from a conversation.
func (s *ConversationStore) DeleteItem(_ context.Context, convID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[convID]
	if !ok {
		return storage.ErrNotFound
	}
	for i := range c.items {
		if c.items[i].ID == itemID {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

// Close is a no-op for the in-memory store.
func (s *ConversationStore) Close() error {
	return nil
}
