package storage

import (
	"context"

	"github.com/bruecke-ai/bruecke/pkg/continuity"
	"github.com/bruecke-ai/bruecke/pkg/transport"
)

// tokenCleanupStore keeps the continuity map consistent with the response
// store: deleting a response record also removes its session token
// binding, so a deleted response can never be resumed.
type tokenCleanupStore struct {
	transport.ResponseStore
	tokens continuity.Map
}

// WithTokenCleanup wraps store so DeleteResponse also removes the
// response's continuity entry.
func WithTokenCleanup(store transport.ResponseStore, tokens continuity.Map) transport.ResponseStore {
	return &tokenCleanupStore{ResponseStore: store, tokens: tokens}
}

func (s *tokenCleanupStore) DeleteResponse(ctx context.Context, id string) error {
	if err := s.ResponseStore.DeleteResponse(ctx, id); err != nil {
		return err
	}
	return s.tokens.Delete(ctx, id)
}
