package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bruecke-ai/bruecke/pkg/continuity"
)

// Tokens returns a continuity.Map backed by this store's session_tokens
// table. Bindings are write-once: an insert for an already-bound response
// ID reports continuity.ErrExists and leaves the original binding intact.
// The map shares the store's connection pool and lifecycle.
func (s *Store) Tokens() continuity.Map {
	return &storeTokenMap{store: s}
}

type storeTokenMap struct {
	store *Store
}

var _ continuity.Map = (*storeTokenMap)(nil)

// Put binds a response ID to a session token. Write-once.
func (m *storeTokenMap) Put(ctx context.Context, responseID, sessionToken string) error {
	result, err := m.store.pool.Exec(ctx, `
		INSERT INTO session_tokens (response_id, session_token)
		VALUES ($1, $2)
		ON CONFLICT (response_id) DO NOTHING
	`, responseID, sessionToken)
	if err != nil {
		return fmt.Errorf("inserting session token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return continuity.ErrExists
	}
	return nil
}

// Get returns the session token bound to a response ID.
func (m *storeTokenMap) Get(ctx context.Context, responseID string) (string, error) {
	var token string
	err := m.store.pool.QueryRow(ctx,
		"SELECT session_token FROM session_tokens WHERE response_id = $1",
		responseID,
	).Scan(&token)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", continuity.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying session token: %w", err)
	}
	return token, nil
}

// Delete removes a binding. Deleting an unknown response ID is a no-op.
func (m *storeTokenMap) Delete(ctx context.Context, responseID string) error {
	_, err := m.store.pool.Exec(ctx,
		"DELETE FROM session_tokens WHERE response_id = $1",
		responseID,
	)
	if err != nil {
		return fmt.Errorf("deleting session token: %w", err)
	}
	return nil
}
