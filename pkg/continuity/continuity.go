// Package continuity maps response IDs to engine session tokens.
//
// Every stored response that finished with an engine session token gets
// one entry; a later request naming that response as its predecessor
// resumes the engine from the token. Entries are write-once: a response
// ID is bound to exactly one token for its lifetime.
package continuity

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotFound indicates no token is bound to the response ID.
	ErrNotFound = errors.New("continuity: entry not found")

	// ErrExists indicates the response ID is already bound.
	ErrExists = errors.New("continuity: entry already exists")
)

// Map binds response IDs to engine session tokens. Implementations must
// be safe for concurrent use.
type Map interface {
	// Put binds responseID to sessionToken. Binding an existing ID
	// returns ErrExists; the original token is kept.
	Put(ctx context.Context, responseID, sessionToken string) error

	// Get returns the token bound to responseID, or ErrNotFound.
	Get(ctx context.Context, responseID string) (string, error)

	// Delete removes the binding for responseID. Deleting an unknown
	// ID is a no-op.
	Delete(ctx context.Context, responseID string) error
}

// Memory is an in-process Map.
type Memory struct {
	mu     sync.RWMutex
	tokens map[string]string
}

var _ Map = (*Memory)(nil)

// NewMemory creates an empty in-process map.
func NewMemory() *Memory {
	return &Memory{tokens: make(map[string]string)}
}

func (m *Memory) Put(_ context.Context, responseID, sessionToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[responseID]; ok {
		return ErrExists
	}
	m.tokens[responseID] = sessionToken
	return nil
}

func (m *Memory) Get(_ context.Context, responseID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[responseID]
	if !ok {
		return "", ErrNotFound
	}
	return token, nil
}

func (m *Memory) Delete(_ context.Context, responseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, responseID)
	return nil
}
