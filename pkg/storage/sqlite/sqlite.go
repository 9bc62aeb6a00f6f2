// Package sqlite provides a SQLite implementation of
// transport.ConversationStore using the pure-Go modernc.org/sqlite driver.
// It suits single-node deployments that want conversations to survive
// restarts without running a database server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/storage"
	"github.com/bruecke-ai/bruecke/pkg/transport"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	metadata TEXT
);

CREATE TABLE IF NOT EXISTS conversation_items (
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (conversation_id, id)
);

CREATE INDEX IF NOT EXISTS idx_items_conversation
	ON conversation_items (conversation_id);
`

// ConversationStore is a SQLite-backed transport.ConversationStore.
type ConversationStore struct {
	db *sql.DB
}

var _ transport.ConversationStore = (*ConversationStore)(nil)

// Open opens (or creates) a SQLite conversation store at path. Use
// ":memory:" for an ephemeral store.
func Open(path string) (*ConversationStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// The sqlite driver serializes writes per connection; a single
	// connection avoids SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &ConversationStore{db: db}, nil
}

// CreateConversation persists a new conversation with its initial items.
func (s *ConversationStore) CreateConversation(ctx context.Context, conv *api.Conversation, items []api.ConversationItem) error {
	metadataJSON, err := marshalMetadata(conv.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO conversations (id, created_at, metadata) VALUES (?, ?, ?)",
		conv.ID, conv.CreatedAt, metadataJSON,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	for _, item := range items {
		if err := insertItem(ctx, tx, conv.ID, item); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetConversation retrieves a conversation by ID.
func (s *ConversationStore) GetConversation(ctx context.Context, id string) (*api.Conversation, error) {
	var conv api.Conversation
	var metadataJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		"SELECT id, created_at, metadata FROM conversations WHERE id = ?", id,
	).Scan(&conv.ID, &conv.CreatedAt, &metadataJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	conv.Object = "conversation"
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &conv.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	return &conv, nil
}

// UpdateConversationMetadata replaces the conversation's metadata.
func (s *ConversationStore) UpdateConversationMetadata(ctx context.Context, id string, metadata map[string]any) (*api.Conversation, error) {
	metadataJSON, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE conversations SET metadata = ? WHERE id = ?",
		metadataJSON, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating conversation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, storage.ErrNotFound
	}

	return s.GetConversation(ctx, id)
}

// DeleteConversation removes the conversation and all its items.
func (s *ConversationStore) DeleteConversation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM conversations WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddItems appends items to a conversation in order.
func (s *ConversationStore) AddItems(ctx context.Context, convID string, items []api.ConversationItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM conversations WHERE id = ?)", convID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking conversation: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}

	for _, item := range items {
		if err := insertItem(ctx, tx, convID, item); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListItems returns the conversation's items with cursor pagination.
// Items are ordered by insertion (rowid); the After cursor is resolved to
// its rowid so pagination stays stable while items are appended.
func (s *ConversationStore) ListItems(ctx context.Context, convID string, opts transport.ListOptions) (*transport.ItemList, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM conversations WHERE id = ?)", convID,
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking conversation: %w", err)
	}
	if !exists {
		return nil, storage.ErrNotFound
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	desc := opts.Order == "desc"

	query := "SELECT id, created_at, payload FROM conversation_items WHERE conversation_id = ?"
	args := []any{convID}

	if opts.After != "" {
		var cursorRowid int64
		err := s.db.QueryRowContext(ctx,
			"SELECT rowid FROM conversation_items WHERE conversation_id = ? AND id = ?",
			convID, opts.After,
		).Scan(&cursorRowid)
		if errors.Is(err, sql.ErrNoRows) {
			return &transport.ItemList{Object: "list", Data: []api.ConversationItem{}}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("resolving cursor: %w", err)
		}
		if desc {
			query += " AND rowid < ?"
		} else {
			query += " AND rowid > ?"
		}
		args = append(args, cursorRowid)
	}

	if desc {
		query += " ORDER BY rowid DESC"
	} else {
		query += " ORDER BY rowid ASC"
	}
	query += " LIMIT ?"
	args = append(args, limit+1) // one extra row to detect has_more

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []api.ConversationItem
	for rows.Next() {
		var item api.ConversationItem
		var payload string
		if err := rows.Scan(&item.ID, &item.CreatedAt, &payload); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		item.Payload = json.RawMessage(payload)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	result := &transport.ItemList{
		Object:  "list",
		Data:    items,
		HasMore: hasMore,
	}
	if len(items) > 0 {
		result.FirstID = items[0].ID
		result.LastID = items[len(items)-1].ID
	}
	if result.Data == nil {
		result.Data = []api.ConversationItem{}
	}

	return result, nil
}

// GetItem retrieves a single item from a conversation.
func (s *ConversationStore) GetItem(ctx context.Context, convID, itemID string) (*api.ConversationItem, error) {
	var item api.ConversationItem
	var payload string

	err := s.db.QueryRowContext(ctx,
		"SELECT id, created_at, payload FROM conversation_items WHERE conversation_id = ? AND id = ?",
		convID, itemID,
	).Scan(&item.ID, &item.CreatedAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying item: %w", err)
	}

	item.Payload = json.RawMessage(payload)
	return &item, nil
}

// DeleteItem removes a single item from a conversation.
func (s *ConversationStore) DeleteItem(ctx context.Context, convID, itemID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM conversation_items WHERE conversation_id = ? AND id = ?",
		convID, itemID,
	)
	if err != nil {
		return fmt.Errorf("deleting item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close closes the underlying database.
func (s *ConversationStore) Close() error {
	return s.db.Close()
}

// HealthCheck verifies the database is reachable.
func (s *ConversationStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func insertItem(ctx context.Context, tx *sql.Tx, convID string, item api.ConversationItem) error {
	payload := item.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO conversation_items (conversation_id, id, created_at, payload) VALUES (?, ?, ?, ?)",
		convID, item.ID, item.CreatedAt, string(payload),
	)
	if err != nil {
		return fmt.Errorf("inserting item %s: %w", item.ID, err)
	}
	return nil
}

func marshalMetadata(metadata map[string]any) (sql.NullString, error) {
	if metadata == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshaling metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// isConstraintViolation reports whether err is a SQLite constraint error.
// modernc.org/sqlite surfaces SQLITE_CONSTRAINT codes in the message.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "SQLITE_CONSTRAINT")
}
