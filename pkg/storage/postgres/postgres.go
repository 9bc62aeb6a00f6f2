// Package postgres provides PostgreSQL implementations of
// transport.ResponseStore and continuity.Map. It uses pgx/v5 for
// connection pooling and JSONB for structured output storage.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/storage"
	"github.com/bruecke-ai/bruecke/pkg/transport"
)

// Store is a PostgreSQL-backed ResponseStore.
type Store struct {
	pool *pgxpool.Pool
}

var _ transport.ResponseStore = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg.defaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return s, nil
}

// SaveResponse persists a completed response.
func (s *Store) SaveResponse(ctx context.Context, resp *api.Response) error {
	outputJSON, err := json.Marshal(resp.Output)
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}

	var metadataJSON []byte
	if resp.Metadata != nil {
		metadataJSON, err = json.Marshal(resp.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	var errorJSON []byte
	if resp.Error != nil {
		errorJSON, err = json.Marshal(resp.Error)
		if err != nil {
			return fmt.Errorf("marshaling error: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO responses (
			id, status, model, previous_response_id, output,
			usage_input_tokens, usage_output_tokens, usage_total_tokens,
			metadata, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		resp.ID, string(resp.Status), resp.Model, nullString(resp.PreviousResponseID), outputJSON,
		resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.TotalTokens,
		nullJSON(metadataJSON), nullJSON(errorJSON), resp.CreatedAt,
	)

	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting response: %w", err)
	}

	return nil
}

// GetResponse retrieves a response by ID, excluding soft-deleted rows.
func (s *Store) GetResponse(ctx context.Context, id string) (*api.Response, error) {
	var resp api.Response
	var status string
	var prevID *string
	var outputJSON []byte
	var metadataJSON, errorJSON *[]byte

	err := s.pool.QueryRow(ctx, `
		SELECT id, status, model, previous_response_id, output,
		       usage_input_tokens, usage_output_tokens, usage_total_tokens,
		       metadata, error, created_at
		FROM responses
		WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(
		&resp.ID, &status, &resp.Model, &prevID, &outputJSON,
		&resp.Usage.InputTokens, &resp.Usage.OutputTokens, &resp.Usage.TotalTokens,
		&metadataJSON, &errorJSON, &resp.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying response: %w", err)
	}

	resp.Object = "response"
	resp.Status = api.ResponseStatus(status)
	resp.Store = true
	if prevID != nil {
		resp.PreviousResponseID = *prevID
	}

	if err := json.Unmarshal(outputJSON, &resp.Output); err != nil {
		return nil, fmt.Errorf("unmarshaling output: %w", err)
	}

	if metadataJSON != nil {
		if err := json.Unmarshal(*metadataJSON, &resp.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}

	if errorJSON != nil {
		var apiErr api.APIError
		if err := json.Unmarshal(*errorJSON, &apiErr); err == nil {
			resp.Error = &apiErr
		}
	}

	return &resp, nil
}

// DeleteResponse soft-deletes a response by setting deleted_at.
func (s *Store) DeleteResponse(ctx context.Context, id string) error {
	result, err := s.pool.Exec(ctx,
		"UPDATE responses SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL",
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("deleting response: %w", err)
	}

	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// ListResponses returns a paginated list of stored responses ordered by
// created_at. The After cursor is resolved to its (created_at, id) position
// so pagination stays stable while new responses arrive.
func (s *Store) ListResponses(ctx context.Context, opts transport.ListOptions) (*transport.ResponseList, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	asc := opts.Order == "asc"

	query := `
		SELECT id, status, model, previous_response_id, output,
		       usage_input_tokens, usage_output_tokens, usage_total_tokens,
		       metadata, error, created_at
		FROM responses
		WHERE deleted_at IS NULL
	`
	args := []any{}

	if opts.After != "" {
		var cursorCreatedAt int64
		err := s.pool.QueryRow(ctx,
			"SELECT created_at FROM responses WHERE id = $1", opts.After,
		).Scan(&cursorCreatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return &transport.ResponseList{Object: "list", Data: []*api.Response{}}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("resolving cursor: %w", err)
		}

		if asc {
			query += " AND (created_at, id) > ($1, $2)"
		} else {
			query += " AND (created_at, id) < ($1, $2)"
		}
		args = append(args, cursorCreatedAt, opts.After)
	}

	if asc {
		query += " ORDER BY created_at ASC, id ASC"
	} else {
		query += " ORDER BY created_at DESC, id DESC"
	}
	query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
	args = append(args, limit+1) // one extra row to detect has_more

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing responses: %w", err)
	}
	defer rows.Close()

	var matches []*api.Response
	for rows.Next() {
		var resp api.Response
		var status string
		var prevID *string
		var outputJSON []byte
		var metadataJSON, errorJSON *[]byte

		if err := rows.Scan(
			&resp.ID, &status, &resp.Model, &prevID, &outputJSON,
			&resp.Usage.InputTokens, &resp.Usage.OutputTokens, &resp.Usage.TotalTokens,
			&metadataJSON, &errorJSON, &resp.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning response: %w", err)
		}

		resp.Object = "response"
		resp.Status = api.ResponseStatus(status)
		resp.Store = true
		if prevID != nil {
			resp.PreviousResponseID = *prevID
		}
		if err := json.Unmarshal(outputJSON, &resp.Output); err != nil {
			return nil, fmt.Errorf("unmarshaling output: %w", err)
		}
		if metadataJSON != nil {
			if err := json.Unmarshal(*metadataJSON, &resp.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshaling metadata: %w", err)
			}
		}
		if errorJSON != nil {
			var apiErr api.APIError
			if err := json.Unmarshal(*errorJSON, &apiErr); err == nil {
				resp.Error = &apiErr
			}
		}

		matches = append(matches, &resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating responses: %w", err)
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

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// nullString converts an empty string to nil for nullable TEXT columns.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullJSON converts nil/empty byte slices to nil for nullable JSONB columns.
func nullJSON(b []byte) *[]byte {
	if len(b) == 0 {
		return nil
	}
	return &b
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
