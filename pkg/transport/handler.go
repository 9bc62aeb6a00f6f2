package transport

import (
	"context"

	"github.com/bruecke-ai/bruecke/pkg/api"
)

// ResponseCreator handles the core create-response operation. The
// implementation receives a request and writes the result (streaming
// events or a complete response) to the ResponseWriter.
type ResponseCreator interface {
	CreateResponse(ctx context.Context, req *api.CreateResponseRequest, w ResponseWriter) error
}

// ResponseCreatorFunc is an adapter that allows using an ordinary function
// as a ResponseCreator.
type ResponseCreatorFunc func(ctx context.Context, req *api.CreateResponseRequest, w ResponseWriter) error

// CreateResponse calls f(ctx, req, w).
func (f ResponseCreatorFunc) CreateResponse(ctx context.Context, req *api.CreateResponseRequest, w ResponseWriter) error {
	return f(ctx, req, w)
}

// ListOptions controls pagination and ordering for list operations.
type ListOptions struct {
	After string // Cursor: return items after this ID.
	Limit int    // Maximum number of items to return (default 20, max 100).
	Order string // Sort order: "asc" or "desc" (default "desc").
}

// ResponseList holds a paginated list of responses.
type ResponseList struct {
	Object  string          `json:"object"`
	Data    []*api.Response `json:"data"`
	HasMore bool            `json:"has_more"`
	FirstID string          `json:"first_id"`
	LastID  string          `json:"last_id"`
}

// ItemList holds a paginated list of conversation items.
type ItemList struct {
	Object  string                 `json:"object"`
	Data    []api.ConversationItem `json:"data"`
	HasMore bool                   `json:"has_more"`
	FirstID string                 `json:"first_id"`
	LastID  string                 `json:"last_id"`
}

// ResponseStore handles persistence, retrieval, and deletion of stored
// responses.
type ResponseStore interface {
	// SaveResponse persists a completed response to the store.
	SaveResponse(ctx context.Context, resp *api.Response) error

	// GetResponse retrieves a response by ID. Returns storage.ErrNotFound
	// if the response does not exist or has been deleted.
	GetResponse(ctx context.Context, id string) (*api.Response, error)

	// DeleteResponse deletes a response by ID.
	DeleteResponse(ctx context.Context, id string) error

	// ListResponses returns a paginated list of stored responses.
	ListResponses(ctx context.Context, opts ListOptions) (*ResponseList, error)

	// HealthCheck verifies the store connection is functional.
	HealthCheck(ctx context.Context) error

	// Close releases database connections and resources.
	Close() error
}

// ConversationStore handles conversation records and their items.
type ConversationStore interface {
	// CreateConversation persists a new conversation, optionally with
	// initial items. Returns storage.ErrConflict if the ID exists.
	CreateConversation(ctx context.Context, conv *api.Conversation, items []api.ConversationItem) error

	// GetConversation retrieves a conversation by ID.
	GetConversation(ctx context.Context, id string) (*api.Conversation, error)

	// UpdateConversationMetadata replaces the conversation's metadata.
	UpdateConversationMetadata(ctx context.Context, id string, metadata map[string]any) (*api.Conversation, error)

	// DeleteConversation removes the conversation and all its items.
	DeleteConversation(ctx context.Context, id string) error

	// AddItems appends items to a conversation in order.
	AddItems(ctx context.Context, convID string, items []api.ConversationItem) error

	// ListItems returns the conversation's items with cursor pagination.
	ListItems(ctx context.Context, convID string, opts ListOptions) (*ItemList, error)

	// GetItem retrieves a single item from a conversation.
	GetItem(ctx context.Context, convID, itemID string) (*api.ConversationItem, error)

	// DeleteItem removes a single item from a conversation.
	DeleteItem(ctx context.Context, convID, itemID string) error

	// Close releases database connections and resources.
	Close() error
}

// ResponseWriter abstracts streaming and non-streaming output for the
// handler. The transport layer creates a ResponseWriter for each request
// and provides it to the handler. The handler uses WriteEvent for
// streaming responses or WriteResponse for non-streaming responses.
//
// WriteEvent and WriteResponse are mutually exclusive on a single writer
// instance. Calling WriteEvent after WriteResponse (or vice versa) returns
// an error, as does WriteEvent after a terminal event.
type ResponseWriter interface {
	// WriteEvent sends a single streaming event. Returns an error if
	// called after a terminal event or after WriteResponse.
	WriteEvent(ctx context.Context, event api.StreamEvent) error

	// WriteResponse sends a complete non-streaming response. Returns an
	// error if called after WriteEvent on this writer.
	WriteResponse(ctx context.Context, resp *api.Response) error

	// Flush ensures buffered data is sent to the client. Returns an
	// error if the client has disconnected.
	Flush() error
}
