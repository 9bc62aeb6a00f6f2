package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/transport"
)

// createConversationRequest is the body of POST /v1/conversations. Items
// are opaque objects appended to the conversation in order.
type createConversationRequest struct {
	Metadata map[string]any    `json:"metadata,omitempty"`
	Items    []json.RawMessage `json:"items,omitempty"`
}

// updateConversationRequest is the body of POST /v1/conversations/{id}.
type updateConversationRequest struct {
	Metadata map[string]any `json:"metadata"`
}

// addItemsRequest is the body of POST /v1/conversations/{id}/items.
type addItemsRequest struct {
	Items []json.RawMessage `json:"items"`
}

// requireConversations guards conversation endpoints when no store is
// configured.
func (a *Adapter) requireConversations(w http.ResponseWriter) bool {
	if a.conversations == nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("", "conversations are not available (no store configured)"),
			http.StatusNotImplemented,
		)
		return false
	}
	return true
}

// newItems stamps fresh IDs and timestamps onto raw item payloads.
func newItems(raw []json.RawMessage) []api.ConversationItem {
	now := time.Now().Unix()
	items := make([]api.ConversationItem, len(raw))
	for i, payload := range raw {
		items[i] = api.ConversationItem{
			ID:        api.NewItemID(),
			CreatedAt: now,
			Payload:   payload,
		}
	}
	return items
}

// handleCreateConversation handles POST /v1/conversations.
func (a *Adapter) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	if !a.requireConversations(w) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	conv := &api.Conversation{
		ID:        api.NewConversationID(),
		Object:    "conversation",
		CreatedAt: time.Now().Unix(),
		Metadata:  req.Metadata,
	}
	if err := a.conversations.CreateConversation(r.Context(), conv, newItems(req.Items)); err != nil {
		a.writeStoreError(w, err, "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}

// handleGetConversation handles GET /v1/conversations/{id}.
func (a *Adapter) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	if !a.requireConversations(w) {
		return
	}

	id := r.PathValue("id")
	if !api.ValidateConversationID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed conversation ID"),
			http.StatusBadRequest,
		)
		return
	}

	conv, err := a.conversations.GetConversation(r.Context(), id)
	if err != nil {
		a.writeStoreError(w, err, "conversation "+id+" not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}

// handleUpdateConversation handles POST /v1/conversations/{id}.
func (a *Adapter) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	if !a.requireConversations(w) {
		return
	}

	id := r.PathValue("id")
	if !api.ValidateConversationID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed conversation ID"),
			http.StatusBadRequest,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	var req updateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	conv, err := a.conversations.UpdateConversationMetadata(r.Context(), id, req.Metadata)
	if err != nil {
		a.writeStoreError(w, err, "conversation "+id+" not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}

// handleDeleteConversation handles DELETE /v1/conversations/{id}.
func (a *Adapter) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if !a.requireConversations(w) {
		return
	}

	id := r.PathValue("id")
	if !api.ValidateConversationID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed conversation ID"),
			http.StatusBadRequest,
		)
		return
	}

	if err := a.conversations.DeleteConversation(r.Context(), id); err != nil {
		a.writeStoreError(w, err, "conversation "+id+" not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleAddItems handles POST /v1/conversations/{id}/items.
func (a *Adapter) handleAddItems(w http.ResponseWriter, r *http.Request) {
	if !a.requireConversations(w) {
		return
	}

	id := r.PathValue("id")
	if !api.ValidateConversationID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed conversation ID"),
			http.StatusBadRequest,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	var req addItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}
	if len(req.Items) == 0 {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("items", "at least one item is required"),
			http.StatusBadRequest,
		)
		return
	}

	items := newItems(req.Items)
	if err := a.conversations.AddItems(r.Context(), id, items); err != nil {
		a.writeStoreError(w, err, "conversation "+id+" not found")
		return
	}

	var first, last string
	if len(items) > 0 {
		first, last = items[0].ID, items[len(items)-1].ID
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(&transport.ItemList{
		Object:  "list",
		Data:    items,
		FirstID: first,
		LastID:  last,
	})
}

// handleListItems handles GET /v1/conversations/{id}/items.
func (a *Adapter) handleListItems(w http.ResponseWriter, r *http.Request) {
	if !a.requireConversations(w) {
		return
	}

	id := r.PathValue("id")
	if !api.ValidateConversationID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed conversation ID"),
			http.StatusBadRequest,
		)
		return
	}

	opts, optErr := parseListOptions(r)
	if optErr != nil {
		transport.WriteErrorResponse(w, optErr, http.StatusBadRequest)
		return
	}

	list, err := a.conversations.ListItems(r.Context(), id, opts)
	if err != nil {
		a.writeStoreError(w, err, "conversation "+id+" not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

// handleGetItem handles GET /v1/conversations/{id}/items/{item_id}.
func (a *Adapter) handleGetItem(w http.ResponseWriter, r *http.Request) {
	if !a.requireConversations(w) {
		return
	}

	id := r.PathValue("id")
	itemID := r.PathValue("item_id")
	if !api.ValidateConversationID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed conversation ID"),
			http.StatusBadRequest,
		)
		return
	}

	item, err := a.conversations.GetItem(r.Context(), id, itemID)
	if err != nil {
		a.writeStoreError(w, err, "item "+itemID+" not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(item)
}

// handleDeleteItem handles DELETE /v1/conversations/{id}/items/{item_id}.
func (a *Adapter) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if !a.requireConversations(w) {
		return
	}

	id := r.PathValue("id")
	itemID := r.PathValue("item_id")
	if !api.ValidateConversationID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed conversation ID"),
			http.StatusBadRequest,
		)
		return
	}

	if err := a.conversations.DeleteItem(r.Context(), id, itemID); err != nil {
		a.writeStoreError(w, err, "item "+itemID+" not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
