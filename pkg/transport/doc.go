// Package transport defines the handler interfaces and middleware chain
// for the bridge's HTTP/SSE transport layer.
//
// The transport layer sits between external clients and the response
// bridge. It deserializes incoming requests into the wire types defined
// in pkg/api, dispatches them for processing, and serializes results
// back to the client in either synchronous (JSON) or streaming (SSE)
// format.
//
// # Handler Interfaces
//
// ResponseCreator is the contract the bridge implements: one call per
// create-response operation, writing either a complete response or a
// stream of events to a ResponseWriter. ResponseStore and
// ConversationStore cover retrieval, listing, and deletion of persisted
// records.
//
// # Middleware
//
// The middleware chain wraps ResponseCreator with cross-cutting
// concerns: panic recovery, request ID assignment (X-Request-ID), and
// structured logging via log/slog. Metrics middleware lives in
// pkg/observability and composes the same way.
package transport
