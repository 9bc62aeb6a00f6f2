// Package storage provides sentinel errors shared across storage adapter
// implementations.
//
// Storage adapters (memory, postgres, sqlite) implement the
// transport.ResponseStore and transport.ConversationStore interfaces
// defined in pkg/transport/handler.go. This package contains only shared
// types, not the interfaces themselves.
package storage
