package agent

import (
	"context"
	"errors"
)

// ErrEngineUnavailable indicates the engine session could not be opened or
// the turn's input could not be submitted. The bridge converts it into a
// terminal failed response before any stream event is emitted.
var ErrEngineUnavailable = errors.New("agent engine unavailable")

// OpenOptions configures one engine session.
type OpenOptions struct {
	// Model selects the engine model for this turn.
	Model string

	// ResumeToken resumes prior engine-side state. Empty means a new
	// session; an unknown token is the engine's problem, not ours.
	ResumeToken string

	// Streaming requests partial-message delivery from the engine.
	// It must be set only for streaming turns: requesting it
	// unconditionally would leak Delta records into the non-streaming
	// path and double-count text.
	Streaming bool

	// AllowedTools restricts which tools the engine may run.
	AllowedTools []string

	// PermissionMode is passed through to the engine (e.g. "acceptEdits").
	PermissionMode string
}

// Client opens engine sessions. Implementations must be safe for concurrent
// use; every Open call yields an independent session.
type Client interface {
	Open(ctx context.Context, opts OpenOptions) (Session, error)
}

// Session is one engine connection serving exactly one turn.
//
// The message channel is finite: it is closed when the engine signals turn
// completion (or the session dies). After the channel closes, Err reports
// any stream failure. Close is idempotent and must be called on all paths,
// including cancellation.
type Session interface {
	// Submit sends the turn's input text to the engine.
	Submit(ctx context.Context, input string) error

	// Messages returns the engine's message sequence as tagged records.
	Messages() <-chan Message

	// Err returns the stream error, if any, once Messages is closed.
	Err() error

	// Close releases the engine connection. Safe to call more than once.
	Close() error
}
