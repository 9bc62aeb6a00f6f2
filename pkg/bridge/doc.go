// Package bridge drives one agent engine turn per request and converts
// the engine's message stream into the wire protocol: a single completed
// response object, or a strictly ordered event sequence for streaming
// clients.
//
// The bridge owns the per-turn accumulation state (text buffer, running
// usage, sequence counter) and nothing else; session continuity and
// response persistence are injected collaborators. One engine session is
// opened per turn and released on every path, including cancellation.
package bridge
