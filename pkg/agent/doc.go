// Package agent adapts the external agent engine to the bridge.
//
// The engine is a separate process with a line-delimited JSON stdio
// contract. One engine session is opened per served turn; a turn may
// resume prior engine-side state via a session token but always gets a
// fresh local session handle, so no locking around a shared engine
// client is ever needed.
//
// The package exposes the engine's loosely typed message stream as a
// closed tagged union ([Message]), so consumers never inspect raw engine
// JSON. [Client] opens sessions; [CLIClient] is the production
// implementation driving the engine CLI as a subprocess.
package agent
