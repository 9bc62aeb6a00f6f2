// Package api defines the wire types for the bruecke response protocol.
//
// The package provides the data types the bridge populates and serializes:
// the Response object, its single message output item, output_text content
// parts, token usage, conversation records, streaming events with sequence
// numbers, structured errors, and ID generation.
//
// The JSON produced here is compatible with the upstream Responses API wire
// format, so existing client libraries parse it unmodified. The package has
// zero external dependencies and performs no I/O.
package api
