package agent

// MessageKind tags an engine message record.
type MessageKind string

const (
	// KindTextFragment is a complete text block from the engine's final
	// assistant turn. Used as a fallback when no incremental fragments
	// arrived (engine ran without partial-message delivery, or tools only).
	KindTextFragment MessageKind = "text_fragment"

	// KindDelta is an incremental text fragment of the in-progress
	// assistant turn. Arrival order is the truth order for the final text.
	KindDelta MessageKind = "delta"

	// KindResult carries terminal per-turn metadata: token usage and the
	// engine session token. At most one is expected per turn; the record
	// sequence may continue after it (tool traffic) until it ends
	// naturally.
	KindResult MessageKind = "result"

	// KindOther covers engine traffic the bridge drains but never
	// surfaces: tool invocations, tool results, system notices.
	KindOther MessageKind = "other"
)

// Message is one tagged record of an engine session's message sequence.
// Only the fields matching the Kind are populated.
type Message struct {
	Kind MessageKind

	// Text is set for KindTextFragment and KindDelta.
	Text string

	// Usage and session token, set for KindResult.
	InputTokens  int
	OutputTokens int
	SessionToken string
}
