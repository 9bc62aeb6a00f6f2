package api

// StreamEventType identifies the type of a streaming event.
type StreamEventType string

// Delta events convey incremental content while a turn is in flight.
const (
	EventOutputItemAdded  StreamEventType = "response.output_item.added"
	EventContentPartAdded StreamEventType = "response.content_part.added"
	EventOutputTextDelta  StreamEventType = "response.output_text.delta"
	EventOutputTextDone   StreamEventType = "response.output_text.done"
	EventContentPartDone  StreamEventType = "response.content_part.done"
	EventOutputItemDone   StreamEventType = "response.output_item.done"
)

// Lifecycle events track the state of the response as a whole.
const (
	EventResponseCreated    StreamEventType = "response.created"
	EventResponseInProgress StreamEventType = "response.in_progress"
	EventResponseCompleted  StreamEventType = "response.completed"
	EventResponseFailed     StreamEventType = "response.failed"
)

// Terminal reports whether an event of this type ends the stream.
func (t StreamEventType) Terminal() bool {
	return t == EventResponseCompleted || t == EventResponseFailed
}

// StreamEvent is a single server-sent event of a streaming response.
// SequenceNumber is strictly monotonically increasing from 0 within one
// turn, with no gaps or reordering.
type StreamEvent struct {
	Type           StreamEventType    `json:"type"`
	SequenceNumber int                `json:"sequence_number"`
	Response       *Response          `json:"response,omitempty"`
	Item           *OutputItem        `json:"item,omitempty"`
	Part           *OutputTextContent `json:"part,omitempty"`
	Delta          string             `json:"delta,omitempty"`
	// Text always serializes: response.output_text.done carries the text
	// key even when the turn produced no output.
	Text         string `json:"text"`
	ItemID       string `json:"item_id,omitempty"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
}
