package api

import "encoding/json"

// ---------------------------------------------------------------------------
// Content types
// ---------------------------------------------------------------------------

// Annotation is an annotation on output text, such as a citation. The agent
// engine never produces annotations today; the field exists so the wire
// format round-trips.
type Annotation struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	StartIndex int    `json:"start_index,omitempty"`
	EndIndex   int    `json:"end_index,omitempty"`
}

// OutputTextContent is a single output_text content part of an assistant
// message. Text grows monotonically over the life of one turn and never
// shrinks.
type OutputTextContent struct {
	Text        string       `json:"-"`
	Annotations []Annotation `json:"-"`
}

// MarshalJSON emits the fixed wire shape. Annotations are always an array,
// never null, because upstream client libraries index into them blindly.
func (c OutputTextContent) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type        string       `json:"type"`
		Text        string       `json:"text"`
		Annotations []Annotation `json:"annotations"`
	}
	w := wire{Type: "output_text", Text: c.Text, Annotations: c.Annotations}
	if w.Annotations == nil {
		w.Annotations = []Annotation{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON deserializes an output_text content part.
func (c *OutputTextContent) UnmarshalJSON(data []byte) error {
	type wire struct {
		Text        string       `json:"text"`
		Annotations []Annotation `json:"annotations"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Text = w.Text
	c.Annotations = w.Annotations
	return nil
}

// ---------------------------------------------------------------------------
// Output item
// ---------------------------------------------------------------------------

// ItemStatus is the processing status of an output item.
type ItemStatus string

const (
	ItemStatusInProgress ItemStatus = "in_progress"
	ItemStatusCompleted  ItemStatus = "completed"
)

// OutputItem is the single message item of a response. Partial statuses
// exist only inside the event stream; persisted objects always carry
// status "completed".
type OutputItem struct {
	ID      string              `json:"id"`
	Status  ItemStatus          `json:"status"`
	Content []OutputTextContent `json:"-"`
}

// MarshalJSON emits the flat message wire shape:
// {type, id, status, role, content: [...]}. Content is always an array.
func (item OutputItem) MarshalJSON() ([]byte, error) {
	type wire struct {
		Type    string              `json:"type"`
		ID      string              `json:"id"`
		Status  ItemStatus          `json:"status"`
		Role    string              `json:"role"`
		Content []OutputTextContent `json:"content"`
	}
	w := wire{Type: "message", ID: item.ID, Status: item.Status, Role: "assistant", Content: item.Content}
	if w.Content == nil {
		w.Content = []OutputTextContent{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON deserializes a message output item.
func (item *OutputItem) UnmarshalJSON(data []byte) error {
	type wire struct {
		ID      string              `json:"id"`
		Status  ItemStatus          `json:"status"`
		Content []OutputTextContent `json:"content"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	item.ID = w.ID
	item.Status = w.Status
	item.Content = w.Content
	return nil
}

// Text returns the concatenated text of all content parts.
func (item OutputItem) Text() string {
	var s string
	for _, c := range item.Content {
		s += c.Text
	}
	return s
}

// ---------------------------------------------------------------------------
// Usage
// ---------------------------------------------------------------------------

// Usage holds aggregate token usage for one turn.
// Invariant: TotalTokens == InputTokens + OutputTokens on completed responses.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ---------------------------------------------------------------------------
// Request and Response
// ---------------------------------------------------------------------------

// CreateResponseRequest is the request body for creating a response.
// Input is plain text; the engine assembles its own message structure.
type CreateResponseRequest struct {
	Model              string         `json:"model"`
	Input              string         `json:"input"`
	Stream             bool           `json:"stream,omitempty"`
	Store              *bool          `json:"store,omitempty"`
	PreviousResponseID string         `json:"previous_response_id,omitempty"`
	Temperature        *float64       `json:"temperature,omitempty"`
	MaxOutputTokens    *int           `json:"max_output_tokens,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// Stored reports whether the request asks for persistence.
// Defaults to true unless explicitly disabled.
func (r *CreateResponseRequest) Stored() bool {
	if r.Store == nil {
		return true
	}
	return *r.Store
}

// ResponseStatus is the lifecycle status of a response.
// in_progress transitions to exactly one of completed or failed, both terminal.
type ResponseStatus string

const (
	ResponseStatusInProgress ResponseStatus = "in_progress"
	ResponseStatusCompleted  ResponseStatus = "completed"
	ResponseStatusFailed     ResponseStatus = "failed"
)

// Response is the externally visible, persisted unit of one turn's output.
type Response struct {
	ID                 string         `json:"id"`
	Object             string         `json:"object"`
	CreatedAt          int64          `json:"created_at"`
	Status             ResponseStatus `json:"status"`
	Model              string         `json:"model"`
	PreviousResponseID string         `json:"previous_response_id,omitempty"`
	Output             []OutputItem   `json:"output"`
	Usage              Usage          `json:"usage"`
	Store              bool           `json:"store"`
	Metadata           map[string]any `json:"metadata"`
	Error              *APIError      `json:"error,omitempty"`
}

// OutputText returns the text of the first output item, or "" when the
// response carries no output.
func (r *Response) OutputText() string {
	if len(r.Output) == 0 {
		return ""
	}
	return r.Output[0].Text()
}

// ---------------------------------------------------------------------------
// Conversation records
// ---------------------------------------------------------------------------

// Conversation is a stored conversation record. Items are persisted with the
// record but excluded from the conversation object on the wire; clients page
// through them via the item listing.
type Conversation struct {
	ID        string         `json:"id"`
	Object    string         `json:"object"`
	CreatedAt int64          `json:"created_at"`
	Metadata  map[string]any `json:"metadata"`
}

// ConversationItem is one entry in a conversation's item list. The payload
// is kept opaque: items round-trip whatever shape the caller appended.
type ConversationItem struct {
	ID        string          `json:"id"`
	CreatedAt int64           `json:"created_at"`
	Payload   json.RawMessage `json:"-"`
}

// MarshalJSON flattens the opaque payload into the item object, with id and
// created_at taking precedence over any payload fields of the same name.
func (it ConversationItem) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	if len(it.Payload) > 0 {
		if err := json.Unmarshal(it.Payload, &m); err != nil {
			return nil, err
		}
	}
	m["id"] = it.ID
	m["created_at"] = it.CreatedAt
	return json.Marshal(m)
}

// UnmarshalJSON captures id and created_at and keeps the full object as the
// opaque payload.
func (it *ConversationItem) UnmarshalJSON(data []byte) error {
	var head struct {
		ID        string `json:"id"`
		CreatedAt int64  `json:"created_at"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	it.ID = head.ID
	it.CreatedAt = head.CreatedAt
	it.Payload = append(json.RawMessage(nil), data...)
	return nil
}
