package api

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestOutputTextContent_MarshalEmptyAnnotations(t *testing.T) {
	data, err := json.Marshal(OutputTextContent{Text: "hello"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"annotations":[]`) {
		t.Errorf("annotations must serialize as empty array, got %s", s)
	}
	if !strings.Contains(s, `"type":"output_text"`) {
		t.Errorf("missing output_text type, got %s", s)
	}
}

func TestOutputItem_MarshalWireShape(t *testing.T) {
	item := OutputItem{
		ID:      "msg_abc",
		Status:  ItemStatusCompleted,
		Content: []OutputTextContent{{Text: "hi"}},
	}
	data, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var w map[string]any
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if w["type"] != "message" {
		t.Errorf("type = %v, want message", w["type"])
	}
	if w["role"] != "assistant" {
		t.Errorf("role = %v, want assistant", w["role"])
	}
	if w["status"] != "completed" {
		t.Errorf("status = %v, want completed", w["status"])
	}
}

func TestOutputItem_RoundTrip(t *testing.T) {
	orig := OutputItem{
		ID:      "msg_roundtrip",
		Status:  ItemStatusCompleted,
		Content: []OutputTextContent{{Text: "Hello there!"}},
	}
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got OutputItem
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != orig.ID || got.Status != orig.Status {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.Text() != "Hello there!" {
		t.Errorf("text = %q, want %q", got.Text(), "Hello there!")
	}
}

func TestResponse_MarshalEmptyOutput(t *testing.T) {
	resp := Response{
		ID:     "resp_x",
		Object: "response",
		Status: ResponseStatusInProgress,
		Output: []OutputItem{},
	}
	data, err := json.Marshal(&resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"output":[]`) {
		t.Errorf("in_progress skeleton must carry an empty output array, got %s", data)
	}
}

func TestCreateResponseRequest_StoredDefault(t *testing.T) {
	var req CreateResponseRequest
	if !req.Stored() {
		t.Error("store must default to true")
	}

	f := false
	req.Store = &f
	if req.Stored() {
		t.Error("explicit store=false ignored")
	}
}

func TestConversationItem_RoundTrip(t *testing.T) {
	raw := json.RawMessage(`{"type":"message","role":"user","content":"hi"}`)
	it := ConversationItem{ID: "item_1", CreatedAt: 1700000000, Payload: raw}

	data, err := json.Marshal(it)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got ConversationItem
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != "item_1" || got.CreatedAt != 1700000000 {
		t.Errorf("head fields lost: %+v", got)
	}

	var payload map[string]any
	if err := json.Unmarshal(got.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["role"] != "user" {
		t.Errorf("payload role = %v, want user", payload["role"])
	}
}

func TestUsageArithmetic(t *testing.T) {
	u := Usage{InputTokens: 10, OutputTokens: 25, TotalTokens: 35}
	if u.TotalTokens != u.InputTokens+u.OutputTokens {
		t.Error("usage invariant violated")
	}
}
