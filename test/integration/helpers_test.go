// Package integration exercises the full HTTP surface of the bridge:
// real routing, middleware, SSE framing, and persistence, with only the
// engine subprocess replaced by a scripted client.
package integration

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bruecke-ai/bruecke/pkg/agent"
	"github.com/bruecke-ai/bruecke/pkg/agent/agenttest"
	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/bridge"
	"github.com/bruecke-ai/bruecke/pkg/continuity"
	"github.com/bruecke-ai/bruecke/pkg/observability"
	"github.com/bruecke-ai/bruecke/pkg/storage"
	"github.com/bruecke-ai/bruecke/pkg/storage/memory"
	"github.com/bruecke-ai/bruecke/pkg/transport"
	transporthttp "github.com/bruecke-ai/bruecke/pkg/transport/http"
)

// env is one fully wired server instance with a scripted engine.
type env struct {
	client *agenttest.Client
	tokens *continuity.Memory
	store  *memory.Store
	srv    *httptest.Server
}

// newEnv wires a bridge with the given scripted turns behind a real HTTP
// server, matching the production middleware stack.
func newEnv(t *testing.T, turns ...agenttest.Turn) *env {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	client := agenttest.NewClient(turns...)
	tokens := continuity.NewMemory()
	store := memory.New(100)
	store.OnEvict(func(id string) {
		tokens.Delete(context.Background(), id)
	})
	conversations := memory.NewConversationStore()
	responses := storage.WithTokenCleanup(store, tokens)

	b := bridge.New(client, tokens, responses, bridge.Config{DefaultModel: "mock-model"}, logger)

	adapter := transporthttp.NewAdapter(b, responses, conversations, transporthttp.DefaultConfig(),
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(logger),
		observability.TurnMetrics(),
	)
	srv := httptest.NewServer(adapter.Handler())
	t.Cleanup(srv.Close)

	return &env{client: client, tokens: tokens, store: store, srv: srv}
}

// Message shorthands for scripting turns.

func resultMsg(in, out int, token string) agent.Message {
	return agent.Message{Kind: agent.KindResult, InputTokens: in, OutputTokens: out, SessionToken: token}
}

func deltaMsg(text string) agent.Message {
	return agent.Message{Kind: agent.KindDelta, Text: text}
}

func fragmentMsg(text string) agent.Message {
	return agent.Message{Kind: agent.KindTextFragment, Text: text}
}

// --- HTTP helpers ---

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) *api.Response {
	t.Helper()
	defer resp.Body.Close()
	var out api.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return &out
}

func decodeAPIError(t *testing.T, resp *http.Response) *api.APIError {
	t.Helper()
	defer resp.Body.Close()
	var wrapper struct {
		Error *api.APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		t.Fatalf("decoding error response: %v", err)
	}
	if wrapper.Error == nil {
		t.Fatal("error body missing error object")
	}
	return wrapper.Error
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	Name  string
	Event api.StreamEvent
}

// readSSE consumes an SSE body into parsed events, and reports whether the
// [DONE] sentinel arrived.
func readSSE(t *testing.T, body io.Reader) (events []sseEvent, done bool) {
	t.Helper()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var name string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				done = true
				continue
			}
			var event api.StreamEvent
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				t.Fatalf("parsing SSE data %q: %v", data, err)
			}
			events = append(events, sseEvent{Name: name, Event: event})
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("reading SSE body: %v", err)
	}
	return events, done
}
