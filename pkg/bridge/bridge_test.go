package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bruecke-ai/bruecke/pkg/agent"
	"github.com/bruecke-ai/bruecke/pkg/agent/agenttest"
	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/continuity"
	"github.com/bruecke-ai/bruecke/pkg/storage"
	"github.com/bruecke-ai/bruecke/pkg/transport"
)

// captureWriter records everything the bridge writes. onEvent, when set,
// runs after each recorded event (used to coordinate cancellation tests).
type captureWriter struct {
	mu      sync.Mutex
	events  []api.StreamEvent
	resp    *api.Response
	onEvent func(ev api.StreamEvent)
}

func (w *captureWriter) WriteEvent(_ context.Context, ev api.StreamEvent) error {
	w.mu.Lock()
	w.events = append(w.events, ev)
	cb := w.onEvent
	w.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
	return nil
}

func (w *captureWriter) WriteResponse(_ context.Context, resp *api.Response) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resp = resp
	return nil
}

func (w *captureWriter) Flush() error { return nil }

func (w *captureWriter) recorded() []api.StreamEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]api.StreamEvent(nil), w.events...)
}

// fakeStore is a minimal in-test ResponseStore.
type fakeStore struct {
	mu    sync.Mutex
	saved map[string]*api.Response
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string]*api.Response)}
}

func (s *fakeStore) SaveResponse(_ context.Context, resp *api.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[resp.ID] = resp
	return nil
}

func (s *fakeStore) GetResponse(_ context.Context, id string) (*api.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.saved[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return resp, nil
}

func (s *fakeStore) DeleteResponse(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, id)
	return nil
}

func (s *fakeStore) ListResponses(_ context.Context, _ transport.ListOptions) (*transport.ResponseList, error) {
	return &transport.ResponseList{Object: "list"}, nil
}

func (s *fakeStore) HealthCheck(_ context.Context) error { return nil }
func (s *fakeStore) Close() error                        { return nil }

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func resultMsg(in, out int, token string) agent.Message {
	return agent.Message{Kind: agent.KindResult, InputTokens: in, OutputTokens: out, SessionToken: token}
}

func deltaMsg(text string) agent.Message {
	return agent.Message{Kind: agent.KindDelta, Text: text}
}

func fragmentMsg(text string) agent.Message {
	return agent.Message{Kind: agent.KindTextFragment, Text: text}
}

type fixture struct {
	client *agenttest.Client
	tokens *continuity.Memory
	store  *fakeStore
	bridge *Bridge
}

func newFixture(cfg Config, turns ...agenttest.Turn) *fixture {
	f := &fixture{
		client: agenttest.NewClient(turns...),
		tokens: continuity.NewMemory(),
		store:  newFakeStore(),
	}
	f.bridge = New(f.client, f.tokens, f.store, cfg, nil)
	return f
}

func TestNonStreamingCollectsText(t *testing.T) {
	f := newFixture(Config{}, agenttest.Turn{Messages: []agent.Message{
		{Kind: agent.KindOther},
		fragmentMsg("Hello"),
		fragmentMsg(" world"),
		resultMsg(10, 5, "sess-1"),
		{Kind: agent.KindOther},
	}})
	w := &captureWriter{}

	err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{Model: "sonnet", Input: "hi"}, w)
	if err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}
	if w.resp == nil {
		t.Fatal("no response written")
	}
	if w.resp.Status != api.ResponseStatusCompleted {
		t.Errorf("status = %q, want completed", w.resp.Status)
	}
	if got := w.resp.OutputText(); got != "Hello world" {
		t.Errorf("text = %q, want %q", got, "Hello world")
	}
	if w.resp.Usage.TotalTokens != w.resp.Usage.InputTokens+w.resp.Usage.OutputTokens {
		t.Errorf("usage total %d != input %d + output %d",
			w.resp.Usage.TotalTokens, w.resp.Usage.InputTokens, w.resp.Usage.OutputTokens)
	}
	if w.resp.Usage.TotalTokens != 15 {
		t.Errorf("total tokens = %d, want 15", w.resp.Usage.TotalTokens)
	}

	// One session, opened without streaming, closed afterwards.
	opens := f.client.Opens()
	if len(opens) != 1 {
		t.Fatalf("opens = %d, want 1", len(opens))
	}
	if opens[0].Streaming {
		t.Error("non-streaming turn requested partial messages")
	}
	if f.client.ClosedSessions() != 1 {
		t.Errorf("closed sessions = %d, want 1", f.client.ClosedSessions())
	}

	// Persisted with a continuity entry for the session token.
	if f.store.count() != 1 {
		t.Errorf("stored responses = %d, want 1", f.store.count())
	}
	token, err := f.tokens.Get(context.Background(), w.resp.ID)
	if err != nil {
		t.Fatalf("continuity get: %v", err)
	}
	if token != "sess-1" {
		t.Errorf("token = %q, want sess-1", token)
	}
}

func TestNonStreamingFallbackText(t *testing.T) {
	f := newFixture(Config{}, agenttest.Turn{Messages: []agent.Message{
		resultMsg(3, 0, "sess-2"),
	}})
	w := &captureWriter{}

	if err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{Model: "sonnet", Input: "hi"}, w); err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}
	if got := w.resp.OutputText(); got != FallbackText {
		t.Errorf("text = %q, want fallback %q", got, FallbackText)
	}
}

func TestNonStreamingStrayDeltasFoldInOrder(t *testing.T) {
	f := newFixture(Config{}, agenttest.Turn{Messages: []agent.Message{
		deltaMsg("a"),
		fragmentMsg("b"),
		deltaMsg("c"),
		resultMsg(1, 1, ""),
	}})
	w := &captureWriter{}

	if err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{Model: "sonnet", Input: "hi"}, w); err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}
	if got := w.resp.OutputText(); got != "abc" {
		t.Errorf("text = %q, want %q", got, "abc")
	}
}

func TestNonStreamingLastResultWins(t *testing.T) {
	f := newFixture(Config{}, agenttest.Turn{Messages: []agent.Message{
		fragmentMsg("hi"),
		resultMsg(1, 1, "sess-old"),
		{Kind: agent.KindOther},
		resultMsg(20, 10, "sess-new"),
	}})
	w := &captureWriter{}

	if err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{Model: "sonnet", Input: "hi"}, w); err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}
	if w.resp.Usage.TotalTokens != 30 {
		t.Errorf("total tokens = %d, want 30 (last result wins)", w.resp.Usage.TotalTokens)
	}
	token, err := f.tokens.Get(context.Background(), w.resp.ID)
	if err != nil {
		t.Fatalf("continuity get: %v", err)
	}
	if token != "sess-new" {
		t.Errorf("token = %q, want sess-new", token)
	}
}

func TestStreamingEventSequence(t *testing.T) {
	f := newFixture(Config{}, agenttest.Turn{Messages: []agent.Message{
		deltaMsg("Hello"),
		deltaMsg(" "),
		deltaMsg("there"),
		deltaMsg("!"),
		fragmentMsg("Hello there!"),
		resultMsg(8, 4, "sess-3"),
	}})
	w := &captureWriter{}

	err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{Model: "sonnet", Input: "hi", Stream: true}, w)
	if err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}

	events := w.recorded()
	wantTypes := []api.StreamEventType{
		api.EventResponseCreated,
		api.EventResponseInProgress,
		api.EventOutputItemAdded,
		api.EventContentPartAdded,
		api.EventOutputTextDelta,
		api.EventOutputTextDelta,
		api.EventOutputTextDelta,
		api.EventOutputTextDelta,
		api.EventOutputTextDone,
		api.EventContentPartDone,
		api.EventOutputItemDone,
		api.EventResponseCompleted,
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(wantTypes), eventTypes(events))
	}
	var deltas strings.Builder
	for i, ev := range events {
		if ev.Type != wantTypes[i] {
			t.Errorf("event %d type = %q, want %q", i, ev.Type, wantTypes[i])
		}
		if ev.SequenceNumber != i {
			t.Errorf("event %d sequence = %d, want %d", i, ev.SequenceNumber, i)
		}
		if ev.Type == api.EventOutputTextDelta {
			deltas.WriteString(ev.Delta)
		}
	}

	done := events[8]
	if done.Text != "Hello there!" {
		t.Errorf("done text = %q, want %q", done.Text, "Hello there!")
	}
	// Deltas are authoritative: the trailing fragment must not be
	// appended a second time.
	if deltas.String() != done.Text {
		t.Errorf("concatenated deltas %q != done text %q", deltas.String(), done.Text)
	}

	completed := events[11]
	if completed.Response == nil {
		t.Fatal("response.completed carries no response")
	}
	if completed.Response.Status != api.ResponseStatusCompleted {
		t.Errorf("final status = %q, want completed", completed.Response.Status)
	}
	if got := completed.Response.OutputText(); got != "Hello there!" {
		t.Errorf("final text = %q, want %q", got, "Hello there!")
	}
	if completed.Response.Usage.TotalTokens != 12 {
		t.Errorf("usage total = %d, want 12", completed.Response.Usage.TotalTokens)
	}

	// Streaming turns request partial messages.
	if opens := f.client.Opens(); !opens[0].Streaming {
		t.Error("streaming turn did not request partial messages")
	}

	// Persisted after the terminal event with the continuity entry.
	if f.store.count() != 1 {
		t.Errorf("stored responses = %d, want 1", f.store.count())
	}
	if token, err := f.tokens.Get(context.Background(), completed.Response.ID); err != nil || token != "sess-3" {
		t.Errorf("continuity entry = (%q, %v), want (sess-3, nil)", token, err)
	}
}

func TestStreamingFragmentFallback(t *testing.T) {
	f := newFixture(Config{}, agenttest.Turn{Messages: []agent.Message{
		fragmentMsg("Hi there"),
		resultMsg(2, 2, "sess-4"),
	}})
	w := &captureWriter{}

	if err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{Model: "sonnet", Input: "hi", Stream: true}, w); err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}

	events := w.recorded()
	for _, ev := range events {
		if ev.Type == api.EventOutputTextDelta {
			t.Fatalf("unexpected delta event: %+v", ev)
		}
	}
	done := findEvent(t, events, api.EventOutputTextDone)
	if done.Text != "Hi there" {
		t.Errorf("done text = %q, want fragment text", done.Text)
	}
}

func TestStreamingResultOnlyEmitsEmptyText(t *testing.T) {
	f := newFixture(Config{}, agenttest.Turn{Messages: []agent.Message{
		resultMsg(1, 0, "sess-5"),
	}})
	w := &captureWriter{}

	if err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{Model: "sonnet", Input: "hi", Stream: true}, w); err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}

	done := findEvent(t, w.recorded(), api.EventOutputTextDone)
	if done.Text != "" {
		t.Errorf("done text = %q, want empty", done.Text)
	}
	completed := findEvent(t, w.recorded(), api.EventResponseCompleted)
	if completed.Response.Status != api.ResponseStatusCompleted {
		t.Errorf("status = %q, want completed", completed.Response.Status)
	}
}

func TestUnknownPreviousResponseRejectedBeforeOpen(t *testing.T) {
	f := newFixture(Config{}, agenttest.Turn{})
	w := &captureWriter{}

	err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{
		Model:              "sonnet",
		Input:              "hi",
		PreviousResponseID: "resp_abcdefghijklmnopqrstuvwx",
	}, w)
	if err == nil {
		t.Fatal("expected rejection")
	}

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *api.APIError", err)
	}
	if apiErr.Code != "previous_response_not_found" {
		t.Errorf("code = %q, want previous_response_not_found", apiErr.Code)
	}
	if len(f.client.Opens()) != 0 {
		t.Errorf("engine opened %d times, want 0", len(f.client.Opens()))
	}
	if len(w.recorded()) != 0 || w.resp != nil {
		t.Error("output written for rejected turn")
	}
}

func TestContinuityAcrossTurns(t *testing.T) {
	f := newFixture(Config{},
		agenttest.Turn{Messages: []agent.Message{
			fragmentMsg("Nice to meet you, Alice!"),
			resultMsg(5, 5, "sess-alice"),
		}},
		agenttest.Turn{Messages: []agent.Message{
			fragmentMsg("Your name is Alice."),
			resultMsg(6, 4, "sess-alice"),
		}},
	)

	w1 := &captureWriter{}
	if err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{Model: "sonnet", Input: "Hi, my name is Alice"}, w1); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if !strings.Contains(w1.resp.OutputText(), "Alice") {
		t.Errorf("turn 1 text = %q, want it to mention Alice", w1.resp.OutputText())
	}

	w2 := &captureWriter{}
	if err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{
		Model:              "sonnet",
		Input:              "What's my name?",
		PreviousResponseID: w1.resp.ID,
	}, w2); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if !strings.Contains(w2.resp.OutputText(), "Alice") {
		t.Errorf("turn 2 text = %q, want it to mention Alice", w2.resp.OutputText())
	}

	opens := f.client.Opens()
	if len(opens) != 2 {
		t.Fatalf("opens = %d, want 2", len(opens))
	}
	if opens[0].ResumeToken != "" {
		t.Errorf("turn 1 resume token = %q, want empty", opens[0].ResumeToken)
	}
	if opens[1].ResumeToken != "sess-alice" {
		t.Errorf("turn 2 resume token = %q, want sess-alice", opens[1].ResumeToken)
	}
}

func TestStoredResponseWithoutTokenStartsFreshSession(t *testing.T) {
	f := newFixture(Config{},
		agenttest.Turn{Messages: []agent.Message{
			fragmentMsg("first"),
			resultMsg(1, 1, ""),
		}},
		agenttest.Turn{Messages: []agent.Message{
			fragmentMsg("second"),
			resultMsg(1, 1, "sess-fresh"),
		}},
	)

	w1 := &captureWriter{}
	if err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{Model: "sonnet", Input: "hi"}, w1); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if f.store.count() != 1 {
		t.Fatalf("stored responses = %d, want 1", f.store.count())
	}

	// The stored record has no token binding. Referencing it is valid;
	// the follow-up just cannot resume and opens a fresh session.
	w2 := &captureWriter{}
	if err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{
		Model:              "sonnet",
		Input:              "again",
		PreviousResponseID: w1.resp.ID,
	}, w2); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if w2.resp.OutputText() != "second" {
		t.Errorf("turn 2 text = %q", w2.resp.OutputText())
	}

	opens := f.client.Opens()
	if len(opens) != 2 {
		t.Fatalf("opens = %d, want 2", len(opens))
	}
	if opens[1].ResumeToken != "" {
		t.Errorf("turn 2 resume token = %q, want empty (no binding to resume)", opens[1].ResumeToken)
	}
}

func TestEngineUnavailableOnOpen(t *testing.T) {
	f := newFixture(Config{}, agenttest.Turn{OpenErr: agent.ErrEngineUnavailable})
	w := &captureWriter{}

	err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{Model: "sonnet", Input: "hi", Stream: true}, w)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeEngineError {
		t.Errorf("error = %v, want engine_error", err)
	}
	// Failure before any event: the stream never started.
	if len(w.recorded()) != 0 {
		t.Errorf("%d events written before failure response", len(w.recorded()))
	}
	if f.store.count() != 0 {
		t.Error("failed turn was persisted")
	}
}

func TestMidStreamFailureEmitsBestEffortTerminal(t *testing.T) {
	f := newFixture(Config{}, agenttest.Turn{
		Messages:  []agent.Message{deltaMsg("partial")},
		StreamErr: errors.New("engine crashed"),
	})
	w := &captureWriter{}

	err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{Model: "sonnet", Input: "hi", Stream: true}, w)
	if err == nil {
		t.Fatal("expected error")
	}

	events := w.recorded()
	last := events[len(events)-1]
	if last.Type != api.EventResponseFailed {
		t.Errorf("last event = %q, want response.failed", last.Type)
	}
	if last.Response.Error == nil {
		t.Error("failed response carries no error")
	}
	done := findEvent(t, events, api.EventOutputTextDone)
	if done.Text != "partial" {
		t.Errorf("done text = %q, want partial text", done.Text)
	}
	for i, ev := range events {
		if ev.SequenceNumber != i {
			t.Errorf("event %d sequence = %d, want %d", i, ev.SequenceNumber, i)
		}
	}
	if f.store.count() != 0 {
		t.Error("failed turn was persisted")
	}
}

func TestDrainDeadlineFailsStream(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	f := newFixture(Config{DrainTimeout: 30 * time.Millisecond}, agenttest.Turn{
		Messages: []agent.Message{deltaMsg("partial")},
		Hold:     hold,
	})
	w := &captureWriter{}

	err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{Model: "sonnet", Input: "hi", Stream: true}, w)
	if err == nil {
		t.Fatal("expected error")
	}

	events := w.recorded()
	if last := events[len(events)-1]; last.Type != api.EventResponseFailed {
		t.Errorf("last event = %q, want response.failed", last.Type)
	}
	if f.client.ClosedSessions() != 1 {
		t.Errorf("closed sessions = %d, want 1", f.client.ClosedSessions())
	}
}

func TestCancellationClosesSessionWithoutStoreWrite(t *testing.T) {
	hold := make(chan struct{})
	defer close(hold)
	f := newFixture(Config{}, agenttest.Turn{
		Messages: []agent.Message{deltaMsg("Hel")},
		Hold:     hold,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sawDelta := make(chan struct{}, 1)
	w := &captureWriter{onEvent: func(ev api.StreamEvent) {
		if ev.Type == api.EventOutputTextDelta {
			sawDelta <- struct{}{}
		}
	}}

	done := make(chan error, 1)
	go func() {
		done <- f.bridge.CreateResponse(ctx, &api.CreateResponseRequest{Model: "sonnet", Input: "hi", Stream: true}, w)
	}()

	<-sawDelta
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if f.client.ClosedSessions() != 1 {
		t.Errorf("closed sessions = %d, want 1", f.client.ClosedSessions())
	}
	if f.store.count() != 0 {
		t.Error("abandoned turn was persisted")
	}
	// No terminal event after cancellation.
	for _, ev := range w.recorded() {
		if ev.Type.Terminal() {
			t.Errorf("terminal event %q emitted for abandoned turn", ev.Type)
		}
	}
}

func TestStoreOptOutSkipsPersistence(t *testing.T) {
	off := false
	f := newFixture(Config{}, agenttest.Turn{Messages: []agent.Message{
		fragmentMsg("hello"),
		resultMsg(1, 1, "sess-6"),
	}})
	w := &captureWriter{}

	if err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{Model: "sonnet", Input: "hi", Store: &off}, w); err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}
	if f.store.count() != 0 {
		t.Error("opted-out turn was persisted")
	}
	if _, err := f.tokens.Get(context.Background(), w.resp.ID); !errors.Is(err, continuity.ErrNotFound) {
		t.Error("opted-out turn got a continuity entry")
	}
}

func TestDefaultModelApplied(t *testing.T) {
	f := newFixture(Config{DefaultModel: "sonnet"}, agenttest.Turn{Messages: []agent.Message{
		fragmentMsg("hello"),
		resultMsg(1, 1, ""),
	}})
	w := &captureWriter{}

	if err := f.bridge.CreateResponse(context.Background(), &api.CreateResponseRequest{Input: "hi"}, w); err != nil {
		t.Fatalf("CreateResponse: %v", err)
	}
	if opens := f.client.Opens(); opens[0].Model != "sonnet" {
		t.Errorf("model = %q, want default sonnet", opens[0].Model)
	}
	if w.resp.Model != "sonnet" {
		t.Errorf("response model = %q, want sonnet", w.resp.Model)
	}
}

func eventTypes(events []api.StreamEvent) []api.StreamEventType {
	types := make([]api.StreamEventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func findEvent(t *testing.T, events []api.StreamEvent, typ api.StreamEventType) api.StreamEvent {
	t.Helper()
	for _, ev := range events {
		if ev.Type == typ {
			return ev
		}
	}
	t.Fatalf("no %q event in %v", typ, eventTypes(events))
	return api.StreamEvent{}
}
