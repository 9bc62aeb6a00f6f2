package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/bruecke-ai/bruecke/pkg/agent"
	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/observability"
	"github.com/bruecke-ai/bruecke/pkg/transport"
)

// eventEmitter assigns gapless sequence numbers starting at 0 and writes
// events to the transport.
type eventEmitter struct {
	w   transport.ResponseWriter
	seq int
}

func (e *eventEmitter) emit(ctx context.Context, ev api.StreamEvent) error {
	ev.SequenceNumber = e.seq
	if err := e.w.WriteEvent(ctx, ev); err != nil {
		return err
	}
	e.seq++
	observability.StreamEventsTotal.WithLabelValues(string(ev.Type)).Inc()
	return nil
}

// streamTurn serves the streaming mode. The event order is fixed:
// response.created, response.in_progress, output_item.added,
// content_part.added, zero or more output_text.delta (one per non-empty
// delta record, in arrival order), output_text.done, content_part.done,
// output_item.done, response.completed. The terminal events are emitted
// only after the engine's sequence is fully exhausted, never early on a
// Result record, so tool traffic after the Result is not lost.
func (b *Bridge) streamTurn(ctx context.Context, req *api.CreateResponseRequest, sess agent.Session, w transport.ResponseWriter) error {
	resp := &api.Response{
		ID:                 api.NewResponseID(),
		Object:             "response",
		CreatedAt:          time.Now().Unix(),
		Status:             api.ResponseStatusInProgress,
		Model:              req.Model,
		PreviousResponseID: req.PreviousResponseID,
		Output:             []api.OutputItem{},
		Store:              req.Stored(),
		Metadata:           req.Metadata,
	}
	item := &api.OutputItem{
		ID:      api.NewMessageID(),
		Status:  api.ItemStatusInProgress,
		Content: []api.OutputTextContent{},
	}

	em := &eventEmitter{w: w}

	head := []api.StreamEvent{
		{Type: api.EventResponseCreated, Response: resp},
		{Type: api.EventResponseInProgress, Response: resp},
		{Type: api.EventOutputItemAdded, Item: item},
		{Type: api.EventContentPartAdded, ItemID: item.ID, Part: &api.OutputTextContent{}},
	}
	for _, ev := range head {
		if err := em.emit(ctx, ev); err != nil {
			return err
		}
	}

	st := newTurnState(true)
	drainErr := b.drain(ctx, sess, st, func(text string) error {
		return em.emit(ctx, api.StreamEvent{
			Type:   api.EventOutputTextDelta,
			ItemID: item.ID,
			Delta:  text,
		})
	})

	switch {
	case drainErr == nil:
		// Fall through to the terminal events.
	case ctx.Err() != nil:
		// Client disconnected or the turn was cancelled: the engine
		// session is already closed, nothing more goes on the wire,
		// and nothing is persisted.
		return drainErr
	case errors.Is(drainErr, errDrainDeadline), errors.Is(drainErr, errEngineStream):
		return b.failStream(ctx, em, resp, item, st, drainErr)
	default:
		// Write failure mid-stream; the client is gone.
		return drainErr
	}

	text := st.finalText()
	item.Content = []api.OutputTextContent{{Text: text}}
	item.Status = api.ItemStatusCompleted
	resp.Status = api.ResponseStatusCompleted
	resp.Output = []api.OutputItem{*item}
	resp.Usage = st.usage

	tail := []api.StreamEvent{
		{Type: api.EventOutputTextDone, ItemID: item.ID, Text: text},
		{Type: api.EventContentPartDone, ItemID: item.ID, Part: &item.Content[0]},
		{Type: api.EventOutputItemDone, Item: item},
		{Type: api.EventResponseCompleted, Response: resp},
	}
	for _, ev := range tail {
		if err := em.emit(ctx, ev); err != nil {
			return err
		}
	}

	recordTokens(req.Model, resp.Usage)
	if err := b.persist(ctx, req, resp, st.sessionToken); err != nil {
		// The terminal event is already on the wire; the turn itself
		// succeeded from the client's point of view.
		b.logger.Error("persisting streamed response",
			"response_id", resp.ID, "error", err)
	}
	return nil
}

// failStream emits best-effort terminal events reflecting the partial
// text, so the stream is never left open indefinitely after a mid-drain
// failure. Nothing is persisted for a failed turn.
func (b *Bridge) failStream(ctx context.Context, em *eventEmitter, resp *api.Response, item *api.OutputItem, st *turnState, cause error) error {
	apiErr := api.NewEngineError(cause.Error())

	text := st.finalText()
	item.Content = []api.OutputTextContent{{Text: text}}
	item.Status = api.ItemStatusCompleted
	resp.Status = api.ResponseStatusFailed
	resp.Output = []api.OutputItem{*item}
	resp.Usage = st.usage
	resp.Error = apiErr

	tail := []api.StreamEvent{
		{Type: api.EventOutputTextDone, ItemID: item.ID, Text: text},
		{Type: api.EventContentPartDone, ItemID: item.ID, Part: &item.Content[0]},
		{Type: api.EventOutputItemDone, Item: item},
		{Type: api.EventResponseFailed, Response: resp},
	}
	for _, ev := range tail {
		if err := em.emit(ctx, ev); err != nil {
			return err
		}
	}
	return apiErr
}
