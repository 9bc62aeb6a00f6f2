package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bruecke-ai/bruecke/pkg/agent"
	"github.com/bruecke-ai/bruecke/pkg/api"
	"github.com/bruecke-ai/bruecke/pkg/continuity"
	"github.com/bruecke-ai/bruecke/pkg/observability"
	"github.com/bruecke-ai/bruecke/pkg/storage"
	"github.com/bruecke-ai/bruecke/pkg/transport"
)

var (
	// errDrainDeadline marks a turn whose engine message sequence never
	// ended within the configured drain timeout.
	errDrainDeadline = errors.New("engine turn exceeded drain deadline")

	// errEngineStream marks an engine session that died mid-drain.
	errEngineStream = errors.New("engine stream failed")
)

// Bridge drives one engine turn per request. It implements
// transport.ResponseCreator.
type Bridge struct {
	client agent.Client
	tokens continuity.Map
	store  transport.ResponseStore
	cfg    Config
	logger *slog.Logger
}

var _ transport.ResponseCreator = (*Bridge)(nil)

// New creates a bridge. store may be nil for a stateless deployment; in
// that mode responses are never persisted and continuity entries are only
// as durable as the injected map.
func New(client agent.Client, tokens continuity.Map, store transport.ResponseStore, cfg Config, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		client: client,
		tokens: tokens,
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// CreateResponse serves one turn end to end: validate, resolve the resume
// token, open and drive the engine session, and write either a complete
// response or the streaming event sequence.
func (b *Bridge) CreateResponse(ctx context.Context, req *api.CreateResponseRequest, w transport.ResponseWriter) error {
	turn := *req
	if turn.Model == "" {
		turn.Model = b.cfg.DefaultModel
	}
	if verr := api.ValidateRequest(&turn, b.cfg.Validation); verr != nil {
		return verr
	}

	resumeToken, err := b.resolveResumeToken(ctx, turn.PreviousResponseID)
	if err != nil {
		return err
	}

	sess, err := b.client.Open(ctx, agent.OpenOptions{
		Model:          turn.Model,
		ResumeToken:    resumeToken,
		Streaming:      turn.Stream,
		AllowedTools:   b.cfg.AllowedTools,
		PermissionMode: b.cfg.PermissionMode,
	})
	if err != nil {
		return api.NewEngineError(fmt.Sprintf("opening engine session: %v", err))
	}
	defer sess.Close()

	if err := sess.Submit(ctx, turn.Input); err != nil {
		return api.NewEngineError(fmt.Sprintf("submitting turn input: %v", err))
	}

	if turn.Stream {
		return b.streamTurn(ctx, &turn, sess, w)
	}
	return b.collectTurn(ctx, &turn, sess, w)
}

// resolveResumeToken maps a previous response ID to its engine session
// token. Validity of the reference is keyed on the response store: an ID
// with no stored record rejects the turn before the engine is touched. A
// stored record without a token binding (its turn ended with an empty
// session token) is a valid reference that simply cannot be resumed, so
// the turn starts a fresh session.
func (b *Bridge) resolveResumeToken(ctx context.Context, previousID string) (string, error) {
	if previousID == "" {
		return "", nil
	}
	token, err := b.tokens.Get(ctx, previousID)
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, continuity.ErrNotFound) {
		return "", api.NewServerError(fmt.Sprintf("resolving previous response: %v", err))
	}

	if b.store == nil {
		// Stateless deployment: nothing is ever stored, so any reference
		// outside the token map is unknown.
		return "", api.NewInvalidReferenceError(previousID)
	}
	if _, err := b.store.GetResponse(ctx, previousID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", api.NewInvalidReferenceError(previousID)
		}
		return "", api.NewServerError(fmt.Sprintf("resolving previous response: %v", err))
	}
	return "", nil
}

// drain consumes the session's message sequence until it ends naturally,
// the drain deadline passes, or the caller's context is cancelled. A
// Result record does not stop the drain: tool traffic may follow it, and
// a later Result wins. onDelta, when non-nil, runs for every non-empty
// Delta record in arrival order.
func (b *Bridge) drain(ctx context.Context, sess agent.Session, st *turnState, onDelta func(text string) error) error {
	drainCtx, cancel := context.WithTimeout(ctx, b.cfg.DrainTimeout)
	defer cancel()

	for {
		select {
		case msg, ok := <-sess.Messages():
			if !ok {
				if err := sess.Err(); err != nil {
					return fmt.Errorf("%w: %v", errEngineStream, err)
				}
				return nil
			}
			st.fold(msg)
			if onDelta != nil && msg.Kind == agent.KindDelta && msg.Text != "" {
				if err := onDelta(msg.Text); err != nil {
					sess.Close()
					return err
				}
			}
		case <-drainCtx.Done():
			sess.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errDrainDeadline
		}
	}
}

// collectTurn serves the non-streaming mode: one pass over the message
// sequence, then a single completed response.
func (b *Bridge) collectTurn(ctx context.Context, req *api.CreateResponseRequest, sess agent.Session, w transport.ResponseWriter) error {
	st := newTurnState(false)
	if err := b.drain(ctx, sess, st, nil); err != nil {
		if ctx.Err() != nil {
			return err
		}
		return api.NewEngineError(err.Error())
	}

	resp := b.finalize(req, st)
	recordTokens(req.Model, resp.Usage)
	if err := b.persist(ctx, req, resp, st.sessionToken); err != nil {
		return err
	}
	return w.WriteResponse(ctx, resp)
}

// finalize builds the completed response object from the folded state.
func (b *Bridge) finalize(req *api.CreateResponseRequest, st *turnState) *api.Response {
	item := api.OutputItem{
		ID:      api.NewMessageID(),
		Status:  api.ItemStatusCompleted,
		Content: []api.OutputTextContent{{Text: st.finalText()}},
	}
	return &api.Response{
		ID:                 api.NewResponseID(),
		Object:             "response",
		CreatedAt:          time.Now().Unix(),
		Status:             api.ResponseStatusCompleted,
		Model:              req.Model,
		PreviousResponseID: req.PreviousResponseID,
		Output:             []api.OutputItem{item},
		Usage:              st.usage,
		Store:              req.Stored(),
		Metadata:           req.Metadata,
	}
}

// persist records the continuity entry and stores the response, in that
// order. Both are skipped for stateless deployments or when the request
// opted out of storage; the continuity entry additionally requires a
// non-empty session token.
func (b *Bridge) persist(ctx context.Context, req *api.CreateResponseRequest, resp *api.Response, sessionToken string) error {
	if b.store == nil || !req.Stored() {
		return nil
	}
	if sessionToken != "" {
		if err := b.tokens.Put(ctx, resp.ID, sessionToken); err != nil && !errors.Is(err, continuity.ErrExists) {
			return api.NewServerError(fmt.Sprintf("recording session token: %v", err))
		}
	}
	if err := b.store.SaveResponse(ctx, resp); err != nil {
		return api.NewServerError(fmt.Sprintf("storing response: %v", err))
	}
	return nil
}

func recordTokens(model string, usage api.Usage) {
	if usage.TotalTokens == 0 {
		return
	}
	observability.EngineTokensTotal.WithLabelValues(model, "input").Add(float64(usage.InputTokens))
	observability.EngineTokensTotal.WithLabelValues(model, "output").Add(float64(usage.OutputTokens))
}
