package bridge

import (
	"strings"

	"github.com/bruecke-ai/bruecke/pkg/agent"
	"github.com/bruecke-ai/bruecke/pkg/api"
)

// turnState folds one engine message sequence into the final text, usage,
// and session token of a turn. It lives for exactly one turn and is
// discarded after the response object is finalized.
type turnState struct {
	streaming    bool
	buf          strings.Builder // deltas when streaming, all text otherwise
	fallback     strings.Builder // final assistant fragments, streaming only
	usage        api.Usage
	sessionToken string
}

func newTurnState(streaming bool) *turnState {
	return &turnState{streaming: streaming}
}

// fold applies one message record. In streaming mode deltas and final
// fragments accumulate separately so the fragment text is never appended
// on top of delta text; in non-streaming mode a stray delta is treated
// like any other text, in arrival order.
func (st *turnState) fold(msg agent.Message) {
	switch msg.Kind {
	case agent.KindDelta:
		st.buf.WriteString(msg.Text)
	case agent.KindTextFragment:
		if st.streaming {
			st.fallback.WriteString(msg.Text)
		} else {
			st.buf.WriteString(msg.Text)
		}
	case agent.KindResult:
		st.usage = api.Usage{
			InputTokens:  msg.InputTokens,
			OutputTokens: msg.OutputTokens,
			TotalTokens:  msg.InputTokens + msg.OutputTokens,
		}
		st.sessionToken = msg.SessionToken
	}
}

// finalText picks the authoritative text for the turn. Deltas win over
// the final assistant fragments. A non-streaming turn never returns
// empty text; a streaming turn may, since its clients saw the (empty)
// delta stream already.
func (st *turnState) finalText() string {
	if st.buf.Len() > 0 {
		return st.buf.String()
	}
	if st.streaming {
		return st.fallback.String()
	}
	return FallbackText
}
