// Package agenttest provides a scripted engine client for tests.
//
// A [Client] plays back predefined message sequences instead of spawning
// real engine processes, and records every Open and Submit so tests can
// assert on resume tokens, streaming flags, and submitted input.
package agenttest

import (
	"context"
	"sync"

	"github.com/bruecke-ai/bruecke/pkg/agent"
)

// Turn scripts one engine session.
type Turn struct {
	// OpenErr makes Open fail instead of yielding a session.
	OpenErr error

	// SubmitErr makes Submit fail; no messages are played.
	SubmitErr error

	// Messages are delivered in order after Submit, then the channel
	// closes.
	Messages []agent.Message

	// StreamErr is reported by Err after the channel closes, modelling
	// a session that died mid-stream.
	StreamErr error

	// Hold, when non-nil, keeps the message channel open after the last
	// scripted message until the test closes Hold or the session is
	// closed. Used to exercise cancellation and drain deadlines.
	Hold chan struct{}
}

// Client is a scripted agent.Client. Each Open consumes the next Turn;
// opening past the script fails the turn with agent.ErrEngineUnavailable.
type Client struct {
	mu     sync.Mutex
	turns  []Turn
	next   int
	opens  []agent.OpenOptions
	inputs []string
	closed int
}

var _ agent.Client = (*Client)(nil)

// NewClient scripts a client with the given turns.
func NewClient(turns ...Turn) *Client {
	return &Client{turns: turns}
}

// Open records opts and yields a session for the next scripted turn.
func (c *Client) Open(_ context.Context, opts agent.OpenOptions) (agent.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.opens = append(c.opens, opts)
	if c.next >= len(c.turns) {
		return nil, agent.ErrEngineUnavailable
	}
	turn := c.turns[c.next]
	c.next++

	if turn.OpenErr != nil {
		return nil, turn.OpenErr
	}
	return &scriptSession{
		client: c,
		turn:   turn,
		msgs:   make(chan agent.Message),
		closed: make(chan struct{}),
	}, nil
}

// Opens returns the options of every Open call, in order.
func (c *Client) Opens() []agent.OpenOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]agent.OpenOptions(nil), c.opens...)
}

// Inputs returns every submitted input, in order.
func (c *Client) Inputs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.inputs...)
}

// ClosedSessions reports how many sessions have been closed. Tests use it
// to assert the bridge releases the engine on every path.
func (c *Client) ClosedSessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type scriptSession struct {
	client *Client
	turn   Turn

	msgs      chan agent.Message
	closed    chan struct{}
	closeOnce sync.Once
}

var _ agent.Session = (*scriptSession)(nil)

func (s *scriptSession) Submit(_ context.Context, input string) error {
	s.client.mu.Lock()
	s.client.inputs = append(s.client.inputs, input)
	s.client.mu.Unlock()

	if s.turn.SubmitErr != nil {
		return s.turn.SubmitErr
	}
	go s.play()
	return nil
}

// play delivers the scripted messages, honoring Hold and early close.
func (s *scriptSession) play() {
	defer close(s.msgs)
	for _, msg := range s.turn.Messages {
		select {
		case s.msgs <- msg:
		case <-s.closed:
			return
		}
	}
	if s.turn.Hold != nil {
		select {
		case <-s.turn.Hold:
		case <-s.closed:
		}
	}
}

func (s *scriptSession) Messages() <-chan agent.Message {
	return s.msgs
}

func (s *scriptSession) Err() error {
	return s.turn.StreamErr
}

func (s *scriptSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.client.mu.Lock()
		s.client.closed++
		s.client.mu.Unlock()
	})
	return nil
}
