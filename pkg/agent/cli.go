package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/bruecke-ai/bruecke/pkg/debug"
)

// CLIConfig holds settings for the engine CLI subprocess client.
type CLIConfig struct {
	// Binary is the engine CLI executable (default: "claude").
	Binary string

	// WorkDir is the working directory for engine processes. Empty means
	// inherit the server's working directory.
	WorkDir string

	// Env is appended to the inherited environment.
	Env []string

	// MessageBuffer is the channel buffer for parsed records (default: 64).
	MessageBuffer int
}

func (c *CLIConfig) defaults() {
	if c.Binary == "" {
		c.Binary = "claude"
	}
	if c.MessageBuffer <= 0 {
		c.MessageBuffer = 64
	}
}

// CLIClient drives the engine CLI over stdio with line-delimited JSON.
// One subprocess is spawned per session, so concurrent turns never share
// engine state.
type CLIClient struct {
	cfg CLIConfig
}

// Ensure CLIClient implements Client at compile time.
var _ Client = (*CLIClient)(nil)

// NewCLIClient creates a subprocess client for the engine CLI.
func NewCLIClient(cfg CLIConfig) *CLIClient {
	cfg.defaults()
	return &CLIClient{cfg: cfg}
}

// Open spawns the engine process for one turn. Partial-message delivery is
// requested only when opts.Streaming is set.
func (c *CLIClient) Open(ctx context.Context, opts OpenOptions) (Session, error) {
	args := buildCLIArgs(opts)
	debug.Log("engine", "spawning engine", "binary", c.cfg.Binary, "args", args)

	cmd := exec.CommandContext(ctx, c.cfg.Binary, args...)
	cmd.Dir = c.cfg.WorkDir
	if len(c.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.cfg.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", ErrEngineUnavailable, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrEngineUnavailable, err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &limitedBuffer{buf: &stderr, max: 16 * 1024}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting %s: %v", ErrEngineUnavailable, c.cfg.Binary, err)
	}

	s := &cliSession{
		cmd:        cmd,
		stdin:      stdin,
		stderr:     &stderr,
		msgs:       make(chan Message, c.cfg.MessageBuffer),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go s.readLoop(stdout)

	return s, nil
}

// buildCLIArgs assembles the engine CLI invocation for one turn.
func buildCLIArgs(opts OpenOptions) []string {
	args := []string{
		"--print",
		"--verbose",
		"--input-format", "stream-json",
		"--output-format", "stream-json",
	}
	if opts.Streaming {
		args = append(args, "--include-partial-messages")
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.ResumeToken != "" {
		args = append(args, "--resume", opts.ResumeToken)
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	return args
}

// cliSession is one running engine subprocess.
type cliSession struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer

	msgs       chan Message
	done       chan struct{}
	readerDone chan struct{}

	closeOnce sync.Once
	closeErr  error

	errMu     sync.Mutex
	streamErr error
}

var _ Session = (*cliSession)(nil)

// Submit writes the turn's input as a single user envelope and closes
// stdin; the engine treats EOF as end of input for the turn.
func (s *cliSession) Submit(ctx context.Context, input string) error {
	envelope := userEnvelope{
		Type: "user",
		Message: userMessage{
			Role:    "user",
			Content: []userContent{{Type: "text", Text: input}},
		},
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("%w: encoding input: %v", ErrEngineUnavailable, err)
	}
	data = append(data, '\n')

	if _, err := s.stdin.Write(data); err != nil {
		return fmt.Errorf("%w: submitting input: %v", ErrEngineUnavailable, err)
	}
	if err := s.stdin.Close(); err != nil {
		return fmt.Errorf("%w: closing input: %v", ErrEngineUnavailable, err)
	}
	return nil
}

// Messages returns the parsed record stream. The channel is closed when
// the engine process ends its output.
func (s *cliSession) Messages() <-chan Message {
	return s.msgs
}

// Err reports a stream failure after Messages is closed.
func (s *cliSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.streamErr
}

// Close tears the subprocess down. Idempotent; always releases the engine
// even when the turn was abandoned mid-stream.
func (s *cliSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.stdin.Close()
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
		<-s.readerDone
	})
	return s.closeErr
}

// readLoop scans engine stdout line by line, parses each into tagged
// records, and forwards them until EOF or Close.
func (s *cliSession) readLoop(stdout io.Reader) {
	defer close(s.readerDone)
	defer close(s.msgs)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		debug.Raw("engine", string(line))
		for _, msg := range parseEngineLine(line) {
			select {
			case s.msgs <- msg:
			case <-s.done:
				s.finish(nil)
				return
			}
		}
	}

	s.finish(scanner.Err())
}

// finish records the stream error and reaps the subprocess.
func (s *cliSession) finish(scanErr error) {
	waitErr := s.cmd.Wait()

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if scanErr != nil {
		s.streamErr = fmt.Errorf("reading engine output: %w", scanErr)
		return
	}
	if waitErr != nil {
		select {
		case <-s.done:
			// Killed by Close; not a stream failure.
		default:
			msg := strings.TrimSpace(s.stderr.String())
			if msg != "" {
				s.streamErr = fmt.Errorf("engine exited: %v: %s", waitErr, msg)
			} else {
				s.streamErr = fmt.Errorf("engine exited: %w", waitErr)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Engine wire format
// ---------------------------------------------------------------------------

// userEnvelope is the stream-json input line for a user turn.
type userEnvelope struct {
	Type    string      `json:"type"`
	Message userMessage `json:"message"`
}

type userMessage struct {
	Role    string        `json:"role"`
	Content []userContent `json:"content"`
}

type userContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// engineEnvelope is the superset of fields across engine output lines.
// Only the fields matching Type are populated by the engine.
type engineEnvelope struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`

	// type == "assistant"
	Message struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"message"`

	// type == "stream_event"
	Event struct {
		Type  string `json:"type"`
		Delta struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"delta"`
	} `json:"event"`

	// type == "result"
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// parseEngineLine converts one engine output line into tagged records.
// Unrecognized lines become KindOther so the drain loop keeps its shape
// without inspecting engine internals.
func parseEngineLine(line []byte) []Message {
	var env engineEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return []Message{{Kind: KindOther}}
	}

	switch env.Type {
	case "assistant":
		var msgs []Message
		for _, block := range env.Message.Content {
			if block.Type == "text" {
				msgs = append(msgs, Message{Kind: KindTextFragment, Text: block.Text})
			}
		}
		if len(msgs) == 0 {
			return []Message{{Kind: KindOther}}
		}
		return msgs

	case "stream_event":
		if env.Event.Type == "content_block_delta" && env.Event.Delta.Type == "text_delta" {
			return []Message{{Kind: KindDelta, Text: env.Event.Delta.Text}}
		}
		return []Message{{Kind: KindOther}}

	case "result":
		return []Message{{
			Kind:         KindResult,
			InputTokens:  env.Usage.InputTokens,
			OutputTokens: env.Usage.OutputTokens,
			SessionToken: env.SessionID,
		}}

	default:
		return []Message{{Kind: KindOther}}
	}
}

// limitedBuffer caps captured stderr so a chatty engine cannot grow memory
// without bound.
type limitedBuffer struct {
	buf *bytes.Buffer
	max int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	if l.buf.Len() >= l.max {
		return len(p), nil
	}
	if remaining := l.max - l.buf.Len(); len(p) > remaining {
		l.buf.Write(p[:remaining])
		return len(p), nil
	}
	return l.buf.Write(p)
}
