// Command mock-engine is a stand-in for the agent engine CLI. It speaks
// the same stream-json stdio contract and produces deterministic output,
// which makes it useful for running the bridge locally without an engine
// installed:
//
//	BRUECKE_ENGINE_BINARY=./mock-engine ./server
//
// The reply to most input is "You said: <input>". Inputs of the form
// "my name is X" are remembered per session (state lives in a temp file
// keyed by the session ID, since each turn is a fresh process), and a
// later "what's my name" on a resumed session answers with X. With
// --resume the given session ID is kept, so response chaining can be
// exercised end to end.
package main

import (
	"bufio"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

type flags struct {
	includePartials bool
	resume          string
	model           string
}

func main() {
	f := parseFlags()

	input, err := readUserInput(os.Stdin)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mock-engine:", err)
		os.Exit(1)
	}

	sessionID := f.resume
	if sessionID == "" {
		sessionID = "sess-" + randomHex(8)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	emit(out, map[string]any{
		"type":       "system",
		"subtype":    "init",
		"session_id": sessionID,
		"model":      f.model,
	})

	reply := buildReply(sessionID, input)

	if f.includePartials {
		for _, chunk := range chunkText(reply, 8) {
			emit(out, map[string]any{
				"type": "stream_event",
				"event": map[string]any{
					"type": "content_block_delta",
					"delta": map[string]any{
						"type": "text_delta",
						"text": chunk,
					},
				},
				"session_id": sessionID,
			})
		}
	}

	emit(out, map[string]any{
		"type": "assistant",
		"message": map[string]any{
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": reply},
			},
		},
		"session_id": sessionID,
	})

	emit(out, map[string]any{
		"type":       "result",
		"subtype":    "success",
		"session_id": sessionID,
		"usage": map[string]any{
			"input_tokens":  len(strings.Fields(input)) + 3,
			"output_tokens": len(strings.Fields(reply)),
		},
	})
}

var namePattern = regexp.MustCompile(`(?i)my name is (\w+)`)

// buildReply produces the deterministic answer for one turn. Session
// memory covers exactly one fact (a name), enough to exercise resume
// tokens across turns.
func buildReply(sessionID, input string) string {
	if m := namePattern.FindStringSubmatch(input); m != nil {
		saveSessionName(sessionID, m[1])
		return "Nice to meet you, " + m[1] + "."
	}
	if strings.Contains(strings.ToLower(input), "my name") {
		if name := loadSessionName(sessionID); name != "" {
			return "Your name is " + name + "."
		}
		return "I don't know your name yet."
	}
	return "You said: " + input
}

func sessionFile(sessionID string) string {
	return filepath.Join(os.TempDir(), "bruecke-mock-"+sessionID)
}

func saveSessionName(sessionID, name string) {
	os.WriteFile(sessionFile(sessionID), []byte(name), 0o600)
}

func loadSessionName(sessionID string) string {
	data, err := os.ReadFile(sessionFile(sessionID))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// parseFlags accepts the full engine CLI surface; flags that do not change
// mock behavior are parsed and ignored.
func parseFlags() flags {
	var f flags
	flag.Bool("print", false, "")
	flag.Bool("verbose", false, "")
	flag.String("input-format", "stream-json", "")
	flag.String("output-format", "stream-json", "")
	flag.BoolVar(&f.includePartials, "include-partial-messages", false, "")
	flag.StringVar(&f.resume, "resume", "", "")
	flag.StringVar(&f.model, "model", "mock-model", "")
	flag.String("allowedTools", "", "")
	flag.String("permission-mode", "", "")
	flag.Parse()
	return f
}

// readUserInput reads the first user envelope from stdin and returns the
// concatenated text content.
func readUserInput(r *os.File) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var envelope struct {
			Type    string `json:"type"`
			Message struct {
				Content []struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"content"`
			} `json:"message"`
		}
		if err := json.Unmarshal([]byte(line), &envelope); err != nil {
			return "", fmt.Errorf("parsing input line: %w", err)
		}
		if envelope.Type != "user" {
			continue
		}

		var parts []string
		for _, c := range envelope.Message.Content {
			if c.Type == "text" {
				parts = append(parts, c.Text)
			}
		}
		return strings.Join(parts, ""), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return "", fmt.Errorf("no user envelope on stdin")
}

func emit(out *bufio.Writer, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mock-engine: encoding output:", err)
		os.Exit(1)
	}
	out.Write(data)
	out.WriteByte('\n')
}

// chunkText splits s into chunks of at most n bytes, splitting on rune
// boundaries.
func chunkText(s string, n int) []string {
	var chunks []string
	var current strings.Builder
	for _, r := range s {
		current.WriteRune(r)
		if current.Len() >= n {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return fmt.Sprintf("%x", b)
}
