package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dignmodahau/idea-claude-code-gui/internal/config"
)

// defaultExecutable is the embedded runtime name used when the locator
// found no install; PATH resolution happens at spawn time.
const defaultExecutable = "claude"

// maxTurns caps the runtime's tool-use loop for one exchange.
const maxTurns = 250

// PermissionFunc decides whether the runtime may use a tool. It receives
// the tool name and its input object.
type PermissionFunc func(toolName string, input json.RawMessage) bool

// NativePath runs the agent runtime as a subprocess and streams its JSONL
// stdout. This is the full-featured delivery path: tool use, resumption and
// multi-modal input all live here.
type NativePath struct {
	// Executable is the located runtime binary; empty means defaultExecutable.
	Executable string
	// Creds supply the key and endpoint exported to the subprocess.
	Creds *config.Credentials
	// AddDirs are extra directories the runtime may access.
	AddDirs []string
	// Permission answers tool-use control requests; nil allows everything.
	Permission PermissionFunc
	// Log receives diagnostics; the event stream itself stays on stdout.
	Log *slog.Logger
}

// streamInput is one JSONL line fed to the runtime's stdin.
type streamInput struct {
	// Type is always "user".
	Type string `json:"type"`
	// Message is the user message payload.
	Message Message `json:"message"`
}

// controlResponse answers a runtime control_request over stdin.
type controlResponse struct {
	// Type is always "control_response".
	Type string `json:"type"`
	// Response is the response envelope.
	Response controlResponseBody `json:"response"`
}

// controlResponseBody is the control_response envelope.
type controlResponseBody struct {
	// Subtype is "success" for handled requests.
	Subtype string `json:"subtype"`
	// RequestID echoes the request identifier.
	RequestID string `json:"request_id"`
	// Response is the behavior payload.
	Response map[string]any `json:"response"`
}

// lockedWriter serializes stdin writes between the prompt feeder and the
// control responder.
type lockedWriter struct {
	mu     sync.Mutex
	writer io.WriteCloser
	closed bool
}

func (w *lockedWriter) writeLine(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return os.ErrClosed
	}
	_, err := w.writer.Write(append(data, '\n'))
	return err
}

func (w *lockedWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.writer.Close()
}

// Submit spawns the runtime and returns its event stream. The channel is
// closed when the subprocess's stdout is exhausted; a trailing Err event
// marks abnormal termination.
func (p *NativePath) Submit(ctx context.Context, req *Request) (<-chan Event, error) {
	executable := p.Executable
	if executable == "" {
		executable = defaultExecutable
	}

	cmd := exec.CommandContext(ctx, executable, p.buildArgs(req)...)
	cmd.Dir = req.CWD
	cmd.Env = p.runtimeEnv()
	// On cancellation, interrupt rather than kill so the runtime can flush
	// its own transcript; WaitDelay bounds how long we indulge it.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = 5 * time.Second

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open runtime stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open runtime stdout: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn runtime %s: %w", executable, err)
	}
	p.log().Debug("runtime spawned", "executable", executable, "pid", cmd.Process.Pid, "cwd", req.CWD)

	stdin := &lockedWriter{writer: stdinPipe}
	if req.isMultiBlock() {
		queue := NewPromptQueue()
		if err := queue.Push(BuildUserMessage(req.Text, req.Attachments)); err != nil {
			return nil, err
		}
		queue.Close()
		cursor, err := queue.Consume()
		if err != nil {
			return nil, err
		}
		go p.feedPrompts(ctx, cursor, stdin)
	}

	events := make(chan Event, 16)
	go p.pump(ctx, cmd, stdout, stdin, &stderr, events)
	return events, nil
}

// buildArgs assembles the runtime command line for one exchange.
func (p *NativePath) buildArgs(req *Request) []string {
	mode := req.PermissionMode
	if mode == "" {
		mode = "default"
	}
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--permission-mode", mode,
		"--model", MapModel(req.Model),
		"--max-turns", fmt.Sprintf("%d", maxTurns),
	}
	for _, dir := range p.AddDirs {
		if dir != "" && dir != req.CWD {
			args = append(args, "--add-dir", dir)
		}
	}
	if req.ResumeSessionID != "" {
		args = append(args, "--resume", req.ResumeSessionID)
	}
	if req.isMultiBlock() {
		args = append(args, "--input-format", "stream-json")
	} else {
		args = append(args, req.Text)
	}
	return args
}

// runtimeEnv exports the resolved credentials to the subprocess on top of
// the inherited environment.
func (p *NativePath) runtimeEnv() []string {
	env := os.Environ()
	if p.Creds == nil {
		return env
	}
	if p.Creds.APIKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+p.Creds.APIKey)
	}
	if !p.Creds.IsOfficialEndpoint() {
		env = append(env, "ANTHROPIC_BASE_URL="+p.Creds.BaseURL)
	}
	return env
}

// feedPrompts drains the prompt queue into the runtime's stdin as JSONL and
// closes stdin once the queue is exhausted. In stream-json input mode the
// runtime reads stdin until EOF before it finishes the session, so the close
// is what lets the exchange complete.
func (p *NativePath) feedPrompts(ctx context.Context, cursor *QueueCursor, stdin *lockedWriter) {
	defer stdin.Close()
	for {
		message, ok, err := cursor.Next(ctx)
		if err != nil || !ok {
			return
		}
		data, err := json.Marshal(streamInput{Type: "user", Message: message})
		if err != nil {
			p.log().Error("marshal prompt", "error", err)
			return
		}
		if err := stdin.writeLine(data); err != nil {
			p.log().Debug("runtime stdin closed", "error", err)
			cursor.Cancel()
			return
		}
	}
}

// pump relays runtime stdout lines as events and settles the subprocess.
func (p *NativePath) pump(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, stdin *lockedWriter, stderr *strings.Builder, events chan<- Event) {
	defer close(events)

	sawResult := false
	scanner := bufio.NewScanner(stdout)
	// Single runtime events can embed whole files of tool output.
	const maxEventSize = 10 * 1024 * 1024
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if gjson.Get(line, "type").String() == "control_request" {
			p.handleControlRequest(line, stdin)
			continue
		}
		if gjson.Get(line, "type").String() == "result" {
			sawResult = true
		}
		events <- Event{Raw: []byte(line)}
	}
	scanErr := scanner.Err()

	stdin.Close()
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		// The orchestrator already decided the outcome; anything the
		// interrupted runtime reports now is noise.
		return
	}
	if scanErr != nil {
		events <- Event{Err: fmt.Errorf("read runtime output: %w", scanErr)}
		return
	}
	if waitErr != nil && !sawResult {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			events <- Event{Err: fmt.Errorf("claude runtime failed: %v: %s", waitErr, detail)}
			return
		}
		events <- Event{Err: fmt.Errorf("claude runtime failed: %w", waitErr)}
	}
}

// handleControlRequest answers a can_use_tool request over stdin. Unknown
// control subtypes are acknowledged permissively so an evolving runtime
// does not deadlock waiting on us.
func (p *NativePath) handleControlRequest(line string, stdin *lockedWriter) {
	requestID := gjson.Get(line, "request_id").String()
	if requestID == "" {
		return
	}
	toolName := gjson.Get(line, "request.tool_name").String()
	input := json.RawMessage(gjson.Get(line, "request.input").Raw)

	allowed := true
	if gjson.Get(line, "request.subtype").String() == "can_use_tool" && p.Permission != nil {
		allowed = p.Permission(toolName, input)
	}
	p.log().Debug("control request", "tool", toolName, "allowed", allowed)

	behavior := map[string]any{"behavior": "allow"}
	if len(input) > 0 {
		behavior["updatedInput"] = input
	}
	if !allowed {
		behavior = map[string]any{"behavior": "deny", "message": "denied by host"}
	}
	data, err := json.Marshal(controlResponse{
		Type: "control_response",
		Response: controlResponseBody{
			Subtype:   "success",
			RequestID: requestID,
			Response:  behavior,
		},
	})
	if err != nil {
		return
	}
	if err := stdin.writeLine(data); err != nil {
		p.log().Debug("control response dropped", "error", err)
	}
}

func (p *NativePath) log() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.New(slog.DiscardHandler)
}
