package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dignmodahau/idea-claude-code-gui/internal/config"
	"github.com/dignmodahau/idea-claude-code-gui/internal/locator"
	"github.com/dignmodahau/idea-claude-code-gui/internal/transcript"
	"github.com/dignmodahau/idea-claude-code-gui/internal/workdir"
)

// DefaultTimeout is the wall-clock budget for one exchange.
const DefaultTimeout = 60 * time.Second

// timeoutMessage is the failure text the host expects on timeout.
const timeoutMessage = "Claude Code process aborted by user"

// deliveryPath abstracts the two ways of reaching the agent runtime.
type deliveryPath interface {
	Submit(ctx context.Context, req *Request) (<-chan Event, error)
}

// Bridge orchestrates one exchange end to end. A Bridge serves a single
// invocation; no state survives it except the transcript files.
type Bridge struct {
	// Relay writes the host protocol.
	Relay *Relay
	// Creds are the resolved credentials.
	Creds *config.Credentials
	// Store persists fallback transcripts.
	Store *transcript.Store
	// Workdir resolves the execution root.
	Workdir *workdir.Resolver
	// Locator finds the runtime executable.
	Locator *locator.Locator
	// Log receives diagnostics.
	Log *slog.Logger
	// Timeout bounds the exchange; zero means DefaultTimeout.
	Timeout time.Duration
	// PreferFallback routes plain-text sends through the Messages API even
	// when a runtime executable exists. Only honored on the official
	// endpoint.
	PreferFallback bool
	// newPath overrides path construction in tests.
	newPath func(executable string, req *Request) deliveryPath
}

// Send runs one exchange. Soft failures (timeout, transport, error-shaped
// responses) are reported on the protocol and return nil; the error return
// is reserved for faults before any protocol output made sense.
func (b *Bridge) Send(ctx context.Context, req *Request) error {
	req.CWD = b.Workdir.Resolve(req.CWD)
	b.log().Debug("context resolved", "cwd", req.CWD, "model", MapModel(req.Model), "resume", req.ResumeSessionID)

	b.Relay.MessageStart()
	if req.ResumeSessionID != "" {
		b.Relay.Resuming(req.ResumeSessionID)
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	events, err := b.selectPath(req).Submit(tctx, req)
	if err != nil {
		return b.Relay.Failure(err.Error())
	}

	sessionID := req.ResumeSessionID
	var softErr error
loop:
	for {
		select {
		case <-tctx.Done():
			return b.Relay.Failure(timeoutMessage)
		case event, ok := <-events:
			if !ok {
				break loop
			}
			if event.Err != nil {
				softErr = event.Err
				continue
			}
			b.relayEvent(event, &sessionID)
		}
	}

	// The producer may have closed the channel because the deadline fired
	// mid-read; that exchange still timed out.
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return b.Relay.Failure(timeoutMessage)
	}
	if softErr != nil {
		// The stream was drained to the end, so the exchange is complete
		// and gets its end marker; a timeout abandons the stream mid-read
		// and deliberately skips it.
		b.Relay.MessageEnd()
		return b.Relay.Failure(softErr.Error())
	}
	b.Relay.MessageEnd()
	return b.Relay.Success(sessionID)
}

// relayEvent forwards one runtime event and derives the auxiliary protocol
// lines the host renders from.
func (b *Bridge) relayEvent(event Event, sessionID *string) {
	line := string(event.Raw)
	b.Relay.MessageRaw(line)

	switch gjson.Get(line, "type").String() {
	case "assistant":
		for _, block := range gjson.Get(line, "message.content").Array() {
			switch block.Get("type").String() {
			case "text":
				b.Relay.Content(block.Get("text").String())
			case "tool_use":
				b.log().Debug("tool use", "tool", block.Get("name").String())
			}
		}
	case "system":
		if gjson.Get(line, "subtype").String() != "init" {
			return
		}
		if id := gjson.Get(line, "session_id").String(); id != "" {
			*sessionID = id
			b.Relay.SessionID(id)
		}
	}
}

// selectPath picks the delivery path for a request. Custom endpoints always
// use the native runtime, which honors ANTHROPIC_BASE_URL; attachments need
// the runtime's stream-json input. On the official endpoint, plain-text
// sends drop to the Messages API when the caller prefers it or no runtime
// executable is installed.
func (b *Bridge) selectPath(req *Request) deliveryPath {
	executable := b.Locator.Find()

	if !req.isMultiBlock() && b.Creds.IsOfficialEndpoint() {
		if b.PreferFallback || executable == "" {
			b.log().Debug("delivery path selected", "path", "fallback")
			return b.buildPath("", req)
		}
	}
	b.log().Debug("delivery path selected", "path", "native", "executable", executable)
	return b.buildPath(executableOrDefault(executable), req)
}

func executableOrDefault(executable string) string {
	if executable == "" {
		return defaultExecutable
	}
	return executable
}

// buildPath constructs the concrete path; an empty executable means the
// fallback. Tests install their own constructor.
func (b *Bridge) buildPath(executable string, req *Request) deliveryPath {
	if b.newPath != nil {
		return b.newPath(executable, req)
	}
	if executable == "" {
		return &FallbackPath{
			Creds:       b.Creds,
			Store:       b.Store,
			ProjectPath: req.CWD,
			Log:         b.log(),
		}
	}
	return &NativePath{
		Executable: executable,
		Creds:      b.Creds,
		AddDirs:    b.allowedDirs(req),
		Permission: b.permissionFunc(req),
		Log:        b.log(),
	}
}

// allowedDirs lists extra directories the runtime may touch beyond its cwd.
func (b *Bridge) allowedDirs(req *Request) []string {
	var dirs []string
	if b.Workdir.ProjectDir != "" && b.Workdir.ProjectDir != req.CWD {
		dirs = append(dirs, b.Workdir.ProjectDir)
	}
	return dirs
}

// permissionFunc wires tool-use arbitration only in the interactive default
// mode; every other mode already encodes a decision the runtime applies by
// itself.
func (b *Bridge) permissionFunc(req *Request) PermissionFunc {
	if req.PermissionMode != "" && req.PermissionMode != "default" {
		return nil
	}
	log := b.log()
	return func(toolName string, input json.RawMessage) bool {
		// The desktop host reviews tool activity through the relayed
		// events; the bridge itself does not block the exchange.
		log.Info("tool permitted", "tool", toolName)
		return true
	}
}

func (b *Bridge) log() *slog.Logger {
	if b.Log != nil {
		return b.Log
	}
	return slog.New(slog.DiscardHandler)
}
