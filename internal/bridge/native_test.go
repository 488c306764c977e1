package bridge

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dignmodahau/idea-claude-code-gui/internal/attachments"
	"github.com/dignmodahau/idea-claude-code-gui/internal/config"
)

// writeStubRuntime installs a shell script standing in for the runtime and
// points BRIDGE_TEST_OUT at a scratch dir the script can report into.
func writeStubRuntime(t *testing.T, script string) (string, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub runtime scripts require a POSIX shell")
	}
	outDir := t.TempDir()
	t.Setenv("BRIDGE_TEST_OUT", outDir)
	path := filepath.Join(t.TempDir(), "claude")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write stub runtime: %v", err)
	}
	return path, outDir
}

func nativePath(executable string) *NativePath {
	return &NativePath{
		Executable: executable,
		Creds:      &config.Credentials{APIKey: "key", BaseURL: config.DefaultBaseURL},
	}
}

func TestNativeRelaysRuntimeEvents(t *testing.T) {
	executable, outDir := writeStubRuntime(t, `
printf '%s\n' "$*" > "$BRIDGE_TEST_OUT/args"
echo '{"type":"system","subtype":"init","session_id":"sess-native"}'
echo '{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"native hi"}]}}'
echo '{"type":"result","subtype":"success","is_error":false}'
`)

	events, err := nativePath(executable).Submit(context.Background(), &Request{
		Text:            "hello runtime",
		CWD:             t.TempDir(),
		Model:           "claude-opus-4-20250514",
		ResumeSessionID: "sess-native",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	lines, soft := drainEvents(t, events)
	if soft != nil {
		t.Fatalf("unexpected soft error: %v", soft)
	}
	if len(lines) != 3 {
		t.Fatalf("events = %d, want 3:\n%v", len(lines), lines)
	}
	if gjson.Get(lines[0], "session_id").String() != "sess-native" {
		t.Fatalf("unexpected init event: %s", lines[0])
	}

	raw, err := os.ReadFile(filepath.Join(outDir, "args"))
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	args := string(raw)
	for _, want := range []string{
		"--print",
		"--output-format stream-json",
		"--permission-mode default",
		"--model opus",
		"--max-turns 250",
		"--resume sess-native",
		"hello runtime",
	} {
		if !strings.Contains(args, want) {
			t.Fatalf("args missing %q: %s", want, args)
		}
	}
	if strings.Contains(args, "--input-format") {
		t.Fatalf("plain text send must not use stream-json input: %s", args)
	}
}

func TestNativeFeedsMultiBlockMessageOverStdin(t *testing.T) {
	executable, outDir := writeStubRuntime(t, `
printf '%s\n' "$*" > "$BRIDGE_TEST_OUT/args"
read -r line
printf '%s\n' "$line" > "$BRIDGE_TEST_OUT/stdin"
echo '{"type":"result","subtype":"success","is_error":false}'
`)

	events, err := nativePath(executable).Submit(context.Background(), &Request{
		Text: "describe this",
		Attachments: []attachments.Attachment{
			{FileName: "shot.png", MediaType: "image/png", Data: "aW1n"},
		},
		CWD: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, soft := drainEvents(t, events); soft != nil {
		t.Fatalf("unexpected soft error: %v", soft)
	}

	raw, err := os.ReadFile(filepath.Join(outDir, "args"))
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if !strings.Contains(string(raw), "--input-format stream-json") {
		t.Fatalf("multi-block send must use stream-json input: %s", raw)
	}

	stdinRaw, err := os.ReadFile(filepath.Join(outDir, "stdin"))
	if err != nil {
		t.Fatalf("read captured stdin: %v", err)
	}
	line := strings.TrimSpace(string(stdinRaw))
	if gjson.Get(line, "type").String() != "user" {
		t.Fatalf("unexpected stdin frame: %s", line)
	}
	if gjson.Get(line, "message.content.0.source.data").String() != "aW1n" {
		t.Fatalf("image block missing from stdin frame: %s", line)
	}
	if gjson.Get(line, "message.content.1.text").String() != "describe this" {
		t.Fatalf("text block missing from stdin frame: %s", line)
	}
}

func TestNativeMultiBlockSendReachesStdinEOF(t *testing.T) {
	// The runtime in stream-json input mode reads stdin to EOF before it
	// finishes the session; a bridge that never closes stdin would hang
	// this stub forever and the result event would be lost.
	executable, outDir := writeStubRuntime(t, `
while read -r line; do printf '%s\n' "$line" >> "$BRIDGE_TEST_OUT/stdin"; done
echo '{"type":"result","subtype":"success","is_error":false}'
`)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	events, err := nativePath(executable).Submit(ctx, &Request{
		Text: "describe this",
		Attachments: []attachments.Attachment{
			{FileName: "shot.png", MediaType: "image/png", Data: "aW1n"},
		},
		CWD: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	lines, soft := drainEvents(t, events)
	if soft != nil {
		t.Fatalf("unexpected soft error: %v", soft)
	}
	if len(lines) != 1 || gjson.Get(lines[0], "type").String() != "result" {
		t.Fatalf("result event lost, got: %v", lines)
	}

	stdinRaw, err := os.ReadFile(filepath.Join(outDir, "stdin"))
	if err != nil {
		t.Fatalf("read captured stdin: %v", err)
	}
	if got := strings.Count(string(stdinRaw), "\n"); got != 1 {
		t.Fatalf("stdin frames = %d, want exactly the prompt: %q", got, stdinRaw)
	}
}

func TestNativeAnswersControlRequests(t *testing.T) {
	executable, outDir := writeStubRuntime(t, `
echo '{"type":"control_request","request_id":"req-1","request":{"subtype":"can_use_tool","tool_name":"Bash","input":{"command":"ls"}}}'
read -r line
printf '%s\n' "$line" > "$BRIDGE_TEST_OUT/control"
echo '{"type":"result","subtype":"success","is_error":false}'
`)

	var askedTool string
	path := nativePath(executable)
	path.Permission = func(toolName string, input json.RawMessage) bool {
		askedTool = toolName
		return true
	}

	events, err := path.Submit(context.Background(), &Request{Text: "run ls", CWD: t.TempDir()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	lines, soft := drainEvents(t, events)
	if soft != nil {
		t.Fatalf("unexpected soft error: %v", soft)
	}

	// Control traffic stays internal; only the result event is relayed.
	if len(lines) != 1 || gjson.Get(lines[0], "type").String() != "result" {
		t.Fatalf("unexpected relayed events: %v", lines)
	}
	if askedTool != "Bash" {
		t.Fatalf("permission callback saw tool %q", askedTool)
	}

	raw, err := os.ReadFile(filepath.Join(outDir, "control"))
	if err != nil {
		t.Fatalf("read control response: %v", err)
	}
	response := strings.TrimSpace(string(raw))
	if gjson.Get(response, "type").String() != "control_response" {
		t.Fatalf("unexpected control response: %s", response)
	}
	if gjson.Get(response, "response.request_id").String() != "req-1" {
		t.Fatalf("control response request id mismatch: %s", response)
	}
	if gjson.Get(response, "response.response.behavior").String() != "allow" {
		t.Fatalf("control response behavior mismatch: %s", response)
	}
}

func TestNativeAbnormalExitYieldsSoftError(t *testing.T) {
	executable, _ := writeStubRuntime(t, `
echo 'runtime exploded' >&2
exit 3
`)

	events, err := nativePath(executable).Submit(context.Background(), &Request{Text: "hi", CWD: t.TempDir()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	lines, soft := drainEvents(t, events)

	if len(lines) != 0 {
		t.Fatalf("unexpected events: %v", lines)
	}
	if soft == nil || !strings.Contains(soft.Error(), "runtime exploded") {
		t.Fatalf("expected stderr detail in soft error, got %v", soft)
	}
}

func TestNativeReleasesSubprocessOnCancellation(t *testing.T) {
	executable, _ := writeStubRuntime(t, `
sleep 30
`)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	events, err := nativePath(executable).Submit(ctx, &Request{Text: "hi", CWD: t.TempDir()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	start := time.Now()
	_, soft := drainEvents(t, events)
	if soft != nil {
		t.Fatalf("timeout must not surface as a path error, got %v", soft)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("subprocess not released after cancellation: %v", elapsed)
	}
}
