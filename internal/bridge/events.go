// Package bridge runs one IDE-to-agent exchange: it resolves the execution
// context, dispatches the user message over a delivery path, and relays the
// runtime's progress events to stdout as a tagged line protocol.
package bridge

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// Message is the high-level message payload carried by runtime events.
type Message struct {
	// Role is one of user, assistant, or system.
	Role string `json:"role"`
	// Content is the content block array.
	Content []ContentBlock `json:"content"`
}

// ContentBlock is an Anthropic-style content block.
type ContentBlock struct {
	// Type determines how the block is interpreted.
	Type string `json:"type"`
	// Text carries plain text content.
	Text string `json:"text,omitempty"`
	// Source carries base64 image data for image blocks.
	Source *ImageSource `json:"source,omitempty"`
	// ID identifies a tool call, when Type == tool_use.
	ID string `json:"id,omitempty"`
	// Name specifies the tool name for tool_use blocks.
	Name string `json:"name,omitempty"`
	// Input holds the tool input object for tool_use blocks.
	Input any `json:"input,omitempty"`
}

// ImageSource is the base64 payload of an image content block.
type ImageSource struct {
	// Type is always "base64".
	Type string `json:"type"`
	// MediaType is the image MIME type.
	MediaType string `json:"media_type"`
	// Data is the base64-encoded image bytes.
	Data string `json:"data"`
}

// SystemInitEvent mirrors the runtime's session announcement line.
type SystemInitEvent struct {
	// Type is always "system".
	Type string `json:"type"`
	// Subtype is "init" for session announcements.
	Subtype string `json:"subtype"`
	// CWD is the runtime's working directory.
	CWD string `json:"cwd,omitempty"`
	// SessionID is the authoritative session identifier.
	SessionID string `json:"session_id"`
	// Model is the active model short name.
	Model string `json:"model,omitempty"`
	// PermissionMode reflects the active permission mode.
	PermissionMode string `json:"permissionMode,omitempty"`
	// APIKeySource records where the key came from.
	APIKeySource string `json:"apiKeySource,omitempty"`
	// UUID uniquely identifies the event.
	UUID string `json:"uuid"`
}

// AssistantEvent is one assistant turn in the event stream.
type AssistantEvent struct {
	// Type is always "assistant".
	Type string `json:"type"`
	// Message carries the assistant message payload.
	Message AssistantMessage `json:"message"`
	// SessionID scopes the event to a session.
	SessionID string `json:"session_id"`
	// ParentToolUseID is reserved for nested tool calls.
	ParentToolUseID any `json:"parent_tool_use_id"`
	// UUID uniquely identifies the event.
	UUID string `json:"uuid"`
}

// AssistantMessage is the message body of an AssistantEvent.
type AssistantMessage struct {
	// ID is the message identifier.
	ID string `json:"id"`
	// Type is always "message".
	Type string `json:"type"`
	// Role is always "assistant".
	Role string `json:"role"`
	// Model is the model that produced the turn.
	Model string `json:"model,omitempty"`
	// Content is the content block array.
	Content []ContentBlock `json:"content"`
	// StopReason indicates why generation stopped; "error" marks a
	// diagnostic placeholder turn.
	StopReason string `json:"stop_reason,omitempty"`
}

// ResultEvent is the terminal event of an exchange.
type ResultEvent struct {
	// Type is always "result".
	Type string `json:"type"`
	// Subtype describes success or error conditions.
	Subtype string `json:"subtype"`
	// IsError reports whether the exchange ended in an error.
	IsError bool `json:"is_error"`
	// DurationMS is the total exchange time in milliseconds.
	DurationMS int64 `json:"duration_ms"`
	// NumTurns is the number of assistant turns processed.
	NumTurns int `json:"num_turns"`
	// Result contains the final assistant text or diagnostic.
	Result string `json:"result,omitempty"`
	// SessionID scopes the event to a session.
	SessionID string `json:"session_id"`
	// UUID uniquely identifies the event.
	UUID string `json:"uuid"`
}

// Event is one progress item produced by a delivery path. Exactly one of
// Raw and Err is set: Raw is the serialized runtime event relayed verbatim,
// Err marks the stream as having ended in a soft failure.
type Event struct {
	Raw []byte
	Err error
}

// NewUUID returns a fresh identifier for synthesized events.
func NewUUID() string {
	return uuid.NewString()
}

// Tagged line prefixes of the host protocol. The IDE plugin dispatches on
// these markers, so their spelling is load-bearing.
const (
	tagMessageStart = "[MESSAGE_START]"
	tagMessage      = "[MESSAGE]"
	tagContent      = "[CONTENT]"
	tagSessionID    = "[SESSION_ID]"
	tagResuming     = "[RESUMING]"
	tagMessageEnd   = "[MESSAGE_END]"
)

// terminalRecord is the bare JSON line that ends every invocation.
type terminalRecord struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Relay writes the tagged line protocol consumed by the host plugin.
// All methods write exactly one line.
type Relay struct {
	writer io.Writer
}

// NewRelay constructs a Relay over the given stream, normally stdout.
func NewRelay(writer io.Writer) *Relay {
	return &Relay{writer: writer}
}

// MessageStart announces that an exchange has begun.
func (r *Relay) MessageStart() {
	fmt.Fprintln(r.writer, tagMessageStart)
}

// MessageRaw relays a serialized runtime event verbatim.
func (r *Relay) MessageRaw(line string) {
	fmt.Fprintf(r.writer, "%s %s\n", tagMessage, line)
}

// Content relays one assistant text block for hosts that render plain text.
func (r *Relay) Content(text string) {
	fmt.Fprintf(r.writer, "%s %s\n", tagContent, text)
}

// SessionID announces the authoritative session identifier.
func (r *Relay) SessionID(id string) {
	fmt.Fprintf(r.writer, "%s %s\n", tagSessionID, id)
}

// Resuming announces that the exchange continues an existing session.
func (r *Relay) Resuming(id string) {
	fmt.Fprintf(r.writer, "%s %s\n", tagResuming, id)
}

// MessageEnd announces stream exhaustion.
func (r *Relay) MessageEnd() {
	fmt.Fprintln(r.writer, tagMessageEnd)
}

// Success writes the terminal success record. It must be the last line of
// the invocation.
func (r *Relay) Success(sessionID string) error {
	return r.terminal(terminalRecord{Success: true, SessionID: sessionID})
}

// Failure writes the terminal failure record.
func (r *Relay) Failure(message string) error {
	return r.terminal(terminalRecord{Success: false, Error: message})
}

func (r *Relay) terminal(record terminalRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal terminal record: %w", err)
	}
	if _, err := fmt.Fprintf(r.writer, "%s\n", data); err != nil {
		return fmt.Errorf("write terminal record: %w", err)
	}
	return nil
}
