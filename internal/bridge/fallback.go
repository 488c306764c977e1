package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/dignmodahau/idea-claude-code-gui/internal/config"
	"github.com/dignmodahau/idea-claude-code-gui/internal/transcript"
)

// maxFallbackTokens bounds a single non-streaming completion.
const maxFallbackTokens = 8192

// transcriptTurn is the entry shape persisted for fallback exchanges. It
// mirrors the runtime's own transcript lines so both paths resume from the
// same files.
type transcriptTurn struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}

// FallbackPath serves plain-text exchanges directly over the Messages API
// when no runtime executable is available. Unlike the native path it owns
// session continuity itself: the transcript store is its memory.
type FallbackPath struct {
	// Creds supply the key and endpoint for the API client.
	Creds *config.Credentials
	// Store persists and replays the conversation.
	Store *transcript.Store
	// ProjectPath keys the transcript location.
	ProjectPath string
	// Log receives diagnostics.
	Log *slog.Logger
}

// Submit performs one non-streaming exchange and synthesizes the same event
// stream the native path produces, so the relay layer cannot tell the two
// apart. API failures surface as diagnostic events plus a trailing Err; the
// channel itself never fails.
func (p *FallbackPath) Submit(ctx context.Context, req *Request) (<-chan Event, error) {
	sessionID := req.ResumeSessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	userMessage := BuildUserMessage(req.Text, req.Attachments)
	if err := p.Store.Append(sessionID, p.ProjectPath, transcriptTurn{Type: "user", Message: userMessage}); err != nil {
		return nil, err
	}

	var history []transcript.HistoryMessage
	if req.ResumeSessionID != "" {
		loaded, err := p.Store.LoadHistory(sessionID, p.ProjectPath)
		if err != nil {
			return nil, err
		}
		history = loaded
	}

	events := make(chan Event, 8)
	go p.exchange(ctx, req, sessionID, userMessage, history, events)
	return events, nil
}

// exchange runs the API call and emits the synthesized event sequence.
func (p *FallbackPath) exchange(ctx context.Context, req *Request, sessionID string, userMessage Message, history []transcript.HistoryMessage, events chan<- Event) {
	defer close(events)
	started := time.Now()

	emit := func(event any) {
		data, err := json.Marshal(event)
		if err != nil {
			p.log().Error("marshal synthesized event", "error", err)
			return
		}
		events <- Event{Raw: data}
	}

	emit(SystemInitEvent{
		Type:           "system",
		Subtype:        "init",
		CWD:            req.CWD,
		SessionID:      sessionID,
		Model:          MapModel(req.Model),
		PermissionMode: req.PermissionMode,
		APIKeySource:   p.Creds.APIKeySource,
		UUID:           NewUUID(),
	})

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(MapAPIModel(req.Model)),
		MaxTokens: maxFallbackTokens,
		Messages:  buildAPIMessages(history, userMessage),
	}

	client := anthropic.NewClient(
		option.WithAPIKey(p.Creds.APIKey),
		option.WithBaseURL(p.Creds.BaseURL),
	)
	response, err := client.Messages.New(ctx, params)
	if err != nil {
		p.emitError(emit, events, sessionID, started, describeAPIError(err))
		return
	}
	if detail, bad := errorShapedBody(response.RawJSON()); bad {
		p.emitError(emit, events, sessionID, started, detail)
		return
	}

	assistant := Message{Role: "assistant", Content: responseBlocks(response)}
	if err := p.Store.Append(sessionID, p.ProjectPath, transcriptTurn{Type: "assistant", Message: assistant}); err != nil {
		// The exchange succeeded; losing the transcript write degrades
		// future resumption, not this response.
		p.log().Error("persist assistant turn", "error", err)
	}

	emit(AssistantEvent{
		Type: "assistant",
		Message: AssistantMessage{
			ID:         response.ID,
			Type:       "message",
			Role:       "assistant",
			Model:      string(response.Model),
			Content:    assistant.Content,
			StopReason: string(response.StopReason),
		},
		SessionID: sessionID,
		UUID:      NewUUID(),
	})
	emit(ResultEvent{
		Type:       "result",
		Subtype:    "success",
		IsError:    false,
		DurationMS: time.Since(started).Milliseconds(),
		NumTurns:   1,
		Result:     textOf(assistant.Content),
		SessionID:  sessionID,
		UUID:       NewUUID(),
	})
}

// emitError synthesizes the diagnostic tail of a failed exchange: an
// assistant placeholder carrying the diagnostic, an error result, then the
// soft failure itself.
func (p *FallbackPath) emitError(emit func(any), events chan<- Event, sessionID string, started time.Time, detail string) {
	p.log().Warn("fallback exchange failed", "detail", detail)
	emit(AssistantEvent{
		Type: "assistant",
		Message: AssistantMessage{
			ID:         NewUUID(),
			Type:       "message",
			Role:       "assistant",
			Content:    []ContentBlock{{Type: "text", Text: detail}},
			StopReason: "error",
		},
		SessionID: sessionID,
		UUID:      NewUUID(),
	})
	emit(ResultEvent{
		Type:       "result",
		Subtype:    "error",
		IsError:    true,
		DurationMS: time.Since(started).Milliseconds(),
		NumTurns:   1,
		Result:     detail,
		SessionID:  sessionID,
		UUID:       NewUUID(),
	})
	events <- Event{Err: errors.New(detail)}
}

// buildAPIMessages converts replayed history plus the current turn into API
// message params. Tool blocks from native-path transcripts are skipped;
// replaying orphaned tool calls would be rejected by the API.
func buildAPIMessages(history []transcript.HistoryMessage, current Message) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, item := range history {
		blocks := apiBlocks(historyBlocks(item.Content))
		if len(blocks) == 0 {
			continue
		}
		if item.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(blocks...))
	}
	return append(messages, anthropic.NewUserMessage(apiBlocks(current.Content)...))
}

// historyBlocks normalizes a raw history content value into content blocks.
// Entries written by the runtime may carry a bare string instead of an array.
func historyBlocks(raw json.RawMessage) []ContentBlock {
	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return blocks
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil && text != "" {
		return []ContentBlock{{Type: "text", Text: text}}
	}
	return nil
}

// apiBlocks maps bridge content blocks onto SDK params.
func apiBlocks(blocks []ContentBlock) []anthropic.ContentBlockParamUnion {
	params := make([]anthropic.ContentBlockParamUnion, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case "text":
			if block.Text != "" {
				params = append(params, anthropic.NewTextBlock(block.Text))
			}
		case "image":
			if block.Source != nil {
				params = append(params, anthropic.NewImageBlockBase64(block.Source.MediaType, block.Source.Data))
			}
		}
	}
	return params
}

// responseBlocks extracts the content blocks of an API response.
func responseBlocks(response *anthropic.Message) []ContentBlock {
	blocks := make([]ContentBlock, 0, len(response.Content))
	for _, block := range response.Content {
		if block.Type == "text" {
			blocks = append(blocks, ContentBlock{Type: "text", Text: block.Text})
		}
	}
	return blocks
}

// textOf concatenates the text blocks of a content array.
func textOf(blocks []ContentBlock) string {
	var builder strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}
	return builder.String()
}

// describeAPIError renders an SDK error as a one-line diagnostic, favoring
// the API's own error message when the payload carries one.
func describeAPIError(err error) string {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if message := gjson.Get(apiErr.RawJSON(), "error.message").String(); message != "" {
			return fmt.Sprintf("API error (HTTP %d): %s", apiErr.StatusCode, message)
		}
		return fmt.Sprintf("API error (HTTP %d)", apiErr.StatusCode)
	}
	return err.Error()
}

// errorShapedBody detects error payloads delivered with a success status.
func errorShapedBody(raw string) (string, bool) {
	if gjson.Get(raw, "type").String() == "error" || gjson.Get(raw, "error").IsObject() {
		message := gjson.Get(raw, "error.message").String()
		if message == "" {
			message = "API returned an error payload"
		}
		return "API error: " + message, true
	}
	return "", false
}

func (p *FallbackPath) log() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.New(slog.DiscardHandler)
}
