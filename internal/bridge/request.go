package bridge

import (
	"fmt"

	"github.com/dignmodahau/idea-claude-code-gui/internal/attachments"
)

// Request describes one send operation as resolved from the command surface.
type Request struct {
	// Text is the user's message, possibly empty when attachments carry
	// the whole payload.
	Text string
	// Attachments are the multi-modal inputs for this turn.
	Attachments []attachments.Attachment
	// ResumeSessionID continues an existing session when non-empty.
	ResumeSessionID string
	// CWD is the resolved execution root.
	CWD string
	// PermissionMode is the runtime permission mode name.
	PermissionMode string
	// Model is the caller-facing model identifier.
	Model string
}

// BuildUserMessage assembles the outgoing content blocks for a turn: one
// image block per image attachment, a text placeholder per non-image
// attachment, then the user's text. A turn with neither text nor
// attachments still produces a non-empty message so the runtime never
// receives an empty content array.
func BuildUserMessage(text string, items []attachments.Attachment) Message {
	blocks := make([]ContentBlock, 0, len(items)+1)
	for _, item := range items {
		if item.IsImage() {
			blocks = append(blocks, ContentBlock{
				Type: "image",
				Source: &ImageSource{
					Type:      "base64",
					MediaType: item.MediaType,
					Data:      item.Data,
				},
			})
			continue
		}
		name := item.FileName
		if name == "" {
			name = "untitled"
		}
		blocks = append(blocks, ContentBlock{
			Type: "text",
			Text: fmt.Sprintf("Attached file: %s (%s)", name, item.MediaType),
		})
	}
	if text != "" {
		blocks = append(blocks, ContentBlock{Type: "text", Text: text})
	}
	if len(blocks) == 0 {
		blocks = append(blocks, ContentBlock{
			Type: "text",
			Text: fmt.Sprintf("Sent %d attachment(s)", len(items)),
		})
	}
	return Message{Role: "user", Content: blocks}
}

// isMultiBlock reports whether the request needs content block framing
// instead of a plain prompt string.
func (r *Request) isMultiBlock() bool {
	return len(r.Attachments) > 0
}
