// Package attachments obtains the multi-modal payload a send command may
// carry, decoupled from argv because encoded files do not fit there.
package attachments

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"
)

// ActivationEnv gates the stdin side channel; the host sets it to
// ActivationValue when it will pipe attachment JSON into the process.
const ActivationEnv = "CLAUDE_BRIDGE_ATTACHMENTS"

// ActivationValue is the ActivationEnv value that enables the side channel.
const ActivationValue = "stdin"

// LegacyFileEnv names a file holding attachment JSON, used by older hosts
// that cannot pipe stdin.
const LegacyFileEnv = "CLAUDE_BRIDGE_ATTACHMENT_FILE"

// DefaultTimeout bounds the side-channel read. A host that enabled the
// channel but never writes must not hang the whole invocation.
const DefaultTimeout = 5 * time.Second

// Attachment is one multi-modal input normalized to base64 form.
type Attachment struct {
	// FileName is the original file name, for display placeholders.
	FileName string `json:"fileName,omitempty"`
	// MediaType is the MIME type, e.g. image/png.
	MediaType string `json:"mediaType"`
	// Data is the base64-encoded file content.
	Data string `json:"data"`
}

// IsImage reports whether the attachment can ride an image content block.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MediaType, "image/")
}

// envelope is the wrapped payload shape some hosts send.
type envelope struct {
	Attachments []Attachment `json:"attachments"`
}

// Loader reads attachments from the configured sources. Attachment loading
// never fails a request: every malformed or missing source degrades to an
// empty result.
type Loader struct {
	// SideChannel is the stream the host pipes JSON into, usually stdin.
	SideChannel io.Reader
	// SideChannelEnabled mirrors the activation env flag.
	SideChannelEnabled bool
	// LegacyFile is the drop-file path, empty when unset.
	LegacyFile string
	// Timeout bounds the side-channel read.
	Timeout time.Duration
}

// NewLoader builds a Loader from the process environment, reading the side
// channel from the given stream.
func NewLoader(sideChannel io.Reader) *Loader {
	return &Loader{
		SideChannel:        sideChannel,
		SideChannelEnabled: os.Getenv(ActivationEnv) == ActivationValue,
		LegacyFile:         os.Getenv(LegacyFileEnv),
		Timeout:            DefaultTimeout,
	}
}

// Load returns the attachments for this invocation. The side channel is
// preferred when enabled; the legacy drop file is the fallback.
func (l *Loader) Load() []Attachment {
	if l.SideChannelEnabled && l.SideChannel != nil {
		if parsed := parsePayload(l.readSideChannel()); len(parsed) > 0 {
			return parsed
		}
	}
	if l.LegacyFile != "" {
		raw, err := os.ReadFile(l.LegacyFile)
		if err != nil {
			return nil
		}
		return parsePayload(raw)
	}
	return nil
}

// readSideChannel drains the side channel, giving up after the timeout. The
// reader goroutine is abandoned on timeout; this is a per-invocation process
// and the goroutine dies with it.
func (l *Loader) readSideChannel() []byte {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	type readResult struct {
		data []byte
		err  error
	}
	results := make(chan readResult, 1)
	go func() {
		data, err := io.ReadAll(l.SideChannel)
		results <- readResult{data: data, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-results:
		if result.err != nil {
			return nil
		}
		return result.data
	case <-timer.C:
		return nil
	}
}

// parsePayload accepts either a bare attachment array or an object wrapping
// one under "attachments". Anything else parses to nothing.
func parsePayload(raw []byte) []Attachment {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil
	}

	var bare []Attachment
	if err := json.Unmarshal([]byte(trimmed), &bare); err == nil {
		return bare
	}
	var wrapped envelope
	if err := json.Unmarshal([]byte(trimmed), &wrapped); err == nil {
		return wrapped.Attachments
	}
	return nil
}
