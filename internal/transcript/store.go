// Package transcript persists conversation history as per-session JSONL
// files so a fresh bridge process can reconstruct a multi-turn exchange.
package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrSessionNotFound is returned when no transcript exists for a session id.
// The text is surfaced verbatim on the host protocol.
var ErrSessionNotFound = errors.New("Session file not found")

// Store manages transcripts under <BaseDir>/projects/<project>/<session>.jsonl.
type Store struct {
	// BaseDir is the root for all persisted bridge state.
	BaseDir string
}

// HistoryMessage is one replayed turn in {role, content} shape. Content is
// kept raw because entries may carry either a plain string or a content
// block array and both must survive verbatim.
type HistoryMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// NewStore constructs a Store rooted at ~/.claude-bridge.
func NewStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home dir: %w", err)
	}
	return &Store{BaseDir: filepath.Join(home, ".claude-bridge")}, nil
}

// SanitizeProjectPath maps a project path to a filesystem-safe directory
// name. Every rune outside [A-Za-z0-9] becomes a dash, matching the layout
// the agent runtime itself uses for its project directories.
func SanitizeProjectPath(path string) string {
	var builder strings.Builder
	builder.Grow(len(path))
	for _, r := range path {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		default:
			builder.WriteByte('-')
		}
	}
	return builder.String()
}

// SessionPath returns the JSONL path for a session within a project.
func (s *Store) SessionPath(projectPath, sessionID string) string {
	return filepath.Join(s.BaseDir, "projects", SanitizeProjectPath(projectPath), sessionID+".jsonl")
}

// Append serializes entry and appends it as one JSONL line, enriched with a
// fresh uuid, the owning sessionId and an RFC3339 timestamp. Enrichment uses
// field-level edits so passthrough fields of the entry survive verbatim.
func (s *Store) Append(sessionID, projectPath string, entry any) error {
	if sessionID == "" {
		return errors.New("session id required")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal transcript entry: %w", err)
	}
	if data, err = sjson.SetBytes(data, "uuid", uuid.NewString()); err != nil {
		return fmt.Errorf("enrich transcript entry: %w", err)
	}
	if data, err = sjson.SetBytes(data, "sessionId", sessionID); err != nil {
		return fmt.Errorf("enrich transcript entry: %w", err)
	}
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	if data, err = sjson.SetBytes(data, "timestamp", stamp); err != nil {
		return fmt.Errorf("enrich transcript entry: %w", err)
	}

	path := s.SessionPath(projectPath, sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open transcript file: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write transcript entry: %w", err)
	}
	return nil
}

// LoadHistory reconstructs the conversation as alternating {role, content}
// messages. Unparsable lines are skipped, only user and assistant entries
// participate, and a trailing user entry is dropped because the current turn
// is persisted before dispatch and must not be replayed as history.
func (s *Store) LoadHistory(sessionID, projectPath string) ([]HistoryMessage, error) {
	lines, err := s.readLines(sessionID, projectPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var history []HistoryMessage
	for _, line := range lines {
		if !gjson.Valid(line) {
			continue
		}
		role := gjson.Get(line, "type").String()
		if role != "user" && role != "assistant" {
			continue
		}
		content := gjson.Get(line, "message.content")
		if !content.Exists() {
			continue
		}
		history = append(history, HistoryMessage{
			Role:    role,
			Content: json.RawMessage(content.Raw),
		})
	}

	if n := len(history); n > 0 && history[n-1].Role == "user" {
		history = history[:n-1]
	}
	return history, nil
}

// LoadRaw returns every well-formed transcript entry verbatim, in file
// order. A missing transcript yields ErrSessionNotFound.
func (s *Store) LoadRaw(sessionID, projectPath string) ([]json.RawMessage, error) {
	lines, err := s.readLines(sessionID, projectPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	entries := make([]json.RawMessage, 0, len(lines))
	for _, line := range lines {
		if !gjson.Valid(line) {
			continue
		}
		entries = append(entries, json.RawMessage(line))
	}
	return entries, nil
}

// readLines returns the non-empty lines of a session file.
func (s *Store) readLines(sessionID, projectPath string) ([]string, error) {
	file, err := os.Open(s.SessionPath(projectPath, sessionID))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	// Assistant turns can embed large tool output; size the buffer so such
	// lines are not dropped mid-session.
	const maxEntrySize = 10 * 1024 * 1024
	scanner.Buffer(make([]byte, 0, 64*1024), maxEntrySize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read transcript file: %w", err)
	}
	return lines, nil
}
