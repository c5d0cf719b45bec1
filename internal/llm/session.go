package llm

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Interaction is one prompt/response exchange with the backend.
type Interaction struct {
	Timestamp string `json:"timestamp"`
	Prompt    string `json:"prompt"`
	Response  string `json:"response,omitempty"`
	JSONMode  bool   `json:"json_mode,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SessionLog correlates every backend call of one run under a session
// id and flushes the trail to a JSON file after each interaction.
// Constructed explicitly at run start and closed at run end; it is not
// a process-wide singleton.
type SessionLog struct {
	SessionID string        `json:"session_id"`
	StartedAt string        `json:"started_at"`
	Calls     []Interaction `json:"interactions"`

	path string
}

// OpenSessionLog creates the log directory and an empty session file.
func OpenSessionLog(dir string) (*SessionLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating session log dir: %w", err)
	}
	id := uuid.NewString()
	l := &SessionLog{
		SessionID: id,
		StartedAt: time.Now().Format(time.RFC3339),
		path:      filepath.Join(dir, fmt.Sprintf("session_%s.json", id)),
	}
	if err := l.flush(); err != nil {
		return nil, err
	}
	return l, nil
}

// Record appends one interaction and flushes the file. Flush failures
// are reported on stderr but never interrupt generation.
func (l *SessionLog) Record(in Interaction) {
	if l == nil {
		return
	}
	in.Timestamp = time.Now().Format(time.RFC3339)
	l.Calls = append(l.Calls, in)
	if err := l.flush(); err != nil {
		fmt.Fprintf(os.Stderr, "[session] Warning: failed to flush log: %v\n", err)
	}
}

// Len returns how many interactions were recorded.
func (l *SessionLog) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Calls)
}

// Close flushes the final state. Safe on a nil log.
func (l *SessionLog) Close() error {
	if l == nil {
		return nil
	}
	return l.flush()
}

// Path returns the session file location.
func (l *SessionLog) Path() string {
	return l.path
}

func (l *SessionLog) flush() error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding session log: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		return fmt.Errorf("writing session log: %w", err)
	}
	return nil
}
