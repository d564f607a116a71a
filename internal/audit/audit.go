// Package audit writes guardrail decisions to an append-only JSONL log.
// Every entry passes through the redaction layer first, so reasons recorded
// for operators never carry the sensitive content that triggered them.
package audit

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/oversightlab/sysguard/internal/redact"
)

// Stages and decisions recorded in audit events.
const (
	StageInput  = "input"
	StageOutput = "output"
	StageTool   = "tool"
	StageRate   = "rate"

	DecisionAllow    = "allow"
	DecisionBlock    = "block"
	DecisionThrottle = "throttle"
	DecisionWarn     = "warn"
	DecisionDeny     = "deny"
)

// Event is one guardrail decision.
type Event struct {
	Timestamp string            `json:"timestamp"`
	SessionID string            `json:"session_id,omitempty"`
	Stage     string            `json:"stage"`
	Decision  string            `json:"decision"`
	Category  string            `json:"category,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Tool      string            `json:"tool,omitempty"`
	ToolArgs  map[string]string `json:"tool_args,omitempty"`
	Host      string            `json:"host,omitempty"`
	Mode      string            `json:"mode"`
}

// Logger appends events to a JSONL file. Safe for concurrent use.
type Logger struct {
	file *os.File
	mu   sync.Mutex
}

func New(path string) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &Logger{file: file}, nil
}

// Log writes one event, redacting free-text fields first. A nil logger is a
// no-op so callers can run without auditing configured.
func (l *Logger) Log(event Event) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	event.Reason = redact.Redact(event.Reason)

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	data = append(data, '\n')
	_, err = l.file.Write(data)
	return err
}

func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
