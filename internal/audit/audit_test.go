package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("bad JSONL line %q: %v", scanner.Text(), err)
		}
		events = append(events, e)
	}
	return events
}

func TestLoggerWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	logger.Log(Event{
		SessionID: "s1",
		Stage:     StageInput,
		Decision:  DecisionBlock,
		Category:  "prompt_injection",
		Reason:    "detected injection pattern",
		Mode:      "production",
	})
	logger.Log(Event{
		Stage:    StageRate,
		Decision: DecisionThrottle,
		Reason:   "quota exceeded",
		Mode:     "production",
	})

	events := readEvents(t, path)
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}

	first := events[0]
	if first.SessionID != "s1" || first.Stage != StageInput || first.Decision != DecisionBlock {
		t.Errorf("first event = %+v", first)
	}
	if first.Timestamp == "" {
		t.Error("timestamp not stamped")
	}
	if events[1].Decision != DecisionThrottle {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestLoggerRedactsReason(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer logger.Close()

	logger.Log(Event{
		Stage:    StageOutput,
		Decision: DecisionBlock,
		Reason:   "output contained password=topsecret99",
	})

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "topsecret99") {
		t.Error("secret leaked into audit log")
	}
	if !strings.Contains(string(raw), "[REDACTED]") {
		t.Error("redaction placeholder missing")
	}
}

func TestLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	logger, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	logger.Log(Event{Stage: StageInput, Decision: DecisionAllow})
	logger.Close()

	logger, err = New(path)
	if err != nil {
		t.Fatal(err)
	}
	logger.Log(Event{Stage: StageTool, Decision: DecisionBlock})
	logger.Close()

	events := readEvents(t, path)
	if len(events) != 2 {
		t.Errorf("events after reopen = %d, want 2", len(events))
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var logger *Logger
	if err := logger.Log(Event{Stage: StageInput}); err != nil {
		t.Errorf("nil logger Log = %v, want nil", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("nil logger Close = %v, want nil", err)
	}
}
