package cliutil

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/Paintersrp/hookall/internal/engine"
	"github.com/Paintersrp/hookall/internal/runtime"
)

// LogRecord represents a structured child log line ready for JSON encoding.
type LogRecord struct {
	Timestamp time.Time `json:"ts"`
	Target    int       `json:"target"`
	PID       int       `json:"pid,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"msg"`
	Source    string    `json:"source"`
}

// NewLogRecord converts an engine event into a structured log record with
// secrets masked.
func NewLogRecord(event engine.Event) LogRecord {
	level := event.Level
	if level == "" {
		if inferred := inferLogLevel(event.Message); inferred != "" {
			level = inferred
		} else {
			level = "info"
		}
	}
	source := event.Source
	if source == "" {
		source = runtime.LogSourceSystem
	}
	return LogRecord{
		Timestamp: event.Timestamp,
		Target:    event.Target,
		PID:       event.ChildPID,
		Level:     level,
		Message:   RedactSecrets(event.Message),
		Source:    source,
	}
}

var levelTokenPattern = regexp.MustCompile(`(?i)\b(error|warn|info)\b`)

func inferLogLevel(message string) string {
	matches := levelTokenPattern.FindStringSubmatch(message)
	if len(matches) < 2 {
		return ""
	}
	switch strings.ToLower(matches[1]) {
	case "error":
		return "error"
	case "warn":
		return "warn"
	case "info":
		return "info"
	default:
		return ""
	}
}

// EncodeLogEvent encodes a log event to JSON, reporting errors to stderr if needed.
func EncodeLogEvent(enc *json.Encoder, stderr io.Writer, event engine.Event) {
	if enc == nil {
		return
	}
	record := NewLogRecord(event)
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}
	if err := enc.Encode(&record); err != nil {
		fmt.Fprintf(stderr, "error: encode log: %v\n", err)
	}
}

// WriteLogLine renders a log event as a single "[pid 1234] message" line.
// Lines from stderr or the supervisor itself carry the source after the pid.
func WriteLogLine(w io.Writer, event engine.Event) {
	record := NewLogRecord(event)
	prefix := fmt.Sprintf("[pid %d]", record.Target)
	if record.Source != runtime.LogSourceStdout {
		prefix = fmt.Sprintf("[pid %d %s]", record.Target, record.Source)
	}
	fmt.Fprintf(w, "%s %s\n", prefix, record.Message)
}
