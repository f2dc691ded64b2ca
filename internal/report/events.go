package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventCreate    EventType = "create"
	EventOpen      EventType = "open"
	EventInsert    EventType = "insert"
	EventOverwrite EventType = "overwrite"
	EventCollision EventType = "collision"
	EventMetadata  EventType = "metadata"
	EventImport    EventType = "import"
	EventPurge     EventType = "purge"
	EventError     EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Event is one mutation of a spectrum library
type Event struct {
	Timestamp time.Time         `json:"ts"`
	Level     EventLevel        `json:"level"`
	Event     EventType         `json:"event"`
	Library   string            `json:"library,omitempty"` // unique id token
	Path      string            `json:"path,omitempty"`
	Filename  string            `json:"filename,omitempty"`
	SpecID    int64             `json:"spec_id,omitempty"`
	Origin    string            `json:"origin,omitempty"`
	Fields    []string          `json:"fields,omitempty"`
	Count     int               `json:"count,omitempty"`
	Duration  int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error     string            `json:"error,omitempty"`
	Extra     map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	// Append so that two runs within one second share a file
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogLifecycle logs creation, opening or purge of a library
func (l *EventLogger) LogLifecycle(event EventType, library, path string) error {
	level := LevelInfo
	if event == EventPurge {
		level = LevelWarning
	} else if event == EventOpen {
		level = LevelDebug
	}

	return l.Log(&Event{
		Level:   level,
		Event:   event,
		Library: library,
		Path:    path,
	})
}

// LogInsert logs a stored spectrum. replaced marks an overwrite.
func (l *EventLogger) LogInsert(library, filename, origin string, specID int64, replaced bool, duration time.Duration) error {
	event := EventInsert
	if replaced {
		event = EventOverwrite
	}

	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    event,
		Library:  library,
		Filename: filename,
		Origin:   origin,
		SpecID:   specID,
		Duration: duration.Milliseconds(),
	})
}

// LogImport records which source file a stored spectrum came from
func (l *EventLogger) LogImport(library, filename, source, digest string, specID int64) error {
	return l.Log(&Event{
		Level:    LevelInfo,
		Event:    EventImport,
		Library:  library,
		Filename: filename,
		SpecID:   specID,
		Extra:    map[string]string{"source": source, "blake3": digest},
	})
}

// LogCollision logs an insert refused because the filename is taken
func (l *EventLogger) LogCollision(library, filename string) error {
	return l.Log(&Event{
		Level:    LevelWarning,
		Event:    EventCollision,
		Library:  library,
		Filename: filename,
	})
}

// LogMetadata logs a metadata write over count spectra
func (l *EventLogger) LogMetadata(library string, fields []string, count int) error {
	return l.Log(&Event{
		Level:   LevelDebug,
		Event:   EventMetadata,
		Library: library,
		Fields:  fields,
		Count:   count,
	})
}

// LogError logs a failed operation
func (l *EventLogger) LogError(library, filename string, err error) error {
	return l.Log(&Event{
		Level:    LevelError,
		Event:    EventError,
		Library:  library,
		Filename: filename,
		Error:    err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
