package logging

import (
	"log/slog"
	"strings"
	"sync"
)

// Recorder receives named events from the extraction core. Fields are
// alternating key/value pairs, the same shape slog takes.
type Recorder interface {
	Record(event string, fields ...any)
}

// SlogRecorder writes events to a slog.Logger. Events whose name ends in
// ".failed" or ".error" are logged at warn level, everything else at info.
type SlogRecorder struct {
	Log *slog.Logger
}

func NewSlogRecorder(log *slog.Logger) *SlogRecorder {
	return &SlogRecorder{Log: log}
}

func (r *SlogRecorder) Record(event string, fields ...any) {
	if r == nil || r.Log == nil {
		return
	}
	if isFailure(event) {
		r.Log.Warn(event, fields...)
		return
	}
	r.Log.Info(event, fields...)
}

func isFailure(event string) bool {
	return strings.HasSuffix(event, ".failed") || strings.HasSuffix(event, ".error")
}

// Nop drops every event.
type Nop struct{}

func (Nop) Record(string, ...any) {}

// Event is one captured Record call.
type Event struct {
	Name   string
	Fields []any
}

// Memory keeps every event in order. Safe for concurrent use.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Record(event string, fields ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{Name: event, Fields: append([]any(nil), fields...)})
}

// Events returns a copy of the captured events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Count returns how many events with the given name were recorded.
func (m *Memory) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Name == name {
			n++
		}
	}
	return n
}
