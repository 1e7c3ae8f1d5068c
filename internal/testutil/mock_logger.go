// Package testutil provides shared helpers for ipscope unit tests.
package testutil

import (
	"sync"

	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
)

// LogEntry is a single captured log call.
type LogEntry struct {
	Level   string
	Logger  string
	Message string
	Fields  []logging.Field
}

// logSink is shared between a MockLogger and all children created via
// With/Named so that every entry is observable from the root handle.
type logSink struct {
	mu      sync.Mutex
	entries []LogEntry
}

// MockLogger implements logging.Logger and records every entry so tests can
// assert on what was logged.  Safe for concurrent use.
type MockLogger struct {
	sink *logSink

	// context accumulated via With/Named on this handle
	name   string
	fields []logging.Field
}

// NewMockLogger creates an empty MockLogger.
func NewMockLogger() *MockLogger {
	return &MockLogger{sink: &logSink{}}
}

func (m *MockLogger) log(level, msg string, fields []logging.Field) {
	all := make([]logging.Field, 0, len(m.fields)+len(fields))
	all = append(all, m.fields...)
	all = append(all, fields...)

	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	m.sink.entries = append(m.sink.entries, LogEntry{
		Level:   level,
		Logger:  m.name,
		Message: msg,
		Fields:  all,
	})
}

func (m *MockLogger) Debug(msg string, fields ...logging.Field) { m.log("debug", msg, fields) }
func (m *MockLogger) Info(msg string, fields ...logging.Field)  { m.log("info", msg, fields) }
func (m *MockLogger) Warn(msg string, fields ...logging.Field)  { m.log("warn", msg, fields) }
func (m *MockLogger) Error(msg string, fields ...logging.Field) { m.log("error", msg, fields) }
func (m *MockLogger) Fatal(msg string, fields ...logging.Field) { m.log("fatal", msg, fields) }

// With returns a child that carries the supplied fields and writes into the
// parent's entry sink.
func (m *MockLogger) With(fields ...logging.Field) logging.Logger {
	child := &MockLogger{sink: m.sink, name: m.name}
	child.fields = append(append([]logging.Field{}, m.fields...), fields...)
	return child
}

func (m *MockLogger) Named(name string) logging.Logger {
	full := name
	if m.name != "" {
		full = m.name + "." + name
	}
	child := &MockLogger{sink: m.sink, name: full}
	child.fields = append([]logging.Field{}, m.fields...)
	return child
}

// Entries returns a copy of everything logged so far through this logger and
// all of its children.
func (m *MockLogger) Entries() []LogEntry {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	out := make([]LogEntry, len(m.sink.entries))
	copy(out, m.sink.entries)
	return out
}

// Clear discards all captured entries.
func (m *MockLogger) Clear() {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	m.sink.entries = m.sink.entries[:0]
}

// HasEntry reports whether an entry with the given level and exact message
// was captured.
func (m *MockLogger) HasEntry(level, msg string) bool {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	for _, e := range m.sink.entries {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// FieldValue returns the value of the first field with the given key on the
// first entry matching the message, or nil when absent.
func (m *MockLogger) FieldValue(msg, key string) interface{} {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	for _, e := range m.sink.entries {
		if e.Message != msg {
			continue
		}
		for _, f := range e.Fields {
			if f.Key == key {
				return f.Value
			}
		}
	}
	return nil
}
