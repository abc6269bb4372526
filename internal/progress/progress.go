// Package progress carries human-readable status messages from long-running
// pipeline stages to whoever is watching: a console, a log, an HTTP response.
package progress

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Level classifies a progress message.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Message is one progress update. EventID and File locate the message when
// they apply.
type Message struct {
	Level   Level  `json:"level"`
	EventID string `json:"event_id,omitempty"`
	File    string `json:"file,omitempty"`
	Text    string `json:"text"`
}

func (m Message) String() string {
	prefix := ""
	if m.Level == LevelError {
		prefix = "ERROR: "
	}
	if m.File != "" {
		return fmt.Sprintf("%s[%s] %s", prefix, m.File, m.Text)
	}
	return prefix + m.Text
}

// Sink receives progress messages. Record is called in-line with processing
// and must return promptly.
type Sink interface {
	Record(msg Message)
}

// Func adapts a plain function to a Sink.
type Func func(Message)

// Record implements Sink.
func (f Func) Record(msg Message) { f(msg) }

// Discard drops every message.
var Discard Sink = Func(func(Message) {})

// Info builds an informational message.
func Info(eventID, file, format string, args ...any) Message {
	return Message{Level: LevelInfo, EventID: eventID, File: file, Text: fmt.Sprintf(format, args...)}
}

// Error builds an error message naming the cause.
func Error(eventID, file string, err error) Message {
	return Message{Level: LevelError, EventID: eventID, File: file, Text: err.Error()}
}

// Recorder keeps every message in memory, in order.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record implements Sink.
func (r *Recorder) Record(msg Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// Errors returns only the error-level messages.
func (r *Recorder) Errors() []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.Level == LevelError {
			out = append(out, m)
		}
	}
	return out
}

// Lines renders the recorded messages as strings.
func (r *Recorder) Lines() []string {
	msgs := r.Messages()
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.String()
	}
	return out
}

// Logger forwards messages to a zap logger.
type Logger struct {
	log *zap.Logger
}

// NewLogger creates a Sink writing to log. A nil log uses zap.L().
func NewLogger(log *zap.Logger) *Logger {
	if log == nil {
		log = zap.L()
	}
	return &Logger{log: log}
}

// Record implements Sink.
func (l *Logger) Record(msg Message) {
	fields := []zap.Field{zap.String("event_id", msg.EventID)}
	if msg.File != "" {
		fields = append(fields, zap.String("file", msg.File))
	}
	if msg.Level == LevelError {
		l.log.Warn(msg.Text, fields...)
		return
	}
	l.log.Info(msg.Text, fields...)
}

// Multi fans a message out to several sinks in order.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(msg Message) {
	for _, s := range m {
		if s != nil {
			s.Record(msg)
		}
	}
}
