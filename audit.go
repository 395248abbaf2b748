package authcore

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Outcome classifies an audit event's result.
type Outcome string

const (
	// OutcomeSuccess is an exported constant used by the audit sink.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure is an exported constant used by the audit sink.
	OutcomeFailure Outcome = "failure"
	// OutcomeIncident marks events that should page someone: theft
	// detection, crypto failures.
	OutcomeIncident Outcome = "incident"
)

// AuditEvent is the security event shape emitted to the sink.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Actor     string            `json:"actor,omitempty"`
	Action    string            `json:"action"`
	Resource  string            `json:"resource,omitempty"`
	Outcome   Outcome           `json:"outcome"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// AuditSink receives security events. Persistence is an external
// collaborator's concern; implementations must be safe for concurrent use.
type AuditSink interface {
	Emit(ctx context.Context, event AuditEvent)
}

// NoOpSink discards every event.
type NoOpSink struct{}

// Emit implements AuditSink.
func (NoOpSink) Emit(context.Context, AuditEvent) {}

// ChannelSink forwards events to a channel for test assertions and custom
// pipelines.
type ChannelSink struct {
	events chan AuditEvent
}

// NewChannelSink creates a ChannelSink with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan AuditEvent, buffer),
	}
}

// Emit implements AuditSink.
func (s *ChannelSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the receiving side of the sink.
func (s *ChannelSink) Events() <-chan AuditEvent {
	return s.events
}

// JSONWriterSink writes one JSON event per line to a writer.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a JSONWriterSink over w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

// Emit implements AuditSink.
func (s *JSONWriterSink) Emit(ctx context.Context, event AuditEvent) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
