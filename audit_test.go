package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	seen    chan AuditEvent
}

func (s *blockingSink) Emit(ctx context.Context, event AuditEvent) {
	<-s.release
	s.seen <- event
}

func TestDispatcherDeliversInOrder(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)
	defer d.Close()

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), AuditEvent{Action: auditActionLogin, Resource: string(rune('a' + i))})
	}

	for i := 0; i < 5; i++ {
		select {
		case event := <-sink.Events():
			if event.Resource != string(rune('a'+i)) {
				t.Fatalf("event %d out of order: %q", i, event.Resource)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("event %d never delivered", i)
		}
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{
		release: make(chan struct{}),
		seen:    make(chan AuditEvent, 8),
	}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// One event may be in flight and one in the buffer; the rest must be
	// dropped without blocking this goroutine.
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{Action: auditActionLogin})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events with a full buffer")
	}

	close(sink.release)
	d.Close()
}

func TestDispatcherFlushesOnClose(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	d.Emit(context.Background(), AuditEvent{Action: auditActionLogout})
	d.Close()

	select {
	case event := <-sink.Events():
		if event.Action != auditActionLogout {
			t.Fatalf("unexpected action %q", event.Action)
		}
	default:
		t.Fatal("buffered event lost on close")
	}

	// Emitting after close is a silent no-op.
	d.Emit(context.Background(), AuditEvent{Action: auditActionLogin})
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled audit must not start a dispatcher")
	}

	// All operations on the nil dispatcher are safe.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reports drops")
	}
}

func TestJSONWriterSink(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex

	sink := NewJSONWriterSink(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	}))

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now(),
		Actor:     "u1",
		Action:    auditActionLogin,
		Outcome:   OutcomeSuccess,
	})

	mu.Lock()
	line := strings.TrimSpace(buf.String())
	mu.Unlock()

	var decoded AuditEvent
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("sink output is not JSON: %v", err)
	}
	if decoded.Actor != "u1" || decoded.Action != auditActionLogin || decoded.Outcome != OutcomeSuccess {
		t.Fatalf("unexpected decoded event: %+v", decoded)
	}
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

type captureNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *captureNotifier) Notify(ctx context.Context, notification Notification) {
	n.mu.Lock()
	n.sent = append(n.sent, notification)
	n.mu.Unlock()
}

func TestNotifyQueueDelivers(t *testing.T) {
	notifier := &captureNotifier{}
	q := newNotifyQueue(NotifyConfig{Enabled: true, BufferSize: 8}, notifier)

	q.Enqueue(Notification{UserID: "u1", Email: "a@example.com", Kind: NotifyPasswordChanged})
	q.Close()

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.sent))
	}
	if notifier.sent[0].Kind != NotifyPasswordChanged {
		t.Fatalf("unexpected kind %q", notifier.sent[0].Kind)
	}
}

func TestNotifyQueueNilWithoutNotifier(t *testing.T) {
	q := newNotifyQueue(NotifyConfig{Enabled: true, BufferSize: 8}, nil)
	if q != nil {
		t.Fatal("a queue without a notifier must not start")
	}
	q.Enqueue(Notification{})
	q.Close()
}
