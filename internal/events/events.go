// Package events publishes change notifications so prompt consumers can
// invalidate cached prompts without polling.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/kaenova/prompty/internal/metrics"
)

// Type names a change event.
type Type string

const (
	PromptActivated   Type = "prompt.activated"
	PromptDeactivated Type = "prompt.deactivated"
	APIKeyRevoked     Type = "apikey.revoked"
	ProjectDeleted    Type = "project.deleted"
)

// Event is the payload published for a change.
type Event struct {
	Type      Type      `json:"type"`
	ProjectID string    `json:"project_id"`
	AgentID   string    `json:"agent_id,omitempty"`
	AgentName string    `json:"agent_name,omitempty"`
	PromptID  string    `json:"prompt_id,omitempty"`
	KeyID     string    `json:"key_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// JSON encodes the event.
func (e *Event) JSON() []byte {
	data, _ := json.Marshal(e)
	return data
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// Noop drops every event. It is used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, *Event) error { return nil }
func (Noop) Close() error                          { return nil }

// Emitter stamps and publishes events. Delivery failures are logged and
// counted; they never fail the operation that produced the event.
type Emitter struct {
	pub Publisher
	log *slog.Logger
	now func() time.Time
}

// NewEmitter wraps pub. A nil pub publishes nothing.
func NewEmitter(pub Publisher, log *slog.Logger) *Emitter {
	if pub == nil {
		pub = Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{pub: pub, log: log, now: time.Now}
}

// Emit publishes event.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil {
		return
	}
	event.Timestamp = e.now().UTC()
	if err := e.pub.Publish(ctx, &event); err != nil {
		metrics.EventsPublished.WithLabelValues(string(event.Type), "error").Inc()
		e.log.Warn("failed to publish event", "type", event.Type, "project_id", event.ProjectID, "error", err)
		return
	}
	metrics.EventsPublished.WithLabelValues(string(event.Type), "ok").Inc()
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the type of every recorded event in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}
