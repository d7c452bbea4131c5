// Package history exports process lifecycle events to external systems for
// auditing and statistics. Sinks are best effort: a failing sink never
// blocks or fails the supervisor.
package history

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart   EventType = "start"
	EventStop    EventType = "stop"
	EventRestart EventType = "restart"
	EventErrored EventType = "errored"
)

// Event represents a lifecycle event to be exported.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	ProcessID  uint32    `json:"process_id"`
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	Error      string    `json:"error,omitempty"`
}

// Sink is a destination for history events. Implementations must be safe
// for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// Recorder fans events out to a sink from a background worker so that
// supervision never waits on a slow database. Events are dropped with a
// warning when the queue is full.
type Recorder struct {
	sink    Sink
	queue   chan Event
	timeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

const defaultQueueSize = 256

func NewRecorder(sink Sink) *Recorder {
	r := &Recorder{
		sink:    sink,
		queue:   make(chan Event, defaultQueueSize),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record enqueues e without blocking.
func (r *Recorder) Record(e Event) {
	select {
	case r.queue <- e:
	default:
		slog.Warn("history queue full, dropping event", "event", e.Type, "process", e.Name)
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for e := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		if err := r.sink.Send(ctx, e); err != nil {
			slog.Warn("history sink send failed", "event", e.Type, "process", e.Name, "error", err)
		}
		cancel()
	}
}

// Close drains queued events and closes the sink.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.queue)
	})
	<-r.done
	return r.sink.Close()
}
