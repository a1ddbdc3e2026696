// Package diag records diagnostic events raised while resolving duplicate
// clusters. Every collapse of a relationship list and every skipped cluster
// member passes through a Sink so the outcome can be explained later.
package diag

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventRelationshipsCollapsed = "relationships_collapsed"
	EventMemberFetchFailed      = "cluster_member_fetch_failed"
	EventPeerSkipped            = "cluster_peer_skipped"
	EventConsolidatedIgnored    = "consolidated_entity_ignored"
	EventClusterIncomplete      = "cluster_incomplete"
)

type Sink interface {
	Log(ctx context.Context, event string, details map[string]interface{})
}

// ZapSink writes each event as one structured log line and counts it.
type ZapSink struct {
	Logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{Logger: logger}
}

func (s *ZapSink) Log(_ context.Context, event string, details map[string]interface{}) {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys)+2)
	fields = append(fields, zap.String("event", event), zap.String("event_id", uuid.New().String()))
	for _, k := range keys {
		fields = append(fields, zap.Any(k, details[k]))
	}

	s.Logger.Info("diagnostic", fields...)
	DiagnosticEvents.WithLabelValues(event).Inc()
}

type queued struct {
	event   string
	details map[string]interface{}
}

// AsyncSink hands events to another Sink on a background goroutine. When the
// buffer is full the event is dropped and counted; callers never block.
type AsyncSink struct {
	next   Sink
	queue  chan queued
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

func NewAsyncSink(next Sink, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = 256
	}
	s := &AsyncSink{
		next:  next,
		queue: make(chan queued, buffer),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for q := range s.queue {
		s.next.Log(context.Background(), q.event, q.details)
	}
}

// Log queues the event. Events logged after Close are dropped and counted.
func (s *AsyncSink) Log(_ context.Context, event string, details map[string]interface{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		DroppedEvents.Inc()
		return
	}
	select {
	case s.queue <- queued{event: event, details: details}:
	default:
		DroppedEvents.Inc()
	}
}

// Close drains queued events and stops the goroutine.
func (s *AsyncSink) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		<-s.done
	})
}

type Nop struct{}

func (Nop) Log(context.Context, string, map[string]interface{}) {}

type Event struct {
	Name    string
	Details map[string]interface{}
}

// Recorder keeps events in memory. Tests use it to assert on diagnostics.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Log(_ context.Context, event string, details map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Name: event, Details: details})
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Named returns the recorded events called name.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
