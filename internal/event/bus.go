package event

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Type identifies a category of event.
type Type string

// Known event types.
const (
	TrackDetected     Type = "track.detected"
	RequestMatched    Type = "request.matched"
	SourceUnavailable Type = "source.unavailable"
	SessionStarted    Type = "session.started"
	SessionStopped    Type = "session.stopped"
)

// AllTypes lists every known event type.
var AllTypes = []Type{SessionStarted, TrackDetected, RequestMatched, SourceUnavailable, SessionStopped}

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	return slices.Contains(AllTypes, t)
}

// Keys used in Event.Data.
const (
	KeySession   = "session_id"
	KeyPerformer = "performer_id"
	KeyTrack     = "track"
	KeyMatch     = "match"
	KeyRequest   = "request"
	KeyMessage   = "message"
	KeyWarning   = "warning"
)

// Event represents something that happened in the system.
type Event struct {
	Type      Type           `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler is a function that processes an event.
type Handler func(Event)

// Bus is an in-process event bus backed by a buffered channel.
type Bus struct {
	ch      chan Event
	mu      sync.RWMutex
	subs    map[Type][]Handler
	logger  *slog.Logger
	done    chan struct{}
	drained chan struct{}
	stopped bool
	dropped atomic.Int64
}

// NewBus creates a new event bus with the given buffer size.
func NewBus(logger *slog.Logger, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{
		ch:      make(chan Event, bufSize),
		subs:    make(map[Type][]Handler),
		logger:  logger,
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
}

// Subscribe registers a handler for the given event type.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// Publish sends an event to the bus. Non-blocking; drops with a warning if the
// buffer is full. Events published after Stop are discarded.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	stopped := b.stopped
	b.mu.RUnlock()
	if stopped {
		b.dropped.Add(1)
		b.logger.Debug("event bus stopped, dropping event", "type", string(e.Type))
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	select {
	case b.ch <- e:
	default:
		b.dropped.Add(1)
		b.logger.Warn("event bus full, dropping event", "type", string(e.Type))
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// SubscribeAll registers h for every known event type.
func (b *Bus) SubscribeAll(h Handler) {
	for _, t := range AllTypes {
		b.Subscribe(t, h)
	}
}

// Start begins draining the channel and dispatching events to subscribers.
// Call this in a goroutine. It blocks until Stop is called and the buffer is
// drained.
func (b *Bus) Start() {
	defer close(b.drained)
	for {
		select {
		case e := <-b.ch:
			b.dispatch(e)
		case <-b.done:
			// Drain remaining events
			for {
				select {
				case e := <-b.ch:
					b.dispatch(e)
				default:
					return
				}
			}
		}
	}
}

// Stop signals the bus to stop processing events after draining the buffer.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.stopped {
		b.stopped = true
		close(b.done)
	}
}

// Shutdown stops the bus and waits until every buffered event has been
// dispatched, or ctx is done.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.Stop()
	select {
	case <-b.drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := b.subs[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", "type", string(e.Type), "panic", r)
				}
			}()
			h(e)
		}()
	}
}
