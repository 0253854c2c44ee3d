// Package watcher observes now-playing sources and hands raw signals to a
// handler. A FileWatcher follows a local status file written by DJ software;
// a RemotePoller fetches a live playlist page on a fixed interval. Both share
// one lifecycle: Idle, Starting, Watching (with a self-healing Error state),
// and Stopped.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sydlexius/tracksignal/internal/track"
)

// State is a watcher lifecycle state.
type State string

// Lifecycle states.
const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateWatching State = "watching"
	StateError    State = "error"
	StateStopped  State = "stopped"
)

// Warning is a non-fatal condition a caller may want to surface.
type Warning string

// Known warnings.
const (
	WarningNone            Warning = ""
	WarningSourceNotPublic Warning = "source_not_public"
	WarningSourceMissing   Warning = "source_missing"
)

// Status is a point-in-time snapshot of a watcher.
type Status struct {
	State       State     `json:"state"`
	Warning     Warning   `json:"warning,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	LastCycleAt time.Time `json:"last_cycle_at,omitzero"`
	Mode        string    `json:"mode,omitempty"`
}

// Handler receives every raw signal a watcher captures. It runs on the
// watcher's goroutine, so the next cycle waits for it to return.
type Handler func(ctx context.Context, raw track.RawSignal)

// Observer is notified after every status change.
type Observer func(sourceID string, st Status)

// Watcher is the contract shared by all source watchers.
type Watcher interface {
	// Start launches the watch loop. The first detection cycle runs
	// immediately rather than after one interval.
	Start(ctx context.Context) error
	// Stop cancels the loop and waits for it to exit. It is idempotent.
	Stop()
	IsActive() bool
	Status() Status
}

// Errors returned by Start.
var (
	ErrAlreadyStarted = errors.New("watcher already started")
	ErrStopped        = errors.New("watcher stopped")
)

// lifecycle implements the state machine shared by both watchers.
type lifecycle struct {
	sourceID string
	logger   *slog.Logger

	mu       sync.Mutex
	status   Status
	observer Observer
	cancel   context.CancelFunc
	done     chan struct{}
}

func (l *lifecycle) init(sourceID string, logger *slog.Logger) {
	l.sourceID = sourceID
	l.logger = logger
	l.status = Status{State: StateIdle}
}

// SetObserver registers fn for status changes. Call before Start.
func (l *lifecycle) SetObserver(fn Observer) {
	l.mu.Lock()
	l.observer = fn
	l.mu.Unlock()
}

// begin moves Idle to Starting and runs loop on its own goroutine.
func (l *lifecycle) begin(ctx context.Context, loop func(ctx context.Context)) error {
	l.mu.Lock()
	switch {
	case l.status.State == StateIdle && l.cancel == nil:
	case l.status.State == StateStopped:
		l.mu.Unlock()
		return ErrStopped
	default:
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	l.update(func(s *Status) { s.State = StateStarting })

	go func() {
		defer close(done)
		loop(ctx)
		l.update(func(s *Status) { s.State = StateStopped })
	}()
	return nil
}

func (l *lifecycle) stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	if cancel == nil && l.status.State == StateIdle {
		l.status.State = StateStopped
	}
	l.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (l *lifecycle) isActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.status.State {
	case StateStarting, StateWatching, StateError:
		return true
	}
	return false
}

func (l *lifecycle) snapshot() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.status
}

// update applies fn and notifies the observer when anything other than the
// cycle timestamp changed. A stopped watcher never leaves Stopped.
func (l *lifecycle) update(fn func(*Status)) {
	l.mu.Lock()
	before := l.status
	if before.State == StateStopped {
		l.mu.Unlock()
		return
	}
	fn(&l.status)
	after := l.status
	obs := l.observer
	l.mu.Unlock()

	if before.State != after.State {
		l.logger.Debug("watcher state changed", "from", string(before.State), "to", string(after.State))
	}
	before.LastCycleAt, after.LastCycleAt = time.Time{}, time.Time{}
	if obs != nil && before != after {
		obs(l.sourceID, l.snapshot())
	}
}

// healthy records a successful cycle.
func (l *lifecycle) healthy(warning Warning) {
	l.update(func(s *Status) {
		s.State = StateWatching
		s.Warning = warning
		s.LastError = ""
		s.LastCycleAt = time.Now().UTC()
	})
}

// failed records a transient failure. The loop keeps running.
func (l *lifecycle) failed(err error) {
	l.update(func(s *Status) {
		s.State = StateError
		s.LastError = err.Error()
		s.LastCycleAt = time.Now().UTC()
	})
}
