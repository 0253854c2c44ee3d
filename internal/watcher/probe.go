package watcher

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultProbeTimeout bounds how long a probe waits for its own event.
const DefaultProbeTimeout = 2 * time.Second

// ProbeCache caches whether fsnotify delivers events for a directory.
// Network shares and some container mounts accept a watch but never fire.
type ProbeCache struct {
	mu      sync.RWMutex
	results map[string]bool
	timeout time.Duration
}

// NewProbeCache creates an empty probe cache.
func NewProbeCache() *ProbeCache {
	return &ProbeCache{
		results: make(map[string]bool),
		timeout: DefaultProbeTimeout,
	}
}

// Get returns whether fsnotify is supported for dir.
// The second return value is false if dir has not been probed.
func (pc *ProbeCache) Get(dir string) (supported bool, ok bool) {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	supported, ok = pc.results[dir]
	return
}

// Set stores a probe result for dir.
func (pc *ProbeCache) Set(dir string, supported bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.results[dir] = supported
}

// Supported returns the cached result for dir, probing on first use.
// A directory that does not exist yet is reported unsupported and not cached.
func (pc *ProbeCache) Supported(dir string) bool {
	if v, ok := pc.Get(dir); ok {
		return v
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	v := ProbeFSNotify(dir, pc.timeout)
	pc.Set(dir, v)
	return v
}

// ProbeFSNotify tests whether fsnotify delivers events for dir. It creates a
// temporary file inside dir, watches for the Create event, and returns true if
// the event arrives within the timeout.
func ProbeFSNotify(dir string, timeout time.Duration) bool {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return false
	}
	defer w.Close() //nolint:errcheck

	if err := w.Add(dir); err != nil {
		return false
	}

	probeName := fmt.Sprintf(".tracksignal_probe_%d", rand.Int63()) //nolint:gosec // G404: not security-sensitive
	probePath := filepath.Join(dir, probeName)

	f, err := os.Create(probePath) //nolint:gosec // G304: probe file is temporary
	if err != nil {
		return false
	}
	f.Close()                  //nolint:errcheck
	defer os.Remove(probePath) //nolint:errcheck

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return false
			}
			if ev.Has(fsnotify.Create) && filepath.Base(ev.Name) == probeName {
				return true
			}
		case <-w.Errors:
			return false
		case <-timer.C:
			return false
		}
	}
}
