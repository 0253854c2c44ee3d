package watcher

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultHostRate is the shared request budget per remote host.
const DefaultHostRate rate.Limit = 2

// HostLimiter holds one rate.Limiter per remote host so that many sessions
// polling the same site share a single budget.
type HostLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewHostLimiter creates a limiter allowing rps requests per second per host.
// A non-positive rps selects DefaultHostRate.
func NewHostLimiter(rps float64, burst int) *HostLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = DefaultHostRate
	}
	if burst <= 0 {
		burst = 1
	}
	return &HostLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the limiter for host allows a request, or ctx is done.
// A nil HostLimiter never blocks.
func (m *HostLimiter) Wait(ctx context.Context, host string) error {
	if m == nil {
		return nil
	}
	return m.get(host).Wait(ctx)
}

func (m *HostLimiter) get(host string) *rate.Limiter {
	host = strings.ToLower(host)
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[host]
	if !ok {
		l = rate.NewLimiter(m.limit, m.burst)
		m.limiters[host] = l
	}
	return l
}
