package cooldown

import (
	"sync"
	"time"

	"redgrab/pkg/metrics"
)

// Manager tracks conversations temporarily excluded from claiming after
// a suspiciously small win. Expiry is checked on read, so no background
// timer is needed and a suppressed peer unmutes exactly on schedule.
type Manager struct {
	mu      sync.Mutex
	entries map[string]time.Time
	clock   func() time.Time
}

func NewManager() *Manager {
	return &Manager{
		entries: make(map[string]time.Time),
		clock:   time.Now,
	}
}

// NewManagerWithClock is for tests that need a controlled clock.
func NewManagerWithClock(clock func() time.Time) *Manager {
	return &Manager{
		entries: make(map[string]time.Time),
		clock:   clock,
	}
}

// Suppress excludes the peer until now+d. Re-suppressing extends the
// window to the later deadline.
func (m *Manager) Suppress(peerUID string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	until := m.clock().Add(d)
	if existing, ok := m.entries[peerUID]; ok && existing.After(until) {
		return
	}
	m.entries[peerUID] = until

	metrics.CooldownSuppressionsTotal.Inc()
	metrics.SetCooldownActive(len(m.entries))
}

func (m *Manager) IsSuppressed(peerUID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	until, ok := m.entries[peerUID]
	if !ok {
		return false
	}
	if !m.clock().Before(until) {
		delete(m.entries, peerUID)
		metrics.SetCooldownActive(len(m.entries))
		return false
	}
	return true
}

// Active returns the currently suppressed peers with their deadlines,
// dropping any entry that has already expired.
func (m *Manager) Active() map[string]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	out := make(map[string]time.Time, len(m.entries))
	for peer, until := range m.entries {
		if !now.Before(until) {
			delete(m.entries, peer)
			continue
		}
		out[peer] = until
	}
	metrics.SetCooldownActive(len(m.entries))
	return out
}

func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]time.Time)
	metrics.SetCooldownActive(0)
}
