package cooldown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSuppressAndExpire(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewManagerWithClock(func() time.Time { return now })

	m.Suppress("grp-1", 5*time.Minute)
	assert.True(t, m.IsSuppressed("grp-1"))
	assert.False(t, m.IsSuppressed("grp-2"))

	now = now.Add(4 * time.Minute)
	assert.True(t, m.IsSuppressed("grp-1"))

	now = now.Add(time.Minute)
	assert.False(t, m.IsSuppressed("grp-1"))

	// Expired entry is removed on read.
	assert.Empty(t, m.Active())
}

func TestResuppressKeepsLaterDeadline(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewManagerWithClock(func() time.Time { return now })

	m.Suppress("grp-1", 10*time.Minute)
	m.Suppress("grp-1", time.Minute)

	now = now.Add(5 * time.Minute)
	assert.True(t, m.IsSuppressed("grp-1"))
}

func TestActiveSnapshot(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewManagerWithClock(func() time.Time { return now })

	m.Suppress("grp-1", time.Minute)
	m.Suppress("grp-2", 10*time.Minute)

	now = now.Add(2 * time.Minute)
	active := m.Active()
	assert.Len(t, active, 1)
	assert.Contains(t, active, "grp-2")
}

func TestClear(t *testing.T) {
	m := NewManager()
	m.Suppress("grp-1", time.Hour)
	m.Clear()
	assert.False(t, m.IsSuppressed("grp-1"))
}
