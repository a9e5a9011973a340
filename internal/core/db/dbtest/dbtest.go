// Package dbtest provides migrated throwaway SQLite databases for tests.
package dbtest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/solatis/oasconform/internal/core/db"
)

// New returns queries over a fresh, migrated SQLite database in a temporary
// directory. The connection is closed when the test ends.
func New(tb testing.TB) *db.Queries {
	tb.Helper()

	url := "sqlite://" + filepath.Join(tb.TempDir(), "oasconform.db") + "?_busy_timeout=10000"
	conn, queries, err := db.Connect(context.Background(), url, true)
	if err != nil {
		tb.Fatalf("failed to open test database: %v", err)
	}
	tb.Cleanup(func() { conn.Close() })
	return queries
}

// Clock is a settable clock for deterministic tests.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at now.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

// Now returns the current fixed time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
