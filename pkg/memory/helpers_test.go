// SPDX-License-Identifier: Apache-2.0
package memory

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newColdTier(t *testing.T) *SQLiteColdTier {
	t.Helper()
	db, err := OpenSQLite("file:" + filepath.Join(t.TempDir(), "cold.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	cold, err := NewSQLiteColdTier(db)
	require.NoError(t, err)
	return cold
}

func item(id, network, content string) Item {
	return Item{ID: id, NetworkID: network, Type: TypeFact, Content: content, Confidence: 0.8}
}
