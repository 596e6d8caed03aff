package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestLRUCacheExpiresEntries(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int64, string](10, time.Minute).WithClock(clock.now)

	c.Set(1, "a")
	got, ok := c.Get(1)
	require.True(t, ok)
	assert.Equal(t, "a", got)

	clock.t = clock.t.Add(2 * time.Minute)
	_, ok = c.Get(1)
	assert.False(t, ok)
	assert.Zero(t, c.Size())
}

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int64, int](2, time.Hour)
	c.Set(1, 1)
	c.Set(2, 2)
	c.Get(1)
	c.Set(3, 3)

	_, ok := c.Get(2)
	assert.False(t, ok, "2 was least recently used")
	_, ok = c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, 2, c.Size())

	c.Delete(1)
	assert.Equal(t, 1, c.Size())
	c.Purge()
	assert.Zero(t, c.Size())
}

func TestManagerCleansRegisteredCaches(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := NewLRUCache[int64, int](10, time.Minute).WithClock(clock.now)
	b := NewLRUCache[string, int](10, time.Hour).WithClock(clock.now)
	a.Set(1, 1)
	a.Set(2, 2)
	b.Set("x", 1)

	m := NewManager()
	m.Register(a)
	m.Register(b)

	clock.t = clock.t.Add(30 * time.Minute)
	assert.Equal(t, 2, m.CleanAll())
	assert.Zero(t, a.Size())
	assert.Equal(t, 1, b.Size())
}

func TestManagerRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewManager().Run(ctx, time.Millisecond) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
