package http

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winery/internal/filter"
	"winery/internal/winery/memory"
)

func TestWorkspaces_ReusedPerSession(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	ws := newWorkspaces(memory.New(), 10, time.Hour, func() time.Time { return now })
	ctx := context.Background()

	a, err := ws.get(ctx, "session-a")
	require.NoError(t, err)
	a.persons.SetFilter(filter.PersonFilter{Name: "nino"})

	again, err := ws.get(ctx, "session-a")
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, "nino", again.persons.Filter().Name)

	b, err := ws.get(ctx, "session-b")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Empty(t, b.persons.Filter().Name, "sessions do not share table state")
}

func TestWorkspaces_StartOnTheCurrentMonth(t *testing.T) {
	now := time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC)
	ws := newWorkspaces(memory.New(), 10, time.Hour, func() time.Time { return now })

	w, err := ws.get(context.Background(), "s")
	require.NoError(t, err)
	f := w.entries.Filter()
	assert.Equal(t, "2024-02-01", f.DateFrom.String())
	assert.Equal(t, "2024-02-29", f.DateTo.String())
}

func TestWorkspaces_DropForgetsState(t *testing.T) {
	ws := newWorkspaces(memory.New(), 10, time.Hour, time.Now)
	ctx := context.Background()

	first, err := ws.get(ctx, "s")
	require.NoError(t, err)
	ws.drop("s")

	second, err := ws.get(ctx, "s")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestWorkspaces_IdleSessionsExpire(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
	ws := newWorkspaces(memory.New(), 10, time.Hour, clock)
	ctx := context.Background()

	first, err := ws.get(ctx, "s")
	require.NoError(t, err)

	advance(30 * time.Minute)
	kept, err := ws.get(ctx, "s")
	require.NoError(t, err)
	assert.Same(t, first, kept)

	// Access slides the expiry, so 50 more minutes is still within the hour.
	advance(50 * time.Minute)
	kept, err = ws.get(ctx, "s")
	require.NoError(t, err)
	assert.Same(t, first, kept)

	advance(2 * time.Hour)
	assert.Equal(t, 1, ws.store.CleanExpired())
	fresh, err := ws.get(ctx, "s")
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)
}

func TestWorkspaces_EvictLeastRecentlyUsed(t *testing.T) {
	ws := newWorkspaces(memory.New(), 2, time.Hour, time.Now)
	ctx := context.Background()

	a, err := ws.get(ctx, "a")
	require.NoError(t, err)
	_, err = ws.get(ctx, "b")
	require.NoError(t, err)
	_, err = ws.get(ctx, "a")
	require.NoError(t, err)
	_, err = ws.get(ctx, "c")
	require.NoError(t, err)

	assert.Equal(t, 2, ws.store.Size())
	_, ok := ws.store.Get("b")
	assert.False(t, ok, "b was least recently used")
	again, err := ws.get(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, a, again)
}
