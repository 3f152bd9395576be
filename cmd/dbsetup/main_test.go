package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dcablorh/txsense/pkg/logger"
	"github.com/dcablorh/txsense/pkg/ratelimiter"
	"github.com/dcablorh/txsense/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWindow(now time.Time) (*ratelimiter.SlidingWindow, storage.Store) {
	store := storage.NewMemoryStore()
	w := ratelimiter.New(store, 2, time.Minute, ratelimiter.WithClock(func() time.Time { return now }))
	return w, store
}

func TestWindowCommands(t *testing.T) {
	logger.SetLogger(logger.NewNop())
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	t.Run("ListEmpty", func(t *testing.T) {
		w, _ := newWindow(now)
		var out bytes.Buffer
		require.NoError(t, listWindows(ctx, w, &out))
		assert.Contains(t, out.String(), "No rate windows stored")
	})

	t.Run("ListAndInspect", func(t *testing.T) {
		w, _ := newWindow(now)
		require.NoError(t, w.Record(ctx, ratelimiter.LocalIdentity))
		require.NoError(t, w.Record(ctx, ratelimiter.LocalIdentity))
		require.NoError(t, w.Record(ctx, "10.0.0.9"))

		var out bytes.Buffer
		require.NoError(t, listWindows(ctx, w, &out))
		assert.Contains(t, out.String(), "local")
		assert.Contains(t, out.String(), "10.0.0.9")

		out.Reset()
		inspectWindow(ctx, w, ratelimiter.LocalIdentity, now.Add(5*time.Second), &out)
		assert.Contains(t, out.String(), "Used:      2")
		assert.Contains(t, out.String(), "Remaining: 0")
		assert.Contains(t, out.String(), "Blocked:   retry in 60s")
		assert.Contains(t, out.String(), "(5s ago)")
	})

	t.Run("ResetAll", func(t *testing.T) {
		w, _ := newWindow(now)
		require.NoError(t, w.Record(ctx, ratelimiter.LocalIdentity))
		require.NoError(t, w.Record(ctx, "10.0.0.9"))

		n, err := resetAllWindows(ctx, w)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		identities, err := w.Identities(ctx)
		require.NoError(t, err)
		assert.Empty(t, identities)
	})

	t.Run("InitWithoutIndexes", func(t *testing.T) {
		_, store := newWindow(now)
		assert.NoError(t, initializeStore(ctx, store))
	})

	t.Run("Health", func(t *testing.T) {
		_, store := newWindow(now)
		var out bytes.Buffer
		require.NoError(t, runHealthCheck(ctx, store, storage.DriverMemory, &out))
		assert.Contains(t, out.String(), "✓ storage_memory: healthy")
	})
}
