package ratelimiter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dcablorh/txsense/pkg/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newTestWindow(store storage.Store) (*SlidingWindow, *fakeClock) {
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	return New(store, 10, time.Minute, WithClock(clock.Now)), clock
}

func TestSlidingWindow(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyHistoryAllowed", func(t *testing.T) {
		w, _ := newTestWindow(storage.NewMemoryStore())
		decision := w.Check(ctx, LocalIdentity)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 0, decision.WaitSeconds)
		assert.Equal(t, 10, decision.Remaining)
	})

	t.Run("DeniesAfterLimitAndReopensAfterWait", func(t *testing.T) {
		w, clock := newTestWindow(storage.NewMemoryStore())

		for i := 0; i < 10; i++ {
			require.True(t, w.Check(ctx, LocalIdentity).Allowed)
			require.NoError(t, w.Record(ctx, LocalIdentity))
			clock.Advance(1500 * time.Millisecond)
		}

		decision := w.Check(ctx, LocalIdentity)
		assert.False(t, decision.Allowed)
		assert.Greater(t, decision.WaitSeconds, 0)
		assert.LessOrEqual(t, decision.WaitSeconds, 60)
		// oldest entry is 15s old, so 45s remain
		assert.Equal(t, 45, decision.WaitSeconds)

		clock.Advance(time.Duration(decision.WaitSeconds) * time.Second)
		assert.True(t, w.Check(ctx, LocalIdentity).Allowed)
	})

	t.Run("WaitRoundsUp", func(t *testing.T) {
		w, clock := newTestWindow(storage.NewMemoryStore())
		for i := 0; i < 10; i++ {
			require.NoError(t, w.Record(ctx, LocalIdentity))
		}
		clock.Advance(59*time.Second + 500*time.Millisecond)

		decision := w.Check(ctx, LocalIdentity)
		assert.False(t, decision.Allowed)
		assert.Equal(t, 1, decision.WaitSeconds)
	})

	t.Run("SlidingNotFixedBucket", func(t *testing.T) {
		w, clock := newTestWindow(storage.NewMemoryStore())
		require.NoError(t, w.Record(ctx, LocalIdentity))
		clock.Advance(30 * time.Second)
		for i := 0; i < 9; i++ {
			require.NoError(t, w.Record(ctx, LocalIdentity))
		}

		clock.Advance(30 * time.Second)
		decision := w.Check(ctx, LocalIdentity)
		assert.True(t, decision.Allowed, "first request aged out")
		assert.Equal(t, 1, decision.Remaining)
		assert.Len(t, w.Snapshot(ctx, LocalIdentity), 9)
	})

	t.Run("CheckDoesNotRecord", func(t *testing.T) {
		w, _ := newTestWindow(storage.NewMemoryStore())
		for i := 0; i < 20; i++ {
			w.Check(ctx, LocalIdentity)
		}
		assert.Empty(t, w.Snapshot(ctx, LocalIdentity))
	})

	t.Run("IdentitiesAreIndependent", func(t *testing.T) {
		w, _ := newTestWindow(storage.NewMemoryStore())
		for i := 0; i < 10; i++ {
			require.NoError(t, w.Record(ctx, "10.0.0.1"))
		}
		assert.False(t, w.Check(ctx, "10.0.0.1").Allowed)
		assert.True(t, w.Check(ctx, "10.0.0.2").Allowed)
	})

	t.Run("PersistsAcrossInstances", func(t *testing.T) {
		store := storage.NewMemoryStore()
		first, clock := newTestWindow(store)
		for i := 0; i < 10; i++ {
			require.NoError(t, first.Record(ctx, LocalIdentity))
		}

		second := New(store, 10, time.Minute, WithClock(clock.Now))
		assert.False(t, second.Check(ctx, LocalIdentity).Allowed)
	})

	t.Run("RecordPrunesStaleEntries", func(t *testing.T) {
		store := storage.NewMemoryStore()
		w, clock := newTestWindow(store)
		for i := 0; i < 5; i++ {
			require.NoError(t, w.Record(ctx, LocalIdentity))
		}
		clock.Advance(2 * time.Minute)
		require.NoError(t, w.Record(ctx, LocalIdentity))

		raw, err := store.Get(ctx, DefaultKey)
		require.NoError(t, err)
		assert.Equal(t, "[1700000120000]", string(raw))
	})

	t.Run("Reset", func(t *testing.T) {
		w, _ := newTestWindow(storage.NewMemoryStore())
		for i := 0; i < 10; i++ {
			require.NoError(t, w.Record(ctx, LocalIdentity))
		}
		require.NoError(t, w.Reset(ctx, LocalIdentity))
		assert.True(t, w.Check(ctx, LocalIdentity).Allowed)
	})
}

type brokenStore struct {
	*storage.MemoryStore
	getErr error
	putErr error
}

func (b *brokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	return b.MemoryStore.Get(ctx, key)
}

func (b *brokenStore) Put(ctx context.Context, key string, value []byte) error {
	if b.putErr != nil {
		return b.putErr
	}
	return b.MemoryStore.Put(ctx, key, value)
}

func TestSlidingWindowFailsOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("CorruptValue", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.Put(ctx, DefaultKey, []byte("{not json")))

		var reported []string
		w := New(store, 10, time.Minute, WithErrorHandler(func(op string, err error) {
			reported = append(reported, op)
		}))

		decision := w.Check(ctx, LocalIdentity)
		assert.True(t, decision.Allowed)
		assert.Equal(t, []string{"decode"}, reported)

		require.NoError(t, w.Record(ctx, LocalIdentity))
		assert.Len(t, w.Snapshot(ctx, LocalIdentity), 1)
	})

	t.Run("UnreadableStore", func(t *testing.T) {
		store := &brokenStore{MemoryStore: storage.NewMemoryStore(), getErr: errors.New("disk on fire")}
		w := New(store, 1, time.Minute)
		assert.True(t, w.Check(ctx, LocalIdentity).Allowed)
	})

	t.Run("RecordSurfacesWriteFailure", func(t *testing.T) {
		store := &brokenStore{MemoryStore: storage.NewMemoryStore(), putErr: errors.New("read-only")}
		w := New(store, 10, time.Minute)
		assert.Error(t, w.Record(ctx, LocalIdentity))
	})
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	w, _ := newTestWindow(storage.NewMemoryStore())
	engine := gin.New()
	engine.Use(w.Middleware())
	engine.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, IdentityFromContext(c))
	})

	t.Run("AllowedSetsHeaders", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "192.0.2.10", rec.Body.String())
	})

	t.Run("DeniedReturns429WithRetryAfter", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			require.NoError(t, w.Record(ctx, "192.0.2.10"))
		}

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
	})
}

func TestSlidingWindowIdentities(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	w, _ := newTestWindow(store)

	require.NoError(t, w.Record(ctx, LocalIdentity))
	require.NoError(t, w.Record(ctx, "10.0.0.7"))
	require.NoError(t, store.Put(ctx, DefaultKey+"_unrelated", []byte(`[]`)))

	identities, err := w.Identities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{LocalIdentity, "10.0.0.7"}, identities)

	require.NoError(t, w.Reset(ctx, "10.0.0.7"))
	identities, err = w.Identities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{LocalIdentity}, identities)
}

func TestMiddlewareOptions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	w, _ := newTestWindow(storage.NewMemoryStore())
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Record(ctx, "192.0.2.20"))
	}

	var denied []Decision
	engine := gin.New()
	engine.Use(w.Middleware(
		OnDenied(func(c *gin.Context, d Decision) {
			denied = append(denied, d)
			c.String(http.StatusTooManyRequests, "slow down")
		}),
		SkipWhen(func(c *gin.Context) bool { return c.GetHeader("X-Skip") != "" }),
	))
	engine.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, IdentityFromContext(c))
	})

	t.Run("DeniedUsesHandler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "192.0.2.20:1234"
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "slow down", rec.Body.String())
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		require.Len(t, denied, 1)
		assert.Equal(t, 60, denied[0].WaitSeconds)
	})

	t.Run("SkippedRequestIsNotChecked", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "192.0.2.20:1234"
		req.Header.Set("X-Skip", "1")
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "192.0.2.20", rec.Body.String(), "identity is still stored")
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
		assert.Len(t, denied, 1)
	})
}

func TestSlidingWindowCheckDoesNotReserve(t *testing.T) {
	ctx := context.Background()
	w, _ := newTestWindow(storage.NewMemoryStore())
	for i := 0; i < 9; i++ {
		require.NoError(t, w.Record(ctx, LocalIdentity))
	}

	// two in-flight requests at limit-1 are both admitted and both recorded
	first := w.Check(ctx, LocalIdentity)
	second := w.Check(ctx, LocalIdentity)
	assert.True(t, first.Allowed)
	assert.True(t, second.Allowed)
	require.NoError(t, w.Record(ctx, LocalIdentity))
	require.NoError(t, w.Record(ctx, LocalIdentity))

	assert.Len(t, w.Snapshot(ctx, LocalIdentity), 11)
	assert.False(t, w.Check(ctx, LocalIdentity).Allowed)
}
