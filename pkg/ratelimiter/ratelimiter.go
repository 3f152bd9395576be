package ratelimiter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dcablorh/txsense/pkg/storage"
)

// DefaultKey is the storage key holding the local client's window
const DefaultKey = "txsense_rate_limit_timestamps"

// LocalIdentity is the identity used by single-user clients such as the CLI
const LocalIdentity = "local"

// Decision is the outcome of a Check
type Decision struct {
	Allowed     bool `json:"allowed"`
	WaitSeconds int  `json:"wait_seconds"`
	Remaining   int  `json:"remaining"`
	Limit       int  `json:"limit"`
}

// SlidingWindow admits at most limit recorded requests per identity within
// any trailing window. Timestamps are persisted in a storage.Store as a JSON
// array of unix milliseconds, so the window survives restarts.
type SlidingWindow struct {
	store   storage.Store
	limit   int
	window  time.Duration
	baseKey string
	now     func() time.Time
	onError func(op string, err error)
	mutex   sync.Mutex
}

// Option customizes a SlidingWindow
type Option func(*SlidingWindow)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(w *SlidingWindow) { w.now = now }
}

// WithKey overrides the base storage key
func WithKey(key string) Option {
	return func(w *SlidingWindow) {
		if key != "" {
			w.baseKey = key
		}
	}
}

// WithErrorHandler receives storage failures that Check tolerates
func WithErrorHandler(fn func(op string, err error)) Option {
	return func(w *SlidingWindow) { w.onError = fn }
}

// New creates a new SlidingWindow with specified limit and window
func New(store storage.Store, limit int, window time.Duration, opts ...Option) *SlidingWindow {
	w := &SlidingWindow{
		store:   store,
		limit:   limit,
		window:  window,
		baseKey: DefaultKey,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Limit returns the number of requests admitted per window
func (w *SlidingWindow) Limit() int { return w.limit }

// Window returns the window length
func (w *SlidingWindow) Window() time.Duration { return w.window }

// Check reports whether identity may start another request. It never
// blocks on quota and never fails: unreadable history counts as empty.
func (w *SlidingWindow) Check(ctx context.Context, identity string) Decision {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	nowMs := w.now().UnixMilli()
	timestamps := w.prune(w.load(ctx, identity), nowMs)

	if len(timestamps) >= w.limit {
		oldest := timestamps[0]
		for _, ts := range timestamps[1:] {
			if ts < oldest {
				oldest = ts
			}
		}
		remainingMs := w.window.Milliseconds() - (nowMs - oldest)
		wait := int((remainingMs + 999) / 1000)
		if wait < 1 {
			wait = 1
		}
		return Decision{Allowed: false, WaitSeconds: wait, Remaining: 0, Limit: w.limit}
	}

	return Decision{Allowed: true, WaitSeconds: 0, Remaining: w.limit - len(timestamps), Limit: w.limit}
}

// Record appends the current time to identity's window. Call it only once
// the request's result has been delivered.
func (w *SlidingWindow) Record(ctx context.Context, identity string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	nowMs := w.now().UnixMilli()
	timestamps := w.prune(w.load(ctx, identity), nowMs)
	timestamps = append(timestamps, nowMs)

	payload, err := json.Marshal(timestamps)
	if err != nil {
		return fmt.Errorf("failed to encode rate window: %w", err)
	}
	if err := w.store.Put(ctx, w.key(identity), payload); err != nil {
		return fmt.Errorf("failed to persist rate window: %w", err)
	}
	return nil
}

// Snapshot returns the timestamps currently inside identity's window
func (w *SlidingWindow) Snapshot(ctx context.Context, identity string) []int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	return w.prune(w.load(ctx, identity), w.now().UnixMilli())
}

// Reset forgets identity's history
func (w *SlidingWindow) Reset(ctx context.Context, identity string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	return w.store.Delete(ctx, w.key(identity))
}

// Identities lists every identity with a stored window, the local one
// reported as LocalIdentity
func (w *SlidingWindow) Identities(ctx context.Context) ([]string, error) {
	keys, err := w.store.Keys(ctx, w.baseKey)
	if err != nil {
		return nil, err
	}

	identities := make([]string, 0, len(keys))
	for _, key := range keys {
		switch {
		case key == w.baseKey:
			identities = append(identities, LocalIdentity)
		case strings.HasPrefix(key, w.baseKey+":"):
			identities = append(identities, strings.TrimPrefix(key, w.baseKey+":"))
		}
	}
	return identities, nil
}

func (w *SlidingWindow) key(identity string) string {
	if identity == "" || identity == LocalIdentity {
		return w.baseKey
	}
	return w.baseKey + ":" + identity
}

func (w *SlidingWindow) load(ctx context.Context, identity string) []int64 {
	raw, err := w.store.Get(ctx, w.key(identity))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			w.report("load", err)
		}
		return nil
	}

	var timestamps []int64
	if err := json.Unmarshal(raw, &timestamps); err != nil {
		w.report("decode", err)
		return nil
	}
	return timestamps
}

// prune keeps timestamps with now - ts < window
func (w *SlidingWindow) prune(timestamps []int64, nowMs int64) []int64 {
	windowMs := w.window.Milliseconds()
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if nowMs-ts < windowMs {
			kept = append(kept, ts)
		}
	}
	return kept
}

func (w *SlidingWindow) report(op string, err error) {
	if w.onError != nil {
		w.onError(op, err)
	}
}
