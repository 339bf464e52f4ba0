package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads a fresh body from the backend.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Result is what Load hands back to callers.
type Result struct {
	Body     []byte
	StoredAt time.Time
	// Hit is true when the body came from the store without a fetch.
	Hit bool
	// Stale is true when a refetch failed and an expired entry was served.
	Stale bool
}

// Loader serves cached bodies while they are valid and refetches otherwise.
// Concurrent misses for one key share a single fetch.
type Loader struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
	group singleflight.Group
}

// NewLoader returns a Loader over store.
func NewLoader(store Store, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{store: store, log: log, now: time.Now}
}

// Load returns the body for key. The stored entry is used when it is younger
// than ttl and force is false; a ttl of zero always refetches.
func (l *Loader) Load(ctx context.Context, key string, ttl time.Duration, force bool, fetch FetchFunc) (Result, error) {
	cached, found, err := l.store.Get(ctx, key)
	if err != nil {
		l.log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		found = false
	}
	if found && !force && ttl > 0 && cached.Age(l.now()) < ttl {
		return Result{Body: cached.Body, StoredAt: cached.StoredAt, Hit: true}, nil
	}

	// The shared fetch outlives any one caller; each caller stops waiting on
	// its own context.
	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (any, error) {
		body, err := fetch(shared)
		if err != nil {
			return nil, err
		}
		entry := Entry{Key: key, Body: body, StoredAt: l.now().UTC()}
		if err := l.store.Put(shared, entry); err != nil {
			l.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		}
		return entry, nil
	})
	var v any
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		v, err = res.Val, res.Err
	}
	if err != nil {
		if found {
			l.log.Info("serving stale cache entry", zap.String("key", key), zap.Error(err))
			return Result{Body: cached.Body, StoredAt: cached.StoredAt, Stale: true}, nil
		}
		return Result{}, err
	}
	entry := v.(Entry)
	return Result{Body: entry.Body, StoredAt: entry.StoredAt}, nil
}

// Invalidate drops every entry under prefix.
func (l *Loader) Invalidate(ctx context.Context, prefix string) error {
	return l.store.DeletePrefix(ctx, prefix)
}
