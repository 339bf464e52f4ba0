package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/harrylevesque/hivebff/internal/crypto"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLoader(store Store) (*Loader, *clock) {
	c := &clock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
	l := NewLoader(store, nil)
	l.now = c.Now
	return l, c
}

func fetchBody(calls *int32, body string) FetchFunc {
	return func(context.Context) ([]byte, error) {
		atomic.AddInt32(calls, 1)
		return []byte(body), nil
	}
}

func TestLoaderServesFreshEntries(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLoader(NewMemoryStore())
	var calls int32

	res, err := l.Load(ctx, "k", time.Minute, false, fetchBody(&calls, "v1"))
	require.NoError(t, err)
	assert.False(t, res.Hit)
	assert.Equal(t, "v1", string(res.Body))

	clk.Advance(30 * time.Second)
	res, err = l.Load(ctx, "k", time.Minute, false, fetchBody(&calls, "v2"))
	require.NoError(t, err)
	assert.True(t, res.Hit)
	assert.Equal(t, "v1", string(res.Body))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestLoaderRefetchesExpiredAndForced(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLoader(NewMemoryStore())
	var calls int32

	_, err := l.Load(ctx, "k", time.Minute, false, fetchBody(&calls, "v1"))
	require.NoError(t, err)

	clk.Advance(time.Minute)
	res, err := l.Load(ctx, "k", time.Minute, false, fetchBody(&calls, "v2"))
	require.NoError(t, err)
	assert.False(t, res.Hit)
	assert.Equal(t, "v2", string(res.Body))

	res, err = l.Load(ctx, "k", time.Minute, true, fetchBody(&calls, "v3"))
	require.NoError(t, err)
	assert.Equal(t, "v3", string(res.Body))

	res, err = l.Load(ctx, "k", 0, false, fetchBody(&calls, "v4"))
	require.NoError(t, err)
	assert.Equal(t, "v4", string(res.Body))
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestLoaderServesStaleOnFetchError(t *testing.T) {
	ctx := context.Background()
	l, clk := newTestLoader(NewMemoryStore())
	var calls int32

	_, err := l.Load(ctx, "k", time.Minute, false, fetchBody(&calls, "v1"))
	require.NoError(t, err)
	clk.Advance(2 * time.Minute)

	boom := errors.New("backend down")
	failing := func(context.Context) ([]byte, error) { return nil, boom }

	res, err := l.Load(ctx, "k", time.Minute, false, failing)
	require.NoError(t, err)
	assert.True(t, res.Stale)
	assert.Equal(t, "v1", string(res.Body))

	_, err = l.Load(ctx, "other", time.Minute, false, failing)
	assert.ErrorIs(t, err, boom)
}

func TestLoaderCollapsesConcurrentMisses(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLoader(NewMemoryStore())

	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("shared"), nil
	}

	const n = 8
	var wg sync.WaitGroup
	var started sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		started.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			res, err := l.Load(ctx, "k", time.Minute, false, fetch)
			if err == nil {
				results[i] = string(res.Body)
			}
		}(i)
	}
	started.Wait()
	// Let the goroutines reach the shared fetch before it completes.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(n))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
	for _, r := range results {
		assert.Equal(t, "shared", r)
	}
}

func TestLoaderSharedFetchSurvivesCancelledCaller(t *testing.T) {
	l, _ := newTestLoader(NewMemoryStore())

	var calls int32
	fetching := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) ([]byte, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(fetching)
		}
		select {
		case <-release:
			return []byte("shared"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := l.Load(firstCtx, "k", time.Minute, false, fetch)
		firstErr <- err
	}()
	<-fetching
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	second := make(chan Result, 1)
	secondErr := make(chan error, 1)
	go func() {
		res, err := l.Load(context.Background(), "k", time.Minute, false, fetch)
		second <- res
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-secondErr)
	assert.Equal(t, "shared", string((<-second).Body))
}

func TestLoaderInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	l, _ := newTestLoader(store)
	var calls int32

	for _, key := range []string{
		ListKey("events", "acc-1", "u-1"),
		ListKey("events", "acc-1", "u-2"),
		ListKey("events", "acc-2", "u-1"),
		ListKey("tasks", "acc-1", "u-1"),
	} {
		_, err := l.Load(ctx, key, time.Minute, false, fetchBody(&calls, key))
		require.NoError(t, err)
	}
	require.Equal(t, 4, store.Len())

	require.NoError(t, l.Invalidate(ctx, ListPrefix("events", "acc-1")))
	assert.Equal(t, 2, store.Len())

	_, found, err := store.Get(ctx, ListKey("events", "acc-2", "u-1"))
	require.NoError(t, err)
	assert.True(t, found)
}

func TestListKey(t *testing.T) {
	assert.Equal(t, "list:notes:acc-9:u-3", ListKey("notes", "acc-9", "u-3"))
	assert.Equal(t, "list:notes:acc-9:", ListPrefix("notes", "acc-9"))
}

func TestMemoryStoreCopiesBodies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	body := []byte("abc")
	require.NoError(t, s.Put(ctx, Entry{Key: "k", Body: body}))
	body[0] = 'z'

	e, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", string(e.Body))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = s.Get(cancelled, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cache.db")
	key := crypto.MustRandom(32)

	s, err := OpenSQLite(path, key)
	require.NoError(t, err)

	storedAt := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(ctx, Entry{Key: "list:events:acc-1:u-1", Body: []byte(`[1]`), StoredAt: storedAt}))
	require.NoError(t, s.Put(ctx, Entry{Key: "list:events:acc-1:u-1", Body: []byte(`[1,2]`), StoredAt: storedAt.Add(time.Minute)}))
	require.NoError(t, s.Put(ctx, Entry{Key: "list:tasks:acc-1:u-1", Body: []byte(`[]`), StoredAt: storedAt}))

	e, ok, err := s.Get(ctx, "list:events:acc-1:u-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[1,2]`, string(e.Body))
	assert.True(t, e.StoredAt.Equal(storedAt.Add(time.Minute)))

	_, ok, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.DeletePrefix(ctx, "list:events:"))
	_, ok, err = s.Get(ctx, "list:events:acc-1:u-1")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Prune(ctx, storedAt.Add(time.Second))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	require.NoError(t, s.Close())

	// Reopening reapplies nothing and a different key cannot read old rows.
	s2, err := OpenSQLite(path, key)
	require.NoError(t, err)
	require.NoError(t, s2.Put(ctx, Entry{Key: "k", Body: []byte("sealed"), StoredAt: storedAt}))
	require.NoError(t, s2.Close())

	s3, err := OpenSQLite(path, crypto.MustRandom(32))
	require.NoError(t, err)
	defer s3.Close()
	_, _, err = s3.Get(ctx, "k")
	assert.Error(t, err)
}

func TestOpenSQLiteValidation(t *testing.T) {
	_, err := OpenSQLite(" ", nil)
	assert.Error(t, err)

	_, err = OpenSQLite(filepath.Join(t.TempDir(), "c.db"), []byte("short"))
	assert.ErrorIs(t, err, crypto.ErrInvalidKeyLength)
}

func TestLoaderOverSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	l, _ := newTestLoader(s)
	var calls int32
	_, err = l.Load(ctx, "k", time.Hour, false, fetchBody(&calls, "persisted"))
	require.NoError(t, err)
	res, err := l.Load(ctx, "k", time.Hour, false, fetchBody(&calls, "new"))
	require.NoError(t, err)
	assert.True(t, res.Hit)
	assert.Equal(t, "persisted", string(res.Body))
}
