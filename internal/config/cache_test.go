package config

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"botadmin/internal/domain"
)

// stubStore counts reads and serves whatever the test loads into it.
type stubStore struct {
	mu      sync.Mutex
	configs map[string]domain.TaskConfig
	gets    int
	failGet error
}

func newStubStore() *stubStore {
	return &stubStore{configs: make(map[string]domain.TaskConfig)}
}

func (s *stubStore) set(name string, doc string, enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[name] = domain.TaskConfig{
		TaskName: name,
		Enabled:  enabled,
		Config:   json.RawMessage(doc),
	}
}

func (s *stubStore) getCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

func (s *stubStore) Get(ctx context.Context, taskName string) (domain.TaskConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.failGet != nil {
		return domain.TaskConfig{}, s.failGet
	}
	tc, ok := s.configs[taskName]
	if !ok {
		return domain.TaskConfig{}, ErrNotFound
	}
	return tc, nil
}

func (s *stubStore) Put(ctx context.Context, taskName string, doc json.RawMessage, enabled bool, actor string) (domain.TaskConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc := domain.TaskConfig{TaskName: taskName, Enabled: enabled, Config: doc}
	s.configs[taskName] = tc
	return tc, nil
}

func (s *stubStore) Toggle(ctx context.Context, taskName string, enabled bool, actor string) (domain.TaskConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc, ok := s.configs[taskName]
	if !ok {
		return domain.TaskConfig{}, ErrNotFound
	}
	tc.Enabled = enabled
	s.configs[taskName] = tc
	return tc, nil
}

func (s *stubStore) List(ctx context.Context) ([]domain.TaskConfig, error)        { return nil, nil }
func (s *stubStore) ListEnabled(ctx context.Context) ([]domain.TaskConfig, error) { return nil, nil }

func TestCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	store.set("book_service", `{"v":1}`, true)
	cache := NewCache(store, time.Minute)

	tc, err := cache.Read(ctx, "book_service")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1}`, string(tc.Config))
	require.Equal(t, 1, store.getCount())

	// Hit: no extra store read.
	_, err = cache.Read(ctx, "book_service")
	require.NoError(t, err)
	require.Equal(t, 1, store.getCount())
}

func TestCacheTTLExpiryForcesRefetch(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	store.set("book_service", `{"v":1}`, true)
	cache := NewCache(store, 20*time.Millisecond)

	_, err := cache.Read(ctx, "book_service")
	require.NoError(t, err)
	require.Equal(t, 1, store.getCount())

	store.set("book_service", `{"v":2}`, true)
	time.Sleep(40 * time.Millisecond)

	tc, err := cache.Read(ctx, "book_service")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(tc.Config))
	require.Equal(t, 2, store.getCount())
}

func TestCacheInvalidateForcesRefetch(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	store.set("book_service", `{"v":1}`, true)
	cache := NewCache(store, time.Hour)

	_, err := cache.Read(ctx, "book_service")
	require.NoError(t, err)

	store.set("book_service", `{"v":2}`, true)
	cache.Invalidate("book_service")

	tc, err := cache.Read(ctx, "book_service")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":2}`, string(tc.Config))
}

func TestCacheInvalidateIdempotent(t *testing.T) {
	store := newStubStore()
	cache := NewCache(store, time.Hour)
	cache.Invalidate("never_cached")
	cache.Invalidate("never_cached")
	require.Equal(t, 0, cache.Len())
}

func TestCacheNoNegativeCaching(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	cache := NewCache(store, time.Hour)

	_, err := cache.Read(ctx, "unknown_task")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 0, cache.Len())

	// A second read must query the store again rather than reuse a cached
	// absence.
	_, err = cache.Read(ctx, "unknown_task")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 2, store.getCount())

	// Delayed create becomes visible immediately.
	store.set("unknown_task", `{"v":1}`, true)
	tc, err := cache.Read(ctx, "unknown_task")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1}`, string(tc.Config))
}

func TestCacheStoreErrorNotCached(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	store.failGet = &StoreUnavailableError{Op: "get", Err: errors.New("down")}
	cache := NewCache(store, time.Hour)

	_, err := cache.Read(ctx, "book_service")
	var unavailable *StoreUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Equal(t, 0, cache.Len())

	// Recovery is visible on the next read; no stale or half-populated
	// entry survives the failure.
	store.failGet = nil
	store.set("book_service", `{"v":1}`, true)
	tc, err := cache.Read(ctx, "book_service")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":1}`, string(tc.Config))
}

func TestCacheConcurrentReads(t *testing.T) {
	ctx := context.Background()
	store := newStubStore()
	store.set("book_service", `{"v":1}`, true)
	cache := NewCache(store, time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tc, err := cache.Read(ctx, "book_service")
			require.NoError(t, err)
			require.NotEmpty(t, tc.Config)
		}()
	}
	wg.Wait()
	// Population is serialized per key: at most one fetch for the burst.
	require.Equal(t, 1, store.getCount())
}
