package collection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/corpweb/internal/apperror"
)

type item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func newCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisCache(rdb), mr
}

func testOpts(extra ...Option[item]) []Option[item] {
	base := []Option[item]{
		WithBackOff[item](func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		WithLogger[item](slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return append(base, extra...)
}

// countingLoader returns items after failing the first n calls with err.
func countingLoader(calls *atomic.Int32, n int32, err error, items []item) Loader[item] {
	return func(ctx context.Context) ([]item, error) {
		if calls.Add(1) <= n {
			return nil, err
		}
		return items, nil
	}
}

var (
	sample       = []item{{1, "one"}, {2, "two"}}
	errTransient = apperror.NewNetwork(errors.New("connection refused"))
)

func TestLoad_Success(t *testing.T) {
	var calls atomic.Int32
	col := New("items", countingLoader(&calls, 0, nil, sample), testOpts()...)

	res := col.Load(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, sample, res.Items)
	assert.False(t, res.Degraded())
}

func TestLoad_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	col := New("items", countingLoader(&calls, 2, errTransient, sample), testOpts(WithMaxTries[item](3))...)

	res := col.Load(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, sample, res.Items)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLoad_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	col := New("items",
		countingLoader(&calls, 10, apperror.NewNotFound("gone"), sample),
		testOpts(WithMaxTries[item](5), WithFallback([]item{{9, "fallback"}}))...,
	)

	res := col.Load(context.Background())
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, res.Fallback)
	assert.True(t, apperror.IsType(res.Err, "not_found"))
}

func TestLoad_FallbackAfterExhaustedRetries(t *testing.T) {
	var calls atomic.Int32
	fallback := []item{{9, "fallback"}}
	col := New("items", countingLoader(&calls, 10, errTransient, sample),
		testOpts(WithMaxTries[item](3), WithFallback(fallback))...)

	res := col.Load(context.Background())
	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, res.Fallback)
	assert.Equal(t, fallback, res.Items)
	assert.Error(t, res.Err)
}

func TestLoad_NoFallback(t *testing.T) {
	var calls atomic.Int32
	col := New("items", countingLoader(&calls, 10, errTransient, nil), testOpts(WithMaxTries[item](1))...)

	res := col.Load(context.Background())
	assert.Nil(t, res.Items)
	assert.Error(t, res.Err)
	assert.False(t, res.Degraded())
}

func TestLoad_CachedWhileFresh(t *testing.T) {
	cache, _ := newCache(t)
	var calls atomic.Int32
	col := New("items", countingLoader(&calls, 0, nil, sample),
		testOpts(WithCache[item](cache, time.Minute, time.Hour))...)

	first := col.Load(context.Background())
	second := col.Load(context.Background())

	assert.Equal(t, sample, first.Items)
	assert.Equal(t, sample, second.Items)
	assert.Equal(t, int32(1), calls.Load())
}

func TestLoad_StaleCopyWhenSourceFails(t *testing.T) {
	cache, _ := newCache(t)
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	healthy := true
	loader := func(ctx context.Context) ([]item, error) {
		if healthy {
			return sample, nil
		}
		return nil, errTransient
	}
	col := New("items", loader,
		testOpts(WithCache[item](cache, time.Minute, time.Hour), WithMaxTries[item](1), WithFallback([]item{{9, "fallback"}}))...)
	col.now = func() time.Time { return clock }

	require.Equal(t, sample, col.Load(context.Background()).Items)

	healthy = false
	clock = clock.Add(5 * time.Minute)

	res := col.Load(context.Background())
	assert.True(t, res.Stale)
	assert.False(t, res.Fallback)
	assert.Equal(t, sample, res.Items)
	assert.Error(t, res.Err)
}

func TestLoad_StaleCopyExpires(t *testing.T) {
	cache, mr := newCache(t)
	var calls atomic.Int32
	col := New("items", countingLoader(&calls, 0, nil, sample),
		testOpts(WithCache[item](cache, time.Minute, time.Hour))...)

	col.Load(context.Background())
	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists("collection:items"))
}

func TestLoad_ConcurrentCallsShareFetch(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(ctx context.Context) ([]item, error) {
		calls.Add(1)
		<-release
		return sample, nil
	}
	col := New("items", loader, testOpts()...)

	var wg sync.WaitGroup
	results := make([]Result[item], 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = col.Load(context.Background())
		}(i)
	}

	// Let every goroutine reach the singleflight group before releasing.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, sample, r.Items)
	}
}

func TestLoad_CanceledCallerDoesNotFailSharedFetch(t *testing.T) {
	var once sync.Once
	started := make(chan struct{})
	release := make(chan struct{})
	loader := func(ctx context.Context) ([]item, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return sample, nil
	}
	col := New("items", loader, testOpts()...)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leader := make(chan Result[item], 1)
	go func() { leader <- col.Load(leaderCtx) }()
	<-started

	follower := make(chan Result[item], 1)
	go func() { follower <- col.Load(context.Background()) }()

	// Let the follower join the in-flight fetch, then drop the leader.
	time.Sleep(50 * time.Millisecond)
	cancel()
	close(release)

	res := <-follower
	require.NoError(t, res.Err)
	assert.Equal(t, sample, res.Items)
	assert.False(t, res.Degraded())
	<-leader
}

func TestLoad_FetchTimeout(t *testing.T) {
	loader := func(ctx context.Context) ([]item, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	col := New("items", loader, testOpts(
		WithFetchTimeout[item](20*time.Millisecond),
		WithMaxTries[item](1),
		WithFallback(sample),
	)...)

	res := col.Load(context.Background())
	assert.True(t, res.Fallback)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestInvalidate(t *testing.T) {
	cache, _ := newCache(t)
	var calls atomic.Int32
	col := New("items", countingLoader(&calls, 0, nil, sample),
		testOpts(WithCache[item](cache, time.Minute, time.Hour))...)

	col.Load(context.Background())
	require.NoError(t, col.Invalidate(context.Background()))
	col.Load(context.Background())

	assert.Equal(t, int32(2), calls.Load())
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(errors.New("plain")))
	assert.True(t, retryable(errTransient))
	assert.True(t, retryable(&apperror.AppError{Code: 429}))
	assert.False(t, retryable(apperror.NewForbidden("no")))
	assert.False(t, retryable(context.Canceled))
}
