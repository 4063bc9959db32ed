package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestFreshness(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))

	c.Set("unread?user=u1", 4, 5*time.Second)
	v, ok := c.Get("unread?user=u1")
	require.True(t, ok)
	assert.Equal(t, 4, v)

	clock.Advance(4999 * time.Millisecond)
	_, ok = c.Get("unread?user=u1")
	assert.True(t, ok, "entry should still be fresh just before ttl")

	clock.Advance(time.Millisecond)
	_, ok = c.Get("unread?user=u1")
	assert.False(t, ok, "entry should be absent once ttl elapsed")

	stale, ok := c.Stale("unread?user=u1")
	require.True(t, ok, "expired entry must be retained")
	assert.Equal(t, 4, stale)
}

func TestSetOverwrites(t *testing.T) {
	c := New()
	c.Set("k", "a", time.Minute)
	c.Set("k", "b", time.Minute)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "b", v)
	assert.Equal(t, 1, c.Len())
}

func TestExpireKeepsFallback(t *testing.T) {
	c := New()
	c.Set("k", "a", time.Minute)
	c.Expire("k")

	_, ok := c.Get("k")
	assert.False(t, ok)
	v, ok := c.Stale("k")
	require.True(t, ok)
	assert.Equal(t, "a", v)

	c.Delete("k")
	_, ok = c.Stale("k")
	assert.False(t, ok)
}

func TestKeyIsDeterministic(t *testing.T) {
	a := Key("conversation", map[string]string{"u1": "s1", "u2": "l1", "propertyId": "p1"})
	b := Key("conversation", map[string]string{"propertyId": "p1", "u2": "l1", "u1": "s1"})
	assert.Equal(t, a, b)
	assert.Equal(t, "conversation?propertyId=p1&u1=s1&u2=l1", a)

	assert.Equal(t, "unread?user=u1", Key("unread", map[string]string{"user": "u1", "ignored": ""}))
	assert.Equal(t, "inbox", Key("inbox", nil))
}

func TestReadThroughServesFreshWithoutLoading(t *testing.T) {
	c := New()
	c.Set("k", 1, time.Minute)

	var calls atomic.Int32
	v, src, err := ReadThrough(context.Background(), c, "k", false, func(context.Context) (int, time.Duration, error) {
		calls.Add(1)
		return 2, time.Minute, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, SourceCache, src)
	assert.Zero(t, calls.Load())
}

func TestReadThroughForceReloads(t *testing.T) {
	c := New()
	c.Set("k", 1, time.Minute)

	v, src, err := ReadThrough(context.Background(), c, "k", true, func(context.Context) (int, time.Duration, error) {
		return 2, time.Minute, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v)
	assert.Equal(t, SourceNetwork, src)

	cached, _ := c.Get("k")
	assert.Equal(t, 2, cached)
}

func TestReadThroughUsesLoaderTTL(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))

	_, _, err := ReadThrough(context.Background(), c, "k", false, func(context.Context) (string, time.Duration, error) {
		return "empty", 5 * time.Second, nil
	})
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestStaleOnError(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	c.Set("k", []string{"m1"}, time.Second)
	clock.Advance(time.Hour)

	v, src, err := ReadThrough(context.Background(), c, "k", false, func(context.Context) ([]string, time.Duration, error) {
		return nil, 0, errors.New("502 bad gateway")
	})
	require.NoError(t, err)
	assert.Equal(t, SourceStale, src)
	assert.Equal(t, []string{"m1"}, v)
}

func TestErrorWithoutFallbackPropagates(t *testing.T) {
	c := New()
	errDown := errors.New("connection refused")

	_, _, err := ReadThrough(context.Background(), c, "k", false, func(context.Context) (int, time.Duration, error) {
		return 0, 0, errDown
	})
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, 0, c.Len(), "failures are not cached")
}

func TestConcurrentLoadsCollapse(t *testing.T) {
	c := New()
	release := make(chan struct{})
	var calls atomic.Int32

	load := func(context.Context) (int, time.Duration, error) {
		calls.Add(1)
		<-release
		return 9, time.Minute, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := ReadThrough(context.Background(), c, "k", false, load)
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []int{9, 9, 9, 9, 9}, results)
}

func TestForcedReadDoesNotJoinInFlightLoad(t *testing.T) {
	c := New()
	release := make(chan struct{})
	var calls atomic.Int32

	slow := make(chan int, 1)
	go func() {
		v, _, _ := ReadThrough(context.Background(), c, "k", false, func(context.Context) (int, time.Duration, error) {
			calls.Add(1)
			<-release
			return 1, time.Minute, nil
		})
		slow <- v
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	v, src, err := ReadThrough(context.Background(), c, "k", true, func(context.Context) (int, time.Duration, error) {
		calls.Add(1)
		return 2, time.Minute, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v, "forced read gets its own load")
	assert.Equal(t, SourceNetwork, src)

	close(release)
	assert.Equal(t, 1, <-slow)
	assert.Equal(t, int32(2), calls.Load())
}
