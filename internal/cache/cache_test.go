package cache

import (
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
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
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

func TestSetGet(t *testing.T) {
	c := New()
	defer c.Close()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("k", 42, 0)
	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestGet_ExpiresLazily(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	defer c.Close()

	c.Set("k", "v", time.Minute)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)

	clock.Advance(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Zero(t, c.Len(), "expired entry is dropped on touch")
}

func TestSet_ZeroTTLNeverExpires(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	defer c.Close()

	c.Set("k", "v", 0)
	clock.Advance(24 * time.Hour)

	_, ok := c.Get("k")
	assert.True(t, ok)
}

func TestGetOrSet_SingleFlight(t *testing.T) {
	c := New()
	defer c.Close()

	var calls atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, err := c.GetOrSet("hot", time.Minute, func() (any, error) {
				calls.Add(1)
				time.Sleep(10 * time.Millisecond)
				return "computed", nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "computed", v)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "concurrent misses share one loader invocation")
}

func TestGetOrSet_ErrorNotCached(t *testing.T) {
	c := New()
	defer c.Close()

	boom := errors.New("storage down")
	_, err := c.GetOrSet("k", time.Minute, func() (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())

	// The next miss retries the loader.
	v, err := c.GetOrSet("k", time.Minute, func() (any, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", v)
}

func TestGetOrSet_HitSkipsLoader(t *testing.T) {
	c := New()
	defer c.Close()

	c.Set("k", "cached", time.Minute)
	v, err := c.GetOrSet("k", time.Minute, func() (any, error) {
		t.Fatal("loader must not run on a hit")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "cached", v)
}

func TestInvalidate_RotatesKeys(t *testing.T) {
	c := New()
	defer c.Close()

	k1 := c.Key("Student", "age>=18")
	c.Set(k1, "rows", time.Minute)

	assert.Equal(t, uint64(0), c.Version("Student"))
	c.Invalidate("Student")
	assert.Equal(t, uint64(1), c.Version("Student"))

	k2 := c.Key("Student", "age>=18")
	assert.NotEqual(t, k1, k2, "invalidation must rotate composed keys")

	_, ok := c.Get(k2)
	assert.False(t, ok)

	// Other scopes are untouched.
	assert.Equal(t, uint64(0), c.Version("Teacher"))
}

func TestVersionedKeys_NeverCollide(t *testing.T) {
	c := New()
	defer c.Close()

	c.SetVersioned("students:all", "v0 rows", time.Minute, 0)
	c.SetVersioned("students:all", "v1 rows", time.Minute, 1)

	v, ok := c.GetVersioned("students:all", 0)
	require.True(t, ok)
	assert.Equal(t, "v0 rows", v)

	v, ok = c.GetVersioned("students:all", 1)
	require.True(t, ok)
	assert.Equal(t, "v1 rows", v)

	c.DeleteVersioned("students:all", 0)
	_, ok = c.GetVersioned("students:all", 0)
	assert.False(t, ok)
	_, ok = c.GetVersioned("students:all", 1)
	assert.True(t, ok)
}

func TestSweep_EvictsExpired(t *testing.T) {
	clock := newFakeClock()
	c := New(WithClock(clock.Now))
	defer c.Close()

	c.Set("old", 1, time.Minute)
	c.Set("fresh", 2, time.Hour)
	c.Set("pinned", 3, 0)

	clock.Advance(30 * time.Minute)
	c.sweep()

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("old")
	assert.False(t, ok)
	_, ok = c.Get("fresh")
	assert.True(t, ok)
	_, ok = c.Get("pinned")
	assert.True(t, ok)
}

func TestClear_PreservesVersions(t *testing.T) {
	c := New()
	defer c.Close()

	c.Invalidate("Student")
	c.Set(c.Key("Student", "all"), "rows", 0)
	c.Clear()

	assert.Zero(t, c.Len())
	assert.Equal(t, uint64(1), c.Version("Student"))
}
