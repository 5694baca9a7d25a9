package colstore

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNewSnowflake_validatesIDs(t *testing.T) {
	_, err := NewSnowflake(32, 0)
	assert.Error(t, err)

	_, err = NewSnowflake(0, -1)
	assert.Error(t, err)

	sf, err := NewSnowflake(31, 31)
	require.NoError(t, err)
	assert.NotNil(t, sf)
}

func TestSnowflake_layout(t *testing.T) {
	clock := &fakeClock{now: DefaultSnowflakeEpoch.Add(1500 * time.Millisecond)}
	sf, err := NewSnowflake(3, 7, withClock(clock.Now))
	require.NoError(t, err)

	id, err := sf.NextID()
	require.NoError(t, err)

	assert.Equal(t, int64(1500), id>>22)
	assert.Equal(t, int64(3), (id>>17)&0x1f)
	assert.Equal(t, int64(7), (id>>12)&0x1f)
	assert.Equal(t, int64(0), id&0xfff)
	assert.True(t, clock.Now().Equal(sf.Time(id)))

	next, err := sf.NextID()
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
}

func TestSnowflake_absorbsSmallClockRegression(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	sf, err := NewSnowflake(0, 1, withClock(clock.Now))
	require.NoError(t, err)

	first, err := sf.NextID()
	require.NoError(t, err)

	clock.Add(-3 * time.Millisecond)
	second, err := sf.NextID()
	require.NoError(t, err)
	assert.Greater(t, second, first)

	clock.Add(-10 * time.Millisecond)
	_, err = sf.NextID()
	assert.True(t, errors.Is(err, ErrClockMovedBackwards))

	clock.Add(20 * time.Millisecond)
	third, err := sf.NextID()
	require.NoError(t, err)
	assert.Greater(t, third, second)
}

func TestSnowflake_sequenceExhaustionWaitsForNextMillisecond(t *testing.T) {
	start := time.Now()

	var (
		mu    sync.Mutex
		calls int
	)
	now := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls <= 4097 {
			return start
		}
		return start.Add(time.Millisecond)
	}

	sf, err := NewSnowflake(0, 0, withClock(now))
	require.NoError(t, err)

	var last int64
	for i := 0; i < 4097; i++ {
		id, err := sf.NextID()
		require.NoError(t, err)
		require.Greater(t, id, last)
		last = id
	}

	assert.Equal(t, int64(0), last&0xfff)
	assert.True(t, start.Add(time.Millisecond).Truncate(time.Millisecond).Equal(sf.Time(last)))
}

func TestSnowflake_concurrentIDsAreUnique(t *testing.T) {
	sf, err := NewSnowflake(1, 2)
	require.NoError(t, err)

	const (
		workers = 8
		perWork = 2000
	)

	results := make([][]int64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids := make([]int64, 0, perWork)
			for i := 0; i < perWork; i++ {
				id, err := sf.NextID()
				if err != nil {
					t.Error(err)
					return
				}
				ids = append(ids, id)
			}
			results[w] = ids
		}()
	}
	wg.Wait()

	seen := make(map[int64]struct{}, workers*perWork)
	for _, ids := range results {
		for i, id := range ids {
			if i > 0 {
				require.Greater(t, id, ids[i-1])
			}
			_, dup := seen[id]
			require.False(t, dup, "duplicate id %d", id)
			seen[id] = struct{}{}
		}
	}
	assert.Len(t, seen, workers*perWork)
}
