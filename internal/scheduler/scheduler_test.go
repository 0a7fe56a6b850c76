package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleFiresInOrder(t *testing.T) {
	var mu sync.Mutex
	var fired []int64

	s := NewScheduler(func(id int64) time.Duration {
		mu.Lock()
		fired = append(fired, id)
		mu.Unlock()
		return 0
	})
	s.Start()
	defer s.Stop()

	s.Schedule(1, 60*time.Millisecond)
	s.Schedule(2, 10*time.Millisecond)
	s.Schedule(3, 30*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 3
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{2, 3, 1}, fired)
}

func TestScheduleReschedulesExistingEntry(t *testing.T) {
	s := NewScheduler(func(id int64) time.Duration { return 0 })

	s.Schedule(1, time.Hour)
	assert.Equal(t, 1, s.Len())
	s.Schedule(1, time.Minute)
	assert.Equal(t, 1, s.Len())
}

func TestCancelRemovesPendingRecheck(t *testing.T) {
	var fired bool
	s := NewScheduler(func(id int64) time.Duration {
		fired = true
		return 0
	})
	s.Start()
	defer s.Stop()

	s.Schedule(1, 20*time.Millisecond)
	s.Cancel(1)

	time.Sleep(60 * time.Millisecond)
	assert.False(t, fired)
	assert.Equal(t, 0, s.Len())
}

func TestScheduleIgnoresSubEpsilonChange(t *testing.T) {
	s := NewScheduler(func(id int64) time.Duration { return 0 })

	s.Schedule(1, 5*time.Minute)
	before := s.items[0].at

	s.Schedule(1, 5*time.Minute+100*time.Millisecond)
	assert.True(t, before.Equal(s.items[0].at), "sub-epsilon change should not move the scheduled instant")
}

func TestScheduleAppliesChangeBeyondEpsilon(t *testing.T) {
	s := NewScheduler(func(id int64) time.Duration { return 0 })

	s.Schedule(1, 5*time.Minute)
	before := s.items[0].at

	s.Schedule(1, 20*time.Minute)
	assert.False(t, before.Equal(s.items[0].at), "beyond-epsilon change should move the scheduled instant")
}

func TestCancelThenReScheduleWithinEpsilonReusesInstant(t *testing.T) {
	s := NewScheduler(func(id int64) time.Duration { return 0 })

	s.Schedule(1, 5*time.Minute)
	original := s.items[0].at

	s.Cancel(1)
	assert.Equal(t, 0, s.Len())

	s.Schedule(1, time.Hour)
	require.Equal(t, 1, s.Len())
	assert.True(t, original.Equal(s.items[0].at), "re-add within epsilon should reuse the prior scheduled instant")
}

func TestFireFuncReschedulesWhenIntervalReturned(t *testing.T) {
	var mu sync.Mutex
	count := 0

	s := NewScheduler(func(id int64) time.Duration {
		mu.Lock()
		count++
		n := count
		mu.Unlock()
		if n >= 3 {
			return 0
		}
		return 10 * time.Millisecond
	})
	s.Start()
	defer s.Stop()

	s.Schedule(1, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 3
	}, 2*time.Second, 5*time.Millisecond)
}
