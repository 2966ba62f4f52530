package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOffsetScheduleFiresAtOffsetFirst(t *testing.T) {
	sched := &offsetSchedule{offset: 30 * time.Second, interval: 10 * time.Minute}
	now := time.Now()
	next := sched.Next(now)
	require.Equal(t, now.Add(30*time.Second), next)
	require.True(t, sched.started)
}

func TestOffsetScheduleUsesIntervalAfterFirstFire(t *testing.T) {
	sched := &offsetSchedule{offset: 30 * time.Second, interval: 10 * time.Minute}
	now := time.Now()
	sched.Next(now) // first fire, consumes the offset

	next := sched.Next(now)
	require.True(t, next.After(now.Add(10*time.Minute-time.Millisecond)))
}

func TestOffsetScheduleJitterStaysWithinBound(t *testing.T) {
	sched := &offsetSchedule{offset: 0, interval: time.Minute, jitter: 5 * time.Second}
	now := time.Now()
	sched.Next(now) // consume offset

	for i := 0; i < 50; i++ {
		next := sched.Next(now)
		delta := next.Sub(now)
		require.GreaterOrEqual(t, delta, time.Minute)
		require.Less(t, delta, time.Minute+5*time.Second)
	}
}

func TestSchedulerLockIsSingleHolder(t *testing.T) {
	s := &Scheduler{lock: make(chan struct{}, 1)}
	require.True(t, s.TryAcquire())
	require.False(t, s.TryAcquire())
	s.Release()
	require.True(t, s.TryAcquire())
}
