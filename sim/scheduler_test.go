// SPDX-License-Identifier: GPL-3.0-or-later

package sim

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerOrdering(t *testing.T) {
	s := NewScheduler()
	var order []string
	s.Schedule(2*time.Millisecond, func() { order = append(order, "c") })
	s.Schedule(time.Millisecond, func() { order = append(order, "a") })
	s.Schedule(time.Millisecond, func() { order = append(order, "b") })
	s.Schedule(-time.Second, func() { order = append(order, "first") })

	assert.Equal(t, 4, s.Pending())
	assert.Equal(t, 4, s.RunUntil(time.Second))
	assert.Equal(t, []string{"first", "a", "b", "c"}, order)
	assert.Equal(t, time.Second, s.Now())
}

func TestSchedulerCancel(t *testing.T) {
	s := NewScheduler()
	var fired []int
	id1 := s.Schedule(time.Millisecond, func() { fired = append(fired, 1) })
	id2 := s.Schedule(time.Millisecond, func() { fired = append(fired, 2) })
	require.NotZero(t, id1)
	require.NotEqual(t, id1, id2)

	assert.True(t, s.Cancel(id1))
	assert.False(t, s.Cancel(id1))
	assert.False(t, s.Cancel(0))
	s.RunFor(time.Second)
	assert.Equal(t, []int{2}, fired)
	assert.False(t, s.Cancel(id2))
}

func TestSchedulerEventsScheduleEvents(t *testing.T) {
	s := NewScheduler()
	var at []time.Duration
	var tick func()
	tick = func() {
		at = append(at, s.Now())
		if len(at) < 3 {
			s.Schedule(10*time.Microsecond, tick)
		}
	}
	s.Schedule(0, tick)
	for s.Step() {
	}
	assert.Equal(t, []time.Duration{0, 10 * time.Microsecond, 20 * time.Microsecond}, at)
}

func TestSchedulerRunUntilLeavesLaterEvents(t *testing.T) {
	s := NewScheduler()
	fired := false
	s.At(time.Second, func() { fired = true })
	assert.Equal(t, 0, s.RunUntil(time.Second-1))
	assert.False(t, fired)
	assert.Equal(t, 1, s.Pending())

	// scheduling in the past runs at the current time
	var seen time.Duration
	s.At(0, func() { seen = s.Now() })
	s.RunUntil(time.Second)
	assert.True(t, fired)
	assert.Equal(t, time.Second-1, seen)
}

func TestSchedulerRunContext(t *testing.T) {
	s := NewScheduler()
	var count int
	var tick func()
	tick = func() {
		count++
		s.Schedule(time.Microsecond, tick)
	}
	s.Schedule(0, tick)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Run(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, count)

	require.NoError(t, s.Run(context.Background(), time.Millisecond))
	assert.Equal(t, 1001, count)
	assert.Equal(t, time.Millisecond, s.Now())
}
