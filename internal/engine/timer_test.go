package engine

import (
	"testing"
	"time"

	"github.com/stemsi/exstem-engine/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_CountsDownAndExpiresOnce(t *testing.T) {
	sched := testutil.NewFakeScheduler()
	timer := NewTimer(sched, time.Second)

	var ticks []int
	expired := 0
	require.True(t, timer.Start(3, func(r int) { ticks = append(ticks, r) }, func() { expired++ }))

	sched.Advance(10 * time.Second)

	assert.Equal(t, []int{2, 1, 0}, ticks)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 0, timer.Remaining())
	assert.Equal(t, 3, timer.Elapsed())
	assert.True(t, timer.Expired())
	assert.False(t, timer.Running())
	assert.Zero(t, sched.Pending())
}

func TestTimer_StartWhileRunningIsNoop(t *testing.T) {
	sched := testutil.NewFakeScheduler()
	timer := NewTimer(sched, time.Second)

	require.True(t, timer.Start(10, nil, nil))
	sched.Advance(2 * time.Second)
	assert.False(t, timer.Start(99, nil, nil))
	assert.Equal(t, 8, timer.Remaining())
	assert.Equal(t, 1, sched.Pending())
}

func TestTimer_PauseResume(t *testing.T) {
	sched := testutil.NewFakeScheduler()
	timer := NewTimer(sched, time.Second)
	timer.Start(5, nil, nil)

	sched.Advance(2 * time.Second)
	timer.Pause()
	sched.Advance(10 * time.Second)
	assert.Equal(t, 3, timer.Remaining())
	assert.False(t, timer.Running())

	require.True(t, timer.Resume())
	assert.False(t, timer.Resume())
	sched.Advance(time.Second)
	assert.Equal(t, 2, timer.Remaining())
}

func TestTimer_ResumeAfterExpiryFails(t *testing.T) {
	sched := testutil.NewFakeScheduler()
	timer := NewTimer(sched, time.Second)
	timer.Start(1, nil, nil)
	sched.Advance(time.Second)

	assert.False(t, timer.Resume())
}

func TestTimer_ResetAndResetTo(t *testing.T) {
	sched := testutil.NewFakeScheduler()
	timer := NewTimer(sched, time.Second)
	timer.Start(5, nil, nil)
	sched.Advance(5 * time.Second)
	require.True(t, timer.Expired())

	timer.Reset()
	assert.Equal(t, 5, timer.Remaining())
	assert.False(t, timer.Expired())
	assert.False(t, timer.Running())

	timer.ResetTo(7)
	assert.Equal(t, 7, timer.Remaining())
	assert.Equal(t, 0, timer.Elapsed())
}

func TestTimer_StopDropsCallbacks(t *testing.T) {
	sched := testutil.NewFakeScheduler()
	timer := NewTimer(sched, time.Second)

	calls := 0
	timer.Start(2, func(int) { calls++ }, func() { calls++ })
	timer.Stop()
	sched.Advance(5 * time.Second)

	assert.Zero(t, calls)
	assert.Equal(t, 2, timer.Remaining())
}

func TestTimer_RestartAfterStopIgnoresOldTicks(t *testing.T) {
	sched := testutil.NewFakeScheduler()
	timer := NewTimer(sched, time.Second)

	timer.Start(10, nil, nil)
	sched.Advance(500 * time.Millisecond)
	timer.Pause()
	timer.Start(4, nil, nil)
	sched.Advance(time.Second)

	assert.Equal(t, 3, timer.Remaining())
}
