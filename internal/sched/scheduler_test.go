package sched

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStepRunsDueTaskAndRecyclesOthers(t *testing.T) {
	clock := NewFakeClock()
	s := New(clock, 0)

	var ranImmediate, ranFar bool
	s.AddTask(&Task{Run: func() { ranImmediate = true }}, 0)
	s.AddTask(&Task{Run: func() { ranFar = true }}, 1000)

	require.True(t, s.Step())
	require.True(t, ranImmediate)
	require.False(t, ranFar)
	require.Equal(t, 1, s.Len(), "the not-yet-due task stays queued")
}

func TestRecycleFrontAvoidsStarvation(t *testing.T) {
	clock := NewFakeClock()
	s := New(clock, 0)

	var ranB bool
	var selfRearm *Task
	selfRearm = &Task{Run: func() {
		s.AddTask(selfRearm, 0)
	}}
	s.AddTask(selfRearm, 0)
	s.AddTask(&Task{Run: func() { ranB = true }}, 50)

	for i := 0; i < 20 && !ranB; i++ {
		s.Step()
		clock.Advance(10)
	}
	require.True(t, ranB, "a busy self-rearming task must not starve a later task forever")
}

func TestSetUserTaskEnableGatesUserTasks(t *testing.T) {
	clock := NewFakeClock()
	s := New(clock, 0)

	var ranUser bool
	s.AddTask(&Task{User: true, Run: func() { ranUser = true }}, 0)
	s.SetUserTaskEnable(false)

	require.False(t, s.Step(), "a disabled user task must not run")
	require.False(t, ranUser)

	s.SetUserTaskEnable(true)
	require.True(t, s.Step())
	require.True(t, ranUser)
}

func TestZeroMillisTimerRebasesQueuedTimes(t *testing.T) {
	clock := NewFakeClock()
	clock.Advance(1000)
	s := New(clock, 0)

	id := s.AddTask(&Task{Run: func() {}}, 500)
	s.ZeroMillisTimer()

	require.Equal(t, uint32(0), clock.NowMillis())
	info, ok := s.GetTaskInfo(id)
	require.True(t, ok)
	require.Equal(t, uint32(500), info.TimeToRunMs)
}

func TestZeroMillisTimerClampsOverdueTasksToZero(t *testing.T) {
	clock := NewFakeClock()
	clock.Advance(1000)
	s := New(clock, 0)

	id := s.AddTask(&Task{Run: func() {}}, 0)
	clock.Advance(500)

	s.ZeroMillisTimer()

	info, ok := s.GetTaskInfo(id)
	require.True(t, ok)
	require.Equal(t, uint32(0), info.TimeToRunMs)
}

func TestAdjustTimeRebasesRelativeOffsets(t *testing.T) {
	clock := NewFakeClock()
	clock.Advance(1000)
	s := New(clock, 0)

	id := s.AddTask(&Task{Run: func() {}}, 200)
	s.AdjustTime(5000)

	require.Equal(t, uint32(5000), clock.NowMillis())
	info, ok := s.GetTaskInfo(id)
	require.True(t, ok)
	require.Equal(t, uint32(5200), info.TimeToRunMs)
}

func TestAddTaskNearOverflowRebasesClockFirst(t *testing.T) {
	clock := NewFakeClock()
	clock.SetMillis(0xFFFFFFF0)
	s := New(clock, 0)

	id := s.AddTask(&Task{Run: func() {}}, 100)

	require.Less(t, clock.NowMillis(), uint32(1000), "the clock must have been rebased toward zero")
	info, ok := s.GetTaskInfo(id)
	require.True(t, ok)
	require.Equal(t, clock.NowMillis()+100, info.TimeToRunMs)
}

func TestClearTasksEmptiesQueue(t *testing.T) {
	clock := NewFakeClock()
	s := New(clock, 0)
	s.AddTask(&Task{Run: func() {}}, 0)
	s.AddTask(&Task{Run: func() {}}, 10)

	s.ClearTasks()
	require.Equal(t, 0, s.Len())
}

func TestGetTaskInfoMissingID(t *testing.T) {
	clock := NewFakeClock()
	s := New(clock, 0)
	_, ok := s.GetTaskInfo(999)
	require.False(t, ok)
}
