package sched

import "github.com/seelmesh/seel/internal/ring"

// DefaultQueueCapacity comfortably covers every named task a single
// SEEL role schedules at once (wake, receive, enqueue, user, sleep,
// force-sleep, send, bcast and their continuations).
const DefaultQueueCapacity = 32

// Scheduler runs a fixed, known set of tasks cooperatively in a single
// goroutine: tasks never preempt each other, and dispatch is a plain
// round-robin scan of a ring queue rather than a sorted heap. A task
// not yet due is recycled to the tail instead of being popped, so it
// is retried once per lap without ever starving a task that becomes
// due while others are waiting (spec section 4.3).
type Scheduler struct {
	clock       Clock
	queue       *ring.Queue[*Scheduled]
	userEnabled bool
	nextTaskID  uint32
}

// New returns a Scheduler driven by clock, with room for capacity
// concurrently scheduled tasks.
func New(clock Clock, capacity int) *Scheduler {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Scheduler{
		clock:       clock,
		queue:       ring.New[*Scheduled](capacity),
		userEnabled: true,
	}
}

// isDue compares two 32-bit millisecond timestamps as a sequence
// number, so a single wraparound of the underlying clock never makes
// a task appear due far too early or too late.
func isDue(now, due uint32) bool {
	return int32(now-due) >= 0
}

// AssignTaskID returns the next task id without scheduling anything.
// Roles use this to stamp continuation tasks with the same identity
// as the task they replace.
func (s *Scheduler) AssignTaskID() uint32 {
	s.nextTaskID++
	return s.nextTaskID
}

// AddTask enqueues task to run after delayMs have elapsed and returns
// the Scheduled record's task id. If scheduling delayMs from now would
// overflow the 32-bit millisecond counter, the clock (and every
// currently queued due time) is rebased to zero first so the new due
// time itself never overflows.
func (s *Scheduler) AddTask(task *Task, delayMs uint32) uint32 {
	now := s.clock.NowMillis()
	if uint64(now)+uint64(delayMs) > 0xFFFFFFFF {
		s.ZeroMillisTimer()
		now = s.clock.NowMillis()
	}
	id := s.AssignTaskID()
	sc := &Scheduled{
		Task:        task,
		TimeToRunMs: now + delayMs,
		DelayMs:     delayMs,
		TaskID:      id,
	}
	if !s.queue.Add(sc, false) {
		// The queue is sized to the role's fixed task set; reaching
		// capacity means a task failed to reschedule itself and is
		// leaking. Wrapping makes room for the new task by dropping
		// the oldest queued one.
		s.queue.Add(sc, true)
	}
	return id
}

// Step runs at most one due task, recycling every not-yet-due task it
// passes over. It reports whether a task ran.
func (s *Scheduler) Step() bool {
	for i, n := 0, s.queue.Size(); i < n; i++ {
		front := s.queue.Front()
		if front == nil {
			return false
		}
		sc := *front
		if sc.Task.User && !s.userEnabled {
			s.queue.RecycleFront()
			continue
		}
		if !isDue(s.clock.NowMillis(), sc.TimeToRunMs) {
			s.queue.RecycleFront()
			continue
		}
		s.queue.PopFront()
		sc.Task.Run()
		return true
	}
	return false
}

// Run drives Step in a tight loop until stop is closed. Because SEEL's
// PHY operations are themselves synchronous and blocking, the loop
// naturally paces itself on real hardware; tests instead call Step
// directly against a FakeClock.
func (s *Scheduler) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
			s.Step()
		}
	}
}

// OffsetTaskTimes shifts every queued due time by delta milliseconds.
// delta may be negative; the result wraps exactly like the embedded
// 32-bit millisecond counter would.
func (s *Scheduler) OffsetTaskTimes(delta int64) {
	s.queue.UpdateEach(func(sc *Scheduled) *Scheduled {
		sc.TimeToRunMs = uint32(int64(sc.TimeToRunMs) + delta)
		return sc
	})
}

// ZeroMillisTimer resets the clock to 0 and rebases every queued due
// time by the clock's prior value, clamping anything already overdue
// to 0 rather than letting it go negative and wrap to the far future.
func (s *Scheduler) ZeroMillisTimer() {
	prior := s.clock.NowMillis()
	s.clock.SetMillis(0)
	s.queue.UpdateEach(func(sc *Scheduled) *Scheduled {
		if sc.TimeToRunMs < prior {
			sc.TimeToRunMs = 0
		} else {
			sc.TimeToRunMs -= prior
		}
		return sc
	})
}

// AdjustTime rebases the clock to newMs — used when a beacon's
// time_sync_ms disagrees with the local clock — and shifts every
// queued task by the same delta, so relative due times survive the
// rebase undisturbed.
func (s *Scheduler) AdjustTime(newMs uint32) {
	old := s.clock.NowMillis()
	delta := int64(newMs) - int64(old)
	s.clock.SetMillis(newMs)
	s.OffsetTaskTimes(delta)
}

// GetTaskInfo returns the Scheduled record for taskID, if still queued.
func (s *Scheduler) GetTaskInfo(taskID uint32) (*Scheduled, bool) {
	needle := &Scheduled{TaskID: taskID}
	return s.queue.Find(needle, scheduledEqByID)
}

// SetUserTaskEnable gates whether tasks marked Task.User may run. A
// role disables user tasks while it has not yet completed tree
// formation, and re-enables them once it has a stable parent.
func (s *Scheduler) SetUserTaskEnable(enabled bool) { s.userEnabled = enabled }

// ClearTasks drops every queued task.
func (s *Scheduler) ClearTasks() { s.queue.Clear() }

// Len reports how many tasks are currently queued.
func (s *Scheduler) Len() int { return s.queue.Size() }
