package sched

// Kind labels a task for logging; GetTaskInfo looks tasks up by
// TaskID, not by Kind. The
// scheduler itself never branches on Kind; dispatch is always the
// statically-known Run closure, never a type switch or interface
// hierarchy (spec section 4.3 REDESIGN FLAGS).
type Kind string

// Task is one unit of cooperative work. Run returns once its step is
// done; a PHY send and the Sleep task's power-down block inside Run.
type Task struct {
	Kind Kind
	User bool
	Run  func()
}

// Scheduled is a Task paired with its due time, as held in the
// scheduler's run queue.
type Scheduled struct {
	Task        *Task
	TimeToRunMs uint32
	DelayMs     uint32
	TaskID      uint32
}

func scheduledEqByID(a, b *Scheduled) bool {
	return a.TaskID == b.TaskID
}
