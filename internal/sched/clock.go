// Package sched implements the cooperative, single-threaded scheduler
// that every SEEL role runs its tasks under (spec section 4.3). There
// is no preemption and no goroutine per task: tasks are short, run to
// completion, and re-arm themselves by calling AddTask again before
// returning.
package sched

import (
	"time"

	"golang.org/x/sys/unix"
)

// Clock supplies the scheduler's notion of "now" in milliseconds on a
// 32-bit counter, matching the embedded target SEEL runs on. SetMillis
// rebases the clock without changing its rate, used by ZeroMillisTimer
// and AdjustTime to fold a long uptime back into a small window before
// it approaches wraparound.
type Clock interface {
	NowMillis() uint32
	SetMillis(ms uint32)
}

// MonotonicClock is a Clock backed by CLOCK_MONOTONIC, immune to wall
// clock adjustments from NTP or the user. SetMillis is implemented as
// an offset applied on top of the raw monotonic reading, since the
// monotonic clock itself cannot be rewritten.
type MonotonicClock struct {
	offsetMs int64
}

// NewMonotonicClock returns a Clock reading real elapsed time, starting
// at 0ms.
func NewMonotonicClock() *MonotonicClock {
	c := &MonotonicClock{}
	c.offsetMs = -c.rawMillis()
	return c
}

func (c *MonotonicClock) rawMillis() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return time.Now().UnixMilli()
	}
	return ts.Sec*1000 + ts.Nsec/int64(time.Millisecond)
}

func (c *MonotonicClock) NowMillis() uint32 {
	return uint32(c.rawMillis() + c.offsetMs)
}

func (c *MonotonicClock) SetMillis(ms uint32) {
	c.offsetMs = int64(ms) - c.rawMillis()
}

// FakeClock is a manually-advanced Clock for deterministic tests.
type FakeClock struct {
	ms uint32
}

// NewFakeClock returns a FakeClock starting at 0ms.
func NewFakeClock() *FakeClock { return &FakeClock{} }

func (c *FakeClock) NowMillis() uint32 { return c.ms }

func (c *FakeClock) SetMillis(ms uint32) { c.ms = ms }

// Advance moves the fake clock forward by delta milliseconds, wrapping
// on uint32 overflow exactly like the real embedded counter would.
func (c *FakeClock) Advance(delta uint32) { c.ms += delta }
