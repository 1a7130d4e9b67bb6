// Package powerdown wraps the low-power MCU sleep primitive spec
// section 6 treats as external: "power_down(duration_enum) blocks for
// one watchdog period and returns; called in a loop." SEEL never
// sleeps for an arbitrary duration directly — only in units of this
// fixed hardware tick, which is why the drift estimator exists at all.
package powerdown

import (
	"time"

	"github.com/seelmesh/seel/internal/constants"
	"github.com/seelmesh/seel/internal/sched"
)

// Sleeper is the external deep-sleep contract. PowerDown blocks for
// exactly ticks watchdog periods; a node computes ticks from its own
// drift estimate and calls PowerDown once per Sleep-task entry.
type Sleeper interface {
	PowerDown(ticks int)
}

// Real sleeps the calling goroutine for ticks real watchdog periods.
// This is the only component in the module that ever wall-clock
// sleeps; everything else is driven by the cooperative scheduler.
type Real struct {
	TickMs int
}

// NewReal returns a Sleeper backed by the actual hardware tick length.
func NewReal() *Real {
	return &Real{TickMs: constants.WatchdogTickMs}
}

func (r *Real) PowerDown(ticks int) {
	if ticks <= 0 {
		return
	}
	tickMs := r.TickMs
	if tickMs <= 0 {
		tickMs = constants.WatchdogTickMs
	}
	time.Sleep(time.Duration(ticks) * time.Duration(tickMs) * time.Millisecond)
}

// Fake advances an injected sched.Clock instead of actually sleeping,
// so scheduler and drift-estimator tests run instantly and
// deterministically. The advance uses the same hardware tick length
// Real would have slept for, not the node's learned estimate, since
// the whole point of the estimator is that the two differ.
type Fake struct {
	Clock  *sched.FakeClock
	TickMs int

	Calls []int
}

// NewFake returns a Sleeper that advances clock by ticks*tickMs on
// every PowerDown call and records the tick counts it was asked for.
func NewFake(clock *sched.FakeClock, tickMs int) *Fake {
	return &Fake{Clock: clock, TickMs: tickMs}
}

func (f *Fake) PowerDown(ticks int) {
	f.Calls = append(f.Calls, ticks)
	if ticks <= 0 {
		return
	}
	tickMs := f.TickMs
	if tickMs <= 0 {
		tickMs = constants.WatchdogTickMs
	}
	f.Clock.Advance(uint32(ticks * tickMs))
}
