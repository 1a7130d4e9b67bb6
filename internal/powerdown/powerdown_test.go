package powerdown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seelmesh/seel/internal/sched"
)

func TestFakeAdvancesClockByTicksTimesTickMs(t *testing.T) {
	clock := sched.NewFakeClock()
	s := NewFake(clock, 1000)

	s.PowerDown(60)

	require.Equal(t, uint32(60000), clock.NowMillis())
	require.Equal(t, []int{60}, s.Calls)
}

func TestFakeIgnoresNonPositiveTicks(t *testing.T) {
	clock := sched.NewFakeClock()
	s := NewFake(clock, 1000)

	s.PowerDown(0)
	s.PowerDown(-3)

	require.Equal(t, uint32(0), clock.NowMillis())
	require.Equal(t, []int{0, -3}, s.Calls, "calls are still recorded even when a no-op")
}

func TestFakeDefaultsTickMsWhenUnset(t *testing.T) {
	clock := sched.NewFakeClock()
	s := NewFake(clock, 0)

	s.PowerDown(2)

	require.Equal(t, uint32(2*900), clock.NowMillis())
}

func TestRealSleepsApproximatelyTicksTimesTickMs(t *testing.T) {
	r := &Real{TickMs: 5}

	start := time.Now()
	r.PowerDown(2)
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, 10*time.Millisecond)
	require.Less(t, elapsed, 200*time.Millisecond)
}

func TestRealPowerDownIsNoOpForNonPositiveTicks(t *testing.T) {
	r := &Real{TickMs: 5}

	start := time.Now()
	r.PowerDown(0)
	elapsed := time.Since(start)

	require.Less(t, elapsed, 50*time.Millisecond)
}
