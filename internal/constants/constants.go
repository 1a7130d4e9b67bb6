// Package constants holds protocol-wide defaults shared by every SEEL
// package. Values mirror the compile-time parameters of the SEEL wire
// protocol; none of them are negotiated on the wire.
package constants

import "time"

// Frame layout (spec section 6).
const (
	// MiscSize is the command-specific header budget inside the payload
	// region; DataSize = MiscSize + UserSize.
	MiscSize = 16

	// DefaultUserSize is the default tail appended to the payload for
	// application use.
	DefaultUserSize = 16

	// DefaultDataSize is MiscSize + DefaultUserSize.
	DefaultDataSize = MiscSize + DefaultUserSize

	// DefaultDupWindow is the number of distinct frames the duplicate
	// filter remembers.
	DefaultDupWindow = 16
)

// Network limits.
const (
	// MaxNodes bounds the SNODE id space; valid ids are [1, MaxNodes).
	MaxNodes = 128

	// MaxCycleMisses bounds how many bcast_count ticks an id registry
	// entry tolerates before expiring. Must stay <= 127 so the 7-bit
	// wraparound arithmetic in the GNODE allocator holds.
	MaxCycleMisses = 8

	// BcastCountModulus is the modulus of the 7-bit bcast_count counter.
	BcastCountModulus = 128
)

// Sync and sleep defaults.
const (
	// SecsToMillis converts the wire's second-granularity awake/sleep
	// fields to milliseconds.
	SecsToMillis = 1000

	// DefaultEarlyWakeMs is the safety margin subtracted from every
	// computed sleep duration.
	DefaultEarlyWakeMs = 0

	// DefaultWatchdogEstimateMs is the initial, deliberately
	// over-estimated per-tick duration fed to the drift learner.
	DefaultWatchdogEstimateMs = 1000

	// WatchdogTickMs is the real hardware's low-power watchdog period,
	// treated as an external constant exactly like the radio PHY.
	// DefaultWatchdogEstimateMs intentionally starts above it; the
	// drift learner converges the software estimate down toward it.
	WatchdogTickMs = 900

	// DefaultTransmissionUpperBoundMs bounds one frame's time-on-air for
	// TDMA slot sizing.
	DefaultTransmissionUpperBoundMs = 1000
)

// Force-sleep defaults.
const (
	DefaultForceSleepAwakeMult     = 1
	DefaultForceSleepDurationScale = 2
	DefaultForceSleepResetCount    = 4
)

// Gate defaults.
const (
	DefaultTDMASlots       = 10
	DefaultTDMABufferMs    = 500
	DefaultEBInitMs        = 2000
	DefaultEBMinMs         = 500
	DefaultEBScale         = 2
)

// Parent selection.
const (
	DefaultPSelDurationMs = 2000
)

// Assertion NVM layout (spec section 6).
const (
	// AssertCellsPerEntry is the byte width of one assertion ring entry.
	AssertCellsPerEntry = 4

	// AssertMaxFileNum is the largest file index encodable in 15 bits.
	AssertMaxFileNum = 32767

	// AssertMaxLineNum is the largest line number encodable in 16 bits.
	AssertMaxLineNum = 65535

	// AssertUsedFlagBit marks an occupied ring entry in byte 0.
	AssertUsedFlagBit = 0x80
)

// Simulation/loopback timing used by the in-memory PHY and the scheduler's
// real-clock implementation; these do not affect wire semantics.
const (
	// DefaultCyclePeriod is the default GNODE bcast period when a
	// daemon is not otherwise configured.
	DefaultCyclePeriod = 60 * time.Second

	// DefaultSNodeAwakeSecs is the default portion of CyclePeriod a
	// GNODE tells SNODEs to stay awake for after a beacon, before
	// sleeping for the remainder (CyclePeriod - DefaultSNodeAwakeSecs).
	// Must exceed DefaultPSelDurationMs so a SNODE's Enqueue task runs
	// before its Sleep task.
	DefaultSNodeAwakeSecs = 10

	// LoopbackAirTime approximates the time-on-air of one frame over
	// the in-process loopback transport.
	LoopbackAirTime = 50 * time.Millisecond
)
