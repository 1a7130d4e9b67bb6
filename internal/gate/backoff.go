package gate

import "math/rand"

// ebCeiling bounds how far the exponential backoff window is allowed
// to grow; without it a long run of unacknowledged sends could push
// the computed upper bound past what a uint32 millisecond delay can
// usefully represent.
const ebCeiling = 1 << 24

// BackoffGate implements exponential backoff: a node may send again
// once send_delay_ms have elapsed since its last send, and send_delay
// widens geometrically with the number of outstanding unacknowledged
// DATA frames, resetting whenever one is acknowledged.
type BackoffGate struct {
	InitMs uint32
	MinMs  uint32
	Scale  uint32
	Rand   *rand.Rand

	sendDelayMs uint32
	lastSendMs  uint32
	haveSent    bool
	unackMsgs   int
}

// NewBackoffGate returns a gate with the given backoff parameters.
func NewBackoffGate(initMs, minMs, scale uint32, rng *rand.Rand) *BackoffGate {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &BackoffGate{InitMs: initMs, MinMs: minMs, Scale: scale, Rand: rng}
}

func (g *BackoffGate) Allowed(now uint32) bool {
	if !g.haveSent {
		return true
	}
	return int32(now-g.lastSendMs) > int32(g.sendDelayMs)
}

func (g *BackoffGate) OnSend(now uint32) {
	g.lastSendMs = now
	g.haveSent = true
	g.sendDelayMs = g.nextDelay()
}

func (g *BackoffGate) RecordDataSent() { g.unackMsgs++ }

func (g *BackoffGate) RecordAck() {
	g.unackMsgs = 0
	g.sendDelayMs = 0
}

// ResetDelay zeroes the retry delay alone, leaving unackMsgs and
// lastSendMs untouched; used by the cycle-start Wake reset, which
// zeroes send_delay independently of ACK bookkeeping.
func (g *BackoffGate) ResetDelay() {
	g.sendDelayMs = 0
}

// nextDelay returns a uniform random delay in [MinMs, upperBound)
// where upperBound = InitMs * Scale^unackMsgs, clamped to ebCeiling.
func (g *BackoffGate) nextDelay() uint32 {
	upper := uint64(g.InitMs)
	if upper == 0 {
		upper = 1
	}
	for i := 0; i < g.unackMsgs; i++ {
		upper *= uint64(g.Scale)
		if upper > ebCeiling {
			upper = ebCeiling
			break
		}
	}
	if upper <= uint64(g.MinMs) {
		return g.MinMs
	}
	span := upper - uint64(g.MinMs)
	return g.MinMs + uint32(g.Rand.Int63n(int64(span)))
}
