package gate

// TDMAGate assigns each node a fixed slot within a repeating cycle
// divided into equal slot_wait windows. A transmission is permitted
// only while the clock sits inside this node's own slot, and only
// during the leading buffer_ms of that slot so a full frame's
// time-on-air always fits before the slot boundary.
type TDMAGate struct {
	Slots      int
	SlotWaitMs uint32 // transmission_upper_bound_ms + buffer_ms
	BufferMs   uint32
	SingleSend bool
	MySlot     int

	prevWindow   uint32
	haveSentPrev bool
}

// NewTDMAGate returns a gate for the given slot geometry. mySlot is
// this node's assigned slot index in [0, slots).
func NewTDMAGate(slots int, slotWaitMs, bufferMs uint32, singleSend bool, mySlot int) *TDMAGate {
	return &TDMAGate{
		Slots:      slots,
		SlotWaitMs: slotWaitMs,
		BufferMs:   bufferMs,
		SingleSend: singleSend,
		MySlot:     mySlot,
	}
}

func (g *TDMAGate) cycleMs() uint32 {
	return g.SlotWaitMs * uint32(g.Slots)
}

// currentSlot returns the slot index now falls into.
func (g *TDMAGate) currentSlot(now uint32) int {
	return int((now % g.cycleMs()) / g.SlotWaitMs)
}

// slotWindow returns the absolute, ever-increasing index of the slot
// instance now falls into, distinct from currentSlot which repeats
// every cycle. single_send tracks this to tell "already sent in this
// occurrence of my slot" from "already sent in a previous lap".
func (g *TDMAGate) slotWindow(now uint32) uint32 {
	return now / g.SlotWaitMs
}

func (g *TDMAGate) Allowed(now uint32) bool {
	slot := g.currentSlot(now)
	if slot != g.MySlot {
		return false
	}
	if (now % g.SlotWaitMs) >= g.BufferMs {
		return false
	}
	if g.SingleSend && g.haveSentPrev && g.slotWindow(now) == g.prevWindow {
		return false
	}
	return true
}

func (g *TDMAGate) OnSend(now uint32) {
	if g.SingleSend {
		g.prevWindow = g.slotWindow(now)
		g.haveSentPrev = true
	}
}

func (g *TDMAGate) RecordDataSent() {}
func (g *TDMAGate) RecordAck()      {}
func (g *TDMAGate) ResetDelay()     {}
