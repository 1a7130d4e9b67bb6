package seel

import (
	"github.com/seelmesh/seel/internal/assert"
	"github.com/seelmesh/seel/internal/constants"
	"github.com/seelmesh/seel/internal/frame"
	"github.com/seelmesh/seel/internal/gate"
	"github.com/seelmesh/seel/internal/logging"
	"github.com/seelmesh/seel/internal/phy"
	"github.com/seelmesh/seel/internal/ring"
	"github.com/seelmesh/seel/internal/sched"
)

// idEntry is one GNODE id-registry slot (spec section 3's GNODE ID
// Registry Entry lifecycle): a SNODE id is live as long as it has been
// seen (via ID_CHECK accept or any DATA) within MaxCycleMisses bcast
// ticks.
type idEntry struct {
	used            bool
	savedBcastCount uint8
}

// pendingID is one queued response to an ID_CHECK, drained into the
// next beacon's id-feedback region regardless of whether it is
// actually delivered.
type pendingID struct {
	requestedID byte
	assignedID  byte // 0 means a collision error the requester must re-roll
	uniqueKey   uint32
}

func pendingIDEq(a, b pendingID) bool { return a.requestedID == b.requestedID }

// OnBroadcast is called once per beacon, after it has been
// transmitted, with the encoded payload.
type OnBroadcast func(payload []byte)

// OnData is called for every accepted DATA frame the GNODE receives,
// with its payload and the RSSI the PHY reported for it.
type OnData func(payload []byte, rssi int8)

// GNODE is the gateway role: it alone originates beacons, allocates
// SNODE ids, and terminates every upward DATA/ID_CHECK flow (spec
// section 4.6).
type GNODE struct {
	*NodeBase

	scheduler *sched.Scheduler
	clock     sched.Clock
	cfg       *Config

	idContainer     []idEntry
	pendingBcastIDs *ring.Queue[pendingID]
	bcastCount      uint8
	firstBcast      bool

	OnBroadcast OnBroadcast
	OnData      OnData
}

// NewGNODE constructs a GNODE with id 0 (spec section 3: "ID 0 is
// reserved for GNODE"). radio and clock are injected so tests can
// drive the role over a phy.Loopback and a sched.FakeClock.
func NewGNODE(cfg *Config, radio phy.Radio, clock sched.Clock, obs Observer, logger *logging.Logger) *GNODE {
	codec := frame.NewCodec(cfg.DataSize())
	dup := frame.NewDupFilter(cfg.Frame.DupWindow)
	var g gate.Gate // GNODE's own beacon bypasses the gate; its ACK replies still use one.
	g = gate.NewBackoffGate(cfg.Gate.EBInitMs, cfg.Gate.EBMinMs, cfg.Gate.EBScale, nil)

	base := NewNodeBase(0, codec, radio, g, dup, obs, logger, cfg.Network.MaxNodes, 1)
	n := &GNODE{
		NodeBase:        base,
		scheduler:       sched.New(clock, sched.DefaultQueueCapacity),
		clock:           clock,
		cfg:             cfg,
		idContainer:     make([]idEntry, cfg.Network.MaxNodes),
		pendingBcastIDs: ring.New[pendingID](cfg.Network.MaxNodes),
		firstBcast:      true,
	}
	return n
}

// Scheduler exposes the cooperative scheduler driving this GNODE, for
// a daemon's main loop or a test harness's manual stepping.
func (g *GNODE) Scheduler() *sched.Scheduler { return g.scheduler }

// Start arms the recurring Bcast, Receive and Send tasks. Call once
// after construction.
func (g *GNODE) Start() {
	g.scheduler.AddTask(&sched.Task{Kind: "bcast", Run: g.runBcast}, 0)
	g.scheduler.AddTask(&sched.Task{Kind: "receive", Run: g.runReceive}, 0)
	g.scheduler.AddTask(&sched.Task{Kind: "send", Run: g.runSend}, 0)
}

// runSend transmits queued ACK replies through the gate; the GNODE has
// no parent and no data queue, so ACKs are all Send ever selects here.
func (g *GNODE) runSend() {
	g.Send(SendParams{Now: g.clock.NowMillis(), ParentSync: true})
	g.scheduler.AddTask(&sched.Task{Kind: "send", Run: g.runSend}, 0)
}

func (g *GNODE) runBcast() {
	g.ClearAckQueue()

	feedback := g.drainPendingFeedback()
	cycleSecs := uint32(g.cfg.Sync.CyclePeriod.Milliseconds() / 1000)
	awakeSecs := g.cfg.Sync.SNodeAwakeSecs
	payload := &frame.BeaconPayload{
		FirstBcast: g.firstBcast,
		BcastCount: g.bcastCount,
		TimeSyncMs: g.clock.NowMillis() + g.AirTimeMs,
		AwakeSecs:  awakeSecs,
		SleepSecs:  cycleSecs - awakeSecs,
		HopCount:   0,
		PathRSSI:   0,
		IDFeedback: feedback,
	}

	f := &frame.Frame{
		TargetID:         0,
		SenderID:         g.NodeID,
		Command:          frame.BCAST,
		SeqNum:           g.NextSeqNum(),
		OriginalSenderID: g.NodeID,
		Payload:          payload.Encode(g.Codec.DataSize),
	}

	if g.TransmitBypassingGate(f) {
		g.Observer.ObserveBeaconSent()
		if g.OnBroadcast != nil {
			g.OnBroadcast(f.Payload)
		}
	}

	g.bcastCount = uint8((uint16(g.bcastCount) + 1) % constants.BcastCountModulus)
	g.firstBcast = false

	g.scheduler.AddTask(&sched.Task{Kind: "bcast", Run: g.runBcast}, uint32(g.cfg.Sync.CyclePeriod.Milliseconds()))
}

// drainPendingFeedback pops as many pending id responses as fit in
// one beacon's id-feedback region, zero-padding the rest. Responses
// not delivered this beacon are discarded regardless (spec section
// 3's Pending ID response lifecycle).
func (g *GNODE) drainPendingFeedback() []frame.IDPair {
	maxPairs := frame.MaxIDPairs(g.Codec.DataSize)
	out := make([]frame.IDPair, 0, maxPairs)
	for len(out) < maxPairs {
		p, ok := g.pendingBcastIDs.PopFront()
		if !ok {
			break
		}
		out = append(out, frame.IDPair{Requested: p.requestedID, Assigned: p.assignedID})
	}
	g.pendingBcastIDs.Clear()
	return out
}

func (g *GNODE) runReceive() {
	for {
		f, err := g.PollFrame()
		if err != nil || f == nil {
			break
		}
		switch f.Command {
		case frame.DATA:
			g.handleData(f)
		case frame.IDCheck:
			g.handleIDCheck(f)
		case frame.ACK:
			// The GNODE has no upstream parent and never sends
			// DATA/ID_CHECK itself, so an ACK addressed to it is
			// unexpected; nothing to ingest.
		default:
			assert.Fail("gnode.go", 0)
		}
	}
	g.scheduler.AddTask(&sched.Task{Kind: "receive", Run: g.runReceive}, 0)
}

func (g *GNODE) handleData(f *frame.Frame) {
	g.refreshLiveness(f.SenderID)
	if g.OnData != nil {
		g.OnData(f.Payload, g.Radio.PacketRSSI())
	}
	g.EnqueueAck(f.SenderID)
}

func (g *GNODE) refreshLiveness(id byte) {
	if int(id) >= len(g.idContainer) {
		return
	}
	g.idContainer[id] = idEntry{used: true, savedBcastCount: g.bcastCount}
}

// idAvail reports whether id is assignable: either never claimed, or
// claimed but expired per the 7-bit wraparound tolerance of spec
// section 4.6.1.
func (g *GNODE) idAvail(id byte) bool {
	e := g.idContainer[id]
	if !e.used {
		return true
	}
	missed := (uint16(g.bcastCount) - uint16(e.savedBcastCount) + constants.BcastCountModulus) % constants.BcastCountModulus
	return int(missed) >= g.cfg.Network.MaxCycleMisses
}

func (g *GNODE) handleIDCheck(f *frame.Frame) {
	g.refreshLiveness(f.SenderID)
	icp := frame.DecodeIDCheck(f.Payload)
	g.Observer.ObserveIDCheckIssued()
	g.allocateID(icp.RequestedID, icp.UniqueKey)
	g.EnqueueAck(f.SenderID)
}

// allocateID implements the GNODE ID allocation algorithm of spec
// section 4.6.1.
func (g *GNODE) allocateID(requestedID byte, key uint32) {
	largestID := byte(g.cfg.Network.MaxNodes)
	if int(requestedID) >= len(g.idContainer) || requestedID == 0 {
		g.pendingBcastIDs.Add(pendingID{requestedID: requestedID, assignedID: 0, uniqueKey: key}, true)
		return
	}

	if existing, ok := g.pendingBcastIDs.Find(pendingID{requestedID: requestedID}, pendingIDEq); ok {
		if existing.uniqueKey == key {
			// Duplicate join from the same requester; ignore.
			return
		}
		g.pendingBcastIDs.Remove(pendingID{requestedID: requestedID}, pendingIDEq)
		g.pendingBcastIDs.Add(pendingID{requestedID: requestedID, assignedID: 0, uniqueKey: key}, true)
		g.idContainer[requestedID].used = false
		g.Observer.ObserveIDCheckCollided()
		return
	}

	if g.idAvail(requestedID) {
		g.pendingBcastIDs.Add(pendingID{requestedID: requestedID, assignedID: requestedID, uniqueKey: key}, true)
		g.idContainer[requestedID] = idEntry{used: true, savedBcastCount: g.bcastCount}
		g.Observer.ObserveIDCheckAccepted()
		return
	}

	for i := int(largestID) - 1; i >= 1; i-- {
		if g.idAvail(byte(i)) {
			g.pendingBcastIDs.Add(pendingID{requestedID: requestedID, assignedID: byte(i), uniqueKey: key}, true)
			g.idContainer[i] = idEntry{used: true, savedBcastCount: g.bcastCount}
			g.Observer.ObserveIDCheckAccepted()
			return
		}
	}
	g.pendingBcastIDs.Add(pendingID{requestedID: requestedID, assignedID: 0, uniqueKey: key}, true)
	g.Observer.ObserveIDCheckCollided()
}
