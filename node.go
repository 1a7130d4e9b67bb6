package seel

import (
	"github.com/seelmesh/seel/internal/constants"
	"github.com/seelmesh/seel/internal/frame"
	"github.com/seelmesh/seel/internal/gate"
	"github.com/seelmesh/seel/internal/logging"
	"github.com/seelmesh/seel/internal/phy"
	"github.com/seelmesh/seel/internal/ring"
)

// NodeBase holds the state and send-selection logic spec section 4.5
// attributes to both roles: the outgoing beacon rebroadcast, the ACK
// queue and its aggregation into one frame, the upstream data queue,
// per-sender sequence numbering, and ACK ingestion against
// outstanding sends. GNODE and SNODE each embed a NodeBase and add
// their own role-specific state and tasks on top of it.
type NodeBase struct {
	NodeID byte
	Codec  *frame.Codec
	Radio  phy.Radio
	Gate   gate.Gate
	Dup    *frame.DupFilter

	Observer Observer
	Logger   *logging.Logger

	// PresendHook, if set, may mutate a DATA frame's payload
	// immediately before transmit (spec section 4.5).
	PresendHook func(payload []byte)

	// AirTimeMs approximates one frame's time-on-air, added to a
	// rebroadcast beacon's time_sync_ms so receivers rebase their
	// clock to the moment the full frame actually lands, not the
	// moment transmission started.
	AirTimeMs uint32

	nextSeq byte

	ackQueue  *ring.Queue[byte]
	dataQueue *ring.Queue[*frame.Frame]

	beaconMsg       *frame.Frame
	beaconHopCount  byte
	beaconPathRSSI  int8
	beaconAvailable bool
	beaconSent      bool

	unackMsgs           int
	failedTransmissions uint64
	crcFails            int
}

// NewNodeBase returns a NodeBase for nodeID. ackQueueCap and
// dataQueueCap size the two ring queues a node needs beyond whatever
// the scheduler itself uses.
func NewNodeBase(nodeID byte, codec *frame.Codec, radio phy.Radio, g gate.Gate, dup *frame.DupFilter, obs Observer, logger *logging.Logger, ackQueueCap, dataQueueCap int) *NodeBase {
	if obs == nil {
		obs = NoOpObserver{}
	}
	return &NodeBase{
		NodeID:    nodeID,
		Codec:     codec,
		Radio:     radio,
		Gate:      g,
		Dup:       dup,
		Observer:  obs,
		Logger:    logger,
		AirTimeMs: constants.DefaultTransmissionUpperBoundMs,
		ackQueue:  ring.New[byte](ackQueueCap),
		dataQueue: ring.New[*frame.Frame](dataQueueCap),
	}
}

// NextSeqNum returns this node's next per-sender sequence number.
// Every frame this node originates (beacon excluded — a rebroadcast
// reuses the inbound beacon's seq_num) consumes one.
func (n *NodeBase) NextSeqNum() byte {
	n.nextSeq++
	return n.nextSeq
}

// ClearAckQueue empties the ack queue alone, leaving every other
// cycle-scoped field untouched. GNODE's bcast task uses this directly
// since it does not go through the full Wake reset a SNODE does.
func (n *NodeBase) ClearAckQueue() {
	n.ackQueue.Clear()
}

// ResetCycle clears the per-cycle state Wake zeroes: the ack queue,
// the beacon-rebroadcast flags, the unacked-message count, the CRC
// failure count, and the gate's retry delay.
func (n *NodeBase) ResetCycle() {
	n.ackQueue.Clear()
	n.beaconAvailable = false
	n.beaconSent = false
	n.unackMsgs = 0
	n.crcFails = 0
	if n.Gate != nil {
		n.Gate.ResetDelay()
	}
}

// SetBeacon arms the beacon-rebroadcast slot for this cycle. hopCount
// and pathRSSI are the values this node will claim in its own
// rebroadcast (one hop and one RSSI sample further from the GNODE
// than the accepted beacon carried).
func (n *NodeBase) SetBeacon(accepted *frame.Frame, hopCount byte, pathRSSI int8) {
	n.beaconMsg = accepted.Clone()
	n.beaconHopCount = hopCount
	n.beaconPathRSSI = pathRSSI
	n.beaconAvailable = true
}

// BeaconPending reports whether a beacon is armed and not yet sent
// this cycle.
func (n *NodeBase) BeaconPending() bool {
	return n.beaconAvailable && !n.beaconSent
}

// BeaconSent reports whether this cycle's beacon rebroadcast already
// went out.
func (n *NodeBase) BeaconSent() bool {
	return n.beaconSent
}

// EnqueueAck records childID as owed an ACK, unless it is already
// queued. Returns false only if the queue is full and wrap-free.
func (n *NodeBase) EnqueueAck(childID byte) bool {
	if _, ok := n.ackQueue.Find(childID, func(a, b byte) bool { return a == b }); ok {
		return true
	}
	return n.ackQueue.Add(childID, false)
}

// EnqueueData pushes f onto the upstream data queue. Returns false if
// the queue is full; the caller (User task, forward handling, or the
// ID_CHECK enqueue path) is responsible for counting the drop.
func (n *NodeBase) EnqueueData(f *frame.Frame) bool {
	return n.dataQueue.Add(f, false)
}

// DataQueueLen reports how many frames are queued for upstream send.
func (n *NodeBase) DataQueueLen() int {
	return n.dataQueue.Size()
}

// UnackMsgs reports how many sent DATA/ID_CHECK frames await an ACK.
func (n *NodeBase) UnackMsgs() int {
	return n.unackMsgs
}

// FailedTransmissions reports the lifetime count of PHY send failures
// on outbound DATA/ID_CHECK frames.
func (n *NodeBase) FailedTransmissions() uint64 {
	return n.failedTransmissions
}

// CRCFails reports this cycle's count of frames discarded for a
// failed CRC.
func (n *NodeBase) CRCFails() int {
	return n.crcFails
}

// SendParams carries the per-call context the generic send-selection
// task needs from whichever role is driving it: GNODE never has a
// parent, so it always passes ParentSync true with an always-empty
// data queue; SNODE passes its live parent state.
type SendParams struct {
	Now        uint32
	ParentID   byte
	ParentSync bool
	IDVerified bool
}

// Send runs the send task's body once: if the gate permits and there
// is pending work, it selects and transmits exactly one frame under
// the fixed priority beacon > ACK > data (spec section 4.5). It
// reports whether a frame went out.
func (n *NodeBase) Send(p SendParams) bool {
	if n.Gate != nil && !n.Gate.Allowed(p.Now) {
		return false
	}
	if !n.hasPendingWork(p.ParentSync) {
		return false
	}

	switch {
	case n.BeaconPending():
		return n.sendBeacon(p.Now)
	case !n.ackQueue.Empty():
		return n.sendAck(p.Now)
	case p.ParentSync && !n.dataQueue.Empty():
		return n.sendData(p)
	}
	return false
}

func (n *NodeBase) hasPendingWork(parentSync bool) bool {
	if n.BeaconPending() {
		return true
	}
	if !n.ackQueue.Empty() {
		return true
	}
	if parentSync && !n.dataQueue.Empty() {
		return true
	}
	return false
}

func (n *NodeBase) sendBeacon(now uint32) bool {
	bp := frame.DecodeBeacon(n.beaconMsg.Payload)
	bp.HopCount = n.beaconHopCount
	bp.PathRSSI = n.beaconPathRSSI
	bp.TimeSyncMs = now + n.AirTimeMs

	out := &frame.Frame{
		TargetID:         0,
		SenderID:         n.NodeID,
		Command:          frame.BCAST,
		SeqNum:           n.beaconMsg.SeqNum,
		OriginalSenderID: n.NodeID,
		Payload:          bp.Encode(n.Codec.DataSize),
	}
	if !n.transmit(out, now) {
		return false
	}
	n.beaconSent = true
	n.Observer.ObserveBeaconSent()
	return true
}

func (n *NodeBase) sendAck(now uint32) bool {
	ids := make([]byte, 0, n.ackQueue.Size())
	n.ackQueue.ForEach(func(id byte) { ids = append(ids, id) })
	if len(ids) > n.Codec.DataSize {
		ids = ids[:n.Codec.DataSize]
	}
	ap := &frame.AckPayload{SenderIDs: ids}

	out := &frame.Frame{
		TargetID:         0,
		SenderID:         n.NodeID,
		Command:          frame.ACK,
		SeqNum:           n.NextSeqNum(),
		OriginalSenderID: n.NodeID,
		Payload:          ap.Encode(n.Codec.DataSize),
	}
	return n.transmit(out, now)
}

func (n *NodeBase) sendData(p SendParams) bool {
	front := n.dataQueue.Front()
	if front == nil {
		return false
	}
	f := *front

	if f.Command == frame.IDCheck {
		ic := frame.DecodeIDCheck(f.Payload)
		if ic.RequestedID == n.NodeID && p.IDVerified {
			n.dataQueue.PopFront()
			return false
		}
	}

	out := f.Clone()
	out.TargetID = p.ParentID
	out.SenderID = n.NodeID
	out.SeqNum = n.NextSeqNum()
	if n.PresendHook != nil {
		n.PresendHook(out.Payload)
	}

	if !n.transmit(out, p.Now) {
		n.failedTransmissions++
		return false
	}
	n.unackMsgs++
	if n.Gate != nil {
		n.Gate.RecordDataSent()
	}
	n.Observer.ObserveDataSent()
	return true
}

func (n *NodeBase) transmit(f *frame.Frame, now uint32) bool {
	data := n.Codec.Marshal(f)
	if err := n.Radio.Send(data); err != nil {
		if n.Logger != nil {
			n.Logger.Warn("phy send failed", "err", err)
		}
		return false
	}
	if n.Gate != nil {
		n.Gate.OnSend(now)
	}
	return true
}

// TransmitBypassingGate sends f without consulting the transmit gate
// at all. Only the GNODE's own originating beacon uses this: spec
// section 4.6 is explicit that "GNODE beacons bypass the gate."
func (n *NodeBase) TransmitBypassingGate(f *frame.Frame) bool {
	data := n.Codec.Marshal(f)
	if err := n.Radio.Send(data); err != nil {
		if n.Logger != nil {
			n.Logger.Warn("phy send failed", "err", err)
		}
		return false
	}
	return true
}

// IngestAck processes a received ACK frame's payload. If this node
// has an outstanding send and appears among the acknowledged ids, it
// pops the head of the data queue, clears the backoff window, and
// reports true so the caller can latch its own "acked this cycle"
// flag.
func (n *NodeBase) IngestAck(payload []byte) bool {
	if n.unackMsgs == 0 {
		return false
	}
	ap := frame.DecodeAck(payload)
	if !ap.Contains(n.NodeID) {
		return false
	}
	n.dataQueue.PopFront()
	n.unackMsgs = 0
	if n.Gate != nil {
		n.Gate.RecordAck()
	}
	n.Observer.ObserveDataAcked()
	return true
}

// PollFrame polls the radio once. It returns (nil, nil) when nothing
// is pending, when a packet fails CRC, or when it is recognized as a
// duplicate of one already handled — in every one of those cases the
// frame is discarded and the caller simply has nothing to act on this
// poll, matching spec section 7's "discard, continue" error kinds.
func (n *NodeBase) PollFrame() (*frame.Frame, error) {
	length, crcOK := n.Radio.ParsePacket()
	if length == 0 {
		return nil, nil
	}
	if !crcOK {
		n.crcFails++
		n.Observer.ObserveCRCFailure()
		return nil, nil
	}

	want := n.Codec.FrameSize()
	if length != want {
		n.crcFails++
		return nil, nil
	}

	data, err := phy.ReadFrame(n.Radio, want)
	if err != nil {
		return nil, err
	}
	f, err := n.Codec.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if n.Dup != nil && n.Dup.Check(f) {
		n.Observer.ObserveDuplicate()
		return nil, nil
	}
	return f, nil
}
