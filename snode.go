package seel

import (
	"math/rand"

	"github.com/seelmesh/seel/internal/assert"
	"github.com/seelmesh/seel/internal/constants"
	"github.com/seelmesh/seel/internal/frame"
	"github.com/seelmesh/seel/internal/gate"
	"github.com/seelmesh/seel/internal/logging"
	"github.com/seelmesh/seel/internal/phy"
	"github.com/seelmesh/seel/internal/powerdown"
	"github.com/seelmesh/seel/internal/ring"
	"github.com/seelmesh/seel/internal/sched"
)

const (
	noHopCount uint8 = 255 // "hop_count = infinity" sentinel, beaten by any real beacon
	noPathRSSI int8  = -128
)

// CBInfo is the snapshot of cycle counters the host callbacks see: the
// previous cycle's results at Sleep, and the running cycle's tally
// while User/Forward handlers are still deciding what to send.
type CBInfo struct {
	BcastCount   uint8
	MissedBcasts int
	DataMsgsSent int
	UnackMsgs    int
	CRCFails     int
	Acked        bool
}

// OnLoad is the host's application-data source: given a scratch buffer
// sized to the frame's full payload (DataSize), it fills buf and returns whether
// a DATA frame should actually be sent this tick.
type OnLoad func(buf []byte, cb CBInfo) bool

// OnForward is consulted for every DATA frame this node forwards
// upstream on behalf of a child; returning false suppresses the
// forward (and its ACK) without an error.
type OnForward func(payload []byte, cb CBInfo) bool

// SNODE is the relay/leaf role: it joins the tree by rebroadcasting
// exactly one beacon per cycle, forwards DATA/ID_CHECK from its
// children, and sleeps between cycles guided by a learned estimate of
// its own watchdog tick length (spec section 4.7).
type SNODE struct {
	*NodeBase

	scheduler *sched.Scheduler
	clock     sched.Clock
	cfg       *Config
	sleeper   powerdown.Sleeper
	rand      *rand.Rand

	ParentID   byte
	parentSync bool
	hopCount   uint8
	pathRSSI   int8

	beaconReceived bool
	acked          bool
	lastParentID   byte
	bcastSetupDone bool

	bcastCountSeen     uint8
	haveSeenBcastCount bool

	blacklist *ring.Queue[byte]

	wtbMs        uint32
	missedBcasts int

	idVerified            bool
	uniqueKey             uint32
	seenFirstSystemBeacon bool

	systemSync bool
	wdAdjusted bool
	estimateMs uint32
	offsetMs   int32

	awakeSecs     uint32
	sleepSecs     uint32
	prevAwakeSecs uint32
	prevSleepSecs uint32

	dataMsgsSent int
	cbInfo       CBInfo

	OnLoad    OnLoad
	OnForward OnForward
}

// NewSNODE constructs a SNODE with a random provisional id, awaiting
// ID verification from its first GNODE. tdmaSlot is only consulted
// when cfg.Gate.Mode is GateTDMA.
func NewSNODE(cfg *Config, radio phy.Radio, clock sched.Clock, tdmaSlot int, sleeper powerdown.Sleeper, obs Observer, logger *logging.Logger, rng *rand.Rand) *SNODE {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	codec := frame.NewCodec(cfg.DataSize())
	dup := frame.NewDupFilter(cfg.Frame.DupWindow)

	var g gate.Gate
	switch cfg.Gate.Mode {
	case GateTDMA:
		slotWaitMs := cfg.Sync.TransmissionUpperBoundMs + cfg.Gate.TDMABufferMs
		g = gate.NewTDMAGate(cfg.Gate.TDMASlots, slotWaitMs, cfg.Gate.TDMABufferMs, cfg.Gate.TDMASingleSend, tdmaSlot)
	default:
		g = gate.NewBackoffGate(cfg.Gate.EBInitMs, cfg.Gate.EBMinMs, cfg.Gate.EBScale, rng)
	}

	initialID := byte(1 + rng.Intn(cfg.Network.MaxNodes-1))
	base := NewNodeBase(initialID, codec, radio, g, dup, obs, logger, cfg.Network.MaxNodes, cfg.Network.MaxNodes)

	return &SNODE{
		NodeBase:   base,
		scheduler:  sched.New(clock, sched.DefaultQueueCapacity),
		clock:      clock,
		cfg:        cfg,
		sleeper:    sleeper,
		rand:       rng,
		blacklist:  ring.New[byte](cfg.Network.MaxNodes),
		uniqueKey:  rng.Uint32(),
		estimateMs: cfg.Sync.InitialWatchdogEstimateMs,
		hopCount:   noHopCount,
		pathRSSI:   noPathRSSI,
	}
}

// Scheduler exposes the cooperative scheduler driving this SNODE.
func (s *SNODE) Scheduler() *sched.Scheduler { return s.scheduler }

// IsParentSynced reports whether this SNODE has accepted a parent this
// cycle.
func (s *SNODE) IsParentSynced() bool { return s.parentSync }

// IsIDVerified reports whether the GNODE has confirmed this SNODE's
// current node id.
func (s *SNODE) IsIDVerified() bool { return s.idVerified }

// Start arms the initial Wake task. Call once after construction.
func (s *SNODE) Start() {
	s.scheduler.AddTask(&sched.Task{Kind: "wake", Run: s.runWake}, 0)
}

func (s *SNODE) runWake() {
	s.wtbMs = s.clock.NowMillis()
	s.NodeBase.ResetCycle()
	s.dataMsgsSent = 0
	s.beaconReceived = false
	s.parentSync = false
	s.bcastSetupDone = false
	s.hopCount = noHopCount
	s.pathRSSI = noPathRSSI
	s.scheduler.SetUserTaskEnable(false)

	s.scheduler.AddTask(&sched.Task{Kind: "receive", Run: s.runReceive}, 0)

	if s.wdAdjusted && s.missedBcasts < s.cfg.ForceSleep.ResetCount {
		s.scheduler.AddTask(&sched.Task{Kind: "force_sleep", Run: s.runForceSleep}, s.forceSleepDelayMs())
	} else {
		s.wdAdjusted = false
		s.estimateMs = s.cfg.Sync.InitialWatchdogEstimateMs
		s.offsetMs = 0
	}
}

// forceSleepDelayMs computes how long this SNODE may stay awake
// without hearing a beacon before the Force-Sleep escape fires,
// widening geometrically with consecutive misses.
func (s *SNODE) forceSleepDelayMs() uint32 {
	awakeMs := uint64(s.awakeSecs) * constants.SecsToMillis
	scale := powN(uint64(s.cfg.ForceSleep.DurationScale), s.missedBcasts+1)
	return uint32(uint64(s.cfg.ForceSleep.AwakeMult) * awakeMs * scale)
}

func powN(base uint64, exp int) uint64 {
	result := uint64(1)
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func (s *SNODE) runReceive() {
	for {
		f, err := s.PollFrame()
		if err != nil || f == nil {
			break
		}
		linkRSSI := s.Radio.PacketRSSI()
		switch f.Command {
		case frame.BCAST:
			if !s.BeaconSent() {
				s.handleBeacon(f, linkRSSI)
			}
		case frame.ACK:
			if s.UnackMsgs() > 0 && s.IngestAck(f.Payload) {
				s.acked = true
			}
		case frame.DATA, frame.IDCheck:
			if f.TargetID == s.NodeID {
				s.handleForward(f)
			}
		default:
			assert.Fail("snode.go", 0)
		}
	}
	s.scheduler.AddTask(&sched.Task{Kind: "receive", Run: s.runReceive}, 0)
}

func (s *SNODE) inBlacklist(id byte) bool {
	_, ok := s.blacklist.Find(id, func(a, b byte) bool { return a == b })
	return ok
}

// selectionMetric computes the candidate-comparison value for the
// configured parent-selection mode (spec section 4.7.1).
func (s *SNODE) selectionMetric(bp *frame.BeaconPayload, linkRSSI int8) int8 {
	switch s.cfg.ParentSelect.Mode {
	case SelPathRSSI:
		if linkRSSI < bp.PathRSSI {
			return linkRSSI
		}
		return bp.PathRSSI
	default: // SelImmediateRSSI and SelFirstBroadcast both key on link RSSI
		return linkRSSI
	}
}

func (s *SNODE) acceptsCandidate(metric int8, incomingHop uint8) bool {
	if !s.parentSync {
		return true
	}
	if s.cfg.ParentSelect.Mode == SelFirstBroadcast {
		return false
	}
	if metric > s.pathRSSI {
		return true
	}
	return metric == s.pathRSSI && incomingHop < s.hopCount
}

func (s *SNODE) handleBeacon(f *frame.Frame, linkRSSI int8) {
	bp := frame.DecodeBeacon(f.Payload)

	if !s.acked && s.haveSeenBcastCount && bp.BcastCount != s.bcastCountSeen {
		s.blacklist.Clear()
	}
	s.bcastCountSeen = bp.BcastCount
	s.haveSeenBcastCount = true
	s.cbInfo.BcastCount = bp.BcastCount

	if s.inBlacklist(f.SenderID) {
		if !s.beaconReceived {
			s.bcastSetup(bp)
		}
		return
	}

	incomingHop := bp.HopCount + 1
	metric := s.selectionMetric(bp, linkRSSI)
	if !s.acceptsCandidate(metric, incomingHop) {
		return
	}
	firstThisCycle := !s.parentSync

	s.acked = false
	s.ParentID = f.SenderID
	s.pathRSSI = metric
	s.hopCount = incomingHop
	s.SetBeacon(f, incomingHop, metric)
	s.beaconReceived = true
	s.parentSync = true

	if !firstThisCycle {
		return
	}

	s.cbInfo.MissedBcasts = s.missedBcasts
	missedBeforeReset := s.missedBcasts
	s.missedBcasts = 0

	if !s.bcastSetupDone {
		s.bcastSetup(bp)
	}

	if s.systemSync && missedBeforeReset == 0 && s.lastParentID == s.ParentID {
		s.runDriftLearner()
	}
	s.systemSync = true

	if !s.idVerified && s.seenFirstSystemBeacon {
		s.verifyID(bp)
	}
	s.seenFirstSystemBeacon = true
	s.lastParentID = s.ParentID

	enqueueDelay := uint32(0)
	if s.cfg.ParentSelect.Mode != SelFirstBroadcast {
		enqueueDelay = s.cfg.ParentSelect.DurationMs
	}
	s.scheduler.AddTask(&sched.Task{Kind: "enqueue", Run: s.runEnqueue}, enqueueDelay)
	s.scheduler.AddTask(&sched.Task{Kind: "send", Run: s.runSend}, 0)
}

// bcastSetup rebases the local clock onto the accepted beacon's
// time_sync_ms and arms this cycle's Sleep task (spec section 4.7.3).
func (s *SNODE) bcastSetup(bp *frame.BeaconPayload) {
	now := s.clock.NowMillis()
	s.wtbMs = now - s.wtbMs
	newMs := bp.TimeSyncMs + s.AirTimeMs
	s.scheduler.AdjustTime(newMs)
	s.systemSync = s.systemSync && !bp.FirstBcast

	s.prevAwakeSecs = s.awakeSecs
	s.prevSleepSecs = s.sleepSecs
	s.awakeSecs = bp.AwakeSecs
	s.sleepSecs = bp.SleepSecs

	s.scheduler.AddTask(&sched.Task{Kind: "sleep", Run: s.runSleep}, bp.AwakeSecs*constants.SecsToMillis)
	s.bcastSetupDone = true
}

// runDriftLearner updates the per-tick watchdog estimate from how far
// off the wake-to-beacon measurement landed from the predicted sleep
// duration (spec section 4.7.4).
func (s *SNODE) runDriftLearner() {
	prevSleepMs := int64(s.prevSleepSecs) * constants.SecsToMillis
	cycleMs := int64(s.prevAwakeSecs+s.prevSleepSecs) * constants.SecsToMillis
	if cycleMs == 0 || s.estimateMs == 0 {
		return
	}
	wtbTrim := int64(s.wtbMs) % cycleMs

	prevSleepCounts := int64(0)
	if num := prevSleepMs - int64(s.cfg.Sync.EarlyWakeMs) - int64(s.offsetMs); num > 0 {
		prevSleepCounts = num / int64(s.estimateMs)
	}

	actualSleepMs := prevSleepMs - wtbTrim

	switch {
	case wtbTrim > prevSleepMs:
		newOffset := cycleMs - wtbTrim
		offsetCeiling := prevSleepMs - int64(s.cfg.Sync.EarlyWakeMs)
		if offsetCeiling < newOffset {
			newOffset = offsetCeiling
		}
		s.offsetMs = int32(newOffset)
		actualSleepMs = prevSleepMs + int64(s.offsetMs)
	case s.offsetMs > 0 && wtbTrim > int64(s.offsetMs):
		s.offsetMs = 0
	}

	if prevSleepCounts > 0 {
		s.estimateMs = uint32(actualSleepMs / prevSleepCounts)
	}
	s.wdAdjusted = true
	s.Observer.ObserveEstimator(s.estimateMs, s.offsetMs)
}

// verifyID walks the beacon's id-feedback region looking for an entry
// addressed to this node's current provisional id (spec section
// 4.7.5).
func (s *SNODE) verifyID(bp *frame.BeaconPayload) {
	for _, pair := range bp.IDFeedback {
		if pair.Requested != s.NodeID {
			continue
		}
		if pair.Assigned == 0 {
			s.NodeID = byte(1 + s.rand.Intn(s.cfg.Network.MaxNodes-1))
			s.uniqueKey = s.rand.Uint32()
			s.idVerified = false
		} else {
			s.NodeID = pair.Assigned
			s.idVerified = true
		}
		return
	}
}

// handleForward rewrites a DATA/ID_CHECK frame addressed to this node
// for the next hop upstream and queues it, acking the immediate child
// only if the push onto the data queue actually succeeded (spec
// section 4.7.2).
func (s *SNODE) handleForward(f *frame.Frame) {
	out := f.Clone()
	out.TargetID = s.ParentID
	out.SenderID = s.NodeID

	push := true
	if f.Command == frame.DATA && s.OnForward != nil {
		push = s.OnForward(out.Payload, s.cbInfo)
	}
	if !push {
		return
	}
	if s.EnqueueData(out) {
		s.EnqueueAck(f.SenderID)
	} else {
		s.Observer.ObserveDataDropped()
	}
}

func (s *SNODE) runEnqueue() {
	if !s.BeaconSent() {
		s.scheduler.AddTask(&sched.Task{Kind: "enqueue", Run: s.runEnqueue}, 0)
		return
	}
	if s.idVerified {
		s.scheduler.SetUserTaskEnable(true)
		s.scheduler.AddTask(&sched.Task{Kind: "user", Run: s.runUser, User: true}, 0)
		return
	}
	s.enqueueIDCheck()
}

func (s *SNODE) enqueueIDCheck() {
	icp := &frame.IDCheckPayload{RequestedID: s.NodeID, UniqueKey: s.uniqueKey}
	f := &frame.Frame{
		Command:          frame.IDCheck,
		OriginalSenderID: s.NodeID,
		Payload:          icp.Encode(s.Codec.DataSize),
	}
	if !s.EnqueueData(f) {
		s.Observer.ObserveDataDropped()
	}
}

func (s *SNODE) runUser() {
	if s.beaconReceived && s.OnLoad != nil {
		buf := make([]byte, s.Codec.DataSize)
		if s.OnLoad(buf, s.cbInfo) {
			f := &frame.Frame{
				Command:          frame.DATA,
				OriginalSenderID: s.NodeID,
				Payload:          buf,
			}
			if s.EnqueueData(f) {
				s.dataMsgsSent++
			} else {
				s.Observer.ObserveDataDropped()
			}
		}
	}
	s.scheduler.AddTask(&sched.Task{Kind: "user", Run: s.runUser, User: true}, 0)
}

func (s *SNODE) runSend() {
	s.Send(SendParams{
		Now:        s.clock.NowMillis(),
		ParentID:   s.ParentID,
		ParentSync: s.parentSync,
		IDVerified: s.idVerified,
	})
	s.scheduler.AddTask(&sched.Task{Kind: "send", Run: s.runSend}, 0)
}

func (s *SNODE) runForceSleep() {
	if s.beaconReceived {
		return
	}
	s.missedBcasts++
	s.blacklist.Clear()
	s.scheduler.ClearTasks()
	s.scheduler.AddTask(&sched.Task{Kind: "sleep", Run: s.runSleep}, 0)
}

func (s *SNODE) runSleep() {
	s.cbInfo.DataMsgsSent = s.dataMsgsSent
	s.cbInfo.UnackMsgs = s.UnackMsgs()
	s.cbInfo.CRCFails = s.CRCFails()
	s.cbInfo.Acked = s.acked

	if s.parentSync && !s.acked && s.dataMsgsSent > 0 {
		s.blacklist.Add(s.ParentID, true)
		s.acked = true
	}

	ticks := s.sleepTicks()

	s.scheduler.ClearTasks()
	s.scheduler.AddTask(&sched.Task{Kind: "wake", Run: s.runWake}, 0)

	s.Radio.Sleep()
	s.sleeper.PowerDown(ticks)
}

// sleepTicks computes how many watchdog ticks to sleep for, per the
// baseline/force-sleep-penalty arithmetic of spec section 4.7.4.
func (s *SNODE) sleepTicks() int {
	if s.estimateMs == 0 {
		return 0
	}
	sleepMs := int64(s.sleepSecs) * constants.SecsToMillis
	numerator := sleepMs - int64(s.cfg.Sync.EarlyWakeMs) - int64(s.offsetMs)

	if s.missedBcasts > 0 {
		awakeMs := int64(s.awakeSecs) * constants.SecsToMillis
		scale := powN(uint64(s.cfg.ForceSleep.DurationScale), s.missedBcasts)
		factor := int64(s.cfg.ForceSleep.AwakeMult)*int64(scale) - 1
		if factor < 0 {
			factor = 0
		}
		numerator -= factor * awakeMs
	}
	if numerator <= 0 {
		return 0
	}
	return int(numerator / int64(s.estimateMs))
}
