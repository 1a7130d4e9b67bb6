package seel

import (
	"sync"

	"github.com/seelmesh/seel/internal/phy"
	"github.com/seelmesh/seel/internal/powerdown"
	"github.com/seelmesh/seel/internal/sched"
)

// RecordingObserver implements Observer by counting every event,
// for tests that want to assert on protocol behavior without
// wiring up a full Metrics/PrometheusCollector pair.
type RecordingObserver struct {
	mu sync.Mutex

	beaconsSent          int
	beaconsReceived      int
	dataSent             int
	dataAcked            int
	dataDropped          int
	idChecksIssued       int
	idChecksAccepted     int
	idChecksCollided     int
	crcFailures          int
	duplicatesSuppressed int

	lastEstimateMs uint32
	lastOffsetMs   int32
}

// NewRecordingObserver returns a zeroed RecordingObserver.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{}
}

func (o *RecordingObserver) ObserveBeaconSent() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.beaconsSent++
}

func (o *RecordingObserver) ObserveBeaconReceived() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.beaconsReceived++
}

func (o *RecordingObserver) ObserveDataSent() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dataSent++
}

func (o *RecordingObserver) ObserveDataAcked() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dataAcked++
}

func (o *RecordingObserver) ObserveDataDropped() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dataDropped++
}

func (o *RecordingObserver) ObserveIDCheckIssued() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.idChecksIssued++
}

func (o *RecordingObserver) ObserveIDCheckAccepted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.idChecksAccepted++
}

func (o *RecordingObserver) ObserveIDCheckCollided() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.idChecksCollided++
}

func (o *RecordingObserver) ObserveCRCFailure() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.crcFailures++
}

func (o *RecordingObserver) ObserveDuplicate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.duplicatesSuppressed++
}

func (o *RecordingObserver) ObserveEstimator(estimateMs uint32, offsetMs int32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastEstimateMs = estimateMs
	o.lastOffsetMs = offsetMs
}

// Counts is a point-in-time copy of every counter this observer has
// recorded, convenient for a single require.Equal in a test.
type Counts struct {
	BeaconsSent          int
	BeaconsReceived      int
	DataSent             int
	DataAcked            int
	DataDropped          int
	IDChecksIssued       int
	IDChecksAccepted     int
	IDChecksCollided     int
	CRCFailures          int
	DuplicatesSuppressed int
	LastEstimateMs       uint32
	LastOffsetMs         int32
}

// Counts returns a snapshot of every counter.
func (o *RecordingObserver) Counts() Counts {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Counts{
		BeaconsSent:          o.beaconsSent,
		BeaconsReceived:      o.beaconsReceived,
		DataSent:             o.dataSent,
		DataAcked:            o.dataAcked,
		DataDropped:          o.dataDropped,
		IDChecksIssued:       o.idChecksIssued,
		IDChecksAccepted:     o.idChecksAccepted,
		IDChecksCollided:     o.idChecksCollided,
		CRCFailures:          o.crcFailures,
		DuplicatesSuppressed: o.duplicatesSuppressed,
		LastEstimateMs:       o.lastEstimateMs,
		LastOffsetMs:         o.lastOffsetMs,
	}
}

// Reset zeroes every counter.
func (o *RecordingObserver) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.beaconsSent, o.beaconsReceived, o.dataSent, o.dataAcked, o.dataDropped = 0, 0, 0, 0, 0
	o.idChecksIssued, o.idChecksAccepted, o.idChecksCollided = 0, 0, 0
	o.crcFailures, o.duplicatesSuppressed = 0, 0
	o.lastEstimateMs, o.lastOffsetMs = 0, 0
}

var _ Observer = (*RecordingObserver)(nil)

// SimNetwork wires one GNODE and any number of SNODEs together over an
// in-memory phy.Network sharing a single sched.FakeClock, so a host
// application can exercise its OnLoad/OnForward callbacks end to end —
// tree formation, ID assignment, forwarding, sleep/wake — without real
// radio hardware or wall-clock waits.
type SimNetwork struct {
	Clock   *sched.FakeClock
	Network *phy.Network
	GNODE   *GNODE
	SNODEs  []*SNODE
}

// NewSimNetwork constructs snodeCount SNODEs and one GNODE sharing cfg
// and an in-memory radio network, starts every node's scheduler, and
// returns the assembled harness.
func NewSimNetwork(cfg *Config, snodeCount int) *SimNetwork {
	clock := sched.NewFakeClock()
	net := phy.NewNetwork()

	gn := NewGNODE(cfg, net.Register(0), clock, nil, nil)
	gn.Start()

	snodes := make([]*SNODE, snodeCount)
	for i := range snodes {
		id := byte(i + 1)
		slot := 0
		if cfg.Gate.TDMASlots > 0 {
			slot = i % cfg.Gate.TDMASlots
		}
		sleeper := powerdown.NewFake(clock, cfg.Sync.WatchdogTickMs)
		sn := NewSNODE(cfg, net.Register(id), clock, slot, sleeper, nil, nil, nil)
		sn.Start()
		snodes[i] = sn
	}

	return &SimNetwork{Clock: clock, Network: net, GNODE: gn, SNODEs: snodes}
}

// Step runs one scheduler tick for the GNODE and then each SNODE in
// turn, and reports whether any of them actually ran a task.
func (s *SimNetwork) Step() bool {
	ran := s.GNODE.Scheduler().Step()
	for _, sn := range s.SNODEs {
		if sn.Scheduler().Step() {
			ran = true
		}
	}
	return ran
}

// Advance simulates ms of elapsed time: it drains every runnable task
// at the current instant, then nudges the shared clock forward one
// millisecond at a time until it reaches the target, repeating until
// neither step produces any further work. Sleeper.PowerDown calls
// (via powerdown.Fake) advance the clock on their own as SNODEs enter
// Sleep, so this mostly just pumps Receive/Enqueue/User/Send chains
// between those jumps.
func (s *SimNetwork) Advance(ms uint32) {
	target := s.Clock.NowMillis() + ms
	for {
		for s.Step() {
		}
		if int32(s.Clock.NowMillis()-target) >= 0 {
			return
		}
		s.Clock.Advance(1)
	}
}
