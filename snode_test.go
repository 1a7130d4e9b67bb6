package seel

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seelmesh/seel/internal/frame"
	"github.com/seelmesh/seel/internal/phy"
	"github.com/seelmesh/seel/internal/powerdown"
	"github.com/seelmesh/seel/internal/sched"
)

func newTestSNODE(t *testing.T, net *phy.Network, id byte) (*SNODE, *sched.FakeClock) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Network.MaxNodes = 16
	cfg.ParentSelect.Mode = SelPathRSSI
	clock := sched.NewFakeClock()
	radio := net.Register(id)
	sleeper := powerdown.NewFake(clock, 0)
	s := NewSNODE(cfg, radio, clock, 0, sleeper, nil, nil, rand.New(rand.NewSource(7)))
	return s, clock
}

func testBeaconFrame(senderID byte, bp *frame.BeaconPayload, dataSize int) *frame.Frame {
	return &frame.Frame{
		TargetID:         0,
		SenderID:         senderID,
		Command:          frame.BCAST,
		SeqNum:           3,
		OriginalSenderID: senderID,
		Payload:          bp.Encode(dataSize),
	}
}

func TestHandleBeaconAcceptsFirstBeaconThisCycle(t *testing.T) {
	net := phy.NewNetwork()
	s, _ := newTestSNODE(t, net, 5)

	bp := &frame.BeaconPayload{AwakeSecs: 10, SleepSecs: 60, HopCount: 0, PathRSSI: -70}
	f := testBeaconFrame(1, bp, s.Codec.DataSize)

	s.handleBeacon(f, -60)

	require.True(t, s.parentSync)
	require.True(t, s.beaconReceived)
	require.Equal(t, byte(1), s.ParentID)
	require.Equal(t, uint8(1), s.hopCount)
	require.True(t, s.BeaconPending(), "the accepted beacon is armed for rebroadcast")
	require.Equal(t, 3, s.scheduler.Len(), "sleep, enqueue and send tasks are all scheduled")
}

func TestHandleBeaconPrefersBetterPathRSSI(t *testing.T) {
	net := phy.NewNetwork()
	s, _ := newTestSNODE(t, net, 5)

	first := testBeaconFrame(1, &frame.BeaconPayload{HopCount: 0, PathRSSI: -90}, s.Codec.DataSize)
	s.handleBeacon(first, -90)
	require.Equal(t, byte(1), s.ParentID)

	worse := testBeaconFrame(2, &frame.BeaconPayload{HopCount: 0, PathRSSI: -95}, s.Codec.DataSize)
	s.handleBeacon(worse, -95)
	require.Equal(t, byte(1), s.ParentID, "a worse-metric candidate must not replace the current parent")

	better := testBeaconFrame(3, &frame.BeaconPayload{HopCount: 0, PathRSSI: -50}, s.Codec.DataSize)
	s.handleBeacon(better, -50)
	require.Equal(t, byte(3), s.ParentID, "a strictly better path RSSI wins")
}

func TestHandleBeaconFromBlacklistedSenderHarvestsTimingWithoutAccepting(t *testing.T) {
	net := phy.NewNetwork()
	s, clock := newTestSNODE(t, net, 5)
	clock.SetMillis(1000)
	s.blacklist.Add(9, false)

	bp := &frame.BeaconPayload{AwakeSecs: 10, SleepSecs: 60, TimeSyncMs: 5000}
	f := testBeaconFrame(9, bp, s.Codec.DataSize)

	s.handleBeacon(f, -70)

	require.False(t, s.parentSync, "a blacklisted sender is never accepted as parent")
	require.True(t, s.bcastSetupDone, "timing is still harvested from a blacklisted beacon")
	require.Equal(t, uint32(5000)+s.AirTimeMs, clock.NowMillis())
}

func TestVerifyIDAdoptsAssignedIDAndSetsVerified(t *testing.T) {
	net := phy.NewNetwork()
	s, _ := newTestSNODE(t, net, 5)
	s.NodeID = 42

	bp := &frame.BeaconPayload{IDFeedback: []frame.IDPair{{Requested: 42, Assigned: 42}}}
	s.verifyID(bp)

	require.True(t, s.idVerified)
	require.Equal(t, byte(42), s.NodeID)
}

func TestVerifyIDRegeneratesOnCollisionResponse(t *testing.T) {
	net := phy.NewNetwork()
	s, _ := newTestSNODE(t, net, 5)
	s.NodeID = 42
	oldKey := s.uniqueKey

	bp := &frame.BeaconPayload{IDFeedback: []frame.IDPair{{Requested: 42, Assigned: 0}}}
	s.verifyID(bp)

	require.False(t, s.idVerified)
	require.NotEqual(t, oldKey, s.uniqueKey, "a re-roll must pick a fresh unique key too")
}

func TestDriftLearnerScenarioFive(t *testing.T) {
	net := phy.NewNetwork()
	s, _ := newTestSNODE(t, net, 5)
	s.prevAwakeSecs, s.prevSleepSecs = 10, 60
	s.estimateMs = 1000
	s.offsetMs = 0
	s.wtbMs = 60200

	s.runDriftLearner()

	require.Equal(t, int32(9800), s.offsetMs)
	require.Equal(t, uint32(1163), s.estimateMs)
	require.True(t, s.wdAdjusted)
}

func TestDriftLearnerScenarioSixConsumesSlack(t *testing.T) {
	net := phy.NewNetwork()
	s, _ := newTestSNODE(t, net, 5)
	s.prevAwakeSecs, s.prevSleepSecs = 10, 60
	s.estimateMs = 1163
	s.offsetMs = 9800
	s.wtbMs = 10200

	s.runDriftLearner()

	require.Equal(t, int32(0), s.offsetMs)
	require.Equal(t, uint32(1158), s.estimateMs)
}

func TestSleepTicksAppliesForceSleepPenalty(t *testing.T) {
	net := phy.NewNetwork()
	s, _ := newTestSNODE(t, net, 5)
	s.estimateMs = 1000
	s.sleepSecs = 60
	s.awakeSecs = 10
	s.cfg.ForceSleep.AwakeMult = 1
	s.cfg.ForceSleep.DurationScale = 2

	baseline := s.sleepTicks()

	s.missedBcasts = 1
	withPenalty := s.sleepTicks()

	require.Less(t, withPenalty, baseline, "a missed beacon must shrink the computed sleep duration")
}

func TestRunSleepBlacklistsParentWhenDataWentUnacked(t *testing.T) {
	net := phy.NewNetwork()
	s, _ := newTestSNODE(t, net, 5)
	s.parentSync = true
	s.ParentID = 1
	s.acked = false
	s.dataMsgsSent = 1
	s.estimateMs = 1000

	s.runSleep()

	require.True(t, s.inBlacklist(1))
	require.True(t, s.acked)
}

func TestHandleForwardRewritesTargetAndQueuesAckOnSuccess(t *testing.T) {
	net := phy.NewNetwork()
	s, _ := newTestSNODE(t, net, 5)
	s.ParentID = 1

	f := &frame.Frame{
		TargetID:         5,
		SenderID:         9,
		Command:          frame.DATA,
		OriginalSenderID: 9,
		Payload:          make([]byte, s.Codec.DataSize),
	}
	s.handleForward(f)

	require.Equal(t, 1, s.DataQueueLen())
	require.Equal(t, byte(5), f.TargetID, "the incoming frame itself must stay untouched")
}

func TestHandleForwardSuppressedByHostReturnsFalse(t *testing.T) {
	net := phy.NewNetwork()
	s, _ := newTestSNODE(t, net, 5)
	s.ParentID = 1
	s.OnForward = func(payload []byte, cb CBInfo) bool { return false }

	f := &frame.Frame{
		TargetID: 5,
		SenderID: 9,
		Command:  frame.DATA,
		Payload:  make([]byte, s.Codec.DataSize),
	}
	s.handleForward(f)

	require.Equal(t, 0, s.DataQueueLen())
}
