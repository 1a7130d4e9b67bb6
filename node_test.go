package seel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seelmesh/seel/internal/frame"
	"github.com/seelmesh/seel/internal/gate"
	"github.com/seelmesh/seel/internal/phy"
)

const testDataSize = 20

func newTestNode(t *testing.T, id byte, net *phy.Network, g gate.Gate) (*NodeBase, *phy.Loopback) {
	t.Helper()
	radio := net.Register(id)
	codec := frame.NewCodec(testDataSize)
	dup := frame.NewDupFilter(8)
	n := NewNodeBase(id, codec, radio, g, dup, nil, nil, 8, 8)
	return n, radio
}

func alwaysAllow() gate.Gate {
	return &allowAllGate{}
}

type allowAllGate struct{ lastNow uint32 }

func (g *allowAllGate) Allowed(uint32) bool { return true }
func (g *allowAllGate) OnSend(now uint32)   { g.lastNow = now }
func (g *allowAllGate) RecordDataSent()     {}
func (g *allowAllGate) RecordAck()          {}
func (g *allowAllGate) ResetDelay()         {}

func TestSendPrioritizesBeaconOverAckOverData(t *testing.T) {
	net := phy.NewNetwork()
	n, _ := newTestNode(t, 2, net, alwaysAllow())

	require.True(t, n.EnqueueAck(9))
	require.True(t, n.EnqueueData(&frame.Frame{Command: frame.DATA, Payload: make([]byte, testDataSize)}))

	beacon := &frame.Frame{SenderID: 1, Command: frame.BCAST, SeqNum: 5, Payload: (&frame.BeaconPayload{AwakeSecs: 10, SleepSecs: 60}).Encode(testDataSize)}
	n.SetBeacon(beacon, 1, -70)

	require.True(t, n.Send(SendParams{Now: 1000, ParentID: 1, ParentSync: true}))
	require.True(t, n.BeaconSent(), "the beacon must go out first")

	require.True(t, n.Send(SendParams{Now: 1100, ParentID: 1, ParentSync: true}))
	require.Equal(t, 1, n.DataQueueLen(), "data is still queued, ack went out next")

	require.True(t, n.Send(SendParams{Now: 1200, ParentID: 1, ParentSync: true}))
	require.Equal(t, 1, n.UnackMsgs())
}

func TestSendDataRewritesTargetAndKeepsOriginalSender(t *testing.T) {
	net := phy.NewNetwork()
	sender, _ := newTestNode(t, 5, net, alwaysAllow())
	parent := net.Register(1)

	require.True(t, sender.EnqueueData(&frame.Frame{
		Command:          frame.DATA,
		OriginalSenderID: 5,
		Payload:          make([]byte, testDataSize),
	}))

	require.True(t, sender.Send(SendParams{Now: 10, ParentID: 1, ParentSync: true}))

	length, crcOK := parent.ParsePacket()
	require.Equal(t, sender.Codec.FrameSize(), length)
	require.True(t, crcOK)
	data, err := phy.ReadFrame(parent, length)
	require.NoError(t, err)
	got, err := sender.Codec.Unmarshal(data)
	require.NoError(t, err)

	require.Equal(t, byte(1), got.TargetID)
	require.Equal(t, byte(5), got.SenderID)
	require.Equal(t, byte(5), got.OriginalSenderID)
	require.Equal(t, byte(1), got.SeqNum)
}

func TestIDCheckForSelfAlreadyVerifiedIsDroppedWithoutSending(t *testing.T) {
	net := phy.NewNetwork()
	n, _ := newTestNode(t, 7, net, alwaysAllow())
	net.Register(1)

	icp := &frame.IDCheckPayload{RequestedID: 7, UniqueKey: 42}
	require.True(t, n.EnqueueData(&frame.Frame{Command: frame.IDCheck, Payload: icp.Encode(testDataSize)}))

	sent := n.Send(SendParams{Now: 10, ParentID: 1, ParentSync: true, IDVerified: true})
	require.False(t, sent)
	require.Equal(t, 0, n.DataQueueLen(), "the already-verified join entry is dropped")
}

func TestIngestAckPopsDataQueueAndResetsGate(t *testing.T) {
	net := phy.NewNetwork()
	n, _ := newTestNode(t, 3, net, gate.NewBackoffGate(2000, 500, 2, nil))

	require.True(t, n.EnqueueData(&frame.Frame{Command: frame.DATA, Payload: make([]byte, testDataSize)}))
	require.True(t, n.Send(SendParams{Now: 0, ParentID: 1, ParentSync: true}))
	require.Equal(t, 1, n.UnackMsgs())

	ack := &frame.AckPayload{SenderIDs: []byte{3}}
	require.True(t, n.IngestAck(ack.Encode(testDataSize)))
	require.Equal(t, 0, n.UnackMsgs())
	require.Equal(t, 0, n.DataQueueLen())
}

func TestIngestAckIgnoresFrameNotMentioningSelf(t *testing.T) {
	net := phy.NewNetwork()
	n, _ := newTestNode(t, 3, net, alwaysAllow())
	require.True(t, n.EnqueueData(&frame.Frame{Command: frame.DATA, Payload: make([]byte, testDataSize)}))
	require.True(t, n.Send(SendParams{Now: 0, ParentID: 1, ParentSync: true}))

	ack := &frame.AckPayload{SenderIDs: []byte{99}}
	require.False(t, n.IngestAck(ack.Encode(testDataSize)))
	require.Equal(t, 1, n.UnackMsgs())
}

func TestAckQueuePersistsAcrossMultipleSends(t *testing.T) {
	net := phy.NewNetwork()
	n, _ := newTestNode(t, 4, net, alwaysAllow())
	require.True(t, n.EnqueueAck(8))

	require.True(t, n.Send(SendParams{Now: 0, ParentID: 1, ParentSync: true}))
	require.True(t, n.Send(SendParams{Now: 100, ParentID: 1, ParentSync: true}), "the ack queue is only cleared at wake, not after sending")
}

func TestGateDeniesSuppressesAllSends(t *testing.T) {
	net := phy.NewNetwork()
	n, _ := newTestNode(t, 6, net, &denyAllGate{})
	require.True(t, n.EnqueueAck(1))
	require.False(t, n.Send(SendParams{Now: 0, ParentID: 1, ParentSync: true}))
}

type denyAllGate struct{}

func (denyAllGate) Allowed(uint32) bool { return false }
func (denyAllGate) OnSend(uint32)       {}
func (denyAllGate) RecordDataSent()     {}
func (denyAllGate) RecordAck()          {}
func (denyAllGate) ResetDelay()         {}

func TestPollFrameDiscardsCRCFailureAndCountsIt(t *testing.T) {
	net := phy.NewNetwork()
	a, _ := newTestNode(t, 1, net, alwaysAllow())
	b, _ := newTestNode(t, 2, net, alwaysAllow())
	net.SetLink(1, 2, phy.LinkProfile{CRCFail: true})

	require.NoError(t, a.Radio.Send(a.Codec.Marshal(&frame.Frame{Command: frame.DATA, Payload: make([]byte, testDataSize)})))

	f, err := b.PollFrame()
	require.NoError(t, err)
	require.Nil(t, f)
	require.Equal(t, 1, b.CRCFails())
}

func TestPollFrameSuppressesDuplicate(t *testing.T) {
	net := phy.NewNetwork()
	a, _ := newTestNode(t, 1, net, alwaysAllow())
	b, _ := newTestNode(t, 2, net, alwaysAllow())

	wire := a.Codec.Marshal(&frame.Frame{SenderID: 1, Command: frame.DATA, SeqNum: 9, Payload: make([]byte, testDataSize)})
	require.NoError(t, a.Radio.Send(wire))
	require.NoError(t, a.Radio.Send(wire))

	first, err := b.PollFrame()
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := b.PollFrame()
	require.NoError(t, err)
	require.Nil(t, second, "the second identical frame is a duplicate")
}

func TestResetCycleClearsStateAndGateDelay(t *testing.T) {
	net := phy.NewNetwork()
	bg := gate.NewBackoffGate(2000, 500, 2, nil)
	n, _ := newTestNode(t, 3, net, bg)

	require.True(t, n.EnqueueAck(9))
	require.True(t, n.EnqueueData(&frame.Frame{Command: frame.DATA, Payload: make([]byte, testDataSize)}))
	require.True(t, n.Send(SendParams{Now: 0, ParentID: 1, ParentSync: true}))

	n.ResetCycle()
	require.False(t, n.BeaconPending())
	require.Equal(t, 0, n.UnackMsgs())
	require.Equal(t, 0, n.CRCFails())
	require.True(t, bg.Allowed(1), "ResetDelay zeroes the backoff delay")
}
