package phy

import (
	"io"
	"sync"
	"time"

	"github.com/seelmesh/seel/internal/constants"
)

// LinkProfile describes the channel quality simulated between two
// particular nodes: the RSSI/SNR a receiver reports for a frame that
// crossed this link, whether the frame should be delivered with a
// failed CRC (simulating corruption), and how long the frame spends
// in flight before delivery.
type LinkProfile struct {
	RSSI             int8
	SNR              float32
	CRCFail          bool
	PropagationDelay time.Duration
}

// DefaultLinkProfile is used for any pair of nodes that has not been
// given an explicit profile via Network.SetLink.
var DefaultLinkProfile = LinkProfile{RSSI: -80, SNR: 8.0}

type receivedPacket struct {
	data  []byte
	rssi  int8
	snr   float32
	crcOK bool
}

// Network is a shared medium joining a set of Loopback radios. Every
// frame sent by one member is broadcast to every other member, each
// over its own LinkProfile, mirroring the teacher's RAM-backed
// "mem.go" stand-in for a real block device: an in-memory substitute
// good enough to drive the real state machines under test.
type Network struct {
	mu       sync.Mutex
	nodes    map[byte]*Loopback
	links    map[[2]byte]LinkProfile
	dropFull int
}

// NewNetwork returns an empty shared medium.
func NewNetwork() *Network {
	return &Network{
		nodes: make(map[byte]*Loopback),
		links: make(map[[2]byte]LinkProfile),
	}
}

// Register joins a new Loopback radio to the network under id. id
// must be unique within the network.
func (n *Network) Register(id byte) *Loopback {
	n.mu.Lock()
	defer n.mu.Unlock()
	l := &Loopback{id: id, net: n, inbox: make(chan receivedPacket, 16)}
	n.nodes[id] = l
	return l
}

// SetLink overrides the simulated channel quality from one specific
// node to another. Links are directional: a lossy uplink does not
// imply a lossy downlink.
func (n *Network) SetLink(from, to byte, profile LinkProfile) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.links[[2]byte{from, to}] = profile
}

// DroppedForFullInbox reports how many deliveries were discarded
// because a receiver's inbox was saturated.
func (n *Network) DroppedForFullInbox() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropFull
}

func (n *Network) linkProfile(from, to byte) LinkProfile {
	n.mu.Lock()
	defer n.mu.Unlock()
	if p, ok := n.links[[2]byte{from, to}]; ok {
		return p
	}
	return DefaultLinkProfile
}

func (n *Network) broadcast(from byte, data []byte) {
	n.mu.Lock()
	targets := make([]*Loopback, 0, len(n.nodes))
	for id, l := range n.nodes {
		if id != from {
			targets = append(targets, l)
		}
	}
	n.mu.Unlock()

	frame := append([]byte(nil), data...)
	for _, target := range targets {
		profile := n.linkProfile(from, target.id)
		pkt := receivedPacket{data: frame, rssi: profile.RSSI, snr: profile.SNR, crcOK: !profile.CRCFail}
		if profile.PropagationDelay > 0 {
			go func(target *Loopback, pkt receivedPacket, delay time.Duration) {
				time.Sleep(delay)
				n.deliver(target, pkt)
			}(target, pkt, profile.PropagationDelay)
			continue
		}
		n.deliver(target, pkt)
	}
}

func (n *Network) deliver(target *Loopback, pkt receivedPacket) {
	select {
	case target.inbox <- pkt:
	default:
		n.mu.Lock()
		n.dropFull++
		n.mu.Unlock()
	}
}

// Loopback is an in-process Radio backed by a Network. It is the
// stand-in used by the simulation harness and every package test that
// exercises node behavior without real LoRa hardware.
type Loopback struct {
	id  byte
	net *Network

	inbox chan receivedPacket

	freq       float64
	sf         int
	bw         float64
	txPowerDbm int
	codingRate int
	crcEnabled bool

	pending  *receivedPacket
	readPos  int
	lastRSSI int8
	lastSNR  float32
}

var _ Radio = (*Loopback)(nil)

func (l *Loopback) Begin(freqHz float64) error {
	l.freq = freqHz
	return nil
}

func (l *Loopback) SetSF(sf int)         { l.sf = sf }
func (l *Loopback) SetBW(bwHz float64)   { l.bw = bwHz }
func (l *Loopback) SetTXPower(dbm int)   { l.txPowerDbm = dbm }
func (l *Loopback) SetCodingRate(cr int) { l.codingRate = cr }
func (l *Loopback) SetCRC(enabled bool)  { l.crcEnabled = enabled }

// Send simulates time-on-air with a fixed delay and then fans the
// frame out to every other node on the network.
func (l *Loopback) Send(frame []byte) error {
	time.Sleep(constants.LoopbackAirTime)
	l.net.broadcast(l.id, frame)
	return nil
}

// ParsePacket polls the inbox for one pending delivery.
func (l *Loopback) ParsePacket() (int, bool) {
	select {
	case pkt := <-l.inbox:
		l.pending = &pkt
		l.readPos = 0
		l.lastRSSI = pkt.rssi
		l.lastSNR = pkt.snr
		return len(pkt.data), pkt.crcOK
	default:
		return 0, false
	}
}

func (l *Loopback) Read() (byte, error) {
	if l.pending == nil || l.readPos >= len(l.pending.data) {
		return 0, io.EOF
	}
	b := l.pending.data[l.readPos]
	l.readPos++
	return b, nil
}

func (l *Loopback) PacketRSSI() int8   { return l.lastRSSI }
func (l *Loopback) PacketSNR() float32 { return l.lastSNR }

// Sleep is a no-op: the loopback radio has no distinct sleep current
// to model, MCU powerdown is handled separately (internal/powerdown).
func (l *Loopback) Sleep() {}
