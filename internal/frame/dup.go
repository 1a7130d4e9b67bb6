package frame

import (
	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/seelmesh/seel/internal/ring"
)

// dupRecord is one slot of the duplicate-suppression window: the
// (sender, seq, command) triple that jointly and uniquely identifies a
// message within DupWindow distinct frames, per spec section 4.2.
type dupRecord struct {
	sender byte
	seq    byte
	cmd    Command
	active bool
}

func dupEq(a, b dupRecord) bool {
	return a.active && b.active && a.sender == b.sender && a.seq == b.seq && a.cmd == b.cmd
}

// DupFilter maintains a DupWindow-sized ring of recently seen frame
// identities. It exists because SEEL floods a tree: a node regularly
// hears retransmissions of its own or a sibling's forwards, and must
// not act on them twice.
//
// A cuckoofilter pre-filter short-circuits the common "definitely never
// seen" case without touching the exact ring; any filter hit still
// falls through to the exact scan, so filter false positives can only
// cost a redundant scan, never an incorrectly suppressed frame. Its
// occupancy is kept bounded by deleting the evicted identity whenever
// the ring drops its oldest slot, so the filter never silently fills
// past capacity.
type DupFilter struct {
	window *ring.Queue[dupRecord]
	approx *cuckoo.Filter
}

// NewDupFilter returns a filter remembering the last windowSize distinct
// frame identities.
func NewDupFilter(windowSize int) *DupFilter {
	if windowSize <= 0 {
		windowSize = 1
	}
	return &DupFilter{
		window: ring.New[dupRecord](windowSize),
		approx: cuckoo.NewFilter(uint(windowSize) * 4),
	}
}

func dupKeyBytes(sender, seq byte, cmd Command) []byte {
	var b [3]byte
	b[0] = sender
	b[1] = seq
	b[2] = byte(cmd)
	return b[:]
}

// Check reports whether f's (sender, seq, command) identity was already
// seen within the window. If not, it records the identity, overwriting
// the oldest slot once the window is full.
func (d *DupFilter) Check(f *Frame) bool {
	sender, seq, cmd := f.Key()
	key := dupKeyBytes(sender, seq, cmd)

	if d.approx != nil && !d.approx.Lookup(key) {
		d.record(sender, seq, cmd, key)
		return false
	}

	rec := dupRecord{sender: sender, seq: seq, cmd: cmd, active: true}
	if _, ok := d.window.Find(rec, dupEq); ok {
		return true
	}
	d.record(sender, seq, cmd, key)
	return false
}

func (d *DupFilter) record(sender, seq byte, cmd Command, key []byte) {
	if d.approx != nil && d.window.Size() == d.window.MaxSize() {
		if evicted := d.window.Front(); evicted != nil && evicted.active {
			d.approx.Delete(dupKeyBytes(evicted.sender, evicted.seq, evicted.cmd))
		}
	}
	d.window.Add(dupRecord{sender: sender, seq: seq, cmd: cmd, active: true}, true)
	if d.approx != nil {
		d.approx.InsertUnique(key)
	}
}

// SeqDelta returns the modulo-256 forward distance from a to b, used by
// callers that want to assert seq_num advances by exactly one between
// successive frames from the same sender.
func SeqDelta(a, b byte) byte {
	return byte((uint16(b) - uint16(a)) & 0xff)
}
