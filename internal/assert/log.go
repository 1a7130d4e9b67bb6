// Package assert implements the wear-leveled, ring-structured
// assertion log of spec section 6's Assertion NVM layout table: a
// 4-byte entry format (used_flag + 15-bit file index, 16-bit line
// number) stored over a byte-addressable nvm.Device.
package assert

import "github.com/seelmesh/seel/internal/nvm"

const (
	cellsPerEntry = 4
	usedFlagBit   = 0x80
	maxFileNum    = 32767
	maxLineNum    = 65535
)

// Entry is one decoded assertion record.
type Entry struct {
	FileID int
	Line   int
}

// Log is a ring of assertion entries backed by an nvm.Device. The
// zero value is not usable; construct with NewLog.
type Log struct {
	dev    nvm.Device
	start  int // entry index (not byte offset) of the ring head
	length int // count of occupied entries, including any dummy head
}

// NewLog wraps dev and recovers the ring's head/length by scanning it
// (spec: "on init, scan in 4-byte strides to find the start... and
// length").
func NewLog(dev nvm.Device) *Log {
	l := &Log{dev: dev}
	l.Init()
	return l
}

func (l *Log) numEntries() int {
	return l.dev.Length() / cellsPerEntry
}

func (l *Log) entryUsed(e int) bool {
	return l.dev.Read(e*cellsPerEntry)&usedFlagBit != 0
}

// Init rescans the device for the first free→used transition and the
// contiguous used run that follows it, possibly wrapping around the
// end of the device. Call after constructing a Log directly over a
// device whose contents came from a previous process (NewLog already
// calls this once).
func (l *Log) Init() {
	n := l.numEntries()
	if n == 0 {
		l.start, l.length = 0, 0
		return
	}

	used := make([]bool, n)
	allUsed := true
	anyUsed := false
	for e := 0; e < n; e++ {
		used[e] = l.entryUsed(e)
		if used[e] {
			anyUsed = true
		} else {
			allUsed = false
		}
	}
	if !anyUsed {
		l.start, l.length = 0, 0
		return
	}

	start := 0
	if !allUsed {
		for e := 0; e < n; e++ {
			prev := (e - 1 + n) % n
			if !used[prev] && used[e] {
				start = e
				break
			}
		}
	}

	length := 0
	for i := 0; i < n; i++ {
		e := (start + i) % n
		if !used[e] {
			break
		}
		length++
	}
	l.start, l.length = start, length
}

// Add appends one (fileID, line) entry at the ring's tail. It refuses
// — returning false — when the ring is full, or when the entry's
// 4-byte cell would cross the end of the device.
func (l *Log) Add(fileID, line int) bool {
	n := l.numEntries()
	if n == 0 || l.length >= n {
		return false
	}
	if fileID < 0 {
		fileID = 0
	}
	if fileID > maxFileNum {
		fileID = maxFileNum
	}
	if line < 0 {
		line = 0
	}
	if line > maxLineNum {
		line = maxLineNum
	}

	idx := (l.start + l.length) % n
	off := idx * cellsPerEntry
	if off+cellsPerEntry > l.dev.Length() {
		return false
	}

	l.dev.Update(off, byte(usedFlagBit|((fileID>>8)&0x7F)))
	l.dev.Update(off+1, byte(fileID&0xFF))
	l.dev.Update(off+2, byte(line>>8))
	l.dev.Update(off+3, byte(line&0xFF))
	l.length++
	return true
}

// Clear zeroes every occupied entry's lead cell (marking it free) and
// advances the ring head past them, leaving one dummy entry occupied
// at the new head so a subsequent Init can still find a free→used
// transition to resume from.
func (l *Log) Clear() {
	n := l.numEntries()
	if n == 0 {
		return
	}
	for i := 0; i < l.length; i++ {
		e := (l.start + i) % n
		l.dev.Update(e*cellsPerEntry, 0)
	}
	newStart := (l.start + l.length) % n
	l.dev.Update(newStart*cellsPerEntry, byte(usedFlagBit))
	for c := 1; c < cellsPerEntry; c++ {
		l.dev.Update(newStart*cellsPerEntry+c, 0)
	}
	l.start = newStart
	l.length = 1
}

// Entries returns every real (non-dummy) assertion currently ringed.
// A dummy head entry left by Clear decodes to FileID==0, Line==0 and
// is always a placeholder, never a real assertion (file ids are
// assigned starting at 1), so it is excluded here.
func (l *Log) Entries() []Entry {
	n := l.numEntries()
	if n == 0 {
		return nil
	}
	var out []Entry
	for i := 0; i < l.length; i++ {
		e := (l.start + i) % n
		off := e * cellsPerEntry
		b0 := l.dev.Read(off)
		fileID := int(b0&0x7F) << 8
		fileID |= int(l.dev.Read(off + 1))
		line := int(l.dev.Read(off+2)) << 8
		line |= int(l.dev.Read(off + 3))
		if fileID == 0 && line == 0 {
			continue
		}
		out = append(out, Entry{FileID: fileID, Line: line})
	}
	return out
}
