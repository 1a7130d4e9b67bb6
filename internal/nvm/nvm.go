// Package nvm implements the byte-addressable, wear-leveled storage
// contract the assertion log is built on (spec section 6 NVM
// contract). It is adapted from the teacher's flat RAM-backend
// pattern, dropping sharded locking (assertion NVM access is
// single-threaded) and adding the "no write if unchanged" wear
// guard the real contract requires.
package nvm

// Device is a byte-addressable store. Update is a no-op when v
// already matches the stored byte, which is the wear-leveling
// guarantee the assertion log's ring-overwrite pattern depends on.
type Device interface {
	Length() int
	Read(i int) byte
	Update(i int, v byte)
}

// Memory is an in-RAM Device, standing in for real EEPROM in tests
// and in the loopback simulation harness.
type Memory struct {
	data    []byte
	writes  uint64 // total bytes actually written, for wear-guard tests
}

// NewMemory returns a zeroed Memory device of the given length.
func NewMemory(length int) *Memory {
	if length < 0 {
		length = 0
	}
	return &Memory{data: make([]byte, length)}
}

func (m *Memory) Length() int { return len(m.data) }

func (m *Memory) Read(i int) byte { return m.data[i] }

func (m *Memory) Update(i int, v byte) {
	if m.data[i] == v {
		return
	}
	m.data[i] = v
	m.writes++
}

// Writes reports how many Update calls actually changed a byte, used
// by tests asserting the wear guard elides redundant writes.
func (m *Memory) Writes() uint64 { return m.writes }

var _ Device = (*Memory)(nil)
