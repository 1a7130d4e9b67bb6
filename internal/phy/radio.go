// Package phy defines the radio PHY contract SEEL treats as an
// external dependency (spec section 6) and ships one concrete
// implementation of it: an in-process loopback transport used by
// tests and the simulation harness to run a full multi-node mesh
// without real LoRa hardware.
package phy

// Radio is the external LoRa PHY contract: framed send/receive with
// RSSI/SNR/CRC reporting. Send blocks until the frame's time-on-air
// has elapsed; ParsePacket and Read are non-blocking polls, matching
// spec section 5's concurrency model (the engine is single-threaded
// and receive is never allowed to stall the scheduler).
type Radio interface {
	Begin(freqHz float64) error
	SetSF(sf int)
	SetBW(bwHz float64)
	SetTXPower(dbm int)
	SetCodingRate(cr int)
	SetCRC(enabled bool)

	// Send transmits frame, blocking until air-done.
	Send(frame []byte) error

	// ParsePacket polls for a received packet without blocking. It
	// returns the packet length (0 if none is available) and whether
	// the packet passed CRC. A subsequent call to Read drains the
	// packet byte by byte.
	ParsePacket() (length int, crcOK bool)
	Read() (byte, error)

	PacketRSSI() int8
	PacketSNR() float32

	Sleep()
}

// ReadFrame drains exactly size bytes from r's most recently parsed
// packet. It is a convenience wrapper over the byte-at-a-time Read
// contract for callers that already know the fixed frame size.
func ReadFrame(r Radio, size int) ([]byte, error) {
	buf := make([]byte, size)
	for i := range buf {
		b, err := r.Read()
		if err != nil {
			return nil, err
		}
		buf[i] = b
	}
	return buf, nil
}
