// Package frame implements the fixed-size SEEL wire frame, its
// command-specific payload sub-codecs, and the duplicate-frame filter
// that the flooded tree relies on to avoid processing the same
// broadcast twice.
//
// Every wire field wider than one byte is encoded big-endian, matching
// spec section 6. Frames are wire-compatible only within a network
// configured with the same DataSize.
package frame

import (
	"encoding/binary"
	"fmt"
)

// Command identifies the kind of frame on the wire.
type Command uint8

const (
	BCAST   Command = 0
	ACK     Command = 1
	DATA    Command = 2
	IDCheck Command = 3
)

func (c Command) String() string {
	switch c {
	case BCAST:
		return "BCAST"
	case ACK:
		return "ACK"
	case DATA:
		return "DATA"
	case IDCheck:
		return "ID_CHECK"
	default:
		return fmt.Sprintf("Command(%d)", uint8(c))
	}
}

// headerSize is the fixed 5-byte frame header preceding the payload:
// target, sender, command, seq, original_sender.
const headerSize = 5

// Frame is the fixed-size SEEL wire frame.
type Frame struct {
	TargetID         byte
	SenderID         byte
	Command          Command
	SeqNum           byte
	OriginalSenderID byte
	Payload          []byte
}

// Key returns the duplicate-suppression identity of this frame: sender,
// sequence number, and command jointly and uniquely identify a message
// within a short window.
func (f *Frame) Key() (sender, seq byte, cmd Command) {
	return f.SenderID, f.SeqNum, f.Command
}

// Codec marshals and parses frames of a fixed payload size. A network's
// nodes must all share one DataSize.
type Codec struct {
	DataSize int
}

// NewCodec returns a codec for the given payload size (MiscSize +
// UserSize).
func NewCodec(dataSize int) *Codec {
	return &Codec{DataSize: dataSize}
}

// FrameSize returns the total wire size of a frame under this codec.
func (c *Codec) FrameSize() int {
	return headerSize + c.DataSize
}

// Marshal serializes f into a fresh byte slice of exactly FrameSize()
// bytes. The payload is copied verbatim and zero-padded or truncated to
// DataSize — callers are responsible for building payloads whose
// semantic padding (ACK lists, id-feedback regions) is already zeroed,
// since padding there is semantic, not cosmetic.
func (c *Codec) Marshal(f *Frame) []byte {
	buf := make([]byte, c.FrameSize())
	buf[0] = f.TargetID
	buf[1] = f.SenderID
	buf[2] = byte(f.Command)
	buf[3] = f.SeqNum
	buf[4] = f.OriginalSenderID
	n := copy(buf[headerSize:], f.Payload)
	_ = n // remaining bytes stay zero if Payload is short
	return buf
}

// Unmarshal parses a wire frame of exactly FrameSize() bytes. The
// returned Frame's Payload aliases a fresh copy of the input, never the
// caller's buffer.
func (c *Codec) Unmarshal(data []byte) (*Frame, error) {
	if len(data) != c.FrameSize() {
		return nil, fmt.Errorf("frame: expected %d bytes, got %d", c.FrameSize(), len(data))
	}
	f := &Frame{
		TargetID:         data[0],
		SenderID:         data[1],
		Command:          Command(data[2]),
		SeqNum:           data[3],
		OriginalSenderID: data[4],
		Payload:          make([]byte, c.DataSize),
	}
	copy(f.Payload, data[headerSize:])
	return f, nil
}

// Clone returns a deep copy of f, preserving every payload byte. Forward
// handling needs this: the incoming frame must stay immutable for
// logging while a rewritten copy is pushed onward.
func (f *Frame) Clone() *Frame {
	cp := *f
	cp.Payload = make([]byte, len(f.Payload))
	copy(cp.Payload, f.Payload)
	return &cp
}

// PutUint32BE and GetUint32BE are small helpers kept alongside the frame
// codec for the command-specific payload layouts in payloads.go, which
// all share the big-endian convention of spec section 6.
func PutUint32BE(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func GetUint32BE(b []byte) uint32    { return binary.BigEndian.Uint32(b) }
