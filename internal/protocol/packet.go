// Package protocol defines the batch frame that carries several engine datagrams
// in one transport message.
package protocol

import "errors"

// Version is the only frame layout this package understands.
const Version uint8 = 0x01

// HeaderSize is the fixed frame header: Version(1) + SeqNum(4) + Count(2).
const HeaderSize = 7

// LengthSize is the per-packet length prefix.
const LengthSize = 2

// Frame limits.
const (
	MaxPackets    = 255
	MaxPacketSize = 0xFFFF
)

var (
	ErrMalformedFrame = errors.New("protocol: malformed frame")
	ErrEmptyBatch     = errors.New("protocol: batch has no packets")
	ErrTooManyPackets = errors.New("protocol: too many packets in batch")
	ErrPacketTooLarge = errors.New("protocol: packet exceeds maximum size")
	ErrSizeMismatch   = errors.New("protocol: declared size does not match buffer")
)

// Frame is one sequenced batch as it travels on the wire.
//
// Layout:
//
//	[1B version][4B seq][2B count] { [2B length][payload] } * count
type Frame struct {
	SeqNum  uint32
	Packets [][]byte
}

// EncodedSize returns the exact number of bytes Encode will produce.
func (f *Frame) EncodedSize() int {
	size := HeaderSize
	for _, p := range f.Packets {
		size += LengthSize + len(p)
	}
	return size
}

// PayloadBytes returns the sum of packet lengths, i.e. what the engine
// believes it sent.
func (f *Frame) PayloadBytes() int {
	n := 0
	for _, p := range f.Packets {
		n += len(p)
	}
	return n
}
