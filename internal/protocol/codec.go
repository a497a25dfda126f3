package protocol

import (
	"encoding/binary"
	"fmt"
)

// NewFrame validates a batch as handed over by the engine: every declared size
// must match its buffer. The packets are referenced, not copied.
func NewFrame(seq uint32, packets [][]byte, sizes []int) (*Frame, error) {
	if len(packets) != len(sizes) {
		return nil, fmt.Errorf("%w: %d packets, %d sizes", ErrSizeMismatch, len(packets), len(sizes))
	}
	for i, p := range packets {
		if sizes[i] != len(p) {
			return nil, fmt.Errorf("%w: packet %d declared %d, has %d", ErrSizeMismatch, i, sizes[i], len(p))
		}
	}
	f := &Frame{SeqNum: seq, Packets: packets}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Frame) validate() error {
	if len(f.Packets) == 0 {
		return ErrEmptyBatch
	}
	if len(f.Packets) > MaxPackets {
		return fmt.Errorf("%w: %d (max %d)", ErrTooManyPackets, len(f.Packets), MaxPackets)
	}
	for i, p := range f.Packets {
		if len(p) > MaxPacketSize {
			return fmt.Errorf("%w: packet %d is %d bytes", ErrPacketTooLarge, i, len(p))
		}
	}
	return nil
}

// Encode serializes a Frame into one contiguous buffer.
func Encode(f *Frame) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	buf := make([]byte, f.EncodedSize())
	buf[0] = Version
	binary.BigEndian.PutUint32(buf[1:5], f.SeqNum)
	binary.BigEndian.PutUint16(buf[5:7], uint16(len(f.Packets)))

	off := HeaderSize
	for _, p := range f.Packets {
		binary.BigEndian.PutUint16(buf[off:off+LengthSize], uint16(len(p)))
		off += LengthSize
		off += copy(buf[off:], p)
	}
	return buf, nil
}

// Decode deserializes a frame. Every length is checked against the bytes
// actually present; any inconsistency wraps ErrMalformedFrame. Payloads are
// copied and never alias data.
func Decode(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes (need at least %d)", ErrMalformedFrame, len(data), HeaderSize)
	}
	if data[0] != Version {
		return nil, fmt.Errorf("%w: unknown version 0x%02x", ErrMalformedFrame, data[0])
	}

	count := int(binary.BigEndian.Uint16(data[5:7]))
	if count == 0 || count > MaxPackets {
		return nil, fmt.Errorf("%w: packet count %d", ErrMalformedFrame, count)
	}

	f := &Frame{
		SeqNum:  binary.BigEndian.Uint32(data[1:5]),
		Packets: make([][]byte, 0, count),
	}

	off := HeaderSize
	for i := 0; i < count; i++ {
		if len(data)-off < LengthSize {
			return nil, fmt.Errorf("%w: packet %d length prefix truncated", ErrMalformedFrame, i)
		}
		n := int(binary.BigEndian.Uint16(data[off : off+LengthSize]))
		off += LengthSize

		if len(data)-off < n {
			return nil, fmt.Errorf("%w: packet %d declares %d bytes, %d left", ErrMalformedFrame, i, n, len(data)-off)
		}
		p := make([]byte, n)
		copy(p, data[off:off+n])
		f.Packets = append(f.Packets, p)
		off += n
	}

	if off != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedFrame, len(data)-off)
	}
	return f, nil
}
