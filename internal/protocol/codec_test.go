package protocol_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/1ureka/netshim/internal/protocol"
)

// TestEncodeDecodeRoundTrip verifies that decoding reproduces the exact
// payloads, in order, byte for byte.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name    string
		seq     uint32
		packets [][]byte
	}{
		{"single packet", 1, [][]byte{[]byte("hello world")}},
		{"sizes 10, 0, 4", 42, [][]byte{make([]byte, 10), {}, []byte("abcd")}},
		{"only empty packets", 7, [][]byte{{}, {}}},
		{"max seq", 0xFFFFFFFF, [][]byte{[]byte("x")}},
		{"largest packet", 3, [][]byte{bytes.Repeat([]byte{0xAB}, protocol.MaxPacketSize)}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := &protocol.Frame{SeqNum: tc.seq, Packets: tc.packets}

			encoded, err := protocol.Encode(in)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if len(encoded) != in.EncodedSize() {
				t.Errorf("encoded size: got %d, want %d", len(encoded), in.EncodedSize())
			}

			decoded, err := protocol.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if decoded.SeqNum != tc.seq {
				t.Errorf("SeqNum mismatch: got %d, want %d", decoded.SeqNum, tc.seq)
			}
			if len(decoded.Packets) != len(tc.packets) {
				t.Fatalf("packet count: got %d, want %d", len(decoded.Packets), len(tc.packets))
			}
			for i := range tc.packets {
				if !bytes.Equal(decoded.Packets[i], tc.packets[i]) {
					t.Errorf("packet %d mismatch", i)
				}
			}
		})
	}
}

// TestRoundTripManyShapes sweeps packet counts and sizes deterministically.
func TestRoundTripManyShapes(t *testing.T) {
	for count := 1; count <= protocol.MaxPackets; count += 37 {
		t.Run(fmt.Sprintf("%d packets", count), func(t *testing.T) {
			packets := make([][]byte, count)
			for i := range packets {
				packets[i] = make([]byte, (i*131)%1400)
				for j := range packets[i] {
					packets[i][j] = byte(i ^ j)
				}
			}

			encoded, err := protocol.Encode(&protocol.Frame{SeqNum: uint32(count), Packets: packets})
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			decoded, err := protocol.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			for i := range packets {
				if !bytes.Equal(decoded.Packets[i], packets[i]) {
					t.Fatalf("packet %d mismatch", i)
				}
			}
		})
	}
}

func TestEncodeRejectsInvalidBatches(t *testing.T) {
	testCases := []struct {
		name    string
		packets [][]byte
		want    error
	}{
		{"empty batch", nil, protocol.ErrEmptyBatch},
		{"too many packets", make([][]byte, protocol.MaxPackets+1), protocol.ErrTooManyPackets},
		{"oversized packet", [][]byte{make([]byte, protocol.MaxPacketSize+1)}, protocol.ErrPacketTooLarge},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := protocol.Encode(&protocol.Frame{SeqNum: 1, Packets: tc.packets})
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNewFrameChecksDeclaredSizes(t *testing.T) {
	packets := [][]byte{[]byte("abc"), []byte("de")}

	if _, err := protocol.NewFrame(1, packets, []int{3, 2}); err != nil {
		t.Fatalf("NewFrame failed: %v", err)
	}
	if _, err := protocol.NewFrame(1, packets, []int{3, 5}); !errors.Is(err, protocol.ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch, got %v", err)
	}
	if _, err := protocol.NewFrame(1, packets, []int{3}); !errors.Is(err, protocol.ErrSizeMismatch) {
		t.Fatalf("expected ErrSizeMismatch for count mismatch, got %v", err)
	}
}

// TestDecodeMalformed verifies that inconsistent framing is always rejected
// with ErrMalformedFrame.
func TestDecodeMalformed(t *testing.T) {
	valid, err := protocol.Encode(&protocol.Frame{SeqNum: 5, Packets: [][]byte{[]byte("abcd"), []byte("ef")}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	countTooHigh := bytes.Clone(valid)
	binary.BigEndian.PutUint16(countTooHigh[5:7], 3)

	countTooLow := bytes.Clone(valid)
	binary.BigEndian.PutUint16(countTooLow[5:7], 1)

	zeroCount := bytes.Clone(valid)
	binary.BigEndian.PutUint16(zeroCount[5:7], 0)

	badLength := bytes.Clone(valid)
	binary.BigEndian.PutUint16(badLength[protocol.HeaderSize:], 200)

	badVersion := bytes.Clone(valid)
	badVersion[0] = 0x7F

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"short header", valid[:protocol.HeaderSize-1]},
		{"header only", valid[:protocol.HeaderSize]},
		{"truncated payload", valid[:len(valid)-1]},
		{"count higher than encoded", countTooHigh},
		{"count lower than encoded", countTooLow},
		{"zero count", zeroCount},
		{"length exceeds frame", badLength},
		{"unknown version", badVersion},
		{"trailing bytes", append(bytes.Clone(valid), 0x00)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := protocol.Decode(tc.data)
			if !errors.Is(err, protocol.ErrMalformedFrame) {
				t.Fatalf("expected ErrMalformedFrame, got %v", err)
			}
		})
	}
}

// TestDecodePreservesPayload verifies that decoded payloads are copied and not
// aliased to the input buffer.
func TestDecodePreservesPayload(t *testing.T) {
	encoded, err := protocol.Encode(&protocol.Frame{SeqNum: 10, Packets: [][]byte{[]byte("original")}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := protocol.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	encoded[protocol.HeaderSize+protocol.LengthSize] = 0xFF

	if !bytes.Equal(decoded.Packets[0], []byte("original")) {
		t.Errorf("Payload was incorrectly aliased: got %v", decoded.Packets[0])
	}
}

func TestPayloadBytes(t *testing.T) {
	f := &protocol.Frame{Packets: [][]byte{make([]byte, 10), {}, make([]byte, 4)}}
	if got := f.PayloadBytes(); got != 14 {
		t.Errorf("PayloadBytes: got %d, want 14", got)
	}
	if got := f.EncodedSize(); got != protocol.HeaderSize+3*protocol.LengthSize+14 {
		t.Errorf("EncodedSize: got %d", got)
	}
}
