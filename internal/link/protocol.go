package link

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Link-level tag bytes
const (
	TagReady         = 0x15
	TagLengthHeader  = 0x1B
	TagPiecemealRecv = 0x1C // received group tags are 0x1D-0x1F
	TagPiecemealSend = 0x40 // sent group tags are 0x41-0x43
	TagAck           = 0x44
	TagSendChunk     = 0x63
)

// Fixed protocol constants
const (
	Timeout            = time.Second
	PacketSize         = 0x80
	SendChunkSize      = 0x100
	PiecemealGroupSize = 3
	CommandSize        = 8
	LengthHeaderSize   = 4
)

// ReadySignal is emitted by the device when it can accept a new request.
var ReadySignal = [4]byte{TagReady, 0x00, 0x00, 0x00}

// IsReadySignal reports whether a 4-byte read is the ready signal.
func IsReadySignal(b []byte) bool {
	return len(b) == len(ReadySignal) && [4]byte(b) == ReadySignal
}

// EncodePiecemeal inflates a short control payload for sending.
// Each group of up to 3 bytes is prefixed by 0x40 plus the group length.
func EncodePiecemeal(data []byte) []byte {
	return encodeGroups(data, TagPiecemealSend)
}

// EncodeReply inflates a payload the way the device does for replies.
// Used by simulated devices; the host only ever decodes this form.
func EncodeReply(data []byte) []byte {
	return encodeGroups(data, TagPiecemealRecv)
}

func encodeGroups(data []byte, base byte) []byte {
	groups := (len(data) + PiecemealGroupSize - 1) / PiecemealGroupSize
	out := make([]byte, 0, len(data)+groups)
	for len(data) > 0 {
		n := min(len(data), PiecemealGroupSize)
		out = append(out, base+byte(n))
		out = append(out, data[:n]...)
		data = data[n:]
	}
	return out
}

// DecodePiecemeal decodes a received reply body to exactly expected bytes.
// Tags outside 0x1D-0x1F are framing errors. Running out of input, or a
// final group overshooting expected, means the link is out of sync.
func DecodePiecemeal(data []byte, expected int) ([]byte, error) {
	return decodeGroups(data, expected, TagPiecemealRecv)
}

// DecodeSent decodes a payload produced by EncodePiecemeal.
func DecodeSent(data []byte) ([]byte, error) {
	return decodeGroups(data, -1, TagPiecemealSend)
}

func decodeGroups(data []byte, expected int, base byte) ([]byte, error) {
	capHint := expected
	if capHint < 0 {
		capHint = len(data)
	}
	out := make([]byte, 0, capHint)
	i := 0
	for (expected < 0 || len(out) < expected) && i < len(data) {
		tag := data[i]
		if tag <= base || tag > base+PiecemealGroupSize {
			return nil, fmt.Errorf("%w: unexpected tag 0x%02x at offset %d", ErrFraming, tag, i)
		}
		n := int(tag - base)
		if i+1+n > len(data) {
			return nil, fmt.Errorf("%w: group at offset %d truncated", ErrDesync, i)
		}
		out = append(out, data[i+1:i+1+n]...)
		i += 1 + n
	}
	if expected >= 0 && len(out) != expected {
		return nil, fmt.Errorf("%w: decoded %d bytes, want %d", ErrDesync, len(out), expected)
	}
	return out, nil
}

// InflatedSize is the receive buffer size needed for a piecemeal body
// carrying n raw bytes, with room for the terminating short packet.
func InflatedSize(n int) int {
	return n + n/3 + (3-n%3)%3 + 1
}

// BuildCommand creates the universal request envelope:
// big-endian opcode followed by big-endian argument.
func BuildCommand(opcode, arg uint32) []byte {
	cmd := make([]byte, CommandSize)
	binary.BigEndian.PutUint32(cmd[0:4], opcode)
	binary.BigEndian.PutUint32(cmd[4:8], arg)
	return cmd
}

// BuildSendChunks splits a bulk payload into [0x63][len][bytes] frames.
func BuildSendChunks(data []byte) [][]byte {
	var frames [][]byte
	for len(data) > 0 {
		n := min(len(data), SendChunkSize-2)
		frame := make([]byte, 0, n+2)
		frame = append(frame, TagSendChunk, byte(n))
		frame = append(frame, data[:n]...)
		frames = append(frames, frame)
		data = data[n:]
	}
	return frames
}

// BuildLengthHeader creates the 4-byte header announcing an n-byte reply.
func BuildLengthHeader(n int) []byte {
	hdr := make([]byte, LengthHeaderSize)
	binary.BigEndian.PutUint32(hdr, uint32(n)&0x00FFFFFF)
	hdr[0] = TagLengthHeader
	return hdr
}

// ParseLengthHeader extracts the body length from a reply header.
func ParseLengthHeader(hdr []byte) (int, error) {
	if len(hdr) != LengthHeaderSize {
		return 0, fmt.Errorf("%w: length header is %d bytes", ErrFraming, len(hdr))
	}
	if hdr[0] != TagLengthHeader {
		return 0, fmt.Errorf("%w: length header tag 0x%02x", ErrFraming, hdr[0])
	}
	return int(binary.BigEndian.Uint32(hdr) & 0x00FFFFFF), nil
}
