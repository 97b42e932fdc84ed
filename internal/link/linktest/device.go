// Package linktest provides a scripted in-memory device for testing code
// that talks to the player through a link.Transport.
package linktest

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/binaryphile/bbplayer/internal/link"
)

// ErrExhausted is returned by Receive when the script has no more packets.
var ErrExhausted = errors.New("linktest: script exhausted")

type packet struct {
	data []byte
	err  error
}

// Device is a link.Transport that replays queued IN packets and records
// every OUT transfer.
type Device struct {
	in   []packet
	Sent [][]byte // OUT transfers, in order

	// ReceiveSizes records the maxLen of every Receive call.
	ReceiveSizes []int

	// SendErr, when set, fails every Send.
	SendErr error
}

// New creates an empty script.
func New() *Device {
	return &Device{}
}

// Send records data.
func (d *Device) Send(ctx context.Context, data []byte, timeout time.Duration) error {
	if d.SendErr != nil {
		return d.SendErr
	}
	d.Sent = append(d.Sent, append([]byte(nil), data...))
	return nil
}

// Receive pops the next queued packet.
func (d *Device) Receive(ctx context.Context, maxLen int, timeout time.Duration) ([]byte, error) {
	d.ReceiveSizes = append(d.ReceiveSizes, maxLen)
	if len(d.in) == 0 {
		return nil, ErrExhausted
	}
	p := d.in[0]
	d.in = d.in[1:]
	if p.err != nil {
		return nil, p.err
	}
	if len(p.data) > maxLen {
		return nil, fmt.Errorf("linktest: %d byte packet overflows %d byte read", len(p.data), maxLen)
	}
	return p.data, nil
}

// Transfers is the total number of transfers attempted in either direction.
func (d *Device) Transfers() int {
	return len(d.Sent) + len(d.ReceiveSizes)
}

// Pending is the number of queued packets not yet received.
func (d *Device) Pending() int {
	return len(d.in)
}

// QueueRaw queues one IN packet verbatim.
func (d *Device) QueueRaw(b []byte) *Device {
	d.in = append(d.in, packet{data: b})
	return d
}

// QueueError makes the next Receive fail with err.
func (d *Device) QueueError(err error) *Device {
	d.in = append(d.in, packet{err: err})
	return d
}

// QueueReady queues the ready signal.
func (d *Device) QueueReady() *Device {
	return d.QueueRaw(link.ReadySignal[:])
}

// QueueReply queues a length header followed by the payload's encoded
// body split into packets, ending with a short packet.
func (d *Device) QueueReply(payload []byte) *Device {
	d.QueueRaw(link.BuildLengthHeader(len(payload)))
	for _, p := range ReplyPackets(payload) {
		d.QueueRaw(p)
	}
	return d
}

// QueueStatus queues an 8-byte reply whose bytes 4-7 hold code.
func (d *Device) QueueStatus(code int32) *Device {
	return d.QueueReply(StatusReply(code))
}

// StatusReply builds the 8-byte reply carrying a return code or value.
func StatusReply(code int32) []byte {
	reply := make([]byte, 8)
	binary.BigEndian.PutUint32(reply[4:8], uint32(code))
	return reply
}

// ReplyPackets encodes payload as the device would and splits it into
// packets. A body filling whole packets gets an empty terminator.
func ReplyPackets(payload []byte) [][]byte {
	body := link.EncodeReply(payload)
	var pkts [][]byte
	for len(body) >= link.PacketSize {
		pkts = append(pkts, body[:link.PacketSize])
		body = body[link.PacketSize:]
	}
	return append(pkts, body)
}

// Command is a decoded request envelope.
type Command struct {
	Opcode uint32
	Arg    uint32
}

// Commands decodes every OUT transfer that is a piecemeal 8-byte envelope.
func (d *Device) Commands() []Command {
	var cmds []Command
	for _, s := range d.Sent {
		raw, err := link.DecodeSent(s)
		if err != nil || len(raw) != link.CommandSize || len(s) != 11 {
			continue
		}
		cmds = append(cmds, Command{
			Opcode: binary.BigEndian.Uint32(raw[0:4]),
			Arg:    binary.BigEndian.Uint32(raw[4:8]),
		})
	}
	return cmds
}

// Acks counts acknowledgement transfers.
func (d *Device) Acks() int {
	n := 0
	for _, s := range d.Sent {
		if len(s) == 1 && s[0] == link.TagAck {
			n++
		}
	}
	return n
}
