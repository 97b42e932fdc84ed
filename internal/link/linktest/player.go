package linktest

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/binaryphile/bbplayer/internal/link"
)

// Opcodes the simulator answers. They mirror the device's command set.
const (
	opWriteBlockAndSpare = 0x10
	opReadBlockAndSpare  = 0x11
	opInitFS             = 0x12
	opGetNumBlocks       = 0x15
	opSetSeqNo           = 0x16
	opFileChksum         = 0x1C
	opSetLED             = 0x1D
	opSetTime            = 0x1E
	opGetBBID            = 0x1F
)

type phase int

const (
	phaseCommand phase = iota
	phaseBlock
	phaseSpare
	phaseName
	phaseChecksum
	phaseTime
)

// Player is a link.Transport that behaves like the device end of the link.
// It answers every command the host issues from in-memory NAND and a few
// registers, queuing ready signals where the device would.
//
// Unwritten blocks read back erased (all 0xFF).
type Player struct {
	BlockSize, SpareSize, ChunkSize int

	NumBlocks uint32
	BBID      uint32
	LED       uint32
	SeqNo     uint32
	Time      []byte // last SetTime payload
	InitFS    int    // InitFS calls seen

	// FailReads and FailWrites make that many upcoming block transfers
	// end with a negative return code.
	FailReads  int
	FailWrites int

	// Checksum decides the answer to a file checksum query. Nil matches
	// everything.
	Checksum func(name string, sum, size uint32) bool

	Received []Command // command envelopes, in order
	Names    []string  // names sent with checksum queries

	blocks map[uint32][]byte
	spares map[uint32][]byte

	in      [][]byte
	phase   phase
	target  uint32
	pending []byte
	name    string
	timeHi  []byte
}

// NewPlayer creates a simulated device with the given geometry and block
// count, ready for its first command.
func NewPlayer(blockSize, spareSize, chunkSize int, numBlocks uint32) *Player {
	p := &Player{
		BlockSize: blockSize,
		SpareSize: spareSize,
		ChunkSize: chunkSize,
		NumBlocks: numBlocks,
		blocks:    make(map[uint32][]byte),
		spares:    make(map[uint32][]byte),
	}
	p.ready()
	return p
}

// Block returns a copy of block n and its spare as currently stored.
func (p *Player) Block(n uint32) (block, spare []byte) {
	block, spare = p.erased()
	if b, ok := p.blocks[n]; ok {
		copy(block, b)
	}
	if s, ok := p.spares[n]; ok {
		copy(spare, s)
	}
	return block, spare
}

// SetBlock stores block n directly, bypassing the link.
func (p *Player) SetBlock(n uint32, block, spare []byte) {
	p.blocks[n] = append([]byte(nil), block...)
	p.spares[n] = append([]byte(nil), spare...)
}

// MarkBad sets the bad-block marker in block n's spare.
func (p *Player) MarkBad(n uint32) {
	block, spare := p.Block(n)
	spare[5] = 0x00
	p.SetBlock(n, block, spare)
}

func (p *Player) erased() (block, spare []byte) {
	return bytes.Repeat([]byte{0xFF}, p.BlockSize), bytes.Repeat([]byte{0xFF}, p.SpareSize)
}

// Send consumes one OUT transfer.
func (p *Player) Send(ctx context.Context, data []byte, timeout time.Duration) error {
	if len(data) == 1 && data[0] == link.TagAck {
		return nil
	}
	switch p.phase {
	case phaseBlock:
		return p.receiveChunk(data)
	case phaseSpare:
		spare, err := link.DecodeSent(data)
		if err != nil {
			return err
		}
		p.phase = phaseCommand
		if p.FailWrites > 0 {
			p.FailWrites--
			p.status(-1)
		} else {
			p.SetBlock(p.target, p.pending, spare)
			p.status(0)
		}
		p.ready()
		return nil
	case phaseName:
		raw, err := link.DecodeSent(data)
		if err != nil {
			return err
		}
		if i := bytes.IndexByte(raw, 0); i >= 0 {
			raw = raw[:i]
		}
		p.name = string(raw)
		p.Names = append(p.Names, p.name)
		p.phase = phaseChecksum
		p.ready()
		return nil
	case phaseChecksum:
		raw, err := p.envelope(data)
		if err != nil {
			return err
		}
		sum, size := binary.BigEndian.Uint32(raw[0:4]), binary.BigEndian.Uint32(raw[4:8])
		p.phase = phaseCommand
		if p.Checksum == nil || p.Checksum(p.name, sum, size) {
			p.status(0)
		} else {
			p.status(1)
		}
		p.ready()
		return nil
	case phaseTime:
		raw, err := link.DecodeSent(data)
		if err != nil {
			return err
		}
		p.Time = append(p.timeHi, raw...)
		p.phase = phaseCommand
		p.ready()
		return nil
	}

	raw, err := p.envelope(data)
	if err != nil {
		return err
	}
	cmd := Command{
		Opcode: binary.BigEndian.Uint32(raw[0:4]),
		Arg:    binary.BigEndian.Uint32(raw[4:8]),
	}
	p.Received = append(p.Received, cmd)
	p.handle(cmd)
	return nil
}

func (p *Player) envelope(data []byte) ([]byte, error) {
	raw, err := link.DecodeSent(data)
	if err != nil {
		return nil, err
	}
	if len(raw) != link.CommandSize {
		return nil, fmt.Errorf("linktest: %d byte transfer where a command was expected", len(raw))
	}
	return raw, nil
}

func (p *Player) receiveChunk(data []byte) error {
	if len(data) < 2 || data[0] != link.TagSendChunk || int(data[1]) != len(data)-2 {
		return fmt.Errorf("linktest: malformed block chunk % x", data[:min(len(data), 2)])
	}
	p.pending = append(p.pending, data[2:]...)
	switch {
	case len(p.pending) == p.BlockSize:
		p.phase = phaseSpare
		p.ready()
	case len(p.pending) > p.BlockSize:
		return fmt.Errorf("linktest: block overflow, %d bytes", len(p.pending))
	}
	return nil
}

func (p *Player) handle(cmd Command) {
	switch cmd.Opcode {
	case opReadBlockAndSpare:
		if p.FailReads > 0 {
			p.FailReads--
			p.status(-1)
			break
		}
		block, spare := p.Block(cmd.Arg)
		p.status(0)
		for off := 0; off < len(block); off += p.ChunkSize {
			p.reply(block[off : off+p.ChunkSize])
		}
		p.reply(spare)
	case opWriteBlockAndSpare:
		p.target = cmd.Arg
		p.pending = nil
		p.phase = phaseBlock
	case opInitFS:
		p.InitFS++
		p.status(0)
	case opGetNumBlocks:
		p.status(int32(p.NumBlocks))
	case opSetSeqNo:
		p.SeqNo = cmd.Arg
		p.status(0)
	case opFileChksum:
		p.phase = phaseName
	case opSetLED:
		p.LED = cmd.Arg
		p.status(0)
	case opSetTime:
		p.timeHi = binary.BigEndian.AppendUint32(nil, cmd.Arg)
		p.status(0)
		p.phase = phaseTime
		return
	case opGetBBID:
		p.status(int32(p.BBID))
	default:
		p.status(-1)
	}
	p.ready()
}

func (p *Player) ready() {
	p.in = append(p.in, link.ReadySignal[:])
}

func (p *Player) status(code int32) {
	p.reply(StatusReply(code))
}

func (p *Player) reply(payload []byte) {
	p.in = append(p.in, link.BuildLengthHeader(len(payload)))
	p.in = append(p.in, ReplyPackets(payload)...)
}

// Receive returns the next IN packet the device has produced.
func (p *Player) Receive(ctx context.Context, maxLen int, timeout time.Duration) ([]byte, error) {
	if len(p.in) == 0 {
		return nil, ErrExhausted
	}
	b := p.in[0]
	p.in = p.in[1:]
	if len(b) > maxLen {
		return nil, fmt.Errorf("linktest: %d byte packet overflows %d byte read", len(b), maxLen)
	}
	return b, nil
}

// Close is a no-op so a Player can stand in for an opened device.
func (p *Player) Close() error {
	return nil
}
