package player

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/binaryphile/bbplayer/internal/link"
	"github.com/binaryphile/bbplayer/internal/nand"
)

// Commands implements the device command set over a link codec. It does
// no session checks; Conn gates access.
type Commands struct {
	codec    *link.Codec
	geom     nand.Geometry
	log      *slog.Logger
	progress ProgressFunc

	numBlocks uint32
	haveCount bool
}

// NewCommands creates a command layer over t.
func NewCommands(t link.Transport, opts ...Option) *Commands {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return newCommands(t, o)
}

func newCommands(t link.Transport, o options) *Commands {
	lo := o.link
	lo.Logger = o.logger
	return &Commands{
		codec:    link.New(t, lo),
		geom:     o.geometry,
		log:      o.logger.With("component", "player"),
		progress: o.progress,
	}
}

// Geometry returns the NAND geometry the commands were built with.
func (c *Commands) Geometry() nand.Geometry {
	return c.geom
}

func (c *Commands) send(ctx context.Context, cmd Command, arg uint32) error {
	if err := c.codec.SendCommand(ctx, uint32(cmd), arg); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

// reply receives an 8-byte reply and returns bytes 4-7.
func (c *Commands) reply(ctx context.Context, cmd Command) (uint32, error) {
	r, err := c.codec.ReceiveReply(ctx, link.CommandSize)
	if err != nil {
		return 0, fmt.Errorf("%s reply: %w", cmd, err)
	}
	if len(r) != link.CommandSize {
		return 0, fmt.Errorf("%s reply: %d bytes: %w", cmd, len(r), link.ErrDesync)
	}
	return binary.BigEndian.Uint32(r[4:8]), nil
}

// status receives an 8-byte reply and fails on a negative return code.
func (c *Commands) status(ctx context.Context, cmd Command) (int32, error) {
	v, err := c.reply(ctx, cmd)
	if err != nil {
		return 0, err
	}
	code := int32(v)
	if code < 0 {
		return code, &CommandError{Command: cmd, Code: code}
	}
	return code, nil
}

func (c *Commands) call(ctx context.Context, cmd Command, arg uint32) (uint32, error) {
	if err := c.send(ctx, cmd, arg); err != nil {
		return 0, err
	}
	return c.reply(ctx, cmd)
}

// NumBlocks returns the device block count, querying it on first use.
func (c *Commands) NumBlocks(ctx context.Context) (uint32, error) {
	if c.haveCount {
		return c.numBlocks, nil
	}
	n, err := c.call(ctx, GetNumBlocks, 0)
	if err != nil {
		return 0, err
	}
	c.numBlocks, c.haveCount = n, true
	c.log.Debug("block count", "blocks", n)
	return n, nil
}

func (c *Commands) checkBlock(n uint32) error {
	if c.haveCount && n >= c.numBlocks {
		return fmt.Errorf("%w: index %d, device has %d blocks", ErrInvalidBlock, n, c.numBlocks)
	}
	return nil
}

// ReadBlock reads block n and its spare, retrying failed attempts.
func (c *Commands) ReadBlock(ctx context.Context, n uint32) (nand.BlockSpare, error) {
	if err := c.checkBlock(n); err != nil {
		return nand.BlockSpare{}, err
	}
	var last error
	for attempt := 1; attempt <= BlockAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nand.BlockSpare{}, err
		}
		bs, err := c.readBlock(ctx, n)
		if err == nil {
			return bs, nil
		}
		last = err
		c.log.Warn("block read failed", "block", n, "attempt", attempt, "err", err)
	}
	return nand.BlockSpare{}, &BlockError{Op: "read", Block: n, Attempts: BlockAttempts, Err: last}
}

func (c *Commands) readBlock(ctx context.Context, n uint32) (nand.BlockSpare, error) {
	if err := c.send(ctx, ReadBlockAndSpare, n); err != nil {
		return nand.BlockSpare{}, err
	}
	if _, err := c.status(ctx, ReadBlockAndSpare); err != nil {
		return nand.BlockSpare{}, err
	}
	bs := nand.BlockSpare{Block: make([]byte, 0, c.geom.BlockSize)}
	for i := range c.geom.ChunksPerBlock() {
		chunk, err := c.codec.ReceiveReply(ctx, c.geom.ChunkSize)
		if err != nil {
			return nand.BlockSpare{}, fmt.Errorf("chunk %d: %w", i, err)
		}
		bs.Block = append(bs.Block, chunk...)
	}
	spare, err := c.codec.ReceiveReply(ctx, c.geom.SpareSize)
	if err != nil {
		return nand.BlockSpare{}, fmt.Errorf("spare: %w", err)
	}
	bs.Spare = spare
	if err := bs.Check(c.geom); err != nil {
		return nand.BlockSpare{}, fmt.Errorf("%w: %v", link.ErrDesync, err)
	}
	return bs, nil
}

// WriteBlock writes block n with its spare. A spare marking the block bad
// succeeds without touching the device.
func (c *Commands) WriteBlock(ctx context.Context, n uint32, block, spare []byte) error {
	bs := nand.BlockSpare{Block: block, Spare: spare}
	if err := bs.Check(c.geom); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}
	if err := c.checkBlock(n); err != nil {
		return err
	}
	if nand.IsBad(spare) {
		c.log.Debug("skipping bad block", "block", n)
		return nil
	}
	out := nand.GoodSpare(len(spare))
	copy(out[:3], spare[:3])

	var last error
	for attempt := 1; attempt <= BlockAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.writeBlock(ctx, n, block, out)
		if err == nil {
			return nil
		}
		last = err
		c.log.Warn("block write failed", "block", n, "attempt", attempt, "err", err)
	}
	return &BlockError{Op: "write", Block: n, Attempts: BlockAttempts, Err: last}
}

func (c *Commands) writeBlock(ctx context.Context, n uint32, block, spare []byte) error {
	if err := c.send(ctx, WriteBlockAndSpare, n); err != nil {
		return err
	}
	if err := c.codec.WaitReady(ctx); err != nil {
		return err
	}
	if err := c.codec.SendChunked(ctx, block); err != nil {
		return fmt.Errorf("block data: %w", err)
	}
	if err := c.codec.WaitReady(ctx); err != nil {
		return err
	}
	if err := c.codec.SendPiecemeal(ctx, spare); err != nil {
		return fmt.Errorf("spare: %w", err)
	}
	_, err := c.status(ctx, WriteBlockAndSpare)
	return err
}

// InitFS tells the device to reinitialise its filesystem state.
func (c *Commands) InitFS(ctx context.Context) error {
	if err := c.send(ctx, InitFS, 0); err != nil {
		return err
	}
	_, err := c.status(ctx, InitFS)
	return err
}

// SetSeqNo sets the device sequence number.
func (c *Commands) SetSeqNo(ctx context.Context, seq uint32) error {
	_, err := c.call(ctx, SetSeqNo, seq)
	return err
}

// SetLED sets the LED state.
func (c *Commands) SetLED(ctx context.Context, value uint32) error {
	_, err := c.call(ctx, SetLED, value)
	return err
}

// BBID returns the console's unique ID.
func (c *Commands) BBID(ctx context.Context) (uint32, error) {
	if err := c.send(ctx, GetBBID, 0); err != nil {
		return 0, err
	}
	code, err := c.status(ctx, GetBBID)
	return uint32(code), err
}

// SetTime sets the device clock.
func (c *Commands) SetTime(ctx context.Context, t time.Time) error {
	payload := TimePayload(t)
	if err := c.send(ctx, SetTime, binary.BigEndian.Uint32(payload[0:4])); err != nil {
		return err
	}
	if _, err := c.status(ctx, SetTime); err != nil {
		return err
	}
	if err := c.codec.SendPiecemeal(ctx, payload[4:8]); err != nil {
		return fmt.Errorf("%s: %w", SetTime, err)
	}
	return nil
}

// TimePayload lays t out as the device clock expects:
// two-digit year, month, day, weekday from Monday, 0, hour, minute, second.
func TimePayload(t time.Time) [8]byte {
	return [8]byte{
		byte(t.Year() % 100),
		byte(t.Month()),
		byte(t.Day()),
		byte((int(t.Weekday()) + 6) % 7),
		0,
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
	}
}

// CheckFileName reports whether name fits the device's 8.3 convention and
// is a valid C string.
func CheckFileName(name string) error {
	if strings.IndexByte(name, 0) >= 0 {
		return &FileNameError{Name: name, Err: ErrFileNameCString}
	}
	base, ext, _ := strings.Cut(name, ".")
	if base == "" {
		return &FileNameError{Name: name, Err: ErrFileNameEmpty}
	}
	if len(base) > 8 || len(ext) > 3 || strings.Contains(ext, ".") {
		return &FileNameError{Name: name, Err: ErrFileNameTooLong}
	}
	return nil
}

// CompareFileChecksum asks the device whether name has the given byte sum
// and size.
func (c *Commands) CompareFileChecksum(ctx context.Context, name string, sum, size uint32) (bool, error) {
	if err := CheckFileName(name); err != nil {
		return false, err
	}
	if err := c.send(ctx, FileChksum, uint32(len(name)+1)); err != nil {
		return false, err
	}
	if err := c.codec.WaitReady(ctx); err != nil {
		return false, err
	}
	padded := make([]byte, (len(name)+1+3)&^3)
	copy(padded, name)
	if err := c.codec.SendPiecemeal(ctx, padded); err != nil {
		return false, fmt.Errorf("%s name: %w", FileChksum, err)
	}
	if err := c.codec.SendCommand(ctx, sum, size); err != nil {
		return false, fmt.Errorf("%s checksum: %w", FileChksum, err)
	}
	v, err := c.reply(ctx, FileChksum)
	if err != nil {
		return false, err
	}
	return v == 0, nil
}

// DumpNAND reads every block in index order. One block failing every
// attempt aborts the dump.
func (c *Commands) DumpNAND(ctx context.Context) (nand.BlockSpare, error) {
	total, err := c.NumBlocks(ctx)
	if err != nil {
		return nand.BlockSpare{}, err
	}
	c.log.Info("dumping NAND", "blocks", total)
	var out nand.BlockSpare
	for n := range total {
		bs, err := c.ReadBlock(ctx, n)
		if err != nil {
			return nand.BlockSpare{}, err
		}
		out.Block = append(out.Block, bs.Block...)
		out.Spare = append(out.Spare, bs.Spare...)
		if c.progress != nil {
			c.progress(n+1, total)
		}
	}
	return out, nil
}
