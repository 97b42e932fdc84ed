// Package bbfs reads and updates the player's on-NAND filesystem: a FAT and
// file table stored in one block, rotated through the last Slots blocks of
// the device with an increasing sequence number.
package bbfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/binaryphile/bbplayer/internal/nand"
	"github.com/binaryphile/bbplayer/internal/player"
)

// Slots is the number of blocks at the end of the device holding
// filesystem snapshots.
const Slots = 16

// BlockDevice is the block-level access the filesystem needs.
// player.Commands satisfies it.
type BlockDevice interface {
	Geometry() nand.Geometry
	NumBlocks(ctx context.Context) (uint32, error)
	ReadBlock(ctx context.Context, n uint32) (nand.BlockSpare, error)
	WriteBlock(ctx context.Context, n uint32, block, spare []byte) error
	CompareFileChecksum(ctx context.Context, name string, sum, size uint32) (bool, error)
}

// FS is the filesystem on one device. It holds the current snapshot, its
// raw block and the slot it was read from.
type FS struct {
	dev BlockDevice
	log *slog.Logger

	numBlocks uint32
	slot      int // index of the current snapshot within the filesystem area
	table     *Table
	raw       []byte
	bad       [Slots]bool
}

var _ player.Filesystem = (*FS)(nil)

// New creates an unloaded filesystem over dev.
func New(dev BlockDevice, log *slog.Logger) *FS {
	if log == nil {
		log = slog.Default()
	}
	return &FS{dev: dev, log: log.With("component", "bbfs"), slot: -1}
}

// Factory adapts New for player.WithFilesystem.
func Factory(log *slog.Logger) player.FilesystemFactory {
	return func(c *player.Commands) player.Filesystem {
		return New(c, log)
	}
}

func (f *FS) base() uint32 {
	return f.numBlocks - Slots
}

// Load reads every filesystem slot and keeps the valid snapshot with the
// highest sequence number.
func (f *FS) Load(ctx context.Context) error {
	if g := f.dev.Geometry(); g.BlockSize != BlockSize {
		return fmt.Errorf("%w: block size %#x", ErrGeometry, g.BlockSize)
	}
	n, err := f.dev.NumBlocks(ctx)
	if err != nil {
		return err
	}
	if n <= Slots || n > FATEntries {
		return fmt.Errorf("%w: %d blocks", ErrGeometry, n)
	}
	f.numBlocks = n

	var best *Table
	var bestRaw []byte
	bestSlot := -1
	for i := range Slots {
		blk := f.base() + uint32(i)
		bs, err := f.dev.ReadBlock(ctx, blk)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			f.log.Warn("filesystem slot unreadable", "slot", i, "block", blk, "err", err)
			continue
		}
		if nand.IsBad(bs.Spare) {
			f.bad[i] = true
			continue
		}
		t, err := ParseTable(bs.Block)
		if err != nil {
			f.log.Debug("filesystem slot skipped", "slot", i, "err", err)
			continue
		}
		if best == nil || t.SeqNo > best.SeqNo {
			best, bestRaw, bestSlot = t, bs.Block, i
		}
	}
	if best == nil {
		return ErrNoFilesystem
	}
	f.table, f.raw, f.slot = best, bestRaw, bestSlot
	f.log.Info("filesystem loaded", "slot", bestSlot, "seqno", best.SeqNo)
	return nil
}

func (f *FS) loaded() error {
	if f.table == nil {
		return ErrNotLoaded
	}
	return nil
}

// ListFiles returns every valid file entry in table order.
func (f *FS) ListFiles() ([]player.FileInfo, error) {
	if err := f.loaded(); err != nil {
		return nil, err
	}
	var files []player.FileInfo
	for _, e := range f.table.Entries {
		if e.Valid {
			files = append(files, player.FileInfo{Name: e.Name, Size: e.Size, Start: e.Start})
		}
	}
	return files, nil
}

// FileBlocks returns the block chain holding name.
func (f *FS) FileBlocks(name string) ([]uint16, bool, error) {
	if err := f.loaded(); err != nil {
		return nil, false, err
	}
	i, ok := f.table.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	blocks, err := f.chain(f.table, f.table.Entries[i])
	return blocks, true, err
}

func (f *FS) chain(t *Table, e Entry) ([]uint16, error) {
	if e.Size == 0 {
		return nil, nil
	}
	blocks, err := t.Chain(e.Start)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.Name, err)
	}
	for _, b := range blocks {
		if uint32(b) >= f.base() {
			return nil, fmt.Errorf("%w: %s uses block %d", ErrCorrupt, e.Name, b)
		}
	}
	if need := blocksFor(int(e.Size)); len(blocks) < need {
		return nil, fmt.Errorf("%w: %s has %d blocks for %d bytes", ErrCorrupt, e.Name, len(blocks), e.Size)
	}
	return blocks, nil
}

// Dump returns the current snapshot block byte for byte as it is stored
// on the device.
func (f *FS) Dump() ([]byte, error) {
	if err := f.loaded(); err != nil {
		return nil, err
	}
	return slices.Clone(f.raw), nil
}

// ReadFile reads name's contents.
func (f *FS) ReadFile(ctx context.Context, name string) ([]byte, bool, error) {
	if err := f.loaded(); err != nil {
		return nil, false, err
	}
	i, ok := f.table.Lookup(name)
	if !ok {
		return nil, false, nil
	}
	e := f.table.Entries[i]
	blocks, err := f.chain(f.table, e)
	if err != nil {
		return nil, true, err
	}
	data := make([]byte, 0, len(blocks)*BlockSize)
	for _, b := range blocks {
		bs, err := f.dev.ReadBlock(ctx, uint32(b))
		if err != nil {
			return nil, true, err
		}
		data = append(data, bs.Block...)
	}
	return data[:e.Size], true, nil
}

// WriteFile stores data as name, replacing any existing file, and has the
// device confirm the contents by checksum.
func (f *FS) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := f.loaded(); err != nil {
		return err
	}
	if err := player.CheckFileName(name); err != nil {
		return err
	}
	g := f.dev.Geometry()

	t := *f.table
	var old []uint16
	slot, exists := t.Lookup(name)
	if exists {
		var err error
		if old, err = f.chain(&t, t.Entries[slot]); err != nil {
			return err
		}
		name = t.Entries[slot].Name
	} else {
		if slot = t.emptyEntry(); slot < 0 {
			return ErrDirectoryFull
		}
		name = strings.ToUpper(name)
	}

	// allocate before freeing so the current snapshot stays intact until
	// the new one is persisted
	blocks, err := f.allocate(&t, blocksFor(len(data)))
	if err != nil {
		return err
	}
	t.free(old)
	for i, b := range blocks {
		chunk := make([]byte, BlockSize)
		copy(chunk, data[i*BlockSize:])
		if err := f.dev.WriteBlock(ctx, uint32(b), chunk, nand.GoodSpare(g.SpareSize)); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	start := ChainEnd
	if len(blocks) > 0 {
		start = blocks[0]
		for i, b := range blocks {
			if i+1 < len(blocks) {
				t.FAT[b] = blocks[i+1]
			} else {
				t.FAT[b] = ChainEnd
			}
		}
	}
	t.Entries[slot] = Entry{Name: name, Valid: true, Start: start, Size: uint32(len(data))}
	if err := f.persist(ctx, &t); err != nil {
		return err
	}

	ok, err := f.dev.CompareFileChecksum(ctx, name, Checksum(data), uint32(len(data)))
	if err != nil {
		return fmt.Errorf("verify %s: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrChecksumMismatch)
	}
	f.log.Info("file written", "name", name, "size", len(data), "blocks", len(blocks))
	return nil
}

// DeleteFile removes name and frees its blocks. Deleting an absent file
// does nothing.
func (f *FS) DeleteFile(ctx context.Context, name string) error {
	if err := f.loaded(); err != nil {
		return err
	}
	t := *f.table
	i, ok := t.Lookup(name)
	if !ok {
		return nil
	}
	blocks, err := f.chain(&t, t.Entries[i])
	if err != nil {
		return err
	}
	t.free(blocks)
	t.Entries[i] = Entry{}
	if err := f.persist(ctx, &t); err != nil {
		return err
	}
	f.log.Info("file deleted", "name", name, "blocks", len(blocks))
	return nil
}

// Stats counts blocks by FAT state, up to the device end.
func (f *FS) Stats() (player.Stats, error) {
	if err := f.loaded(); err != nil {
		return player.Stats{}, err
	}
	s := player.Stats{SeqNo: f.table.SeqNo}
	for _, v := range f.table.FAT[:f.numBlocks] {
		switch v {
		case Free:
			s.Free++
		case Bad:
			s.Bad++
		default:
			s.Used++
		}
	}
	return s, nil
}

func (t *Table) emptyEntry() int {
	for i, e := range t.Entries {
		if !e.Valid {
			return i
		}
	}
	return -1
}

func (f *FS) allocate(t *Table, n int) ([]uint16, error) {
	var blocks []uint16
	for b := uint32(1); b < f.base() && len(blocks) < n; b++ {
		if t.FAT[b] == Free {
			blocks = append(blocks, uint16(b))
		}
	}
	if len(blocks) < n {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrNoSpace, n, len(blocks))
	}
	return blocks, nil
}

// persist writes t to the next good slot after the current one with the
// next sequence number, and makes it current.
func (f *FS) persist(ctx context.Context, t *Table) error {
	t.SeqNo = f.table.SeqNo + 1
	raw := t.Marshal()
	spare := nand.GoodSpare(f.dev.Geometry().SpareSize)

	var errs []error
	for k := 1; k <= Slots; k++ {
		slot := (f.slot + k) % Slots
		if f.bad[slot] {
			continue
		}
		blk := f.base() + uint32(slot)
		if err := f.dev.WriteBlock(ctx, blk, raw, spare); err != nil {
			if ctx.Err() != nil {
				return err
			}
			f.log.Warn("filesystem slot write failed", "slot", slot, "block", blk, "err", err)
			errs = append(errs, err)
			continue
		}
		f.table, f.raw, f.slot = t, raw, slot
		f.log.Debug("filesystem persisted", "slot", slot, "seqno", t.SeqNo)
		return nil
	}
	return fmt.Errorf("persist filesystem: %w", errors.Join(append([]error{ErrNoSlot}, errs...)...))
}

func blocksFor(size int) int {
	return (size + BlockSize - 1) / BlockSize
}
