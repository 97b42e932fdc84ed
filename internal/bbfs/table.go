package bbfs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// On-NAND layout of one filesystem block. All integers are big-endian.
const (
	BlockSize     = 0x4000
	FATEntries    = 0x1000
	EntryCount    = 409
	EntrySize     = 20
	entriesOffset = 0x2000
	footerOffset  = 0x3FF4

	// WordSum is the 16-bit sum of every word in a valid block.
	WordSum = 0xCAD7
)

// FAT entry values. Anything else is the index of the next block in the chain.
const (
	Free     uint16 = 0x0000
	ChainEnd uint16 = 0xFFFF
	Bad      uint16 = 0xFFFE
	Reserved uint16 = 0xFFFD
)

var magic = []byte("BBFS")

// Entry is one file table slot.
type Entry struct {
	Name  string // 8.3, "NAME.EXT" or "NAME"
	Valid bool
	Start uint16
	Size  uint32
}

// Table is one filesystem snapshot: the FAT, the file table and footer.
type Table struct {
	FAT     [FATEntries]uint16
	Entries [EntryCount]Entry
	SeqNo   uint32
	Link    uint16
}

// NewTable returns an empty table for a device of numBlocks blocks.
// Block 0, the filesystem area and anything past the device end are
// reserved, so a chain never starts at 0.
func NewTable(numBlocks uint32) *Table {
	t := &Table{}
	t.FAT[0] = Reserved
	for i := range t.FAT {
		if uint32(i)+Slots >= numBlocks {
			t.FAT[i] = Reserved
		}
	}
	return t
}

// ParseTable parses a raw filesystem block.
//
// This is a pure function: input bytes → Table.
func ParseTable(raw []byte) (*Table, error) {
	if len(raw) != BlockSize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrNotTable, len(raw), BlockSize)
	}
	if !bytes.Equal(raw[footerOffset:footerOffset+4], magic) {
		return nil, fmt.Errorf("%w: magic % x", ErrNotTable, raw[footerOffset:footerOffset+4])
	}
	if sum := wordSum(raw); sum != WordSum {
		return nil, fmt.Errorf("%w: word sum %#04x", ErrNotTable, sum)
	}

	t := &Table{}
	for i := range t.FAT {
		t.FAT[i] = binary.BigEndian.Uint16(raw[i*2:])
	}

	// Entry format:
	// Bytes 0-7: name, NUL padded
	// Bytes 8-10: extension, NUL padded
	// Byte 11: valid
	// Bytes 12-13: first block
	// Bytes 14-15: padding
	// Bytes 16-19: size in bytes
	for i := range t.Entries {
		e := raw[entriesOffset+i*EntrySize : entriesOffset+(i+1)*EntrySize]
		if e[11] == 0 {
			continue
		}
		name := cstring(e[0:8])
		if ext := cstring(e[8:11]); ext != "" {
			name += "." + ext
		}
		t.Entries[i] = Entry{
			Name:  name,
			Valid: true,
			Start: binary.BigEndian.Uint16(e[12:14]),
			Size:  binary.BigEndian.Uint32(e[16:20]),
		}
	}

	// Footer: magic, sequence number, link, checksum word
	t.SeqNo = binary.BigEndian.Uint32(raw[footerOffset+4:])
	t.Link = binary.BigEndian.Uint16(raw[footerOffset+8:])
	return t, nil
}

// Marshal lays the table out as a filesystem block, filling in the
// checksum word so the block sums to WordSum.
func (t *Table) Marshal() []byte {
	raw := make([]byte, BlockSize)
	for i, v := range t.FAT {
		binary.BigEndian.PutUint16(raw[i*2:], v)
	}
	for i, ent := range t.Entries {
		if !ent.Valid {
			continue
		}
		e := raw[entriesOffset+i*EntrySize : entriesOffset+(i+1)*EntrySize]
		base, ext, _ := strings.Cut(ent.Name, ".")
		copy(e[0:8], base)
		copy(e[8:11], ext)
		e[11] = 1
		binary.BigEndian.PutUint16(e[12:14], ent.Start)
		binary.BigEndian.PutUint32(e[16:20], ent.Size)
	}
	copy(raw[footerOffset:], magic)
	binary.BigEndian.PutUint32(raw[footerOffset+4:], t.SeqNo)
	binary.BigEndian.PutUint16(raw[footerOffset+8:], t.Link)
	binary.BigEndian.PutUint16(raw[BlockSize-2:], WordSum-wordSum(raw))
	return raw
}

// Lookup returns the index of the valid entry called name, ignoring case.
func (t *Table) Lookup(name string) (int, bool) {
	for i, e := range t.Entries {
		if e.Valid && strings.EqualFold(e.Name, name) {
			return i, true
		}
	}
	return -1, false
}

// Chain follows the FAT from start to the end-of-chain marker.
func (t *Table) Chain(start uint16) ([]uint16, error) {
	var blocks []uint16
	for b := start; b != ChainEnd; b = t.FAT[b] {
		if b == Free || b == Bad || b == Reserved || int(b) >= FATEntries {
			return nil, fmt.Errorf("%w: chain from %d reaches %#04x", ErrCorrupt, start, b)
		}
		if len(blocks) == FATEntries {
			return nil, fmt.Errorf("%w: chain from %d loops", ErrCorrupt, start)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// free returns a chain's blocks to the free pool.
func (t *Table) free(blocks []uint16) {
	for _, b := range blocks {
		t.FAT[b] = Free
	}
}

func wordSum(raw []byte) uint16 {
	var sum uint16
	for i := 0; i+1 < len(raw); i += 2 {
		sum += binary.BigEndian.Uint16(raw[i:])
	}
	return sum
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Checksum is the byte sum the device compares file contents against.
func Checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return sum
}
