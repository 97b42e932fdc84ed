// Package nand describes the flash geometry of the player and the
// block+spare pairs exchanged with it.
package nand

import (
	"errors"
	"fmt"
)

// Default geometry of the player's 64 MiB NAND part.
const (
	DefaultBlockSize = 0x4000
	DefaultSpareSize = 0x10
	DefaultChunkSize = 0x1000
)

// BadBlockOffset is the spare byte holding the good/bad marker.
const BadBlockOffset = 5

// GoodBlockMarker is the marker value of a writable block.
const GoodBlockMarker = 0xFF

// Geometry holds the device-specific sizes used by block transfers.
type Geometry struct {
	BlockSize int `toml:"block_size" json:"block_size"`
	SpareSize int `toml:"spare_size" json:"spare_size"`
	ChunkSize int `toml:"chunk_size" json:"chunk_size"` // block bodies are read in replies of this size
}

// DefaultGeometry returns the geometry of the retail player.
func DefaultGeometry() Geometry {
	return Geometry{
		BlockSize: DefaultBlockSize,
		SpareSize: DefaultSpareSize,
		ChunkSize: DefaultChunkSize,
	}
}

// Validate checks the invariants the command layer relies on.
func (g Geometry) Validate() error {
	if g.BlockSize <= 0 || g.ChunkSize <= 0 {
		return errors.New("block and chunk sizes must be positive")
	}
	if g.BlockSize%g.ChunkSize != 0 {
		return fmt.Errorf("block size 0x%x is not a multiple of chunk size 0x%x", g.BlockSize, g.ChunkSize)
	}
	if g.SpareSize <= BadBlockOffset {
		return fmt.Errorf("spare size %d cannot hold the bad block marker", g.SpareSize)
	}
	return nil
}

// ChunksPerBlock is the number of chunk replies making up one block body.
func (g Geometry) ChunksPerBlock() int {
	return g.BlockSize / g.ChunkSize
}

// BlockSpare is one NAND block's main data and its out-of-band spare bytes.
type BlockSpare struct {
	Block []byte
	Spare []byte
}

// Check reports whether b matches the geometry's sizes.
func (b BlockSpare) Check(g Geometry) error {
	if len(b.Block) != g.BlockSize {
		return fmt.Errorf("block is %d bytes, want %d", len(b.Block), g.BlockSize)
	}
	if len(b.Spare) != g.SpareSize {
		return fmt.Errorf("spare is %d bytes, want %d", len(b.Spare), g.SpareSize)
	}
	return nil
}

// IsBad reports whether the spare marks its block bad.
func IsBad(spare []byte) bool {
	return len(spare) <= BadBlockOffset || spare[BadBlockOffset] != GoodBlockMarker
}

// GoodSpare returns a spare region of the given size marking a good block.
func GoodSpare(size int) []byte {
	spare := make([]byte, size)
	for i := range spare {
		spare[i] = 0xFF
	}
	return spare
}
