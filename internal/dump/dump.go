// Package dump stores whole-device NAND images on the host: raw block and
// spare files plus a JSON manifest describing them.
package dump

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/binaryphile/bbplayer/internal/nand"
)

// File names inside a dump directory.
const (
	NANDFile     = "nand.bin"
	SpareFile    = "spare.bin"
	ManifestFile = "manifest.json"
)

// ErrInvalid is returned when a dump does not match its manifest.
var ErrInvalid = errors.New("invalid dump")

// Manifest describes a dump.
type Manifest struct {
	BBID        uint32        `json:"bbid"`
	Blocks      uint32        `json:"blocks"`
	Geometry    nand.Geometry `json:"geometry"`
	Created     time.Time     `json:"created"`
	Fingerprint string        `json:"fingerprint"`
	BadBlocks   []uint32      `json:"badBlocks,omitempty"`
}

// Dump is a whole-device image and its manifest.
type Dump struct {
	Manifest Manifest
	Data     nand.BlockSpare
}

// New builds a dump of data, recording bad blocks and the fingerprint.
func New(bbid uint32, g nand.Geometry, data nand.BlockSpare, created time.Time) (*Dump, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if len(data.Block)%g.BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of blocks", ErrInvalid, len(data.Block))
	}
	d := &Dump{
		Manifest: Manifest{
			BBID:        bbid,
			Blocks:      uint32(len(data.Block) / g.BlockSize),
			Geometry:    g,
			Created:     created.UTC(),
			Fingerprint: Fingerprint(data),
		},
		Data: data,
	}
	if errs := d.Validate(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	for n := range d.Manifest.Blocks {
		if _, spare := d.Block(n); nand.IsBad(spare) {
			d.Manifest.BadBlocks = append(d.Manifest.BadBlocks, n)
		}
	}
	return d, nil
}

// Fingerprint is the hex SHA-1 of the block data followed by the spare data.
// This is a pure function.
func Fingerprint(data nand.BlockSpare) string {
	h := sha1.New()
	h.Write(data.Block)
	h.Write(data.Spare)
	return hex.EncodeToString(h.Sum(nil))
}

// Block returns block n and its spare.
func (d *Dump) Block(n uint32) (block, spare []byte) {
	g := d.Manifest.Geometry
	b, s := int(n)*g.BlockSize, int(n)*g.SpareSize
	return d.Data.Block[b : b+g.BlockSize], d.Data.Spare[s : s+g.SpareSize]
}

// Validate checks the data against the manifest and returns every problem.
func (d *Dump) Validate() []error {
	var errs []error
	m := d.Manifest
	if err := m.Geometry.Validate(); err != nil {
		return []error{fmt.Errorf("%w: %w", ErrInvalid, err)}
	}
	if want := int(m.Blocks) * m.Geometry.BlockSize; len(d.Data.Block) != want {
		errs = append(errs, fmt.Errorf("%w: %s is %d bytes, want %d", ErrInvalid, NANDFile, len(d.Data.Block), want))
	}
	if want := int(m.Blocks) * m.Geometry.SpareSize; len(d.Data.Spare) != want {
		errs = append(errs, fmt.Errorf("%w: %s is %d bytes, want %d", ErrInvalid, SpareFile, len(d.Data.Spare), want))
	}
	if got := Fingerprint(d.Data); got != m.Fingerprint {
		errs = append(errs, fmt.Errorf("%w: fingerprint %s, manifest has %s", ErrInvalid, got, m.Fingerprint))
	}
	return errs
}

// Write stores d in dir, creating it if needed.
func Write(dir string, d *Dump) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dump dir: %w", err)
	}
	manifest, err := json.MarshalIndent(d.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	files := []struct {
		name string
		data []byte
	}{
		{NANDFile, d.Data.Block},
		{SpareFile, d.Data.Spare},
		{ManifestFile, append(manifest, '\n')},
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.name), f.data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}

// Read loads the dump in dir and validates it.
func Read(dir string) (*Dump, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var d Dump
	if err := json.Unmarshal(raw, &d.Manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if d.Data.Block, err = os.ReadFile(filepath.Join(dir, NANDFile)); err != nil {
		return nil, fmt.Errorf("read %s: %w", NANDFile, err)
	}
	if d.Data.Spare, err = os.ReadFile(filepath.Join(dir, SpareFile)); err != nil {
		return nil, fmt.Errorf("read %s: %w", SpareFile, err)
	}
	if errs := d.Validate(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &d, nil
}

// BlockWriter writes one block with its spare.
type BlockWriter interface {
	WriteBlock(ctx context.Context, n uint32, block, spare []byte) error
}

// Restore writes every block of d back through w in index order. Whether a
// bad block is skipped is w's decision.
func Restore(ctx context.Context, w BlockWriter, d *Dump, progress func(done, total uint32)) error {
	total := d.Manifest.Blocks
	for n := range total {
		block, spare := d.Block(n)
		if err := w.WriteBlock(ctx, n, block, spare); err != nil {
			return fmt.Errorf("restore block %d: %w", n, err)
		}
		if progress != nil {
			progress(n+1, total)
		}
	}
	return nil
}
