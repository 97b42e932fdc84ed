package dump

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/binaryphile/bbplayer/internal/nand"
)

var small = nand.Geometry{BlockSize: 16, SpareSize: 6, ChunkSize: 4}

func image(blocks int) nand.BlockSpare {
	bs := nand.BlockSpare{
		Block: make([]byte, blocks*small.BlockSize),
		Spare: make([]byte, 0, blocks*small.SpareSize),
	}
	for i := range bs.Block {
		bs.Block[i] = byte(i)
	}
	for range blocks {
		bs.Spare = append(bs.Spare, nand.GoodSpare(small.SpareSize)...)
	}
	return bs
}

func TestNew(t *testing.T) {
	data := image(4)
	data.Spare[2*small.SpareSize+nand.BadBlockOffset] = 0x00
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	d, err := New(0xCAFE, small, data, created)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m := d.Manifest
	if m.Blocks != 4 {
		t.Errorf("Blocks = %d, want 4", m.Blocks)
	}
	if !slices.Equal(m.BadBlocks, []uint32{2}) {
		t.Errorf("BadBlocks = %v, want [2]", m.BadBlocks)
	}
	if m.Created.Location() != time.UTC {
		t.Errorf("Created = %v, want UTC", m.Created)
	}
	if len(m.Fingerprint) != 40 {
		t.Errorf("Fingerprint = %q, want 40 hex chars", m.Fingerprint)
	}
	block, spare := d.Block(1)
	if block[0] != 16 || len(block) != 16 || len(spare) != 6 {
		t.Errorf("Block(1) = % x / % x", block, spare)
	}
}

func TestNewRejectsPartialBlock(t *testing.T) {
	data := image(2)
	data.Block = data.Block[:20]
	if _, err := New(1, small, data, time.Now()); !errors.Is(err, ErrInvalid) {
		t.Errorf("New() err = %v, want ErrInvalid", err)
	}
}

func TestFingerprintCoversSpare(t *testing.T) {
	a := image(2)
	b := image(2)
	b.Spare[0] = 0
	if Fingerprint(a) == Fingerprint(b) {
		t.Errorf("Fingerprint ignores spare data")
	}
	if Fingerprint(a) != Fingerprint(image(2)) {
		t.Errorf("Fingerprint not deterministic")
	}
}

func TestWriteRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dump")
	d, err := New(7, small, image(3), time.Unix(1700000000, 0))
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(dir, d); err != nil {
		t.Fatalf("Write: %v", err)
	}
	for _, name := range []string{NANDFile, SpareFile, ManifestFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}

	got, err := Read(dir)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Manifest.BBID != 7 || got.Manifest.Blocks != 3 || got.Manifest.Geometry != small {
		t.Errorf("Manifest = %+v", got.Manifest)
	}
	if !got.Manifest.Created.Equal(d.Manifest.Created) {
		t.Errorf("Created = %v, want %v", got.Manifest.Created, d.Manifest.Created)
	}
	if Fingerprint(got.Data) != d.Manifest.Fingerprint {
		t.Errorf("data differs after round trip")
	}
}

func TestReadDetectsTampering(t *testing.T) {
	dir := t.TempDir()
	d, _ := New(7, small, image(3), time.Now())
	if err := Write(dir, d); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, NANDFile)
	raw, _ := os.ReadFile(path)
	raw[5] ^= 0xFF
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(dir); !errors.Is(err, ErrInvalid) {
		t.Errorf("Read() err = %v, want ErrInvalid", err)
	}

	if err := os.WriteFile(path, raw[:10], 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Read(dir)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("Read() of truncated dump err = %v, want ErrInvalid", err)
	}
}

func TestReadMissing(t *testing.T) {
	if _, err := Read(t.TempDir()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Read() err = %v, want not exist", err)
	}
}

type recorder struct {
	blocks []uint32
	failAt uint32
}

func (r *recorder) WriteBlock(ctx context.Context, n uint32, block, spare []byte) error {
	if n == r.failAt {
		return errors.New("write failed")
	}
	r.blocks = append(r.blocks, n)
	return nil
}

func TestRestore(t *testing.T) {
	d, _ := New(1, small, image(4), time.Now())
	r := &recorder{failAt: 99}
	var last [2]uint32
	err := Restore(t.Context(), r, d, func(done, total uint32) {
		last = [2]uint32{done, total}
	})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !slices.Equal(r.blocks, []uint32{0, 1, 2, 3}) {
		t.Errorf("blocks = %v, want 0..3", r.blocks)
	}
	if last != [2]uint32{4, 4} {
		t.Errorf("final progress = %v, want [4 4]", last)
	}
}

func TestRestoreStopsOnError(t *testing.T) {
	d, _ := New(1, small, image(4), time.Now())
	r := &recorder{failAt: 2}
	if err := Restore(t.Context(), r, d, nil); err == nil {
		t.Fatal("Restore() = nil, want error")
	}
	if !slices.Equal(r.blocks, []uint32{0, 1}) {
		t.Errorf("blocks = %v, want [0 1]", r.blocks)
	}
}
