package bbfs_test

import (
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/binaryphile/bbplayer/internal/bbfs"
	"github.com/binaryphile/bbplayer/internal/link/linktest"
	"github.com/binaryphile/bbplayer/internal/nand"
	"github.com/binaryphile/bbplayer/internal/player"
)

func TestFilesystemOverLink(t *testing.T) {
	const blocks = 32
	g := nand.DefaultGeometry()
	p := linktest.NewPlayer(g.BlockSize, g.SpareSize, g.ChunkSize, blocks)

	tbl := bbfs.NewTable(blocks)
	tbl.SeqNo = 4
	tbl.FAT[1] = bbfs.ChainEnd
	tbl.Entries[0] = bbfs.Entry{Name: player.ScratchFile, Valid: true, Start: 1, Size: 3}
	p.SetBlock(blocks-bbfs.Slots+3, tbl.Marshal(), nand.GoodSpare(g.SpareSize))

	var sums []uint32
	p.Checksum = func(name string, sum, size uint32) bool {
		sums = append(sums, sum)
		return true
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := player.New(p, player.WithLogger(log), player.WithFilesystem(bbfs.Factory(log)))
	ctx := t.Context()
	if err := c.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	files, err := c.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("ListFiles() = %v, want scratch file removed", files)
	}

	if err := c.WriteFile(ctx, "HELLO.TXT", []byte("hello, player")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !slices.Equal(p.Names, []string{"HELLO.TXT"}) {
		t.Errorf("checksum queries = %v, want [HELLO.TXT]", p.Names)
	}
	if want := bbfs.Checksum([]byte("hello, player")); len(sums) != 1 || sums[0] != want {
		t.Errorf("device saw sums %v, want [%d]", sums, want)
	}

	data, ok, err := c.ReadFile(ctx, "HELLO.TXT")
	if err != nil || !ok {
		t.Fatalf("ReadFile() ok %v, err %v", ok, err)
	}
	if string(data) != "hello, player" {
		t.Errorf("ReadFile() = %q, want %q", data, "hello, player")
	}

	// the newest snapshot sits two slots on: one for the scratch delete,
	// one for the write
	raw, _ := p.Block(blocks - bbfs.Slots + 5)
	latest, err := bbfs.ParseTable(raw)
	if err != nil {
		t.Fatalf("ParseTable(slot 5): %v", err)
	}
	if latest.SeqNo != 6 {
		t.Errorf("SeqNo = %d, want 6", latest.SeqNo)
	}
	if p.InitFS != 1 {
		t.Errorf("InitFS calls = %d, want 1", p.InitFS)
	}
}
