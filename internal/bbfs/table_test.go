package bbfs

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestTableRoundTrip(t *testing.T) {
	tbl := NewTable(64)
	tbl.SeqNo = 7
	tbl.FAT[1] = 2
	tbl.FAT[2] = ChainEnd
	tbl.FAT[3] = Bad
	tbl.Entries[0] = Entry{Name: "GAME.APP", Valid: true, Start: 1, Size: 0x5000}
	tbl.Entries[5] = Entry{Name: "NOEXT", Valid: true, Start: ChainEnd}

	raw := tbl.Marshal()
	if len(raw) != BlockSize {
		t.Fatalf("len(Marshal()) = %d, want %d", len(raw), BlockSize)
	}
	if sum := wordSum(raw); sum != WordSum {
		t.Errorf("word sum = %#04x, want %#04x", sum, WordSum)
	}
	if got := string(raw[footerOffset : footerOffset+4]); got != "BBFS" {
		t.Errorf("magic = %q, want BBFS", got)
	}

	got, err := ParseTable(raw)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if *got != *tbl {
		t.Errorf("ParseTable(Marshal()) differs from input")
	}
}

func TestEntryLayout(t *testing.T) {
	tbl := NewTable(64)
	tbl.Entries[1] = Entry{Name: "SAVE.DAT", Valid: true, Start: 0x0102, Size: 0x03040506}
	raw := tbl.Marshal()

	e := raw[entriesOffset+EntrySize : entriesOffset+2*EntrySize]
	want := []byte{'S', 'A', 'V', 'E', 0, 0, 0, 0, 'D', 'A', 'T', 1, 0x01, 0x02, 0, 0, 0x03, 0x04, 0x05, 0x06}
	if string(e) != string(want) {
		t.Errorf("entry = % x, want % x", e, want)
	}
}

func TestNewTableReservations(t *testing.T) {
	tbl := NewTable(64)
	if tbl.FAT[0] != Reserved {
		t.Errorf("FAT[0] = %#04x, want reserved", tbl.FAT[0])
	}
	if tbl.FAT[47] != Free {
		t.Errorf("FAT[47] = %#04x, want free", tbl.FAT[47])
	}
	for _, b := range []int{48, 63, 64, FATEntries - 1} {
		if tbl.FAT[b] != Reserved {
			t.Errorf("FAT[%d] = %#04x, want reserved", b, tbl.FAT[b])
		}
	}
}

func TestParseTableRejects(t *testing.T) {
	good := NewTable(64).Marshal()

	badMagic := append([]byte(nil), good...)
	copy(badMagic[footerOffset:], "BBFL")

	badSum := append([]byte(nil), good...)
	binary.BigEndian.PutUint16(badSum[10:], 0x1234)

	tests := []struct {
		name string
		raw  []byte
	}{
		{"short", good[:BlockSize-1]},
		{"magic", badMagic},
		{"checksum", badSum},
	}
	for _, tt := range tests {
		if _, err := ParseTable(tt.raw); !errors.Is(err, ErrNotTable) {
			t.Errorf("%s: err = %v, want ErrNotTable", tt.name, err)
		}
	}
}

func TestChain(t *testing.T) {
	tbl := NewTable(64)
	tbl.FAT[4] = 9
	tbl.FAT[9] = 5
	tbl.FAT[5] = ChainEnd

	got, err := tbl.Chain(4)
	if err != nil {
		t.Fatalf("Chain: %v", err)
	}
	want := []uint16{4, 9, 5}
	if len(got) != len(want) {
		t.Fatalf("Chain(4) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Chain(4)[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	tbl.FAT[5] = 4
	if _, err := tbl.Chain(4); !errors.Is(err, ErrCorrupt) {
		t.Errorf("looping chain err = %v, want ErrCorrupt", err)
	}
	tbl.FAT[5] = Free
	if _, err := tbl.Chain(4); !errors.Is(err, ErrCorrupt) {
		t.Errorf("chain into free block err = %v, want ErrCorrupt", err)
	}
}

func TestChecksum(t *testing.T) {
	tests := []struct {
		data []byte
		want uint32
	}{
		{nil, 0},
		{[]byte{1, 2, 3}, 6},
		{[]byte{0xFF, 0xFF}, 0x1FE},
	}
	for _, tt := range tests {
		if got := Checksum(tt.data); got != tt.want {
			t.Errorf("Checksum(% x) = %d, want %d", tt.data, got, tt.want)
		}
	}
}
