package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/gousb"

	"github.com/binaryphile/bbplayer/internal/config"
	"github.com/binaryphile/bbplayer/internal/nand"
	"github.com/binaryphile/bbplayer/internal/player"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"0", 0, false},
		{"4095", 4095, false},
		{"0xFF0", 0xFF0, false},
		{"0b101", 5, false},
		{"-1", 0, true},
		{"0x100000000", 0, true},
		{"block", 0, true},
	}
	for _, tt := range tests {
		got, err := parseNumber(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseNumber(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseNumber(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseTime(t *testing.T) {
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	got, err := parseTime("", now)
	if err != nil || !got.Equal(now) {
		t.Errorf("parseTime(\"\") = %v, %v, want now", got, err)
	}
	got, err = parseTime("2001-02-03T04:05:06+09:00", now)
	if err != nil {
		t.Fatalf("parseTime: %v", err)
	}
	if got.Hour() != 4 || got.Day() != 3 {
		t.Errorf("parseTime() = %v, want local fields preserved", got)
	}
	if _, err := parseTime("yesterday", now); err == nil {
		t.Error("parseTime(yesterday) = nil error")
	}
}

func TestTransportOptions(t *testing.T) {
	a := &app{cfg: config.Default(), bus: 3, address: 7}
	a.cfg.USB.ProductID = 0x1234
	o := a.transportOptions()
	if o.VendorID != gousb.ID(0x1527) || o.ProductID != gousb.ID(0x1234) {
		t.Errorf("ids = %s:%s, want 1527:1234", o.VendorID, o.ProductID)
	}
	if o.EPIn != 0x82 || o.EPOut != 0x02 || o.Config != 1 || o.Interface != 0 {
		t.Errorf("Options = %+v", o)
	}
	if o.Bus != 3 || o.Address != 7 {
		t.Errorf("Bus/Address = %d/%d, want 3/7", o.Bus, o.Address)
	}
}

func TestReadBlockFiles(t *testing.T) {
	g := nand.Geometry{BlockSize: 16, SpareSize: 6, ChunkSize: 4}
	dir := t.TempDir()
	path := filepath.Join(dir, "block")
	if err := os.WriteFile(path, bytes.Repeat([]byte{1}, 16), 0o644); err != nil {
		t.Fatal(err)
	}

	bs, err := readBlockFiles(path, g)
	if err != nil {
		t.Fatalf("readBlockFiles: %v", err)
	}
	if nand.IsBad(bs.Spare) || len(bs.Spare) != 6 {
		t.Errorf("Spare = % x, want a good 6 byte spare", bs.Spare)
	}

	if err := os.WriteFile(spareFile(path), []byte{1, 2, 3, 4, 5, 0}, 0o644); err != nil {
		t.Fatal(err)
	}
	bs, err = readBlockFiles(path, g)
	if err != nil {
		t.Fatalf("readBlockFiles: %v", err)
	}
	if !nand.IsBad(bs.Spare) {
		t.Errorf("Spare = % x, want the stored bad spare", bs.Spare)
	}

	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readBlockFiles(path, g); err == nil {
		t.Error("readBlockFiles() of short block = nil error")
	}
}

func TestPrintFiles(t *testing.T) {
	var buf bytes.Buffer
	printFiles(&buf, []player.FileInfo{
		{Name: "GAME.APP", Size: 16384, Start: 12},
		{Name: "A", Size: 1, Start: 40},
	})
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[1], "GAME.APP  16384") {
		t.Errorf("line = %q", lines[1])
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), config.FileName)
	if err := os.WriteFile(cfg, []byte("[usb]\nproduct_id = 0x1234\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestConfigCommand(t *testing.T) {
	out, err := execute(t, "config")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if !strings.Contains(out, "product_id = 4660") {
		t.Errorf("output missing product_id override:\n%s", out)
	}
	if !strings.Contains(out, "[nand]") {
		t.Errorf("output missing [nand] section:\n%s", out)
	}
}

func TestRestoreRequiresConfirmation(t *testing.T) {
	_, err := execute(t, "restore-nand", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Errorf("restore-nand without --yes = %v, want confirmation error", err)
	}
}

func TestBadLogLevel(t *testing.T) {
	if _, err := execute(t, "--log-level", "loud", "config"); err == nil {
		t.Error("bad --log-level accepted")
	}
}

func TestArgValidation(t *testing.T) {
	for _, args := range [][]string{
		{"read-block", "1"},
		{"led"},
		{"set-time", "a", "b"},
		{"ls", "extra"},
	} {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("%v accepted", args)
		}
	}
}
