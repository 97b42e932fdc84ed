package bbfs

import (
	"errors"
	"testing"
)

func TestToDeviceName(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"autoexec.cfg", "AUTOEXEC.CFG"},
		{"/tmp/saves/game.sav", "GAME.SAV"},
		{"save game.dat", "SAVE_GAM.DAT"},
		{"café.txt", "CAFE.TXT"},
		{"résumé.final.pdf", "RESUME_F.PDF"},
		{"README", "README"},
		{"archive.tar.gz", "ARCHIVE_.GZ"},
		{"long.extension", "LONG.EXT"},
	}
	for _, tt := range tests {
		got, err := ToDeviceName(tt.host)
		if err != nil {
			t.Errorf("ToDeviceName(%q) error: %v", tt.host, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ToDeviceName(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestToDeviceNameUnusable(t *testing.T) {
	for _, host := range []string{".hidden", "日本語.txt", "???"} {
		if _, err := ToDeviceName(host); !errors.Is(err, ErrName) {
			t.Errorf("ToDeviceName(%q) err = %v, want ErrName", host, err)
		}
	}
}
