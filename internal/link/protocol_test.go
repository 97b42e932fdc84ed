package link

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodePiecemeal(t *testing.T) {
	got := EncodePiecemeal([]byte{0x00, 0x00, 0x00, 0x11, 0x00, 0x00, 0x00, 0x03})
	want := []byte{
		0x43, 0x00, 0x00, 0x00,
		0x43, 0x11, 0x00, 0x00,
		0x42, 0x00, 0x03,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodePiecemeal() = % x, want % x", got, want)
	}
}

func TestEncodePiecemeal_Inflation(t *testing.T) {
	for n := 0; n <= 64; n++ {
		got := len(EncodePiecemeal(make([]byte, n)))
		limit := n + (n+2)/3
		if got > limit {
			t.Errorf("len(EncodePiecemeal(%d bytes)) = %d, want <= %d", n, got, limit)
		}
	}
}

func TestPiecemeal_RoundTrip(t *testing.T) {
	for n := 0; n <= 300; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i*7 + n)
		}

		got, err := DecodePiecemeal(EncodeReply(data), n)
		if err != nil {
			t.Fatalf("DecodePiecemeal(%d bytes) error: %v", n, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("round trip of %d bytes = % x, want % x", n, got, data)
		}

		sent, err := DecodeSent(EncodePiecemeal(data))
		if err != nil {
			t.Fatalf("DecodeSent(%d bytes) error: %v", n, err)
		}
		if !bytes.Equal(sent, data) {
			t.Fatalf("send round trip of %d bytes = % x, want % x", n, sent, data)
		}
	}
}

func TestDecodePiecemeal_StopsAtExpected(t *testing.T) {
	// Trailing bytes after the expected length are ignored.
	data := append(EncodeReply([]byte{1, 2, 3}), 0xAA, 0xBB)

	got, err := DecodePiecemeal(data, 3)
	if err != nil {
		t.Fatalf("DecodePiecemeal error: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("DecodePiecemeal() = % x, want 01 02 03", got)
	}
}

func TestDecodePiecemeal_BadTag(t *testing.T) {
	for _, tag := range []byte{0x1C, 0x20, 0x41, 0x00, 0xFF} {
		_, err := DecodePiecemeal([]byte{tag, 1, 2, 3}, 3)
		if !errors.Is(err, ErrFraming) {
			t.Errorf("tag 0x%02x: error = %v, want ErrFraming", tag, err)
		}
	}
}

func TestDecodePiecemeal_Short(t *testing.T) {
	_, err := DecodePiecemeal(EncodeReply([]byte{1, 2, 3}), 5)
	if !errors.Is(err, ErrDesync) {
		t.Errorf("error = %v, want ErrDesync", err)
	}

	// Group claims 3 bytes but input ends after 1.
	_, err = DecodePiecemeal([]byte{0x1F, 0x01}, 3)
	if !errors.Is(err, ErrDesync) {
		t.Errorf("truncated group error = %v, want ErrDesync", err)
	}
}

func TestDecodePiecemeal_Overshoot(t *testing.T) {
	// A 3-byte group cannot produce exactly 2 bytes.
	_, err := DecodePiecemeal([]byte{0x1F, 1, 2, 3}, 2)
	if !errors.Is(err, ErrDesync) {
		t.Errorf("error = %v, want ErrDesync", err)
	}
}

func TestBuildCommand(t *testing.T) {
	got := BuildCommand(0x11, 0x01020304)
	want := []byte{0x00, 0x00, 0x00, 0x11, 0x01, 0x02, 0x03, 0x04}
	if !bytes.Equal(got, want) {
		t.Errorf("BuildCommand() = % x, want % x", got, want)
	}
}

func TestBuildSendChunks(t *testing.T) {
	data := make([]byte, 600)
	for i := range data {
		data[i] = byte(i)
	}

	frames := BuildSendChunks(data)
	if len(frames) != 3 {
		t.Fatalf("len(frames) = %d, want 3", len(frames))
	}

	wantLens := []int{254, 254, 92}
	var joined []byte
	for i, f := range frames {
		if f[0] != TagSendChunk {
			t.Errorf("frame %d tag = 0x%02x, want 0x%02x", i, f[0], TagSendChunk)
		}
		if int(f[1]) != wantLens[i] {
			t.Errorf("frame %d length byte = %d, want %d", i, f[1], wantLens[i])
		}
		if len(f) != wantLens[i]+2 {
			t.Errorf("frame %d size = %d, want %d", i, len(f), wantLens[i]+2)
		}
		joined = append(joined, f[2:]...)
	}
	if !bytes.Equal(joined, data) {
		t.Error("chunk payloads do not reassemble the input")
	}
}

func TestBuildSendChunks_Empty(t *testing.T) {
	if frames := BuildSendChunks(nil); len(frames) != 0 {
		t.Errorf("len(frames) = %d, want 0", len(frames))
	}
}

func TestParseLengthHeader(t *testing.T) {
	n, err := ParseLengthHeader([]byte{0x1B, 0x00, 0x40, 0x00})
	if err != nil {
		t.Fatalf("ParseLengthHeader error: %v", err)
	}
	if n != 0x4000 {
		t.Errorf("length = 0x%x, want 0x4000", n)
	}

	if _, err := ParseLengthHeader([]byte{0x1A, 0x00, 0x00, 0x08}); !errors.Is(err, ErrFraming) {
		t.Errorf("wrong tag error = %v, want ErrFraming", err)
	}
	if _, err := ParseLengthHeader([]byte{0x1B, 0x00}); !errors.Is(err, ErrFraming) {
		t.Errorf("short header error = %v, want ErrFraming", err)
	}
}

func TestBuildLengthHeader(t *testing.T) {
	got := BuildLengthHeader(0x1000)
	want := []byte{0x1B, 0x00, 0x10, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("BuildLengthHeader() = % x, want % x", got, want)
	}
}

func TestIsReadySignal(t *testing.T) {
	if !IsReadySignal([]byte{0x15, 0x00, 0x00, 0x00}) {
		t.Error("ready signal not recognised")
	}
	for _, b := range [][]byte{
		{0x15, 0x00, 0x00, 0x01},
		{0x15, 0x00, 0x00},
		{0x1B, 0x00, 0x00, 0x00},
		{0x15, 0x00, 0x00, 0x00, 0x00},
	} {
		if IsReadySignal(b) {
			t.Errorf("IsReadySignal(% x) = true, want false", b)
		}
	}
}

func TestInflatedSize(t *testing.T) {
	for n := 0; n <= 0x1000; n++ {
		if InflatedSize(n) <= len(EncodeReply(make([]byte, n))) {
			t.Fatalf("InflatedSize(%d) = %d leaves no room for a terminator", n, InflatedSize(n))
		}
	}
}
