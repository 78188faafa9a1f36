package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeHeaderRoundTrip(t *testing.T) {
	in := Header{Code: 0x1234, Flags: FlagBinary | FlagEndOfFile, Size: 48, ID: 42, Count: 29}
	b := EncodeHeader(in)
	if len(b) != HeaderLen {
		t.Fatalf("unexpected header length: %d", len(b))
	}
	out, err := DecodeHeader(b)
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	if out != in {
		t.Fatalf("header mismatch: got=%+v want=%+v", out, in)
	}
}

func TestHeaderWireLayoutIsBigEndian(t *testing.T) {
	b := EncodeHeader(Header{Code: 0x0102, Flags: 0x0304, Size: 0x05060708, ID: 0x090A0B0C, Count: 0x0D0E0F10})
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	if !bytes.Equal(b, want) {
		t.Fatalf("layout mismatch: got=%v want=%v", b, want)
	}
}

func TestDecodeHeaderShortIsDeterministic(t *testing.T) {
	_, err := DecodeHeader([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestPeekSize(t *testing.T) {
	b := EncodeHeader(Header{Code: 1, Size: 4096})
	if _, ok := PeekSize(b[:15]); ok {
		t.Fatalf("peek should need a full header")
	}
	size, ok := PeekSize(b)
	if !ok || size != 4096 {
		t.Fatalf("unexpected peek: size=%d ok=%v", size, ok)
	}
	code, ok := PeekCode(b)
	if !ok || code != 1 {
		t.Fatalf("unexpected code peek: code=%d ok=%v", code, ok)
	}
}

func TestCheckSize(t *testing.T) {
	if err := CheckSize(Header{Size: 8}, 64); !errors.Is(err, ErrSizeTooSmall) {
		t.Fatalf("expected ErrSizeTooSmall, got %v", err)
	}
	if err := CheckSize(Header{Size: 72}, 64); !errors.Is(err, ErrSizeOverflows) {
		t.Fatalf("expected ErrSizeOverflows, got %v", err)
	}
	if err := CheckSize(Header{Size: 64}, 64); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPaddingAndAlign(t *testing.T) {
	cases := map[int]int{0: 0, 1: 7, 7: 1, 8: 0, 12: 4, 16: 0, 17: 7}
	for n, pad := range cases {
		if got := Padding(n); got != pad {
			t.Fatalf("Padding(%d)=%d want %d", n, got, pad)
		}
		if got := Align(n); got%Alignment != 0 || got-n != pad {
			t.Fatalf("Align(%d)=%d", n, got)
		}
	}
}
