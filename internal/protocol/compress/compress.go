// Package compress implements the deflate wrapper applied to message bodies.
//
// Wire form: original message size (u32, header included), zlib stream at
// best compression, zero padding to the 8-byte boundary.
package compress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/nxcp/internal/protocol/frame"
	"github.com/klauspost/compress/zlib"
)

// Threshold is the payload size at or below which bodies are sent as is.
const Threshold = 128

// PrefixLen is the size of the original-size field preceding the stream.
const PrefixLen = 4

var (
	ErrShort   = errors.New("compress: wrapped body too short")
	ErrCorrupt = errors.New("compress: corrupt deflate stream")
)

// Wrap deflates payload and frames it with the original size prefix and
// alignment padding.
func Wrap(payload []byte, originalSize uint32) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(PrefixLen + len(payload)/2 + 64)

	var prefix [PrefixLen]byte
	binary.BigEndian.PutUint32(prefix[:], originalSize)
	buf.Write(prefix[:])

	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("compress: new writer: %w", err)
	}
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("compress: deflate: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress: deflate: %w", err)
	}

	buf.Write(make([]byte, frame.Padding(buf.Len())))
	return buf.Bytes(), nil
}

// OriginalSize returns the size prefix of a wrapped body.
func OriginalSize(b []byte) (uint32, error) {
	if len(b) < PrefixLen {
		return 0, fmt.Errorf("%w: %d bytes", ErrShort, len(b))
	}
	return binary.BigEndian.Uint32(b[:PrefixLen]), nil
}

// Unwrap inflates a wrapped body. Output larger than limit is treated as a
// corrupt stream. Padding after the end of the zlib stream is ignored.
func Unwrap(b []byte, limit int) ([]byte, error) {
	if _, err := OriginalSize(b); err != nil {
		return nil, err
	}
	zr, err := zlib.NewReader(bytes.NewReader(b[PrefixLen:]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, int64(limit)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(out) > limit {
		return nil, fmt.Errorf("%w: inflated size exceeds %d bytes", ErrCorrupt, limit)
	}
	return out, nil
}
