package encryption

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/danmuck/nxcp/internal/protocol/frame"
)

// EnvelopeHeaderLen is the unencrypted prefix: code, padding, reserved, size.
const EnvelopeHeaderLen = 8

// PayloadHeaderLen is the encrypted prefix: CRC32 of the message and a
// reserved word.
const PayloadHeaderLen = 8

var (
	ErrNilContext       = errors.New("encryption: no context")
	ErrInvalidEnvelope  = errors.New("encryption: invalid envelope")
	ErrChecksumMismatch = errors.New("encryption: checksum mismatch")
)

// Seal wraps a complete framed message into an encrypted envelope.
func Seal(ctx Context, msg []byte) ([]byte, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	plain := make([]byte, PayloadHeaderLen+len(msg))
	binary.BigEndian.PutUint32(plain[0:4], crc32.ChecksumIEEE(msg))
	copy(plain[PayloadHeaderLen:], msg)

	sealed, err := ctx.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("encryption: encrypt: %w", err)
	}

	size := EnvelopeHeaderLen + len(sealed)
	pad := frame.Padding(size)
	out := make([]byte, size+pad)
	binary.BigEndian.PutUint16(out[0:2], frame.CodeEncryptedMessage)
	out[2] = byte(pad)
	binary.BigEndian.PutUint32(out[4:8], uint32(size+pad))
	copy(out[EnvelopeHeaderLen:], sealed)
	return out, nil
}

// Open decrypts an envelope produced by Seal and returns the framed message
// it carries.
func Open(ctx Context, b []byte) ([]byte, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if len(b) < EnvelopeHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidEnvelope, len(b))
	}
	pad := int(b[2])
	size := int(binary.BigEndian.Uint32(b[4:8]))
	if size > len(b) || size < EnvelopeHeaderLen+pad {
		return nil, fmt.Errorf("%w: size=%d padding=%d available=%d", ErrInvalidEnvelope, size, pad, len(b))
	}

	plain, err := ctx.Decrypt(b[EnvelopeHeaderLen : size-pad])
	if err != nil {
		return nil, fmt.Errorf("encryption: decrypt: %w", err)
	}
	if len(plain) < PayloadHeaderLen+frame.HeaderLen {
		return nil, fmt.Errorf("%w: decrypted payload too short", ErrInvalidEnvelope)
	}

	msg := plain[PayloadHeaderLen:]
	msgSize, _ := frame.PeekSize(msg)
	if int64(msgSize) > int64(len(msg)) || msgSize < frame.HeaderLen {
		return nil, fmt.Errorf("%w: inner size %d", ErrChecksumMismatch, msgSize)
	}
	msg = msg[:msgSize]
	if crc32.ChecksumIEEE(msg) != binary.BigEndian.Uint32(plain[0:4]) {
		return nil, ErrChecksumMismatch
	}
	return msg, nil
}
