package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is the fixed NXCP message header size.
const HeaderLen = 16

// Alignment is the boundary every message body and field is padded to.
const Alignment = 8

// Message flag bits carried in the header.
const (
	FlagBinary        uint16 = 0x0001
	FlagEndOfFile     uint16 = 0x0002
	FlagDontEncrypt   uint16 = 0x0004
	FlagEndOfSequence uint16 = 0x0008
	FlagReverseOrder  uint16 = 0x0010
	FlagControl       uint16 = 0x0020
	FlagCompressed    uint16 = 0x0040
	FlagStream        uint16 = 0x0080
)

// CodeEncryptedMessage marks a message whose whole body is an encryption envelope.
const CodeEncryptedMessage uint16 = 0x0076

var (
	ErrShortHeader   = errors.New("frame: short fixed header")
	ErrSizeTooSmall  = errors.New("frame: declared size smaller than header")
	ErrSizeOverflows = errors.New("frame: declared size exceeds available bytes")
)

// Header is the fixed wire header.
//
// Count holds the field count for field-list messages, the control value for
// control messages and the uncompressed payload length for binary messages.
type Header struct {
	Code  uint16
	Flags uint16
	Size  uint32
	ID    uint32
	Count uint32
}

func (h Header) IsBinary() bool     { return h.Flags&FlagBinary != 0 }
func (h Header) IsControl() bool    { return h.Flags&FlagControl != 0 }
func (h Header) IsCompressed() bool { return h.Flags&FlagCompressed != 0 }
func (h Header) IsStream() bool     { return h.Flags&FlagStream != 0 }

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	PutHeader(buf, h)
	return buf
}

// PutHeader writes h into the first HeaderLen bytes of b.
func PutHeader(b []byte, h Header) {
	binary.BigEndian.PutUint16(b[0:2], h.Code)
	binary.BigEndian.PutUint16(b[2:4], h.Flags)
	binary.BigEndian.PutUint32(b[4:8], h.Size)
	binary.BigEndian.PutUint32(b[8:12], h.ID)
	binary.BigEndian.PutUint32(b[12:16], h.Count)
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	return Header{
		Code:  binary.BigEndian.Uint16(b[0:2]),
		Flags: binary.BigEndian.Uint16(b[2:4]),
		Size:  binary.BigEndian.Uint32(b[4:8]),
		ID:    binary.BigEndian.Uint32(b[8:12]),
		Count: binary.BigEndian.Uint32(b[12:16]),
	}, nil
}

// PeekSize returns the declared message size without consuming anything.
// ok is false while fewer than HeaderLen bytes are available.
func PeekSize(b []byte) (size uint32, ok bool) {
	if len(b) < HeaderLen {
		return 0, false
	}
	return binary.BigEndian.Uint32(b[4:8]), true
}

// PeekCode returns the message code of a buffered header.
func PeekCode(b []byte) (uint16, bool) {
	if len(b) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(b[0:2]), true
}

// CheckSize validates a declared size against the bytes actually available.
func CheckSize(h Header, available int) error {
	if h.Size < HeaderLen {
		return fmt.Errorf("%w: %d", ErrSizeTooSmall, h.Size)
	}
	if uint64(h.Size) > uint64(available) {
		return fmt.Errorf("%w: size=%d available=%d", ErrSizeOverflows, h.Size, available)
	}
	return nil
}

// Padding returns the number of zero bytes needed to align n.
func Padding(n int) int {
	return (Alignment - n%Alignment) % Alignment
}

// Align rounds n up to the next multiple of Alignment.
func Align(n int) int {
	return n + Padding(n)
}
