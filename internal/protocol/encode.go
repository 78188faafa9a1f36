package protocol

import (
	"fmt"
	"io"
	"math"

	"github.com/danmuck/nxcp/internal/protocol/compress"
	"github.com/danmuck/nxcp/internal/protocol/encryption"
	"github.com/danmuck/nxcp/internal/protocol/frame"
	"github.com/danmuck/nxcp/internal/protocol/tlv"
)

// EncodeOptions controls the optional wire transformations.
type EncodeOptions struct {
	// AllowCompression deflates bodies above compress.Threshold when that
	// makes them smaller.
	AllowCompression bool
	// Cipher seals the framed message unless it carries DONT_ENCRYPT.
	Cipher encryption.Context
}

// Encode returns the wire form of msg.
func Encode(msg *Message, opts EncodeOptions) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("%w: nil message", ErrInvalidMessage)
	}
	if msg.IsBinary() && msg.IsControl() {
		return nil, fmt.Errorf("%w: binary and control flags both set", ErrInvalidMessage)
	}

	var (
		out []byte
		err error
	)
	switch {
	case msg.IsControl():
		out = encodeControl(msg)
	case msg.IsBinary():
		out, err = encodeBinary(msg, opts.AllowCompression)
	default:
		out, err = encodeFields(msg, opts.AllowCompression)
	}
	if err != nil {
		return nil, err
	}

	if opts.Cipher != nil && !msg.DontEncrypt() {
		return encryption.Seal(opts.Cipher, out)
	}
	return out, nil
}

// Write encodes msg and writes it to w in one call.
func Write(w io.Writer, msg *Message, opts EncodeOptions) error {
	b, err := Encode(msg, opts)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// wireFlags strips the bits Encode decides itself. COMPRESSED survives only
// on binary stream messages, where it describes the caller's own compression.
func wireFlags(msg *Message) uint16 {
	flags := msg.Flags
	if !msg.IsStream() || !msg.IsBinary() {
		flags &^= frame.FlagCompressed
	}
	return flags
}

func encodeControl(msg *Message) []byte {
	return frame.EncodeHeader(frame.Header{
		Code:  msg.Code,
		Flags: wireFlags(msg) | frame.FlagControl,
		Size:  frame.HeaderLen,
		ID:    msg.ID,
		Count: msg.Control,
	})
}

func encodeBinary(msg *Message, allowCompression bool) ([]byte, error) {
	if uint64(len(msg.Binary)) > math.MaxUint32-frame.HeaderLen-frame.Alignment {
		return nil, fmt.Errorf("%w: binary payload of %d bytes", ErrInvalidMessage, len(msg.Binary))
	}
	head := frame.Header{
		Code:  msg.Code,
		Flags: wireFlags(msg) | frame.FlagBinary,
		ID:    msg.ID,
		Count: uint32(len(msg.Binary)),
	}

	body := msg.Binary
	if allowCompression && !msg.IsStream() && len(body) > compress.Threshold {
		wrapped, err := compress.Wrap(body, uint32(frame.HeaderLen+len(body)))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCompression, err)
		}
		if len(wrapped) < frame.Align(len(body)) {
			body = wrapped
			head.Flags |= frame.FlagCompressed
		}
	}

	size := frame.Align(frame.HeaderLen + len(body))
	head.Size = uint32(size)
	out := make([]byte, size)
	frame.PutHeader(out, head)
	copy(out[frame.HeaderLen:], body)
	return out, nil
}

func encodeFields(msg *Message, allowCompression bool) ([]byte, error) {
	fields := make([]tlv.Field, 0, len(msg.Fields))
	for _, id := range msg.FieldIDs() {
		f := msg.Fields[id]
		f.ID = id
		fields = append(fields, f)
	}
	payload, err := tlv.EncodeFields(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if uint64(len(payload)) > math.MaxUint32-frame.HeaderLen {
		return nil, fmt.Errorf("%w: field payload of %d bytes", ErrInvalidMessage, len(payload))
	}

	head := frame.Header{
		Code:  msg.Code,
		Flags: wireFlags(msg),
		ID:    msg.ID,
		Count: uint32(len(fields)),
	}

	if allowCompression && len(payload) > compress.Threshold {
		wrapped, err := compress.Wrap(payload, uint32(frame.HeaderLen+len(payload)))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCompression, err)
		}
		if len(wrapped) < len(payload) {
			payload = wrapped
			head.Flags |= frame.FlagCompressed
		}
	}

	head.Size = uint32(frame.HeaderLen + len(payload))
	out := make([]byte, frame.HeaderLen+len(payload))
	frame.PutHeader(out, head)
	copy(out[frame.HeaderLen:], payload)
	return out, nil
}
