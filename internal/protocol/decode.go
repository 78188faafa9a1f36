package protocol

import (
	"fmt"

	"github.com/danmuck/nxcp/internal/protocol/compress"
	"github.com/danmuck/nxcp/internal/protocol/encryption"
	"github.com/danmuck/nxcp/internal/protocol/frame"
	"github.com/danmuck/nxcp/internal/protocol/tlv"
)

// DefaultInflateLimit bounds the inflated size of a compressed body.
const DefaultInflateLimit = 64 * 1024 * 1024

// DecodeOptions carries the per-connection state decoding depends on.
type DecodeOptions struct {
	// Cipher opens encrypted messages. Nil rejects them with ErrNoCipher.
	Cipher encryption.Context
	// InflateLimit caps decompressed bodies; zero means DefaultInflateLimit.
	InflateLimit int
}

// Decode parses one complete message from b. b must hold at least the size
// declared in its header; bytes past that size are ignored.
func Decode(b []byte, cipher encryption.Context) (*Message, error) {
	return DecodeWithOptions(b, DecodeOptions{Cipher: cipher})
}

func DecodeWithOptions(b []byte, opts DecodeOptions) (*Message, error) {
	if opts.InflateLimit <= 0 {
		opts.InflateLimit = DefaultInflateLimit
	}
	return decode(b, opts, true)
}

func decode(b []byte, opts DecodeOptions, allowEnvelope bool) (*Message, error) {
	head, err := frame.DecodeHeader(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStructural, err)
	}

	if head.Code == frame.CodeEncryptedMessage {
		if !allowEnvelope {
			return nil, fmt.Errorf("%w: nested encrypted message", ErrDecryption)
		}
		if opts.Cipher == nil {
			return nil, ErrNoCipher
		}
		plain, err := encryption.Open(opts.Cipher, b)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
		}
		return decode(plain, opts, false)
	}

	if err := frame.CheckSize(head, len(b)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStructural, err)
	}
	body := b[frame.HeaderLen:head.Size]
	msg := &Message{Code: head.Code, Flags: head.Flags, ID: head.ID}

	switch {
	case head.IsControl():
		msg.Control = head.Count
	case head.IsBinary():
		if err := decodeBinary(msg, head, body, opts.InflateLimit); err != nil {
			return nil, err
		}
	default:
		if err := decodeFields(msg, head, body, opts.InflateLimit); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

func decodeBinary(msg *Message, head frame.Header, body []byte, inflateLimit int) error {
	if head.IsCompressed() && !head.IsStream() {
		if uint64(head.Count) > uint64(inflateLimit) {
			return fmt.Errorf("%w: binary length %d exceeds inflate limit %d", ErrCompression, head.Count, inflateLimit)
		}
		data, err := compress.Unwrap(body, int(head.Count))
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCompression, err)
		}
		if uint64(len(data)) != uint64(head.Count) {
			return fmt.Errorf("%w: inflated %d bytes, header declares %d", ErrCompression, len(data), head.Count)
		}
		msg.Flags &^= frame.FlagCompressed
		msg.Binary = data
		return nil
	}

	if uint64(head.Count) > uint64(len(body)) {
		return fmt.Errorf("%w: binary length %d exceeds body of %d bytes", ErrStructural, head.Count, len(body))
	}
	msg.Binary = make([]byte, head.Count)
	copy(msg.Binary, body)
	return nil
}

func decodeFields(msg *Message, head frame.Header, body []byte, inflateLimit int) error {
	payload := body
	if head.IsCompressed() {
		var err error
		payload, err = compress.Unwrap(body, inflateLimit)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCompression, err)
		}
		msg.Flags &^= frame.FlagCompressed
	}

	fields, err := tlv.DecodeFields(payload, int(head.Count))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStructural, err)
	}
	msg.Fields = make(map[tlv.FieldID]tlv.Field, len(fields))
	for _, f := range fields {
		msg.Fields[f.ID] = f
	}
	return nil
}
