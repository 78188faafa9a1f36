package session

import (
	"fmt"
	"io"

	"github.com/danmuck/nxcp/internal/observability"
	"github.com/danmuck/nxcp/internal/protocol"
	"github.com/danmuck/nxcp/internal/protocol/encryption"
	"github.com/danmuck/nxcp/internal/protocol/frame"
)

// Sender encodes messages and writes each one to the stream in a single
// Write call.
type Sender struct {
	dst    io.Writer
	cfg    Config
	opts   options
	cipher encryption.Context
}

func NewSender(dst io.Writer, cfg Config, opts ...Option) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sender{dst: dst, cfg: cfg, opts: buildOptions(opts)}, nil
}

// SetCipher installs the context used to seal outgoing messages. Nil sends
// in clear.
func (s *Sender) SetCipher(ctx encryption.Context) {
	s.cipher = ctx
}

// SendMessage writes msg. Messages the peer could not buffer are rejected
// with protocol.ErrMessageTooLarge before anything is written.
func (s *Sender) SendMessage(msg *protocol.Message) error {
	b, err := protocol.Encode(msg, protocol.EncodeOptions{AllowCompression: s.cfg.AllowCompression})
	if err != nil {
		return err
	}
	head, err := frame.DecodeHeader(b)
	if err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrInvalidMessage, err)
	}
	compressed := head.IsCompressed() && !head.IsStream()

	encrypted := s.cipher != nil && !msg.DontEncrypt()
	if encrypted {
		b, err = encryption.Seal(s.cipher, b)
		if err != nil {
			return fmt.Errorf("%w: %w", protocol.ErrDecryption, err)
		}
	}
	if len(b) > s.cfg.MaxBufferSize {
		return fmt.Errorf("%w: encoded size %d exceeds %d", protocol.ErrMessageTooLarge, len(b), s.cfg.MaxBufferSize)
	}

	if _, err := s.dst.Write(b); err != nil {
		s.opts.logger.Warn().Err(err).Str("conn", s.cfg.Name).Msg("send failed")
		return fmt.Errorf("%w: %w", protocol.ErrSessionClosed, err)
	}
	s.opts.logger.Debug().
		Str("conn", s.cfg.Name).
		Str("code", protocol.CodeName(msg.Code)).
		Uint32("id", msg.ID).
		Int("size", len(b)).
		Bool("compressed", compressed).
		Bool("encrypted", encrypted).
		Msg("sent")
	if s.opts.metrics {
		observability.RecordSent(s.cfg.Name, messageKind(msg), len(b), compressed, encrypted)
	}
	return nil
}
