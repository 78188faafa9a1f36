package session

import (
	"fmt"
	"io"

	"github.com/danmuck/nxcp/internal/observability"
	"github.com/danmuck/nxcp/internal/protocol"
	"github.com/danmuck/nxcp/internal/protocol/encryption"
	"github.com/danmuck/nxcp/internal/protocol/frame"
)

// Receiver reassembles messages from a byte stream.
type Receiver struct {
	src    io.Reader
	cfg    Config
	opts   options
	cipher encryption.Context

	buf  []byte
	used int

	// readErr is an error returned together with data; it surfaces once the
	// buffered bytes no longer complete a message.
	readErr error
	// err is sticky: the stream cannot be resynchronized after a failure.
	err error
}

func NewReceiver(src io.Reader, cfg Config, opts ...Option) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Receiver{
		src:  src,
		cfg:  cfg,
		opts: buildOptions(opts),
		buf:  make([]byte, cfg.DefaultBufferSize),
	}
	r.recordCapacity()
	return r, nil
}

// SetCipher installs the context used to open encrypted messages. Nil
// removes it.
func (r *Receiver) SetCipher(ctx encryption.Context) {
	r.cipher = ctx
}

// Buffered returns the number of received bytes not yet consumed.
func (r *Receiver) Buffered() int { return r.used }

// Capacity returns the current buffer size.
func (r *Receiver) Capacity() int { return len(r.buf) }

// ReceiveMessage blocks until one complete message is buffered and returns
// it decoded. Any error is terminal and is returned again by later calls.
func (r *Receiver) ReceiveMessage() (*protocol.Message, error) {
	if r.err != nil {
		return nil, r.err
	}
	for {
		if r.used >= frame.HeaderLen {
			size, _ := frame.PeekSize(r.buf[:r.used])
			if size < frame.HeaderLen {
				return nil, r.fail(fmt.Errorf("%w: declared size %d below header length", protocol.ErrStructural, size))
			}
			if uint64(size) > uint64(r.cfg.MaxBufferSize) {
				return nil, r.fail(fmt.Errorf("%w: declared size %d exceeds %d", protocol.ErrMessageTooLarge, size, r.cfg.MaxBufferSize))
			}
			n := int(size)
			if n <= r.used {
				return r.extract(n)
			}
			if n > len(r.buf) {
				r.resize(n)
			}
		}

		if r.readErr != nil {
			return nil, r.fail(fmt.Errorf("%w: %w", protocol.ErrSessionClosed, r.readErr))
		}
		n, err := r.src.Read(r.buf[r.used:])
		if n > 0 {
			r.used += n
			r.readErr = err
			continue
		}
		if err == nil {
			err = io.ErrNoProgress
		}
		return nil, r.fail(fmt.Errorf("%w: %w", protocol.ErrSessionClosed, err))
	}
}

func (r *Receiver) extract(n int) (*protocol.Message, error) {
	msg, err := protocol.DecodeWithOptions(r.buf[:n], protocol.DecodeOptions{
		Cipher:       r.cipher,
		InflateLimit: r.cfg.inflateLimit(),
	})

	r.used = copy(r.buf, r.buf[n:r.used])
	if len(r.buf) > r.cfg.DefaultBufferSize && r.used < r.cfg.DefaultBufferSize {
		r.resize(r.cfg.DefaultBufferSize)
	}

	if err != nil {
		return nil, r.fail(err)
	}
	r.opts.logger.Debug().
		Str("conn", r.cfg.Name).
		Str("code", protocol.CodeName(msg.Code)).
		Uint32("id", msg.ID).
		Int("size", n).
		Str("flags", protocol.FlagString(msg.Flags)).
		Msg("received")
	if r.opts.metrics {
		observability.RecordReceived(r.cfg.Name, messageKind(msg), n)
	}
	return msg, nil
}

func (r *Receiver) resize(n int) {
	buf := make([]byte, n)
	copy(buf, r.buf[:r.used])
	r.buf = buf
	r.recordCapacity()
}

func (r *Receiver) recordCapacity() {
	if r.opts.metrics {
		observability.SetBufferSize(r.cfg.Name, len(r.buf))
	}
}

func (r *Receiver) fail(err error) error {
	r.err = err
	reason := errorReason(err)
	r.opts.logger.Warn().Err(err).Str("conn", r.cfg.Name).Str("reason", reason).Msg("receive failed")
	if r.opts.metrics {
		observability.RecordReceiveError(r.cfg.Name, reason)
	}
	return err
}
