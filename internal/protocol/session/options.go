package session

import (
	"errors"

	"github.com/danmuck/nxcp/internal/protocol"
	"github.com/rs/zerolog"
)

type options struct {
	logger  zerolog.Logger
	metrics bool
}

// Option configures a Receiver or Sender.
type Option func(*options)

// WithLogger routes per-message debug lines and terminal errors to logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records prometheus metrics labelled with Config.Name.
func WithMetrics() Option {
	return func(o *options) { o.metrics = true }
}

func buildOptions(opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func messageKind(msg *protocol.Message) string {
	switch {
	case msg.IsControl():
		return "control"
	case msg.IsBinary():
		return "binary"
	default:
		return "fields"
	}
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrMessageTooLarge):
		return "too_large"
	case errors.Is(err, protocol.ErrSessionClosed):
		return "closed"
	case errors.Is(err, protocol.ErrNoCipher):
		return "no_cipher"
	case errors.Is(err, protocol.ErrDecryption):
		return "decryption"
	case errors.Is(err, protocol.ErrCompression):
		return "compression"
	case errors.Is(err, protocol.ErrStructural):
		return "structural"
	default:
		return "other"
	}
}
