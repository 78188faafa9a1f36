package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/nxcp/internal/protocol/frame"
)

var ErrInvalidConfig = errors.New("session: invalid config")

// Config defines per-connection buffer limits and encode behavior.
type Config struct {
	// Name labels log lines and metrics for the connection.
	Name              string
	DefaultBufferSize int
	MaxBufferSize     int
	AllowCompression  bool
	// InflateLimit caps decompressed bodies; zero uses MaxBufferSize.
	InflateLimit int
}

// DefaultConfig returns the receive buffer defaults of a management server
// connection.
func DefaultConfig() Config {
	return Config{
		Name:              "nxcp",
		DefaultBufferSize: 65536,
		MaxBufferSize:     16 * 1024 * 1024,
		AllowCompression:  true,
		InflateLimit:      16 * 1024 * 1024,
	}
}

func (c Config) Validate() error {
	if c.DefaultBufferSize < frame.HeaderLen {
		return fmt.Errorf("%w: default buffer size %d below header length", ErrInvalidConfig, c.DefaultBufferSize)
	}
	if c.MaxBufferSize < c.DefaultBufferSize {
		return fmt.Errorf("%w: max buffer size %d below default %d", ErrInvalidConfig, c.MaxBufferSize, c.DefaultBufferSize)
	}
	if c.InflateLimit < 0 {
		return fmt.Errorf("%w: negative inflate limit", ErrInvalidConfig)
	}
	return nil
}

func (c Config) inflateLimit() int {
	if c.InflateLimit == 0 {
		return c.MaxBufferSize
	}
	return c.InflateLimit
}
