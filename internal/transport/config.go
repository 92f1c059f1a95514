package transport

import (
	"fmt"
	"runtime"

	"github.com/danmuck/shuttle/internal/protocol/packet"
	"github.com/danmuck/shuttle/internal/protocol/session"
)

// Config parameterizes both ends. Format must match on sender and receiver;
// Workers is read by the sender only.
type Config struct {
	Format  packet.Format
	Workers int
	Session session.Config
	// MaxMessageSize is the channel limit every packet must fit.
	MaxMessageSize int
}

func DefaultConfig() Config {
	return Config{
		Format:         packet.DefaultFormat(),
		Workers:        24,
		Session:        session.DefaultConfig(),
		MaxMessageSize: 1024,
	}
}

func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Format.ChunkSize == 0 && c.Format.IndexWidth == 0 {
		c.Format = def.Format
	}
	if c.Format.Scope == "" {
		c.Format.Scope = packet.ScopePacket
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	c.Session = c.Session.WithDefaults()
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = c.Format.MaxPacketLen()
	}
	return c
}

func (c Config) Validate() error {
	if err := c.Format.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Format.MaxPacketLen() > c.MaxMessageSize {
		return fmt.Errorf("%w: chunk size %d + header %d exceeds max message size %d",
			ErrInvalidConfig, c.Format.ChunkSize, c.Format.HeaderLen(), c.MaxMessageSize)
	}
	return nil
}
