package server

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxURILength is the longest request-target accepted before 414.
const DefaultMaxURILength = 8192

type Config struct {
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxHeaderSize int
	MaxURILength  int
	MaxBodySize   int64

	// AllowedMethods gates the request line. Methods outside it get 405
	// before any routing happens.
	AllowedMethods []Method

	// PoolSize > 0 serves connections on a fixed worker pool; 0 spawns one
	// goroutine per connection.
	PoolSize int

	AutoClose     bool
	ReusePort     bool
	EnableLogging bool

	Logger    zerolog.Logger
	ErrorHook func(error)
}

func DefaultConfig() *Config {
	return &Config{
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderSize:  16384,
		MaxURILength:   DefaultMaxURILength,
		MaxBodySize:    10 * 1024 * 1024, // 10MB
		AllowedMethods: []Method{MethodGet, MethodPost, MethodPut, MethodDelete},
		AutoClose:      true,
		EnableLogging:  false,
		Logger:         newConsoleLogger(),
	}
}

// Validate checks the limits for consistency.
func (c *Config) Validate() error {
	if c.MaxURILength <= 0 {
		return fmt.Errorf("server: MaxURILength must be positive, got %d", c.MaxURILength)
	}
	if c.MaxHeaderSize <= c.MaxURILength {
		return fmt.Errorf("server: MaxHeaderSize (%d) must exceed MaxURILength (%d)", c.MaxHeaderSize, c.MaxURILength)
	}
	if c.MaxBodySize < 0 {
		return fmt.Errorf("server: MaxBodySize must not be negative, got %d", c.MaxBodySize)
	}
	if c.PoolSize < 0 {
		return fmt.Errorf("server: PoolSize must not be negative, got %d", c.PoolSize)
	}
	if len(c.AllowedMethods) == 0 {
		return fmt.Errorf("server: AllowedMethods is empty")
	}
	return nil
}

func (c *Config) methodAllowed(m Method) bool {
	for _, allowed := range c.AllowedMethods {
		if allowed == m {
			return true
		}
	}
	return false
}

func (c *Config) reportError(err error) {
	if c.ErrorHook != nil {
		c.ErrorHook(err)
	}
	c.Logger.Debug().Err(err).Msg("connection error")
}
