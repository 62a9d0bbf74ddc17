package transport

import (
	"context"
	"net"
	"time"
)

// DialFunc opens one connection attempt.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Config defines client connection and framing behavior.
type Config struct {
	// ConnectAttempts bounds the lazy connect loop. Zero or less means one attempt.
	ConnectAttempts int
	// RetryInterval is the pause after each failed attempt.
	RetryInterval time.Duration
	DialTimeout   time.Duration
	Limits        Limits
	Dial          DialFunc
}

// DefaultConfig retries once per second for up to 60 attempts.
func DefaultConfig() Config {
	return Config{
		ConnectAttempts: 60,
		RetryInterval:   time.Second,
		DialTimeout:     5 * time.Second,
		Limits:          DefaultLimits(),
	}
}

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 1
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.Limits.MaxPayloadBytes == 0 {
		c.Limits = def.Limits
	}
	if c.Dial == nil {
		dialer := net.Dialer{Timeout: c.DialTimeout}
		c.Dial = dialer.DialContext
	}
	return c
}
