package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/danmuck/pwrapi/internal/protocol/event"
	"github.com/rs/zerolog/log"
)

var (
	ErrConnectExhausted = errors.New("transport: connect attempts exhausted")
	ErrChannelClosed    = errors.New("transport: channel closed")
	ErrNotPollable      = errors.New("transport: connection has no pollable descriptor")
)

// Channel is a bidirectional message pipe to one peer.
type Channel interface {
	Selectable
	Send(ctx context.Context, e event.Event) error
	Recv(ctx context.Context) (event.Event, error)
	Close() error
}

// Conn is a TCP channel. Dialed conns connect lazily on first Send or Recv;
// accepted conns are connected from the start.
type Conn struct {
	name string
	addr string
	cfg  Config
	reg  *Registry

	// dialMu serializes connect attempts; mu guards the fields below and is
	// never held across I/O.
	dialMu sync.Mutex
	mu     sync.Mutex
	conn   net.Conn
	fd     int
	closed bool

	wmu sync.Mutex
	rmu sync.Mutex
}

var _ Channel = (*Conn)(nil)

// Dial returns an unconnected client channel. No I/O happens here.
func Dial(name, addr string, cfg Config, reg *Registry) *Conn {
	return &Conn{
		name: name,
		addr: addr,
		cfg:  cfg.WithDefaults(),
		reg:  reg,
		fd:   -1,
	}
}

func newAccepted(name string, nc net.Conn, cfg Config, reg *Registry) (*Conn, error) {
	fd, err := descriptor(nc)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		name: name,
		addr: nc.RemoteAddr().String(),
		cfg:  cfg.WithDefaults(),
		reg:  reg,
		conn: nc,
		fd:   fd,
	}
	if err := reg.Register(fd, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Conn) Name() string { return c.name }

// Addr is the remote address.
func (c *Conn) Addr() string { return c.addr }

func (c *Conn) Fd() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fd
}

// Connected reports whether the conn currently holds a live connection.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Connect establishes the connection if it is not already up.
func (c *Conn) Connect(ctx context.Context) error {
	_, err := c.ensure(ctx)
	return err
}

func (c *Conn) ensure(ctx context.Context) (net.Conn, error) {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()
	c.mu.Lock()
	closed, cur := c.closed, c.conn
	c.mu.Unlock()
	if closed {
		return nil, ErrChannelClosed
	}
	if cur != nil {
		return cur, nil
	}
	if c.addr == "" {
		return nil, fmt.Errorf("transport: %s has no address", c.name)
	}

	attempts := c.cfg.ConnectAttempts
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nc, err := c.cfg.Dial(ctx, "tcp", c.addr)
		if err == nil {
			return c.adopt(nc, attempt)
		}
		lastErr = err
		log.Warn().
			Str("channel", c.name).
			Str("addr", c.addr).
			Int("attempt", attempt).
			Int("max", attempts).
			Err(err).
			Msg("transport.Conn dial failed")
		if attempt == attempts {
			break
		}
		if err := pause(ctx, c.cfg.RetryInterval); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrConnectExhausted, c.addr, attempts, lastErr)
}

func (c *Conn) adopt(nc net.Conn, attempt int) (net.Conn, error) {
	fd, err := descriptor(nc)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = nc.Close()
		return nil, ErrChannelClosed
	}
	if err := c.reg.Register(fd, c); err != nil {
		_ = nc.Close()
		return nil, err
	}
	c.conn = nc
	c.fd = fd
	log.Debug().
		Str("channel", c.name).
		Str("addr", c.addr).
		Int("fd", fd).
		Int("attempt", attempt).
		Msg("transport.Conn connected")
	return nc, nil
}

// Send writes one event frame, connecting first when needed.
func (c *Conn) Send(ctx context.Context, e event.Event) error {
	nc, err := c.ensure(ctx)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = nc.SetWriteDeadline(dl)
		defer nc.SetWriteDeadline(time.Time{})
	}
	if err := WriteEvent(nc, e, c.cfg.Limits); err != nil {
		return fmt.Errorf("transport: send on %s: %w", c.name, err)
	}
	log.Debug().
		Str("channel", c.name).
		Stringer("type", e.Type()).
		Uint64("id", e.EventID()).
		Msg("transport.Conn sent")
	return nil
}

// Recv reads one event frame. io.EOF means the peer closed in an orderly way.
func (c *Conn) Recv(ctx context.Context) (event.Event, error) {
	nc, err := c.ensure(ctx)
	if err != nil {
		return nil, err
	}
	c.rmu.Lock()
	defer c.rmu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = nc.SetReadDeadline(dl)
		defer nc.SetReadDeadline(time.Time{})
	}
	e, err := ReadEvent(nc, c.cfg.Limits)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("transport: recv on %s: %w", c.name, err)
	}
	log.Debug().
		Str("channel", c.name).
		Stringer("type", e.Type()).
		Uint64("id", e.EventID()).
		Msg("transport.Conn received")
	return e, nil
}

// Close releases the connection and its registry entry. It is safe to call
// more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	_ = c.reg.Unregister(c.fd)
	err := c.conn.Close()
	c.conn = nil
	c.fd = -1
	return err
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func descriptor(v any) (int, error) {
	sc, ok := v.(syscall.Conn)
	if !ok {
		return -1, ErrNotPollable
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	fd := -1
	if err := raw.Control(func(s uintptr) { fd = int(s) }); err != nil {
		return -1, err
	}
	if fd < 0 {
		return -1, ErrNotPollable
	}
	return fd, nil
}
