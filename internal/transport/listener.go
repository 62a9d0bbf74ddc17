package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

// Listener is the passive side of a channel. It is registered under its own
// descriptor so the multiplexer reports pending connections.
type Listener struct {
	name string
	cfg  Config
	reg  *Registry
	ln   net.Listener
	fd   int

	mu     sync.Mutex
	closed bool
}

// Listen binds and listens on addr immediately.
func Listen(name, addr string, cfg Config, reg *Registry) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	fd, err := descriptor(ln)
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	l := &Listener{name: name, cfg: cfg.WithDefaults(), reg: reg, ln: ln, fd: fd}
	if err := reg.Register(fd, l); err != nil {
		_ = ln.Close()
		return nil, err
	}
	log.Debug().Str("channel", name).Str("addr", ln.Addr().String()).Int("fd", fd).Msg("transport.Listener listening")
	return l, nil
}

func (l *Listener) Name() string { return l.name }

func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

func (l *Listener) Fd() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return -1
	}
	return l.fd
}

// Accept blocks for one inbound connection and returns it as a registered
// channel named "<listener>-recv".
func (l *Listener) Accept() (*Conn, error) {
	nc, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	c, err := newAccepted(l.name+"-recv", nc, l.cfg, l.reg)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}
	log.Debug().Str("channel", c.name).Str("remote", c.addr).Int("fd", c.fd).Msg("transport.Listener accepted")
	return c, nil
}

func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	_ = l.reg.Unregister(l.fd)
	return l.ln.Close()
}
