package comm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/pwrapi/internal/request"
	"github.com/danmuck/pwrapi/internal/transport"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownPeer   = errors.New("comm: unknown peer")
	ErrDuplicatePeer = errors.New("comm: duplicate peer")
	ErrListening     = errors.New("comm: already listening")
	ErrClosed        = errors.New("comm: dispatcher closed")
)

// idleWait is how long Serve sleeps when nothing is pollable.
const idleWait = 100 * time.Millisecond

// Dispatcher is the single event loop of a daemon. Pump is safe to call from
// several goroutines; only one services the multiplexer at a time.
type Dispatcher struct {
	cfg   transport.Config
	reg   *transport.Registry
	mux   *transport.Multiplexer
	table *request.Table

	ctx    context.Context
	cancel context.CancelFunc
	turn   chan struct{}

	mu       sync.Mutex
	peers    map[string]*Peer
	listener *transport.Listener
	server   *Server
	inbound  map[*transport.Conn]struct{}
	closed   bool
}

func NewDispatcher(cfg transport.Config) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	reg := transport.NewRegistry()
	d := &Dispatcher{
		cfg:     cfg.WithDefaults(),
		reg:     reg,
		mux:     transport.NewMultiplexer(reg),
		ctx:     ctx,
		cancel:  cancel,
		turn:    make(chan struct{}, 1),
		peers:   make(map[string]*Peer),
		inbound: make(map[*transport.Conn]struct{}),
	}
	d.table = request.NewTable(d)
	return d
}

func (d *Dispatcher) Table() *request.Table { return d.table }

func (d *Dispatcher) Registry() *transport.Registry { return d.reg }

// NewRequest returns a blocking request driven by this dispatcher.
func (d *Dispatcher) NewRequest() *request.Request {
	return request.New(d)
}

// NewAsync returns an async request reaped by this dispatcher.
func (d *Dispatcher) NewAsync(cb request.Callback) *request.Request {
	return d.table.NewAsync(cb)
}

// AddPeer declares a remote daemon. Nothing is dialed until the first
// request is sent to it.
func (d *Dispatcher) AddPeer(name, addr string) (*Peer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	if _, ok := d.peers[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicatePeer, name)
	}
	p := newPeer(name, addr, d)
	d.peers[name] = p
	return p, nil
}

func (d *Dispatcher) Peer(name string) (*Peer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peers[name]
	return p, ok
}

// Listen accepts peers on addr and serves their requests against r.
func (d *Dispatcher) Listen(name, addr string, r Resolver) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.listener != nil {
		return fmt.Errorf("%w: %s", ErrListening, d.listener.Addr())
	}
	l, err := transport.Listen(name, addr, d.cfg, d.reg)
	if err != nil {
		return err
	}
	if err := d.mux.Add(l, l); err != nil {
		_ = l.Close()
		return err
	}
	d.listener = l
	d.server = NewServer(d.ctx, r, d.table)
	log.Info().Str("listener", name).Str("addr", l.Addr().String()).Msg("comm.Dispatcher listening")
	return nil
}

// Addr is the bound listen address, or nil before Listen.
func (d *Dispatcher) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// Pump reaps finished async requests, or else waits for one ready endpoint,
// services it, and reaps again.
func (d *Dispatcher) Pump(ctx context.Context) error {
	select {
	case d.turn <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-d.turn }()

	if d.table.Reap() > 0 {
		return nil
	}
	data, err := d.mux.Wait(ctx)
	if err != nil {
		return err
	}
	switch v := data.(type) {
	case *transport.Listener:
		d.accept(v)
	case *Peer:
		v.receive(ctx)
	case *inbound:
		d.serve(ctx, v)
	default:
		log.Warn().Msgf("comm.Dispatcher unknown endpoint %T", data)
	}
	d.table.Reap()
	return nil
}

func (d *Dispatcher) accept(l *transport.Listener) {
	conn, err := l.Accept()
	if err != nil {
		log.Warn().Err(err).Msg("comm.Dispatcher accept failed")
		return
	}
	d.mu.Lock()
	d.inbound[conn] = struct{}{}
	d.mu.Unlock()
	if err := d.mux.Add(conn, &inbound{conn: conn}); err != nil {
		log.Warn().Str("channel", conn.Name()).Err(err).Msg("comm.Dispatcher watch failed")
		d.drop(conn)
	}
}

func (d *Dispatcher) serve(ctx context.Context, in *inbound) {
	ev, err := in.conn.Recv(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Debug().Str("channel", in.conn.Name()).Err(err).Msg("comm.Dispatcher inbound closed")
		_ = d.mux.Remove(in.conn)
		d.drop(in.conn)
		return
	}
	d.mu.Lock()
	srv := d.server
	d.mu.Unlock()
	srv.Dispatch(in.conn, ev)
}

func (d *Dispatcher) drop(conn *transport.Conn) {
	d.mu.Lock()
	delete(d.inbound, conn)
	d.mu.Unlock()
	_ = conn.Close()
}

// Serve pumps until ctx is done. Transient errors are logged and the loop
// continues.
func (d *Dispatcher) Serve(ctx context.Context) error {
	for {
		err := d.Pump(ctx)
		if ctx.Err() != nil {
			return nil
		}
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrNoChannels):
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(idleWait):
			}
		default:
			log.Warn().Err(err).Msg("comm.Dispatcher pump failed")
		}
	}
}

// Close stops the listener and every channel. Requests still waiting on a
// peer fail with a channel-lost error.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.cancel()
	l := d.listener
	peers := make([]*Peer, 0, len(d.peers))
	for _, p := range d.peers {
		peers = append(peers, p)
	}
	conns := make([]*transport.Conn, 0, len(d.inbound))
	for c := range d.inbound {
		conns = append(conns, c)
	}
	d.inbound = make(map[*transport.Conn]struct{})
	d.mu.Unlock()

	var errs []error
	if l != nil {
		_ = d.mux.Remove(l)
		errs = append(errs, l.Close())
	}
	for _, p := range peers {
		p.close()
	}
	for _, c := range conns {
		_ = d.mux.Remove(c)
		errs = append(errs, c.Close())
	}
	d.table.Reap()
	return errors.Join(errs...)
}
