package comm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/pwrapi/internal/protocol/event"
	"github.com/danmuck/pwrapi/internal/request"
	"github.com/danmuck/pwrapi/internal/transport"
	"github.com/rs/zerolog/log"
)

var eventIDs atomic.Uint64

func nextEventID() uint64 {
	return eventIDs.Add(1)
}

// Peer is the client side of one remote daemon. It connects lazily on the
// first request and reconnects on the first request after a loss.
type Peer struct {
	name string
	addr string
	disp *Dispatcher

	outbox *Outbox

	mu      sync.Mutex
	conn    *transport.Conn
	watched *transport.Conn
}

func newPeer(name, addr string, d *Dispatcher) *Peer {
	return &Peer{name: name, addr: addr, disp: d, outbox: NewOutbox()}
}

func (p *Peer) Name() string { return p.name }

func (p *Peer) Addr() string { return p.addr }

// Outbox exposes the requests awaiting a response.
func (p *Peer) Outbox() *Outbox { return p.outbox }

func (p *Peer) current() *transport.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		p.conn = transport.Dial(p.name, p.addr, p.disp.cfg, p.disp.reg)
	}
	return p.conn
}

// send transmits ev and registers complete/fail for its response. On error
// neither callback runs.
func (p *Peer) send(ev event.Request, complete func(event.Event), fail func(error)) error {
	id := ev.EventID()
	p.outbox.Upsert(Pending{
		EventID:  id,
		Type:     ev.Type(),
		Object:   ev.Target(),
		QueuedAt: time.Now(),
		complete: complete,
		fail:     fail,
	})
	conn := p.current()
	if err := conn.Send(p.disp.ctx, ev); err != nil {
		p.outbox.Take(id)
		if !errors.Is(err, transport.ErrConnectExhausted) && !errors.Is(err, context.Canceled) {
			p.lost(conn, err)
		}
		return fmt.Errorf("comm: send to %s: %w", p.name, err)
	}
	p.watch(conn)
	return nil
}

func (p *Peer) watch(conn *transport.Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watched == conn || p.conn != conn {
		return
	}
	if err := p.disp.mux.Add(conn, p); err != nil {
		log.Warn().Str("peer", p.name).Err(err).Msg("comm.Peer watch failed")
		return
	}
	p.watched = conn
}

// receive reads one response and completes its pending request.
func (p *Peer) receive(ctx context.Context) {
	p.mu.Lock()
	conn := p.watched
	p.mu.Unlock()
	if conn == nil {
		return
	}
	ev, err := conn.Recv(ctx)
	if err != nil {
		p.lost(conn, err)
		return
	}
	if !ev.Type().IsResponse() {
		log.Warn().Str("peer", p.name).Stringer("type", ev.Type()).Msg("comm.Peer dropped non-response event")
		return
	}
	pend, ok := p.outbox.Take(ev.EventID())
	if !ok {
		log.Warn().Str("peer", p.name).Uint64("id", ev.EventID()).Msg("comm.Peer dropped unmatched response")
		return
	}
	if event.ResponseKind(pend.Type) != ev.Type() {
		pend.fail(fmt.Errorf("comm: %s answered %s with %s", p.name, pend.Type, ev.Type()))
		return
	}
	pend.complete(ev)
}

// lost tears down conn and fails every request waiting on it.
func (p *Peer) lost(conn *transport.Conn, cause error) {
	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return
	}
	if p.watched == conn {
		_ = p.disp.mux.Remove(conn)
		p.watched = nil
	}
	p.conn = nil
	p.mu.Unlock()
	_ = conn.Close()

	drained := p.outbox.Drain()
	log.Warn().Str("peer", p.name).Int("pending", len(drained)).Err(cause).Msg("comm.Peer channel lost")
	err := fmt.Errorf("%w: %s: %w", request.ErrChannelLost, p.name, cause)
	now := time.Now()
	for _, pend := range drained {
		log.Debug().
			Str("peer", p.name).
			Uint64("id", pend.EventID).
			Stringer("type", pend.Type).
			Str("object", pend.Object).
			Dur("age", now.Sub(pend.QueuedAt)).
			Msg("comm.Peer failing pending request")
		pend.fail(err)
	}
}

func (p *Peer) close() {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		p.lost(conn, transport.ErrChannelClosed)
	}
}
