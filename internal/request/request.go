package request

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrStatus means at least one attribute failed; see Request.Status.
	ErrStatus = errors.New("request: attribute failures recorded in status")
	// ErrChannelLost means a remote part could not be delivered or answered.
	ErrChannelLost = errors.New("request: channel lost")
	// ErrFinalized means the request no longer accepts children.
	ErrFinalized = errors.New("request: request finalized")
	ErrNoPumper  = errors.New("request: no pumper to drive completion")
)

// Pumper drives completion by servicing one unit of transport work. Pump
// must return promptly once ctx is done.
type Pumper interface {
	Pump(ctx context.Context) error
}

// Callback runs exactly once when an async request completes.
type Callback func(*Request)

// Request aggregates CommRequests. States: pending while children are
// outstanding, complete when none are, finalized once the result has been
// consumed by Wait or by the table's reaper.
type Request struct {
	id     uint64
	pumper Pumper
	status *Status

	mu        sync.Mutex
	pending   int
	finalized bool
	err       error
	wake      func()

	table     *Table
	callback  Callback
	submitted bool
	queued    bool
}

// New returns a blocking request driven by p.
func New(p Pumper) *Request {
	return &Request{id: nextID(), pumper: p, status: NewStatus()}
}

// ID is unique within the process.
func (r *Request) ID() uint64 { return r.id }

// Status holds the per-attribute failures recorded so far.
func (r *Request) Status() *Status { return r.status }

// Insert adds an outstanding child exchange.
func (r *Request) Insert(kind Kind) (*CommRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return nil, ErrFinalized
	}
	r.pending++
	return &CommRequest{id: nextID(), kind: kind, parent: r}, nil
}

// Pending is the number of children not yet finished.
func (r *Request) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Finished reports whether no child is outstanding.
func (r *Request) Finished() bool {
	return r.Pending() == 0
}

// Finalized reports whether the result has been consumed by Wait or Reap.
func (r *Request) Finalized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalized
}

// Err is the composite result: nil, ErrChannelLost wrapping the first
// transport cause, or ErrStatus.
func (r *Request) Err() error {
	r.mu.Lock()
	err := r.err
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrChannelLost, err)
	}
	if !r.status.Empty() {
		return ErrStatus
	}
	return nil
}

// Wait pumps until every child has finished, then finalizes the request and
// returns its result. A cancelled ctx finalizes too: late replies still
// finish their CommRequest but no longer write into the caller's buffers.
func (r *Request) Wait(ctx context.Context) error {
	if r.table != nil {
		return fmt.Errorf("request: wait on async request %d", r.id)
	}
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.wake = cancel
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.wake = nil
		r.finalized = true
		r.mu.Unlock()
	}()

	for r.Pending() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.pumper == nil {
			return ErrNoPumper
		}
		if err := r.pumper.Pump(wctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if wctx.Err() != nil {
				continue
			}
			return fmt.Errorf("%w: %w", ErrChannelLost, err)
		}
	}
	return r.Err()
}

// Submit arms an async request: once it has no outstanding children it is
// queued for its table's reaper. Children finishing before Submit never fire
// the callback early.
func (r *Request) Submit() error {
	if r.table == nil {
		return fmt.Errorf("request: submit on blocking request %d", r.id)
	}
	r.mu.Lock()
	if r.finalized || r.submitted {
		r.mu.Unlock()
		return ErrFinalized
	}
	r.submitted = true
	ready := r.readyLocked()
	r.mu.Unlock()
	if ready {
		r.table.enqueue(r)
	}
	return nil
}

// ExecCallback runs the completion callback. The table's reaper calls it
// exactly once per async request.
func (r *Request) ExecCallback() {
	if r.callback != nil {
		r.callback(r)
	}
}

func (r *Request) finish(c *CommRequest) error {
	r.mu.Lock()
	if c.finished {
		r.mu.Unlock()
		return ErrAlreadyFinished
	}
	c.finished = true
	r.pending--
	var wake func()
	if r.pending == 0 {
		wake = r.wake
	}
	ready := r.readyLocked()
	r.mu.Unlock()

	if wake != nil {
		wake()
	}
	if ready {
		r.table.enqueue(r)
	}
	return nil
}

// readyLocked reports, at most once, that an async request can be reaped.
func (r *Request) readyLocked() bool {
	if r.table == nil || !r.submitted || r.queued || r.pending != 0 {
		return false
	}
	r.queued = true
	return true
}

// hold locks r for a write into caller-owned destinations. It reports false,
// with the lock released, once r is finalized.
func (r *Request) hold() bool {
	r.mu.Lock()
	if r.finalized {
		r.mu.Unlock()
		return false
	}
	return true
}

func (r *Request) fail(cause error) {
	if cause == nil {
		cause = errors.New("unknown transport failure")
	}
	r.mu.Lock()
	if r.err == nil && !r.finalized {
		r.err = cause
	}
	r.mu.Unlock()
}
