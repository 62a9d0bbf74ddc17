package request

import (
	"sync"
)

// Table holds async requests by id until they complete and are reaped.
type Table struct {
	pumper Pumper

	mu    sync.Mutex
	live  map[uint64]*Request
	ready []*Request

	reapMu sync.Mutex
}

// NewTable returns an empty table whose requests are driven by p.
func NewTable(p Pumper) *Table {
	return &Table{pumper: p, live: make(map[uint64]*Request)}
}

// NewAsync registers a request whose cb runs once after Submit and the
// completion of its last child.
func (t *Table) NewAsync(cb Callback) *Request {
	r := New(t.pumper)
	r.table = t
	r.callback = cb
	t.mu.Lock()
	t.live[r.id] = r
	t.mu.Unlock()
	return r
}

// Get returns the live async request with id.
func (t *Table) Get(id uint64) (*Request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.live[id]
	return r, ok
}

// Len is the number of async requests not yet retired.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

func (t *Table) enqueue(r *Request) {
	t.mu.Lock()
	t.ready = append(t.ready, r)
	t.mu.Unlock()
}

// Reap finalizes every completed request, runs its callback, and retires it.
// It returns the number of requests reaped. Concurrent callers are
// serialized so each callback runs once.
func (t *Table) Reap() int {
	t.reapMu.Lock()
	defer t.reapMu.Unlock()

	n := 0
	for {
		t.mu.Lock()
		if len(t.ready) == 0 {
			t.mu.Unlock()
			return n
		}
		r := t.ready[0]
		t.ready = t.ready[1:]
		t.mu.Unlock()

		r.mu.Lock()
		r.finalized = true
		r.mu.Unlock()
		r.ExecCallback()

		t.mu.Lock()
		delete(t.live, r.id)
		t.mu.Unlock()
		n++
	}
}
