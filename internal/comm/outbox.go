package comm

import (
	"sort"
	"sync"
	"time"

	"github.com/danmuck/pwrapi/internal/protocol/event"
)

// Pending tracks one request event awaiting its response.
type Pending struct {
	EventID  uint64
	Type     event.Type
	Object   string
	QueuedAt time.Time

	complete func(event.Event)
	fail     func(error)
}

// Outbox stores pending request events by event id.
type Outbox struct {
	mu    sync.RWMutex
	items map[uint64]*Pending
}

// NewOutbox returns an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{items: make(map[uint64]*Pending)}
}

// Upsert stores item under its event id, replacing any earlier entry.
func (o *Outbox) Upsert(item Pending) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items[item.EventID] = &item
}

// Take removes and returns the pending entry for id.
func (o *Outbox) Take(id uint64) (Pending, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[id]
	if !ok {
		return Pending{}, false
	}
	delete(o.items, id)
	return *item, true
}

// Len is the number of requests awaiting a response.
func (o *Outbox) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items)
}

// Drain removes every entry and returns them ordered by event id.
func (o *Outbox) Drain() []Pending {
	o.mu.Lock()
	items := o.items
	o.items = make(map[uint64]*Pending)
	o.mu.Unlock()
	out := make([]Pending, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EventID < out[j].EventID
	})
	return out
}
