package request

import (
	"errors"
	"sync/atomic"

	"github.com/danmuck/pwrapi/internal/pwr"
)

// ErrAlreadyFinished is returned by a second Finish on the same CommRequest.
var ErrAlreadyFinished = errors.New("request: comm request already finished")

// Kind is the operation a CommRequest carries.
type Kind int

const (
	KindGet Kind = iota
	KindSet
	KindStartLog
	KindStopLog
	KindGetSamples
)

func (k Kind) String() string {
	switch k {
	case KindGet:
		return "get"
	case KindSet:
		return "set"
	case KindStartLog:
		return "start_log"
	case KindStopLog:
		return "stop_log"
	case KindGetSamples:
		return "get_samples"
	default:
		return "unknown"
	}
}

var ids atomic.Uint64

func nextID() uint64 {
	return ids.Add(1)
}

// CommRequest is one remote exchange inside a Request. Its destination
// fields point into the caller's buffers; Index maps the i-th remote name to
// its position there (nil means identity).
type CommRequest struct {
	id     uint64
	kind   Kind
	parent *Request

	finished bool

	Object string
	Names  []pwr.AttrName
	Index  []int
	Values []float64
	Times  []pwr.Time

	// Samples destinations.
	Start *pwr.Time
	Count *uint32
}

// ID is unique within the process and is used as the wire event id.
func (c *CommRequest) ID() uint64 { return c.id }

// Kind is the operation carried.
func (c *CommRequest) Kind() Kind { return c.kind }

// Parent is the Request this exchange belongs to.
func (c *CommRequest) Parent() *Request { return c.parent }

func (c *CommRequest) slot(i int) int {
	if c.Index == nil {
		return i
	}
	return c.Index[i]
}

// SetValue stores the i-th result into the caller's buffers. Once the parent
// is finalized the buffers belong to the caller again and the write is dropped.
func (c *CommRequest) SetValue(i int, v float64, ts pwr.Time) {
	if !c.parent.hold() {
		return
	}
	defer c.parent.mu.Unlock()
	j := c.slot(i)
	if j < len(c.Values) {
		c.Values[j] = v
	}
	if j < len(c.Times) {
		c.Times[j] = ts
	}
}

// SetSamples stores a samples result into the caller's buffers, dropping it
// once the parent is finalized.
func (c *CommRequest) SetSamples(values []float64, start pwr.Time, count uint32) {
	if !c.parent.hold() {
		return
	}
	defer c.parent.mu.Unlock()
	copy(c.Values, values)
	if c.Start != nil {
		*c.Start = start
	}
	if c.Count != nil {
		*c.Count = count
	}
}

// SetCode records a failure for the i-th name. Success is a no-op, and so is
// any code arriving after the parent is finalized.
func (c *CommRequest) SetCode(i int, code pwr.Code) {
	if code == pwr.CodeSuccess || i >= len(c.Names) {
		return
	}
	if !c.parent.hold() {
		return
	}
	defer c.parent.mu.Unlock()
	c.parent.status.Add(c.Object, c.Names[i], code)
}

// Finish marks the exchange done and notifies the parent.
func (c *CommRequest) Finish() error {
	return c.parent.finish(c)
}

// Fail records a transport failure on the parent, marks every name as lost,
// and finishes.
func (c *CommRequest) Fail(cause error) error {
	c.parent.fail(cause)
	for i := range c.Names {
		c.SetCode(i, pwr.CodeChannelLost)
	}
	return c.Finish()
}
