package comm

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/pwrapi/internal/object"
	"github.com/danmuck/pwrapi/internal/protocol/event"
	"github.com/danmuck/pwrapi/internal/pwr"
	"github.com/danmuck/pwrapi/internal/request"
)

var ErrNoTargets = errors.New("comm: handler has no targets")

// Target is one object an exchange is sent to. A target with Local set is
// resolved in-process and Peer is ignored.
type Target struct {
	Peer   *Peer
	Object string
	Local  *object.Object
}

// Handler forwards object-layer exchanges to one or more objects and folds
// their replies into the originating CommRequest. With several targets
// each attribute is combined with the caller's op; samples are summed slot by
// slot.
type Handler struct {
	targets []Target
}

func NewHandler(targets ...Target) *Handler {
	return &Handler{targets: append([]Target(nil), targets...)}
}

func (h *Handler) Targets() []Target {
	return append([]Target(nil), h.targets...)
}

// fanIn collects one reply per target. The last reply (or failure) settles
// the CommRequest.
type fanIn struct {
	mu        sync.Mutex
	remaining int
	cause     error
	codes     []pwr.Code
	values    [][]float64
	times     []pwr.Time
	settle    func(f *fanIn)
	cr        *request.CommRequest
}

func newFanIn(targets, names int, cr *request.CommRequest, settle func(f *fanIn)) *fanIn {
	return &fanIn{
		remaining: targets,
		codes:     make([]pwr.Code, names),
		values:    make([][]float64, names),
		times:     make([]pwr.Time, names),
		settle:    settle,
		cr:        cr,
	}
}

// reply merges one target's per-name results; fn runs under the lock.
func (f *fanIn) reply(fn func()) {
	f.mu.Lock()
	fn()
	f.done()
}

func (f *fanIn) fail(err error) {
	f.mu.Lock()
	if f.cause == nil {
		f.cause = err
	}
	f.done()
}

// done is entered with f.mu held and releases it.
func (f *fanIn) done() {
	f.remaining--
	last := f.remaining == 0
	f.mu.Unlock()
	if !last {
		return
	}
	if f.cause != nil {
		_ = f.cr.Fail(f.cause)
		return
	}
	f.settle(f)
	_ = f.cr.Finish()
}

func (f *fanIn) code(i int, code pwr.Code) {
	if code != pwr.CodeSuccess && f.codes[i] == pwr.CodeSuccess {
		f.codes[i] = code
	}
}

// dispatch sends one request per target. A send failure counts as that
// target's reply.
func (h *Handler) dispatch(f *fanIn, build func(id uint64, target string) event.Request, onReply func(ev event.Event), onLocal func(o *object.Object)) error {
	if len(h.targets) == 0 {
		return ErrNoTargets
	}
	for _, t := range h.targets {
		if t.Local != nil {
			f.reply(func() { onLocal(t.Local) })
			continue
		}
		ev := build(nextEventID(), t.Object)
		err := t.Peer.send(ev, func(resp event.Event) {
			f.reply(func() { onReply(resp) })
		}, f.fail)
		if err != nil {
			f.fail(err)
		}
	}
	return nil
}

func (h *Handler) GetValues(names []pwr.AttrName, ops []pwr.ValueOp, cr *request.CommRequest) error {
	if len(ops) != len(names) {
		return fmt.Errorf("comm: %d ops for %d names", len(ops), len(names))
	}
	f := newFanIn(len(h.targets), len(names), cr, func(f *fanIn) {
		for i := range names {
			if f.codes[i] != pwr.CodeSuccess {
				cr.SetCode(i, f.codes[i])
				continue
			}
			cr.SetValue(i, ops[i].Combine(f.values[i]), f.times[i])
		}
	})
	return h.dispatch(f, func(id uint64, target string) event.Request {
		return &event.GetValuesReq{ID: id, Object: target, Names: names, Ops: ops}
	}, func(ev event.Event) {
		resp := ev.(*event.GetValuesResp)
		for i := range names {
			if i >= len(resp.Codes) || i >= len(resp.Values) || i >= len(resp.Times) {
				f.code(i, pwr.CodeLength)
				continue
			}
			if resp.Codes[i] != pwr.CodeSuccess {
				f.code(i, resp.Codes[i])
				continue
			}
			f.values[i] = append(f.values[i], resp.Values[i])
			f.times[i] = pwr.Latest(f.times[i], resp.Times[i])
		}
	}, func(o *object.Object) {
		for i, name := range names {
			v, ts, code := o.ReadLocal(name)
			if code != pwr.CodeSuccess {
				f.code(i, code)
				continue
			}
			f.values[i] = append(f.values[i], v)
			f.times[i] = pwr.Latest(f.times[i], ts)
		}
	})
}

func (h *Handler) SetValues(names []pwr.AttrName, values []float64, cr *request.CommRequest) error {
	f := newFanIn(len(h.targets), len(names), cr, func(f *fanIn) {
		for i := range names {
			cr.SetCode(i, f.codes[i])
		}
	})
	return h.dispatch(f, func(id uint64, target string) event.Request {
		return &event.SetValuesReq{ID: id, Object: target, Names: names, Values: values}
	}, func(ev event.Event) {
		resp := ev.(*event.SetValuesResp)
		for i := range names {
			if i >= len(resp.Codes) {
				f.code(i, pwr.CodeLength)
				continue
			}
			f.code(i, resp.Codes[i])
		}
	}, func(o *object.Object) {
		for i, name := range names {
			f.code(i, o.WriteLocal(name, values[i]))
		}
	})
}

func (h *Handler) StartLog(name pwr.AttrName, cr *request.CommRequest) error {
	return h.log(event.TypeStartLogReq, name, cr)
}

func (h *Handler) StopLog(name pwr.AttrName, cr *request.CommRequest) error {
	return h.log(event.TypeStopLogReq, name, cr)
}

func (h *Handler) log(kind event.Type, name pwr.AttrName, cr *request.CommRequest) error {
	f := newFanIn(len(h.targets), 1, cr, func(f *fanIn) {
		cr.SetCode(0, f.codes[0])
	})
	return h.dispatch(f, func(id uint64, target string) event.Request {
		return &event.LogReq{Kind: kind, ID: id, Object: target, Name: name}
	}, func(ev event.Event) {
		f.code(0, ev.(*event.LogResp).Code)
	}, func(o *object.Object) {
		if kind == event.TypeStopLogReq {
			f.code(0, o.StopLogLocal(name))
			return
		}
		f.code(0, o.StartLogLocal(name))
	})
}

func (h *Handler) GetSamples(name pwr.AttrName, start pwr.Time, period float64, count uint32, cr *request.CommRequest) error {
	var (
		sum      []float64
		n        uint32
		first    pwr.Time
		received bool
	)
	f := newFanIn(len(h.targets), 1, cr, func(f *fanIn) {
		if f.codes[0] != pwr.CodeSuccess {
			cr.SetCode(0, f.codes[0])
			return
		}
		cr.SetSamples(sum[:n], first, n)
	})
	merge := func(rstart pwr.Time, rcount uint32, values []float64, code pwr.Code) {
		if code != pwr.CodeSuccess {
			f.code(0, code)
			return
		}
		got := min(rcount, uint32(len(values)), count)
		if !received {
			received = true
			n = got
			first = rstart
			sum = make([]float64, got)
		}
		n = min(n, got)
		first = pwr.Latest(first, rstart)
		for i := uint32(0); i < n; i++ {
			sum[i] += values[i]
		}
	}
	return h.dispatch(f, func(id uint64, target string) event.Request {
		return &event.GetSamplesReq{ID: id, Object: target, Name: name, Start: start, Period: period, Count: count}
	}, func(ev event.Event) {
		resp := ev.(*event.GetSamplesResp)
		merge(resp.Start, resp.Count, resp.Values, resp.Code)
	}, func(o *object.Object) {
		buf := make([]float64, count)
		s, c, code := o.SamplesLocal(name, start, period, count, buf)
		merge(s, c, buf, code)
	})
}
