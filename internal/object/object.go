package object

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/pwrapi/internal/pwr"
	"github.com/rs/zerolog/log"
)

// Object is a node of the hierarchy that resolves its attributes locally.
type Object struct {
	name     string
	typ      pwr.ObjType
	parent   *Object
	children []*Object
	attrs    [pwr.NumAttrNames]*AttrInfo

	mu      sync.Mutex
	loggers map[pwr.AttrName]*logger
	rings   map[pwr.AttrName]*ring
	ringCap int
}

type logger struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func New(name string, typ pwr.ObjType) *Object {
	return &Object{
		name:    name,
		typ:     typ,
		loggers: make(map[pwr.AttrName]*logger),
		rings:   make(map[pwr.AttrName]*ring),
		ringCap: DefaultRingSize,
	}
}

func (o *Object) Name() string { return o.name }

func (o *Object) Type() pwr.ObjType { return o.typ }

// Parent is nil for the root.
func (o *Object) Parent() *Object { return o.parent }

func (o *Object) Children() []*Object {
	return append([]*Object(nil), o.children...)
}

// AddChild links child under o.
func (o *Object) AddChild(child *Object) {
	child.parent = o
	o.children = append(o.children, child)
}

// SetAttr installs info for name. Attributes must be set before the object is
// wrapped by NewDist.
func (o *Object) SetAttr(name pwr.AttrName, info *AttrInfo) error {
	if !name.Valid() {
		return ErrInvalidCall
	}
	o.attrs[name] = info
	return nil
}

func (o *Object) Attr(name pwr.AttrName) (*AttrInfo, bool) {
	if !name.Valid() || o.attrs[name] == nil {
		return nil, false
	}
	return o.attrs[name], true
}

// Attrs lists supported attributes in ascending order.
func (o *Object) Attrs() []pwr.AttrName {
	var out []pwr.AttrName
	for i, a := range o.attrs {
		if a != nil {
			out = append(out, pwr.AttrName(i))
		}
	}
	return out
}

// SetRingSize changes the sample capacity for attributes logged from now on.
func (o *Object) SetRingSize(n int) {
	o.mu.Lock()
	o.ringCap = n
	o.mu.Unlock()
}

func (o *Object) localAttr(name pwr.AttrName) (*AttrInfo, pwr.Code) {
	info, ok := o.Attr(name)
	if !ok {
		return nil, pwr.CodeNoAttrib
	}
	if !info.local() {
		return nil, pwr.CodeInvalid
	}
	return info, pwr.CodeSuccess
}

// ReadLocal reads name from every device and local child and combines the
// results with the attribute's op. The timestamp is the latest source time.
func (o *Object) ReadLocal(name pwr.AttrName) (float64, pwr.Time, pwr.Code) {
	info, code := o.localAttr(name)
	if code != pwr.CodeSuccess {
		return 0, 0, code
	}
	n := len(info.Devs) + len(info.Children)
	if n == 0 {
		return 0, 0, pwr.CodeEmpty
	}
	values := make([]float64, 0, n)
	var latest pwr.Time
	for _, h := range info.Devs {
		v, ts, err := h.Read(name)
		if err != nil {
			return 0, 0, pwr.CodeOf(err)
		}
		values = append(values, v)
		latest = pwr.Latest(latest, ts)
	}
	for _, child := range info.Children {
		v, ts, code := child.ReadLocal(name)
		if code != pwr.CodeSuccess {
			return 0, 0, code
		}
		values = append(values, v)
		latest = pwr.Latest(latest, ts)
	}
	return info.Op.Combine(values), latest, pwr.CodeSuccess
}

// WriteLocal writes value to every device and local child. All sources are
// attempted; the first failure is returned.
func (o *Object) WriteLocal(name pwr.AttrName, value float64) pwr.Code {
	info, code := o.localAttr(name)
	if code != pwr.CodeSuccess {
		return code
	}
	if len(info.Devs)+len(info.Children) == 0 {
		return pwr.CodeEmpty
	}
	result := pwr.CodeSuccess
	for _, h := range info.Devs {
		if c := pwr.CodeOf(h.Write(name, value)); c != pwr.CodeSuccess && result == pwr.CodeSuccess {
			result = c
		}
	}
	for _, child := range info.Children {
		if c := child.WriteLocal(name, value); c != pwr.CodeSuccess && result == pwr.CodeSuccess {
			result = c
		}
	}
	return result
}

// StartLogLocal samples name at its Hz into a bounded ring until
// StopLogLocal. Starting an attribute that is already logging is a no-op.
func (o *Object) StartLogLocal(name pwr.AttrName) pwr.Code {
	info, code := o.localAttr(name)
	if code != pwr.CodeSuccess {
		return code
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.loggers[name]; ok {
		return pwr.CodeSuccess
	}
	r := newRing(o.ringCap)
	o.rings[name] = r
	hz := info.Hz
	if hz <= 0 {
		hz = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &logger{cancel: cancel, done: make(chan struct{})}
	o.loggers[name] = l
	go o.sample(ctx, l.done, name, r, time.Duration(float64(time.Second)/hz))
	log.Debug().Str("object", o.name).Stringer("attr", name).Float64("hz", hz).Msg("object log started")
	return pwr.CodeSuccess
}

func (o *Object) sample(ctx context.Context, done chan struct{}, name pwr.AttrName, r *ring, every time.Duration) {
	defer close(done)
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		if v, ts, code := o.ReadLocal(name); code == pwr.CodeSuccess {
			r.add(ts, v)
		} else {
			log.Debug().Str("object", o.name).Stringer("attr", name).Stringer("code", code).Msg("object sample failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

// StopLogLocal stops sampling. Collected samples stay readable.
func (o *Object) StopLogLocal(name pwr.AttrName) pwr.Code {
	if _, code := o.localAttr(name); code != pwr.CodeSuccess {
		return code
	}
	o.mu.Lock()
	l, ok := o.loggers[name]
	delete(o.loggers, name)
	o.mu.Unlock()
	if !ok {
		return pwr.CodeInvalid
	}
	l.cancel()
	<-l.done
	log.Debug().Str("object", o.name).Stringer("attr", name).Msg("object log stopped")
	return pwr.CodeSuccess
}

// SamplesLocal fills dst with logged values of name. See ring.series.
func (o *Object) SamplesLocal(name pwr.AttrName, start pwr.Time, period float64, count uint32, dst []float64) (pwr.Time, uint32, pwr.Code) {
	if _, code := o.localAttr(name); code != pwr.CodeSuccess {
		return 0, 0, code
	}
	o.mu.Lock()
	r, ok := o.rings[name]
	o.mu.Unlock()
	if !ok {
		return 0, 0, pwr.CodeEmpty
	}
	return r.series(start, period, count, dst)
}

// Close stops every running logger.
func (o *Object) Close() {
	o.mu.Lock()
	names := make([]pwr.AttrName, 0, len(o.loggers))
	for name := range o.loggers {
		names = append(names, name)
	}
	o.mu.Unlock()
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	for _, name := range names {
		o.StopLogLocal(name)
	}
}
