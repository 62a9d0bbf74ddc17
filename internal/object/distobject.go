package object

import (
	"context"
	"errors"
	"fmt"

	"github.com/danmuck/pwrapi/internal/pwr"
	"github.com/danmuck/pwrapi/internal/request"
)

// ErrInvalidCall rejects a call before any remote work is issued.
var ErrInvalidCall = errors.New("object: invalid call")

// DistObject resolves attributes locally or through their CommHandler.
type DistObject struct {
	*Object
	pumper  request.Pumper
	isLocal bool
}

// NewDist wraps obj. Whether the object is fully local is decided here, from
// the attributes installed so far, and never recomputed.
func NewDist(obj *Object, p request.Pumper) *DistObject {
	local := true
	for _, info := range obj.attrs {
		if info != nil && !info.local() {
			local = false
			break
		}
	}
	return &DistObject{Object: obj, pumper: p, isLocal: local}
}

// IsLocal reports whether no attribute needs remote communication.
func (d *DistObject) IsLocal() bool { return d.isLocal }

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCall, fmt.Sprintf(format, args...))
}

// plan splits names into local indexes and remote indexes sharing one
// handler. Unsupported attributes are reported through unsupported.
type plan struct {
	local       []int
	remote      []int
	unsupported []int
	comm        CommHandler
}

func (d *DistObject) plan(names []pwr.AttrName) (plan, error) {
	var p plan
	if len(names) == 0 {
		return p, invalidf("%s: empty attribute list", d.name)
	}
	for i, name := range names {
		if !name.Valid() {
			return p, invalidf("%s: attribute %s out of range", d.name, name)
		}
		info, ok := d.Attr(name)
		switch {
		case !ok:
			p.unsupported = append(p.unsupported, i)
		case info.local():
			p.local = append(p.local, i)
		default:
			if p.comm != nil && p.comm != info.Comm {
				return p, invalidf("%s: attributes span different comm handlers", d.name)
			}
			p.comm = info.Comm
			p.remote = append(p.remote, i)
		}
	}
	return p, nil
}

func (d *DistObject) result(req *request.Request, issued bool) error {
	if issued || req.Status().Empty() {
		return nil
	}
	return request.ErrStatus
}

// GetValuesReq reads names into values and times as part of req. Local
// attributes resolve now; remote ones go out in a single CommRequest. The
// return is nil when remote work is outstanding or nothing failed, and
// request.ErrStatus when only local work ran and something failed.
func (d *DistObject) GetValuesReq(names []pwr.AttrName, values []float64, times []pwr.Time, req *request.Request) error {
	if len(values) < len(names) || len(times) < len(names) {
		return invalidf("%s: value buffers shorter than names", d.name)
	}
	p, err := d.plan(names)
	if err != nil {
		return err
	}
	status := req.Status()
	for _, i := range p.unsupported {
		status.Add(d.name, names[i], pwr.CodeNoAttrib)
	}
	for _, i := range p.local {
		v, ts, code := d.ReadLocal(names[i])
		if code != pwr.CodeSuccess {
			status.Add(d.name, names[i], code)
			continue
		}
		values[i] = v
		times[i] = ts
	}
	if len(p.remote) == 0 {
		return d.result(req, false)
	}
	cr, err := req.Insert(request.KindGet)
	if err != nil {
		return err
	}
	cr.Object = d.name
	cr.Index = p.remote
	cr.Values = values
	cr.Times = times
	rnames := make([]pwr.AttrName, len(p.remote))
	ops := make([]pwr.ValueOp, len(p.remote))
	for j, i := range p.remote {
		rnames[j] = names[i]
		ops[j] = d.attrs[names[i]].Op
	}
	cr.Names = rnames
	if err := p.comm.GetValues(rnames, ops, cr); err != nil {
		_ = cr.Fail(err)
	}
	return d.result(req, true)
}

// GetValues is the blocking form of GetValuesReq. Failures are appended to
// status when it is not nil.
func (d *DistObject) GetValues(ctx context.Context, names []pwr.AttrName, values []float64, times []pwr.Time, status *request.Status) error {
	req := request.New(d.pumper)
	if err := d.GetValuesReq(names, values, times, req); errors.Is(err, ErrInvalidCall) || errors.Is(err, request.ErrFinalized) {
		return err
	}
	return d.finish(ctx, req, status)
}

// GetValue reads one attribute. An attribute failure is returned as its
// pwr.Code.
func (d *DistObject) GetValue(ctx context.Context, name pwr.AttrName) (float64, pwr.Time, error) {
	values := make([]float64, 1)
	times := make([]pwr.Time, 1)
	status := request.NewStatus()
	err := d.GetValues(ctx, []pwr.AttrName{name}, values, times, status)
	return values[0], times[0], single(err, status)
}

// SetValuesReq writes values to names as part of req.
func (d *DistObject) SetValuesReq(names []pwr.AttrName, values []float64, req *request.Request) error {
	if len(values) < len(names) {
		return invalidf("%s: value buffer shorter than names", d.name)
	}
	p, err := d.plan(names)
	if err != nil {
		return err
	}
	status := req.Status()
	for _, i := range p.unsupported {
		status.Add(d.name, names[i], pwr.CodeNoAttrib)
	}
	for _, i := range p.local {
		if code := d.WriteLocal(names[i], values[i]); code != pwr.CodeSuccess {
			status.Add(d.name, names[i], code)
		}
	}
	if len(p.remote) == 0 {
		return d.result(req, false)
	}
	cr, err := req.Insert(request.KindSet)
	if err != nil {
		return err
	}
	cr.Object = d.name
	cr.Index = p.remote
	rnames := make([]pwr.AttrName, len(p.remote))
	rvalues := make([]float64, len(p.remote))
	for j, i := range p.remote {
		rnames[j] = names[i]
		rvalues[j] = values[i]
	}
	cr.Names = rnames
	if err := p.comm.SetValues(rnames, rvalues, cr); err != nil {
		_ = cr.Fail(err)
	}
	return d.result(req, true)
}

func (d *DistObject) SetValues(ctx context.Context, names []pwr.AttrName, values []float64, status *request.Status) error {
	req := request.New(d.pumper)
	if err := d.SetValuesReq(names, values, req); errors.Is(err, ErrInvalidCall) || errors.Is(err, request.ErrFinalized) {
		return err
	}
	return d.finish(ctx, req, status)
}

func (d *DistObject) SetValue(ctx context.Context, name pwr.AttrName, value float64) error {
	status := request.NewStatus()
	err := d.SetValues(ctx, []pwr.AttrName{name}, []float64{value}, status)
	return single(err, status)
}

// logReq starts or stops logging of one attribute as part of req.
func (d *DistObject) logReq(kind request.Kind, name pwr.AttrName, req *request.Request) error {
	p, err := d.plan([]pwr.AttrName{name})
	if err != nil {
		return err
	}
	if len(p.unsupported) > 0 {
		req.Status().Add(d.name, name, pwr.CodeNoAttrib)
		return request.ErrStatus
	}
	if len(p.local) > 0 {
		var code pwr.Code
		if kind == request.KindStopLog {
			code = d.StopLogLocal(name)
		} else {
			code = d.StartLogLocal(name)
		}
		if code != pwr.CodeSuccess {
			req.Status().Add(d.name, name, code)
			return request.ErrStatus
		}
		return nil
	}
	cr, err := req.Insert(kind)
	if err != nil {
		return err
	}
	cr.Object = d.name
	cr.Names = []pwr.AttrName{name}
	send := p.comm.StartLog
	if kind == request.KindStopLog {
		send = p.comm.StopLog
	}
	if err := send(name, cr); err != nil {
		_ = cr.Fail(err)
	}
	return nil
}

func (d *DistObject) StartLogReq(name pwr.AttrName, req *request.Request) error {
	return d.logReq(request.KindStartLog, name, req)
}

func (d *DistObject) StopLogReq(name pwr.AttrName, req *request.Request) error {
	return d.logReq(request.KindStopLog, name, req)
}

func (d *DistObject) StartLog(ctx context.Context, name pwr.AttrName) error {
	return d.blockingLog(ctx, request.KindStartLog, name)
}

func (d *DistObject) StopLog(ctx context.Context, name pwr.AttrName) error {
	return d.blockingLog(ctx, request.KindStopLog, name)
}

func (d *DistObject) blockingLog(ctx context.Context, kind request.Kind, name pwr.AttrName) error {
	req := request.New(d.pumper)
	status := request.NewStatus()
	if err := d.logReq(kind, name, req); errors.Is(err, ErrInvalidCall) || errors.Is(err, request.ErrFinalized) {
		return err
	}
	return single(d.finish(ctx, req, status), status)
}

// GetSamplesReq fetches logged values of name as part of req. The resolved
// start time and the number of values filled are written to start and
// count when the request completes.
func (d *DistObject) GetSamplesReq(name pwr.AttrName, start pwr.Time, period float64, count uint32, values []float64, outStart *pwr.Time, outCount *uint32, req *request.Request) error {
	if uint32(len(values)) < count {
		return invalidf("%s: sample buffer shorter than count", d.name)
	}
	if outStart == nil || outCount == nil {
		return invalidf("%s: nil sample destinations", d.name)
	}
	p, err := d.plan([]pwr.AttrName{name})
	if err != nil {
		return err
	}
	if len(p.unsupported) > 0 {
		req.Status().Add(d.name, name, pwr.CodeNoAttrib)
		return request.ErrStatus
	}
	if len(p.local) > 0 {
		s, n, code := d.SamplesLocal(name, start, period, count, values)
		*outStart, *outCount = s, n
		if code != pwr.CodeSuccess {
			req.Status().Add(d.name, name, code)
			return request.ErrStatus
		}
		return nil
	}
	cr, err := req.Insert(request.KindGetSamples)
	if err != nil {
		return err
	}
	cr.Object = d.name
	cr.Names = []pwr.AttrName{name}
	cr.Values = values
	cr.Start = outStart
	cr.Count = outCount
	if err := p.comm.GetSamples(name, start, period, count, cr); err != nil {
		_ = cr.Fail(err)
	}
	return nil
}

// GetSamples is the blocking form of GetSamplesReq.
func (d *DistObject) GetSamples(ctx context.Context, name pwr.AttrName, start pwr.Time, period float64, count uint32, values []float64) (pwr.Time, uint32, error) {
	req := request.New(d.pumper)
	status := request.NewStatus()
	var outStart pwr.Time
	var outCount uint32
	if err := d.GetSamplesReq(name, start, period, count, values, &outStart, &outCount, req); errors.Is(err, ErrInvalidCall) || errors.Is(err, request.ErrFinalized) {
		return 0, 0, err
	}
	err := single(d.finish(ctx, req, status), status)
	return outStart, outCount, err
}

func (d *DistObject) finish(ctx context.Context, req *request.Request, status *request.Status) error {
	err := req.Wait(ctx)
	if status != nil {
		for _, e := range req.Status().Entries() {
			status.Add(e.Object, e.Name, e.Code)
		}
	}
	return err
}

// single turns a one-attribute ErrStatus into the attribute's code.
func single(err error, status *request.Status) error {
	if !errors.Is(err, request.ErrStatus) {
		return err
	}
	if e, ok := status.Pop(); ok {
		return e.Code
	}
	return err
}
