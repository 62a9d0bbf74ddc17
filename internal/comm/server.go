package comm

import (
	"context"
	"errors"

	"github.com/danmuck/pwrapi/internal/object"
	"github.com/danmuck/pwrapi/internal/protocol/event"
	"github.com/danmuck/pwrapi/internal/pwr"
	"github.com/danmuck/pwrapi/internal/request"
	"github.com/danmuck/pwrapi/internal/transport"
	"github.com/rs/zerolog/log"
)

// maxSampleCount bounds the buffer allocated for one samples request.
const maxSampleCount = 1 << 20

// Resolver finds the local view of a named object.
type Resolver interface {
	Object(name string) (*object.DistObject, bool)
}

// Server answers request events from other peers. Each request becomes an
// async request in the table; its callback writes the response to the
// channel the request arrived on.
type Server struct {
	resolver Resolver
	table    *request.Table
	ctx      context.Context
}

func NewServer(ctx context.Context, r Resolver, table *request.Table) *Server {
	return &Server{resolver: r, table: table, ctx: ctx}
}

// inbound marks an accepted channel in the multiplexer.
type inbound struct {
	conn *transport.Conn
}

func (s *Server) reply(ch transport.Channel, resp event.Event) {
	if err := ch.Send(s.ctx, resp); err != nil {
		log.Warn().Str("channel", ch.Name()).Stringer("type", resp.Type()).Err(err).Msg("comm.Server reply failed")
	}
}

// codes maps the status of r onto names. Names without an entry succeeded.
func codes(r *request.Request, names []pwr.AttrName) []pwr.Code {
	out := make([]pwr.Code, len(names))
	entries := r.Status().Entries()
	for i, name := range names {
		for _, e := range entries {
			if e.Name == name {
				out[i] = e.Code
				break
			}
		}
	}
	return out
}

func fill(n int, code pwr.Code) []pwr.Code {
	out := make([]pwr.Code, n)
	for i := range out {
		out[i] = code
	}
	return out
}

// callCode maps a synchronous call error to a wire code. ErrStatus is left
// for the callback to report per name.
func callCode(err error) pwr.Code {
	switch {
	case err == nil, errors.Is(err, request.ErrStatus):
		return pwr.CodeSuccess
	case errors.Is(err, object.ErrInvalidCall):
		return pwr.CodeInvalid
	default:
		return pwr.CodeOf(err)
	}
}

// Dispatch serves one request event received on ch.
func (s *Server) Dispatch(ch transport.Channel, ev event.Event) {
	req, ok := ev.(event.Request)
	if !ok {
		log.Warn().Str("channel", ch.Name()).Stringer("type", ev.Type()).Msg("comm.Server dropped non-request event")
		return
	}
	obj, found := s.resolver.Object(req.Target())
	if !found {
		log.Debug().Str("object", req.Target()).Stringer("type", ev.Type()).Msg("comm.Server unknown object")
	}
	log.Debug().Str("channel", ch.Name()).Str("object", req.Target()).Stringer("type", ev.Type()).Uint64("id", ev.EventID()).Msg("comm.Server request")

	switch e := ev.(type) {
	case *event.GetValuesReq:
		s.getValues(ch, obj, e)
	case *event.SetValuesReq:
		s.setValues(ch, obj, e)
	case *event.LogReq:
		s.toggleLog(ch, obj, e)
	case *event.GetSamplesReq:
		s.getSamples(ch, obj, e)
	default:
		log.Warn().Stringer("type", ev.Type()).Msg("comm.Server unsupported request")
	}
}

func (s *Server) getValues(ch transport.Channel, obj *object.DistObject, e *event.GetValuesReq) {
	n := len(e.Names)
	if obj == nil {
		s.reply(ch, &event.GetValuesResp{ID: e.ID, Values: make([]float64, n), Times: make([]pwr.Time, n), Codes: fill(n, pwr.CodeInvalid)})
		return
	}
	values := make([]float64, n)
	times := make([]pwr.Time, n)
	var callErr pwr.Code
	r := s.table.NewAsync(func(r *request.Request) {
		out := codes(r, e.Names)
		if callErr != pwr.CodeSuccess {
			out = fill(n, callErr)
		}
		s.reply(ch, &event.GetValuesResp{ID: e.ID, Values: values, Times: times, Codes: out})
	})
	callErr = callCode(obj.GetValuesReq(e.Names, values, times, r))
	_ = r.Submit()
}

func (s *Server) setValues(ch transport.Channel, obj *object.DistObject, e *event.SetValuesReq) {
	n := len(e.Names)
	if obj == nil {
		s.reply(ch, &event.SetValuesResp{ID: e.ID, Codes: fill(n, pwr.CodeInvalid)})
		return
	}
	var callErr pwr.Code
	r := s.table.NewAsync(func(r *request.Request) {
		out := codes(r, e.Names)
		if callErr != pwr.CodeSuccess {
			out = fill(n, callErr)
		}
		s.reply(ch, &event.SetValuesResp{ID: e.ID, Codes: out})
	})
	callErr = callCode(obj.SetValuesReq(e.Names, e.Values, r))
	_ = r.Submit()
}

func (s *Server) toggleLog(ch transport.Channel, obj *object.DistObject, e *event.LogReq) {
	kind := event.ResponseKind(e.Kind)
	if obj == nil {
		s.reply(ch, &event.LogResp{Kind: kind, ID: e.ID, Code: pwr.CodeInvalid})
		return
	}
	var callErr pwr.Code
	r := s.table.NewAsync(func(r *request.Request) {
		code := codes(r, []pwr.AttrName{e.Name})[0]
		if callErr != pwr.CodeSuccess {
			code = callErr
		}
		s.reply(ch, &event.LogResp{Kind: kind, ID: e.ID, Code: code})
	})
	if e.Kind == event.TypeStartLogReq {
		callErr = callCode(obj.StartLogReq(e.Name, r))
	} else {
		callErr = callCode(obj.StopLogReq(e.Name, r))
	}
	_ = r.Submit()
}

func (s *Server) getSamples(ch transport.Channel, obj *object.DistObject, e *event.GetSamplesReq) {
	if obj == nil {
		s.reply(ch, &event.GetSamplesResp{ID: e.ID, Code: pwr.CodeInvalid})
		return
	}
	if e.Count > maxSampleCount {
		s.reply(ch, &event.GetSamplesResp{ID: e.ID, Code: pwr.CodeLength})
		return
	}
	values := make([]float64, e.Count)
	var (
		start   pwr.Time
		count   uint32
		callErr pwr.Code
	)
	r := s.table.NewAsync(func(r *request.Request) {
		code := codes(r, []pwr.AttrName{e.Name})[0]
		if callErr != pwr.CodeSuccess {
			code = callErr
		}
		if code != pwr.CodeSuccess {
			s.reply(ch, &event.GetSamplesResp{ID: e.ID, Code: code})
			return
		}
		s.reply(ch, &event.GetSamplesResp{ID: e.ID, Start: start, Count: count, Values: values[:count], Code: code})
	})
	callErr = callCode(obj.GetSamplesReq(e.Name, e.Start, e.Period, e.Count, values, &start, &count, r))
	_ = r.Submit()
}
