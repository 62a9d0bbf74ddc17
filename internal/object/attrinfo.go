package object

import (
	"github.com/danmuck/pwrapi/internal/plugins"
	"github.com/danmuck/pwrapi/internal/pwr"
	"github.com/danmuck/pwrapi/internal/request"
)

// CommHandler forwards one exchange to the peers that own an attribute. A
// returned error means nothing was dispatched; the caller fails cr.
type CommHandler interface {
	GetValues(names []pwr.AttrName, ops []pwr.ValueOp, cr *request.CommRequest) error
	SetValues(names []pwr.AttrName, values []float64, cr *request.CommRequest) error
	StartLog(name pwr.AttrName, cr *request.CommRequest) error
	StopLog(name pwr.AttrName, cr *request.CommRequest) error
	GetSamples(name pwr.AttrName, start pwr.Time, period float64, count uint32, cr *request.CommRequest) error
}

// AttrInfo describes how one attribute of one object is resolved. Comm is nil
// for locally resolved attributes.
type AttrInfo struct {
	Op       pwr.ValueOp
	Hz       float64
	Devs     []plugins.Handle
	Children []*Object
	Comm     CommHandler
}

func (a *AttrInfo) local() bool { return a.Comm == nil }
