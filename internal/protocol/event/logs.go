package event

import (
	"fmt"
	"strings"

	"github.com/danmuck/pwrapi/internal/protocol/serial"
	"github.com/danmuck/pwrapi/internal/pwr"
)

// LogReq starts or stops attribute logging on the owning peer. Kind is
// TypeStartLogReq or TypeStopLogReq.
type LogReq struct {
	Kind   Type
	ID     uint64
	Object string
	Name   pwr.AttrName
}

func NewStartLogReq(id uint64, object string, name pwr.AttrName) *LogReq {
	return &LogReq{Kind: TypeStartLogReq, ID: id, Object: object, Name: name}
}

func NewStopLogReq(id uint64, object string, name pwr.AttrName) *LogReq {
	return &LogReq{Kind: TypeStopLogReq, ID: id, Object: object, Name: name}
}

func (e *LogReq) Type() Type      { return e.Kind }
func (e *LogReq) EventID() uint64 { return e.ID }
func (e *LogReq) Target() string  { return e.Object }

func (e *LogReq) Validate() error {
	if e.Kind != TypeStartLogReq && e.Kind != TypeStopLogReq {
		return fmt.Errorf("%w: log request kind %s", ErrInvalid, e.Kind)
	}
	if strings.TrimSpace(e.Object) == "" {
		return fmt.Errorf("%w: %s missing object", ErrInvalid, e.Kind)
	}
	return nil
}

func (e *LogReq) Encode(b *serial.Buffer) {
	b.PutUint64(e.ID)
	b.PutString(e.Object)
	b.PutInt32(int32(e.Name))
}

func decodeLogReq(b *serial.Buffer, kind Type) (*LogReq, error) {
	e := &LogReq{Kind: kind}
	var err error
	if e.ID, err = b.ReadUint64(); err != nil {
		return nil, err
	}
	if e.Object, err = b.ReadString(); err != nil {
		return nil, err
	}
	name, err := b.ReadInt32()
	if err != nil {
		return nil, err
	}
	e.Name = pwr.AttrName(name)
	return e, nil
}

// LogResp answers a LogReq. Kind is TypeStartLogResp or TypeStopLogResp.
type LogResp struct {
	Kind Type
	ID   uint64
	Code pwr.Code
}

func (e *LogResp) Type() Type      { return e.Kind }
func (e *LogResp) EventID() uint64 { return e.ID }

func (e *LogResp) Encode(b *serial.Buffer) {
	b.PutUint64(e.ID)
	b.PutInt32(int32(e.Code))
}

func decodeLogResp(b *serial.Buffer, kind Type) (*LogResp, error) {
	e := &LogResp{Kind: kind}
	var err error
	if e.ID, err = b.ReadUint64(); err != nil {
		return nil, err
	}
	code, err := b.ReadInt32()
	if err != nil {
		return nil, err
	}
	e.Code = pwr.Code(code)
	return e, nil
}

// ResponseKind maps a request type to the type of its reply.
func ResponseKind(t Type) Type {
	switch t {
	case TypeGetValuesReq:
		return TypeGetValuesResp
	case TypeSetValuesReq:
		return TypeSetValuesResp
	case TypeStartLogReq:
		return TypeStartLogResp
	case TypeStopLogReq:
		return TypeStopLogResp
	case TypeGetSamplesReq:
		return TypeGetSamplesResp
	}
	return 0
}
