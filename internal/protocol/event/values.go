package event

import (
	"fmt"
	"strings"

	"github.com/danmuck/pwrapi/internal/protocol/serial"
	"github.com/danmuck/pwrapi/internal/pwr"
)

// GetValuesReq asks the owning peer for several attributes of one object.
type GetValuesReq struct {
	ID     uint64
	Object string
	Names  []pwr.AttrName
	Ops    []pwr.ValueOp
}

func (e *GetValuesReq) Type() Type      { return TypeGetValuesReq }
func (e *GetValuesReq) EventID() uint64 { return e.ID }
func (e *GetValuesReq) Target() string  { return e.Object }

func (e *GetValuesReq) Validate() error {
	if strings.TrimSpace(e.Object) == "" {
		return fmt.Errorf("%w: get_values missing object", ErrInvalid)
	}
	if len(e.Names) == 0 {
		return fmt.Errorf("%w: get_values missing names", ErrInvalid)
	}
	if len(e.Ops) != len(e.Names) {
		return fmt.Errorf("%w: get_values ops/names length mismatch", ErrInvalid)
	}
	return nil
}

func (e *GetValuesReq) Encode(b *serial.Buffer) {
	b.PutUint64(e.ID)
	b.PutString(e.Object)
	b.PutInt32s(attrsToInt32(e.Names))
	b.PutInt32s(opsToInt32(e.Ops))
}

func decodeGetValuesReq(b *serial.Buffer) (*GetValuesReq, error) {
	e := &GetValuesReq{}
	var err error
	if e.ID, err = b.ReadUint64(); err != nil {
		return nil, err
	}
	if e.Object, err = b.ReadString(); err != nil {
		return nil, err
	}
	names, err := b.ReadInt32s()
	if err != nil {
		return nil, err
	}
	ops, err := b.ReadInt32s()
	if err != nil {
		return nil, err
	}
	e.Names = int32ToAttrs(names)
	e.Ops = int32ToOps(ops)
	return e, nil
}

// GetValuesResp carries one value, timestamp, and code per requested name,
// in request order.
type GetValuesResp struct {
	ID     uint64
	Values []float64
	Times  []pwr.Time
	Codes  []pwr.Code
}

func (e *GetValuesResp) Type() Type      { return TypeGetValuesResp }
func (e *GetValuesResp) EventID() uint64 { return e.ID }

func (e *GetValuesResp) Encode(b *serial.Buffer) {
	b.PutUint64(e.ID)
	b.PutFloat64s(e.Values)
	b.PutUint64s(timesToUint64(e.Times))
	b.PutInt32s(codesToInt32(e.Codes))
}

func decodeGetValuesResp(b *serial.Buffer) (*GetValuesResp, error) {
	e := &GetValuesResp{}
	var err error
	if e.ID, err = b.ReadUint64(); err != nil {
		return nil, err
	}
	if e.Values, err = b.ReadFloat64s(); err != nil {
		return nil, err
	}
	times, err := b.ReadUint64s()
	if err != nil {
		return nil, err
	}
	codes, err := b.ReadInt32s()
	if err != nil {
		return nil, err
	}
	e.Times = uint64ToTimes(times)
	e.Codes = int32ToCodes(codes)
	return e, nil
}

// SetValuesReq writes several attributes of one object on the owning peer.
type SetValuesReq struct {
	ID     uint64
	Object string
	Names  []pwr.AttrName
	Values []float64
}

func (e *SetValuesReq) Type() Type      { return TypeSetValuesReq }
func (e *SetValuesReq) EventID() uint64 { return e.ID }
func (e *SetValuesReq) Target() string  { return e.Object }

func (e *SetValuesReq) Validate() error {
	if strings.TrimSpace(e.Object) == "" {
		return fmt.Errorf("%w: set_values missing object", ErrInvalid)
	}
	if len(e.Names) == 0 {
		return fmt.Errorf("%w: set_values missing names", ErrInvalid)
	}
	if len(e.Values) != len(e.Names) {
		return fmt.Errorf("%w: set_values values/names length mismatch", ErrInvalid)
	}
	return nil
}

func (e *SetValuesReq) Encode(b *serial.Buffer) {
	b.PutUint64(e.ID)
	b.PutString(e.Object)
	b.PutInt32s(attrsToInt32(e.Names))
	b.PutFloat64s(e.Values)
}

func decodeSetValuesReq(b *serial.Buffer) (*SetValuesReq, error) {
	e := &SetValuesReq{}
	var err error
	if e.ID, err = b.ReadUint64(); err != nil {
		return nil, err
	}
	if e.Object, err = b.ReadString(); err != nil {
		return nil, err
	}
	names, err := b.ReadInt32s()
	if err != nil {
		return nil, err
	}
	e.Names = int32ToAttrs(names)
	if e.Values, err = b.ReadFloat64s(); err != nil {
		return nil, err
	}
	return e, nil
}

type SetValuesResp struct {
	ID    uint64
	Codes []pwr.Code
}

func (e *SetValuesResp) Type() Type      { return TypeSetValuesResp }
func (e *SetValuesResp) EventID() uint64 { return e.ID }

func (e *SetValuesResp) Encode(b *serial.Buffer) {
	b.PutUint64(e.ID)
	b.PutInt32s(codesToInt32(e.Codes))
}

func decodeSetValuesResp(b *serial.Buffer) (*SetValuesResp, error) {
	e := &SetValuesResp{}
	var err error
	if e.ID, err = b.ReadUint64(); err != nil {
		return nil, err
	}
	codes, err := b.ReadInt32s()
	if err != nil {
		return nil, err
	}
	e.Codes = int32ToCodes(codes)
	return e, nil
}

func attrsToInt32(in []pwr.AttrName) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func int32ToAttrs(in []int32) []pwr.AttrName {
	out := make([]pwr.AttrName, len(in))
	for i, v := range in {
		out[i] = pwr.AttrName(v)
	}
	return out
}

func opsToInt32(in []pwr.ValueOp) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func int32ToOps(in []int32) []pwr.ValueOp {
	out := make([]pwr.ValueOp, len(in))
	for i, v := range in {
		out[i] = pwr.ValueOp(v)
	}
	return out
}

func codesToInt32(in []pwr.Code) []int32 {
	out := make([]int32, len(in))
	for i, v := range in {
		out[i] = int32(v)
	}
	return out
}

func int32ToCodes(in []int32) []pwr.Code {
	out := make([]pwr.Code, len(in))
	for i, v := range in {
		out[i] = pwr.Code(v)
	}
	return out
}

func timesToUint64(in []pwr.Time) []uint64 {
	out := make([]uint64, len(in))
	for i, v := range in {
		out[i] = uint64(v)
	}
	return out
}

func uint64ToTimes(in []uint64) []pwr.Time {
	out := make([]pwr.Time, len(in))
	for i, v := range in {
		out[i] = pwr.Time(v)
	}
	return out
}
