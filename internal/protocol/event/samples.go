package event

import (
	"fmt"
	"strings"

	"github.com/danmuck/pwrapi/internal/protocol/serial"
	"github.com/danmuck/pwrapi/internal/pwr"
)

// GetSamplesReq reads logged samples of one attribute. Start of zero means
// "from the oldest retained sample"; Period is in seconds.
type GetSamplesReq struct {
	ID     uint64
	Object string
	Name   pwr.AttrName
	Start  pwr.Time
	Period float64
	Count  uint32
}

func (e *GetSamplesReq) Type() Type      { return TypeGetSamplesReq }
func (e *GetSamplesReq) EventID() uint64 { return e.ID }
func (e *GetSamplesReq) Target() string  { return e.Object }

func (e *GetSamplesReq) Validate() error {
	if strings.TrimSpace(e.Object) == "" {
		return fmt.Errorf("%w: get_samples missing object", ErrInvalid)
	}
	if e.Period <= 0 {
		return fmt.Errorf("%w: get_samples period must be positive", ErrInvalid)
	}
	return nil
}

func (e *GetSamplesReq) Encode(b *serial.Buffer) {
	b.PutUint64(e.ID)
	b.PutString(e.Object)
	b.PutInt32(int32(e.Name))
	b.PutUint64(uint64(e.Start))
	b.PutFloat64(e.Period)
	b.PutUint32(e.Count)
}

func decodeGetSamplesReq(b *serial.Buffer) (*GetSamplesReq, error) {
	e := &GetSamplesReq{}
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
	start, err := b.ReadUint64()
	if err != nil {
		return nil, err
	}
	e.Start = pwr.Time(start)
	if e.Period, err = b.ReadFloat64(); err != nil {
		return nil, err
	}
	if e.Count, err = b.ReadUint32(); err != nil {
		return nil, err
	}
	return e, nil
}

// GetSamplesResp returns Count values beginning at Start.
type GetSamplesResp struct {
	ID     uint64
	Start  pwr.Time
	Count  uint32
	Values []float64
	Code   pwr.Code
}

func (e *GetSamplesResp) Type() Type      { return TypeGetSamplesResp }
func (e *GetSamplesResp) EventID() uint64 { return e.ID }

func (e *GetSamplesResp) Encode(b *serial.Buffer) {
	b.PutUint64(e.ID)
	b.PutUint64(uint64(e.Start))
	b.PutUint32(e.Count)
	b.PutFloat64s(e.Values)
	b.PutInt32(int32(e.Code))
}

func decodeGetSamplesResp(b *serial.Buffer) (*GetSamplesResp, error) {
	e := &GetSamplesResp{}
	var err error
	if e.ID, err = b.ReadUint64(); err != nil {
		return nil, err
	}
	start, err := b.ReadUint64()
	if err != nil {
		return nil, err
	}
	e.Start = pwr.Time(start)
	if e.Count, err = b.ReadUint32(); err != nil {
		return nil, err
	}
	if e.Values, err = b.ReadFloat64s(); err != nil {
		return nil, err
	}
	code, err := b.ReadInt32()
	if err != nil {
		return nil, err
	}
	e.Code = pwr.Code(code)
	return e, nil
}
