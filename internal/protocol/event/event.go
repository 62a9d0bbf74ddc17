package event

import (
	"errors"
	"fmt"

	"github.com/danmuck/pwrapi/internal/protocol/serial"
)

var (
	ErrUnknownType   = errors.New("event: unknown type")
	ErrTrailingBytes = errors.New("event: trailing payload bytes")
	ErrInvalid       = errors.New("event: invalid event")
)

// Type is the wire tag that precedes every payload.
type Type uint32

const (
	TypeGetValuesReq Type = iota + 1
	TypeGetValuesResp
	TypeSetValuesReq
	TypeSetValuesResp
	TypeStartLogReq
	TypeStartLogResp
	TypeStopLogReq
	TypeStopLogResp
	TypeGetSamplesReq
	TypeGetSamplesResp
)

var typeNames = map[Type]string{
	TypeGetValuesReq:   "get_values.req",
	TypeGetValuesResp:  "get_values.resp",
	TypeSetValuesReq:   "set_values.req",
	TypeSetValuesResp:  "set_values.resp",
	TypeStartLogReq:    "start_log.req",
	TypeStartLogResp:   "start_log.resp",
	TypeStopLogReq:     "stop_log.req",
	TypeStopLogResp:    "stop_log.resp",
	TypeGetSamplesReq:  "get_samples.req",
	TypeGetSamplesResp: "get_samples.resp",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// IsResponse reports whether t travels from the owning peer back to the caller.
func (t Type) IsResponse() bool {
	switch t {
	case TypeGetValuesResp, TypeSetValuesResp, TypeStartLogResp, TypeStopLogResp, TypeGetSamplesResp:
		return true
	}
	return false
}

// Event is one typed message exchanged between peers. EventID is the opaque
// identifier a response carries back so the caller can find its pending
// operation.
type Event interface {
	Type() Type
	EventID() uint64
	Encode(b *serial.Buffer)
}

// Request is an Event addressed to an object owned by the receiving peer.
type Request interface {
	Event
	Target() string
}

// Marshal serializes e into a fresh payload.
func Marshal(e Event) []byte {
	b := serial.NewBuffer(64)
	e.Encode(b)
	return b.Bytes()
}

// Decode allocates the concrete event for typ and fills it from payload.
func Decode(typ Type, payload []byte) (Event, error) {
	b := serial.FromBytes(payload)
	var (
		e   Event
		err error
	)
	switch typ {
	case TypeGetValuesReq:
		e, err = decodeGetValuesReq(b)
	case TypeGetValuesResp:
		e, err = decodeGetValuesResp(b)
	case TypeSetValuesReq:
		e, err = decodeSetValuesReq(b)
	case TypeSetValuesResp:
		e, err = decodeSetValuesResp(b)
	case TypeStartLogReq:
		e, err = decodeLogReq(b, TypeStartLogReq)
	case TypeStartLogResp:
		e, err = decodeLogResp(b, TypeStartLogResp)
	case TypeStopLogReq:
		e, err = decodeLogReq(b, TypeStopLogReq)
	case TypeStopLogResp:
		e, err = decodeLogResp(b, TypeStopLogResp)
	case TypeGetSamplesReq:
		e, err = decodeGetSamplesReq(b)
	case TypeGetSamplesResp:
		e, err = decodeGetSamplesResp(b)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint32(typ))
	}
	if err != nil {
		return nil, fmt.Errorf("event: decode %s: %w", typ, err)
	}
	if b.Remaining() != 0 {
		return nil, fmt.Errorf("%w: %s has %d extra", ErrTrailingBytes, typ, b.Remaining())
	}
	return e, nil
}
