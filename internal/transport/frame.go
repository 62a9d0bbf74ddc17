package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/pwrapi/internal/protocol/event"
)

const (
	typeLen   = 4
	lengthLen = 8
	headerLen = typeLen + lengthLen
)

var (
	ErrTruncated       = errors.New("transport: truncated frame")
	ErrPayloadTooLarge = errors.New("transport: payload too large")
)

var order = binary.NativeEndian

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint64
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 8 * 1024 * 1024}
}

// WriteFrame writes the whole frame with a single Write call.
func WriteFrame(w io.Writer, typ event.Type, payload []byte, limits Limits) error {
	if uint64(len(payload)) > limits.MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	buf := make([]byte, headerLen, headerLen+len(payload))
	order.PutUint32(buf[0:typeLen], uint32(typ))
	order.PutUint64(buf[typeLen:headerLen], uint64(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame. A stream that ends before the first byte of the
// type field returns io.EOF: the peer closed in an orderly way.
func ReadFrame(r io.Reader, limits Limits) (event.Type, []byte, error) {
	var head [headerLen]byte
	n, err := io.ReadFull(r, head[:typeLen])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, truncated(err)
	}
	if _, err := io.ReadFull(r, head[typeLen:]); err != nil {
		return 0, nil, truncated(err)
	}
	typ := event.Type(order.Uint32(head[0:typeLen]))
	length := order.Uint64(head[typeLen:headerLen])
	if length > limits.MaxPayloadBytes {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, length)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, truncated(err)
		}
	}
	return typ, payload, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}

// WriteEvent serializes e and writes it as one frame.
func WriteEvent(w io.Writer, e event.Event, limits Limits) error {
	return WriteFrame(w, e.Type(), event.Marshal(e), limits)
}

// ReadEvent reads one frame and decodes it.
func ReadEvent(r io.Reader, limits Limits) (event.Event, error) {
	typ, payload, err := ReadFrame(r, limits)
	if err != nil {
		return nil, err
	}
	return event.Decode(typ, payload)
}
