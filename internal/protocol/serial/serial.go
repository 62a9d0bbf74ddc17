package serial

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	ErrShortBuffer    = errors.New("serial: short buffer")
	ErrLengthTooLarge = errors.New("serial: declared length exceeds buffer")
)

// order is host-native. Peers are assumed to share an architecture.
var order = binary.NativeEndian

// Buffer is one message payload with independent read and write cursors.
// Writes append at the write cursor; reads consume from the read cursor.
type Buffer struct {
	data []byte
	rd   int
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// FromBytes wraps b for reading. The buffer owns b afterwards.
func FromBytes(b []byte) *Buffer {
	return &Buffer{data: b}
}

// Bytes returns everything written so far.
func (b *Buffer) Bytes() []byte { return b.data }

// Len is the number of bytes written.
func (b *Buffer) Len() int { return len(b.data) }

// Remaining is the number of unread bytes.
func (b *Buffer) Remaining() int { return len(b.data) - b.rd }

func (b *Buffer) PutUint32(v uint32) {
	b.data = order.AppendUint32(b.data, v)
}

func (b *Buffer) PutInt32(v int32) {
	b.PutUint32(uint32(v))
}

func (b *Buffer) PutUint64(v uint64) {
	b.data = order.AppendUint64(b.data, v)
}

func (b *Buffer) PutFloat64(v float64) {
	b.PutUint64(math.Float64bits(v))
}

// PutBytes writes a uint64 length followed by the raw bytes.
func (b *Buffer) PutBytes(v []byte) {
	b.PutUint64(uint64(len(v)))
	b.data = append(b.data, v...)
}

func (b *Buffer) PutString(v string) {
	b.PutUint64(uint64(len(v)))
	b.data = append(b.data, v...)
}

func (b *Buffer) PutInt32s(v []int32) {
	b.PutUint64(uint64(len(v)))
	for _, x := range v {
		b.PutInt32(x)
	}
}

func (b *Buffer) PutUint64s(v []uint64) {
	b.PutUint64(uint64(len(v)))
	for _, x := range v {
		b.PutUint64(x)
	}
}

func (b *Buffer) PutFloat64s(v []float64) {
	b.PutUint64(uint64(len(v)))
	for _, x := range v {
		b.PutFloat64(x)
	}
}

func (b *Buffer) take(n int) ([]byte, error) {
	if n < 0 || b.Remaining() < n {
		return nil, ErrShortBuffer
	}
	out := b.data[b.rd : b.rd+n]
	b.rd += n
	return out, nil
}

func (b *Buffer) ReadUint32() (uint32, error) {
	raw, err := b.take(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(raw), nil
}

func (b *Buffer) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

func (b *Buffer) ReadUint64() (uint64, error) {
	raw, err := b.take(8)
	if err != nil {
		return 0, err
	}
	return order.Uint64(raw), nil
}

func (b *Buffer) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	return math.Float64frombits(v), err
}

// count reads a length prefix and checks that size*n bytes remain.
func (b *Buffer) count(size int) (int, error) {
	n, err := b.ReadUint64()
	if err != nil {
		return 0, err
	}
	if n > uint64(b.Remaining()/size) {
		return 0, ErrLengthTooLarge
	}
	return int(n), nil
}

func (b *Buffer) ReadBytes() ([]byte, error) {
	n, err := b.count(1)
	if err != nil {
		return nil, err
	}
	raw, err := b.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, raw)
	return out, nil
}

func (b *Buffer) ReadString() (string, error) {
	n, err := b.count(1)
	if err != nil {
		return "", err
	}
	raw, err := b.take(n)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (b *Buffer) ReadInt32s() ([]int32, error) {
	n, err := b.count(4)
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		if out[i], err = b.ReadInt32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *Buffer) ReadUint64s() ([]uint64, error) {
	n, err := b.count(8)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		if out[i], err = b.ReadUint64(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (b *Buffer) ReadFloat64s() ([]float64, error) {
	n, err := b.count(8)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		if out[i], err = b.ReadFloat64(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
