package serial

import (
	"errors"
	"testing"
)

func TestBufferIndependentCursors(t *testing.T) {
	b := NewBuffer(64)
	b.PutUint32(7)
	b.PutString("plat.node0")
	b.PutFloat64s([]float64{1.5, 2.5})

	v, err := b.ReadUint32()
	if err != nil || v != 7 {
		t.Fatalf("uint32 got=%d err=%v", v, err)
	}

	// writing after a partial read must not disturb the read cursor
	b.PutInt32(-3)

	s, err := b.ReadString()
	if err != nil || s != "plat.node0" {
		t.Fatalf("string got=%q err=%v", s, err)
	}
	fs, err := b.ReadFloat64s()
	if err != nil || len(fs) != 2 || fs[1] != 2.5 {
		t.Fatalf("floats got=%v err=%v", fs, err)
	}
	i, err := b.ReadInt32()
	if err != nil || i != -3 {
		t.Fatalf("int32 got=%d err=%v", i, err)
	}
	if b.Remaining() != 0 {
		t.Fatalf("expected fully consumed buffer, remaining=%d", b.Remaining())
	}
}

func TestBufferShortRead(t *testing.T) {
	b := FromBytes([]byte{1, 2, 3})
	if _, err := b.ReadUint64(); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
}

func TestBufferDeclaredLengthTooLarge(t *testing.T) {
	b := NewBuffer(16)
	b.PutUint64(1 << 40)
	b.PutUint32(1)
	if _, err := b.ReadFloat64s(); !errors.Is(err, ErrLengthTooLarge) {
		t.Fatalf("expected ErrLengthTooLarge, got %v", err)
	}
}

func TestBufferBytesCopy(t *testing.T) {
	b := NewBuffer(16)
	b.PutBytes([]byte{0xAA, 0xBB})
	got, err := b.ReadBytes()
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	b.Bytes()[8] = 0
	if got[0] != 0xAA {
		t.Fatalf("read bytes alias the buffer")
	}
}
