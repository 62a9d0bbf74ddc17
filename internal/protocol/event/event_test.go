package event

import (
	"errors"
	"testing"

	"github.com/danmuck/pwrapi/internal/pwr"
)

func TestGetValuesReqDecode(t *testing.T) {
	in := &GetValuesReq{
		ID:     0xfeed,
		Object: "plat.node1",
		Names:  []pwr.AttrName{pwr.AttrPower, pwr.AttrEnergy},
		Ops:    []pwr.ValueOp{pwr.OpSum, pwr.OpMax},
	}
	if err := in.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	out, err := Decode(in.Type(), Marshal(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := out.(*GetValuesReq)
	if !ok {
		t.Fatalf("unexpected event type %T", out)
	}
	if got.ID != in.ID || got.Target() != "plat.node1" || len(got.Names) != 2 || got.Ops[1] != pwr.OpMax {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestGetSamplesRespDecode(t *testing.T) {
	in := &GetSamplesResp{ID: 9, Start: 1700000000, Count: 3, Values: []float64{1, 2, 3}, Code: pwr.CodeSuccess}
	out, err := Decode(TypeGetSamplesResp, Marshal(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := out.(*GetSamplesResp)
	if got.Start != in.Start || got.Count != 3 || got.Values[2] != 3 {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestLogRespKeepsKind(t *testing.T) {
	in := &LogResp{Kind: TypeStopLogResp, ID: 4, Code: pwr.CodeNotImplemented}
	out, err := Decode(TypeStopLogResp, Marshal(in))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Type() != TypeStopLogResp || out.(*LogResp).Code != pwr.CodeNotImplemented {
		t.Fatalf("unexpected event: %+v", out)
	}
	if !out.Type().IsResponse() {
		t.Fatalf("expected response type")
	}
	if ResponseKind(TypeStopLogReq) != TypeStopLogResp {
		t.Fatalf("unexpected response kind")
	}
}

func TestDecodeUnknownType(t *testing.T) {
	if _, err := Decode(Type(99), nil); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	payload := Marshal(&SetValuesResp{ID: 1, Codes: []pwr.Code{pwr.CodeSuccess}})
	payload = append(payload, 0xff)
	if _, err := Decode(TypeSetValuesResp, payload); !errors.Is(err, ErrTrailingBytes) {
		t.Fatalf("expected ErrTrailingBytes, got %v", err)
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	payload := Marshal(&SetValuesReq{ID: 1, Object: "plat", Names: []pwr.AttrName{pwr.AttrPower}, Values: []float64{10}})
	if _, err := Decode(TypeSetValuesReq, payload[:len(payload)-3]); err == nil {
		t.Fatalf("expected truncated decode error")
	}
}
