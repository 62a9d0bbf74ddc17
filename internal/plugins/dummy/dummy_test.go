package dummy

import (
	"errors"
	"testing"

	"github.com/danmuck/pwrapi/internal/pwr"
	"github.com/danmuck/pwrapi/internal/testutil/testlog"
)

func TestOpenSeedsValues(t *testing.T) {
	testlog.Start(t)
	dev, err := Factory{}.New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	h, err := dev.Open("power=100, energy=5,power_limit_max=250")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	v, ts, err := h.Read(pwr.AttrPower)
	if err != nil || v != 100 || ts == 0 {
		t.Fatalf("read power: v=%v ts=%v err=%v", v, ts, err)
	}
	if _, _, err := h.Read(pwr.AttrFreq); !errors.Is(err, pwr.CodeNoAttrib) {
		t.Fatalf("expected CodeNoAttrib, got %v", err)
	}
}

func TestWriteGuards(t *testing.T) {
	testlog.Start(t)
	h, err := (&Device{}).Open("power_limit_max=250,energy=5")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := h.Write(pwr.AttrPowerLimitMax, 200); err != nil {
		t.Fatalf("write: %v", err)
	}
	if v, _, _ := h.Read(pwr.AttrPowerLimitMax); v != 200 {
		t.Fatalf("expected 200, got %v", v)
	}
	if err := h.Write(pwr.AttrEnergy, 1); !errors.Is(err, pwr.CodeReadOnly) {
		t.Fatalf("expected CodeReadOnly, got %v", err)
	}
	if err := h.Write(pwr.AttrVoltage, 1); !errors.Is(err, pwr.CodeNoAttrib) {
		t.Fatalf("expected CodeNoAttrib, got %v", err)
	}
	if err := h.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if v, _, _ := h.Read(pwr.AttrEnergy); v != 0 {
		t.Fatalf("expected cleared energy, got %v", v)
	}
	_ = h.Close()
	if _, _, err := h.Read(pwr.AttrEnergy); err == nil {
		t.Fatalf("expected read on closed handle to fail")
	}
}

func TestParseOpenErrors(t *testing.T) {
	testlog.Start(t)
	for _, open := range []string{"power", "bogus=1", "power=abc"} {
		if _, err := ParseOpen(open); err == nil {
			t.Fatalf("expected error for %q", open)
		}
	}
}
