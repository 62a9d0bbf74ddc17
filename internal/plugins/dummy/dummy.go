package dummy

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/pwrapi/internal/plugins"
	"github.com/danmuck/pwrapi/internal/pwr"
)

// PluginID is the canonical identifier for the in-memory test device.
const PluginID = "dummy"

// Factory builds in-memory devices. Useful for tests and for topologies that
// run without power hardware.
type Factory struct{}

func (Factory) Metadata() plugins.Metadata {
	return plugins.Metadata{
		ID:          PluginID,
		Name:        "Dummy (in-memory)",
		Description: "In-memory attribute store seeded from the open string",
	}
}

func (Factory) New(string) (plugins.Device, error) {
	return &Device{}, nil
}

type Device struct{}

// Open parses "name=value,..." pairs into the initial attribute set. An
// empty string opens a handle with no attributes.
func (d *Device) Open(open string) (plugins.Handle, error) {
	vals, err := ParseOpen(open)
	if err != nil {
		return nil, err
	}
	return &Handle{values: vals}, nil
}

func (d *Device) Close() error { return nil }

// ParseOpen decodes an open string such as "power=100,energy=5".
func ParseOpen(open string) (map[pwr.AttrName]float64, error) {
	out := make(map[pwr.AttrName]float64)
	for _, part := range strings.Split(open, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("dummy: malformed pair %q", part)
		}
		name, err := pwr.ParseAttrName(k)
		if err != nil {
			return nil, fmt.Errorf("dummy: %w", err)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("dummy: value for %s: %w", name, err)
		}
		out[name] = f
	}
	return out, nil
}

// Handle is one opened in-memory element.
type Handle struct {
	mu     sync.RWMutex
	values map[pwr.AttrName]float64
	closed bool
}

func readOnly(name pwr.AttrName) bool {
	return name == pwr.AttrEnergy || name == pwr.AttrTemp
}

func (h *Handle) Read(name pwr.AttrName) (float64, pwr.Time, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, 0, pwr.CodeFailure
	}
	v, ok := h.values[name]
	if !ok {
		return 0, 0, pwr.CodeNoAttrib
	}
	return v, pwr.Now(), nil
}

func (h *Handle) Write(name pwr.AttrName, value float64) error {
	if readOnly(name) {
		return pwr.CodeReadOnly
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return pwr.CodeFailure
	}
	if _, ok := h.values[name]; !ok {
		return pwr.CodeNoAttrib
	}
	h.values[name] = value
	return nil
}

func (h *Handle) Readv(names []pwr.AttrName, values []float64, times []pwr.Time, codes []pwr.Code) error {
	return plugins.ReadEach(h, names, values, times, codes)
}

func (h *Handle) Writev(names []pwr.AttrName, values []float64, codes []pwr.Code) error {
	return plugins.WriteEach(h, names, values, codes)
}

func (h *Handle) Time() (pwr.Time, error) { return pwr.Now(), nil }

// Clear zeroes every attribute, including read-only ones.
func (h *Handle) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for k := range h.values {
		h.values[k] = 0
	}
	return nil
}

func (h *Handle) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return nil
}
