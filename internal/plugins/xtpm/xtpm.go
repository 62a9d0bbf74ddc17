// Package xtpm reads Cray XT power management counters from sysfs.
package xtpm

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/danmuck/pwrapi/internal/plugins"
	"github.com/danmuck/pwrapi/internal/pwr"
	"github.com/rs/zerolog/log"
)

const (
	PluginID    = "xtpm"
	DefaultRoot = "/sys/cray/pm_counters"

	counterGeneration = "generation"
)

var counters = map[pwr.AttrName]string{
	pwr.AttrPower:         "power",
	pwr.AttrEnergy:        "energy",
	pwr.AttrPowerLimitMax: "power_cap",
}

// Factory builds counter readers. The init string overrides the counter
// directory.
type Factory struct{}

func (Factory) Metadata() plugins.Metadata {
	return plugins.Metadata{
		ID:          PluginID,
		Name:        "XT power management counters",
		Description: "Node power, energy and power cap from pm_counters",
	}
}

func (Factory) New(init string) (plugins.Device, error) {
	root := strings.TrimSpace(init)
	if root == "" {
		root = DefaultRoot
	}
	return &Device{root: root}, nil
}

type Device struct {
	root string
}

// Open snapshots the generation counter; the open string is ignored since
// the counters describe the whole node.
func (d *Device) Open(string) (plugins.Handle, error) {
	gen, err := readCounter(d.root, counterGeneration)
	if err != nil {
		return nil, fmt.Errorf("xtpm: open: %w", err)
	}
	return &Handle{root: d.root, generation: gen}, nil
}

func (d *Device) Close() error { return nil }

type Handle struct {
	root string

	mu         sync.Mutex
	generation float64
}

func (h *Handle) Read(name pwr.AttrName) (float64, pwr.Time, error) {
	counter, ok := counters[name]
	if !ok {
		return 0, 0, pwr.CodeNoAttrib
	}
	v, err := readCounter(h.root, counter)
	if err != nil {
		log.Debug().Str("counter", counter).Err(err).Msg("xtpm read failed")
		return 0, 0, pwr.CodeFailure
	}
	ts := pwr.Now()
	h.checkGeneration()
	return v, ts, nil
}

func (h *Handle) checkGeneration() {
	gen, err := readCounter(h.root, counterGeneration)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.generation {
		log.Warn().Float64("was", h.generation).Float64("now", gen).Msg("xtpm generation counter rolled over")
		h.generation = gen
	}
}

// Write supports only the power cap.
func (h *Handle) Write(name pwr.AttrName, value float64) error {
	if name != pwr.AttrPowerLimitMax {
		if _, ok := counters[name]; ok {
			return pwr.CodeReadOnly
		}
		return pwr.CodeNoAttrib
	}
	path := filepath.Join(h.root, counters[name])
	if err := os.WriteFile(path, []byte(strconv.FormatFloat(value, 'f', 6, 64)), 0o644); err != nil {
		log.Debug().Str("path", path).Err(err).Msg("xtpm write failed")
		return pwr.CodeFailure
	}
	return nil
}

func (h *Handle) Readv(names []pwr.AttrName, values []float64, times []pwr.Time, codes []pwr.Code) error {
	return plugins.ReadEach(h, names, values, times, codes)
}

func (h *Handle) Writev(names []pwr.AttrName, values []float64, codes []pwr.Code) error {
	return plugins.WriteEach(h, names, values, codes)
}

// Time is the timestamp of a fresh energy read.
func (h *Handle) Time() (pwr.Time, error) {
	_, ts, err := h.Read(pwr.AttrEnergy)
	return ts, err
}

func (h *Handle) Clear() error { return nil }
func (h *Handle) Close() error { return nil }

// readCounter parses the first space-delimited token of a counter file.
// Counter files read like "245 W".
func readCounter(root, name string) (float64, error) {
	raw, err := os.ReadFile(filepath.Join(root, name))
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return 0, fmt.Errorf("counter %s is empty", name)
	}
	return strconv.ParseFloat(fields[0], 64)
}
