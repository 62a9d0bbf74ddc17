package plugins

import (
	"github.com/danmuck/pwrapi/internal/pwr"
)

// Metadata is plugin identity and display data.
type Metadata struct {
	ID          string
	Name        string
	Description string
}

// Factory creates device instances from an init string. One Factory is
// registered per plugin ID.
type Factory interface {
	Metadata() Metadata
	New(init string) (Device, error)
}

// Device is one initialized plugin instance. Open binds it to a specific
// hardware element named by the open string.
type Device interface {
	Open(open string) (Handle, error)
	Close() error
}

// Handle reads and writes attributes on one opened element. Errors are
// pwr.Code values.
type Handle interface {
	Read(name pwr.AttrName) (float64, pwr.Time, error)
	Write(name pwr.AttrName, value float64) error
	Readv(names []pwr.AttrName, values []float64, times []pwr.Time, codes []pwr.Code) error
	Writev(names []pwr.AttrName, values []float64, codes []pwr.Code) error
	Time() (pwr.Time, error)
	Clear() error
	Close() error
}

// ReadEach implements Readv over h.Read. The returned error is nil when
// every code is success and CodeFailure otherwise.
func ReadEach(h Handle, names []pwr.AttrName, values []float64, times []pwr.Time, codes []pwr.Code) error {
	if len(values) < len(names) || len(times) < len(names) || len(codes) < len(names) {
		return pwr.CodeLength
	}
	failed := false
	for i, name := range names {
		v, ts, err := h.Read(name)
		codes[i] = pwr.CodeOf(err)
		if err != nil {
			failed = true
			continue
		}
		values[i] = v
		times[i] = ts
	}
	if failed {
		return pwr.CodeFailure
	}
	return nil
}

// WriteEach implements Writev over h.Write.
func WriteEach(h Handle, names []pwr.AttrName, values []float64, codes []pwr.Code) error {
	if len(values) < len(names) || len(codes) < len(names) {
		return pwr.CodeLength
	}
	failed := false
	for i, name := range names {
		err := h.Write(name, values[i])
		codes[i] = pwr.CodeOf(err)
		if err != nil {
			failed = true
		}
	}
	if failed {
		return pwr.CodeFailure
	}
	return nil
}
