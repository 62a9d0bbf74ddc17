package object

import (
	"sort"
	"sync"

	"github.com/danmuck/pwrapi/internal/pwr"
)

// DefaultRingSize bounds the samples kept per logged attribute.
const DefaultRingSize = 4096

type sample struct {
	t pwr.Time
	v float64
}

// ring is a fixed-capacity sample buffer in time order.
type ring struct {
	mu    sync.Mutex
	buf   []sample
	head  int
	count int
}

func newRing(size int) *ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &ring{buf: make([]sample, size)}
}

func (r *ring) add(t pwr.Time, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := (r.head + r.count) % len(r.buf)
	r.buf[idx] = sample{t: t, v: v}
	if r.count < len(r.buf) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.buf)
	}
}

func (r *ring) snapshot() []sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sample, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// series returns up to count values spaced period seconds apart from start,
// each the latest sample at or before its slot. A zero start, or one before
// the oldest sample, begins at the oldest sample. Slots past the newest
// sample are not filled.
func (r *ring) series(start pwr.Time, period float64, count uint32, dst []float64) (pwr.Time, uint32, pwr.Code) {
	if period <= 0 {
		return 0, 0, pwr.CodeBadValue
	}
	samples := r.snapshot()
	if len(samples) == 0 {
		return 0, 0, pwr.CodeEmpty
	}
	oldest, newest := samples[0].t, samples[len(samples)-1].t
	if start == 0 || start < oldest {
		start = oldest
	}
	if start > newest {
		return start, 0, pwr.CodeOutOfRange
	}
	step := period * 1e9
	n := uint32(0)
	for ; n < count && int(n) < len(dst); n++ {
		target := start + pwr.Time(float64(n)*step)
		if target > newest {
			break
		}
		i := sort.Search(len(samples), func(i int) bool { return samples[i].t > target }) - 1
		dst[n] = samples[i].v
	}
	return start, n, pwr.CodeSuccess
}
