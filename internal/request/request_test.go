package request

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/pwrapi/internal/pwr"
	"github.com/danmuck/pwrapi/internal/testutil/testlog"
)

// queuePumper finishes one queued comm request per Pump.
type queuePumper struct {
	queue []*CommRequest
	codes map[uint64]pwr.Code
	calls int
}

func (p *queuePumper) Pump(ctx context.Context) error {
	p.calls++
	if len(p.queue) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	cr := p.queue[0]
	p.queue = p.queue[1:]
	for i := range cr.Names {
		cr.SetValue(i, float64(10*(i+1)), pwr.Time(i+1))
		cr.SetCode(i, p.codes[cr.ID()])
	}
	return cr.Finish()
}

func TestStatusOrderAndPop(t *testing.T) {
	testlog.Start(t)
	s := NewStatus()
	if !s.Empty() {
		t.Fatalf("expected empty status")
	}
	s.Add("a", pwr.AttrPower, pwr.CodeReadOnly)
	s.Add("b", pwr.AttrEnergy, pwr.CodeNoAttrib)
	if s.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Len())
	}
	e, ok := s.Pop()
	if !ok || e.Object != "a" || e.Name != pwr.AttrPower || e.Code != pwr.CodeReadOnly {
		t.Fatalf("unexpected first entry %+v", e)
	}
	if got := s.Entries(); len(got) != 1 || got[0].Object != "b" {
		t.Fatalf("unexpected remaining entries %+v", got)
	}
	s.Pop()
	if _, ok := s.Pop(); ok {
		t.Fatalf("pop on empty status must report false")
	}
}

func TestPendingTracksUnfinishedChildren(t *testing.T) {
	testlog.Start(t)
	r := New(nil)
	var children []*CommRequest
	for i := 0; i < 5; i++ {
		cr, err := r.Insert(KindGet)
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		children = append(children, cr)
		if r.Pending() != i+1 {
			t.Fatalf("expected pending %d, got %d", i+1, r.Pending())
		}
	}
	for i, cr := range children {
		if err := cr.Finish(); err != nil {
			t.Fatalf("finish: %v", err)
		}
		if r.Pending() != len(children)-i-1 {
			t.Fatalf("expected pending %d, got %d", len(children)-i-1, r.Pending())
		}
	}
	if err := children[0].Finish(); !errors.Is(err, ErrAlreadyFinished) {
		t.Fatalf("expected ErrAlreadyFinished, got %v", err)
	}
	if r.Pending() != 0 || !r.Finished() {
		t.Fatalf("pending must not go negative, got %d", r.Pending())
	}
}

func TestCommRequestIDsAreUnique(t *testing.T) {
	testlog.Start(t)
	seen := make(map[uint64]bool)
	for i := 0; i < 3; i++ {
		r := New(nil)
		for j := 0; j < 3; j++ {
			cr, _ := r.Insert(KindSet)
			if seen[cr.ID()] {
				t.Fatalf("duplicate id %d", cr.ID())
			}
			seen[cr.ID()] = true
		}
	}
}

func TestWaitPumpsUntilComplete(t *testing.T) {
	testlog.Start(t)
	p := &queuePumper{codes: map[uint64]pwr.Code{}}
	r := New(p)
	values := make([]float64, 3)
	times := make([]pwr.Time, 3)
	cr, _ := r.Insert(KindGet)
	cr.Object = "plat.node1"
	cr.Names = []pwr.AttrName{pwr.AttrPower, pwr.AttrEnergy}
	cr.Index = []int{0, 2}
	cr.Values = values
	cr.Times = times
	p.queue = append(p.queue, cr)

	if err := r.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if values[0] != 10 || values[2] != 20 || values[1] != 0 {
		t.Fatalf("values not scattered through index: %v", values)
	}
	if times[0] != 1 || times[2] != 2 {
		t.Fatalf("times not scattered through index: %v", times)
	}
	if !r.Finalized() {
		t.Fatalf("wait must finalize")
	}
	if _, err := r.Insert(KindGet); !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized, got %v", err)
	}
}

func TestStatusEmptyIffSuccess(t *testing.T) {
	testlog.Start(t)
	for _, failures := range []int{0, 1, 4} {
		p := &queuePumper{codes: map[uint64]pwr.Code{}}
		r := New(p)
		for i := 0; i < 5; i++ {
			cr, _ := r.Insert(KindSet)
			cr.Names = []pwr.AttrName{pwr.AttrPowerLimitMax}
			if i < failures {
				p.codes[cr.ID()] = pwr.CodeBadValue
			}
			p.queue = append(p.queue, cr)
		}
		err := r.Wait(context.Background())
		if failures == 0 {
			if err != nil || !r.Status().Empty() {
				t.Fatalf("failures=0: err=%v status=%d", err, r.Status().Len())
			}
			continue
		}
		if !errors.Is(err, ErrStatus) {
			t.Fatalf("failures=%d: expected ErrStatus, got %v", failures, err)
		}
		if r.Status().Len() != failures {
			t.Fatalf("failures=%d: got %d entries", failures, r.Status().Len())
		}
	}
}

func TestFailReportsChannelLost(t *testing.T) {
	testlog.Start(t)
	cause := errors.New("peer reset")
	r := New(nil)
	cr, _ := r.Insert(KindGet)
	cr.Names = []pwr.AttrName{pwr.AttrPower, pwr.AttrTemp}
	if err := cr.Fail(cause); err != nil {
		t.Fatalf("fail: %v", err)
	}
	err := r.Wait(context.Background())
	if !errors.Is(err, ErrChannelLost) || !errors.Is(err, cause) {
		t.Fatalf("expected ErrChannelLost wrapping cause, got %v", err)
	}
	entries := r.Status().Entries()
	if len(entries) != 2 || entries[1].Code != pwr.CodeChannelLost {
		t.Fatalf("expected two channel-lost entries, got %+v", entries)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	testlog.Start(t)
	r := New(&queuePumper{})
	if _, err := r.Insert(KindGet); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if r.Pending() != 1 {
		t.Fatalf("cancelled wait must leave child pending")
	}
}

func TestLateWritesAfterCancelledWaitAreDropped(t *testing.T) {
	testlog.Start(t)
	r := New(&queuePumper{})
	cr, err := r.Insert(KindGet)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	values := make([]float64, 1)
	times := make([]pwr.Time, 1)
	var start pwr.Time
	var count uint32
	cr.Names = []pwr.AttrName{pwr.AttrPower}
	cr.Values, cr.Times = values, times
	cr.Start, cr.Count = &start, &count

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if !r.Finalized() {
		t.Fatalf("expected finalized after cancelled wait")
	}

	cr.SetValue(0, 999, 42)
	cr.SetSamples([]float64{7}, 5, 1)
	cr.SetCode(0, pwr.CodeFailure)
	if err := cr.Fail(errors.New("late")); err != nil {
		t.Fatalf("late fail: %v", err)
	}
	if values[0] != 0 || times[0] != 0 || start != 0 || count != 0 {
		t.Fatalf("expected untouched destinations, got values=%v times=%v start=%v count=%d", values, times, start, count)
	}
	if !r.Status().Empty() {
		t.Fatalf("expected empty status, got %+v", r.Status().Entries())
	}
	if r.Pending() != 0 {
		t.Fatalf("expected late finish to retire the child, got %d", r.Pending())
	}
}

func TestWaitWithoutPumper(t *testing.T) {
	testlog.Start(t)
	r := New(nil)
	if _, err := r.Insert(KindGet); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := r.Wait(context.Background()); !errors.Is(err, ErrNoPumper) {
		t.Fatalf("expected ErrNoPumper, got %v", err)
	}
}
