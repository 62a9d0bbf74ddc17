package request

import (
	"math/rand"
	"testing"

	"github.com/danmuck/pwrapi/internal/pwr"
	"github.com/danmuck/pwrapi/internal/testutil/testlog"
)

func TestCallbackExactlyOnceRandomOrder(t *testing.T) {
	testlog.Start(t)
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		tbl := NewTable(nil)
		calls := 0
		r := tbl.NewAsync(func(*Request) { calls++ })

		n := 1 + rng.Intn(8)
		children := make([]*CommRequest, n)
		for i := range children {
			cr, err := r.Insert(KindGet)
			if err != nil {
				t.Fatalf("insert: %v", err)
			}
			children[i] = cr
		}
		if err := r.Submit(); err != nil {
			t.Fatalf("submit: %v", err)
		}
		rng.Shuffle(n, func(i, j int) { children[i], children[j] = children[j], children[i] })
		for i, cr := range children {
			if err := cr.Finish(); err != nil {
				t.Fatalf("finish: %v", err)
			}
			tbl.Reap()
			if i < n-1 && calls != 0 {
				t.Fatalf("round %d: callback ran after %d of %d completions", round, i+1, n)
			}
		}
		tbl.Reap()
		if calls != 1 {
			t.Fatalf("round %d: expected exactly one callback, got %d", round, calls)
		}
		if tbl.Len() != 0 {
			t.Fatalf("round %d: request not retired", round)
		}
		if _, ok := tbl.Get(r.ID()); ok {
			t.Fatalf("round %d: retired request still reachable", round)
		}
	}
}

func TestSubmitGatesEarlyCompletion(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable(nil)
	calls := 0
	r := tbl.NewAsync(func(*Request) { calls++ })
	cr, _ := r.Insert(KindSet)
	if err := cr.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if tbl.Reap() != 0 || calls != 0 {
		t.Fatalf("unsubmitted request must not be reaped")
	}
	if got, ok := tbl.Get(r.ID()); !ok || got != r {
		t.Fatalf("live request must be reachable by id")
	}
	// A second op can still join the batch before submit.
	cr2, err := r.Insert(KindSet)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := r.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if tbl.Reap() != 0 {
		t.Fatalf("request with pending child must not be reaped")
	}
	cr2.Finish()
	if tbl.Reap() != 1 || calls != 1 {
		t.Fatalf("expected one reaped callback, calls=%d", calls)
	}
	if err := r.Submit(); err == nil {
		t.Fatalf("expected error re-submitting a retired request")
	}
}

func TestSubmitWithNoChildrenCompletes(t *testing.T) {
	testlog.Start(t)
	tbl := NewTable(nil)
	var seen *Request
	r := tbl.NewAsync(func(done *Request) { seen = done })
	r.Status().Add("plat", pwr.AttrPower, pwr.CodeNoAttrib)
	if err := r.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if tbl.Reap() != 1 || seen != r {
		t.Fatalf("local-only async request must be reaped immediately")
	}
	if !r.Finalized() || r.Err() == nil {
		t.Fatalf("expected finalized request with status error")
	}
}
