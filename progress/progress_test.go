package progress

import (
	"errors"
	"sync"
	"testing"
)

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) Report(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func TestFramePercent(t *testing.T) {
	tests := []struct {
		done, total, want int
	}{
		{0, 10, 30},
		{5, 10, 60},
		{10, 10, 90},
		{12, 10, 90},
		{1, 1, 90},
		{0, 0, 30},
	}
	for _, tt := range tests {
		if got := FramePercent(tt.done, tt.total); got != tt.want {
			t.Errorf("FramePercent(%d, %d) = %d; want %d", tt.done, tt.total, got, tt.want)
		}
	}
}

func TestTrackerConcurrentFrames(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker("job-1", rec)
	tr.SetTotal(100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.FrameDone()
		}()
	}
	wg.Wait()

	if tr.Completed() != 100 {
		t.Fatalf("Completed() = %d; want 100", tr.Completed())
	}
	if len(rec.updates) != 100 {
		t.Fatalf("got %d updates; want 100", len(rec.updates))
	}
	last := 0
	for _, u := range rec.updates {
		if u.Progress < last {
			t.Fatalf("progress went backwards: %d after %d", u.Progress, last)
		}
		last = u.Progress
		if u.JobID != "job-1" || u.Status != StatusProcessing {
			t.Errorf("unexpected update %+v", u)
		}
	}
	if last != FramesComplete {
		t.Errorf("final progress = %d; want %d", last, FramesComplete)
	}
}

func TestTrackerTerminal(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker("job-2", rec)
	tr.Phase(Extracted, "extracted")
	tr.Fail(errors.New("boom"))
	tr.Complete("done")
	tr.Phase(95, "late")

	if len(rec.updates) != 2 {
		t.Fatalf("got %d updates; want 2", len(rec.updates))
	}
	failed := rec.updates[1]
	if failed.Status != StatusError || failed.Message != "boom" {
		t.Errorf("terminal update = %+v", failed)
	}
	if failed.Progress != Extracted {
		t.Errorf("error progress = %d; want %d", failed.Progress, Extracted)
	}
}

func TestTrackerComplete(t *testing.T) {
	rec := &recorder{}
	tr := NewTracker("job-3", rec)
	tr.Phase(FramesComplete, "encoding")
	tr.Complete("finished")
	got := rec.updates[len(rec.updates)-1]
	if got.Status != StatusCompleted || got.Progress != Done {
		t.Errorf("final update = %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	s := Multi(a, nil, b)
	s.Report(Update{JobID: "x"})
	if len(a.updates) != 1 || len(b.updates) != 1 {
		t.Errorf("fan-out counts = %d, %d; want 1, 1", len(a.updates), len(b.updates))
	}
}

func TestNilSinkDiscards(t *testing.T) {
	tr := NewTracker("job-4", nil)
	tr.Phase(Started, "start")
	tr.Complete("ok")
}
