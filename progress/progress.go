// Package progress carries job status updates from the conversion pipeline
// to whoever is listening: the job queue, a terminal progress bar, a test.
package progress

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the coarse job state carried by an Update.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further updates follow s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Update is one progress report for a job.
type Update struct {
	JobID     string    `json:"jobId"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives updates. Report may be called from several goroutines.
type Sink interface {
	Report(Update)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Update)

func (f SinkFunc) Report(u Update) { f(u) }

// Discard drops every update.
var Discard Sink = SinkFunc(func(Update) {})

type multiSink []Sink

func (m multiSink) Report(u Update) {
	for _, s := range m {
		s.Report(u)
	}
}

// Multi fans each update out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Phase boundaries, in percent.
const (
	Started        = 5
	Extracted      = 30
	FramesComplete = 90
	Publishing     = 95
	Done           = 100
)

// FramePercent maps done/total frames onto the 30..90 band.
func FramePercent(done, total int) int {
	if total <= 0 {
		return Extracted
	}
	if done > total {
		done = total
	}
	return Extracted + (FramesComplete-Extracted)*done/total
}

// Tracker reports a single job's progress. Frame completions are counted
// atomically so workers can call FrameDone in any order; emitted percentages
// never go backwards and nothing is emitted after a terminal update.
type Tracker struct {
	jobID string
	sink  Sink
	now   func() time.Time

	total     atomic.Int64
	completed atomic.Int64

	mu       sync.Mutex
	last     int
	terminal bool
}

// NewTracker returns a Tracker reporting to sink. A nil sink discards.
func NewTracker(jobID string, sink Sink) *Tracker {
	if sink == nil {
		sink = Discard
	}
	return &Tracker{jobID: jobID, sink: sink, now: time.Now}
}

// JobID returns the job this tracker reports for.
func (t *Tracker) JobID() string { return t.jobID }

// Phase reports a processing update at pct.
func (t *Tracker) Phase(pct int, msg string) {
	t.emit(StatusProcessing, pct, msg)
}

// SetTotal fixes the frame count used by FrameDone.
func (t *Tracker) SetTotal(n int) {
	t.total.Store(int64(n))
}

// Completed returns how many frames have finished so far.
func (t *Tracker) Completed() int {
	return int(t.completed.Load())
}

// FrameDone counts one finished frame and reports the new percentage.
func (t *Tracker) FrameDone() {
	done := int(t.completed.Add(1))
	total := int(t.total.Load())
	t.emit(StatusProcessing, FramePercent(done, total), fmt.Sprintf("Processed frame %d/%d", done, total))
}

// Complete emits the terminal completed update.
func (t *Tracker) Complete(msg string) {
	t.emit(StatusCompleted, Done, msg)
}

// Fail emits the terminal error update carrying err's message.
func (t *Tracker) Fail(err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	t.mu.Lock()
	pct := t.last
	t.mu.Unlock()
	t.emit(StatusError, pct, msg)
}

func (t *Tracker) emit(status Status, pct int, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.terminal {
		return
	}
	if pct < t.last {
		pct = t.last
	}
	if pct > Done {
		pct = Done
	}
	t.last = pct
	t.terminal = status.Terminal()
	t.sink.Report(Update{
		JobID:     t.jobID,
		Status:    status,
		Progress:  pct,
		Message:   msg,
		Timestamp: t.now(),
	})
}
