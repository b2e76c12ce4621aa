package jobqueue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stevecastle/vr180/progress"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// One connection so every query sees the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func convert(input string) NewJob {
	return NewJob{Command: "vr180", Input: input}
}

// ============================================================================
// JobState Tests
// ============================================================================

func TestJobStateString(t *testing.T) {
	tests := []struct {
		state    JobState
		expected string
	}{
		{StatePending, "Pending"},
		{StateInProgress, "InProgress"},
		{StateCompleted, "Completed"},
		{StateCancelled, "Cancelled"},
		{StateError, "Error"},
		{JobState(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("JobState(%d).String() = %q; want %q", tt.state, got, tt.expected)
		}
	}
}

func TestJobStateJSON(t *testing.T) {
	tests := []struct {
		state JobState
		json  string
	}{
		{StatePending, `"pending"`},
		{StateInProgress, `"in_progress"`},
		{StateCompleted, `"completed"`},
		{StateCancelled, `"cancelled"`},
		{StateError, `"error"`},
	}

	for _, tt := range tests {
		data, err := json.Marshal(tt.state)
		if err != nil {
			t.Fatalf("MarshalJSON(%v) error = %v", tt.state, err)
		}
		if string(data) != tt.json {
			t.Errorf("MarshalJSON(%v) = %s; want %s", tt.state, data, tt.json)
		}
		var back JobState
		if err := json.Unmarshal(data, &back); err != nil || back != tt.state {
			t.Errorf("UnmarshalJSON(%s) = %v, %v; want %v", data, back, err, tt.state)
		}
	}

	var s JobState
	if err := json.Unmarshal([]byte(`"invalid"`), &s); err != nil || s != StatePending {
		t.Errorf("unknown state decoded as %v, %v; want pending", s, err)
	}
}

func TestJobStateFinished(t *testing.T) {
	for state, want := range map[JobState]bool{
		StatePending:    false,
		StateInProgress: false,
		StateCompleted:  true,
		StateCancelled:  true,
		StateError:      true,
	} {
		if got := state.Finished(); got != want {
			t.Errorf("%v.Finished() = %v; want %v", state, got, want)
		}
	}
}

// ============================================================================
// Queue Core Tests
// ============================================================================

func TestNewQueue(t *testing.T) {
	q := NewQueue()
	if q.Jobs == nil || q.Signal == nil {
		t.Fatal("NewQueue() left Jobs or Signal nil")
	}
	if q.Limit != 1 {
		t.Errorf("Limit = %d; want 1", q.Limit)
	}
}

func TestAddJob(t *testing.T) {
	q := NewQueueWithDB(openTestDB(t))

	id, err := q.AddJob(NewJob{Command: "vr180", Input: "/videos/a.mp4", Settings: json.RawMessage(`{"maxDisparity":40}`)})
	if err != nil {
		t.Fatalf("AddJob() error = %v", err)
	}
	if id == "" {
		t.Fatal("AddJob() returned empty ID")
	}

	job := q.GetJob(id)
	if job == nil {
		t.Fatal("GetJob() returned nil")
	}
	if job.State != StatePending || job.Command != "vr180" || job.Input != "/videos/a.mp4" {
		t.Errorf("job = %+v", job)
	}
	if string(job.Settings) != `{"maxDisparity":40}` {
		t.Errorf("Settings = %s", job.Settings)
	}
	if job.CreatedAt.IsZero() || job.Ctx == nil {
		t.Error("CreatedAt or Ctx not set")
	}

	select {
	case got := <-q.Signal:
		if got != id {
			t.Errorf("Signal = %q; want %q", got, id)
		}
	default:
		t.Error("AddJob() did not signal")
	}
}

func TestAddJobCustomAndDuplicateID(t *testing.T) {
	q := NewQueue()
	id, err := q.AddJob(NewJob{ID: "custom", Command: "vr180"})
	if err != nil || id != "custom" {
		t.Fatalf("AddJob(custom) = %q, %v", id, err)
	}
	if _, err := q.AddJob(NewJob{ID: "custom", Command: "vr180"}); !errors.Is(err, ErrJobExists) {
		t.Errorf("duplicate AddJob error = %v; want ErrJobExists", err)
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id string
		ok bool
	}{
		{"", true},
		{"custom", true},
		{"job-1.v2_a", true},
		{"a/b", false},
		{`a\b`, false},
		{"..", false},
		{".", false},
		{"a..b", false},
		{".hidden", false},
		{"with space", false},
		{strings.Repeat("a", 129), false},
	}
	for _, tt := range tests {
		err := ValidateID(tt.id)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateID(%q) = %v; want ok=%v", tt.id, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalidID) {
			t.Errorf("ValidateID(%q) = %v; want ErrInvalidID", tt.id, err)
		}
	}
}

func TestAddJobRejectsInvalidID(t *testing.T) {
	q := NewQueue()
	if _, err := q.AddJob(NewJob{ID: "../etc", Command: "vr180"}); !errors.Is(err, ErrInvalidID) {
		t.Fatalf("AddJob = %v; want ErrInvalidID", err)
	}
	if n := len(q.GetJobs()); n != 0 {
		t.Errorf("queued %d jobs; want 0", n)
	}
}

func TestAddJobDoesNotBlockWhenSignalFull(t *testing.T) {
	q := NewQueue()
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(q.Signal)+10; i++ {
			q.AddJob(convert("x"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AddJob blocked on a full signal channel")
	}
}

func TestClaimJobRespectsDependencies(t *testing.T) {
	q := NewQueue()
	q.SetLimit(2)
	parent, _ := q.AddJob(convert("parent"))
	child, _ := q.AddJob(NewJob{Command: "thumbnail", Dependencies: []string{parent}})

	job, _ := q.ClaimJob()
	if job == nil || job.ID != parent {
		t.Fatalf("first claim = %v; want parent", job)
	}
	if job, _ := q.ClaimJob(); job != nil {
		t.Fatalf("claimed %s before its dependency completed", job.ID)
	}
	if err := q.CompleteJob(parent); err != nil {
		t.Fatal(err)
	}
	job, _ = q.ClaimJob()
	if job == nil || job.ID != child {
		t.Fatalf("claim after completion = %v; want child", job)
	}
}

func TestClaimJobLimit(t *testing.T) {
	q := NewQueue()
	a, _ := q.AddJob(convert("a"))
	q.AddJob(convert("b"))

	if job, _ := q.ClaimJob(); job == nil || job.ID != a {
		t.Fatal("first claim failed")
	}
	if job, _ := q.ClaimJob(); job != nil {
		t.Fatal("claimed past the limit")
	}
	if q.Running() != 1 {
		t.Errorf("Running() = %d; want 1", q.Running())
	}
	if err := q.ErrorJob(a); err != nil {
		t.Fatal(err)
	}
	if job, _ := q.ClaimJob(); job == nil {
		t.Error("error did not free a slot")
	}
}

func TestClaimJobNoPending(t *testing.T) {
	q := NewQueue()
	job, err := q.ClaimJob()
	if job != nil || err != nil {
		t.Errorf("ClaimJob() on empty queue = %v, %v", job, err)
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name  string
		apply func(q *Queue, id string) error
		want  JobState
	}{
		{"complete", (*Queue).CompleteJob, StateCompleted},
		{"error", (*Queue).ErrorJob, StateError},
		{"cancel", (*Queue).CancelJob, StateCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue()
			id, _ := q.AddJob(convert("in.mp4"))
			q.ClaimJob()
			if err := tt.apply(q, id); err != nil {
				t.Fatal(err)
			}
			job := q.GetJob(id)
			if job.State != tt.want {
				t.Errorf("state = %v; want %v", job.State, tt.want)
			}
			if q.Running() != 0 {
				t.Errorf("Running() = %d; want 0", q.Running())
			}
			if job.Ctx.Err() == nil {
				t.Error("job context not cancelled after finishing")
			}
		})
	}
}

func TestCompleteJobNotInProgress(t *testing.T) {
	q := NewQueue()
	id, _ := q.AddJob(convert("x"))
	if err := q.CompleteJob(id); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("CompleteJob(pending) = %v; want ErrNotInProgress", err)
	}
	if err := q.ErrorJob("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("ErrorJob(missing) = %v; want ErrJobNotFound", err)
	}
}

func TestCancelJob(t *testing.T) {
	q := NewQueue()
	id, _ := q.AddJob(convert("x"))
	if err := q.CancelJob(id); err != nil {
		t.Fatal(err)
	}
	if err := q.CancelJob(id); !errors.Is(err, ErrNotCancellable) {
		t.Errorf("second CancelJob = %v; want ErrNotCancellable", err)
	}
}

func TestReport(t *testing.T) {
	q := NewQueue()
	id, _ := q.AddJob(convert("x"))
	q.ClaimJob()

	q.Report(progress.Update{JobID: id, Status: progress.StatusProcessing, Progress: 42, Message: "Processed frame 3/10"})
	job := q.GetJob(id)
	if job.Progress != 42 || job.Message != "Processed frame 3/10" {
		t.Errorf("after Report: progress=%d message=%q", job.Progress, job.Message)
	}

	q.CompleteJob(id)
	q.Report(progress.Update{JobID: id, Progress: 10, Message: "late"})
	if job := q.GetJob(id); job.Progress != 100 || job.Message == "late" {
		t.Errorf("Report changed a finished job: %+v", job)
	}

	q.Report(progress.Update{JobID: "missing"})
}

func TestPushJobStdout(t *testing.T) {
	q := NewQueueWithDB(openTestDB(t))
	id, _ := q.AddJob(convert("x"))

	q.PushJobStdout(id, "line 1")
	q.PushJobStdout(id, "line 2")

	job := q.GetJob(id)
	if len(job.Stdout) != 2 || job.Stdout[0] != "line 1" || job.Stdout[1] != "line 2" {
		t.Errorf("Stdout = %v", job.Stdout)
	}
	if err := q.PushJobStdout("missing", "x"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("PushJobStdout(missing) = %v", err)
	}
}

func TestPushJobStdoutBounded(t *testing.T) {
	q := NewQueue()
	id, _ := q.AddJob(convert("x"))
	for i := 0; i < maxStdout+5; i++ {
		q.PushJobStdout(id, "line")
	}
	if n := len(q.GetJob(id).Stdout); n != maxStdout {
		t.Errorf("kept %d lines; want %d", n, maxStdout)
	}
}

func TestGetJobReturnsSnapshot(t *testing.T) {
	q := NewQueue()
	id, _ := q.AddJob(NewJob{Command: "vr180", Arguments: []string{"a"}})
	snap := q.GetJob(id)
	snap.Arguments[0] = "changed"
	snap.State = StateError
	if job := q.GetJob(id); job.Arguments[0] != "a" || job.State != StatePending {
		t.Error("mutating a snapshot changed the queue")
	}
}

func TestGetJobsNewestFirst(t *testing.T) {
	q := NewQueue()
	a, _ := q.AddJob(convert("a"))
	b, _ := q.AddJob(convert("b"))
	jobs := q.GetJobs()
	if len(jobs) != 2 || jobs[0].ID != b || jobs[1].ID != a {
		t.Errorf("GetJobs order = %v", jobs)
	}
}

func TestRetryJob(t *testing.T) {
	q := NewQueue()
	id, _ := q.AddJob(NewJob{Command: "vr180", Input: "in.mp4", Settings: json.RawMessage(`{"workers":2}`)})
	q.ClaimJob()
	q.ErrorJob(id)

	newID, err := q.RetryJob(id)
	if err != nil {
		t.Fatal(err)
	}
	if newID == id {
		t.Fatal("RetryJob reused the ID")
	}
	job := q.GetJob(newID)
	if job.State != StatePending || job.Input != "in.mp4" || string(job.Settings) != `{"workers":2}` {
		t.Errorf("retried job = %+v", job)
	}
	if _, err := q.RetryJob("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("RetryJob(missing) = %v", err)
	}
}

func TestRetryJobRequiresFinished(t *testing.T) {
	q := NewQueue()
	q.SetLimit(2)
	running, _ := q.AddJob(convert("a"))
	q.ClaimJob()
	pending, _ := q.AddJob(NewJob{Command: "vr180", Input: "b", Dependencies: []string{running}})

	for _, id := range []string{running, pending} {
		if _, err := q.RetryJob(id); !errors.Is(err, ErrNotFinished) {
			t.Errorf("RetryJob(%s) = %v; want ErrNotFinished", q.GetJob(id).State, err)
		}
	}
	if n := len(q.GetJobs()); n != 2 {
		t.Errorf("jobs = %d; retry of an unfinished job queued a copy", n)
	}
}

func TestRetryJobKeepsDependencies(t *testing.T) {
	q := NewQueue()
	dep, _ := q.AddJob(convert("a"))
	id, _ := q.AddJob(NewJob{Command: "vr180", Input: "b", Output: "/out/b.mp4", Dependencies: []string{dep}})
	q.CancelJob(id)

	newID, err := q.RetryJob(id)
	if err != nil {
		t.Fatal(err)
	}
	job := q.GetJob(newID)
	if len(job.Dependencies) != 1 || job.Dependencies[0] != dep {
		t.Errorf("dependencies = %v; want [%s]", job.Dependencies, dep)
	}
	if job.Output != "" {
		t.Errorf("output = %q; want it derived from the new job", job.Output)
	}
}

func TestRemoveJob(t *testing.T) {
	q := NewQueue()
	id, _ := q.AddJob(convert("x"))
	q.ClaimJob()
	ctx := q.GetJob(id).Ctx

	if err := q.RemoveJob(id); err != nil {
		t.Fatal(err)
	}
	if q.GetJob(id) != nil {
		t.Error("job still present")
	}
	if q.Running() != 0 {
		t.Errorf("Running() = %d after removing an in-progress job", q.Running())
	}
	if ctx.Err() == nil {
		t.Error("removed job was not cancelled")
	}
	if err := q.RemoveJob(id); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("second RemoveJob = %v", err)
	}
}

func TestClearNonRunningJobs(t *testing.T) {
	q := NewQueue()
	running, _ := q.AddJob(convert("a"))
	q.ClaimJob()
	done, _ := q.AddJob(convert("b"))
	q.SetLimit(2)
	q.ClaimJob()
	q.CompleteJob(done)
	q.AddJob(convert("c"))

	if n := q.ClearNonRunningJobs(); n != 2 {
		t.Errorf("cleared %d; want 2", n)
	}
	jobs := q.GetJobs()
	if len(jobs) != 1 || jobs[0].ID != running {
		t.Errorf("remaining = %v", jobs)
	}
}

func TestSetResult(t *testing.T) {
	q := NewQueue()
	id, _ := q.AddJob(convert("x"))
	if err := q.SetResult(id, "/out/x-vr180.mp4", "s3://b/x"); err != nil {
		t.Fatal(err)
	}
	job := q.GetJob(id)
	if job.Output != "/out/x-vr180.mp4" || job.Location != "s3://b/x" {
		t.Errorf("result = %q %q", job.Output, job.Location)
	}
}

// ============================================================================
// Database Persistence Tests
// ============================================================================

func TestDatabasePersistence(t *testing.T) {
	db := openTestDB(t)

	q1 := NewQueueWithDB(db)
	id1, _ := q1.AddJob(NewJob{ID: "persist-1", Command: "vr180", Arguments: []string{"arg1"}, Input: "input-1", Settings: json.RawMessage(`{"fps":12}`)})
	id2, _ := q1.AddJob(NewJob{ID: "persist-2", Command: "thumbnail", Input: "input-2", Dependencies: []string{id1}})

	q1.PushJobStdout(id1, "stdout line")
	q1.ClaimJob()
	q1.Report(progress.Update{JobID: id1, Progress: 90, Message: "Encoding"})
	q1.SetResult(id1, "/out/persist-1-vr180.mp4", "")
	q1.CompleteJob(id1)

	q2 := NewQueueWithDB(db)
	job1 := q2.GetJob(id1)
	job2 := q2.GetJob(id2)
	if job1 == nil || job2 == nil {
		t.Fatal("Jobs were not persisted/loaded from database")
	}
	if job1.Command != "vr180" || job1.State != StateCompleted {
		t.Errorf("job1 = %+v", job1)
	}
	if job1.Output != "/out/persist-1-vr180.mp4" || job1.Progress != 100 {
		t.Errorf("job1 result = %q progress %d", job1.Output, job1.Progress)
	}
	if string(job1.Settings) != `{"fps":12}` {
		t.Errorf("job1 settings = %s", job1.Settings)
	}
	if len(job1.Stdout) != 1 || job1.Stdout[0] != "stdout line" {
		t.Errorf("job1 stdout = %v", job1.Stdout)
	}
	if len(job2.Dependencies) != 1 || job2.Dependencies[0] != id1 {
		t.Errorf("job2 dependencies = %v", job2.Dependencies)
	}
	jobs := q2.GetJobs()
	if len(jobs) != 2 || jobs[1].ID != id1 {
		t.Errorf("order not restored: %v", jobs)
	}
}

func TestDatabasePersistenceInProgressReset(t *testing.T) {
	db := openTestDB(t)

	q1 := NewQueueWithDB(db)
	id, _ := q1.AddJob(convert("x"))
	q1.ClaimJob()
	q1.Report(progress.Update{JobID: id, Progress: 50, Message: "halfway"})

	q2 := NewQueueWithDB(db)
	job := q2.GetJob(id)
	if job.State != StatePending {
		t.Errorf("in-progress job reloaded as %v; want pending", job.State)
	}
	if job.Progress != 0 {
		t.Errorf("progress = %d; want reset to 0", job.Progress)
	}
	select {
	case got := <-q2.Signal:
		if got != id {
			t.Errorf("Signal = %q; want %q", got, id)
		}
	default:
		t.Error("resumed job was not signalled")
	}
	if job, _ := q2.ClaimJob(); job == nil || job.ID != id {
		t.Error("resumed job could not be claimed")
	}
}

func TestSaveAllJobsToDB(t *testing.T) {
	db := openTestDB(t)
	q := NewQueueWithDB(db)
	q.AddJob(NewJob{ID: "save-1", Command: "vr180"})
	q.AddJob(NewJob{ID: "save-2", Command: "vr180"})

	db.Exec("DELETE FROM jobs")
	if err := q.SaveAllJobsToDB(); err != nil {
		t.Fatalf("SaveAllJobsToDB() error = %v", err)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM jobs").Scan(&count)
	if count != 2 {
		t.Errorf("Database has %d jobs; want 2", count)
	}
}
