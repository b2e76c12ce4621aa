// Package jobqueue holds conversion jobs: their state, progress and log, in
// memory with optional sqlite persistence. Every change is broadcast to live
// listeners through the stream hub.
package jobqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stevecastle/vr180/progress"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrJobExists      = errors.New("job with given ID already exists")
	ErrNotInProgress  = errors.New("job is not in progress")
	ErrNotCancellable = errors.New("job is not pending or in progress")
	ErrNotFinished    = errors.New("job has not finished")
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingInput   = errors.New("job has no input")
	ErrInvalidID      = errors.New("invalid job id")
)

// maxStdout bounds how many log lines a job keeps.
const maxStdout = 1000

// JobState represents the current state of a job in the queue.
type JobState int

const (
	StatePending JobState = iota
	StateInProgress
	StateCompleted
	StateCancelled
	StateError
)

func (s JobState) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateInProgress:
		return "InProgress"
	case StateCompleted:
		return "Completed"
	case StateCancelled:
		return "Cancelled"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Finished reports whether the job will not run again.
func (s JobState) Finished() bool {
	return s == StateCompleted || s == StateCancelled || s == StateError
}

// MarshalJSON serializes JobState as a lowercase string for JSON.
func (s JobState) MarshalJSON() ([]byte, error) {
	var str string
	switch s {
	case StatePending:
		str = "pending"
	case StateInProgress:
		str = "in_progress"
	case StateCompleted:
		str = "completed"
	case StateCancelled:
		str = "cancelled"
	case StateError:
		str = "error"
	default:
		str = "unknown"
	}
	return json.Marshal(str)
}

// UnmarshalJSON deserializes JobState from a string.
func (s *JobState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	switch str {
	case "pending":
		*s = StatePending
	case "in_progress":
		*s = StateInProgress
	case "completed":
		*s = StateCompleted
	case "cancelled":
		*s = StateCancelled
	case "error":
		*s = StateError
	default:
		*s = StatePending
	}
	return nil
}

// Job is one queued unit of work, usually a video conversion.
type Job struct {
	ID        string   `json:"id"`
	Command   string   `json:"command"`
	Arguments []string `json:"arguments"`
	Input     string   `json:"input"`
	// Settings is a partial VR180 settings object merged over the defaults.
	Settings json.RawMessage `json:"settings,omitempty"`

	Output   string `json:"output,omitempty"`
	Location string `json:"location,omitempty"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`

	Stdout       []string           `json:"-"`
	Dependencies []string           `json:"dependencies"`
	State        JobState           `json:"state"`
	Ctx          context.Context    `json:"-"`
	Cancel       context.CancelFunc `json:"-"`

	CreatedAt   time.Time `json:"created_at"`
	ClaimedAt   time.Time `json:"claimed_at"`
	CompletedAt time.Time `json:"completed_at"`
	ErroredAt   time.Time `json:"errored_at"`
}

// snapshot copies j so it can be read without holding the queue lock.
func (j *Job) snapshot() *Job {
	c := *j
	c.Arguments = append([]string(nil), j.Arguments...)
	c.Stdout = append([]string(nil), j.Stdout...)
	c.Dependencies = append([]string(nil), j.Dependencies...)
	c.Settings = append(json.RawMessage(nil), j.Settings...)
	return &c
}

// NewJob describes a job to enqueue. An empty ID gets a generated UUID.
type NewJob struct {
	ID           string          `json:"id,omitempty"`
	Command      string          `json:"command"`
	Arguments    []string        `json:"arguments,omitempty"`
	Input        string          `json:"input"`
	Settings     json.RawMessage `json:"settings,omitempty"`
	Output       string          `json:"output,omitempty"`
	Dependencies []string        `json:"dependencies,omitempty"`
}

// Queue is a thread-safe structure that manages Jobs with dependencies.
type Queue struct {
	mu       sync.Mutex
	Jobs     map[string]*Job
	JobOrder []string // insertion order
	Signal   chan string
	Db       *sql.DB

	// Limit caps how many jobs may be in progress at once.
	Limit   int
	running int
}

// NewQueue initializes and returns a new in-memory Queue.
func NewQueue() *Queue {
	return &Queue{
		Jobs:   make(map[string]*Job),
		Signal: make(chan string, 100),
		Limit:  1,
	}
}

// NewQueueWithDB initializes a Queue persisted in db, restoring saved jobs.
func NewQueueWithDB(db *sql.DB) *Queue {
	q := NewQueue()
	q.Db = db

	if err := q.createJobsTable(); err != nil {
		log.Printf("Failed to create jobs table: %v", err)
	}
	if err := q.loadJobsFromDB(); err != nil {
		log.Printf("Failed to load jobs from database: %v", err)
	}
	return q
}

// SetLimit changes the in-progress cap. Values below 1 are treated as 1.
func (q *Queue) SetLimit(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n < 1 {
		n = 1
	}
	q.Limit = n
}

// Running returns how many jobs are in progress.
func (q *Queue) Running() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *Queue) notify(id string) {
	select {
	case q.Signal <- id:
	default:
	}
}

// Job ids name workspace directories.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateID reports whether a caller-chosen job id is usable. An empty id
// is valid; AddJob generates one.
func ValidateID(id string) error {
	if id == "" {
		return nil
	}
	if !idPattern.MatchString(id) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// AddJob enqueues a job and returns its ID.
func (q *Queue) AddJob(nj NewJob) (string, error) {
	if err := ValidateID(nj.ID); err != nil {
		return "", err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	id := nj.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := q.Jobs[id]; exists {
		return "", ErrJobExists
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:           id,
		Command:      nj.Command,
		Arguments:    nj.Arguments,
		Input:        nj.Input,
		Settings:     nj.Settings,
		Output:       nj.Output,
		Dependencies: nj.Dependencies,
		State:        StatePending,
		Message:      "Queued",
		Ctx:          ctx,
		Cancel:       cancel,
		CreatedAt:    time.Now(),
	}
	q.Jobs[id] = job
	q.JobOrder = append(q.JobOrder, id)

	if err := q.saveJobToDB(job); err != nil {
		log.Printf("Failed to save job to database: %v", err)
	}

	q.notify(id)
	broadcastJob("create", job)
	return id, nil
}

// RetryJob enqueues a fresh copy of a finished job and returns the new ID.
// Pending and running jobs give ErrNotFinished. Dependencies carry over.
// Output does not: once a job has run it holds the resolved path of that
// run, so the copy derives its own from the new ID.
func (q *Queue) RetryJob(id string) (string, error) {
	q.mu.Lock()
	job, exists := q.Jobs[id]
	if !exists {
		q.mu.Unlock()
		return "", ErrJobNotFound
	}
	if !job.State.Finished() {
		q.mu.Unlock()
		return "", ErrNotFinished
	}
	nj := NewJob{
		Command:      job.Command,
		Arguments:    append([]string(nil), job.Arguments...),
		Input:        job.Input,
		Settings:     append(json.RawMessage(nil), job.Settings...),
		Dependencies: append([]string(nil), job.Dependencies...),
	}
	q.mu.Unlock()
	return q.AddJob(nj)
}

// ClaimJob returns the oldest pending job whose dependencies are complete and
// marks it in progress, or nil when nothing can run or the queue is at its
// limit.
func (q *Queue) ClaimJob() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running >= q.Limit {
		return nil, nil
	}
	for _, jobID := range q.JobOrder {
		job := q.Jobs[jobID]
		if job.State != StatePending || !q.canClaim(job) {
			continue
		}
		job.State = StateInProgress
		job.ClaimedAt = time.Now()
		job.Message = "Starting"
		q.running++

		if err := q.saveJobToDB(job); err != nil {
			log.Printf("Failed to save job state to database: %v", err)
		}
		broadcastJob("update", job)
		return job, nil
	}
	return nil, nil
}

// canClaim checks if a job's dependencies are all completed.
func (q *Queue) canClaim(job *Job) bool {
	for _, dep := range job.Dependencies {
		depJob, exists := q.Jobs[dep]
		if !exists || depJob.State != StateCompleted {
			return false
		}
	}
	return true
}

// finishLocked moves an in-progress job to a finished state.
func (q *Queue) finishLocked(id string, state JobState) (*Job, error) {
	job, exists := q.Jobs[id]
	if !exists {
		return nil, ErrJobNotFound
	}
	if job.State != StateInProgress {
		return nil, ErrNotInProgress
	}
	job.State = state
	q.running--
	return job, nil
}

// CompleteJob marks an in-progress job completed.
func (q *Queue) CompleteJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.finishLocked(id, StateCompleted)
	if err != nil {
		return err
	}
	job.CompletedAt = time.Now()
	job.Progress = progress.Done
	job.Cancel()

	if err := q.saveJobToDB(job); err != nil {
		log.Printf("Failed to save job completion to database: %v", err)
	}
	broadcastJob("update", job)
	q.notifyWaitingLocked()
	return nil
}

// ErrorJob marks an in-progress job failed.
func (q *Queue) ErrorJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.finishLocked(id, StateError)
	if err != nil {
		return err
	}
	job.ErroredAt = time.Now()
	job.Cancel()

	if err := q.saveJobToDB(job); err != nil {
		log.Printf("Failed to save job error state to database: %v", err)
	}
	broadcastJob("update", job)
	q.notifyWaitingLocked()
	return nil
}

// CancelJob cancels a pending or in-progress job. A running task observes
// the cancellation through its context.
func (q *Queue) CancelJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.Jobs[id]
	if !exists {
		return ErrJobNotFound
	}
	if job.State != StatePending && job.State != StateInProgress {
		return ErrNotCancellable
	}
	job.Cancel()

	if job.State == StateInProgress {
		q.running--
	}
	job.State = StateCancelled
	job.Message = "Cancelled"

	if err := q.saveJobToDB(job); err != nil {
		log.Printf("Failed to save job cancellation to database: %v", err)
	}
	broadcastJob("update", job)
	q.notifyWaitingLocked()
	return nil
}

// notifyWaitingLocked wakes runners when capacity frees up.
func (q *Queue) notifyWaitingLocked() {
	for _, id := range q.JobOrder {
		if q.Jobs[id].State == StatePending {
			q.notify(id)
			return
		}
	}
}

// PushJobStdout appends a log line to the job and streams it to listeners.
func (q *Queue) PushJobStdout(id string, line string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.Jobs[id]
	if !exists {
		return ErrJobNotFound
	}
	job.Stdout = append(job.Stdout, line)
	if len(job.Stdout) > maxStdout {
		job.Stdout = job.Stdout[len(job.Stdout)-maxStdout:]
	}

	if err := q.saveJobToDB(job); err != nil {
		log.Printf("Failed to save job stdout to database: %v", err)
	}
	broadcastStdout(id, line)
	return nil
}

// SetResult records where a job's output ended up.
func (q *Queue) SetResult(id, output, location string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.Jobs[id]
	if !exists {
		return ErrJobNotFound
	}
	job.Output = output
	job.Location = location
	if err := q.saveJobToDB(job); err != nil {
		log.Printf("Failed to save job result to database: %v", err)
	}
	return nil
}

// Report records a progress update for its job and broadcasts it as a
// processingUpdate event. It makes Queue a progress.Sink; state transitions
// stay with CompleteJob and ErrorJob.
func (q *Queue) Report(u progress.Update) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, exists := q.Jobs[u.JobID]
	if !exists || job.State.Finished() {
		return
	}
	job.Progress = u.Progress
	job.Message = u.Message

	if err := q.saveJobToDB(job); err != nil {
		log.Printf("Failed to save job progress to database: %v", err)
	}
	broadcastProgress(u)
}

// GetJobs returns snapshots of all jobs, newest first.
func (q *Queue) GetJobs() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := make([]Job, 0, len(q.JobOrder))
	for i := len(q.JobOrder) - 1; i >= 0; i-- {
		jobs = append(jobs, *q.Jobs[q.JobOrder[i]].snapshot())
	}
	return jobs
}

// GetJob returns a snapshot of the job, or nil if it does not exist.
func (q *Queue) GetJob(id string) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, exists := q.Jobs[id]
	if !exists {
		return nil
	}
	return job.snapshot()
}

func (q *Queue) removeLocked(id string) {
	job := q.Jobs[id]
	if job.State == StateInProgress {
		q.running--
	}
	job.Cancel()
	delete(q.Jobs, id)
	for i, jobID := range q.JobOrder {
		if jobID == id {
			q.JobOrder = append(q.JobOrder[:i], q.JobOrder[i+1:]...)
			break
		}
	}
	if err := q.removeJobFromDB(id); err != nil {
		log.Printf("Failed to remove job %s from database: %v", id, err)
	}
	broadcastJob("delete", &Job{ID: id})
}

// RemoveJob deletes a job, cancelling it first if it is running.
func (q *Queue) RemoveJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.Jobs[id]; !exists {
		return ErrJobNotFound
	}
	q.removeLocked(id)
	q.notifyWaitingLocked()
	return nil
}

// ClearNonRunningJobs removes every job that is not in progress and returns
// how many were removed.
func (q *Queue) ClearNonRunningJobs() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ids []string
	for _, id := range q.JobOrder {
		if q.Jobs[id].State != StateInProgress {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		q.removeLocked(id)
	}
	return len(ids)
}
