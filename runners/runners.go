// Package runners claims queued jobs and runs them through the task registry,
// never exceeding the queue's in-progress limit.
package runners

import (
	"context"
	"log"
	"sync"

	"github.com/stevecastle/vr180/jobqueue"
	"github.com/stevecastle/vr180/tasks"
)

// Runners manages a pool of concurrent job runners.
type Runners struct {
	queue  *jobqueue.Queue
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Runners instance listening on the queue's signal channel.
func New(queue *jobqueue.Queue) *Runners {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runners{
		queue:  queue,
		ctx:    ctx,
		cancel: cancel,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-r.queue.Signal:
				r.CheckForJobs()
			}
		}
	}()

	return r
}

// Shutdown stops claiming new jobs. Jobs already running are left alone; a
// persisted queue puts them back to pending on the next start.
func (r *Runners) Shutdown() {
	r.cancel()
	r.wg.Wait()
}

// CheckForJobs claims and starts jobs until the queue has nothing runnable or
// is at its limit.
func (r *Runners) CheckForJobs() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tryFetchJobsAndRun()
}

func (r *Runners) tryFetchJobsAndRun() {
	if r.ctx.Err() != nil {
		return
	}
	for {
		job, err := r.queue.ClaimJob()
		if err != nil || job == nil {
			return
		}
		r.runJob(job)
	}
}

// runJob runs j on its own goroutine and looks for more work once it ends.
func (r *Runners) runJob(j *jobqueue.Job) {
	go func() {
		defer r.CheckForJobs()

		task, err := tasks.Lookup(j.Command)
		if err != nil {
			r.queue.PushJobStdout(j.ID, "Task not found: "+j.Command)
			r.finish(j, err)
			return
		}
		r.finish(j, task.Fn(j, r.queue, &r.mu))
	}()
}

// finish settles a job the task left in progress.
func (r *Runners) finish(j *jobqueue.Job, err error) {
	if err == nil {
		// tasks complete their own jobs; this only catches one that forgot
		if cur := r.queue.GetJob(j.ID); cur != nil && cur.State == jobqueue.StateInProgress {
			_ = r.queue.CompleteJob(j.ID)
		}
		return
	}
	log.Printf("job %s (%s) failed: %v", j.ID, j.Command, err)
	select {
	case <-j.Ctx.Done():
		_ = r.queue.CancelJob(j.ID)
	default:
		_ = r.queue.ErrorJob(j.ID)
	}
}
