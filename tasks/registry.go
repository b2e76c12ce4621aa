package tasks

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stevecastle/vr180/jobqueue"
)

// Task represents a runnable unit bound to the jobqueue. Fn finishes the job
// itself on success; on error the runner moves it to Error or Cancelled.
type Task struct {
	ID   string                                                        `json:"id"`
	Name string                                                        `json:"name"`
	Fn   func(j *jobqueue.Job, q *jobqueue.Queue, r *sync.Mutex) error `json:"-"`
}

type TaskMap map[string]Task

var tasks = make(TaskMap)

func init() {
	RegisterTask("vr180", "Convert to VR180", convertTask)
	RegisterTask("thumbnail", "Thumbnail", thumbnailTask)
	RegisterTask("probe", "Probe Video", probeTask)
	RegisterTask("install-ffmpeg", "Install FFmpeg", installFFmpegTask)
}

func RegisterTask(id, name string, fn func(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error) {
	tasks[id] = Task{
		ID:   id,
		Name: name,
		Fn:   fn,
	}
}

func GetTasks() TaskMap {
	return tasks
}

// Lookup returns the task registered under id.
func Lookup(id string) (Task, error) {
	t, ok := tasks[id]
	if !ok {
		return Task{}, fmt.Errorf("%w: %q", jobqueue.ErrUnknownCommand, id)
	}
	return t, nil
}

// List returns the registered tasks ordered by ID.
func List() []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
