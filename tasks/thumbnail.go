package tasks

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/stevecastle/vr180/jobqueue"
)

// thumbnailTask grabs one frame of j.Input. Arguments[0], if given, is the
// timestamp.
func thumbnailTask(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	input := strings.TrimSpace(j.Input)
	if input == "" {
		q.PushJobStdout(j.ID, "thumbnail: no input video provided")
		return jobqueue.ErrMissingInput
	}

	e := currentEnv()
	out := j.Output
	if out == "" {
		out = filepath.Join(e.OutputDir, j.ID+"-thumb.jpg")
	}
	var ts string
	if len(j.Arguments) > 0 {
		ts = j.Arguments[0]
	}

	eng := e.NewEngine(func(line string) { _ = q.PushJobStdout(j.ID, "ffmpeg: "+line) })
	if err := eng.Thumbnail(j.Ctx, input, out, ts); err != nil {
		q.PushJobStdout(j.ID, "thumbnail: "+err.Error())
		return err
	}
	if err := q.SetResult(j.ID, out, ""); err != nil {
		return err
	}
	q.PushJobStdout(j.ID, "thumbnail: wrote "+out)
	return q.CompleteJob(j.ID)
}
