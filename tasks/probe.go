package tasks

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/stevecastle/vr180/engine"
	"github.com/stevecastle/vr180/jobqueue"
)

// probeTask reads j.Input's stream info and checks it is convertible. The
// info and validation result are written to the job log as JSON.
func probeTask(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	input := strings.TrimSpace(j.Input)
	if input == "" {
		q.PushJobStdout(j.ID, "probe: no input video provided")
		return jobqueue.ErrMissingInput
	}

	eng := currentEnv().NewEngine(func(line string) { _ = q.PushJobStdout(j.ID, "ffprobe: "+line) })
	info, err := eng.Probe(j.Ctx, input)
	if err != nil {
		q.PushJobStdout(j.ID, "probe: "+err.Error())
		return err
	}

	v := engine.Validate(info)
	out, err := json.Marshal(struct {
		Info       *engine.VideoInfo `json:"info"`
		Validation engine.Validation `json:"validation"`
	}{info, v})
	if err != nil {
		return err
	}
	q.PushJobStdout(j.ID, string(out))
	for _, w := range v.Warnings {
		q.PushJobStdout(j.ID, "probe: warning: "+w)
	}
	if !v.Valid {
		for _, e := range v.Errors {
			q.PushJobStdout(j.ID, "probe: "+e)
		}
		return errors.New(strings.Join(v.Errors, "; "))
	}
	return q.CompleteJob(j.ID)
}
