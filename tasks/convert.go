package tasks

import (
	"fmt"
	"strings"
	"sync"

	"github.com/stevecastle/vr180/jobqueue"
	"github.com/stevecastle/vr180/pipeline"
	"github.com/stevecastle/vr180/progress"
)

// convertTask turns j.Input into a VR180 video. j.Settings, when present, is
// merged over the configured defaults; j.Output overrides the output path.
func convertTask(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	input := strings.TrimSpace(j.Input)
	if input == "" {
		q.PushJobStdout(j.ID, "vr180: no input video provided")
		progress.NewTracker(j.ID, q).Fail(jobqueue.ErrMissingInput)
		return jobqueue.ErrMissingInput
	}

	e := currentEnv()
	cfg, err := e.Settings.Merge(j.Settings)
	if err != nil {
		err = fmt.Errorf("invalid settings: %w", err)
		q.PushJobStdout(j.ID, "vr180: "+err.Error())
		progress.NewTracker(j.ID, q).Fail(err)
		return err
	}

	logLine := func(line string) { _ = q.PushJobStdout(j.ID, line) }
	eng := e.NewEngine(func(line string) { logLine("ffmpeg: " + line) })
	o := &pipeline.Orchestrator{
		Decoder:   eng,
		Encoder:   eng,
		Prober:    eng,
		Workspace: e.Workspace,
		Publisher: e.Publisher,
		Config:    cfg,
		OutputDir: e.OutputDir,
		Log:       func(_, line string) { logLine(line) },
	}

	res, err := o.Run(j.Ctx, pipeline.Request{
		JobID:      j.ID,
		InputPath:  input,
		OutputPath: j.Output,
	}, q)
	if err != nil {
		return err
	}

	if err := q.SetResult(j.ID, res.OutputPath, res.Location); err != nil {
		return err
	}
	q.PushJobStdout(j.ID, fmt.Sprintf("vr180: wrote %s from %d frames", res.OutputPath, res.Frames))
	return q.CompleteJob(j.ID)
}
