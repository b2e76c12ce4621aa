// Package pipeline drives a conversion job: extract frames, convert each one
// on a bounded worker pool, encode the stereo sequence, and report progress
// at every step.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/stevecastle/vr180/appconfig"
	"github.com/stevecastle/vr180/engine"
	"github.com/stevecastle/vr180/frame"
	"github.com/stevecastle/vr180/progress"
	"github.com/stevecastle/vr180/publish"
	"github.com/stevecastle/vr180/workspace"
)

// Request describes one conversion job.
type Request struct {
	JobID     string
	InputPath string
	// OutputPath defaults to <OutputDir>/<JobID>-vr180.mp4.
	OutputPath string
	// Config overrides the orchestrator's settings for this job.
	Config *appconfig.VR180
}

// Result is what a successful job produced.
type Result struct {
	OutputPath string `json:"outputPath"`
	Location   string `json:"location,omitempty"`
	Frames     int    `json:"frames"`
}

// Orchestrator wires the engine, scratch storage and optional publisher
// around the per-frame processor.
type Orchestrator struct {
	Decoder   engine.Decoder
	Encoder   engine.Encoder
	Prober    engine.Prober
	Workspace *workspace.Workspace
	Publisher publish.Publisher

	Config    appconfig.VR180
	OutputDir string

	// Log receives job log lines; nil logs through the standard logger.
	Log func(jobID, line string)
}

func (o *Orchestrator) logf(jobID, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if o.Log != nil {
		o.Log(jobID, line)
		return
	}
	log.Printf("[%s] %s", jobID, line)
}

func (o *Orchestrator) outputPath(req Request) string {
	if req.OutputPath != "" {
		return req.OutputPath
	}
	return filepath.Join(o.OutputDir, req.JobID+"-vr180.mp4")
}

// Run executes the whole job. Exactly one terminal update is sent to sink:
// completed after encoding (and publishing) succeed, or error otherwise.
// Intermediate frames are removed in both cases.
func (o *Orchestrator) Run(ctx context.Context, req Request, sink progress.Sink) (*Result, error) {
	tr := progress.NewTracker(req.JobID, sink)
	res, err := o.run(ctx, req, tr)
	if err != nil {
		o.logf(req.JobID, "conversion failed: %v", err)
		tr.Fail(err)
		return nil, err
	}
	tr.Complete("VR180 conversion completed")
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, tr *progress.Tracker) (*Result, error) {
	cfg := o.Config
	if req.Config != nil {
		cfg = *req.Config
	}
	proc, err := NewFrameProcessor(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if req.InputPath == "" {
		return nil, errors.New("no input path")
	}

	tr.Phase(progress.Started, "Starting VR180 conversion...")

	job, err := o.Workspace.Create(req.JobID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := job.Cleanup(); err != nil {
			o.logf(req.JobID, "cleanup: %v", err)
		}
	}()

	var info *engine.VideoInfo
	if o.Prober != nil {
		info, err = o.Prober.Probe(ctx, req.InputPath)
		if err != nil {
			return nil, asEngineError("probe", err)
		}
		o.logf(req.JobID, "source %dx%d @ %.3f fps, %.1fs, audio=%v", info.Width, info.Height, info.FPS, info.Duration, info.HasAudio)
	}

	tr.Phase(progress.Started, "Extracting video frames...")
	if err := o.Decoder.Decode(ctx, engine.DecodeRequest{
		InputPath:     req.InputPath,
		OutputPattern: job.SourcePattern(),
		FPS:           cfg.FrameSampleRateFPS,
	}); err != nil {
		return nil, asEngineError("decode", err)
	}

	refs, err := job.SourceFrames()
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, &frame.InvalidFrameError{Reason: "decoder produced no frames"}
	}
	tr.SetTotal(len(refs))
	tr.Phase(progress.Extracted, fmt.Sprintf("Extracted %d frames", len(refs)))

	if err := o.processFrames(ctx, proc, cfg.WorkerCount(), job, refs, tr); err != nil {
		return nil, err
	}

	tr.Phase(progress.FramesComplete, "Encoding VR180 video...")
	out := o.outputPath(req)
	encoded, err := o.Encoder.Encode(ctx, BuildEncodeRequest(cfg, job, out, info, req.InputPath))
	if err != nil {
		return nil, asEngineError("encode", err)
	}

	res := &Result{OutputPath: encoded, Frames: len(refs)}
	if o.Publisher != nil {
		tr.Phase(progress.Publishing, "Publishing VR180 video...")
		loc, err := o.Publisher.Publish(ctx, req.JobID, encoded)
		if err != nil {
			if rmErr := os.Remove(encoded); rmErr != nil && !os.IsNotExist(rmErr) {
				o.logf(req.JobID, "remove unpublished output: %v", rmErr)
			}
			return nil, fmt.Errorf("publish: %w", err)
		}
		res.Location = loc
	}
	return res, nil
}

// BuildEncodeRequest assembles the encoder input. Audio from the source is
// requested only when the probe found an audio track and cfg allows it.
func BuildEncodeRequest(cfg appconfig.VR180, job *workspace.Job, outputPath string, info *engine.VideoInfo, inputPath string) engine.EncodeRequest {
	req := engine.EncodeRequest{
		FramePattern: job.StereoPattern(),
		FrameRate:    cfg.FrameSampleRateFPS,
		OutputPath:   outputPath,
		Metadata:     engine.VR180Metadata(),
	}
	if cfg.IncludeAudio && info != nil && info.HasAudio {
		req.AudioSource = inputPath
	}
	return req
}

func asEngineError(op string, err error) error {
	var engErr *engine.ExternalEngineError
	if errors.As(err, &engErr) {
		return err
	}
	return &engine.ExternalEngineError{Op: op, Err: err}
}

// processFrames converts refs on a pool of workers. Each stereo frame is
// written under its source index. The first failure stops new work.
func (o *Orchestrator) processFrames(parent context.Context, proc *FrameProcessor, workers int, job *workspace.Job, refs []workspace.FrameRef, tr *progress.Tracker) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if workers > len(refs) {
		workers = len(refs)
	}

	var (
		once     sync.Once
		firstErr error
		wg       sync.WaitGroup
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}

	work := make(chan workspace.FrameRef)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range work {
				if ctx.Err() != nil {
					continue
				}
				if err := convertOne(proc, job, ref); err != nil {
					fail(err)
					continue
				}
				tr.FrameDone()
			}
		}()
	}

feed:
	for _, ref := range refs {
		select {
		case work <- ref:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if err := parent.Err(); err != nil {
		return fmt.Errorf("conversion cancelled after %d/%d frames: %w", tr.Completed(), len(refs), err)
	}
	return nil
}

func convertOne(proc *FrameProcessor, job *workspace.Job, ref workspace.FrameRef) error {
	f, err := job.ReadFrame(ref)
	if err != nil {
		return err
	}
	sf, err := proc.Process(f)
	if err != nil {
		return fmt.Errorf("frame %d: %w", ref.Index, err)
	}
	if _, err := job.WriteStereo(sf); err != nil {
		return err
	}
	return nil
}
