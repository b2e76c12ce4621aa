// Command vr180 converts a local video, or a single image with -image, into
// side-by-side VR180 output.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"github.com/schollz/progressbar/v3"

	"github.com/stevecastle/vr180/appconfig"
	"github.com/stevecastle/vr180/deps"
	"github.com/stevecastle/vr180/engine"
	"github.com/stevecastle/vr180/pipeline"
	"github.com/stevecastle/vr180/progress"
	"github.com/stevecastle/vr180/publish"
	"github.com/stevecastle/vr180/workspace"
)

type options struct {
	in, out string
	image   bool
	open    bool
	publish bool
	verbose bool
	cfg     appconfig.Config
}

func main() {
	if err := appconfig.LoadEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	base, err := appconfig.ApplyEnv(appconfig.Default(), os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	opts, err := parseFlags(os.Args[1:], base, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "vr180: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, base appconfig.Config, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("vr180", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{cfg: base}
	v := &o.cfg.VR180
	fs.StringVar(&o.in, "in", "", "input video (or image with -image)")
	fs.StringVar(&o.out, "out", "", "output path (default <in>-vr180.mp4 or .png)")
	fs.BoolVar(&o.image, "image", false, "convert a single image into one VR180 PNG")
	fs.BoolVar(&o.open, "open", false, "open the result when done")
	fs.BoolVar(&o.publish, "publish", false, "upload the result to the configured S3 bucket")
	fs.BoolVar(&o.verbose, "v", false, "print ffmpeg output")

	fs.IntVar(&v.OutputWidth, "width", v.OutputWidth, "output width in pixels (both eyes)")
	fs.IntVar(&v.OutputHeight, "height", v.OutputHeight, "output height in pixels")
	fs.Float64Var(&v.MaxDisparity, "max-disparity", v.MaxDisparity, "max horizontal shift in pixels")
	fs.Float64Var(&v.FrameSampleRateFPS, "fps", v.FrameSampleRateFPS, "frames sampled per second of video")
	fs.Float64Var(&v.BarrelK1, "k1", v.BarrelK1, "barrel distortion coefficient")
	fs.IntVar(&v.EdgeBlendWidthPx, "blend", v.EdgeBlendWidthPx, "edge blend width in pixels")
	fs.IntVar(&v.Workers, "workers", v.Workers, "frame workers (0 = one per CPU)")
	noAudio := fs.Bool("no-audio", !v.IncludeAudio, "drop the source audio track")

	fs.StringVar(&o.cfg.FFmpegPath, "ffmpeg", o.cfg.FFmpegPath, "ffmpeg executable")
	fs.StringVar(&o.cfg.FFprobePath, "ffprobe", o.cfg.FFprobePath, "ffprobe executable")
	fs.StringVar(&o.cfg.WorkspaceDir, "workdir", o.cfg.WorkspaceDir, "scratch directory for frames")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.in == "" && fs.NArg() > 0 {
		o.in = fs.Arg(0)
	}
	if o.in == "" {
		fs.Usage()
		return nil, errors.New("usage: vr180 -in <video> [-out out.mp4] [-image] ...")
	}
	v.IncludeAudio = !*noAudio
	if o.out == "" {
		o.out = defaultOutput(o.in, o.image)
	}
	if o.publish && !o.cfg.S3.Enabled() {
		return nil, errors.New("-publish needs VR180_S3_BUCKET")
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

func defaultOutput(in string, image bool) string {
	ext := ".mp4"
	if image {
		ext = ".png"
	}
	return strings.TrimSuffix(in, filepath.Ext(in)) + "-vr180" + ext
}

func run(ctx context.Context, o *options, stdout, stderr io.Writer) error {
	if o.image {
		if err := pipeline.ConvertImage(o.cfg.VR180, o.in, o.out); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Wrote %s (%dx%d)\n", o.out, o.cfg.VR180.OutputWidth, o.cfg.VR180.OutputHeight)
		return openResult(o)
	}

	if o.cfg.FFmpegPath != "" {
		deps.SetPath("ffmpeg", o.cfg.FFmpegPath)
	}
	if o.cfg.FFprobePath != "" {
		deps.SetPath("ffprobe", o.cfg.FFprobePath)
	}

	var logLine func(string)
	if o.verbose {
		logLine = func(line string) { fmt.Fprintln(stderr, line) }
	}
	eng := engine.NewFFmpeg(logLine)

	orch := &pipeline.Orchestrator{
		Decoder:   eng,
		Encoder:   eng,
		Prober:    eng,
		Workspace: workspace.New(o.cfg.WorkspaceDir),
		Config:    o.cfg.VR180,
		Log: func(_, line string) {
			if o.verbose {
				fmt.Fprintln(stderr, line)
			}
		},
	}
	if o.publish {
		pub, err := publish.NewS3(ctx, o.cfg.S3)
		if err != nil {
			return err
		}
		orch.Publisher = pub
	}

	res, err := orch.Run(ctx, pipeline.Request{
		JobID:      uuid.NewString(),
		InputPath:  o.in,
		OutputPath: o.out,
	}, newBarSink(stderr))
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Wrote %s (%d frames)\n", res.OutputPath, res.Frames)
	if res.Location != "" {
		fmt.Fprintf(stdout, "Published %s\n", res.Location)
	}
	return openResult(o)
}

func openResult(o *options) error {
	if !o.open {
		return nil
	}
	return browser.OpenFile(o.out)
}

// newBarSink renders progress updates as a terminal bar on w.
func newBarSink(w io.Writer) progress.Sink {
	bar := progressbar.NewOptions(progress.Done,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Starting"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetRenderBlankState(true),
	)
	return progress.SinkFunc(func(u progress.Update) {
		bar.Describe(u.Message)
		_ = bar.Set(u.Progress)
		switch u.Status {
		case progress.StatusCompleted:
			_ = bar.Finish()
			fmt.Fprintln(w)
		case progress.StatusError:
			_ = bar.Exit()
			fmt.Fprintln(w)
		}
	})
}
