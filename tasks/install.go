package tasks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/stevecastle/vr180/deps"
	"github.com/stevecastle/vr180/downloads"
	"github.com/stevecastle/vr180/jobqueue"
	"github.com/stevecastle/vr180/platform"
	"github.com/stevecastle/vr180/progress"
)

// ffmpegTools are the tools an ffmpeg install provides.
var ffmpegTools = []string{"ffmpeg", "ffprobe"}

// installFFmpegTask downloads static ffmpeg/ffprobe builds into the tools
// directory and pins them. j.Input and j.Arguments may name archive URLs to
// use instead of the platform defaults.
func installFFmpegTask(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	e := currentEnv()
	tracker := progress.NewTracker(j.ID, q)

	sources, err := installSources(j, e)
	if err != nil {
		q.PushJobStdout(j.ID, "install: "+err.Error())
		tracker.Fail(err)
		return err
	}
	if err := os.MkdirAll(e.ToolsDir, 0755); err != nil {
		tracker.Fail(err)
		return fmt.Errorf("failed to create tools directory: %w", err)
	}

	names := make([]string, len(ffmpegTools))
	for i, id := range ffmpegTools {
		names[i] = platform.ExecutableName(id)
	}

	// downloads fill 0-90, split evenly between sources
	share := 90 / len(sources)
	for i, src := range sources {
		base := i * share
		archive := filepath.Join(e.ToolsDir, fmt.Sprintf("%s-%d.%s", j.ID, i, src.Format))
		q.PushJobStdout(j.ID, "Downloading "+src.URL)

		lastPct := -1
		err := downloads.DownloadWithRetry(j.Ctx, archive, src.URL, func(done, total int64) {
			if total <= 0 {
				tracker.Phase(base, fmt.Sprintf("Downloaded %s", humanize.Bytes(uint64(done))))
				return
			}
			pct := int(done * 100 / total)
			if pct == lastPct {
				return
			}
			lastPct = pct
			tracker.Phase(base+pct*share/100, fmt.Sprintf("Downloaded %s of %s", humanize.Bytes(uint64(done)), humanize.Bytes(uint64(total))))
		})
		if err != nil {
			os.Remove(archive)
			q.PushJobStdout(j.ID, "install: "+err.Error())
			tracker.Fail(err)
			return err
		}

		written, err := downloads.ExtractBinaries(archive, src.Format, e.ToolsDir, names)
		os.Remove(archive)
		if err != nil {
			q.PushJobStdout(j.ID, "install: "+err.Error())
			tracker.Fail(err)
			return err
		}
		for _, p := range written {
			q.PushJobStdout(j.ID, "Extracted "+p)
		}
	}

	tracker.Phase(95, "Verifying install")
	for _, id := range ffmpegTools {
		exe := filepath.Join(e.ToolsDir, platform.ExecutableName(id))
		if _, err := os.Stat(exe); err != nil {
			err = fmt.Errorf("%s missing after install", id)
			q.PushJobStdout(j.ID, "install: "+err.Error())
			tracker.Fail(err)
			return err
		}
		deps.SetPath(id, exe)
		st := deps.Check(j.Ctx, id)
		if !st.Installed {
			err := fmt.Errorf("%s check failed: %s", id, st.Error)
			q.PushJobStdout(j.ID, "install: "+err.Error())
			tracker.Fail(err)
			return err
		}
		q.PushJobStdout(j.ID, fmt.Sprintf("%s %s installed at %s", st.Name, st.Version, st.Path))
	}

	tracker.Complete("FFmpeg installed")
	return q.CompleteJob(j.ID)
}

func installSources(j *jobqueue.Job, e Env) ([]downloads.Source, error) {
	var urls []string
	for _, u := range append([]string{j.Input}, j.Arguments...) {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return e.Sources()
	}
	sources := make([]downloads.Source, 0, len(urls))
	for _, u := range urls {
		f, err := downloads.FormatFromName(u)
		if err != nil {
			return nil, err
		}
		sources = append(sources, downloads.Source{URL: u, Format: f})
	}
	return sources, nil
}
