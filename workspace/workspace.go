// Package workspace owns the per-job scratch directories that hold extracted
// source frames and the stereo frames handed to the encoder.
package workspace

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stevecastle/vr180/frame"
)

// File name prefixes for the two frame sequences.
const (
	SourcePrefix = "frame"
	StereoPrefix = "stereo"
)

// IOError reports a failed read or write of intermediate job storage.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Workspace is a root directory under which each job gets its own folder.
type Workspace struct {
	Root string
}

// New returns a Workspace rooted at root.
func New(root string) *Workspace {
	return &Workspace{Root: root}
}

// Job is one job's scratch area.
type Job struct {
	ID        string
	Dir       string
	FramesDir string
	StereoDir string
}

// Create makes the job's frame directories, replacing leftovers from an
// earlier run of the same job.
func (w *Workspace) Create(jobID string) (*Job, error) {
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return nil, fmt.Errorf("invalid job id %q", jobID)
	}
	dir := filepath.Join(w.Root, jobID)
	if err := os.RemoveAll(dir); err != nil {
		return nil, &IOError{Op: "reset", Path: dir, Err: err}
	}
	j := &Job{
		ID:        jobID,
		Dir:       dir,
		FramesDir: filepath.Join(dir, "frames"),
		StereoDir: filepath.Join(dir, "stereo"),
	}
	for _, d := range []string{j.FramesDir, j.StereoDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, &IOError{Op: "mkdir", Path: d, Err: err}
		}
	}
	return j, nil
}

// SourcePattern is the printf-style path the decoder writes frames to.
func (j *Job) SourcePattern() string {
	return filepath.Join(j.FramesDir, frame.Pattern(SourcePrefix))
}

// StereoPattern is the printf-style path the encoder reads frames from.
func (j *Job) StereoPattern() string {
	return filepath.Join(j.StereoDir, frame.Pattern(StereoPrefix))
}

// FrameRef locates one extracted source frame.
type FrameRef struct {
	Index int
	Path  string
}

// SourceFrames lists the extracted frames ordered by index. Files that do not
// follow the frame naming are ignored.
func (j *Job) SourceFrames() ([]FrameRef, error) {
	entries, err := os.ReadDir(j.FramesDir)
	if err != nil {
		return nil, &IOError{Op: "list", Path: j.FramesDir, Err: err}
	}
	var refs []FrameRef
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, SourcePrefix+"_") || !strings.EqualFold(filepath.Ext(name), ".png") {
			continue
		}
		idx, err := frame.ParseIndex(name)
		if err != nil {
			continue
		}
		refs = append(refs, FrameRef{Index: idx, Path: filepath.Join(j.FramesDir, name)})
	}
	sort.Slice(refs, func(a, b int) bool { return refs[a].Index < refs[b].Index })
	return refs, nil
}

// ReadFrame loads a source frame from disk.
func (j *Job) ReadFrame(ref FrameRef) (*frame.Frame, error) {
	b, err := frame.Load(ref.Path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: ref.Path, Err: err}
	}
	return &frame.Frame{Index: ref.Index, Buffer: b}, nil
}

// WriteStereo stores sf under its own index so the encoder sees frames in
// source order whatever order they were finished in.
func (j *Job) WriteStereo(sf *frame.StereoFrame) (string, error) {
	p := filepath.Join(j.StereoDir, frame.FileName(StereoPrefix, sf.Index))
	if err := frame.SavePNG(p, sf.Buffer); err != nil {
		return "", &IOError{Op: "write", Path: p, Err: err}
	}
	return p, nil
}

// Cleanup removes the job directory. Failures are logged and returned for
// callers that care; the orchestrator only logs them.
func (j *Job) Cleanup() error {
	if err := os.RemoveAll(j.Dir); err != nil {
		log.Printf("workspace: failed to remove %s: %v", j.Dir, err)
		return &IOError{Op: "cleanup", Path: j.Dir, Err: err}
	}
	return nil
}
