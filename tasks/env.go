package tasks

import (
	"context"
	"runtime"
	"sync"

	"github.com/stevecastle/vr180/appconfig"
	"github.com/stevecastle/vr180/downloads"
	"github.com/stevecastle/vr180/engine"
	"github.com/stevecastle/vr180/platform"
	"github.com/stevecastle/vr180/publish"
	"github.com/stevecastle/vr180/workspace"
)

// Engine is the video engine surface the tasks drive.
type Engine interface {
	engine.Decoder
	engine.Encoder
	engine.Prober
	Thumbnail(ctx context.Context, input, output, timestamp string) error
}

// Env is the process wiring tasks run against.
type Env struct {
	// NewEngine returns an engine whose log lines go to log.
	NewEngine func(log func(string)) Engine
	Workspace *workspace.Workspace
	// Publisher is optional.
	Publisher publish.Publisher
	Settings  appconfig.VR180
	OutputDir string
	// ToolsDir receives installed ffmpeg builds.
	ToolsDir string
	// Sources lists the default ffmpeg archives for this machine.
	Sources func() ([]downloads.Source, error)
}

var (
	envMu sync.RWMutex
	env   *Env
)

// Configure installs the wiring used by every task from now on.
func Configure(e Env) {
	envMu.Lock()
	defer envMu.Unlock()
	env = &e
}

// currentEnv returns the configured wiring, or one built from the in-memory
// config with the ffmpeg engine and no publisher.
func currentEnv() Env {
	envMu.RLock()
	defer envMu.RUnlock()
	if env != nil {
		return *env
	}
	return FromConfig(appconfig.Get(), nil)
}

// FromConfig builds the wiring for c around the ffmpeg engine.
func FromConfig(c appconfig.Config, pub publish.Publisher) Env {
	return Env{
		NewEngine: func(log func(string)) Engine { return engine.NewFFmpeg(log) },
		Workspace: workspace.New(c.WorkspaceDir),
		Publisher: pub,
		Settings:  c.VR180,
		OutputDir: c.OutputDir,
		ToolsDir:  platform.GetToolsDir(),
		Sources: func() ([]downloads.Source, error) {
			return downloads.FFmpegSources(runtime.GOOS, runtime.GOARCH)
		},
	}
}
