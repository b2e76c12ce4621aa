// Package deps tracks the external tools the converter shells out to and
// resolves where each one lives on this machine.
package deps

import (
	"context"
	"sort"
	"sync"
)

// Tool is an external executable the service depends on.
type Tool struct {
	ID          string
	Name        string
	Description string
	// ExeName is the base executable name without platform extension.
	ExeName string
	// Optional tools do not make the service unhealthy when missing.
	Optional bool

	// Check verifies the executable at path runs and returns its version.
	Check func(ctx context.Context, path string) (version string, err error)
}

// Status is the result of checking one tool.
type Status struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Installed bool   `json:"installed"`
	Optional  bool   `json:"optional"`
	Path      string `json:"path,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ToolRegistry stores all registered tools by ID.
type ToolRegistry map[string]*Tool

var (
	registry  ToolRegistry = make(ToolRegistry)
	overrides              = make(map[string]string)
	mu        sync.RWMutex
)

// Register adds a tool to the global registry.
func Register(t *Tool) {
	mu.Lock()
	defer mu.Unlock()
	registry[t.ID] = t
}

// Get retrieves a tool by its ID.
func Get(id string) (*Tool, bool) {
	mu.RLock()
	defer mu.RUnlock()
	t, ok := registry[id]
	return t, ok
}

// GetAll returns all registered tools ordered by ID.
func GetAll() []*Tool {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]*Tool, 0, len(registry))
	for _, t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetPath pins a tool to an explicit executable path. An empty path removes
// the pin.
func SetPath(id, path string) {
	mu.Lock()
	defer mu.Unlock()
	if path == "" {
		delete(overrides, id)
		return
	}
	overrides[id] = path
}

func override(id string) string {
	mu.RLock()
	defer mu.RUnlock()
	return overrides[id]
}

// Check resolves and runs a tool's version check.
func Check(ctx context.Context, id string) Status {
	t, ok := Get(id)
	if !ok {
		return Status{ID: id, Error: "unknown tool"}
	}
	st := Status{ID: t.ID, Name: t.Name, Optional: t.Optional}
	path, err := Locate(id)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Path = path
	if t.Check == nil {
		st.Installed = true
		return st
	}
	version, err := t.Check(ctx, path)
	if err != nil {
		st.Error = err.Error()
		return st
	}
	st.Installed = true
	st.Version = version
	return st
}

// CheckAll checks every registered tool.
func CheckAll(ctx context.Context) []Status {
	tools := GetAll()
	out := make([]Status, 0, len(tools))
	for _, t := range tools {
		out = append(out, Check(ctx, t.ID))
	}
	return out
}

// Healthy reports whether every required tool in statuses is installed.
func Healthy(statuses []Status) bool {
	for _, s := range statuses {
		if !s.Installed && !s.Optional {
			return false
		}
	}
	return true
}
