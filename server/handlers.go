package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/stevecastle/vr180/deps"
	"github.com/stevecastle/vr180/jobqueue"
	"github.com/stevecastle/vr180/stream"
	"github.com/stevecastle/vr180/tasks"
)

// defaultCommand is used when a job is submitted without one.
const defaultCommand = "vr180"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// queueStatus maps queue errors to HTTP status codes.
func queueStatus(err error) int {
	switch {
	case errors.Is(err, jobqueue.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobqueue.ErrJobExists),
		errors.Is(err, jobqueue.ErrNotCancellable),
		errors.Is(err, jobqueue.ErrNotFinished),
		errors.Is(err, jobqueue.ErrNotInProgress):
		return http.StatusConflict
	case errors.Is(err, jobqueue.ErrUnknownCommand),
		errors.Is(err, jobqueue.ErrMissingInput),
		errors.Is(err, jobqueue.ErrInvalidID):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func readJSONBody(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// JobDetail is a job together with its log.
type JobDetail struct {
	jobqueue.Job
	Stdout []string `json:"stdout"`
}

func jobsHandler(d *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, d.Queue.GetJobs())
		case http.MethodPost:
			createJob(d, w, r)
		default:
			http.Error(w, "Use GET or POST", http.StatusMethodNotAllowed)
		}
	}
}

// validateJob rejects what a runner could only fail on later.
func validateJob(d *Dependencies, nj *jobqueue.NewJob) error {
	nj.Input = strings.TrimSpace(nj.Input)
	if err := jobqueue.ValidateID(nj.ID); err != nil {
		return err
	}
	if nj.Command == "" {
		nj.Command = defaultCommand
	}
	if _, err := tasks.Lookup(nj.Command); err != nil {
		return err
	}
	if nj.Input == "" && nj.Command != installCommand {
		return jobqueue.ErrMissingInput
	}
	if nj.Command == defaultCommand {
		if _, err := d.Settings.Merge(nj.Settings); err != nil {
			return fmt.Errorf("%w: %v", errInvalidSettings, err)
		}
	}
	return nil
}

var errInvalidSettings = errors.New("invalid settings")

// installCommand fetches its own input.
const installCommand = "install-ffmpeg"

func createJob(d *Dependencies, w http.ResponseWriter, r *http.Request) {
	var nj jobqueue.NewJob
	if err := readJSONBody(w, r, &nj); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("bad json: %w", err))
		return
	}
	if err := validateJob(d, &nj); err != nil {
		status := queueStatus(err)
		if errors.Is(err, errInvalidSettings) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	id, err := d.Queue.AddJob(nj)
	if err != nil {
		writeError(w, queueStatus(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func jobHandler(d *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		switch r.Method {
		case http.MethodGet:
			job := d.Queue.GetJob(id)
			if job == nil {
				writeError(w, http.StatusNotFound, jobqueue.ErrJobNotFound)
				return
			}
			stdout := job.Stdout
			if stdout == nil {
				stdout = []string{}
			}
			writeJSON(w, http.StatusOK, JobDetail{Job: *job, Stdout: stdout})
		case http.MethodDelete:
			if err := d.Queue.RemoveJob(id); err != nil {
				writeError(w, queueStatus(err), err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Use GET or DELETE", http.StatusMethodNotAllowed)
		}
	}
}

func cancelHandler(d *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Use POST", http.StatusMethodNotAllowed)
			return
		}
		if err := d.Queue.CancelJob(r.PathValue("id")); err != nil {
			writeError(w, queueStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Job cancelled successfully"})
	}
}

func retryHandler(d *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Use POST", http.StatusMethodNotAllowed)
			return
		}
		newID, err := d.Queue.RetryJob(r.PathValue("id"))
		if err != nil {
			writeError(w, queueStatus(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": newID, "message": "Job queued again"})
	}
}

func clearNonRunningJobsHandler(d *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Use POST", http.StatusMethodNotAllowed)
			return
		}
		n := d.Queue.ClearNonRunningJobs()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"cleared_count": n,
			"message":       fmt.Sprintf("Cleared %d non-running jobs", n),
		})
	}
}

func tasksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Use GET", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks.List()})
	}
}

func settingsHandler(d *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Use GET", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, d.Settings)
	}
}

// healthHandler reports tool availability, stream and job statistics. It
// answers 503 when a required tool is missing.
func healthHandler(d *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Use GET", http.StatusMethodNotAllowed)
			return
		}

		tools := deps.CheckAll(r.Context())
		jobStats := map[string]int{"total": 0}
		for _, job := range d.Queue.GetJobs() {
			jobStats["total"]++
			jobStats[stateKey(job.State)]++
		}

		status, code := "healthy", http.StatusOK
		if !deps.Healthy(tools) {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{
			"status":    status,
			"timestamp": time.Now().Unix(),
			"tools":     tools,
			"stream":    statsOf(d.Hub),
			"jobs":      jobStats,
			"running":   d.Queue.Running(),
		})
	}
}

func stateKey(s jobqueue.JobState) string {
	switch s {
	case jobqueue.StatePending:
		return "pending"
	case jobqueue.StateInProgress:
		return "in_progress"
	case jobqueue.StateCompleted:
		return "completed"
	case jobqueue.StateCancelled:
		return "cancelled"
	case jobqueue.StateError:
		return "error"
	}
	return "unknown"
}

func statsOf(h *stream.Hub) map[string]interface{} {
	if h == nil {
		return stream.GetConnectionStats()
	}
	return h.Stats()
}
