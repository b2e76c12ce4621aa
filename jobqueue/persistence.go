package jobqueue

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// createJobsTable creates the jobs table if it doesn't exist.
func (q *Queue) createJobsTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		command TEXT NOT NULL,
		arguments TEXT, -- JSON array
		input TEXT,
		settings TEXT, -- JSON object
		output TEXT,
		location TEXT,
		progress INTEGER NOT NULL DEFAULT 0,
		message TEXT,
		stdout TEXT, -- JSON array
		dependencies TEXT, -- JSON array
		state INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		claimed_at DATETIME,
		completed_at DATETIME,
		errored_at DATETIME,
		job_order_position INTEGER
	)`

	_, err := q.Db.Exec(query)
	return err
}

// saveJobToDB upserts a single job. Callers hold q.mu.
func (q *Queue) saveJobToDB(job *Job) error {
	if q.Db == nil {
		return nil
	}

	argumentsJSON, _ := json.Marshal(job.Arguments)
	stdoutJSON, _ := json.Marshal(job.Stdout)
	dependenciesJSON, _ := json.Marshal(job.Dependencies)

	position := -1
	for i, id := range q.JobOrder {
		if id == job.ID {
			position = i
			break
		}
	}

	query := `
	INSERT OR REPLACE INTO jobs (
		id, command, arguments, input, settings, output, location, progress, message,
		stdout, dependencies, state, created_at, claimed_at, completed_at, errored_at,
		job_order_position
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.Db.Exec(query,
		job.ID,
		job.Command,
		string(argumentsJSON),
		job.Input,
		string(job.Settings),
		job.Output,
		job.Location,
		job.Progress,
		job.Message,
		string(stdoutJSON),
		string(dependenciesJSON),
		int(job.State),
		job.CreatedAt,
		job.ClaimedAt,
		job.CompletedAt,
		job.ErroredAt,
		position,
	)
	return err
}

// loadJobsFromDB restores saved jobs. Jobs that were in progress when the
// process stopped go back to pending so they run again.
func (q *Queue) loadJobsFromDB() error {
	if q.Db == nil {
		return nil
	}

	query := `
	SELECT id, command, COALESCE(arguments, 'null'), COALESCE(input, ''), COALESCE(settings, ''),
		   COALESCE(output, ''), COALESCE(location, ''), progress, COALESCE(message, ''),
		   COALESCE(stdout, 'null'), COALESCE(dependencies, 'null'), state,
		   created_at, claimed_at, completed_at, errored_at
	FROM jobs
	ORDER BY job_order_position`

	rows, err := q.Db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	var resumed []string
	for rows.Next() {
		var job Job
		var argumentsJSON, settings, stdoutJSON, dependenciesJSON string
		var state int

		err := rows.Scan(
			&job.ID,
			&job.Command,
			&argumentsJSON,
			&job.Input,
			&settings,
			&job.Output,
			&job.Location,
			&job.Progress,
			&job.Message,
			&stdoutJSON,
			&dependenciesJSON,
			&state,
			&job.CreatedAt,
			&job.ClaimedAt,
			&job.CompletedAt,
			&job.ErroredAt,
		)
		if err != nil {
			log.Printf("Error scanning job row: %v", err)
			continue
		}

		if err := json.Unmarshal([]byte(argumentsJSON), &job.Arguments); err != nil {
			job.Arguments = nil
		}
		if err := json.Unmarshal([]byte(stdoutJSON), &job.Stdout); err != nil {
			job.Stdout = nil
		}
		if err := json.Unmarshal([]byte(dependenciesJSON), &job.Dependencies); err != nil {
			job.Dependencies = nil
		}
		if settings != "" {
			job.Settings = json.RawMessage(settings)
		}
		job.State = JobState(state)

		if job.State == StateInProgress {
			job.State = StatePending
			job.ClaimedAt = time.Time{}
			job.Progress = 0
			job.Message = "Queued"
			resumed = append(resumed, job.ID)
		}

		ctx, cancel := context.WithCancel(context.Background())
		job.Ctx = ctx
		job.Cancel = cancel

		q.Jobs[job.ID] = &job
		q.JobOrder = append(q.JobOrder, job.ID)
	}

	if len(resumed) > 0 {
		log.Printf("Resumed %d jobs that were in progress: %v", len(resumed), resumed)
		for _, id := range resumed {
			q.notify(id)
		}
	}
	return rows.Err()
}

// removeJobFromDB removes a job from the database.
func (q *Queue) removeJobFromDB(jobID string) error {
	if q.Db == nil {
		return nil
	}
	_, err := q.Db.Exec("DELETE FROM jobs WHERE id = ?", jobID)
	return err
}

// SaveAllJobsToDB saves all current jobs to the database.
func (q *Queue) SaveAllJobsToDB() error {
	if q.Db == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, job := range q.Jobs {
		if err := q.saveJobToDB(job); err != nil {
			log.Printf("Failed to save job %s to database: %v", job.ID, err)
		}
	}
	return nil
}
