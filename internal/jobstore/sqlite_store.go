// Package jobstore provides persistent storage for ingest job state using SQLite.
package jobstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// JobStatus represents the current state of an ingest job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether no further transitions happen from status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// IngestParams describes the conversion an ingest job runs.
type IngestParams struct {
	DatasetID string `json:"dataset_id"`
	// Reader is "merscope", "visium" or "auto".
	Reader string `json:"reader"`
	Path   string `json:"path"`

	VPTOutputs       interface{} `json:"vpt_outputs,omitempty"`
	ReadTIF          *bool       `json:"read_tif,omitempty"`
	CoordinateSystem string      `json:"coordinate_system,omitempty"`
}

// IngestJob represents a dataset conversion job.
type IngestJob struct {
	ID         string       `json:"job_id"`
	DatasetID  string       `json:"dataset_id"`
	Status     JobStatus    `json:"status"`
	Params     IngestParams `json:"params"`
	Phase      string       `json:"phase"`
	Summary    string       `json:"summary,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	StartedAt  *time.Time   `json:"started_at,omitempty"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// Store provides persistent storage for ingest jobs using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore creates a new SQLite-based job store.
func NewStore(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ingest_jobs (
		job_id TEXT PRIMARY KEY,
		dataset_id TEXT NOT NULL,
		status TEXT NOT NULL,
		params_json TEXT NOT NULL,
		phase TEXT DEFAULT '',
		summary TEXT DEFAULT '',
		error TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		started_at TEXT,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_ingest_jobs_dataset ON ingest_jobs(dataset_id);
	CREATE INDEX IF NOT EXISTS idx_ingest_jobs_status ON ingest_jobs(status);
	CREATE INDEX IF NOT EXISTS idx_ingest_jobs_finished ON ingest_jobs(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

const jobColumns = `job_id, dataset_id, status, params_json, phase, summary, error, created_at, started_at, finished_at`

// CreateJob creates a new job record.
func (s *Store) CreateJob(job *IngestJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO ingest_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.Params.DatasetID,
		string(job.Status),
		string(paramsJSON),
		job.Phase,
		job.Summary,
		job.Error,
		job.CreatedAt.Format(time.RFC3339Nano),
		nil,
		nil,
	)
	return err
}

// GetJob retrieves a job by ID. It returns nil without error when the job does not exist.
func (s *Store) GetJob(jobID string) (*IngestJob, error) {
	rows, err := s.db.Query(`SELECT `+jobColumns+` FROM ingest_jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs, err := s.scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

// UpdateJobStatus updates the job status and error message.
func (s *Store) UpdateJobStatus(jobID string, status JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var finishedAt *string
	if status.Terminal() {
		t := time.Now().Format(time.RFC3339Nano)
		finishedAt = &t
	}

	_, err := s.db.Exec(`
		UPDATE ingest_jobs SET status = ?, error = ?, finished_at = COALESCE(?, finished_at)
		WHERE job_id = ?
	`, string(status), errMsg, finishedAt, jobID)
	return err
}

// UpdateJobStarted marks a job as running with start time.
func (s *Store) UpdateJobStarted(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339Nano)
	_, err := s.db.Exec(`
		UPDATE ingest_jobs SET status = ?, started_at = ?
		WHERE job_id = ?
	`, string(JobStatusRunning), now, jobID)
	return err
}

// UpdateJobProgress records the current phase.
func (s *Store) UpdateJobProgress(jobID, phase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE ingest_jobs SET phase = ? WHERE job_id = ?`, phase, jobID)
	return err
}

// CompleteJob marks a job completed and stores the dataset summary.
func (s *Store) CompleteJob(jobID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339Nano)
	_, err := s.db.Exec(`
		UPDATE ingest_jobs SET status = ?, summary = ?, phase = '', finished_at = ?
		WHERE job_id = ?
	`, string(JobStatusCompleted), summary, now, jobID)
	return err
}

// ListJobs returns all jobs, newest first.
func (s *Store) ListJobs() ([]*IngestJob, error) {
	rows, err := s.db.Query(`SELECT ` + jobColumns + ` FROM ingest_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanJobs(rows)
}

// ListJobsByDataset returns all jobs for a dataset.
func (s *Store) ListJobsByDataset(datasetID string) ([]*IngestJob, error) {
	rows, err := s.db.Query(`
		SELECT `+jobColumns+`
		FROM ingest_jobs WHERE dataset_id = ?
		ORDER BY created_at DESC
	`, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanJobs(rows)
}

// ListQueuedJobs returns all queued jobs (for restart recovery).
func (s *Store) ListQueuedJobs() ([]*IngestJob, error) {
	rows, err := s.db.Query(`
		SELECT `+jobColumns+`
		FROM ingest_jobs WHERE status = ?
		ORDER BY created_at ASC
	`, string(JobStatusQueued))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanJobs(rows)
}

// MarkRunningAsFailed marks all running jobs as failed (for restart recovery).
func (s *Store) MarkRunningAsFailed(errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339Nano)
	_, err := s.db.Exec(`
		UPDATE ingest_jobs SET status = ?, error = ?, finished_at = ?
		WHERE status = ?
	`, string(JobStatusFailed), errMsg, now, string(JobStatusRunning))
	return err
}

// DeleteExpiredJobs deletes finished jobs older than retentionDays.
func (s *Store) DeleteExpiredJobs(retentionDays int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays).Format(time.RFC3339Nano)
	result, err := s.db.Exec(`
		DELETE FROM ingest_jobs WHERE finished_at IS NOT NULL AND finished_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// DeleteJob deletes a job.
func (s *Store) DeleteJob(jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM ingest_jobs WHERE job_id = ?", jobID)
	return err
}

func (s *Store) scanJobs(rows *sql.Rows) ([]*IngestJob, error) {
	var jobs []*IngestJob
	for rows.Next() {
		var job IngestJob
		var paramsJSON string
		var createdAtStr string
		var startedAtStr, finishedAtStr sql.NullString

		err := rows.Scan(
			&job.ID,
			&job.DatasetID,
			&job.Status,
			&paramsJSON,
			&job.Phase,
			&job.Summary,
			&job.Error,
			&createdAtStr,
			&startedAtStr,
			&finishedAtStr,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(paramsJSON), &job.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}

		job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAtStr)
		if startedAtStr.Valid {
			t, _ := time.Parse(time.RFC3339Nano, startedAtStr.String)
			job.StartedAt = &t
		}
		if finishedAtStr.Valid {
			t, _ := time.Parse(time.RFC3339Nano, finishedAtStr.String)
			job.FinishedAt = &t
		}

		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}
