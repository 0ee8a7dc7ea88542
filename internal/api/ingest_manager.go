package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spatialdata-io/server/internal/detect"
	"github.com/spatialdata-io/server/internal/jobstore"
	"github.com/spatialdata-io/server/internal/service"
)

// ErrQueueFull is returned by Submit when no more jobs can be queued.
var ErrQueueFull = errors.New("ingest queue is full; try again later")

// IngestManagerConfig contains configuration for the ingest manager.
type IngestManagerConfig struct {
	MaxConcurrent int    // Max concurrent conversions (default 1)
	SQLitePath    string // Path to SQLite database
	RetentionDays int    // Days to keep finished jobs (default 7)
	CleanupPeriod time.Duration
	QueueSize     int
}

// ConvertFunc reads the dataset of an ingest job.
type ConvertFunc func(ctx context.Context, params jobstore.IngestParams) (*service.DatasetService, error)

// IngestManager runs dataset conversion jobs with SQLite persistence and
// registers every converted dataset.
type IngestManager struct {
	cfg      IngestManagerConfig
	store    *jobstore.Store
	registry *DatasetRegistry
	queue    chan string // job IDs
	running  map[string]context.CancelFunc
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	// Convert is called to read the dataset.
	Convert ConvertFunc
}

// NewIngestManager creates a new ingest manager with SQLite persistence.
func NewIngestManager(cfg IngestManagerConfig, registry *DatasetRegistry) (*IngestManager, error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 7
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 1 * time.Hour
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	store, err := jobstore.NewStore(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	return &IngestManager{
		cfg:      cfg,
		store:    store,
		registry: registry,
		queue:    make(chan string, cfg.QueueSize),
		running:  make(map[string]context.CancelFunc),
		stopCh:   make(chan struct{}),
	}, nil
}

// LoaderConvert adapts a Loader to a ConvertFunc.
func LoaderConvert(l *Loader) ConvertFunc {
	return func(_ context.Context, params jobstore.IngestParams) (*service.DatasetService, error) {
		svc, _, err := l.Load(params)
		return svc, err
	}
}

// Store returns the underlying store for direct access.
func (m *IngestManager) Store() *jobstore.Store {
	return m.store
}

// Start starts the worker goroutines and cleanup ticker.
// Also recovers from previous shutdown.
func (m *IngestManager) Start() {
	// Mark any running jobs as failed (server restart)
	if err := m.store.MarkRunningAsFailed("server restarted"); err != nil {
		log.Printf("[IngestManager] failed to mark running jobs as failed: %v", err)
	}

	queued, err := m.store.ListQueuedJobs()
	if err != nil {
		log.Printf("[IngestManager] failed to list queued jobs: %v", err)
	} else {
		for _, job := range queued {
			select {
			case m.queue <- job.ID:
				log.Printf("[IngestManager] re-queued job %s (%s)", job.ID, job.DatasetID)
			default:
				log.Printf("[IngestManager] queue full, cannot re-queue job %s", job.ID)
				m.store.UpdateJobStatus(job.ID, jobstore.JobStatusFailed, ErrQueueFull.Error())
			}
		}
	}

	for i := 0; i < m.cfg.MaxConcurrent; i++ {
		m.wg.Add(1)
		go m.worker()
	}

	go m.cleaner()
}

// Stop stops all workers gracefully. Running conversions finish first.
func (m *IngestManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		close(m.queue)
		m.wg.Wait()
		m.store.Close()
	})
}

func (m *IngestManager) worker() {
	defer m.wg.Done()
	for jobID := range m.queue {
		m.runJob(jobID)
	}
}

func (m *IngestManager) runJob(jobID string) {
	job, err := m.store.GetJob(jobID)
	if err != nil || job == nil {
		log.Printf("[IngestManager] job %s vanished before start: %v", jobID, err)
		return
	}
	if job.Status != jobstore.JobStatusQueued {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.mu.Lock()
	m.running[jobID] = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.running, jobID)
		m.mu.Unlock()
	}()

	if err := m.store.UpdateJobStarted(jobID); err != nil {
		log.Printf("[IngestManager] failed to update job %s as started: %v", jobID, err)
		return
	}
	m.store.UpdateJobProgress(jobID, "converting")
	log.Printf("[IngestManager] job %s: converting %s (%s)", jobID, job.Params.Path, job.DatasetID)

	var svc *service.DatasetService
	var execErr error
	if m.Convert == nil {
		execErr = errors.New("no converter configured")
	} else {
		svc, execErr = m.Convert(ctx, job.Params)
	}

	switch {
	case ctx.Err() == context.Canceled:
		if svc != nil {
			svc.Close()
		}
		m.store.UpdateJobStatus(jobID, jobstore.JobStatusCancelled, "cancelled by user")
		log.Printf("[IngestManager] job %s cancelled", jobID)
	case execErr != nil:
		m.store.UpdateJobStatus(jobID, jobstore.JobStatusFailed, execErr.Error())
		log.Printf("[IngestManager] job %s failed: %v", jobID, execErr)
	default:
		m.store.UpdateJobProgress(jobID, "registering")
		m.registry.Register(job.DatasetID, svc)
		if err := m.store.CompleteJob(jobID, svc.Dataset().Summary()); err != nil {
			log.Printf("[IngestManager] failed to complete job %s: %v", jobID, err)
		}
		log.Printf("[IngestManager] job %s completed, dataset %s registered", jobID, job.DatasetID)
	}
}

func (m *IngestManager) cleaner() {
	ticker := time.NewTicker(m.cfg.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *IngestManager) cleanup() {
	deleted, err := m.store.DeleteExpiredJobs(m.cfg.RetentionDays)
	if err != nil {
		log.Printf("[IngestManager] cleanup error: %v", err)
	} else if deleted > 0 {
		log.Printf("[IngestManager] cleaned up %d expired jobs", deleted)
	}
}

// Submit validates params, creates a job and enqueues it for execution.
func (m *IngestManager) Submit(params jobstore.IngestParams) (*jobstore.IngestJob, error) {
	if params.DatasetID == "" {
		return nil, fmt.Errorf("dataset_id is required")
	}
	if params.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	kind, err := detect.ParseKind(params.Reader)
	if err != nil {
		return nil, err
	}
	params.Reader = string(kind)

	job := &jobstore.IngestJob{
		ID:        uuid.NewString(),
		DatasetID: params.DatasetID,
		Status:    jobstore.JobStatusQueued,
		Params:    params,
		CreatedAt: time.Now(),
	}
	if err := m.store.CreateJob(job); err != nil {
		return nil, err
	}

	select {
	case m.queue <- job.ID:
	default:
		m.store.UpdateJobStatus(job.ID, jobstore.JobStatusFailed, ErrQueueFull.Error())
		return nil, ErrQueueFull
	}
	return job, nil
}

// Get returns a job by ID, or nil if unknown.
func (m *IngestManager) Get(id string) *jobstore.IngestJob {
	job, err := m.store.GetJob(id)
	if err != nil {
		log.Printf("[IngestManager] error getting job %s: %v", id, err)
		return nil
	}
	return job
}

// List returns all jobs, newest first.
func (m *IngestManager) List() ([]*jobstore.IngestJob, error) {
	return m.store.ListJobs()
}

// Cancel cancels a queued or running job. A running conversion is not
// interrupted; its result is discarded when it returns.
func (m *IngestManager) Cancel(id string) bool {
	m.mu.Lock()
	cancel, ok := m.running[id]
	m.mu.Unlock()

	if ok && cancel != nil {
		cancel()
		return true
	}

	job, err := m.store.GetJob(id)
	if err != nil || job == nil {
		return false
	}
	if job.Status == jobstore.JobStatusQueued {
		m.store.UpdateJobStatus(id, jobstore.JobStatusCancelled, "cancelled before start")
		return true
	}
	return false
}

// Delete deletes a finished job.
func (m *IngestManager) Delete(id string) error {
	return m.store.DeleteJob(id)
}
