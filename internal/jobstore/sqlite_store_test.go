package jobstore

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "ingest.sqlite"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newJob(id, dataset string, created time.Time) *IngestJob {
	readTIF := false
	return &IngestJob{
		ID:        id,
		Status:    JobStatusQueued,
		CreatedAt: created,
		Params: IngestParams{
			DatasetID:  dataset,
			Reader:     "merscope",
			Path:       "/data/" + dataset,
			VPTOutputs: map[string]interface{}{"cell_by_gene": "/vpt/counts.csv"},
			ReadTIF:    &readTIF,
		},
	}
}

func TestStore_Lifecycle(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateJob(newJob("j1", "brain", time.Now())); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job, err := s.GetJob("j1")
	if err != nil || job == nil {
		t.Fatalf("GetJob: %v %v", job, err)
	}
	if job.DatasetID != "brain" || job.Status != JobStatusQueued {
		t.Errorf("unexpected job %+v", job)
	}
	if job.Params.ReadTIF == nil || *job.Params.ReadTIF {
		t.Errorf("expected read_tif false to round-trip, got %v", job.Params.ReadTIF)
	}
	m, ok := job.Params.VPTOutputs.(map[string]interface{})
	if !ok || m["cell_by_gene"] != "/vpt/counts.csv" {
		t.Errorf("unexpected vpt outputs %#v", job.Params.VPTOutputs)
	}

	if err := s.UpdateJobStarted("j1"); err != nil {
		t.Fatalf("UpdateJobStarted: %v", err)
	}
	if err := s.UpdateJobProgress("j1", "reading"); err != nil {
		t.Fatalf("UpdateJobProgress: %v", err)
	}
	job, _ = s.GetJob("j1")
	if job.Status != JobStatusRunning || job.StartedAt == nil || job.Phase != "reading" {
		t.Errorf("unexpected running job %+v", job)
	}

	if err := s.CompleteJob("j1", "Dataset\n"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	job, _ = s.GetJob("j1")
	if job.Status != JobStatusCompleted || job.FinishedAt == nil || job.Summary != "Dataset\n" || job.Phase != "" {
		t.Errorf("unexpected completed job %+v", job)
	}

	missing, err := s.GetJob("nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil job for unknown id, got %v %v", missing, err)
	}
}

func TestStore_Recovery(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"a", "b", "c"} {
		if err := s.CreateJob(newJob(id, "ds", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}
	if err := s.UpdateJobStarted("b"); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkRunningAsFailed("server restarted"); err != nil {
		t.Fatalf("MarkRunningAsFailed: %v", err)
	}

	b, _ := s.GetJob("b")
	if b.Status != JobStatusFailed || b.Error != "server restarted" {
		t.Errorf("unexpected recovered job %+v", b)
	}

	queued, err := s.ListQueuedJobs()
	if err != nil {
		t.Fatalf("ListQueuedJobs: %v", err)
	}
	if len(queued) != 2 || queued[0].ID != "a" || queued[1].ID != "c" {
		t.Errorf("unexpected queued jobs %v", queued)
	}

	all, err := s.ListJobs()
	if err != nil || len(all) != 3 || all[0].ID != "c" {
		t.Errorf("unexpected job list %v %v", all, err)
	}
	byDataset, err := s.ListJobsByDataset("ds")
	if err != nil || len(byDataset) != 3 {
		t.Errorf("unexpected dataset jobs %v %v", byDataset, err)
	}
}

func TestStore_Cleanup(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"done", "queued"} {
		if err := s.CreateJob(newJob(id, "ds", time.Now())); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.UpdateJobStatus("done", JobStatusCancelled, ""); err != nil {
		t.Fatal(err)
	}

	// a negative retention puts the cutoff in the future
	n, err := s.DeleteExpiredJobs(-1)
	if err != nil {
		t.Fatalf("DeleteExpiredJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired job, got %d", n)
	}
	if job, _ := s.GetJob("queued"); job == nil {
		t.Error("unfinished job should survive cleanup")
	}

	if err := s.DeleteJob("queued"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if job, _ := s.GetJob("queued"); job != nil {
		t.Error("expected job to be deleted")
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	for status, want := range map[JobStatus]bool{
		JobStatusQueued:    false,
		JobStatusRunning:   false,
		JobStatusCompleted: true,
		JobStatusFailed:    true,
		JobStatusCancelled: true,
	} {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}
