package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/insight-engine/internal/jobs"
)

func TestQueue_PublishAndProcess(t *testing.T) {
	store := NewStore()
	q := NewQueue(10, 2, store)
	defer q.Close()

	var mu sync.Mutex
	processed := make(map[string]bool)
	done := make(chan struct{}, 3)

	handler := func(ctx context.Context, job jobs.Job) error {
		mu.Lock()
		processed[job.GetID()] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	}

	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		job := &jobs.InsightRunJob{UserID: "u1", Window: "weekly"}
		if err := q.PublishInsightRun(context.Background(), job); err != nil {
			t.Fatalf("PublishInsightRun: %v", err)
		}
		ids = append(ids, job.JobID)
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		if !processed[id] {
			t.Errorf("job %s never processed", id)
		}
	}
}

func TestQueue_PublishFillsDefaults(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, 1, store)
	defer q.Close()

	job := &jobs.InsightRunJob{UserID: "u1", Window: "monthly"}
	if err := q.PublishInsightRun(context.Background(), job); err != nil {
		t.Fatalf("PublishInsightRun: %v", err)
	}

	if job.JobID == "" {
		t.Error("publish must assign a job id")
	}
	if job.Type != jobs.JobTypeInsightRun {
		t.Errorf("Type = %q, want %q", job.Type, jobs.JobTypeInsightRun)
	}
	if job.Status != jobs.JobStatusPending {
		t.Errorf("Status = %q, want pending", job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("publish must stamp CreatedAt")
	}
	if job.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default 3", job.MaxRetries)
	}

	saved, err := store.GetJob(context.Background(), job.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if saved.UserID != "u1" {
		t.Errorf("saved UserID = %q", saved.UserID)
	}
}

func waitForStatus(t *testing.T, store *Store, jobID string, want jobs.JobStatus, timeout time.Duration) *jobs.InsightRunJob {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		saved, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if saved.Status == want {
			return saved
		}
		if time.Now().After(deadline) {
			t.Fatalf("job status = %q, want %q", saved.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestQueue_RetriesFailedJob(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, 1, store)
	defer q.Close()

	var mu sync.Mutex
	attempts := 0
	handler := func(ctx context.Context, job jobs.Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("generation unavailable")
		}
		return nil
	}

	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.InsightRunJob{UserID: "u1", Window: "weekly", MaxRetries: 1}
	if err := q.PublishInsightRun(context.Background(), job); err != nil {
		t.Fatalf("PublishInsightRun: %v", err)
	}

	// The retry re-enqueues after a one second backoff.
	saved := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted, 5*time.Second)
	if saved.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", saved.RetryCount)
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestQueue_PermanentFailureSkipsRetry(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, 1, store)
	defer q.Close()

	var mu sync.Mutex
	attempts := 0
	handler := func(ctx context.Context, job jobs.Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return jobs.Permanent(errors.New("model reply unparsable"))
	}

	if err := q.Start(context.Background(), handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.InsightRunJob{UserID: "u1", Window: "weekly"}
	if err := q.PublishInsightRun(context.Background(), job); err != nil {
		t.Fatalf("PublishInsightRun: %v", err)
	}

	saved := waitForStatus(t, store, job.JobID, jobs.JobStatusFailed, 2*time.Second)
	if saved.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0 for a permanent failure", saved.RetryCount)
	}
	if saved.Error == "" {
		t.Error("failed job must retain its error")
	}

	// No retry fires after the backoff window would have elapsed.
	time.Sleep(1500 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestQueue_PublishAfterStopFails(t *testing.T) {
	q := NewQueue(1, 1, nil)
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	err := q.PublishInsightRun(context.Background(), &jobs.InsightRunJob{UserID: "u1"})
	if err == nil {
		t.Error("publish on a closed queue must fail")
	}
}

func TestStore_ListJobsFilters(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	seed := []*jobs.InsightRunJob{
		{JobID: "a", UserID: "u1", Status: jobs.JobStatusCompleted, CreatedAt: base},
		{JobID: "b", UserID: "u1", Status: jobs.JobStatusFailed, CreatedAt: base.Add(time.Minute)},
		{JobID: "c", UserID: "u2", Status: jobs.JobStatusCompleted, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, j := range seed {
		if err := store.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}

	got, err := store.ListJobs(ctx, jobs.JobFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("u1 jobs = %d, want 2", len(got))
	}
	if got[0].JobID != "b" || got[1].JobID != "a" {
		t.Errorf("jobs must come back newest first, got %s then %s", got[0].JobID, got[1].JobID)
	}

	got, err = store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusCompleted})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("completed jobs = %d, want 2", len(got))
	}
}

func TestStore_SaveJobCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	job := &jobs.InsightRunJob{JobID: "a", UserID: "u1", Status: jobs.JobStatusPending}
	if err := store.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	job.Status = jobs.JobStatusFailed

	saved, err := store.GetJob(ctx, "a")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if saved.Status != jobs.JobStatusPending {
		t.Errorf("stored job mutated through caller's pointer: %q", saved.Status)
	}
}
