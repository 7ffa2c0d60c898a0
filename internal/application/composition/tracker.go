package composition

import (
	"context"
	"sync"
	"time"

	"github.com/yachty66/vimagine/internal/domain/composition"
)

// Tracker is the in-memory table of composition jobs. Terminal jobs are
// evicted after a retention window so the table stays bounded; a job that is
// still processing is never evicted.
type Tracker struct {
	mu        sync.Mutex
	jobs      map[string]*trackedJob
	retention time.Duration
}

type trackedJob struct {
	job    composition.Job
	doneAt time.Time
}

// NewTracker creates a job tracker that keeps terminal jobs for retention.
func NewTracker(retention time.Duration) *Tracker {
	return &Tracker{
		jobs:      make(map[string]*trackedJob),
		retention: retention,
	}
}

// Create registers a new job in processing state.
func (t *Tracker) Create(id string) {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[id] = &trackedJob{
		job: composition.Job{
			ID:        id,
			Status:    composition.StatusProcessing,
			Progress:  0,
			Message:   "Starting composition...",
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Get returns a snapshot of a job.
func (t *Tracker) Get(id string) (composition.Job, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tracked, ok := t.jobs[id]
	if !ok {
		return composition.Job{}, composition.ErrJobNotFound
	}
	return tracked.job, nil
}

// SetProgress commits a stage transition. Progress never decreases.
func (t *Tracker) SetProgress(id string, progress int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tracked, ok := t.jobs[id]
	if !ok || tracked.job.Status.Terminal() {
		return
	}
	if progress > tracked.job.Progress {
		tracked.job.Progress = progress
	}
	tracked.job.Message = message
	tracked.job.UpdatedAt = time.Now()
}

// Fail moves a job to its terminal failed state.
func (t *Tracker) Fail(id, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tracked, ok := t.jobs[id]
	if !ok || tracked.job.Status.Terminal() {
		return
	}
	now := time.Now()
	tracked.job.Status = composition.StatusFailed
	tracked.job.Error = message
	tracked.job.UpdatedAt = now
	tracked.doneAt = now
}

// Succeed moves a job to its terminal succeeded state with the result URL.
func (t *Tracker) Succeed(id, downloadURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tracked, ok := t.jobs[id]
	if !ok || tracked.job.Status.Terminal() {
		return
	}
	now := time.Now()
	tracked.job.Status = composition.StatusSucceeded
	tracked.job.Progress = 100
	tracked.job.Message = "Composition succeeded!"
	tracked.job.DownloadURL = downloadURL
	tracked.job.UpdatedAt = now
	tracked.doneAt = now
}

// StartEviction runs the retention sweep until ctx is cancelled.
func (t *Tracker) StartEviction(ctx context.Context) {
	if t.retention <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(t.retention / 4)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.evictExpired(time.Now())
			}
		}
	}()
}

func (t *Tracker) evictExpired(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tracked := range t.jobs {
		if tracked.job.Status.Terminal() && now.Sub(tracked.doneAt) >= t.retention {
			delete(t.jobs, id)
		}
	}
}
