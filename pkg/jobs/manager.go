// Package jobs runs metadata generation asynchronously: a bounded worker
// pool, per-job progress, cancellation, and retention-based cleanup.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/models"
)

const (
	// defaultMaxWorkers bounds concurrently running jobs.
	defaultMaxWorkers = 2

	// defaultRetention is how long terminal jobs stay queryable.
	defaultRetention = 24 * time.Hour

	cleanupInterval = time.Hour
)

// Runner executes one job's work. progress receives values in [0, 1].
type Runner func(ctx context.Context, progress func(float64)) (any, error)

// Manager tracks asynchronous jobs. Terminal states are sticky: once a
// job completes or fails, nothing moves it again.
type Manager struct {
	mu   sync.Mutex
	jobs map[string]*entry

	sem       *semaphore.Weighted
	retention time.Duration
	logger    *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type entry struct {
	job    models.Job
	cancel context.CancelFunc
}

// NewManager creates a job manager and starts its cleanup loop.
func NewManager(logger *zap.Logger) *Manager {
	m := &Manager{
		jobs:      make(map[string]*entry),
		sem:       semaphore.NewWeighted(defaultMaxWorkers),
		retention: defaultRetention,
		logger:    logger.Named("jobs"),
		stop:      make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Submit queues a job and returns it in pending state.
func (m *Manager) Submit(kind models.JobKind, run Runner) *models.Job {
	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{
		job: models.Job{
			ID:        uuid.NewString(),
			Kind:      kind,
			State:     models.JobPending,
			CreatedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}

	m.mu.Lock()
	m.jobs[e.job.ID] = e
	m.mu.Unlock()

	m.wg.Add(1)
	go m.execute(ctx, e.job.ID, run)

	job := e.job
	return &job
}

func (m *Manager) execute(ctx context.Context, id string, run Runner) {
	defer m.wg.Done()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		m.finish(id, nil, apperrors.Wrap(apperrors.KindCancelled, "job cancelled while queued", err))
		return
	}
	defer m.sem.Release(1)

	now := time.Now().UTC()
	m.update(id, func(j *models.Job) {
		j.State = models.JobRunning
		j.StartedAt = &now
	})

	result, err := run(ctx, func(p float64) {
		m.update(id, func(j *models.Job) {
			if p > j.Progress {
				j.Progress = p
			}
		})
	})
	if err == nil && ctx.Err() != nil {
		err = apperrors.Wrap(apperrors.KindCancelled, "job cancelled", ctx.Err())
	}
	m.finish(id, result, err)
}

// update applies fn under the lock unless the job is already terminal.
func (m *Manager) update(id string, fn func(*models.Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok || e.job.State.Terminal() {
		return
	}
	fn(&e.job)
}

func (m *Manager) finish(id string, result any, err error) {
	now := time.Now().UTC()
	m.update(id, func(j *models.Job) {
		j.CompletedAt = &now
		if err != nil {
			j.State = models.JobFailed
			j.Error = err.Error()
			return
		}
		j.State = models.JobCompleted
		j.Progress = 1.0
		j.Result = result
	})

	m.mu.Lock()
	state := ""
	if e, ok := m.jobs[id]; ok {
		state = string(e.job.State)
	}
	m.mu.Unlock()
	m.logger.Info("job finished", zap.String("id", id), zap.String("state", state))
}

// Get returns a copy of the job, or NotFound.
func (m *Manager) Get(id string) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.jobs[id]
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, "job "+id+" not found")
	}
	job := e.job
	return &job, nil
}

// List returns every tracked job, newest first.
func (m *Manager) List() []models.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		out = append(out, e.job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Cancel requests cancellation of a running or pending job. Cancelling a
// terminal job is a no-op and reports NotFound for unknown ids.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	e, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.KindNotFound, "job "+id+" not found")
	}
	e.cancel()
	return nil
}

// Cleanup drops terminal jobs older than the retention window. Returns
// how many were removed.
func (m *Manager) Cleanup() int {
	cutoff := time.Now().UTC().Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.jobs {
		if e.job.State.Terminal() && e.job.CompletedAt != nil && e.job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := m.Cleanup(); n > 0 {
				m.logger.Info("cleaned up expired jobs", zap.Int("removed", n))
			}
		case <-m.stop:
			return
		}
	}
}

// Shutdown stops the cleanup loop, cancels running jobs, and waits for
// workers to drain.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	for _, e := range m.jobs {
		e.cancel()
	}
	m.mu.Unlock()

	m.wg.Wait()
}
