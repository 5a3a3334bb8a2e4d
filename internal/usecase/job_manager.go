package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PriceFlow/internal/domain/models"
	drepo "PriceFlow/internal/domain/repository"
	"PriceFlow/pkg/cache"
	applogger "PriceFlow/pkg/logger"
)

// JobManager starts and tracks polling jobs submitted through the API.
// A redis lock per job id keeps two instances from polling the same
// job when the service runs with more than one replica.
type JobManager struct {
	jobs      drepo.JobStore
	archive   drepo.RawArchive
	pub       drepo.Publisher
	providers map[string]drepo.Provider
	locks     cache.Service
	metrics   drepo.Metrics
	log       *applogger.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewJobManager creates a job manager over the registered providers.
func NewJobManager(
	jobs drepo.JobStore,
	archive drepo.RawArchive,
	pub drepo.Publisher,
	providers map[string]drepo.Provider,
	locks cache.Service,
	metrics drepo.Metrics,
	log *applogger.Logger,
) *JobManager {
	return &JobManager{
		jobs:      jobs,
		archive:   archive,
		pub:       pub,
		providers: providers,
		locks:     locks,
		metrics:   metrics,
		log:       log,
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Submit validates the request, persists the job as accepted and
// starts polling in the background.
func (m *JobManager) Submit(ctx context.Context, req *models.PollRequest) (*models.PollJob, error) {
	provider, ok := m.providers[req.Provider]
	if !ok {
		return nil, &models.ValidationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", req.Provider)}
	}

	job := &models.PollJob{
		Symbols:  models.StringList(req.Symbols),
		Interval: time.Duration(req.Interval) * time.Second,
		Provider: req.Provider,
		Status:   models.JobAccepted,
	}
	if err := m.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	m.start(job, provider)
	return job, nil
}

// Job returns the stored job by id.
func (m *JobManager) Job(ctx context.Context, id string) (*models.PollJob, error) {
	return m.jobs.Job(ctx, id)
}

func (m *JobManager) start(job *models.PollJob, provider drepo.Provider) {
	ctx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.cancels[job.ID] = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.cancels, job.ID)
			m.mu.Unlock()
		}()
		m.run(ctx, job, provider)
	}()
}

func (m *JobManager) run(ctx context.Context, job *models.PollJob, provider drepo.Provider) {
	if m.locks != nil {
		key := "job:" + job.ID
		locked, err := m.locks.TryLock(ctx, key, job.Interval*2)
		if err != nil || !locked {
			m.log.Warn("job lock not acquired, another instance owns it",
				applogger.String("job_id", job.ID),
			)
			return
		}
		defer func() { _ = m.locks.Unlock(context.Background(), key) }()

		// keep the lock ahead of its TTL for as long as the job runs,
		// otherwise a long-lived job loses it after two intervals and
		// another replica starts double-polling
		go func() {
			ticker := time.NewTicker(job.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := m.locks.Expire(ctx, key, job.Interval*2); err != nil {
						m.log.Warn("job lock refresh failed",
							applogger.String("job_id", job.ID),
							applogger.Error(err),
						)
					}
				}
			}
		}()
	}

	if err := m.jobs.UpdateJobStatus(ctx, job.ID, models.JobRunning); err != nil {
		m.log.Error("job status update failed", applogger.String("job_id", job.ID), applogger.Error(err))
		return
	}
	m.log.Info("polling job started",
		applogger.String("job_id", job.ID),
		applogger.Strings("symbols", job.Symbols),
		applogger.String("provider", job.Provider),
	)

	poller := NewPoller(provider, m.archive, m.pub, m.metrics, m.log, job.Symbols, job.Interval, 0)
	poller.Run(ctx)

	// job ends only when the manager shuts down or Cancel is called
	status := models.JobCompleted
	if err := m.jobs.UpdateJobStatus(context.Background(), job.ID, status); err != nil {
		m.log.Error("job status update failed", applogger.String("job_id", job.ID), applogger.Error(err))
	}
	m.log.Info("polling job stopped", applogger.String("job_id", job.ID))
}

// Cancel stops a running job.
func (m *JobManager) Cancel(id string) bool {
	m.mu.Lock()
	cancel, ok := m.cancels[id]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Shutdown stops every running job and waits for them to finish.
func (m *JobManager) Shutdown() {
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
