package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"PriceFlow/internal/domain/models"
	drepo "PriceFlow/internal/domain/repository"
	"PriceFlow/pkg/cache"

	"github.com/shopspring/decimal"
)

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.PollJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*models.PollJob)}
}

func (s *memJobStore) CreateJob(_ context.Context, job *models.PollJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memJobStore) UpdateJobStatus(_ context.Context, id string, status models.PollJobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return models.ErrNotFound
	}
	job.Status = status
	return nil
}

func (s *memJobStore) Job(_ context.Context, id string) (*models.PollJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (s *memJobStore) status(id string) models.PollJobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		return job.Status
	}
	return ""
}

func testJobManager(t *testing.T, locks cache.Service) (*JobManager, *memJobStore) {
	t.Helper()
	store := newMemJobStore()
	jm := NewJobManager(store, &memArchive{}, &lockedPublisher{}, map[string]drepo.Provider{}, locks, nopMetrics{}, testLogger(t))
	return jm, store
}

func fastJob(id string, interval time.Duration) *models.PollJob {
	return &models.PollJob{
		ID:       id,
		Symbols:  models.StringList{"AAPL"},
		Interval: interval,
		Provider: "fake",
		Status:   models.JobAccepted,
	}
}

func TestJobLockIsRefreshedWhileRunning(t *testing.T) {
	locks := cache.NewMemoryCache()
	defer locks.Close()
	jm, store := testJobManager(t, locks)

	provider := &fakeProvider{quotes: map[string]*models.Quote{
		"AAPL": {Symbol: "AAPL", Price: decimal.NewFromFloat(187.23), Timestamp: time.Now().UTC(), Provider: "fake"},
	}}
	job := fastJob("j1", 25*time.Millisecond)
	_ = store.CreateJob(context.Background(), job)

	jm.start(job, provider)
	defer jm.Shutdown()

	// past two intervals the unrefreshed TTL would have lapsed; the
	// lock must still be held so a second replica cannot take it
	time.Sleep(90 * time.Millisecond)
	locked, err := locks.TryLock(context.Background(), "job:j1", time.Minute)
	if err != nil {
		t.Fatalf("trylock: %v", err)
	}
	if locked {
		t.Fatal("lock was lost while the job was still running")
	}

	jm.Shutdown()
	locked, err = locks.TryLock(context.Background(), "job:j1", time.Minute)
	if err != nil || !locked {
		t.Fatalf("lock not released after shutdown: %v, %v", locked, err)
	}
}

func TestJobSkippedWhenAnotherReplicaHoldsLock(t *testing.T) {
	locks := cache.NewMemoryCache()
	defer locks.Close()
	jm, store := testJobManager(t, locks)

	if ok, _ := locks.TryLock(context.Background(), "job:j2", time.Minute); !ok {
		t.Fatal("pre-lock failed")
	}

	provider := &fakeProvider{quotes: map[string]*models.Quote{}}
	job := fastJob("j2", 25*time.Millisecond)
	_ = store.CreateJob(context.Background(), job)

	jm.start(job, provider)
	jm.Shutdown()

	if got := store.status("j2"); got != models.JobAccepted {
		t.Fatalf("status = %q, a locked-out replica must not run the job", got)
	}
}
