package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PriceFlow/internal/domain/models"
	"PriceFlow/internal/domain/repository"
	pkgpg "PriceFlow/pkg/postgres"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostgresStore implements AggregateStore and JobStore on PostgreSQL.
// Duplicate suppression and the moving-average upsert both lean on the
// database so that redeliveries and concurrent members converge to the
// same rows.
type PostgresStore struct {
	client *pkgpg.Client
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(client *pkgpg.Client) *PostgresStore {
	return &PostgresStore{client: client}
}

// Init migrates the schema. Idempotent.
func (s *PostgresStore) Init(ctx context.Context) error {
	db := s.client.DB().WithContext(ctx)
	if err := db.AutoMigrate(&models.PricePoint{}, &models.MovingAverageRecord{}, &models.PollJob{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// RecordPrice inserts a sample unless its (symbol, event_id) identity
// already exists. Returns false on redelivery.
func (s *PostgresStore) RecordPrice(ctx context.Context, p *models.PricePoint) (bool, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	res := s.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(p)
	if res.Error != nil {
		return false, fmt.Errorf("record price %s/%s: %w", p.Symbol, p.EventID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RecentPrices returns up to limit samples for symbol, newest first.
// Equal timestamps are broken by insertion order so replays observe a
// stable window.
func (s *PostgresStore) RecentPrices(ctx context.Context, symbol string, limit int) ([]*models.PricePoint, error) {
	var points []*models.PricePoint
	err := s.client.DB().WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("timestamp DESC, seq DESC").
		Limit(limit).
		Find(&points).Error
	if err != nil {
		return nil, fmt.Errorf("recent prices %s: %w", symbol, err)
	}
	return points, nil
}

// UpsertMovingAverage writes the aggregate row for a symbol. Each
// symbol has a single writer (its partition owner) and the row is
// always recomputed from the stored samples, so the latest write is
// the latest truth even when event timestamps arrive out of order;
// replays recompute the same window and converge on their own.
func (s *PostgresStore) UpsertMovingAverage(ctx context.Context, rec *models.MovingAverageRecord) error {
	err := s.client.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "symbol"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"window_size":   rec.WindowSize,
				"average":       rec.Average,
				"sample_count":  rec.SampleCount,
				"last_updated":  rec.LastUpdated,
				"last_event_id": rec.LastEventID,
			}),
		}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("upsert moving average %s: %w", rec.Symbol, err)
	}
	return nil
}

// MovingAverage returns the aggregate row for a symbol.
func (s *PostgresStore) MovingAverage(ctx context.Context, symbol string) (*models.MovingAverageRecord, error) {
	var rec models.MovingAverageRecord
	err := s.client.DB().WithContext(ctx).
		Where("symbol = ?", symbol).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("moving average %s: %w", symbol, err)
	}
	return &rec, nil
}

// Health pings the connection pool.
func (s *PostgresStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.client.Close()
}

// CreateJob persists a new polling job.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.PollJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if err := s.client.DB().WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// UpdateJobStatus transitions a job's status.
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id string, status models.PollJobStatus) error {
	res := s.client.DB().WithContext(ctx).
		Model(&models.PollJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("update job %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// Job fetches one polling job.
func (s *PostgresStore) Job(ctx context.Context, id string) (*models.PollJob, error) {
	var job models.PollJob
	err := s.client.DB().WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	return &job, nil
}

var (
	_ repository.AggregateStore = (*PostgresStore)(nil)
	_ repository.JobStore       = (*PostgresStore)(nil)
)
