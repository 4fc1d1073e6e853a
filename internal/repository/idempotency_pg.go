package repository

import (
	"context"
	"errors"
	"time"

	"github.com/GoPolymarket/neogate/internal/middleware"
	"github.com/GoPolymarket/neogate/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresIdempotencyStore struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewPostgresIdempotencyStore(db *gorm.DB, ttl time.Duration) *PostgresIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &PostgresIdempotencyStore{db: db, ttl: ttl}
}

func (s *PostgresIdempotencyStore) GetOrLock(ctx context.Context, key string) (*middleware.IdempotencyRecord, bool, error) {
	db := s.db.WithContext(ctx)
	now := time.Now().UTC()

	// expired rows make way for a new lock
	if err := db.Where("key = ? AND created_at < ?", key, now.Add(-s.ttl)).
		Delete(&model.IdempotencyEntry{}).Error; err != nil {
		return nil, false, err
	}

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.IdempotencyEntry{
		Key:        key,
		Processing: true,
		CreatedAt:  now,
	})
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return nil, false, nil
	}

	var entry model.IdempotencyEntry
	if err := db.Where("key = ?", key).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// unlocked between insert and read; caller may retry
			return &middleware.IdempotencyRecord{Processing: true, CreatedAt: now}, true, nil
		}
		return nil, false, err
	}
	return &middleware.IdempotencyRecord{
		Status:     entry.Status,
		Body:       entry.Body,
		CreatedAt:  entry.CreatedAt,
		Processing: entry.Processing,
	}, true, nil
}

func (s *PostgresIdempotencyStore) Save(ctx context.Context, key string, status int, body []byte) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&model.IdempotencyEntry{
			Key:        key,
			Status:     status,
			Body:       body,
			Processing: false,
			CreatedAt:  time.Now().UTC(),
		}).Error
}

func (s *PostgresIdempotencyStore) Unlock(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("key = ?", key).Delete(&model.IdempotencyEntry{}).Error
}
