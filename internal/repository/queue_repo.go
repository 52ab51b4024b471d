package repository

import (
	"context"
	"errors"

	"hhfoundation/internal/models"

	"gorm.io/gorm"
)

var ErrAlreadyQueued = errors.New("user already queued for this level")

// QueueRepository manages the manual receiver queue.
type QueueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

func (r *QueueRepository) Add(ctx context.Context, e *models.ManualReceiverEntry) error {
	err := r.db.WithContext(ctx).Create(e).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAlreadyQueued
	}
	return err
}

func (r *QueueRepository) List(ctx context.Context, level string) ([]models.ManualReceiverEntry, error) {
	q := r.db.WithContext(ctx).Preload("User")
	if level != "" {
		q = q.Where("level = ?", level)
	}
	var list []models.ManualReceiverEntry
	err := q.Order("created_at ASC, id ASC").Find(&list).Error
	return list, err
}

func (r *QueueRepository) Remove(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.ManualReceiverEntry{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
