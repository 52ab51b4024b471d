package repository

import (
	"context"
	"time"

	"hhfoundation/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// GetOrCreateThread returns the thread for key, creating it on first use.
func (r *ChatRepository) GetOrCreateThread(ctx context.Context, key string, low, high uint) (*models.ChatThread, error) {
	th := models.ChatThread{ThreadKey: key, UserLowID: low, UserHighID: high}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&th).Error; err != nil {
		return nil, err
	}
	return r.GetThread(ctx, key)
}

func (r *ChatRepository) GetThread(ctx context.Context, key string) (*models.ChatThread, error) {
	var th models.ChatThread
	if err := r.db.WithContext(ctx).Where("thread_key = ?", key).First(&th).Error; err != nil {
		return nil, err
	}
	return &th, nil
}

// AddMessage stores msg and bumps the recipient's unread counter in one transaction.
func (r *ChatRepository) AddMessage(ctx context.Context, th *models.ChatThread, msg *models.ChatMessage, preview string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg.ThreadID = th.ID
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		unread := "unread_high"
		if th.Peer(msg.SenderID) == th.UserLowID {
			unread = "unread_low"
		}
		now := time.Now()
		return tx.Model(&models.ChatThread{}).Where("id = ?", th.ID).Updates(map[string]interface{}{
			unread:            gorm.Expr(unread + " + 1"),
			"last_message":    preview,
			"last_message_at": now,
		}).Error
	})
}

// Messages returns up to limit messages older than beforeID (0 = newest), newest first.
func (r *ChatRepository) Messages(ctx context.Context, threadID, beforeID uint, limit int) ([]models.ChatMessage, error) {
	q := r.db.WithContext(ctx).Where("thread_id = ?", threadID)
	if beforeID != 0 {
		q = q.Where("id < ?", beforeID)
	}
	var list []models.ChatMessage
	err := q.Order("id DESC").Limit(limit).Find(&list).Error
	return list, err
}

// MarkRead resets userID's unread counter on the thread.
func (r *ChatRepository) MarkRead(ctx context.Context, th *models.ChatThread, userID uint) error {
	col := "unread_high"
	if userID == th.UserLowID {
		col = "unread_low"
	}
	return r.db.WithContext(ctx).Model(&models.ChatThread{}).Where("id = ?", th.ID).Update(col, 0).Error
}

// ThreadsFor lists userID's threads, most recent activity first.
func (r *ChatRepository) ThreadsFor(ctx context.Context, userID uint, limit, offset int) ([]models.ChatThread, error) {
	var list []models.ChatThread
	err := r.db.WithContext(ctx).
		Where("user_low_id = ? OR user_high_id = ?", userID, userID).
		Order("last_message_at IS NULL, last_message_at DESC, id DESC").
		Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

// UnreadTotal sums userID's unread counters across threads.
func (r *ChatRepository) UnreadTotal(ctx context.Context, userID uint) (int64, error) {
	var out struct{ Total int64 }
	err := r.db.WithContext(ctx).Model(&models.ChatThread{}).
		Select("COALESCE(SUM(CASE WHEN user_low_id = ? THEN unread_low ELSE unread_high END), 0) AS total", userID).
		Where("user_low_id = ? OR user_high_id = ?", userID, userID).
		Scan(&out).Error
	return out.Total, err
}
