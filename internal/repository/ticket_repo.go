package repository

import (
	"time"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"

	"gorm.io/gorm"
)

type TicketRepository struct {
	db *gorm.DB
}

func NewTicketRepository(db *gorm.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

func (r *TicketRepository) Create(t *models.Ticket) error {
	return r.db.Create(t).Error
}

func (r *TicketRepository) GetByID(id uint) (*models.Ticket, error) {
	var t models.Ticket
	err := r.db.Preload("User").Preload("Replies", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).First(&t, id).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TicketRepository) ListByUser(userID uint, limit, offset int) ([]models.Ticket, error) {
	var list []models.Ticket
	err := r.db.Where("user_id = ?", userID).Order("updated_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

// List returns all tickets with an optional status filter.
func (r *TicketRepository) List(status string, page, limit int) ([]models.Ticket, int64, error) {
	q := r.db.Model(&models.Ticket{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	q.Count(&total)
	var list []models.Ticket
	err := q.Preload("User").Order("updated_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// AddReply stores the reply and moves the ticket to status.
func (r *TicketRepository) AddReply(reply *models.TicketReply, status string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(reply).Error; err != nil {
			return err
		}
		return tx.Model(&models.Ticket{}).Where("id = ?", reply.TicketID).Update("status", status).Error
	})
}

func (r *TicketRepository) SetStatus(id uint, status string) error {
	updates := map[string]interface{}{"status": status, "closed_at": nil}
	if status == domain.TicketStatusClosed {
		updates["closed_at"] = time.Now()
	}
	res := r.db.Model(&models.Ticket{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *TicketRepository) CountByStatus(status string) (int64, error) {
	var n int64
	err := r.db.Model(&models.Ticket{}).Where("status = ?", status).Count(&n).Error
	return n, err
}
