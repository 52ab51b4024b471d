package repository

import (
	"context"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"

	"gorm.io/gorm"
)

type SlotUsage struct {
	ReceiverID uint   `json:"receiver_id"`
	Level      string `json:"level"`
	Used       int    `json:"used"`
}

type SenderActiveCount struct {
	SenderID uint `json:"sender_id"`
	Active   int  `json:"active"`
}

type MirrorMismatch struct {
	SendHelpID    uint   `json:"send_help_id"`
	SendStatus    string `json:"send_status"`
	ReceiveStatus string `json:"receive_status"` // empty when the mirror is missing
}

type TotalsMismatch struct {
	UserID        uint  `json:"user_id"`
	TotalSent     int64 `json:"total_sent"`
	LedgerSent    int64 `json:"ledger_sent"`
	TotalReceived int64 `json:"total_received"`
	LedgerRecv    int64 `json:"ledger_received"`
}

// IntegrityRepository runs read-only consistency queries over help data.
type IntegrityRepository struct {
	db *gorm.DB
}

func NewIntegrityRepository(db *gorm.DB) *IntegrityRepository {
	return &IntegrityRepository{db: db}
}

// SlotUsage returns slot-holding counts per receiver and level.
func (r *IntegrityRepository) SlotUsage(ctx context.Context) ([]SlotUsage, error) {
	var out []SlotUsage
	err := r.db.WithContext(ctx).Model(&models.SendHelp{}).
		Select("receiver_id, level, COUNT(*) AS used").
		Where("status IN ?", domain.SlotHoldingStatuses).
		Group("receiver_id, level").
		Scan(&out).Error
	return out, err
}

// SendersWithMultipleActive returns senders holding more than one active help.
func (r *IntegrityRepository) SendersWithMultipleActive(ctx context.Context) ([]SenderActiveCount, error) {
	var out []SenderActiveCount
	err := r.db.WithContext(ctx).Model(&models.SendHelp{}).
		Select("sender_id, COUNT(*) AS active").
		Where("status IN ?", domain.ActiveHelpStatuses).
		Group("sender_id").
		Having("COUNT(*) > 1").
		Scan(&out).Error
	return out, err
}

// MirrorMismatches returns send helps whose receive mirror is missing or has another status.
func (r *IntegrityRepository) MirrorMismatches(ctx context.Context) ([]MirrorMismatch, error) {
	var out []MirrorMismatch
	err := r.db.WithContext(ctx).Table("send_helps AS sh").
		Select("sh.id AS send_help_id, sh.status AS send_status, COALESCE(rh.status, '') AS receive_status").
		Joins("LEFT JOIN receive_helps AS rh ON rh.send_help_id = sh.id AND rh.deleted_at IS NULL").
		Where("sh.deleted_at IS NULL").
		Where("rh.id IS NULL OR rh.status <> sh.status").
		Scan(&out).Error
	return out, err
}

// DuplicateMirrors returns send help ids with more than one receive record.
func (r *IntegrityRepository) DuplicateMirrors(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.ReceiveHelp{}).
		Group("send_help_id").
		Having("COUNT(*) > 1").
		Pluck("send_help_id", &ids).Error
	return ids, err
}

// TotalsMismatches returns users whose running totals disagree with the ledger.
func (r *IntegrityRepository) TotalsMismatches(ctx context.Context) ([]TotalsMismatch, error) {
	ledger := r.db.Model(&models.LedgerEntry{}).
		Select("user_id, "+
			"SUM(CASE WHEN type = ? THEN amount ELSE 0 END) AS sent, "+
			"SUM(CASE WHEN type = ? THEN amount ELSE 0 END) AS recv",
			domain.LedgerHelpSent, domain.LedgerHelpReceived).
		Group("user_id")
	var out []TotalsMismatch
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Select("users.id AS user_id, users.total_sent, COALESCE(l.sent, 0) AS ledger_sent, " +
			"users.total_received, COALESCE(l.recv, 0) AS ledger_recv").
		Joins("LEFT JOIN (?) AS l ON l.user_id = users.id", ledger).
		Where("users.total_sent <> COALESCE(l.sent, 0) OR users.total_received <> COALESCE(l.recv, 0)").
		Scan(&out).Error
	return out, err
}
