package repository

import (
	"time"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"

	"gorm.io/gorm"
)

type DashboardStats struct {
	TotalUsers       int64 `json:"total_users"`
	ActiveUsers      int64 `json:"active_users"`
	BlockedUsers     int64 `json:"blocked_users"`
	PendingHelps     int64 `json:"pending_helps"`
	SubmittedHelps   int64 `json:"submitted_helps"`
	DisputedHelps    int64 `json:"disputed_helps"`
	ConfirmedHelps   int64 `json:"confirmed_helps"`
	HelpVolume       int64 `json:"help_volume"`
	UnusedEpins      int64 `json:"unused_epins"`
	PendingEpinReqs  int64 `json:"pending_epin_requests"`
	OpenTickets      int64 `json:"open_tickets"`
	ManualQueueUsers int64 `json:"manual_queue_users"`
}

type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

type VolumePoint struct {
	Date   string `json:"date"`
	Amount int64  `json:"amount"`
}

type AdminRepository struct {
	db *gorm.DB
}

func NewAdminRepository(db *gorm.DB) *AdminRepository {
	return &AdminRepository{db: db}
}

func (r *AdminRepository) GetDashboardStats() (*DashboardStats, error) {
	var s DashboardStats
	if err := r.db.Model(&models.User{}).Count(&s.TotalUsers).Error; err != nil {
		return nil, err
	}
	r.db.Model(&models.User{}).Where("is_activated = ? AND is_blocked = ?", true, false).Count(&s.ActiveUsers)
	r.db.Model(&models.User{}).Where("is_blocked = ?", true).Count(&s.BlockedUsers)
	r.db.Model(&models.SendHelp{}).Where("status = ?", domain.HelpStatusPending).Count(&s.PendingHelps)
	r.db.Model(&models.SendHelp{}).Where("status = ?", domain.HelpStatusPaymentSubmitted).Count(&s.SubmittedHelps)
	r.db.Model(&models.SendHelp{}).Where("status = ?", domain.HelpStatusDisputed).Count(&s.DisputedHelps)
	r.db.Model(&models.SendHelp{}).Where("status = ?", domain.HelpStatusConfirmed).Count(&s.ConfirmedHelps)

	var vol struct{ Total int64 }
	r.db.Model(&models.SendHelp{}).Select("COALESCE(SUM(amount), 0) as total").Where("status = ?", domain.HelpStatusConfirmed).Scan(&vol)
	s.HelpVolume = vol.Total

	r.db.Model(&models.Epin{}).Where("status = ?", domain.EpinStatusUnused).Count(&s.UnusedEpins)
	r.db.Model(&models.EpinRequest{}).Where("status = ?", domain.EpinRequestPending).Count(&s.PendingEpinReqs)
	r.db.Model(&models.Ticket{}).Where("status = ?", domain.TicketStatusOpen).Count(&s.OpenTickets)
	r.db.Model(&models.ManualReceiverEntry{}).Count(&s.ManualQueueUsers)
	return &s, nil
}

// UserSignupsByDay returns daily signup counts for the last N days.
func (r *AdminRepository) UserSignupsByDay(days int) ([]TimeSeriesPoint, error) {
	since := time.Now().AddDate(0, 0, -days)
	var points []TimeSeriesPoint
	err := r.db.Model(&models.User{}).
		Select("DATE(created_at) as date, COUNT(*) as count").
		Where("created_at >= ?", since).
		Group("DATE(created_at)").
		Order("date ASC").
		Scan(&points).Error
	return points, err
}

// HelpVolumeByDay returns daily confirmed help volume for the last N days.
func (r *AdminRepository) HelpVolumeByDay(days int) ([]VolumePoint, error) {
	since := time.Now().AddDate(0, 0, -days)
	var points []VolumePoint
	err := r.db.Model(&models.SendHelp{}).
		Select("DATE(confirmed_at) as date, COALESCE(SUM(amount), 0) as amount").
		Where("status = ? AND confirmed_at >= ?", domain.HelpStatusConfirmed, since).
		Group("DATE(confirmed_at)").
		Order("date ASC").
		Scan(&points).Error
	return points, err
}

// ListAuditLogs returns admin actions, newest first, optionally for one action.
func (r *AdminRepository) ListAuditLogs(action string, page, limit int) ([]models.AuditLog, int64, error) {
	q := r.db.Model(&models.AuditLog{})
	if action != "" {
		q = q.Where("action = ?", action)
	}
	var total int64
	q.Count(&total)
	var list []models.AuditLog
	err := q.Order("id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Create(log *models.AuditLog) error {
	return r.db.Create(log).Error
}
