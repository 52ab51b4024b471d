package models

import "time"

// LedgerEntry records a settled help movement for a user (HELP_SENT or HELP_RECEIVED).
type LedgerEntry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	SendHelpID uint      `gorm:"not null;index:idx_ledger_help_type,unique" json:"send_help_id"`
	Type       string    `gorm:"size:20;not null;index:idx_ledger_help_type,unique" json:"type"`
	Amount     int64     `gorm:"not null" json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }
