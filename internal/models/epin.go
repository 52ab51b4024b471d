package models

import (
	"time"

	"gorm.io/gorm"
)

// Epin is a one-time activation code. Status only moves forward:
// UNUSED -> USED or UNUSED -> TRANSFERRED.
type Epin struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Code          string         `gorm:"uniqueIndex;size:8;not null" json:"epin"`
	Status        string         `gorm:"size:20;not null;index" json:"status"`
	OwnerID       *uint          `gorm:"index" json:"assigned_to"`
	ParentID      *uint          `gorm:"index" json:"parent_id,omitempty"` // source pin when issued by a transfer
	RequestID     *uint          `gorm:"index" json:"request_id,omitempty"`
	UsedByID      *uint          `gorm:"index" json:"used_by,omitempty"`
	TransferredTo *uint          `json:"transferred_to,omitempty"`
	CreatedBy     uint           `gorm:"not null" json:"created_by"`
	UsedAt        *time.Time     `json:"used_at,omitempty"`
	TransferredAt *time.Time     `json:"transferred_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Epin) TableName() string { return "epins" }

// EpinRequest is a user's paid request for new E-PINs, reviewed by an admin.
type EpinRequest struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"not null;index" json:"user_id"`
	Quantity      int            `gorm:"not null" json:"quantity"`
	UTR           string         `gorm:"size:32;uniqueIndex;not null" json:"utr"`
	ScreenshotURL string         `gorm:"size:512" json:"screenshot_url"`
	Status        string         `gorm:"size:20;not null;index" json:"status"`
	RejectReason  string         `gorm:"size:255" json:"reject_reason,omitempty"`
	ReviewedBy    *uint          `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (EpinRequest) TableName() string { return "epin_requests" }
