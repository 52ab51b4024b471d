package models

import (
	"time"

	"hhfoundation/internal/domain"

	"gorm.io/gorm"
)

type User struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	UserCode        string         `gorm:"uniqueIndex;size:16;not null" json:"user_id"` // human-facing code, e.g. HH123456
	FullName        string         `gorm:"size:100;not null" json:"full_name"`
	Email           string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Phone           string         `gorm:"size:20" json:"phone"`
	PasswordHash    string         `gorm:"size:255" json:"-"`
	GoogleID        *string        `gorm:"uniqueIndex;size:255" json:"-"`
	Role            string         `gorm:"size:20;not null;default:'USER';index" json:"role"` // USER | ADMIN
	SponsorCode     string         `gorm:"size:16;index" json:"sponsor_id"`
	UplineCode      string         `gorm:"size:16;index" json:"upline_id"`
	Level           string         `gorm:"size:20;not null;default:'Star';index:idx_users_matching,priority:4" json:"level"`
	ReferralCount   int            `gorm:"not null;default:0" json:"referral_count"`
	TotalEarnings   int64          `gorm:"not null;default:0" json:"total_earnings"`
	TotalSent       int64          `gorm:"not null;default:0" json:"total_sent"`
	TotalReceived   int64          `gorm:"not null;default:0" json:"total_received"`
	IsActivated     bool           `gorm:"not null;default:false;index:idx_users_matching,priority:1" json:"is_activated"`
	IsBlocked       bool           `gorm:"not null;default:false;index:idx_users_matching,priority:2" json:"is_blocked"`
	IsReceivingHeld bool           `gorm:"not null;default:false;index:idx_users_matching,priority:3" json:"is_receiving_held"`
	ActivatedAt     *time.Time     `json:"activated_at"`
	FCMToken        string         `gorm:"size:512" json:"-"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	PaymentMethod *PaymentMethod `gorm:"foreignKey:UserID" json:"payment_method,omitempty"`
}

func (u *User) IsAdmin() bool { return u.Role == domain.RoleAdmin }

// CanSend reports whether the user may be matched as a sender.
func (u *User) CanSend() bool { return u.IsActivated && !u.IsBlocked }

// CanReceive reports whether the user may be assigned as a receiver. Staff
// accounts never receive help.
func (u *User) CanReceive() bool {
	return u.IsActivated && !u.IsBlocked && !u.IsReceivingHeld && !u.IsAdmin()
}

// PublicProfile is what a counterparty sees.
type PublicProfile struct {
	ID            uint           `json:"id"`
	UserCode      string         `json:"user_id"`
	FullName      string         `json:"full_name"`
	Phone         string         `json:"phone"`
	Level         string         `json:"level"`
	PaymentMethod *PaymentMethod `json:"payment_method,omitempty"`
}

func (u *User) Public() PublicProfile {
	return PublicProfile{
		ID:            u.ID,
		UserCode:      u.UserCode,
		FullName:      u.FullName,
		Phone:         u.Phone,
		Level:         u.Level,
		PaymentMethod: u.PaymentMethod,
	}
}
