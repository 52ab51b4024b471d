package models

import (
	"time"

	"hhfoundation/internal/domain"

	"gorm.io/gorm"
)

type Ticket struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index" json:"user_id"`
	Subject   string         `gorm:"size:200;not null" json:"subject"`
	Message   string         `gorm:"type:text;not null" json:"message"`
	Category  string         `gorm:"size:20;not null;index" json:"category"`
	Status    string         `gorm:"size:20;not null;index" json:"status"` // OPEN, ANSWERED, CLOSED
	HelpID    *uint          `gorm:"index" json:"send_help_id,omitempty"`
	ClosedAt  *time.Time     `json:"closed_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	User    *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Replies []TicketReply `gorm:"foreignKey:TicketID" json:"replies,omitempty"`
}

func (Ticket) TableName() string { return "tickets" }

func (t *Ticket) IsClosed() bool { return t.Status == domain.TicketStatusClosed }

type TicketReply struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TicketID  uint      `gorm:"not null;index" json:"ticket_id"`
	AuthorID  uint      `gorm:"not null" json:"author_id"`
	IsStaff   bool      `gorm:"not null;default:false" json:"is_staff"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (TicketReply) TableName() string { return "ticket_replies" }
