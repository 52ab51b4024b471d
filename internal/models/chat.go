package models

import (
	"time"

	"gorm.io/gorm"
)

// ChatThread is one conversation per unordered pair of users. UserLowID < UserHighID.
type ChatThread struct {
	ID            uint           `gorm:"primaryKey" json:"-"`
	ThreadKey     string         `gorm:"uniqueIndex;size:64;not null" json:"chat_id"`
	UserLowID     uint           `gorm:"not null;index" json:"user_low_id"`
	UserHighID    uint           `gorm:"not null;index" json:"user_high_id"`
	UnreadLow     int            `gorm:"not null;default:0" json:"unread_low"`
	UnreadHigh    int            `gorm:"not null;default:0" json:"unread_high"`
	LastMessage   string         `gorm:"size:255" json:"last_message"`
	LastMessageAt *time.Time     `gorm:"index" json:"last_message_at"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ChatThread) TableName() string { return "chat_threads" }

// Peer returns the other participant's id.
func (t *ChatThread) Peer(userID uint) uint {
	if userID == t.UserLowID {
		return t.UserHighID
	}
	return t.UserLowID
}

// UnreadFor returns the unread count of userID.
func (t *ChatThread) UnreadFor(userID uint) int {
	if userID == t.UserLowID {
		return t.UnreadLow
	}
	return t.UnreadHigh
}

type ChatMessage struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	ThreadID  uint           `gorm:"not null;index" json:"-"`
	SenderID  uint           `gorm:"not null;index" json:"sender_id"`
	Content   string         `gorm:"type:text" json:"content"`
	MediaURL  string         `gorm:"size:512" json:"media_url,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ChatMessage) TableName() string { return "chat_messages" }
