package models

import (
	"time"

	"hhfoundation/internal/domain"

	"gorm.io/gorm"
)

// SendHelp is one sender -> receiver payment obligation at a level.
// ActiveKey is "sender:<id>" while the record is active and NULL once it is
// terminal, so the unique index allows a single active record per sender.
type SendHelp struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	SenderID      uint           `gorm:"not null;index" json:"sender_id"`
	ReceiverID    uint           `gorm:"not null;index:idx_send_help_slots,priority:1" json:"receiver_id"`
	Level         string         `gorm:"size:20;not null;index:idx_send_help_slots,priority:2" json:"level"`
	Amount        int64          `gorm:"not null" json:"amount"`
	Status        string         `gorm:"size:20;not null;index:idx_send_help_slots,priority:3" json:"status"`
	ActiveKey     *string        `gorm:"size:40;uniqueIndex" json:"-"`
	UTR           *string        `gorm:"size:32;uniqueIndex" json:"utr"`
	ScreenshotURL string         `gorm:"size:512" json:"screenshot_url"`
	DisputeReason string         `gorm:"size:500" json:"dispute_reason,omitempty"`
	ManualQueueID *uint          `json:"manual_queue_id,omitempty"`
	AssignedAt    time.Time      `gorm:"not null;index" json:"assigned_at"`
	SubmittedAt   *time.Time     `json:"submitted_at"`
	ConfirmedAt   *time.Time     `json:"confirmed_at"`
	ClosedAt      *time.Time     `json:"closed_at"` // set for EXPIRED / CANCELLED
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	Sender   *User `gorm:"foreignKey:SenderID" json:"-"`
	Receiver *User `gorm:"foreignKey:ReceiverID" json:"-"`
}

func (SendHelp) TableName() string { return "send_helps" }

func (s *SendHelp) IsActive() bool {
	for _, st := range domain.ActiveHelpStatuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

// SenderActiveKey is the ActiveKey value for an active record of senderID.
func SenderActiveKey(senderID uint) *string {
	k := "sender:" + uintToString(senderID)
	return &k
}

// ReceiveHelp mirrors a SendHelp on the receiver side. Exactly one per SendHelp.
type ReceiveHelp struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	SendHelpID  uint           `gorm:"uniqueIndex;not null" json:"send_help_id"`
	ReceiverID  uint           `gorm:"not null;index" json:"receiver_id"`
	SenderID    uint           `gorm:"not null;index" json:"sender_id"`
	Level       string         `gorm:"size:20;not null" json:"level"`
	Amount      int64          `gorm:"not null" json:"amount"`
	Status      string         `gorm:"size:20;not null;index" json:"status"`
	ConfirmedAt *time.Time     `json:"confirmed_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	SendHelp *SendHelp `gorm:"foreignKey:SendHelpID" json:"send_help,omitempty"`
	Sender   *User     `gorm:"foreignKey:SenderID" json:"-"`
}

func (ReceiveHelp) TableName() string { return "receive_helps" }

// ManualReceiverEntry puts a user ahead of the automatic candidate ranking for a level.
type ManualReceiverEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_manual_queue_user_level,unique" json:"user_id"`
	Level     string    `gorm:"size:20;not null;index:idx_manual_queue_user_level,unique" json:"level"`
	AddedBy   uint      `gorm:"not null" json:"added_by"`
	Note      string    `gorm:"size:255" json:"note"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (ManualReceiverEntry) TableName() string { return "manual_receiver_queue" }
