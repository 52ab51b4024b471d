package models

import "time"

// AuditLog records a privileged action. UserID is the actor; Resource and
// ResourceID name the target row, e.g. "user"/"42".
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     *uint     `gorm:"index" json:"user_id"`
	Action     string    `gorm:"size:100;not null;index:idx_audit_action_time,priority:1" json:"action"`
	Resource   string    `gorm:"size:50;index:idx_audit_target,priority:1" json:"resource"`
	ResourceID string    `gorm:"size:50;index:idx_audit_target,priority:2" json:"resource_id"`
	IP         string    `gorm:"size:45" json:"ip"`
	UserAgent  string    `gorm:"size:512" json:"user_agent"`
	Metadata   string    `gorm:"type:text" json:"metadata"`
	CreatedAt  time.Time `gorm:"index:idx_audit_action_time,priority:2" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
