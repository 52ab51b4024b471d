package models

import "time"

// SystemSetting is one admin-tunable value, stored as text and parsed by the
// settings repository. Rows are upserted by key and never soft-deleted.
type SystemSetting struct {
	Key       string    `gorm:"primaryKey;size:100" json:"key"`
	Value     string    `gorm:"size:255;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemSetting) TableName() string { return "system_settings" }
