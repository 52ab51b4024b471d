package repository

import (
	"strconv"
	"sync"
	"time"

	"hhfoundation/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettingRepository serves global settings from a snapshot of the table that is
// reloaded after ttl or on the next read after a Set.
type SettingRepository struct {
	db  *gorm.DB
	ttl time.Duration

	mu       sync.Mutex
	snapshot map[string]string
	loadedAt time.Time
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db, ttl: 30 * time.Second}
}

func (r *SettingRepository) values() (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapshot != nil && time.Since(r.loadedAt) < r.ttl {
		return r.snapshot, nil
	}
	list, err := r.GetAll()
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(list))
	for _, s := range list {
		m[s.Key] = s.Value
	}
	r.snapshot, r.loadedAt = m, time.Now()
	return m, nil
}

func (r *SettingRepository) invalidate() {
	r.mu.Lock()
	r.snapshot = nil
	r.mu.Unlock()
}

// Get returns gorm.ErrRecordNotFound for a key that was never set.
func (r *SettingRepository) Get(key string) (string, error) {
	m, err := r.values()
	if err != nil {
		return "", err
	}
	v, ok := m[key]
	if !ok {
		return "", gorm.ErrRecordNotFound
	}
	return v, nil
}

func (r *SettingRepository) Set(key, value string) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.SystemSetting{Key: key, Value: value}).Error
	r.invalidate()
	return err
}

func (r *SettingRepository) GetAll() ([]models.SystemSetting, error) {
	var list []models.SystemSetting
	err := r.db.Order("`key` ASC").Find(&list).Error
	return list, err
}

// SeedDefaults inserts the keys that are missing and leaves existing values alone.
func (r *SettingRepository) SeedDefaults(defaults map[string]string) error {
	if len(defaults) == 0 {
		return nil
	}
	rows := make([]models.SystemSetting, 0, len(defaults))
	for k, v := range defaults {
		rows = append(rows, models.SystemSetting{Key: k, Value: v})
	}
	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	r.invalidate()
	return err
}

// Bool returns the setting parsed as a boolean, or def when missing or malformed.
func (r *SettingRepository) Bool(key string, def bool) bool {
	v, err := r.Get(key)
	if err != nil {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Int64 returns the setting parsed as an integer, or def when missing or malformed.
func (r *SettingRepository) Int64(key string, def int64) int64 {
	v, err := r.Get(key)
	if err != nil {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
