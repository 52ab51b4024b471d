package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hhfoundation/config"
	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error),
		TranslateError: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open mysql")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, pkgerrors.Wrap(err, "ping mysql")
	}
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.PaymentMethod{},
		&models.SendHelp{},
		&models.ReceiveHelp{},
		&models.ManualReceiverEntry{},
		&models.LedgerEntry{},
		&models.Epin{},
		&models.EpinRequest{},
		&models.ChatThread{},
		&models.ChatMessage{},
		&models.Ticket{},
		&models.TicketReply{},
		&models.Notification{},
		&models.Broadcast{},
		&models.SystemSetting{},
		&models.AuditLog{},
	)
}

// SeedAdmin creates the configured admin account if no user has that email yet.
func SeedAdmin(db *gorm.DB, cfg config.AdminConfig) error {
	email := strings.ToLower(strings.TrimSpace(cfg.Email))
	if email == "" || cfg.Password == "" {
		return nil
	}
	var existing models.User
	err := db.Where("email = ?", email).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := &models.User{
		UserCode:     domain.UserCodePrefix + "000001",
		FullName:     "Administrator",
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		Level:        domain.LevelStar,
		IsActivated:  true,
	}
	now := time.Now()
	admin.ActivatedAt = &now
	if err := db.Create(admin).Error; err != nil {
		return pkgerrors.Wrap(err, "create admin")
	}
	log.Info().Str("section", "seed").Str("email", email).Msg("admin account created")
	return nil
}

// DefaultSettings returns the global settings seeded on first start, including
// the per-level help amounts.
func DefaultSettings() map[string]string {
	out := make(map[string]string, len(domain.DefaultSettings)+len(domain.Levels))
	for k, v := range domain.DefaultSettings {
		out[k] = v
	}
	for _, l := range domain.Levels {
		out[domain.SettingHelpAmountPrefix+strings.ToLower(l)] = fmt.Sprint(domain.Amount(l))
	}
	return out
}
