// Package app builds the repositories, services and hubs shared by the HTTP
// server, the cron runner and the CLI commands.
package app

import (
	"context"

	"hhfoundation/config"
	"hhfoundation/internal/events"
	"hhfoundation/internal/repository"
	"hhfoundation/internal/service"
	"hhfoundation/internal/typing"
	"hhfoundation/internal/ws"
	"hhfoundation/pkg/cloudinary"
	"hhfoundation/pkg/mailer"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Repositories struct {
	Users         *repository.UserRepository
	Helps         *repository.HelpRepository
	Epins         *repository.EpinRepository
	Chats         *repository.ChatRepository
	Tickets       *repository.TicketRepository
	Notifications *repository.NotificationRepository
	Settings      *repository.SettingRepository
	Queue         *repository.QueueRepository
	Admin         *repository.AdminRepository
	Audit         *repository.AuditLogRepository
	Integrity     *repository.IntegrityRepository
}

type Services struct {
	Auth         *service.AuthService
	Users        *service.UserService
	Help         *service.HelpService
	Epin         *service.EpinService
	Chat         *service.ChatService
	Ticket       *service.TicketService
	Notification *service.NotificationService
	Admin        *service.AdminService
	Integrity    *service.IntegrityService
	FCM          *service.FCMService
}

type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Repos    Repositories
	Services Services
	ChatHub  *ws.ChatHub
	Cloud    cloudinary.Client
	Events   events.Publisher

	closers []func() error
}

// New wires every component. Optional infrastructure (Redis, Kafka, SendGrid,
// Firebase, Cloudinary) degrades to a local or no-op implementation when unset.
func New(ctx context.Context, cfg *config.Config, db *gorm.DB) (*App, error) {
	a := &App{Config: cfg, DB: db, ChatHub: ws.NewChatHub()}

	a.Repos = Repositories{
		Users:         repository.NewUserRepository(db),
		Helps:         repository.NewHelpRepository(db),
		Epins:         repository.NewEpinRepository(db),
		Chats:         repository.NewChatRepository(db),
		Tickets:       repository.NewTicketRepository(db),
		Notifications: repository.NewNotificationRepository(db),
		Settings:      repository.NewSettingRepository(db),
		Queue:         repository.NewQueueRepository(db),
		Admin:         repository.NewAdminRepository(db),
		Audit:         repository.NewAuditLogRepository(db),
		Integrity:     repository.NewIntegrityRepository(db),
	}

	var typingStore typing.Store = typing.NewMemoryStore(cfg.Chat.TypingTTL)
	if cfg.Redis.URL != "" {
		rs, err := typing.NewRedisStore(ctx, cfg.Redis.URL, cfg.Chat.TypingTTL)
		if err != nil {
			log.Warn().Err(err).Str("section", "redis").Msg("redis unavailable, typing state kept in memory")
		} else {
			typingStore = rs
			a.closers = append(a.closers, rs.Close)
		}
	}

	a.Events = events.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	a.closers = append(a.closers, a.Events.Close)

	cloud, err := cloudinary.NewClientFromParams(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret)
	if err != nil {
		return nil, err
	}
	a.Cloud = cloud

	mail := mailer.New(cfg.SendGrid.APIKey, cfg.SendGrid.FromName, cfg.SendGrid.From)

	fcm := service.NewFCMService(cfg.Firebase.ServiceAccountPath)
	switch {
	case fcm != nil:
		log.Info().Str("section", "fcm").Msg("push notifications enabled")
	case cfg.Firebase.ServiceAccountPath != "":
		log.Warn().Str("section", "fcm").Msg("push notifications disabled: failed to init (check service account file)")
	default:
		log.Info().Str("section", "fcm").Msg("push notifications disabled: set HH_FIREBASE_SERVICE_ACCOUNT_PATH to enable")
	}

	r := a.Repos
	notif := service.NewNotificationService(r.Notifications, r.Users, fcm)
	notif.SetLive(a.ChatHub)

	var topics service.TopicSubscriber
	if fcm != nil {
		topics = fcm
	}

	helpSvc := service.NewHelpService(service.HelpConfig{
		PaymentWindow:  cfg.Help.PaymentWindow,
		CandidateLimit: cfg.Help.CandidateLimit,
	}, r.Helps, r.Users, r.Settings, r.Tickets, notif, a.Events)

	a.Services = Services{
		Auth:         service.NewAuthService(cfg, r.Users, r.Settings, notif),
		Users:        service.NewUserService(r.Users, r.Users, helpSvc, r.Epins, r.Chats, r.Notifications, topics),
		Help:         helpSvc,
		Epin:         service.NewEpinService(r.Epins, r.Users, notif),
		Chat:         service.NewChatService(r.Chats, r.Helps, r.Users, typingStore, notif, a.ChatHub, cfg.Chat.PageSize),
		Ticket:       service.NewTicketService(r.Tickets, r.Users, notif, mail),
		Notification: notif,
		Admin:        service.NewAdminService(r.Users, r.Queue, r.Settings, r.Audit, topics, notif),
		Integrity:    service.NewIntegrityService(r.Integrity),
		FCM:          fcm,
	}
	return a, nil
}

// Close releases external connections opened by New.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Str("section", "app").Msg("close failed")
		}
	}
}
