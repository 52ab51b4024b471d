package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrUnknownSetting  = errors.New("unknown setting")
	ErrInvalidSetting  = errors.New("invalid setting value")
	ErrQueueNotFound   = errors.New("queue entry not found")
	ErrCannotEditAdmin = errors.New("admin accounts cannot be changed here")
)

type QueueStore interface {
	Add(ctx context.Context, e *models.ManualReceiverEntry) error
	List(ctx context.Context, level string) ([]models.ManualReceiverEntry, error)
	Remove(ctx context.Context, id uint) error
}

type SettingWriter interface {
	Set(key, value string) error
}

type AuditWriter interface {
	Create(l *models.AuditLog) error
}

// Actor identifies the admin performing an action, for the audit log.
type Actor struct {
	ID        uint
	IP        string
	UserAgent string
}

type AdminService struct {
	users    UserStore
	queue    QueueStore
	settings SettingWriter
	audit    AuditWriter
	topics   TopicSubscriber
	notifier Notifier
}

func NewAdminService(users UserStore, queue QueueStore, settings SettingWriter, audit AuditWriter, topics TopicSubscriber, notifier Notifier) *AdminService {
	return &AdminService{users: users, queue: queue, settings: settings, audit: audit, topics: topics, notifier: notifier}
}

// Record writes an audit entry. Failures are logged and never fail the action.
func (s *AdminService) Record(actor Actor, action, resource string, resourceID interface{}, meta map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var metaJSON string
	if meta != nil {
		b, _ := json.Marshal(meta)
		metaJSON = string(b)
	}
	id := actor.ID
	err := s.audit.Create(&models.AuditLog{
		UserID:     &id,
		Action:     action,
		Resource:   resource,
		ResourceID: fmt.Sprint(resourceID),
		IP:         actor.IP,
		UserAgent:  actor.UserAgent,
		Metadata:   metaJSON,
	})
	if err != nil {
		log.Error().Err(err).Str("section", "audit").Str("action", action).Msg("audit write failed")
	}
}

func (s *AdminService) target(ctx context.Context, userID uint) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if u.IsAdmin() {
		return nil, ErrCannotEditAdmin
	}
	return u, nil
}

func (s *AdminService) setFlag(ctx context.Context, actor Actor, userID uint, field string, value bool, action string) (*models.User, error) {
	if _, err := s.target(ctx, userID); err != nil {
		return nil, err
	}
	if err := s.users.UpdateFields(ctx, userID, map[string]interface{}{field: value}); err != nil {
		return nil, pkgerrors.Wrapf(err, "update %s", field)
	}
	s.Record(actor, action, "user", userID, map[string]interface{}{field: value})
	log.Info().Str("section", "admin").Uint("admin_id", actor.ID).Uint("user_id", userID).Str("field", field).Bool("value", value).Msg(action)
	return s.users.GetByID(ctx, userID)
}

func (s *AdminService) SetBlocked(ctx context.Context, actor Actor, userID uint, blocked bool) (*models.User, error) {
	action := "user.unblock"
	if blocked {
		action = "user.block"
	}
	return s.setFlag(ctx, actor, userID, "is_blocked", blocked, action)
}

// SetReceivingHeld pauses or resumes the user as a receiver without blocking them.
func (s *AdminService) SetReceivingHeld(ctx context.Context, actor Actor, userID uint, held bool) (*models.User, error) {
	action := "user.release"
	if held {
		action = "user.hold"
	}
	return s.setFlag(ctx, actor, userID, "is_receiving_held", held, action)
}

// Activate turns on an account without an E-PIN.
func (s *AdminService) Activate(ctx context.Context, actor Actor, userID uint) (*models.User, error) {
	u, err := s.target(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.IsActivated {
		return u, nil
	}
	if err := s.users.UpdateFields(ctx, userID, map[string]interface{}{"is_activated": true, "activated_at": time.Now()}); err != nil {
		return nil, pkgerrors.Wrap(err, "activate user")
	}
	s.Record(actor, "user.activate", "user", userID, nil)
	if s.notifier != nil {
		_ = s.notifier.Notify(userID, domain.NotifAccountActive, "Account activated",
			"Your account was activated by support.", nil)
	}
	return s.users.GetByID(ctx, userID)
}

// SetLevel moves the user to level and switches their device to the new level topic.
func (s *AdminService) SetLevel(ctx context.Context, actor Actor, userID uint, rawLevel string) (*models.User, error) {
	level, err := domain.ParseLevel(rawLevel)
	if err != nil {
		return nil, err
	}
	u, err := s.target(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.Level == level {
		return u, nil
	}
	if err := s.users.UpdateFields(ctx, userID, map[string]interface{}{"level": level}); err != nil {
		return nil, pkgerrors.Wrap(err, "update level")
	}
	if s.topics != nil && u.FCMToken != "" {
		if err := s.topics.Unsubscribe(ctx, u.FCMToken, u.Level); err != nil {
			log.Warn().Err(err).Str("section", "fcm").Uint("user_id", userID).Msg("topic unsubscribe failed")
		}
		if err := s.topics.Subscribe(ctx, u.FCMToken, level); err != nil {
			log.Warn().Err(err).Str("section", "fcm").Uint("user_id", userID).Msg("topic subscribe failed")
		}
	}
	s.Record(actor, "user.level", "user", userID, map[string]interface{}{"from": u.Level, "to": level})
	return s.users.GetByID(ctx, userID)
}

// QueueAdd puts the user with userCode at the back of the manual receiver queue for level.
// An empty level means the user's current level.
func (s *AdminService) QueueAdd(ctx context.Context, actor Actor, userCode, rawLevel, note string) (*models.ManualReceiverEntry, error) {
	u, err := s.users.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(userCode)))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	level := u.Level
	if strings.TrimSpace(rawLevel) != "" {
		if level, err = domain.ParseLevel(rawLevel); err != nil {
			return nil, err
		}
	}
	e := &models.ManualReceiverEntry{UserID: u.ID, Level: level, AddedBy: actor.ID, Note: strings.TrimSpace(note)}
	if err := s.queue.Add(ctx, e); err != nil {
		return nil, err
	}
	e.User = u
	s.Record(actor, "queue.add", "manual_queue", e.ID, map[string]interface{}{"user_id": u.ID, "level": level})
	return e, nil
}

func (s *AdminService) QueueList(ctx context.Context, rawLevel string) ([]models.ManualReceiverEntry, error) {
	level := ""
	if strings.TrimSpace(rawLevel) != "" {
		l, err := domain.ParseLevel(rawLevel)
		if err != nil {
			return nil, err
		}
		level = l
	}
	return s.queue.List(ctx, level)
}

func (s *AdminService) QueueRemove(ctx context.Context, actor Actor, id uint) error {
	err := s.queue.Remove(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrQueueNotFound
	}
	if err != nil {
		return err
	}
	s.Record(actor, "queue.remove", "manual_queue", id, nil)
	return nil
}

// SetSetting validates and stores one global setting.
func (s *AdminService) SetSetting(_ context.Context, actor Actor, key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)
	switch {
	case key == domain.SettingMatchingEnabled || key == domain.SettingRegistrationOpen:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return ErrInvalidSetting
		}
		value = strconv.FormatBool(b)
	case strings.HasPrefix(key, domain.SettingHelpAmountPrefix):
		if _, err := domain.ParseLevel(strings.TrimPrefix(key, domain.SettingHelpAmountPrefix)); err != nil {
			return ErrUnknownSetting
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n <= 0 {
			return ErrInvalidSetting
		}
		value = strconv.FormatInt(n, 10)
	default:
		return ErrUnknownSetting
	}
	if err := s.settings.Set(key, value); err != nil {
		return pkgerrors.Wrap(err, "save setting")
	}
	s.Record(actor, "setting.set", "setting", key, map[string]interface{}{"value": value})
	log.Info().Str("section", "admin").Str("key", key).Str("value", value).Msg("setting changed")
	return nil
}
