package service

import (
	"context"
	"errors"
	"strings"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var ErrNameRequired = errors.New("full name is required")

type ProfileStore interface {
	UpsertPaymentMethod(ctx context.Context, pm *models.PaymentMethod) error
	ListDownline(ctx context.Context, code string, limit, offset int) ([]models.User, error)
}

// TopicSubscriber manages a device's broadcast topic membership.
type TopicSubscriber interface {
	Subscribe(ctx context.Context, token, level string) error
	Unsubscribe(ctx context.Context, token, level string) error
}

type UnreadCounter interface {
	UnreadCount(userID uint) (int64, error)
}

type ProfileUpdate struct {
	FullName *string
	Phone    *string
}

type Dashboard struct {
	User                *models.User   `json:"user"`
	HelpAmount          int64          `json:"help_amount"`
	ActiveHelp          *MatchResult   `json:"active_help"`
	ReceiveProgress     *QuotaProgress `json:"receive_progress"`
	UnusedEpins         int64          `json:"unused_epins"`
	UnreadNotifications int64          `json:"unread_notifications"`
	UnreadMessages      int64          `json:"unread_messages"`
}

type UserService struct {
	users    UserStore
	profiles ProfileStore
	helps    *HelpService
	epins    EpinStore
	chats    ChatStore
	unread   UnreadCounter
	topics   TopicSubscriber
}

func NewUserService(users UserStore, profiles ProfileStore, helps *HelpService, epins EpinStore, chats ChatStore, unread UnreadCounter, topics TopicSubscriber) *UserService {
	return &UserService{users: users, profiles: profiles, helps: helps, epins: epins, chats: chats, unread: unread, topics: topics}
}

func (s *UserService) Profile(ctx context.Context, userID uint) (*models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uint, in ProfileUpdate) (*models.User, error) {
	updates := map[string]interface{}{}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return nil, ErrNameRequired
		}
		updates["full_name"] = name
	}
	if in.Phone != nil {
		phone := ""
		if strings.TrimSpace(*in.Phone) != "" {
			p, err := models.NormalizePhone(*in.Phone)
			if err != nil {
				return nil, err
			}
			phone = p
		}
		updates["phone"] = phone
	}
	if len(updates) > 0 {
		if err := s.users.UpdateFields(ctx, userID, updates); err != nil {
			return nil, pkgerrors.Wrap(err, "update profile")
		}
	}
	return s.Profile(ctx, userID)
}

// SetPaymentMethod validates and stores the user's single payment method.
func (s *UserService) SetPaymentMethod(ctx context.Context, userID uint, pm *models.PaymentMethod) (*models.PaymentMethod, error) {
	if err := pm.Normalize(); err != nil {
		return nil, err
	}
	pm.ID = 0
	pm.UserID = userID
	if err := s.profiles.UpsertPaymentMethod(ctx, pm); err != nil {
		return nil, pkgerrors.Wrap(err, "save payment method")
	}
	log.Info().Str("section", "profile").Uint("user_id", userID).Str("type", pm.Type).Msg("payment method updated")
	return pm, nil
}

// RegisterDevice stores the user's push token and joins it to the broadcast topics.
func (s *UserService) RegisterDevice(ctx context.Context, userID uint, token string) error {
	token = strings.TrimSpace(token)
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.users.UpdateFields(ctx, userID, map[string]interface{}{"fcm_token": token}); err != nil {
		return pkgerrors.Wrap(err, "store fcm token")
	}
	if s.topics != nil && token != "" && token != u.FCMToken {
		if err := s.topics.Subscribe(ctx, token, u.Level); err != nil {
			log.Warn().Err(err).Str("section", "fcm").Uint("user_id", userID).Msg("topic subscribe failed")
		}
	}
	return nil
}

// Downline lists the users directly sponsored by userID.
func (s *UserService) Downline(ctx context.Context, userID uint, limit, offset int) ([]models.PublicProfile, error) {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	list, err := s.profiles.ListDownline(ctx, u.UserCode, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]models.PublicProfile, len(list))
	for i := range list {
		out[i] = list[i].Public()
	}
	return out, nil
}

// Dashboard gathers the counters shown on the user's home screen.
func (s *UserService) Dashboard(ctx context.Context, userID uint) (*Dashboard, error) {
	u, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	d := &Dashboard{User: u, HelpAmount: s.helps.LevelAmount(u.Level)}
	if d.ActiveHelp, err = s.helps.Current(ctx, userID); err != nil {
		return nil, err
	}
	if d.ReceiveProgress, err = s.helps.Progress(ctx, u); err != nil {
		return nil, err
	}
	if d.UnusedEpins, err = s.epins.CountByOwner(ctx, userID, domain.EpinStatusUnused); err != nil {
		return nil, err
	}
	if s.unread != nil {
		if d.UnreadNotifications, err = s.unread.UnreadCount(userID); err != nil {
			return nil, err
		}
	}
	if d.UnreadMessages, err = s.chats.UnreadTotal(ctx, userID); err != nil {
		return nil, err
	}
	return d, nil
}
