package service

import (
	"context"
	"encoding/json"
	"time"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"

	"github.com/rs/zerolog/log"
)

type NotificationStore interface {
	Create(n *models.Notification) error
	CreateMany(list []models.Notification) error
	CreateBroadcast(b *models.Broadcast) error
}

type RecipientStore interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	IDs(ctx context.Context, level string) ([]uint, error)
}

type Pusher interface {
	SendToUser(ctx context.Context, fcmToken string, notifType, title, body string, data map[string]interface{}) error
	SendToTopic(ctx context.Context, topic, notifType, title, body string) error
}

// LivePusher delivers events to a user's open sockets.
type LivePusher interface {
	BroadcastToUser(userID uint, payload interface{})
}

type NotificationService struct {
	repo     NotificationStore
	userRepo RecipientStore
	fcm      Pusher
	live     LivePusher
}

// NewNotificationService wires persistence and push. fcm may be nil when push is disabled.
func NewNotificationService(repo NotificationStore, userRepo RecipientStore, fcm *FCMService) *NotificationService {
	s := &NotificationService{repo: repo, userRepo: userRepo}
	if fcm != nil {
		s.fcm = fcm
	}
	return s
}

// SetLive makes every new notification also go to the user's inbox socket.
func (s *NotificationService) SetLive(p LivePusher) { s.live = p }

func (s *NotificationService) Notify(userID uint, notifType, title, body string, data map[string]interface{}) error {
	var dataJSON string
	if data != nil {
		b, _ := json.Marshal(data)
		dataJSON = string(b)
	}
	n := &models.Notification{
		UserID: userID,
		Type:   notifType,
		Title:  title,
		Body:   body,
		Data:   dataJSON,
	}
	if err := s.repo.Create(n); err != nil {
		return err
	}
	if s.live != nil {
		s.live.BroadcastToUser(userID, map[string]interface{}{"type": "notification", "notification": n})
	}
	s.sendPush(userID, notifType, title, body, data)
	return nil
}

func (s *NotificationService) sendPush(userID uint, notifType, title, body string, data map[string]interface{}) {
	if s.fcm == nil || s.userRepo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || u == nil || u.FCMToken == "" {
		return
	}
	if err := s.fcm.SendToUser(ctx, u.FCMToken, notifType, title, body, data); err != nil {
		log.Warn().Err(err).Str("section", "fcm").Uint("user_id", userID).Msg("push failed")
	}
}

// Broadcast stores an announcement, fans it out as notifications and pushes it to the
// matching FCM topic. An empty level targets everyone.
func (s *NotificationService) Broadcast(ctx context.Context, adminID uint, title, body, level string) (*models.Broadcast, error) {
	ids, err := s.userRepo.IDs(ctx, level)
	if err != nil {
		return nil, err
	}
	b := &models.Broadcast{Title: title, Body: body, Level: level, Recipients: int64(len(ids)), CreatedBy: adminID}
	if err := s.repo.CreateBroadcast(b); err != nil {
		return nil, err
	}
	data, _ := json.Marshal(map[string]interface{}{"broadcast_id": b.ID})
	list := make([]models.Notification, len(ids))
	for i, id := range ids {
		list[i] = models.Notification{UserID: id, Type: domain.NotifBroadcast, Title: title, Body: body, Data: string(data)}
	}
	if err := s.repo.CreateMany(list); err != nil {
		return nil, err
	}
	if s.fcm != nil {
		topic := TopicAll
		if level != "" {
			topic = LevelTopic(level)
		}
		if err := s.fcm.SendToTopic(ctx, topic, domain.NotifBroadcast, title, body); err != nil {
			log.Warn().Err(err).Str("section", "fcm").Str("topic", topic).Msg("broadcast push failed")
		}
	}
	log.Info().Str("section", "broadcast").Uint("broadcast_id", b.ID).Int64("recipients", b.Recipients).Str("level", level).Msg("broadcast sent")
	return b, nil
}
