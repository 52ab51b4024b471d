package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// Broadcast topics. Every registered device joins TopicAll and the topic of its level.
const TopicAll = "all"

// LevelTopic returns the FCM topic for level, e.g. "level_gold".
func LevelTopic(level string) string {
	return "level_" + strings.ToLower(level)
}

// FCMService sends push notifications via Firebase Cloud Messaging.
type FCMService struct {
	client *messaging.Client
}

// NewFCMService creates an FCM service. Returns nil if Firebase is not configured.
func NewFCMService(serviceAccountPath string) *FCMService {
	if serviceAccountPath == "" {
		return nil
	}
	ctx := context.Background()
	opt := option.WithCredentialsFile(serviceAccountPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		log.Error().Err(err).Str("section", "fcm").Msg("failed to init firebase app")
		return nil
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		log.Error().Err(err).Str("section", "fcm").Msg("failed to get messaging client")
		return nil
	}
	return &FCMService{client: client}
}

func notificationMessage(title, body string, data map[string]string) *messaging.Message {
	return &messaging.Message{
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: "default",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: "default",
				},
			},
		},
	}
}

// Send sends a push notification to the given FCM token.
func (s *FCMService) Send(ctx context.Context, token string, title, body string, data map[string]string) error {
	if s == nil || token == "" {
		return nil
	}
	msg := notificationMessage(title, body, data)
	msg.Token = token
	if _, err := s.client.Send(ctx, msg); err != nil {
		log.Warn().Err(err).Str("section", "fcm").Msg("send failed")
		return err
	}
	return nil
}

// SendToTopic pushes to every device subscribed to topic.
func (s *FCMService) SendToTopic(ctx context.Context, topic, notifType, title, body string) error {
	if s == nil {
		return nil
	}
	msg := notificationMessage(title, body, map[string]string{"type": notifType})
	msg.Topic = topic
	if _, err := s.client.Send(ctx, msg); err != nil {
		log.Warn().Err(err).Str("section", "fcm").Str("topic", topic).Msg("topic send failed")
		return err
	}
	return nil
}

// Subscribe adds token to the broadcast topics for level.
func (s *FCMService) Subscribe(ctx context.Context, token, level string) error {
	if s == nil || token == "" {
		return nil
	}
	for _, topic := range []string{TopicAll, LevelTopic(level)} {
		if _, err := s.client.SubscribeToTopic(ctx, []string{token}, topic); err != nil {
			return err
		}
	}
	return nil
}

// Unsubscribe removes token from a level topic, e.g. after an admin changes the user's level.
func (s *FCMService) Unsubscribe(ctx context.Context, token, level string) error {
	if s == nil || token == "" {
		return nil
	}
	_, err := s.client.UnsubscribeFromTopic(ctx, []string{token}, LevelTopic(level))
	return err
}

// SendToUser sends a push to a user by their FCM token. Token is fetched by the caller.
// All data values are converted to strings (FCM requires string values).
func (s *FCMService) SendToUser(ctx context.Context, fcmToken string, notifType, title, body string, data map[string]interface{}) error {
	if s == nil || fcmToken == "" {
		return nil
	}
	return s.Send(ctx, fcmToken, title, body, stringifyData(notifType, data))
}

func stringifyData(notifType string, data map[string]interface{}) map[string]string {
	out := map[string]string{"type": notifType}
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		case uint:
			out[k] = fmt.Sprintf("%d", val)
		case int:
			out[k] = fmt.Sprintf("%d", val)
		case int64:
			out[k] = fmt.Sprintf("%d", val)
		case float64:
			out[k] = fmt.Sprintf("%.0f", val)
		default:
			b, _ := json.Marshal(v)
			out[k] = string(b)
		}
	}
	return out
}
