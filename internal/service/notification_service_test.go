package service

import (
	"context"
	"testing"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memNotifications struct {
	list       []models.Notification
	broadcasts []models.Broadcast
}

func (m *memNotifications) Create(n *models.Notification) error {
	m.list = append(m.list, *n)
	return nil
}

func (m *memNotifications) CreateMany(list []models.Notification) error {
	m.list = append(m.list, list...)
	return nil
}

func (m *memNotifications) CreateBroadcast(b *models.Broadcast) error {
	b.ID = uint(len(m.broadcasts) + 1)
	m.broadcasts = append(m.broadcasts, *b)
	return nil
}

type recipients struct {
	*fakeUsers
}

func (r recipients) IDs(_ context.Context, level string) ([]uint, error) {
	var ids []uint
	for id, u := range r.byID {
		if level == "" || u.Level == level {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type pushCall struct {
	token, topic, typ string
}

type fakeFCMPusher struct {
	calls []pushCall
}

func (p *fakeFCMPusher) SendToUser(_ context.Context, token, typ, _, _ string, _ map[string]interface{}) error {
	p.calls = append(p.calls, pushCall{token: token, typ: typ})
	return nil
}

func (p *fakeFCMPusher) SendToTopic(_ context.Context, topic, typ, _, _ string) error {
	p.calls = append(p.calls, pushCall{topic: topic, typ: typ})
	return nil
}

func TestNotify_PersistsAndPushes(t *testing.T) {
	u := activeUser(1, domain.LevelStar, 0, 0)
	u.FCMToken = "tok-1"
	store := &memNotifications{}
	push := &fakeFCMPusher{}
	s := &NotificationService{repo: store, userRepo: recipients{newFakeUsers(u)}, fcm: push}

	require.NoError(t, s.Notify(1, domain.NotifHelpAssigned, "t", "b", map[string]interface{}{"send_help_id": uint(4)}))
	require.Len(t, store.list, 1)
	assert.JSONEq(t, `{"send_help_id":4}`, store.list[0].Data)
	require.Len(t, push.calls, 1)
	assert.Equal(t, "tok-1", push.calls[0].token)
}

func TestBroadcast_ByLevel(t *testing.T) {
	users := newFakeUsers(
		activeUser(1, domain.LevelStar, 0, 0),
		activeUser(2, domain.LevelGold, 0, 0),
		activeUser(3, domain.LevelGold, 0, 0),
	)
	store := &memNotifications{}
	push := &fakeFCMPusher{}
	s := &NotificationService{repo: store, userRepo: recipients{users}, fcm: push}

	b, err := s.Broadcast(context.Background(), 9, "Maintenance", "Tonight 10pm", domain.LevelGold)
	require.NoError(t, err)
	assert.Equal(t, int64(2), b.Recipients)
	assert.Len(t, store.list, 2)
	require.Len(t, push.calls, 1)
	assert.Equal(t, "level_gold", push.calls[0].topic)

	_, err = s.Broadcast(context.Background(), 9, "Hello", "all", "")
	require.NoError(t, err)
	assert.Equal(t, TopicAll, push.calls[1].topic)
}

type liveRecorder struct {
	to []uint
}

func (l *liveRecorder) BroadcastToUser(userID uint, _ interface{}) {
	l.to = append(l.to, userID)
}

func TestNotify_LiveDelivery(t *testing.T) {
	store := &memNotifications{}
	s := NewNotificationService(store, recipients{newFakeUsers()}, nil)
	live := &liveRecorder{}
	s.SetLive(live)

	require.NoError(t, s.Notify(5, domain.NotifChatMessage, "New message", "hi", nil))
	assert.Equal(t, []uint{5}, live.to)
	assert.Empty(t, store.list[0].Data)
}
