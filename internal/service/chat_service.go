package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/metrics"
	"hhfoundation/internal/models"
	"hhfoundation/internal/typing"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrChatSelf        = errors.New("cannot chat with yourself")
	ErrChatNotAllowed  = errors.New("chat is only available between help counterparties or with support")
	ErrEmptyMessage    = errors.New("message is empty")
	ErrMessageTooLong  = errors.New("message is too long")
	ErrChatPeerMissing = errors.New("chat peer not found")
)

const (
	maxMessageRunes = 2000
	previewRunes    = 120
)

// ThreadKey is the order-independent id of the conversation between a and b.
func ThreadKey(a, b uint) string {
	low, high := pair(a, b)
	return fmt.Sprintf("%d_%d", low, high)
}

func pair(a, b uint) (uint, uint) {
	if a < b {
		return a, b
	}
	return b, a
}

// ChatPusher delivers live events to connected websocket clients.
type ChatPusher interface {
	BroadcastToRoom(threadKey string, payload interface{})
	BroadcastToUser(userID uint, payload interface{})
}

type ThreadSummary struct {
	ChatID        string                `json:"chat_id"`
	Peer          *models.PublicProfile `json:"peer"`
	LastMessage   string                `json:"last_message"`
	LastMessageAt *time.Time            `json:"last_message_at"`
	Unread        int                   `json:"unread"`
	PeerTyping    bool                  `json:"peer_typing"`
}

type ChatService struct {
	chats    ChatStore
	helps    HelpStore
	users    UserStore
	typing   typing.Store
	notifier Notifier
	pusher   ChatPusher
	pageSize int
}

func NewChatService(chats ChatStore, helps HelpStore, users UserStore, typingStore typing.Store, notifier Notifier, pusher ChatPusher, pageSize int) *ChatService {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &ChatService{
		chats:    chats,
		helps:    helps,
		users:    users,
		typing:   typingStore,
		notifier: notifier,
		pusher:   pusher,
		pageSize: pageSize,
	}
}

// Authorize checks that userID may talk to peerID and returns the peer.
func (s *ChatService) Authorize(ctx context.Context, userID, peerID uint) (*models.User, error) {
	if userID == peerID {
		return nil, ErrChatSelf
	}
	me, err := s.member(ctx, userID)
	if err != nil {
		return nil, err
	}
	peer, err := s.users.GetByID(ctx, peerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrChatPeerMissing
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load peer")
	}
	if me.IsAdmin() || peer.IsAdmin() {
		return peer, nil
	}
	ok, err := s.helps.Counterparties(ctx, userID, peerID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "check counterparties")
	}
	if !ok {
		return nil, ErrChatNotAllowed
	}
	return peer, nil
}

// member loads userID and refuses blocked accounts. Sockets outlive the
// request middleware, so every chat action re-checks.
func (s *ChatService) member(ctx context.Context, userID uint) (*models.User, error) {
	me, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load user")
	}
	if me.IsBlocked {
		return nil, ErrAccountBlocked
	}
	return me, nil
}

// Open returns the thread between userID and peerID, creating it if needed.
func (s *ChatService) Open(ctx context.Context, userID, peerID uint) (*models.ChatThread, error) {
	if _, err := s.Authorize(ctx, userID, peerID); err != nil {
		return nil, err
	}
	low, high := pair(userID, peerID)
	return s.chats.GetOrCreateThread(ctx, ThreadKey(low, high), low, high)
}

func (s *ChatService) push(threadKey string, to []uint, payload map[string]interface{}) {
	if s.pusher == nil {
		return
	}
	s.pusher.BroadcastToRoom(threadKey, payload)
	for _, id := range to {
		s.pusher.BroadcastToUser(id, payload)
	}
}

// Send stores a message from senderID to peerID and fans it out.
func (s *ChatService) Send(ctx context.Context, senderID, peerID uint, content, mediaURL string) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" && mediaURL == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > maxMessageRunes {
		return nil, ErrMessageTooLong
	}
	th, err := s.Open(ctx, senderID, peerID)
	if err != nil {
		return nil, err
	}
	msg := &models.ChatMessage{SenderID: senderID, Content: content, MediaURL: mediaURL}
	if err := s.chats.AddMessage(ctx, th, msg, preview(content, mediaURL)); err != nil {
		return nil, pkgerrors.Wrap(err, "store message")
	}
	metrics.ChatMessages.Inc()
	if s.typing != nil {
		_ = s.typing.Clear(ctx, th.ThreadKey, senderID)
	}
	s.push(th.ThreadKey, []uint{peerID}, map[string]interface{}{
		"type":       "message",
		"chat_id":    th.ThreadKey,
		"id":         msg.ID,
		"sender_id":  msg.SenderID,
		"content":    msg.Content,
		"media_url":  msg.MediaURL,
		"created_at": msg.CreatedAt,
	})
	if s.notifier != nil {
		if err := s.notifier.Notify(peerID, domain.NotifChatMessage, "New message", preview(content, mediaURL),
			map[string]interface{}{"chat_id": th.ThreadKey, "sender_id": senderID}); err != nil {
			log.Warn().Err(err).Str("section", "chat").Msg("notify failed")
		}
	}
	return msg, nil
}

func preview(content, mediaURL string) string {
	if content == "" && mediaURL != "" {
		return "[image]"
	}
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	return string([]rune(content)[:previewRunes])
}

// History returns up to limit messages older than beforeID, oldest first.
func (s *ChatService) History(ctx context.Context, userID, peerID, beforeID uint, limit int) ([]models.ChatMessage, error) {
	if _, err := s.Authorize(ctx, userID, peerID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}
	th, err := s.chats.GetThread(ctx, ThreadKey(userID, peerID))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []models.ChatMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	list, err := s.chats.Messages(ctx, th.ID, beforeID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// MarkRead clears userID's unread counter for the conversation with peerID.
func (s *ChatService) MarkRead(ctx context.Context, userID, peerID uint) error {
	if _, err := s.member(ctx, userID); err != nil {
		return err
	}
	th, err := s.chats.GetThread(ctx, ThreadKey(userID, peerID))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.chats.MarkRead(ctx, th, userID); err != nil {
		return err
	}
	s.push(th.ThreadKey, nil, map[string]interface{}{"type": "read", "chat_id": th.ThreadKey, "user_id": userID})
	return nil
}

// SetTyping records or clears userID's typing indicator. Indicators expire on their own.
func (s *ChatService) SetTyping(ctx context.Context, userID, peerID uint, on bool) error {
	if s.typing == nil {
		return nil
	}
	key := ThreadKey(userID, peerID)
	var err error
	if on {
		if _, err := s.Authorize(ctx, userID, peerID); err != nil {
			return err
		}
		err = s.typing.Set(ctx, key, userID)
	} else {
		err = s.typing.Clear(ctx, key, userID)
	}
	if err != nil {
		return pkgerrors.Wrap(err, "typing store")
	}
	s.push(key, nil, map[string]interface{}{"type": "typing", "chat_id": key, "user_id": userID, "typing": on})
	return nil
}

// PeerTyping reports whether peerID is currently typing to userID.
func (s *ChatService) PeerTyping(ctx context.Context, userID, peerID uint) (bool, error) {
	if s.typing == nil {
		return false, nil
	}
	return s.typing.IsTyping(ctx, ThreadKey(userID, peerID), peerID)
}

// Threads lists userID's conversations, most recent first.
func (s *ChatService) Threads(ctx context.Context, userID uint, limit, offset int) ([]ThreadSummary, error) {
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}
	list, err := s.chats.ThreadsFor(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]ThreadSummary, 0, len(list))
	for i := range list {
		th := &list[i]
		peerID := th.Peer(userID)
		sum := ThreadSummary{
			ChatID:        th.ThreadKey,
			LastMessage:   th.LastMessage,
			LastMessageAt: th.LastMessageAt,
			Unread:        th.UnreadFor(userID),
		}
		if peer, err := s.users.GetByID(ctx, peerID); err == nil {
			p := peer.Public()
			p.PaymentMethod = nil
			sum.Peer = &p
		}
		sum.PeerTyping, _ = s.PeerTyping(ctx, userID, peerID)
		out = append(out, sum)
	}
	return out, nil
}

func (s *ChatService) UnreadTotal(ctx context.Context, userID uint) (int64, error) {
	return s.chats.UnreadTotal(ctx, userID)
}
