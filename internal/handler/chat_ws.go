package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"hhfoundation/config"
	"hhfoundation/internal/auth"
	"hhfoundation/internal/middleware"
	"hhfoundation/internal/service"
	"hhfoundation/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const wsOpTimeout = 10 * time.Second

type wsFrame struct {
	Type     string `json:"type"` // message | typing | read
	Content  string `json:"content"`
	MediaURL string `json:"media_url"`
	Typing   bool   `json:"typing"`
}

// UpgradeChatWS handles /ws/chat?token=&peer_id=. The socket joins the conversation room
// and accepts message, typing and read frames.
func UpgradeChatWS(cfg *config.JWTConfig, hub *ws.ChatHub, chats *service.ChatService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := auth.ParseAccessToken(cfg, c.Query("token"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		peer, _ := strconv.ParseUint(c.Query("peer_id"), 10, 64)
		if peer == 0 {
			badRequest(c, "peer_id required")
			return
		}
		peerID := uint(peer)
		if _, err := chats.Authorize(c.Request.Context(), claims.UserID, peerID); err != nil {
			fail(c, err)
			return
		}
		conn, err := ws.Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		key := service.ThreadKey(claims.UserID, peerID)
		client := ws.NewClient(claims.UserID, claims.Role)
		hub.Join(key, client)
		defer func() {
			hub.Leave(key, client)
			client.Close()
			_ = chats.SetTyping(context.Background(), claims.UserID, peerID, false)
		}()
		log.Debug().Str("section", "ws").Uint("user_id", claims.UserID).Str("chat_id", key).Msg("chat socket joined")

		ws.Serve(conn, client, func(raw []byte) {
			var f wsFrame
			if json.Unmarshal(raw, &f) != nil {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), wsOpTimeout)
			defer cancel()
			var err error
			switch f.Type {
			case "message":
				_, err = chats.Send(ctx, claims.UserID, peerID, f.Content, f.MediaURL)
			case "typing":
				err = chats.SetTyping(ctx, claims.UserID, peerID, f.Typing)
			case "read":
				err = chats.MarkRead(ctx, claims.UserID, peerID)
			default:
				return
			}
			if err != nil {
				client.Push(gin.H{"type": "error", "chat_id": key, "error": err.Error()})
				log.Debug().Err(err).Str("section", "ws").Str("frame", f.Type).Msg("chat frame rejected")
			}
		})
	}
}

// UpgradeInboxWS handles /ws?token=. The socket receives every live event addressed to the user.
func UpgradeInboxWS(cfg *config.JWTConfig, hub *ws.ChatHub, users middleware.UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := auth.ParseAccessToken(cfg, c.Query("token"))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		u, err := users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account not found"})
			return
		}
		if u.IsBlocked {
			fail(c, service.ErrAccountBlocked)
			return
		}
		conn, err := ws.Upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := ws.NewClient(claims.UserID, claims.Role)
		hub.Register(client)
		defer client.Close()
		ws.Serve(conn, client, nil)
	}
}
