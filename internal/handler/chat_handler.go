package handler

import (
	"net/http"
	"strconv"

	"hhfoundation/internal/middleware"
	"hhfoundation/internal/service"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	svc *service.ChatService
}

func NewChatHandler(svc *service.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

func (h *ChatHandler) Threads(c *gin.Context) {
	limit, offset := parseLimitOffset(c)
	list, err := h.svc.Threads(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *ChatHandler) Unread(c *gin.Context) {
	n, err := h.svc.UnreadTotal(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

// Messages handles GET /chats/:peer_id/messages?before_id=&limit=, oldest first.
func (h *ChatHandler) Messages(c *gin.Context) {
	peerID, ok := idParam(c, "peer_id")
	if !ok {
		return
	}
	before, _ := strconv.ParseUint(c.Query("before_id"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.svc.History(c.Request.Context(), middleware.GetUserID(c), peerID, uint(before), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": list, "chat_id": service.ThreadKey(middleware.GetUserID(c), peerID)})
}

func (h *ChatHandler) Send(c *gin.Context) {
	peerID, ok := idParam(c, "peer_id")
	if !ok {
		return
	}
	var req struct {
		Content  string `json:"content"`
		MediaURL string `json:"media_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	msg, err := h.svc.Send(c.Request.Context(), middleware.GetUserID(c), peerID, req.Content, req.MediaURL)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	peerID, ok := idParam(c, "peer_id")
	if !ok {
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), middleware.GetUserID(c), peerID); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Typing handles POST /chats/:peer_id/typing {"typing": true}.
func (h *ChatHandler) Typing(c *gin.Context) {
	peerID, ok := idParam(c, "peer_id")
	if !ok {
		return
	}
	var req struct {
		Typing bool `json:"typing"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	userID := middleware.GetUserID(c)
	if _, err := h.svc.Authorize(c.Request.Context(), userID, peerID); err != nil {
		fail(c, err)
		return
	}
	if err := h.svc.SetTyping(c.Request.Context(), userID, peerID, req.Typing); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *ChatHandler) PeerTyping(c *gin.Context) {
	peerID, ok := idParam(c, "peer_id")
	if !ok {
		return
	}
	on, err := h.svc.PeerTyping(c.Request.Context(), middleware.GetUserID(c), peerID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"typing": on})
}
