package handler

import (
	"net/http"
	"strings"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/middleware"
	"hhfoundation/internal/repository"
	"hhfoundation/internal/service"
	"hhfoundation/internal/ws"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	repo  *repository.NotificationRepository
	svc   *service.NotificationService
	hub   *ws.Hub
	audit recorder
}

func NewNotificationHandler(repo *repository.NotificationRepository, svc *service.NotificationService, hub *ws.Hub, audit recorder) *NotificationHandler {
	return &NotificationHandler{repo: repo, svc: svc, hub: hub, audit: audit}
}

func (h *NotificationHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	limit, offset := parseLimitOffset(c)
	list, err := h.repo.ListByUserID(userID, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	unread, err := h.repo.UnreadCount(userID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list, "unread": unread})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.repo.MarkRead(id, middleware.GetUserID(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	if err := h.repo.MarkAllRead(middleware.GetUserID(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Broadcast handles POST /admin/broadcasts. An empty level targets every user.
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required,max=150"`
		Body  string `json:"body" binding:"required"`
		Level string `json:"level"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	level := ""
	if strings.TrimSpace(req.Level) != "" {
		l, err := domain.ParseLevel(req.Level)
		if err != nil {
			fail(c, err)
			return
		}
		level = l
	}
	b, err := h.svc.Broadcast(c.Request.Context(), middleware.GetUserID(c), req.Title, req.Body, level)
	if err != nil {
		fail(c, err)
		return
	}
	// sockets carry no level, so only global announcements go out live
	if h.hub != nil && level == "" {
		h.hub.BroadcastAll(gin.H{"type": "broadcast", "broadcast": b}, nil)
	}
	if h.audit != nil {
		h.audit.Record(actor(c), "broadcast.send", "broadcast", b.ID, map[string]interface{}{"level": level, "recipients": b.Recipients})
	}
	c.JSON(http.StatusCreated, gin.H{"broadcast": b})
}

func (h *NotificationHandler) ListBroadcasts(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.repo.ListBroadcasts(page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}
