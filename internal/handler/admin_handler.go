package handler

import (
	"errors"
	"net/http"
	"strconv"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/middleware"
	"hhfoundation/internal/repository"
	"hhfoundation/internal/service"
	"hhfoundation/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type AdminHandler struct {
	admin       *service.AdminService
	helps       *service.HelpService
	integrity   *service.IntegrityService
	adminRepo   *repository.AdminRepository
	userRepo    *repository.UserRepository
	helpRepo    *repository.HelpRepository
	settingRepo *repository.SettingRepository
	hub         *ws.Hub
}

func NewAdminHandler(
	admin *service.AdminService,
	helps *service.HelpService,
	integrity *service.IntegrityService,
	adminRepo *repository.AdminRepository,
	userRepo *repository.UserRepository,
	helpRepo *repository.HelpRepository,
	settingRepo *repository.SettingRepository,
	hub *ws.Hub,
) *AdminHandler {
	return &AdminHandler{
		admin:       admin,
		helps:       helps,
		integrity:   integrity,
		adminRepo:   adminRepo,
		userRepo:    userRepo,
		helpRepo:    helpRepo,
		settingRepo: settingRepo,
		hub:         hub,
	}
}

// Dashboard handles GET /admin/dashboard.
func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.adminRepo.GetDashboardStats()
	if err != nil {
		fail(c, err)
		return
	}
	online := 0
	if h.hub != nil {
		online = h.hub.ClientCount()
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "online_sockets": online})
}

// Analytics handles GET /admin/analytics?days=30.
func (h *AdminHandler) Analytics(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	if days <= 0 || days > 365 {
		days = 30
	}
	signups, err := h.adminRepo.UserSignupsByDay(days)
	if err != nil {
		fail(c, err)
		return
	}
	volume, err := h.adminRepo.HelpVolumeByDay(days)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"signups":     signups,
		"help_volume": volume,
		"days":        days,
	})
}

// ListUsers handles GET /admin/users?search=&level=.
func (h *AdminHandler) ListUsers(c *gin.Context) {
	level := c.Query("level")
	if level != "" {
		l, err := domain.ParseLevel(level)
		if err != nil {
			fail(c, err)
			return
		}
		level = l
	}
	page, limit := parsePagination(c)
	users, total, err := h.userRepo.Search(c.Request.Context(), c.Query("search"), level, page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": users, "total": total, "page": page, "limit": limit})
}

// GetUser handles GET /admin/users/:id with the user's receiving progress.
func (h *AdminHandler) GetUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	u, err := h.userRepo.GetByID(c.Request.Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		fail(c, service.ErrUserNotFound)
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	progress, err := h.helps.Progress(c.Request.Context(), u)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "progress": progress})
}

func (h *AdminHandler) userAction(c *gin.Context, do func(id uint) (interface{}, error)) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	u, err := do(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// Block handles POST /admin/users/:id/block and /unblock.
func (h *AdminHandler) Block(blocked bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.userAction(c, func(id uint) (interface{}, error) {
			return h.admin.SetBlocked(c.Request.Context(), actor(c), id, blocked)
		})
	}
}

// Hold handles POST /admin/users/:id/hold and /release.
func (h *AdminHandler) Hold(held bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.userAction(c, func(id uint) (interface{}, error) {
			return h.admin.SetReceivingHeld(c.Request.Context(), actor(c), id, held)
		})
	}
}

func (h *AdminHandler) Activate(c *gin.Context) {
	h.userAction(c, func(id uint) (interface{}, error) {
		return h.admin.Activate(c.Request.Context(), actor(c), id)
	})
}

// SetLevel handles PUT /admin/users/:id/level.
func (h *AdminHandler) SetLevel(c *gin.Context) {
	var req struct {
		Level string `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "level required")
		return
	}
	h.userAction(c, func(id uint) (interface{}, error) {
		return h.admin.SetLevel(c.Request.Context(), actor(c), id, req.Level)
	})
}

// ListHelps handles GET /admin/helps?status=&level=.
func (h *AdminHandler) ListHelps(c *gin.Context) {
	level := c.Query("level")
	if level != "" {
		l, err := domain.ParseLevel(level)
		if err != nil {
			fail(c, err)
			return
		}
		level = l
	}
	page, limit := parsePagination(c)
	list, total, err := h.helpRepo.List(c.Request.Context(), c.Query("status"), level, page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

// ForceConfirm handles POST /admin/helps/:id/confirm for disputed or stuck payments.
func (h *AdminHandler) ForceConfirm(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	a := actor(c)
	sh, err := h.helps.ForceConfirm(c.Request.Context(), a.ID, id)
	if err != nil {
		fail(c, err)
		return
	}
	h.admin.Record(a, "help.force_confirm", "send_help", id, nil)
	c.JSON(http.StatusOK, gin.H{"help": sh})
}

// Cancel handles POST /admin/helps/:id/cancel.
func (h *AdminHandler) Cancel(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)
	a := actor(c)
	sh, err := h.helps.Cancel(c.Request.Context(), a.ID, id, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	h.admin.Record(a, "help.cancel", "send_help", id, map[string]interface{}{"reason": req.Reason})
	c.JSON(http.StatusOK, gin.H{"help": sh})
}

// QueueList handles GET /admin/queue?level=.
func (h *AdminHandler) QueueList(c *gin.Context) {
	list, err := h.admin.QueueList(c.Request.Context(), c.Query("level"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// QueueAdd handles POST /admin/queue.
func (h *AdminHandler) QueueAdd(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Level  string `json:"level"`
		Note   string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user_id required")
		return
	}
	e, err := h.admin.QueueAdd(c.Request.Context(), actor(c), req.UserID, req.Level, req.Note)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"entry": e})
}

func (h *AdminHandler) QueueRemove(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.admin.QueueRemove(c.Request.Context(), actor(c), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// GetSettings handles GET /admin/settings.
func (h *AdminHandler) GetSettings(c *gin.Context) {
	settings, err := h.settingRepo.GetAll()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": settings})
}

// UpdateSettings handles PUT /admin/settings. Keys are applied in order and the
// first invalid one stops the update.
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	var req struct {
		Settings map[string]string `json:"settings" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "settings required")
		return
	}
	for k, v := range req.Settings {
		if err := h.admin.SetSetting(c.Request.Context(), actor(c), k, v); err != nil {
			if statusFor(err) == http.StatusInternalServerError {
				fail(c, err)
				return
			}
			c.JSON(statusFor(err), gin.H{"error": err.Error(), "key": k, "request_id": middleware.GetRequestID(c)})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AuditLogs handles GET /admin/audit-logs?action=.
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.adminRepo.ListAuditLogs(c.Query("action"), page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

// Integrity handles GET /admin/integrity.
func (h *AdminHandler) Integrity(c *gin.Context) {
	report, err := h.integrity.Audit(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": report.OK(), "report": report})
}
