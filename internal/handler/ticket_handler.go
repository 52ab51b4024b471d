package handler

import (
	"net/http"

	"hhfoundation/internal/middleware"
	"hhfoundation/internal/service"

	"github.com/gin-gonic/gin"
)

type TicketHandler struct {
	svc   *service.TicketService
	audit recorder
}

func NewTicketHandler(svc *service.TicketService, audit recorder) *TicketHandler {
	return &TicketHandler{svc: svc, audit: audit}
}

// Create handles POST /tickets.
func (h *TicketHandler) Create(c *gin.Context) {
	var req struct {
		Subject  string `json:"subject" binding:"required"`
		Message  string `json:"message" binding:"required"`
		Category string `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "subject and message required")
		return
	}
	t, err := h.svc.Create(c.Request.Context(), middleware.GetUserID(c), req.Subject, req.Message, req.Category)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ticket": t})
}

func (h *TicketHandler) Mine(c *gin.Context) {
	limit, offset := parseLimitOffset(c)
	list, err := h.svc.Mine(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Get handles GET /tickets/:id. Admins may read any ticket.
func (h *TicketHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.Get(c.Request.Context(), middleware.GetUserID(c), id, isAdmin(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": t})
}

// Reply serves both POST /tickets/:id/replies and POST /admin/tickets/:id/replies.
func (h *TicketHandler) Reply(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "message required")
		return
	}
	staff := isAdmin(c)
	reply, err := h.svc.Reply(c.Request.Context(), middleware.GetUserID(c), id, req.Message, staff)
	if err != nil {
		fail(c, err)
		return
	}
	if staff && h.audit != nil {
		h.audit.Record(actor(c), "ticket.reply", "ticket", id, nil)
	}
	c.JSON(http.StatusCreated, gin.H{"reply": reply})
}

// List handles GET /admin/tickets?status=OPEN.
func (h *TicketHandler) List(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.svc.List(c.Request.Context(), c.Query("status"), page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

// SetStatus handles PUT /admin/tickets/:id/status.
func (h *TicketHandler) SetStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status required")
		return
	}
	if err := h.svc.SetStatus(c.Request.Context(), middleware.GetUserID(c), id, req.Status); err != nil {
		fail(c, err)
		return
	}
	if h.audit != nil {
		h.audit.Record(actor(c), "ticket.status", "ticket", id, map[string]interface{}{"status": req.Status})
	}
	c.JSON(http.StatusOK, gin.H{"message": "status updated"})
}
