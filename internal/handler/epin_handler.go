package handler

import (
	"net/http"
	"strconv"
	"strings"

	"hhfoundation/internal/middleware"
	"hhfoundation/internal/service"

	"github.com/gin-gonic/gin"
)

type EpinHandler struct {
	svc     *service.EpinService
	uploads *UploadHandler
	audit   recorder
}

func NewEpinHandler(svc *service.EpinService, uploads *UploadHandler, audit recorder) *EpinHandler {
	return &EpinHandler{svc: svc, uploads: uploads, audit: audit}
}

func (h *EpinHandler) record(c *gin.Context, action string, id interface{}, meta map[string]interface{}) {
	if h.audit != nil {
		h.audit.Record(actor(c), action, "epin", id, meta)
	}
}

// Mine handles GET /epins?status=UNUSED.
func (h *EpinHandler) Mine(c *gin.Context) {
	limit, offset := parseLimitOffset(c)
	list, err := h.svc.Mine(c.Request.Context(), middleware.GetUserID(c), c.Query("status"), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// Use handles POST /epins/use. An empty user_id activates the caller.
func (h *EpinHandler) Use(c *gin.Context) {
	var req struct {
		Code   string `json:"code" binding:"required"`
		UserID string `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "code required")
		return
	}
	pin, err := h.svc.Use(c.Request.Context(), middleware.GetUserID(c), req.Code, req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"epin": pin})
}

func (h *EpinHandler) Transfer(c *gin.Context) {
	var req struct {
		UserID   string `json:"user_id" binding:"required"`
		Quantity int    `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "user_id and quantity required")
		return
	}
	pins, err := h.svc.Transfer(c.Request.Context(), middleware.GetUserID(c), req.UserID, req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transferred": len(pins)})
}

// Request handles POST /epins/requests as JSON or multipart with a "screenshot" file.
func (h *EpinHandler) Request(c *gin.Context) {
	var req struct {
		Quantity      int    `json:"quantity" form:"quantity" binding:"required"`
		UTR           string `json:"utr" form:"utr" binding:"required"`
		ScreenshotURL string `json:"screenshot_url" form:"screenshot_url"`
	}
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	screenshot := req.ScreenshotURL
	if h.uploads != nil && strings.HasPrefix(c.ContentType(), "multipart/") {
		url, err := h.uploads.screenshotURL(c, screenshot)
		if err != nil {
			fail(c, err)
			return
		}
		screenshot = url
	}
	r, err := h.svc.Request(c.Request.Context(), middleware.GetUserID(c), req.Quantity, req.UTR, screenshot)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"request": r})
}

func (h *EpinHandler) MyRequests(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.svc.Requests(c.Request.Context(), middleware.GetUserID(c), c.Query("status"), page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

// Admin endpoints.

func (h *EpinHandler) AdminList(c *gin.Context) {
	page, limit := parsePagination(c)
	ownerID, _ := strconv.ParseUint(c.Query("owner_id"), 10, 64)
	list, total, err := h.svc.List(c.Request.Context(), c.Query("status"), uint(ownerID), page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

func (h *EpinHandler) AdminGenerate(c *gin.Context) {
	var req struct {
		Quantity int    `json:"quantity" binding:"required"`
		UserID   string `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "quantity required")
		return
	}
	pins, err := h.svc.Generate(c.Request.Context(), middleware.GetUserID(c), req.Quantity, req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	h.record(c, "epin.generate", req.UserID, map[string]interface{}{"count": len(pins)})
	c.JSON(http.StatusCreated, gin.H{"data": pins, "count": len(pins)})
}

func (h *EpinHandler) AdminRequests(c *gin.Context) {
	page, limit := parsePagination(c)
	list, total, err := h.svc.Requests(c.Request.Context(), 0, c.Query("status"), page, limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list, "total": total, "page": page, "limit": limit})
}

func (h *EpinHandler) AdminApprove(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	req, pins, err := h.svc.Approve(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	h.record(c, "epin_request.approve", id, map[string]interface{}{"count": len(pins)})
	c.JSON(http.StatusOK, gin.H{"request": req, "epins": pins})
}

func (h *EpinHandler) AdminReject(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "reason required")
		return
	}
	req, err := h.svc.Reject(c.Request.Context(), middleware.GetUserID(c), id, body.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	h.record(c, "epin_request.reject", id, map[string]interface{}{"reason": body.Reason})
	c.JSON(http.StatusOK, gin.H{"request": req})
}
