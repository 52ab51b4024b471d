package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hhfoundation/internal/middleware"
	"hhfoundation/internal/service"

	"github.com/gin-gonic/gin"
)

type HelpHandler struct {
	svc        *service.HelpService
	uploads    *UploadHandler
	retryAfter time.Duration
}

func NewHelpHandler(svc *service.HelpService, uploads *UploadHandler, retryAfter time.Duration) *HelpHandler {
	if retryAfter <= 0 {
		retryAfter = 30 * time.Second
	}
	return &HelpHandler{svc: svc, uploads: uploads, retryAfter: retryAfter}
}

// Send handles POST /helps/send. A sender with no receiver available gets 202 WAITING.
func (h *HelpHandler) Send(c *gin.Context) {
	res, err := h.svc.Match(c.Request.Context(), middleware.GetUserID(c))
	if errors.Is(err, service.ErrNoReceiver) {
		secs := int(h.retryAfter.Seconds())
		c.Header("Retry-After", strconv.Itoa(secs))
		c.JSON(http.StatusAccepted, gin.H{"status": "WAITING", "message": err.Error(), "retry_after": secs})
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	status := http.StatusCreated
	if res.Existing {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

func (h *HelpHandler) Current(c *gin.Context) {
	res, err := h.svc.Current(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active_help": res})
}

func (h *HelpHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	sh, err := h.svc.Get(c.Request.Context(), middleware.GetUserID(c), id, isAdmin(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"send_help": sh})
}

func (h *HelpHandler) History(c *gin.Context) {
	limit, offset := parseLimitOffset(c)
	list, err := h.svc.History(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *HelpHandler) Incoming(c *gin.Context) {
	limit, offset := parseLimitOffset(c)
	status := strings.ToUpper(c.Query("status"))
	list, err := h.svc.Incoming(c.Request.Context(), middleware.GetUserID(c), status, limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

type submitPaymentRequest struct {
	UTR           string `json:"utr" form:"utr" binding:"required"`
	ScreenshotURL string `json:"screenshot_url" form:"screenshot_url"`
	Amount        *int64 `json:"amount" form:"amount"`
}

// SubmitPayment handles POST /help/:id/payment as JSON or multipart with a "screenshot" file.
func (h *HelpHandler) SubmitPayment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req submitPaymentRequest
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
	sh, err := h.svc.SubmitPayment(c.Request.Context(), middleware.GetUserID(c), id, req.UTR, screenshot, req.Amount)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"send_help": sh})
}

func (h *HelpHandler) Confirm(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	sh, err := h.svc.Confirm(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"send_help": sh})
}

func (h *HelpHandler) Dispute(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "reason required")
		return
	}
	sh, err := h.svc.Dispute(c.Request.Context(), middleware.GetUserID(c), id, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"send_help": sh})
}

func (h *HelpHandler) Progress(c *gin.Context) {
	u := middleware.GetUser(c)
	if u == nil {
		fail(c, service.ErrUserNotFound)
		return
	}
	p, err := h.svc.Progress(c.Request.Context(), u)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": p, "help_amount": h.svc.LevelAmount(u.Level)})
}
