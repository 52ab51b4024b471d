package handler

import (
	"net/http"

	"hhfoundation/internal/middleware"
	"hhfoundation/internal/models"
	"hhfoundation/internal/service"

	"github.com/gin-gonic/gin"
)

type MeHandler struct {
	users *service.UserService
}

func NewMeHandler(users *service.UserService) *MeHandler {
	return &MeHandler{users: users}
}

func (h *MeHandler) GetProfile(c *gin.Context) {
	u, err := h.users.Profile(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (h *MeHandler) UpdateProfile(c *gin.Context) {
	var req struct {
		FullName *string `json:"full_name"`
		Phone    *string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := h.users.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), service.ProfileUpdate{
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// SetPaymentMethod handles PUT /me/payment-method.
func (h *MeHandler) SetPaymentMethod(c *gin.Context) {
	var pm models.PaymentMethod
	if err := c.ShouldBindJSON(&pm); err != nil {
		badRequest(c, err.Error())
		return
	}
	saved, err := h.users.SetPaymentMethod(c.Request.Context(), middleware.GetUserID(c), &pm)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_method": saved})
}

// RegisterFCMToken saves the FCM token for push notifications.
func (h *MeHandler) RegisterFCMToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "token required")
		return
	}
	if err := h.users.RegisterDevice(c.Request.Context(), middleware.GetUserID(c), req.Token); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *MeHandler) Downline(c *gin.Context) {
	limit, offset := parseLimitOffset(c)
	list, err := h.users.Downline(c.Request.Context(), middleware.GetUserID(c), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	for i := range list {
		list[i].PaymentMethod = nil
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *MeHandler) Dashboard(c *gin.Context) {
	d, err := h.users.Dashboard(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}
