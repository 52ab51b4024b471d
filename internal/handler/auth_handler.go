package handler

import (
	"net/http"

	"hhfoundation/internal/middleware"
	"hhfoundation/internal/models"
	"hhfoundation/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type AuthHandler struct {
	svc   *service.AuthService
	audit service.AuditWriter
}

func NewAuthHandler(svc *service.AuthService, audit service.AuditWriter) *AuthHandler {
	return &AuthHandler{svc: svc, audit: audit}
}

type RegisterRequest struct {
	FullName string `json:"full_name" binding:"required,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=8"`
	// Sponsor is the sponsor's user code. Only the first account may omit it.
	Sponsor string `json:"sponsor_id"`
}

type credentials struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// session writes the token pair issued by register, login and Google sign-in.
func session(c *gin.Context, status int, u *models.User, access, refresh string) {
	body := gin.H{"access_token": access, "refresh_token": refresh}
	if u != nil {
		body["user"] = u
	}
	c.JSON(status, body)
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, access, refresh, err := h.svc.Register(c.Request.Context(), service.RegisterInput{
		FullName:    req.FullName,
		Email:       req.Email,
		Phone:       req.Phone,
		Password:    req.Password,
		SponsorCode: req.Sponsor,
	})
	if err != nil {
		fail(c, err)
		return
	}
	h.record(c, u.ID, "auth.register")
	session(c, http.StatusCreated, u, access, refresh)
}

func (h *AuthHandler) Login(c *gin.Context)      { h.login(c, false) }
func (h *AuthHandler) AdminLogin(c *gin.Context) { h.login(c, true) }

// login checks credentials. The admin console endpoint additionally refuses
// member accounts, after the password check so it does not reveal which
// emails exist.
func (h *AuthHandler) login(c *gin.Context, staffOnly bool) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, access, refresh, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	action := "auth.login"
	if staffOnly {
		if !u.IsAdmin() {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin access required", "request_id": middleware.GetRequestID(c)})
			return
		}
		action = "auth.admin_login"
	}
	h.record(c, u.ID, action)
	session(c, http.StatusOK, u, access, refresh)
}

// Logout is stateless; tokens simply expire. It is kept for the audit trail.
func (h *AuthHandler) Logout(c *gin.Context) {
	if id := middleware.GetUserID(c); id != 0 {
		h.record(c, id, "auth.logout")
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req struct {
		Current string `json:"current_password" binding:"required"`
		Next    string `json:"new_password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id := middleware.GetUserID(c)
	if err := h.svc.ChangePassword(c.Request.Context(), id, req.Current, req.Next); err != nil {
		fail(c, err)
		return
	}
	h.record(c, id, "auth.change_password")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Refresh exchanges a refresh token for a new pair. Every failure is a 401.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	access, refresh, err := h.svc.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		log.Debug().Err(err).Str("section", "auth").Msg("refresh rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token", "request_id": middleware.GetRequestID(c)})
		return
	}
	session(c, http.StatusOK, nil, access, refresh)
}

func (h *AuthHandler) record(c *gin.Context, userID uint, action string) {
	if h.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "user",
		ResourceID: idString(userID),
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	}
	if err := h.audit.Create(entry); err != nil {
		log.Warn().Err(err).Str("section", "audit").Str("action", action).Msg("audit write failed")
	}
}
