package middleware

import (
	"context"
	"net/http"
	"strings"

	"hhfoundation/config"
	"hhfoundation/internal/auth"
	"hhfoundation/internal/models"

	"github.com/gin-gonic/gin"
)

// AuthRequired validates the bearer JWT and sets user_id, email and role in context.
func AuthRequired(cfg *config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, http.StatusUnauthorized, "missing authorization header")
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, http.StatusUnauthorized, "invalid authorization format")
			return
		}
		claims, err := auth.ParseAccessToken(cfg, parts[1])
		if err != nil {
			abort(c, http.StatusUnauthorized, err.Error())
			return
		}
		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Set("claims", claims)
		c.Next()
	}
}

type UserLoader interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// ActiveAccount rejects users that were deleted or blocked after their token was issued.
// Use after AuthRequired.
func ActiveAccount(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := users.GetByID(c.Request.Context(), GetUserID(c))
		if err != nil {
			abort(c, http.StatusUnauthorized, "account not found")
			return
		}
		if u.IsBlocked {
			abort(c, http.StatusForbidden, "account is blocked")
			return
		}
		c.Set("user", u)
		c.Next()
	}
}

// GetUserID returns the authenticated user ID from context (must be used after AuthRequired).
func GetUserID(c *gin.Context) uint {
	v, _ := c.Get("user_id")
	if v == nil {
		return 0
	}
	return v.(uint)
}

func GetRole(c *gin.Context) string {
	return c.GetString("role")
}

// GetUser returns the user loaded by ActiveAccount, or nil.
func GetUser(c *gin.Context) *models.User {
	v, ok := c.Get("user")
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "request_id": GetRequestID(c)})
}
