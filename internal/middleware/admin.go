package middleware

import (
	"net/http"

	"hhfoundation/internal/domain"

	"github.com/gin-gonic/gin"
)

// AdminRequired allows ADMIN accounts only. After ActiveAccount the stored role
// wins over the token claim, so a demoted admin loses access at once.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		if u := GetUser(c); u != nil {
			role = u.Role
		}
		if role != domain.RoleAdmin {
			abort(c, http.StatusForbidden, "admin access required")
			return
		}
		c.Next()
	}
}
