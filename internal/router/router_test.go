package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"hhfoundation/internal/handler"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestHelpRoutes_WritesAreLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	limited := 0
	deny := func(c *gin.Context) {
		limited++
		c.AbortWithStatus(http.StatusTooManyRequests)
	}
	// the limiter aborts before any handler runs, so no services are needed
	helpRoutes(r.Group("/helps"), &handler.HelpHandler{}, deny)

	for _, path := range []string{"/helps/send", "/helps/4/payment", "/helps/4/confirm", "/helps/4/dispute"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusTooManyRequests, w.Code, path)
	}
	assert.Equal(t, 4, limited)
}
