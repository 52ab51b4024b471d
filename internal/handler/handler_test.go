package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"
	"hhfoundation/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() { gin.SetMode(gin.TestMode) }

// as stands in for the auth middleware.
func as(userID uint, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("role", role)
		c.Next()
	}
}

func call(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// stubUsers implements the lookups the handler tests reach; any other
// UserStore method panics through the nil embedded interface.
type stubUsers struct {
	service.UserStore
	byID map[uint]*models.User
}

func newStubUsers(users ...*models.User) *stubUsers {
	s := &stubUsers{byID: map[uint]*models.User{}}
	for _, u := range users {
		s.byID[u.ID] = u
	}
	return s
}

func (s *stubUsers) GetByID(_ context.Context, id uint) (*models.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *stubUsers) GetByCode(_ context.Context, code string) (*models.User, error) {
	for _, u := range s.byID {
		if u.UserCode == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUsers) UpdateFields(_ context.Context, id uint, updates map[string]interface{}) error {
	u, ok := s.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range updates {
		switch k {
		case "is_blocked":
			u.IsBlocked = v.(bool)
		case "is_receiving_held":
			u.IsReceivingHeld = v.(bool)
		case "level":
			u.Level = v.(string)
		}
	}
	return nil
}

func member(id uint) *models.User {
	return &models.User{ID: id, UserCode: fmt.Sprintf("HH%06d", id), Role: domain.RoleUser,
		Level: domain.LevelStar, IsActivated: true}
}
