package handler

import (
	"errors"
	"net/http"
	"testing"

	"hhfoundation/internal/repository"
	"hhfoundation/internal/service"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrInvalidCreds, http.StatusUnauthorized},
		{pkgerrors.Wrap(repository.ErrReceiverFull, "reserve"), http.StatusConflict},
		{service.ErrTicketNotFound, http.StatusNotFound},
		{service.ErrNotActivated, http.StatusForbidden},
		{errors.New("connection refused"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestFail_HidesInternalErrors(t *testing.T) {
	r := gin.New()
	r.GET("/boom", func(c *gin.Context) { fail(c, errors.New("dial tcp 10.0.0.5:3306: refused")) })
	r.GET("/known", func(c *gin.Context) { fail(c, service.ErrHelpNotFound) })

	w := call(r, http.MethodGet, "/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode(t, w)["error"])

	w = call(r, http.MethodGet, "/known", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, service.ErrHelpNotFound.Error(), decode(t, w)["error"])
}

func TestIDParam(t *testing.T) {
	r := gin.New()
	r.GET("/x/:id", func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if ok {
			c.JSON(http.StatusOK, gin.H{"id": id})
		}
	})
	assert.Equal(t, http.StatusOK, call(r, http.MethodGet, "/x/12", nil).Code)
	assert.Equal(t, http.StatusBadRequest, call(r, http.MethodGet, "/x/0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, call(r, http.MethodGet, "/x/abc", nil).Code)
}

func TestPagination(t *testing.T) {
	r := gin.New()
	r.GET("/p", func(c *gin.Context) {
		page, limit := parsePagination(c)
		lim, off := parseLimitOffset(c)
		c.JSON(http.StatusOK, gin.H{"page": page, "limit": limit, "lim": lim, "off": off})
	})
	out := decode(t, call(r, http.MethodGet, "/p?page=-2&limit=500&offset=-1", nil))
	assert.EqualValues(t, 1, out["page"])
	assert.EqualValues(t, 20, out["limit"])
	assert.EqualValues(t, 20, out["lim"])
	assert.EqualValues(t, 0, out["off"])
}
