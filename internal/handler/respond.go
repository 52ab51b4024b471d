package handler

import (
	"errors"
	"net/http"
	"strconv"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/middleware"
	"hhfoundation/internal/models"
	"hhfoundation/internal/repository"
	"hhfoundation/internal/service"
	"hhfoundation/pkg/cloudinary"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// errorStatus maps domain errors to HTTP status codes. Anything else is a 500.
var errorStatus = map[error]int{
	service.ErrInvalidCreds:        http.StatusUnauthorized,
	service.ErrPasswordNotSet:      http.StatusUnauthorized,
	service.ErrGoogleNotRegistered: http.StatusNotFound,
	service.ErrEmailExists:         http.StatusConflict,
	repository.ErrEmailTaken:       http.StatusConflict,
	service.ErrSponsorRequired:     http.StatusBadRequest,
	service.ErrSponsorNotFound:     http.StatusNotFound,
	service.ErrRegistrationClosed:  http.StatusForbidden,
	service.ErrWeakPassword:        http.StatusBadRequest,
	service.ErrNameRequired:        http.StatusBadRequest,
	service.ErrUserNotFound:        http.StatusNotFound,
	service.ErrCannotEditAdmin:     http.StatusForbidden,

	service.ErrNotActivated:          http.StatusForbidden,
	service.ErrAccountBlocked:        http.StatusForbidden,
	service.ErrMatchingDisabled:      http.StatusServiceUnavailable,
	service.ErrHelpNotFound:          http.StatusNotFound,
	service.ErrInvalidUTR:            http.StatusBadRequest,
	service.ErrAmountMismatch:        http.StatusBadRequest,
	service.ErrScreenshotRequired:    http.StatusBadRequest,
	service.ErrReasonRequired:        http.StatusBadRequest,
	repository.ErrActiveHelpExists:   http.StatusConflict,
	repository.ErrReceiverFull:       http.StatusConflict,
	repository.ErrReceiverIneligible: http.StatusConflict,
	repository.ErrNotParticipant:     http.StatusForbidden,
	repository.ErrInvalidTransition:  http.StatusConflict,
	repository.ErrAlreadySettled:     http.StatusConflict,
	repository.ErrProofAlreadySent:   http.StatusConflict,
	repository.ErrUTRTaken:           http.StatusConflict,

	service.ErrInvalidQuantity:        http.StatusBadRequest,
	service.ErrNotDownline:            http.StatusForbidden,
	service.ErrSelfTransfer:           http.StatusBadRequest,
	service.ErrEpinNotFound:           http.StatusNotFound,
	service.ErrRequestNotFound:        http.StatusNotFound,
	service.ErrCodeSpaceCrowded:       http.StatusServiceUnavailable,
	repository.ErrEpinNotOwned:        http.StatusForbidden,
	repository.ErrEpinNotUnused:       http.StatusConflict,
	repository.ErrAlreadyActivated:    http.StatusConflict,
	repository.ErrInsufficientEpins:   http.StatusConflict,
	repository.ErrRequestNotPending:   http.StatusConflict,
	repository.ErrEpinRequestUTRTaken: http.StatusConflict,

	service.ErrChatSelf:        http.StatusBadRequest,
	service.ErrChatNotAllowed:  http.StatusForbidden,
	service.ErrEmptyMessage:    http.StatusBadRequest,
	service.ErrMessageTooLong:  http.StatusBadRequest,
	service.ErrChatPeerMissing: http.StatusNotFound,

	service.ErrTicketNotFound:      http.StatusNotFound,
	service.ErrTicketClosed:        http.StatusConflict,
	service.ErrTicketFieldsMissing: http.StatusBadRequest,
	service.ErrInvalidCategory:     http.StatusBadRequest,
	service.ErrInvalidStatus:       http.StatusBadRequest,

	service.ErrUnknownSetting:   http.StatusBadRequest,
	service.ErrInvalidSetting:   http.StatusBadRequest,
	service.ErrQueueNotFound:    http.StatusNotFound,
	repository.ErrAlreadyQueued: http.StatusConflict,
	domain.ErrUnknownLevel:      http.StatusBadRequest,

	models.ErrInvalidPaymentMethod: http.StatusBadRequest,
	models.ErrInvalidUPI:           http.StatusBadRequest,
	models.ErrInvalidBankDetails:   http.StatusBadRequest,
	models.ErrInvalidIFSC:          http.StatusBadRequest,
	models.ErrInvalidPhone:         http.StatusBadRequest,
	cloudinary.ErrNotConfigured:    http.StatusServiceUnavailable,
}

func statusFor(err error) int {
	for e, status := range errorStatus {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error", "request_id"}. Unknown errors are logged and hidden.
func fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("section", "http").
			Str("path", c.FullPath()).Msg("request failed")
		msg = "internal server error"
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg, "request_id": middleware.GetRequestID(c)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "request_id": middleware.GetRequestID(c)})
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// parseLimitOffset reads limit/offset for user-facing lists.
func parseLimitOffset(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// recorder writes admin audit entries.
type recorder interface {
	Record(actor service.Actor, action, resource string, resourceID interface{}, meta map[string]interface{})
}

func actor(c *gin.Context) service.Actor {
	return service.Actor{ID: middleware.GetUserID(c), IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

func isAdmin(c *gin.Context) bool {
	return middleware.GetRole(c) == domain.RoleAdmin
}

func idString(id uint) string { return strconv.FormatUint(uint64(id), 10) }
