package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"presence/internal/attendance"
	"presence/internal/auth"
	"presence/internal/identity"
)

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, attendance.ErrValidation), errors.Is(err, identity.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrNotFound), errors.Is(err, identity.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrInvalidState), errors.Is(err, identity.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrInactive):
		return http.StatusForbidden
	case errors.Is(err, attendance.ErrUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (a *API) fail(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		msg = "internal error"
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func tooLarge(c *gin.Context) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
}

// bindJSON decodes the body into obj and writes the error response when
// decoding fails.
func bindJSON(c *gin.Context, obj any) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}
	if isTooLarge(err) {
		tooLarge(c)
	} else {
		badRequest(c, err.Error())
	}
	return false
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || errors.Is(err, errPhotoTooLarge)
}

// imageError reports a bad image field, or 413 when it is oversized.
func imageError(c *gin.Context, err error, msg string) {
	if isTooLarge(err) {
		tooLarge(c)
		return
	}
	badRequest(c, msg)
}
