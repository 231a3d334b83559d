package server

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kordia/kordia-go/internal/errors"
	"github.com/kordia/kordia-go/internal/offline"
)

// statusFor maps an error onto the HTTP status the control API answers with
func statusFor(err error) int {
	if stderrors.Is(err, offline.ErrInFlight) {
		return http.StatusConflict
	}
	appErr, ok := errors.AsAppError(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Type {
	case errors.ErrTypeNetwork:
		// Whatever the host answered, the daemon itself is fine.
		return http.StatusBadGateway
	case errors.ErrTypeDownload:
		return http.StatusBadGateway
	}
	if appErr.StatusCode >= 400 {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{
		"error":   errors.UserMessage(err),
		"type":    string(errors.GetErrorType(err)),
		"details": err.Error(),
	})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error": message,
		"type":  string(errors.ErrTypeValidation),
	})
}
