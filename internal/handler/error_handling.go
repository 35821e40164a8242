package handler

import (
	"context"
	"errors"
	"net/http"

	"novel-fork/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// errorResponse сопоставляет ошибку сервиса HTTP-статусу и телу ответа.
func errorResponse(err error) (int, models.ErrorResponse) {
	switch {
	case errors.Is(err, models.ErrTokenExpired):
		return http.StatusUnauthorized, models.ErrorResponse{Code: models.ErrCodeTokenExpired, Message: "Token has expired"}
	case errors.Is(err, models.ErrTokenInvalid), errors.Is(err, models.ErrTokenMalformed):
		return http.StatusUnauthorized, models.ErrorResponse{Code: models.ErrCodeTokenInvalid, Message: "Token is invalid or malformed"}
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, models.ErrorResponse{Code: models.ErrCodeNotFound, Message: err.Error()}
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden, models.ErrorResponse{Code: models.ErrCodeForbidden, Message: err.Error()}
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict, models.ErrorResponse{Code: models.ErrCodeConflict, Message: err.Error()}
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest, models.ErrorResponse{Code: models.ErrCodeValidation, Message: err.Error()}
	case errors.Is(err, models.ErrInvalidState):
		return http.StatusUnprocessableEntity, models.ErrorResponse{Code: models.ErrCodeInvalidState, Message: err.Error()}
	case errors.Is(err, models.ErrUpstreamUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, models.ErrorResponse{Code: models.ErrCodeUpstream, Message: "Content generator is unavailable, try again later"}
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, models.ErrorResponse{Code: models.ErrCodeUpstream, Message: "Request was cancelled"}
	default:
		return http.StatusInternalServerError, models.ErrorResponse{Code: models.ErrCodeInternal, Message: "An unexpected internal error occurred"}
	}
}

func handleServiceError(c *gin.Context, err error, logger *zap.Logger) {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		logger.Error("Service error", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	} else {
		logger.Debug("Request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, resp)
}
