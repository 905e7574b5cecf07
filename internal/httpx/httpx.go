// Package httpx shapes every HTTP response: a single success envelope, a
// single error envelope, and the mapping from service errors to statuses.
package httpx

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	authservice "tokengate/internal/auth/service"
	userservice "tokengate/internal/user/service"
	"tokengate/internal/validation"
)

// Response is the success envelope.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is the failure envelope. Details carries per-field validation
// errors and is omitted otherwise.
type ErrorResponse struct {
	Error   string                  `json:"error"`
	Message string                  `json:"message"`
	Details []validation.FieldError `json:"details,omitempty"`
}

// OK writes a 200 success envelope.
func OK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message, Data: data})
}

// Created writes a 201 success envelope.
func Created(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Message: message, Data: data})
}

// Fail writes an error envelope with the given status and aborts the chain.
func Fail(c *gin.Context, status int, errorName, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: errorName, Message: message})
}

// FailValidation writes the 400 envelope carrying field-level details.
func FailValidation(c *gin.Context, details []validation.FieldError) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Validation failed",
		Message: "Invalid input data",
		Details: details,
	})
}

// FromError maps a service error onto the wire. Unrecognized errors become an
// opaque 500; the detail goes to the log, never to the client.
func FromError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, authservice.ErrInvalidCredentials):
		Fail(c, http.StatusUnauthorized, "Authentication failed", err.Error())
	case errors.Is(err, authservice.ErrAccountDeactivated):
		Fail(c, http.StatusUnauthorized, "Account deactivated", err.Error())
	case errors.Is(err, authservice.ErrInvalidRefreshToken):
		Fail(c, http.StatusUnauthorized, "Invalid refresh token", err.Error())
	case errors.Is(err, authservice.ErrEmailTaken),
		errors.Is(err, authservice.ErrUsernameTaken),
		errors.Is(err, userservice.ErrUsernameTaken):
		Fail(c, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, authservice.ErrRateLimited):
		Fail(c, http.StatusTooManyRequests, "Too many requests", err.Error())
	case errors.Is(err, userservice.ErrWrongPassword),
		errors.Is(err, userservice.ErrInvalidRole):
		Fail(c, http.StatusBadRequest, "Bad request", err.Error())
	case errors.Is(err, userservice.ErrNotFound):
		Fail(c, http.StatusNotFound, "Not found", err.Error())
	default:
		if log != nil {
			log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		}
		Fail(c, http.StatusInternalServerError, "Internal server error", "something went wrong")
	}
}
