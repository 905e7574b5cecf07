// Package handler exposes the profile and administration endpoints over gin.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	authhandler "tokengate/internal/auth/handler"
	"tokengate/internal/httpx"
	"tokengate/internal/server/middleware"
	"tokengate/internal/user/repository"
	"tokengate/internal/user/service"
	"tokengate/internal/validation"
)

// Deactivator ends an account: marks it inactive and revokes its sessions.
type Deactivator interface {
	Deactivate(ctx context.Context, userID string) error
}

// Handler serves the /api/users routes.
type Handler struct {
	users      *service.UserService
	deactivate Deactivator
	validate   *validation.Validator
	cookies    *authhandler.CookieWriter
	log        *zap.Logger
}

func New(users *service.UserService, deactivate Deactivator, validate *validation.Validator, cookies *authhandler.CookieWriter, log *zap.Logger) *Handler {
	return &Handler{users: users, deactivate: deactivate, validate: validate, cookies: cookies, log: log}
}

// GetProfile returns the caller's own record.
func (h *Handler) GetProfile(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, "Authentication failed", "No token provided")
		return
	}
	httpx.OK(c, "", gin.H{"user": user})
}

type updateProfileRequest struct {
	FirstName string `json:"firstName" validate:"omitempty,max=30"`
	LastName  string `json:"lastName" validate:"omitempty,max=30"`
	Username  string `json:"username" validate:"omitempty,username"`
}

// UpdateProfile applies the provided fields to the caller's record.
func (h *Handler) UpdateProfile(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, "Authentication failed", "No token provided")
		return
	}
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, "Bad request", "Invalid JSON body")
		return
	}
	if details := h.validate.Struct(req); details != nil {
		httpx.FailValidation(c, details)
		return
	}

	updated, err := h.users.UpdateProfile(c.Request.Context(), user.ID, service.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
	})
	if err != nil {
		httpx.FromError(c, h.log, err)
		return
	}
	httpx.OK(c, "Profile updated successfully", gin.H{"user": updated})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,password"`
}

// ChangePassword swaps the caller's password after verifying the current one.
func (h *Handler) ChangePassword(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, "Authentication failed", "No token provided")
		return
	}
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, "Bad request", "Invalid JSON body")
		return
	}
	if details := h.validate.Struct(req); details != nil {
		httpx.FailValidation(c, details)
		return
	}

	if err := h.users.ChangePassword(c.Request.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		httpx.FromError(c, h.log, err)
		return
	}
	httpx.OK(c, "Password changed successfully", nil)
}

// DeleteAccount deactivates the caller and revokes every session.
func (h *Handler) DeleteAccount(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, "Authentication failed", "No token provided")
		return
	}
	if err := h.deactivate.Deactivate(c.Request.Context(), user.ID); err != nil {
		httpx.FromError(c, h.log, err)
		return
	}
	h.cookies.Clear(c)
	httpx.OK(c, "Account deactivated successfully", nil)
}

// List returns a filtered page of users. Admin only (enforced by the router).
func (h *Handler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	filter := repository.ListFilter{
		Search: c.Query("search"),
		Role:   c.Query("role"),
		Page:   page,
		Limit:  limit,
	}
	if v := c.Query("isActive"); v != "" {
		active := v == "true"
		filter.IsActive = &active
	}

	result, err := h.users.List(c.Request.Context(), filter)
	if err != nil {
		httpx.FromError(c, h.log, err)
		return
	}
	httpx.OK(c, "", gin.H{
		"users": result.Users,
		"pagination": gin.H{
			"page":       result.Page,
			"limit":      result.Limit,
			"total":      result.Total,
			"totalPages": result.TotalPages,
		},
	})
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user moderator admin"`
}

// UpdateRole sets another user's role. Admin only (enforced by the router).
func (h *Handler) UpdateRole(c *gin.Context) {
	var req updateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, "Bad request", "Invalid JSON body")
		return
	}
	if details := h.validate.Struct(req); details != nil {
		httpx.FailValidation(c, details)
		return
	}

	updated, err := h.users.UpdateRole(c.Request.Context(), c.Param("id"), req.Role)
	if err != nil {
		httpx.FromError(c, h.log, err)
		return
	}
	httpx.OK(c, "Role updated successfully", gin.H{"user": updated})
}
