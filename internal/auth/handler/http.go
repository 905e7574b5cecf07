// Package handler exposes the authentication endpoints over gin.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tokengate/internal/auth/service"
	"tokengate/internal/httpx"
	"tokengate/internal/server/middleware"
	"tokengate/internal/validation"
)

// Handler serves register, login, refresh, logout, logout-all, and me.
type Handler struct {
	auth     *service.AuthService
	validate *validation.Validator
	cookies  *CookieWriter
	log      *zap.Logger
}

func New(auth *service.AuthService, validate *validation.Validator, cookies *CookieWriter, log *zap.Logger) *Handler {
	return &Handler{auth: auth, validate: validate, cookies: cookies, log: log}
}

type registerRequest struct {
	Username  string `json:"username" validate:"required,username"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,password"`
	FirstName string `json:"firstName" validate:"omitempty,max=30"`
	LastName  string `json:"lastName" validate:"omitempty,max=30"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenPayload struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// Register creates the account and opens its first session. The refresh token
// travels only in the cookie, never in the body.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, "Bad request", "Invalid JSON body")
		return
	}
	if details := h.validate.Struct(req); details != nil {
		httpx.FailValidation(c, details)
		return
	}

	user, pair, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		httpx.FromError(c, h.log, err)
		return
	}

	h.cookies.Set(c, pair.RefreshToken)
	httpx.Created(c, "User registered successfully", gin.H{
		"user": user,
		"tokens": tokenPayload{
			AccessToken: pair.AccessToken,
			ExpiresAt:   pair.AccessExpiresAt.Unix(),
		},
	})
}

// Login authenticates and opens a new session alongside any existing ones.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Fail(c, http.StatusBadRequest, "Bad request", "Invalid JSON body")
		return
	}
	if details := h.validate.Struct(req); details != nil {
		httpx.FailValidation(c, details)
		return
	}

	user, pair, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, c.ClientIP())
	if err != nil {
		httpx.FromError(c, h.log, err)
		return
	}

	h.cookies.Set(c, pair.RefreshToken)
	httpx.OK(c, "Login successful", gin.H{
		"user": user,
		"tokens": tokenPayload{
			AccessToken: pair.AccessToken,
			ExpiresAt:   pair.AccessExpiresAt.Unix(),
		},
	})
}

// Refresh rotates the cookie-borne refresh token and returns a new access token.
func (h *Handler) Refresh(c *gin.Context) {
	token := refreshToken(c)
	if token == "" {
		httpx.Fail(c, http.StatusUnauthorized, "Invalid refresh token", "No refresh token provided")
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		h.cookies.Clear(c)
		httpx.FromError(c, h.log, err)
		return
	}

	h.cookies.Set(c, pair.RefreshToken)
	httpx.OK(c, "Token refreshed successfully", tokenPayload{
		AccessToken: pair.AccessToken,
		ExpiresAt:   pair.AccessExpiresAt.Unix(),
	})
}

// Logout ends the session named by the refresh cookie. Safe to repeat.
func (h *Handler) Logout(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, "Authentication failed", "No token provided")
		return
	}
	if err := h.auth.Logout(c.Request.Context(), user.ID, refreshToken(c)); err != nil {
		httpx.FromError(c, h.log, err)
		return
	}
	h.cookies.Clear(c)
	httpx.OK(c, "Logout successful", nil)
}

// LogoutAll ends every session for the caller.
func (h *Handler) LogoutAll(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, "Authentication failed", "No token provided")
		return
	}
	if err := h.auth.LogoutAll(c.Request.Context(), user.ID); err != nil {
		httpx.FromError(c, h.log, err)
		return
	}
	h.cookies.Clear(c)
	httpx.OK(c, "Logged out from all devices", nil)
}

// Me returns the authenticated principal.
func (h *Handler) Me(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		httpx.Fail(c, http.StatusUnauthorized, "Authentication failed", "No token provided")
		return
	}
	httpx.OK(c, "", gin.H{"user": user})
}
