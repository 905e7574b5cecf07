// Package middleware holds the gin middleware chain: authentication, role
// checks, request logging, metrics, and panic recovery.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tokengate/internal/httpx"
	"tokengate/internal/security"
	"tokengate/internal/user/domain"
	userrepo "tokengate/internal/user/repository"
)

const (
	authHeader = "Authorization"
	bearerType = "Bearer"
	userKey    = "currentUser"
)

// UserLoader loads the principal attached to a verified token.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// CurrentUser returns the authenticated principal set by Authenticate or
// OptionalAuthenticate, if any.
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*domain.User)
	return u, ok
}

func extractBearer(c *gin.Context) (string, bool) {
	header := c.GetHeader(authHeader)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], bearerType) {
		return "", false
	}
	return strings.TrimSpace(parts[1]), parts[1] != ""
}

// Authenticate verifies the bearer access token and attaches the redacted
// principal to the request context. The session store is never consulted:
// access tokens stand on their own until they expire.
func Authenticate(tokens *security.TokenProvider, users UserLoader, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractBearer(c)
		if !ok {
			httpx.Fail(c, http.StatusUnauthorized, "Authentication failed", "No token provided")
			return
		}

		userID, err := tokens.Verify(token, security.AccessToken)
		if err != nil {
			msg := "Invalid token"
			if err == security.ErrExpiredToken {
				msg = "Token expired"
			}
			httpx.Fail(c, http.StatusUnauthorized, "Authentication failed", msg)
			return
		}

		user, err := users.GetByID(c.Request.Context(), userID)
		if err != nil {
			if err != userrepo.ErrNotFound {
				log.Error("principal lookup failed", zap.Error(err))
			}
			httpx.Fail(c, http.StatusUnauthorized, "Authentication failed", "Invalid token")
			return
		}
		if !user.IsActive {
			httpx.Fail(c, http.StatusUnauthorized, "Authentication failed", "Account is deactivated")
			return
		}

		c.Set(userKey, user.Redacted())
		c.Next()
	}
}

// RequireRoles allows the request through only when the authenticated
// principal holds one of the given roles. A missing principal means the
// pipeline was misordered and reads as unauthenticated, not forbidden.
func RequireRoles(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			httpx.Fail(c, http.StatusUnauthorized, "Authentication failed", "No token provided")
			return
		}
		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}
		httpx.Fail(c, http.StatusForbidden, "Forbidden", "Insufficient permissions")
	}
}

// OptionalAuthenticate attaches the principal when a valid token is presented
// and lets the request through anonymously on any failure. Lookup errors that
// are not simple misses are logged so a broken verifier stays visible.
func OptionalAuthenticate(tokens *security.TokenProvider, users UserLoader, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := extractBearer(c)
		if !ok {
			c.Next()
			return
		}
		userID, err := tokens.Verify(token, security.AccessToken)
		if err != nil {
			c.Next()
			return
		}
		user, err := users.GetByID(c.Request.Context(), userID)
		if err != nil {
			if err != userrepo.ErrNotFound {
				log.Warn("optional auth principal lookup failed", zap.Error(err))
			}
			c.Next()
			return
		}
		if user.IsActive {
			c.Set(userKey, user.Redacted())
		}
		c.Next()
	}
}
