package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieName is the refresh-token carrier cookie.
const CookieName = "refresh_token"

// CookieWriter issues and clears the refresh cookie with consistent flags.
type CookieWriter struct {
	secure bool
	maxAge time.Duration
}

// NewCookieWriter configures the refresh cookie. secure should be true in
// production so the cookie only travels over TLS.
func NewCookieWriter(secure bool, maxAge time.Duration) *CookieWriter {
	return &CookieWriter{secure: secure, maxAge: maxAge}
}

// Set writes the refresh token cookie: HttpOnly, SameSite=Strict, scoped to
// the refresh endpoint's path root.
func (w *CookieWriter) Set(c *gin.Context, token string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(w.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   w.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Clear expires the refresh cookie on the client.
func (w *CookieWriter) Clear(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   w.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// refreshToken reads the carrier cookie; empty string when absent.
func refreshToken(c *gin.Context) string {
	v, err := c.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return v
}
