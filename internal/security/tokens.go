package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, carries a bad
	// signature, or was signed for a different class.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token's embedded expiry has elapsed.
	ErrExpiredToken = errors.New("token expired")
)

// TokenClass selects which signing secret and lifetime a token uses.
type TokenClass int

const (
	// AccessToken is the short-lived bearer credential; never stored server-side.
	AccessToken TokenClass = iota
	// RefreshToken is the long-lived credential; additionally gated by the session store.
	RefreshToken
)

// Claims holds the JWT claims for both token classes. The jti makes every
// issued token unique, so rotation always produces a distinct replacement
// string even within the same second.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenProvider issues and verifies HS256 access and refresh tokens.
// The two classes use distinct secrets; a token signed with one class's
// secret never verifies under the other.
type TokenProvider struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenProvider returns a TokenProvider with the given per-class secrets and lifetimes.
func NewTokenProvider(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		accessSecret:  accessSecret,
		refreshSecret: refreshSecret,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// TTL returns the configured lifetime for the given class.
func (p *TokenProvider) TTL(class TokenClass) time.Duration {
	if class == RefreshToken {
		return p.refreshTTL
	}
	return p.accessTTL
}

func (p *TokenProvider) secret(class TokenClass) []byte {
	if class == RefreshToken {
		return p.refreshSecret
	}
	return p.accessSecret
}

// Issue signs a token of the given class for userID. Returns the token string
// and its expiry. No side effects; two calls always yield distinct strings.
func (p *TokenProvider) Issue(userID string, class TokenClass) (string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt := now.Add(p.TTL(class))
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, err := t.SignedString(p.secret(class))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Verify checks the token's signature against the class secret and its
// embedded expiry against the current time. Returns the principal id, or
// ErrExpiredToken / ErrInvalidToken. Malformed input never panics.
func (p *TokenProvider) Verify(tokenString string, class TokenClass) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.secret(class), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
