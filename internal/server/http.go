// Package server assembles the gin engine and owns the HTTP listener.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	authhandler "tokengate/internal/auth/handler"
	"tokengate/internal/httpx"
	"tokengate/internal/security"
	"tokengate/internal/server/middleware"
	"tokengate/internal/user/domain"
	userhandler "tokengate/internal/user/handler"
)

// Deps carries everything the router needs.
type Deps struct {
	Log    *zap.Logger
	Tokens *security.TokenProvider
	Users  middleware.UserLoader
	Auth   *authhandler.Handler
	User   *userhandler.Handler
}

// NewRouter builds the full route table.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(d.Log), middleware.Logging(d.Log), middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	gate := middleware.Authenticate(d.Tokens, d.Users, d.Log)
	optional := middleware.OptionalAuthenticate(d.Tokens, d.Users, d.Log)

	auth := r.Group("/api/auth")
	{
		auth.POST("/register", d.Auth.Register)
		auth.POST("/login", d.Auth.Login)
		auth.POST("/refresh", d.Auth.Refresh)
		auth.POST("/logout", gate, d.Auth.Logout)
		auth.POST("/logout-all", gate, d.Auth.LogoutAll)
		auth.GET("/me", gate, d.Auth.Me)
	}

	users := r.Group("/api/users", gate)
	{
		users.GET("/profile", d.User.GetProfile)
		users.PUT("/profile", d.User.UpdateProfile)
		users.PUT("/change-password", d.User.ChangePassword)
		users.DELETE("/account", d.User.DeleteAccount)
		users.GET("", middleware.RequireRoles(domain.RoleAdmin), d.User.List)
		users.PUT("/:id/role", middleware.RequireRoles(domain.RoleAdmin), d.User.UpdateRole)
	}

	protected := r.Group("/api/protected")
	{
		protected.GET("/user", gate, greet("Hello, authenticated user"))
		protected.GET("/admin", gate, middleware.RequireRoles(domain.RoleAdmin), greet("Hello, admin"))
		protected.GET("/moderator", gate, middleware.RequireRoles(domain.RoleAdmin, domain.RoleModerator), greet("Hello, moderator"))
		protected.GET("/optional", optional, func(c *gin.Context) {
			if u, ok := middleware.CurrentUser(c); ok {
				httpx.OK(c, "Hello, "+u.Username, gin.H{"authenticated": true})
				return
			}
			httpx.OK(c, "Hello, anonymous", gin.H{"authenticated": false})
		})
	}

	return r
}

func greet(message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, _ := middleware.CurrentUser(c)
		httpx.OK(c, message, gin.H{"user": u})
	}
}

// Server wraps the stdlib http.Server with graceful shutdown.
type Server struct {
	srv *http.Server
	log *zap.Logger
}

func New(addr string, engine *gin.Engine, log *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Start blocks serving requests until Shutdown or a listener failure.
func (s *Server) Start() error {
	s.log.Info("http server listening", zap.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
