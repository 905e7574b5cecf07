package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	authhandler "tokengate/internal/auth/handler"
	authservice "tokengate/internal/auth/service"
	"tokengate/internal/config"
	"tokengate/internal/db"
	"tokengate/internal/db/migrate"
	"tokengate/internal/events"
	"tokengate/internal/limiter"
	"tokengate/internal/logger"
	"tokengate/internal/security"
	"tokengate/internal/server"
	sessionrepo "tokengate/internal/session/repository"
	userhandler "tokengate/internal/user/handler"
	userrepo "tokengate/internal/user/repository"
	userservice "tokengate/internal/user/service"
	"tokengate/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	if cfg.DatabaseURL == "" {
		zlog.Fatal("DATABASE_URL is not set")
	}
	if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		zlog.Fatal("migrate", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		zlog.Fatal("db", zap.Error(err))
	}
	defer pool.Close()

	users := userrepo.NewPostgresRepository(pool)
	sessions := sessionrepo.NewPostgresStore(pool)
	hasher := security.NewHasher(cfg.BcryptCost)
	tokens := security.NewTokenProvider(
		[]byte(cfg.JWTAccessSecret), []byte(cfg.JWTRefreshSecret),
		cfg.AccessTTL(), cfg.RefreshTTL(),
	)

	var lim limiter.Limiter = limiter.Noop{}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		lim = limiter.NewRedisLimiter(client, 0, 0)
		zlog.Info("login rate limiter enabled", zap.String("redis", cfg.RedisAddr))
	}

	var emitter events.Emitter = events.Noop{}
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		kafkaEmitter := events.NewKafkaEmitter(brokers, cfg.AuthEventsTopic, zlog)
		defer kafkaEmitter.Close()
		emitter = kafkaEmitter
		zlog.Info("auth events enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.AuthEventsTopic))
	}

	authSvc := authservice.NewAuthService(users, sessions, hasher, tokens, cfg.RefreshTTL(), lim, emitter)
	userSvc := userservice.NewUserService(users, hasher)

	validate := validation.New()
	cookies := authhandler.NewCookieWriter(cfg.IsProduction(), cfg.RefreshTTL())

	router := server.NewRouter(server.Deps{
		Log:    zlog,
		Tokens: tokens,
		Users:  users,
		Auth:   authhandler.New(authSvc, validate, cookies, zlog),
		User:   userhandler.New(userSvc, authSvc, validate, cookies, zlog),
	})

	srv := server.New(cfg.HTTPAddr, router, zlog)
	go func() {
		if err := srv.Start(); err != nil {
			zlog.Fatal("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("shutdown", zap.Error(err))
	}
	zlog.Info("server stopped")
}
