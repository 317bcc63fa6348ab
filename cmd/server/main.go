package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/wayfinder-app/wayfinder/internal/audit"
	"github.com/wayfinder-app/wayfinder/internal/auth"
	"github.com/wayfinder-app/wayfinder/internal/cache"
	"github.com/wayfinder-app/wayfinder/internal/config"
	"github.com/wayfinder-app/wayfinder/internal/database"
	"github.com/wayfinder-app/wayfinder/internal/handler"
	"github.com/wayfinder-app/wayfinder/internal/mail"
	"github.com/wayfinder-app/wayfinder/internal/password"
	"github.com/wayfinder-app/wayfinder/internal/rate"
	"github.com/wayfinder-app/wayfinder/internal/repository"
	"github.com/wayfinder-app/wayfinder/internal/token"
)

func main() {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("loading configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}
	if cfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connecting to postgres")
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("connecting to redis")
	}

	hasher, err := password.NewHasher(password.DefaultConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("configuring password hasher")
	}
	issuer, err := token.NewIssuer(token.Config{
		Secret:     []byte(cfg.JWTSecret),
		Issuer:     "wayfinder",
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("configuring token issuer")
	}

	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    true,
		BufferSize: 256,
		DropIfFull: true,
	}, audit.NewZerologSink(logger))
	defer func() {
		if dispatcher != nil {
			dispatcher.Close()
		}
	}()

	engineCfg := auth.DefaultConfig()
	engineCfg.TOTPIssuer = cfg.TOTPIssuer
	engineCfg.ResetURLBase = cfg.ResetURLBase
	engineCfg.Logger = logger

	store := repository.NewPostgres(db)
	engine, err := auth.NewEngine(engineCfg, auth.Deps{
		Store:   store,
		Limiter: rate.New(redisClient, rate.DefaultConfig()),
		Resets:  cache.NewResetStore(redisClient),
		Hasher:  hasher,
		Tokens:  issuer,
		Mailer:  newSender(cfg, logger),
		Audit:   dispatcher,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("building auth engine")
	}

	h := handler.New(engine, store, issuer, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newLogger() zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// newSender picks SMTP when a relay is configured, otherwise logs mail
// bodies so development setups still see reset links.
func newSender(cfg *config.Config, logger zerolog.Logger) mail.Sender {
	if cfg.SMTPHost == "" {
		return mail.NewLogSender(logger)
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("configuring smtp sender")
	}
	return sender
}
