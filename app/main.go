package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"GuestReportBot/internal/config"
	"GuestReportBot/internal/countries"
	"GuestReportBot/internal/graceful"
	"GuestReportBot/internal/intake"
	"GuestReportBot/internal/models/domain"
	"GuestReportBot/internal/moderation"
	"GuestReportBot/internal/publisher"
	"GuestReportBot/internal/repositories"
	"GuestReportBot/internal/sessions"
	"GuestReportBot/internal/telegram"
	"GuestReportBot/internal/utils/logger/handlers/slogpretty"
	"GuestReportBot/internal/utils/logger/sl"

	goredis "github.com/redis/go-redis/v9"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

var Version = "0.1"

func main() {
	cfg := config.MustLoad()

	log := setupLogger(cfg.Env)

	log.Info(
		"starting guest report bot",
		slog.String("env", cfg.Env),
		slog.String("version", Version),
		slog.String("session_backend", cfg.StorageConfig.SessionBackend),
		slog.String("queue_backend", cfg.StorageConfig.QueueBackend),
	)

	if err := run(cfg, log); err != nil {
		log.Error("bot stopped with error", sl.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	cleanup := graceful.Stage{}

	store, janitor, err := setupSessions(cfg, log, cleanup)
	if err != nil {
		return err
	}
	queue, err := setupQueue(cfg, log, cleanup)
	if err != nil {
		return err
	}

	tgBot, err := telegram.New(log, cfg)
	if err != nil {
		return err
	}

	registry := countries.New(log, cfg.IntakeConfig.CountriesFile)
	pub := publisher.New(log, tgBot, domain.ChannelChat(cfg.BotConfig.Channel))
	moderationService := moderation.New(log, queue, pub, cfg.BotConfig.Admins)
	intakeController := intake.New(log, store, tgBot, tgBot, registry, moderationService, intake.Options{
		Channel:   cfg.BotConfig.Channel,
		MaxPhotos: cfg.IntakeConfig.MaxPhotos,
	})

	tgBot.Register(telegram.Services{
		Intake:    intakeController,
		Moderator: moderationService,
		Notifier:  pub,
		Countries: registry,
	})

	polling := graceful.Stage{
		"Telegram bot": func(ctx context.Context) error {
			return tgBot.Shutdown(ctx)
		},
	}
	if janitor != nil {
		polling["Session janitor"] = func(ctx context.Context) error {
			return janitor.Shutdown(ctx)
		}
		go janitor.Start()
	}

	maxSecond := 15 * time.Second
	waitShutdown := graceful.GracefulShutdown(
		context.Background(),
		maxSecond,
		[]graceful.Stage{polling, cleanup},
		log,
	)

	go tgBot.Start()

	<-waitShutdown
	return nil
}

func setupSessions(cfg *config.Config, log *slog.Logger, cleanup graceful.Stage) (sessions.Store, *sessions.Janitor, error) {
	ttl := cfg.IntakeConfig.SessionTTL

	if cfg.StorageConfig.SessionBackend != config.SessionBackendRedis {
		store := sessions.NewMemory(ttl)
		if ttl <= 0 {
			return store, nil, nil
		}
		return store, sessions.NewJanitor(log, store, ttl/2), nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisConfig.Addr,
		Password: cfg.RedisConfig.Password,
		DB:       cfg.RedisConfig.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisConfig.Addr, err)
	}
	log.Info("redis session store connected", slog.String("addr", cfg.RedisConfig.Addr))

	cleanup["Redis client"] = func(context.Context) error {
		return client.Close()
	}
	return sessions.NewRedis(client, cfg.RedisConfig.KeyPrefix, ttl), nil, nil
}

func setupQueue(cfg *config.Config, log *slog.Logger, cleanup graceful.Stage) (moderation.Queue, error) {
	if cfg.StorageConfig.QueueBackend != config.QueueBackendPostgres {
		return moderation.NewMemoryQueue(cfg.StorageConfig.QueueMaxPending), nil
	}

	repositoryService, err := repositories.New(log, cfg)
	if err != nil {
		return nil, err
	}
	cleanup["Repository service"] = func(ctx context.Context) error {
		return repositoryService.Shutdown(ctx)
	}
	return moderation.NewPostgresQueue(repositoryService, cfg.StorageConfig.QueueMaxPending), nil
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog(slog.LevelDebug)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = setupPrettySlog(slog.LevelInfo)
	default:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}

func setupPrettySlog(level slog.Level) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: level,
		},
	}
	handler := opts.NewPrettyHandler(os.Stdout)
	return slog.New(handler)
}
