package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"github.com/savino/classeviva-HA-custom-integration/internal/app"
	"github.com/savino/classeviva-HA-custom-integration/internal/classeviva"
	"github.com/savino/classeviva-HA-custom-integration/internal/config"
	"github.com/savino/classeviva-HA-custom-integration/internal/jobs"
	"github.com/savino/classeviva-HA-custom-integration/internal/logging"
	"github.com/savino/classeviva-HA-custom-integration/internal/notify"
	"github.com/savino/classeviva-HA-custom-integration/internal/observability"
	"github.com/savino/classeviva-HA-custom-integration/internal/poll"
	"github.com/savino/classeviva-HA-custom-integration/internal/storage"
)

const release = "classeviva-poller@1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer lg.Closer()
	sugar := lg.Sugar

	closeSentry, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, release)
	if err != nil {
		sugar.Warnw("sentry init failed", "err", err)
	}
	defer closeSentry()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := classeviva.New(cfg.BaseURL, cfg.Username, cfg.Password)
	session, err := api.Login(ctx)
	if err != nil {
		var authErr *classeviva.AuthError
		if errors.As(err, &authErr) {
			sugar.Fatalw("invalid classeviva credentials", "err", err)
		}
		sugar.Fatalw("classeviva login failed", "err", err)
	}
	sugar.Infow("logged in", "student_id", session.StudentID,
		"student", session.FirstName+" "+session.LastName)

	store, err := storage.New(cfg.StorageDir, sugar)
	if err != nil {
		sugar.Fatalw("storage init failed", "err", err)
	}

	var bus notify.Notifier = notify.NewLog(sugar)
	if cfg.BotToken != "" && cfg.ChatID != 0 {
		bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			sugar.Fatalw("telegram init failed", "err", err)
		}
		sugar.Infow("telegram notifications enabled", "bot", bot.Self.UserName)
		bus = notify.NewTelegram(bot, cfg.ChatID)
	}

	engine := poll.NewEngine(api, store, bus, sugar, cfg.Retention, cfg.StudentSurname)

	// First refresh before the interval runner takes over, so consumers have
	// a snapshot right away. This also establishes the notification baseline.
	if _, err := engine.RunCycle(ctx); err != nil {
		observability.CaptureErr(err)
		sugar.Warnw("initial poll failed", "err", err)
	}

	runner := jobs.New(ctx)
	runner.Every(cfg.ScanInterval, "poll", func(ctx context.Context) error {
		if _, err := engine.RunCycle(ctx); err != nil {
			observability.CaptureErr(err)
			sugar.Warnw("poll cycle failed", "err", err)
			return err
		}
		return nil
	})

	app.StartHTTP(ctx, cfg.HTTPAddr, cfg.StorageDir, engine, sugar)
	sugar.Infow("classeviva poller started",
		"addr", cfg.HTTPAddr, "interval", cfg.ScanInterval, "retention", cfg.Retention)

	<-ctx.Done()
	sugar.Info("shutting down")
}
