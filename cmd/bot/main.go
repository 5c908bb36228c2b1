package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nahida1027/surveybot/internal/config"
	"github.com/nahida1027/surveybot/internal/service"
	"github.com/nahida1027/surveybot/internal/store"
	"github.com/nahida1027/surveybot/internal/telegram"
	"github.com/nahida1027/surveybot/internal/web"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(log)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var st store.Store
	if cfg.DataDir == ":memory:" {
		st = store.NewMemory()
	} else {
		st, err = store.OpenBadger(cfg.DataDir, log)
		if err != nil {
			log.Error("open store", slog.Any("error", err))
			os.Exit(1)
		}
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("close store", slog.Any("error", err))
		}
	}()

	catalog := service.NewCatalog(st)
	sessions := service.NewSessions(st)
	engine := service.NewEngine(catalog)

	notifier, err := telegram.Connect(cfg.BotToken, cfg.GroupID, log)
	if err != nil {
		log.Error("telegram", slog.Any("error", err))
		os.Exit(1)
	}
	finalizer := service.NewFinalizer(sessions, catalog, notifier, log)
	bot := telegram.NewBot(notifier, catalog, sessions, engine, finalizer, cfg.AdminID, log)
	sweeper := service.NewSweeper(sessions, finalizer, notifier, cfg.IdleTimeout, cfg.SweepInterval, log)
	editor := web.NewServer(catalog, sessions, cfg.APIToken, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweeper.Run(ctx)
	go func() {
		if err := editor.Run(ctx, cfg.HTTPAddr); err != nil {
			log.Error("editor api", slog.Any("error", err))
		}
	}()

	log.Info("bot starting")
	bot.Start(ctx)
	log.Info("bot stopped")
}
