package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Kitbitz/haveekos/bot"
	"github.com/Kitbitz/haveekos/config"
	"github.com/Kitbitz/haveekos/db"
	"github.com/Kitbitz/haveekos/httpapi"
	"github.com/Kitbitz/haveekos/realtime"
	"github.com/Kitbitz/haveekos/services"
	"github.com/Kitbitz/haveekos/sheets"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", "error", err)
		os.Exit(1)
	}

	if err := db.Init(cfg.DB); err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := applyMigrations(ctx, true); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if os.Getenv("AUTO_MIGRATE") == "true" {
		if err := applyMigrations(ctx, false); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
	}

	var (
		orderSync services.OrderSyncer
		exporter  services.OrderExporter
	)
	if cfg.Sheets.Enabled() {
		account, err := sheets.NewServiceAccount(cfg.Sheets.ClientEmail, cfg.Sheets.PrivateKey)
		if err != nil {
			log.Error("sheets credentials invalid", "error", err)
			os.Exit(1)
		}
		client, err := sheets.NewClient(cfg.Sheets.SpreadsheetID, account)
		if err != nil {
			log.Error("sheets client init failed", "error", err)
			os.Exit(1)
		}
		queued := sheets.NewQueuedSyncer(
			sheets.NewSyncer(client, log),
			sheets.NewQueue(sheets.QueueConfig{}, log),
		)
		orderSync = queued
		exporter = queued
		log.Info("spreadsheet sync enabled", "spreadsheet", cfg.Sheets.SpreadsheetID)
	} else {
		log.Info("spreadsheet sync disabled")
	}

	provider := realtime.NewProvider(nil, realtime.Loaders{}, log)
	go provider.Run(ctx)

	if exporter != nil {
		go services.NewAutoExporter(exporter, log).Run(ctx)
	}

	if cfg.Telegram.MessageToken != "" && cfg.Telegram.AdminChatID != 0 {
		notifier, err := bot.NewNotifier(cfg.Telegram, log)
		if err != nil {
			log.Error("telegram notifier init failed", "error", err)
		} else {
			go notifier.Run(ctx, provider)
		}
	}

	server := httpapi.NewServer(cfg.Admin.Password, orderSync, exporter, provider, log)
	log.Info("listening", "addr", cfg.HTTP.Addr)
	if err := server.Serve(ctx, cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
