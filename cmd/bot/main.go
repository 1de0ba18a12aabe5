package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"feedwatch/internal/bot"
	"feedwatch/internal/config"
	"feedwatch/internal/fetcher"
	"feedwatch/internal/metrics"
	"feedwatch/internal/pipeline"
	"feedwatch/internal/scheduler"
	"feedwatch/internal/source"
	"feedwatch/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	// Board catalog and front page share one fetcher so that together they
	// respect the minimum request interval.
	rss := source.NewRSS(fetcher.New(http.DefaultClient, "rss", 0))
	boardFetcher := fetcher.New(http.DefaultClient, "board", cfg.BoardRequestInterval)
	urls := source.BoardURLs{API: cfg.BoardAPIURL, Web: cfg.BoardWebURL, Media: cfg.BoardMediaURL}
	catalog := source.NewCatalog(boardFetcher, urls, log)
	frontPage := source.NewFrontPage(boardFetcher, urls)

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, rss, catalog, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	outbox := pipeline.NewOutbox(cfg.OutboxSize, b, cfg.MessageLimit, cfg.SendInterval, log)
	dispatcher := pipeline.NewDispatcher(store, store, outbox, log)

	loops := []*scheduler.Loop{
		scheduler.New(store, rss, dispatcher, log, scheduler.WithInterval(cfg.RSSPollInterval)),
		scheduler.New(store, catalog, dispatcher, log,
			scheduler.WithInterval(cfg.BoardPollInterval), scheduler.WithConcurrency(cfg.BoardConcurrency)),
		scheduler.New(store, frontPage, dispatcher, log, scheduler.WithInterval(cfg.FrontPagePollInterval)),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot")

	var wg sync.WaitGroup
	if cfg.MetricsAddr != "" {
		wg.Go(func() { metrics.Serve(ctx, cfg.MetricsAddr, log) })
	}
	wg.Go(func() { outbox.Run(ctx) })
	for _, loop := range loops {
		wg.Go(func() { loop.Run(ctx) })
	}

	b.Run(ctx)
	wg.Wait()

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
