// Package main wires together the sitemapper service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/apetros/sitemapper/internal/api"
	"github.com/apetros/sitemapper/internal/codec"
	"github.com/apetros/sitemapper/internal/config"
	"github.com/apetros/sitemapper/internal/crawler"
	collyfetcher "github.com/apetros/sitemapper/internal/fetcher/colly"
	"github.com/apetros/sitemapper/internal/logging"
	"github.com/apetros/sitemapper/internal/manager"
	"github.com/apetros/sitemapper/internal/metrics"
	"github.com/apetros/sitemapper/internal/queue"
	"github.com/apetros/sitemapper/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	compressor, err := codec.Parse(cfg.Store.Compressor)
	if err != nil {
		logger.Fatal("codec init failed", zap.Error(err))
	}
	graphStore, err := store.New(cfg.Store.Root, compressor)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.RequestTimeout(),
	})
	engine := crawler.New(fetcher, graphStore, crawler.Config{
		UserAgent: cfg.Crawler.UserAgent,
		HostRPS:   cfg.Crawler.HostRPS,
	}, logger.Named("crawler"))

	// Jobs run on their own context so a SIGTERM drains in-flight crawls
	// instead of aborting them mid-write.
	jobQueue := queue.New(engine.Execute, cfg.Queue.Capacity, logger.Named("queue"))
	jobQueue.Start(context.Background())

	index := manager.NewIndex()
	sweeper := manager.NewSweeper(graphStore, index, cfg.Manager.Workers, logger.Named("sweeper"))
	updater := manager.NewUpdater(graphStore, index, cfg.Manager.Workers, logger.Named("updater"))
	watcher := manager.NewWatcher(graphStore, sweeper, updater,
		cfg.Debounce(), cfg.PollInterval(), logger.Named("watcher"))
	go watcher.Run(ctx)

	apiServer := api.NewServer(jobQueue, graphStore, index, watcher, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := jobQueue.Shutdown(shutdownCtx); err != nil {
		logger.Error("queue shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
