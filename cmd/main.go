package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"depthwatch/internal/analytics"
	"depthwatch/internal/book"
	"depthwatch/internal/config"
	"depthwatch/internal/governor"
	"depthwatch/internal/server"
	"depthwatch/internal/store"
	"depthwatch/internal/venue"
	"depthwatch/internal/venue/binance"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("configuration failed")
	}
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	}

	snaps, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		logger.WithError(err).Fatal("snapshot store open failed")
	}
	defer snaps.Close()

	gov := governor.New(governor.Config{
		RequestsPerSecond: cfg.Governor.RequestsPerSecond,
		Burst:             cfg.Governor.Burst,
		QueueTimeout:      cfg.Governor.QueueTimeout,
		QueueWarnDepth:    cfg.Governor.QueueWarnDepth,
	}, logger)

	dial := venue.Dialer(func(symbol string) venue.Feed {
		return binance.New(binance.Config{
			Symbol:        symbol,
			WSBaseURL:     cfg.Venue.WSBaseURL,
			RestBaseURL:   cfg.Venue.RestBaseURL,
			SnapshotLimit: cfg.Venue.SnapshotLimit,
		}, logger)
	})

	anyAnalytics := cfg.Features.OrderFlow || cfg.Features.VolumeProfile ||
		cfg.Features.Anomalies || cfg.Features.Liquidity || cfg.Features.HealthScore

	var recorder *analytics.Recorder
	if anyAnalytics {
		recorder = analytics.NewRecorder()
	}

	var bookRecorder book.Recorder
	if recorder != nil {
		bookRecorder = recorder
	}
	manager := book.NewManager(cfg.Books, dial, gov, bookRecorder, snaps, logger)

	var engine *analytics.Engine
	if anyAnalytics {
		engine = analytics.NewEngine(manager, recorder, snaps, cfg.Analytics, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go manager.RunPersistence(ctx)
	go store.NewPruner(snaps, cfg.Store.Retention, cfg.Store.PruneInterval, logger).Run(ctx)

	srv := server.New(cfg.Server, cfg.Features, manager, engine, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Fatal("server failed")
		}
	case sig := <-interrupt:
		logger.WithField("signal", sig.String()).Info("shutting down")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown incomplete")
	}

	for _, symbol := range manager.Tracked() {
		manager.Evict(symbol)
	}
	logger.Info("goodbye")
}
