package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/kalgynirae/sudoku/internal/config"
	"github.com/kalgynirae/sudoku/internal/global"
	"github.com/kalgynirae/sudoku/internal/logging"
	"github.com/kalgynirae/sudoku/internal/metrics"
	"github.com/kalgynirae/sudoku/internal/room"
	"github.com/kalgynirae/sudoku/internal/store"
	"github.com/kalgynirae/sudoku/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sudoku: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	prelog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	args, err := config.ParseArgs(os.Args[1:])
	if err != nil {
		return fmt.Errorf("parse args: %w", err)
	}
	cfg, err := config.Load(args, prelog)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.Logging)
	logger.Info().Str("listen_addr", cfg.ListenAddr).Msg("starting server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Database.URI, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	limits := room.Limits{
		MaxSessionsPerRoom:     cfg.MaxSessionsPerRoom,
		MaxBoardDiffGroupSize:  cfg.MaxBoardDiffGroupSize,
		MaxBoardDiffGroupQueue: cfg.MaxBoardDiffGroupQueue,
	}
	registry := global.New(db, limits, logger)

	transportCfg := transport.Config{
		CPURejectThreshold: cfg.CPURejectThresholdPercent,
		MaxConnections:     cfg.MaxConnections,
		SessionRatePerSec:  cfg.SessionRatePerSec,
		SessionRateBurst:   cfg.SessionRateBurst,
	}
	srv := transport.New(registry, transportCfg, logger)
	srv.StartMonitoring(ctx, 5*time.Second)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	stopWriteback := startWritebackLoop(ctx, registry, db, cfg.DirtyScanConcurrency, logger)

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server error")
		}
		stop()
	}

	srv.PrepareShutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}

	<-stopWriteback
	writeback(context.Background(), registry, db, cfg.DirtyScanConcurrency, logger)

	return nil
}

// startWritebackLoop periodically persists dirty rooms until ctx is
// canceled, then returns a channel that closes once the loop has
// exited (so the caller can run one final writeback afterward without
// racing the periodic one).
func startWritebackLoop(ctx context.Context, registry *global.State, db *store.Store, concurrency int, logger zerolog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				writeback(ctx, registry, db, concurrency, logger)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

func writeback(ctx context.Context, registry *global.State, db *store.Store, concurrency int, logger zerolog.Logger) {
	dirty := registry.DirtyRooms(concurrency)
	metrics.SetRoomsActive(registry.RoomCount())
	if len(dirty) == 0 {
		return
	}

	start := time.Now()
	entries := make([]store.Entry, 0, len(dirty))
	for _, dr := range dirty {
		entries = append(entries, store.Entry{ID: dr.ID, Board: dr.State.ClearDirty()})
	}
	if err := db.WriteDirty(ctx, entries); err != nil {
		logger.Error().Err(err).Int("rooms", len(entries)).Msg("writeback failed")
		return
	}
	metrics.ObserveWriteback(time.Since(start).Seconds(), len(entries))
	logger.Debug().Int("rooms", len(entries)).Dur("elapsed", time.Since(start)).Msg("writeback complete")
}
