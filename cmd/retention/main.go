// Command retention periodically deletes archived market data older than
// the configured retention window.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alim08/market_pulse/pkg/config"
	"github.com/alim08/market_pulse/pkg/database"
	"github.com/alim08/market_pulse/pkg/logger"
	"github.com/alim08/market_pulse/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (database.PruneResult, error)
}

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup always happens.
func run() int {
	// Initialize logger
	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}
	defer logger.Log.Sync()

	cfg, err := config.LoadRetention()
	if err != nil {
		logger.Log.Error("failed to load config", zap.Error(err))
		return 2
	}

	db, err := database.New(database.NewConfig(cfg.DatabaseURL))
	if err != nil {
		logger.Log.Error("failed to connect to database", zap.Error(err))
		return 1
	}
	defer db.Close()

	repo := database.NewSnapshotRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Info("retention service started",
		zap.Duration("retention", cfg.Retention),
		zap.Duration("interval", cfg.Interval),
		zap.Bool("once", cfg.Once))

	if cfg.Once {
		if err := runRetention(ctx, repo, time.Now(), cfg.Retention); err != nil {
			return 1
		}
		return 0
	}

	var served chan struct{}
	if cfg.MetricsAddr != "" {
		served = make(chan struct{})
		go func() {
			defer close(served)
			serveMetrics(ctx, newMetricsServer(cfg.MetricsAddr))
		}()
	}

	runRetention(ctx, repo, time.Now(), cfg.Retention)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("retention service shutting down")
			if served != nil {
				<-served
			}
			return 0
		case now := <-ticker.C:
			runRetention(ctx, repo, now, cfg.Retention)
		}
	}
}

func newMetricsServer(addr string) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// serveMetrics runs srv until ctx is cancelled.
func serveMetrics(ctx context.Context, srv *http.Server) {
	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("metrics server listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Error("metrics server failed", zap.Error(err))
		}
		return
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("metrics server forced to shutdown", zap.Error(err))
	}
}

// runRetention prunes everything older than now-retention and records the outcome.
func runRetention(ctx context.Context, repo pruner, now time.Time, retention time.Duration) error {
	cutoff := now.Add(-retention).UTC()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	res, err := repo.PruneBefore(ctx, cutoff)
	metrics.RetentionRuns.WithLabelValues(metrics.Status(err)).Inc()
	if err != nil {
		logger.Log.Error("retention run failed", zap.Error(err), zap.Time("cutoff", cutoff))
		return err
	}

	metrics.RetentionDeletedRows.WithLabelValues("price_snapshots").Add(float64(res.Snapshots))
	metrics.RetentionDeletedRows.WithLabelValues("price_history").Add(float64(res.History))
	logger.Log.Info("retention run completed",
		zap.Time("cutoff", cutoff),
		zap.Int64("snapshots_deleted", res.Snapshots),
		zap.Int64("history_deleted", res.History))
	return nil
}
