package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alim08/market_pulse/pkg/auth"
	"github.com/alim08/market_pulse/pkg/coinmarketcap"
	"github.com/alim08/market_pulse/pkg/config"
	"github.com/alim08/market_pulse/pkg/database"
	"github.com/alim08/market_pulse/pkg/logger"
	"github.com/alim08/market_pulse/pkg/marketdata"
	"github.com/alim08/market_pulse/pkg/redisclient"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.Log
	defer log.Sync()

	log.Info("starting market-pulse API server")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}
	log.Info("configuration loaded",
		zap.Int("port", cfg.HTTPPort),
		zap.String("contract", cfg.ContractAddress),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.Bool("database", cfg.DatabaseURL != ""),
		zap.Bool("admin", cfg.AdminEnabled()))

	provider := coinmarketcap.NewClient(coinmarketcap.Config{
		BaseURL:         cfg.CMCBaseURL,
		APIKey:          cfg.CMCAPIKey,
		ContractAddress: cfg.ContractAddress,
		Convert:         cfg.ConvertCurrency,
		Timeout:         cfg.UpstreamTimeout,
	})

	deps := Deps{StreamInterval: cfg.StreamInterval}
	var opts []marketdata.Option

	// Optional shared cache tier
	if cfg.RedisURL != "" {
		redisClient, err := redisclient.New(cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		deps.Redis = redisClient
		opts = append(opts, marketdata.WithSharedStore(redisClient))
	}

	// Optional snapshot archive
	if cfg.DatabaseURL != "" {
		db, err := database.New(database.NewConfig(cfg.DatabaseURL))
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = db.RunMigrations(ctx)
		cancel()
		if err != nil {
			log.Fatal("failed to run database migrations", zap.Error(err))
		}

		repo := database.NewSnapshotRepository(db)
		deps.DB = db
		deps.Snapshots = repo
		opts = append(opts, marketdata.WithRecorder(repo))
	}

	if cfg.AdminEnabled() {
		authService, err := auth.NewAuthService(auth.Config{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		})
		if err != nil {
			log.Fatal("failed to initialize authentication service", zap.Error(err))
		}
		deps.Auth = authService
	}

	market := marketdata.NewService(provider, marketdata.Config{
		PriceTTL:        cfg.PriceCacheTTL,
		HistoryTTL:      cfg.HistoryCacheTTL,
		HistoryDays:     cfg.HistoryDays,
		UpstreamTimeout: cfg.UpstreamTimeout,
	}, opts...)
	deps.Market = market

	srv, err := NewServer(deps)
	if err != nil {
		log.Fatal("failed to build server", zap.Error(err))
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	market.Wait()

	log.Info("server exited")
}
