package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/alim08/market_pulse/pkg/auth"
	"github.com/alim08/market_pulse/pkg/cache"
	"github.com/alim08/market_pulse/pkg/database"
	"github.com/alim08/market_pulse/pkg/metrics"
	"github.com/alim08/market_pulse/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"
)

// marketService is the cached fetcher behind every market-data route.
type marketService interface {
	CurrentPrice(ctx context.Context) models.PriceSnapshot
	HistoricalSeries(ctx context.Context) models.HistoricalSeries
	Purge()
	Status() map[string]cache.State
}

type pinger interface {
	Ping(ctx context.Context) error
}

type archive interface {
	HealthCheck(ctx context.Context) error
	GetMigrationStatus(ctx context.Context) ([]database.MigrationStatus, error)
}

// Deps are the collaborators a Server is built from. Only Market is
// required; optional tiers are left nil when not configured.
type Deps struct {
	Market         marketService
	Redis          pinger
	DB             archive
	Snapshots      database.SnapshotRepository
	Auth           *auth.AuthService
	StreamInterval time.Duration
}

// Server serves the market-data HTTP API.
type Server struct {
	market         marketService
	redis          pinger
	db             archive
	snapshots      database.SnapshotRepository
	auth           *auth.AuthService
	streamInterval time.Duration

	upgrader  websocket.Upgrader
	schema    graphql.Schema
	quit      chan struct{}
	closeOnce sync.Once
}

// NewServer builds a Server and its GraphQL schema.
func NewServer(d Deps) (*Server, error) {
	if d.StreamInterval <= 0 {
		d.StreamInterval = 15 * time.Second
	}
	s := &Server{
		market:         d.Market,
		redis:          d.Redis,
		db:             d.DB,
		snapshots:      d.Snapshots,
		auth:           d.Auth,
		streamInterval: d.StreamInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		quit: make(chan struct{}),
	}
	schema, err := s.createSchema()
	if err != nil {
		return nil, err
	}
	s.schema = schema
	return s, nil
}

// Routes returns the chi router with the full middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware)
	r.Use(metricsMiddleware)

	r.Get("/health", s.healthHandler)
	r.Get("/ready", s.readyHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/market-data", s.marketDataHandler)
	r.Get("/api/market-data", s.marketDataHandler)
	r.Get("/market-data/stream", s.streamHandler)

	r.Get("/graphql", s.graphqlHandler)
	r.Post("/graphql", s.graphqlHandler)

	if s.auth != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.AuthMiddleware)
			r.Use(s.auth.RoleMiddleware(auth.RoleAdmin))

			r.Post("/cache/purge", s.purgeCacheHandler)
			r.Get("/cache/status", s.cacheStatusHandler)
			r.Get("/snapshots", s.snapshotsHandler)
			r.Get("/migrations", s.migrationsHandler)
		})
	}

	return r
}

// Close ends open streams. The HTTP server's Shutdown does not track
// hijacked websocket connections.
func (s *Server) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
}
