package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/alim08/market_pulse/pkg/auth"
	"github.com/alim08/market_pulse/pkg/logger"
	"go.uber.org/zap"
)

func (s *Server) purgeCacheHandler(w http.ResponseWriter, r *http.Request) {
	s.market.Purge()
	subject := ""
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		subject = claims.Subject
	}
	logger.Log.Info("cache purged by admin",
		zap.String("subject", subject),
		zap.String("request_id", requestIDFrom(r.Context())))
	writeJSON(w, http.StatusOK, map[string]string{"status": "purged"})
}

func (s *Server) cacheStatusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Status())
}

// snapshotsHandler lists archived provider snapshots, newest first.
func (s *Server) snapshotsHandler(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "Snapshot archive not configured")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	snaps, err := s.snapshots.RecentSnapshots(ctx, limit)
	if err != nil {
		logger.Log.Error("failed to list snapshots", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list snapshots")
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

func (s *Server) migrationsHandler(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusServiceUnavailable, "Snapshot archive not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status, err := s.db.GetMigrationStatus(ctx)
	if err != nil {
		logger.Log.Error("failed to get migration status", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to get migration status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}
