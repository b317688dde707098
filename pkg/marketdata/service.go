// Package marketdata serves the dashboard's current price and historical
// closes from a TTL cache in front of the upstream provider, falling back
// to static data whenever the provider cannot be used.
package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/alim08/market_pulse/pkg/cache"
	"github.com/alim08/market_pulse/pkg/clock"
	"github.com/alim08/market_pulse/pkg/logger"
	"github.com/alim08/market_pulse/pkg/metrics"
	"github.com/alim08/market_pulse/pkg/models"
	"go.uber.org/zap"
)

const (
	KindCurrent    = "current"
	KindHistorical = "historical"

	sharedKeyCurrent    = "market-data:current"
	sharedKeyHistorical = "market-data:historical"
)

// Provider is the upstream market-data source.
type Provider interface {
	LatestQuote(ctx context.Context) (models.PriceSnapshot, error)
	HistoricalQuotes(ctx context.Context, days int, end time.Time) (models.HistoricalSeries, error)
}

// SharedStore mirrors provider results across replicas.
type SharedStore interface {
	LoadSnapshot(ctx context.Context, key string, dest interface{}) (fetchedAt time.Time, found bool, err error)
	SaveSnapshot(ctx context.Context, key string, value interface{}, fetchedAt time.Time, ttl time.Duration) error
}

// Recorder archives provider results.
type Recorder interface {
	SaveSnapshot(ctx context.Context, snap models.PriceSnapshot, fetchedAt time.Time) error
	SaveSeries(ctx context.Context, series models.HistoricalSeries, fetchedAt time.Time) error
}

// Config tunes the service.
type Config struct {
	PriceTTL        time.Duration
	HistoryTTL      time.Duration
	HistoryDays     int
	UpstreamTimeout time.Duration
	// MirrorTimeout bounds each shared-cache or archive write. Writes run
	// after the response is ready and never delay it.
	MirrorTimeout time.Duration
}

// DefaultConfig returns the standard cache windows and lookback.
func DefaultConfig() Config {
	return Config{
		PriceTTL:        time.Minute,
		HistoryTTL:      5 * time.Minute,
		HistoryDays:     7,
		UpstreamTimeout: 5 * time.Second,
		MirrorTimeout:   500 * time.Millisecond,
	}
}

// Option customises a Service.
type Option func(*Service)

// WithClock injects the time source used for freshness and fallback dates.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithSharedStore enables the cross-replica cache tier.
func WithSharedStore(st SharedStore) Option {
	return func(s *Service) { s.shared = st }
}

// WithRecorder archives every provider result.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service is the cached market-data fetcher. Its methods never fail; the
// Source field of the result tells live data from fallback.
type Service struct {
	provider Provider
	cfg      Config
	clock    clock.Clock
	shared   SharedStore
	recorder Recorder

	current    *cache.Slot[models.PriceSnapshot]
	historical *cache.Slot[models.HistoricalSeries]

	writes sync.WaitGroup
}

// NewService wires a Service around provider.
func NewService(provider Provider, cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = def.PriceTTL
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = def.HistoryTTL
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = def.HistoryDays
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = def.UpstreamTimeout
	}
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = def.MirrorTimeout
	}

	s := &Service{provider: provider, cfg: cfg, clock: clock.Real{}}
	for _, opt := range opts {
		opt(s)
	}
	s.current = cache.NewSlot[models.PriceSnapshot](cfg.PriceTTL, s.clock)
	s.historical = cache.NewSlot[models.HistoricalSeries](cfg.HistoryTTL, s.clock)
	return s
}

// CurrentPrice returns the freshest available snapshot.
func (s *Service) CurrentPrice(ctx context.Context) models.PriceSnapshot {
	snap, hit := s.current.Load(func() (models.PriceSnapshot, time.Time, bool) {
		ctx, cancel := s.upstreamContext(ctx)
		defer cancel()

		var shared models.PriceSnapshot
		if at, ok := s.loadShared(ctx, KindCurrent, sharedKeyCurrent, &shared, s.current.Fresh); ok && shared.Source == models.SourceProvider {
			return shared, at, true
		}
		metrics.CacheLookups.WithLabelValues(KindCurrent, "miss").Inc()

		snap, err := s.provider.LatestQuote(ctx)
		if err != nil {
			logger.Log.Warn("current price fetch failed, serving fallback", zap.Error(err))
			metrics.FallbackServed.WithLabelValues(KindCurrent).Inc()
			return FallbackCurrent(), time.Time{}, false
		}

		fetchedAt := s.clock.Now()
		s.saveShared(ctx, KindCurrent, sharedKeyCurrent, snap, fetchedAt, s.cfg.PriceTTL)
		if s.recorder != nil {
			s.background(ctx, func(ctx context.Context) {
				if err := s.recorder.SaveSnapshot(ctx, snap, fetchedAt); err != nil {
					logger.Log.Warn("snapshot archive failed", zap.Error(err))
				}
			})
		}
		logger.Log.Info("current price refreshed", zap.Stringer("snapshot", snap))
		return snap, fetchedAt, true
	})
	if hit {
		logger.Log.Debug("using cached current price data")
		metrics.CacheLookups.WithLabelValues(KindCurrent, "hit").Inc()
	}
	return snap
}

// HistoricalSeries returns daily closes in ascending date order.
func (s *Service) HistoricalSeries(ctx context.Context) models.HistoricalSeries {
	series, hit := s.historical.Load(func() (models.HistoricalSeries, time.Time, bool) {
		ctx, cancel := s.upstreamContext(ctx)
		defer cancel()

		var shared models.HistoricalSeries
		if at, ok := s.loadShared(ctx, KindHistorical, sharedKeyHistorical, &shared, s.historical.Fresh); ok && shared.Source == models.SourceProvider && shared.Ascending() {
			return shared, at, true
		}
		metrics.CacheLookups.WithLabelValues(KindHistorical, "miss").Inc()

		now := s.clock.Now()
		series, err := s.provider.HistoricalQuotes(ctx, s.cfg.HistoryDays, now)
		if err == nil && len(series.Quotes) == 0 {
			err = errEmptySeries
		}
		if err != nil {
			logger.Log.Warn("historical data fetch failed, serving fallback", zap.Error(err))
			metrics.FallbackServed.WithLabelValues(KindHistorical).Inc()
			return FallbackHistorical(s.clock.Now()), time.Time{}, false
		}
		series = series.Clone()
		series.Source = models.SourceProvider
		models.SortQuotes(series.Quotes)

		fetchedAt := s.clock.Now()
		s.saveShared(ctx, KindHistorical, sharedKeyHistorical, series, fetchedAt, s.cfg.HistoryTTL)
		if s.recorder != nil {
			s.background(ctx, func(ctx context.Context) {
				if err := s.recorder.SaveSeries(ctx, series, fetchedAt); err != nil {
					logger.Log.Warn("history archive failed", zap.Error(err))
				}
			})
		}
		logger.Log.Info("historical data refreshed", zap.Int("quotes", len(series.Quotes)))
		return series, fetchedAt, true
	})
	if hit {
		logger.Log.Debug("using cached historical data")
		metrics.CacheLookups.WithLabelValues(KindHistorical, "hit").Inc()
	}
	// callers get their own copy so the cached slice stays immutable
	return series.Clone()
}

// Purge drops both in-memory entries. Shared entries expire on their own.
func (s *Service) Purge() {
	s.current.Purge()
	s.historical.Purge()
	metrics.CachePurges.Inc()
	logger.Log.Info("market data cache purged")
}

// Status reports the state of each cache slot.
func (s *Service) Status() map[string]cache.State {
	return map[string]cache.State{
		KindCurrent:    s.current.State(),
		KindHistorical: s.historical.State(),
	}
}

// upstreamContext bounds one refresh. It ignores the triggering request's
// cancellation because other callers may be waiting on the same refresh.
func (s *Service) upstreamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.cfg.UpstreamTimeout)
}

func (s *Service) loadShared(ctx context.Context, kind, key string, dest interface{}, fresh func(time.Time) bool) (time.Time, bool) {
	if s.shared == nil {
		return time.Time{}, false
	}
	at, found, err := s.shared.LoadSnapshot(ctx, key, dest)
	if err != nil {
		logger.Log.Warn("shared cache read failed", zap.String("kind", kind), zap.Error(err))
		return time.Time{}, false
	}
	if !found {
		return time.Time{}, false
	}
	if now := s.clock.Now(); at.After(now) {
		logger.Log.Warn("shared cache entry stamped ahead of local clock, ignoring",
			zap.String("kind", kind), zap.Time("fetched_at", at), zap.Time("now", now))
		return time.Time{}, false
	}
	if !fresh(at) {
		return time.Time{}, false
	}
	metrics.CacheLookups.WithLabelValues(kind, "shared_hit").Inc()
	logger.Log.Debug("using shared cache entry", zap.String("kind", kind), zap.Time("fetched_at", at))
	return at, true
}

func (s *Service) saveShared(ctx context.Context, kind, key string, value interface{}, fetchedAt time.Time, ttl time.Duration) {
	if s.shared == nil {
		return
	}
	s.background(ctx, func(ctx context.Context) {
		if err := s.shared.SaveSnapshot(ctx, key, value, fetchedAt, ttl); err != nil {
			logger.Log.Warn("shared cache write failed", zap.String("kind", kind), zap.Error(err))
		}
	})
}

// background runs a mirror or archive write on its own deadline so a slow
// store cannot hold up the refresh that produced the value.
func (s *Service) background(ctx context.Context, write func(ctx context.Context)) {
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.MirrorTimeout)
		defer cancel()
		write(ctx)
	}()
}

// Wait blocks until pending mirror and archive writes have finished.
func (s *Service) Wait() {
	s.writes.Wait()
}
