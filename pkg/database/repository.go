package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alim08/market_pulse/pkg/metrics"
	"github.com/alim08/market_pulse/pkg/models"
)

const (
	defaultSnapshotLimit = 50
	maxSnapshotLimit     = 1000
)

// ArchivedSnapshot is a provider price snapshot as stored in the archive.
type ArchivedSnapshot struct {
	ID        int64     `json:"id"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	MarketCap *float64  `json:"market_cap,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SnapshotRepository archives provider data.
type SnapshotRepository interface {
	SaveSnapshot(ctx context.Context, snap models.PriceSnapshot, fetchedAt time.Time) error
	SaveSeries(ctx context.Context, series models.HistoricalSeries, fetchedAt time.Time) error
	RecentSnapshots(ctx context.Context, limit int) ([]ArchivedSnapshot, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (PruneResult, error)
}

// PruneResult counts rows removed by PruneBefore.
type PruneResult struct {
	Snapshots int64
	History   int64
}

type snapshotRepository struct {
	db *DB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

// SaveSnapshot appends one price snapshot.
func (r *snapshotRepository) SaveSnapshot(ctx context.Context, snap models.PriceSnapshot, fetchedAt time.Time) (err error) {
	defer observe("save_snapshot", time.Now(), &err)

	query := `
		INSERT INTO price_snapshots (price, volume, market_cap, fetched_at)
		VALUES ($1, $2, $3, $4)`

	var marketCap sql.NullFloat64
	if snap.MarketCap != nil {
		marketCap = sql.NullFloat64{Float64: *snap.MarketCap, Valid: true}
	}

	if _, err := r.db.ExecContext(ctx, query, snap.Price, snap.Volume, marketCap, fetchedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// SaveSeries upserts every daily close of series in one transaction.
func (r *snapshotRepository) SaveSeries(ctx context.Context, series models.HistoricalSeries, fetchedAt time.Time) (err error) {
	defer observe("save_series", time.Now(), &err)

	query := `
		INSERT INTO price_history (date, close, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (date) DO UPDATE SET close = EXCLUDED.close, fetched_at = EXCLUDED.fetched_at`

	err = r.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, q := range series.Quotes {
			if _, err := tx.ExecContext(ctx, query, q.Date.UTC(), q.Close, fetchedAt.UTC()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save series: %w", err)
	}
	return nil
}

// RecentSnapshots returns up to limit snapshots, newest first. Limits outside
// 1..1000 are clamped, and zero selects the default page size.
func (r *snapshotRepository) RecentSnapshots(ctx context.Context, limit int) (_ []ArchivedSnapshot, err error) {
	defer observe("recent_snapshots", time.Now(), &err)

	switch {
	case limit == 0:
		limit = defaultSnapshotLimit
	case limit < 1:
		limit = 1
	case limit > maxSnapshotLimit:
		limit = maxSnapshotLimit
	}

	query := `
		SELECT id, price, volume, market_cap, fetched_at
		FROM price_snapshots
		ORDER BY fetched_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]ArchivedSnapshot, 0, limit)
	for rows.Next() {
		var (
			s         ArchivedSnapshot
			marketCap sql.NullFloat64
		)
		if err := rows.Scan(&s.ID, &s.Price, &s.Volume, &marketCap, &s.FetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if marketCap.Valid {
			v := marketCap.Float64
			s.MarketCap = &v
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snapshots, nil
}

// PruneBefore deletes snapshots fetched before cutoff and daily closes dated
// before it, in one transaction.
func (r *snapshotRepository) PruneBefore(ctx context.Context, cutoff time.Time) (res PruneResult, err error) {
	defer observe("prune", time.Now(), &err)

	err = r.db.Transaction(ctx, func(tx *sql.Tx) error {
		out, err := tx.ExecContext(ctx, `DELETE FROM price_snapshots WHERE fetched_at < $1`, cutoff.UTC())
		if err != nil {
			return err
		}
		if res.Snapshots, err = out.RowsAffected(); err != nil {
			return err
		}

		out, err = tx.ExecContext(ctx, `DELETE FROM price_history WHERE date < $1`, cutoff.UTC())
		if err != nil {
			return err
		}
		res.History, err = out.RowsAffected()
		return err
	})
	if err != nil {
		return PruneResult{}, fmt.Errorf("failed to prune archive: %w", err)
	}
	return res, nil
}

func observe(operation string, start time.Time, err *error) {
	status := metrics.Status(*err)
	metrics.DatabaseOperationDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
	if *err != nil {
		metrics.DatabaseErrors.WithLabelValues(operation).Inc()
	}
}
