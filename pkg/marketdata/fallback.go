package marketdata

import (
	"errors"
	"time"

	"github.com/alim08/market_pulse/pkg/models"
)

const (
	FallbackPrice  = 0.0142
	FallbackVolume = 21500000
)

// fallbackCloses are the static daily closes served oldest first.
var fallbackCloses = [...]float64{1.32, 1.36, 1.38, 1.29, 1.42, 1.45, 1.40}

// FallbackCurrent is the static snapshot served when the provider fails.
func FallbackCurrent() models.PriceSnapshot {
	return models.PriceSnapshot{
		Price:  FallbackPrice,
		Volume: FallbackVolume,
		Source: models.SourceFallback,
	}
}

// FallbackHistorical builds the static series dated on the seven UTC
// calendar days ending on now's day, oldest first. Dates are derived from
// now on every call.
func FallbackHistorical(now time.Time) models.HistoricalSeries {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	n := len(fallbackCloses)

	quotes := make([]models.Quote, n)
	for i, c := range fallbackCloses {
		quotes[i] = models.Quote{
			Date:  today.AddDate(0, 0, i-(n-1)),
			Close: c,
		}
	}
	return models.HistoricalSeries{Quotes: quotes, Source: models.SourceFallback}
}

var errEmptySeries = errors.New("provider returned an empty series")
