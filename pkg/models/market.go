package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/alim08/market_pulse/pkg/validation"
)

// Source tells callers whether data came from the live provider or the
// static fallback constants.
type Source string

const (
	SourceProvider Source = "provider"
	SourceFallback Source = "fallback"
)

// PriceSnapshot is the current quote for the tracked token. It is always
// replaced wholesale, never mutated in place.
type PriceSnapshot struct {
	Price     float64  `json:"price" validate:"amount"`
	Volume    float64  `json:"volume" validate:"amount"`
	MarketCap *float64 `json:"market_cap,omitempty" validate:"omitempty,amount"`
	Source    Source   `json:"source" validate:"required,source"`
}

// Validate validates the PriceSnapshot struct
func (p PriceSnapshot) Validate() error {
	if errs := validation.ValidateStruct(p); len(errs) > 0 {
		return errs
	}
	return nil
}

// Quote is one daily close.
type Quote struct {
	Date  time.Time `json:"date" validate:"required"`
	Close float64   `json:"close" validate:"amount"`
}

// HistoricalSeries holds daily closes ordered ascending by date.
type HistoricalSeries struct {
	Quotes []Quote `json:"quotes" validate:"required,min=1,dive"`
	Source Source  `json:"source" validate:"required,source"`
}

// Validate validates the HistoricalSeries struct
func (h HistoricalSeries) Validate() error {
	if errs := validation.ValidateStruct(h); len(errs) > 0 {
		return errs
	}
	return nil
}

// SortQuotes orders quotes ascending by date. Quotes sharing a date keep
// their relative order.
func SortQuotes(quotes []Quote) {
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].Date.Before(quotes[j].Date)
	})
}

// Ascending reports whether quotes[i].Date <= quotes[i+1].Date for every i.
func (h HistoricalSeries) Ascending() bool {
	for i := 1; i < len(h.Quotes); i++ {
		if h.Quotes[i].Date.Before(h.Quotes[i-1].Date) {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no backing array with h.
func (h HistoricalSeries) Clone() HistoricalSeries {
	out := HistoricalSeries{Source: h.Source, Quotes: make([]Quote, len(h.Quotes))}
	copy(out.Quotes, h.Quotes)
	return out
}

// String is used in log lines.
func (p PriceSnapshot) String() string {
	return fmt.Sprintf("price=%.6f volume=%.2f source=%s", p.Price, p.Volume, p.Source)
}
