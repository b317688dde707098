package models

import (
	"math"
	"testing"
	"time"
)

func day(t *testing.T, s string) time.Time {
	ts, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("time.Parse: %v", err)
	}
	return ts
}

func TestPriceSnapshotValidate(t *testing.T) {
	mcap := 1e9
	badCap := -5.0
	cases := []struct {
		name    string
		in      PriceSnapshot
		wantErr bool
	}{
		{"provider with cap", PriceSnapshot{Price: 0.02, Volume: 100, MarketCap: &mcap, Source: SourceProvider}, false},
		{"no cap", PriceSnapshot{Price: 0.02, Volume: 100, Source: SourceProvider}, false},
		{"negative cap", PriceSnapshot{Price: 0.02, Volume: 100, MarketCap: &badCap, Source: SourceProvider}, true},
		{"NaN price", PriceSnapshot{Price: math.NaN(), Source: SourceProvider}, true},
		{"missing source", PriceSnapshot{Price: 1}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := c.in.Validate()
			if (err != nil) != c.wantErr {
				t.Errorf("err = %v; wantErr %v", err, c.wantErr)
			}
		})
	}
}

func TestHistoricalSeriesValidate(t *testing.T) {
	ok := HistoricalSeries{Quotes: []Quote{{Date: day(t, "2025-01-01"), Close: 1}}, Source: SourceProvider}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	empty := HistoricalSeries{Source: SourceProvider}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for empty quotes")
	}
	noDate := HistoricalSeries{Quotes: []Quote{{Close: 1}}, Source: SourceProvider}
	if err := noDate.Validate(); err == nil {
		t.Error("expected error for zero date")
	}
}

func TestSortQuotes(t *testing.T) {
	quotes := []Quote{
		{Date: day(t, "2025-01-03"), Close: 3},
		{Date: day(t, "2025-01-01"), Close: 1},
		{Date: day(t, "2025-01-02"), Close: 2},
		{Date: day(t, "2025-01-01"), Close: 1.5},
	}
	SortQuotes(quotes)
	want := []float64{1, 1.5, 2, 3}
	for i, q := range quotes {
		if q.Close != want[i] {
			t.Errorf("quotes[%d].Close = %v; want %v", i, q.Close, want[i])
		}
	}
	if !(HistoricalSeries{Quotes: quotes}).Ascending() {
		t.Error("expected ascending after sort")
	}
}

func TestClone_DoesNotShareBackingArray(t *testing.T) {
	h := HistoricalSeries{Quotes: []Quote{{Date: day(t, "2025-01-01"), Close: 1}}, Source: SourceProvider}
	c := h.Clone()
	c.Quotes[0].Close = 99
	if h.Quotes[0].Close != 1 {
		t.Error("Clone shares backing array with original")
	}
}
