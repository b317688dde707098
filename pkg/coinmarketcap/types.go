package coinmarketcap

import "encoding/json"

// envelope is the outer shape shared by every Pro API response.
type envelope struct {
	Status apiStatus       `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type apiStatus struct {
	ErrorCode    int     `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
}

// priceQuote is one entry of a "quote" map, keyed by convert currency.
type priceQuote struct {
	Price     *float64 `json:"price"`
	Volume24h *float64 `json:"volume_24h"`
	MarketCap *float64 `json:"market_cap"`
	Timestamp string   `json:"timestamp"`
}

type latestEntry struct {
	ID     int                    `json:"id"`
	Name   string                 `json:"name"`
	Symbol string                 `json:"symbol"`
	Quote  map[string]*priceQuote `json:"quote"`
}

type historicalEntry struct {
	ID     int               `json:"id"`
	Name   string            `json:"name"`
	Symbol string            `json:"symbol"`
	Quotes []historicalPoint `json:"quotes"`
}

type historicalPoint struct {
	Timestamp string                 `json:"timestamp"`
	Quote     map[string]*priceQuote `json:"quote"`
}
