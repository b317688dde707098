package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alim08/market_pulse/pkg/clock"
	"github.com/alim08/market_pulse/pkg/database"
	"github.com/alim08/market_pulse/pkg/marketdata"
	"github.com/alim08/market_pulse/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 7, 10, 9, 30, 0, 0, time.UTC)

type fakeProvider struct {
	mu             sync.Mutex
	latestCalls    int
	historyCalls   int
	err            error
	snapshot       models.PriceSnapshot
	historicalData models.HistoricalSeries
}

func (f *fakeProvider) LatestQuote(ctx context.Context) (models.PriceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestCalls++
	if f.err != nil {
		return models.PriceSnapshot{}, f.err
	}
	return f.snapshot, nil
}

func (f *fakeProvider) HistoricalQuotes(ctx context.Context, days int, end time.Time) (models.HistoricalSeries, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	if f.err != nil {
		return models.HistoricalSeries{}, f.err
	}
	return f.historicalData, nil
}

func (f *fakeProvider) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latestCalls, f.historyCalls
}

func newFakeProvider() *fakeProvider {
	mcap := 14200000.0
	return &fakeProvider{
		snapshot: models.PriceSnapshot{Price: 0.0213, Volume: 31000000, MarketCap: &mcap, Source: models.SourceProvider},
		historicalData: models.HistoricalSeries{
			Quotes: []models.Quote{
				{Date: testNow.AddDate(0, 0, -1).Truncate(24 * time.Hour), Close: 1.50},
				{Date: testNow.AddDate(0, 0, -2).Truncate(24 * time.Hour), Close: 1.40},
				{Date: testNow.Truncate(24 * time.Hour), Close: 1.55},
			},
			Source: models.SourceProvider,
		},
	}
}

type fakeChecker struct {
	err error
}

func (f fakeChecker) Ping(context.Context) error        { return f.err }
func (f fakeChecker) HealthCheck(context.Context) error { return f.err }
func (f fakeChecker) GetMigrationStatus(context.Context) ([]database.MigrationStatus, error) {
	return []database.MigrationStatus{{Version: 1, Applied: true, Description: "Create price archive tables"}}, f.err
}

type fakeSnapshots struct {
	gotLimit int
	snaps    []database.ArchivedSnapshot
	err      error
}

func (f *fakeSnapshots) SaveSnapshot(context.Context, models.PriceSnapshot, time.Time) error {
	return nil
}

func (f *fakeSnapshots) SaveSeries(context.Context, models.HistoricalSeries, time.Time) error {
	return nil
}

func (f *fakeSnapshots) PruneBefore(context.Context, time.Time) (database.PruneResult, error) {
	return database.PruneResult{}, nil
}

func (f *fakeSnapshots) RecentSnapshots(_ context.Context, limit int) ([]database.ArchivedSnapshot, error) {
	f.gotLimit = limit
	return f.snaps, f.err
}

type testEnv struct {
	provider *fakeProvider
	clock    *clock.Mock
	market   *marketdata.Service
	server   *Server
	handler  http.Handler
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	env := &testEnv{provider: newFakeProvider(), clock: clock.NewMock(testNow)}
	env.market = marketdata.NewService(env.provider, marketdata.DefaultConfig(), marketdata.WithClock(env.clock))

	deps := Deps{Market: env.market, StreamInterval: 20 * time.Millisecond}
	if mutate != nil {
		mutate(&deps)
	}
	srv, err := NewServer(deps)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	env.server = srv
	env.handler = srv.Routes()
	return env
}

func (e *testEnv) get(t *testing.T, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, httptest.NewRequest(http.MethodGet, target, nil), header...)
}

func (e *testEnv) do(t *testing.T, req *http.Request, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestMarketData_Current(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get(t, "/market-data?type=current")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode[CurrentResponse](t, rec)
	assert.Equal(t, 0.0213, body.Price)
	assert.Equal(t, 31000000.0, body.Volume)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, models.SourceProvider, body.Source)
	assert.JSONEq(t, `{"price":0.0213,"volume":31000000,"status":"success","source":"provider"}`, rec.Body.String())

	// second request inside the window is served from cache
	rec = env.get(t, "/api/market-data?type=current")
	require.Equal(t, http.StatusOK, rec.Code)
	latest, _ := env.provider.calls()
	assert.Equal(t, 1, latest)
}

func TestMarketData_HistoricalAscending(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get(t, "/market-data?type=historical")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[HistoricalResponse](t, rec)
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, models.SourceProvider, body.Source)
	require.Len(t, body.Quotes, 3)
	for i := 1; i < len(body.Quotes); i++ {
		assert.False(t, body.Quotes[i].Date.Before(body.Quotes[i-1].Date), "quotes out of order at %d", i)
	}
	assert.Contains(t, rec.Body.String(), `"date":"2025-07-08T00:00:00Z"`)
}

func TestMarketData_FallbackOnUpstreamFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.provider.err = errors.New("connection refused")

	rec := env.get(t, "/market-data?type=current")
	require.Equal(t, http.StatusOK, rec.Code)
	cur := decode[CurrentResponse](t, rec)
	assert.Equal(t, "success", cur.Status)
	assert.Equal(t, models.SourceFallback, cur.Source)
	assert.Equal(t, 0.0142, cur.Price)
	assert.Equal(t, 21500000.0, cur.Volume)
	assert.NotContains(t, rec.Body.String(), "marketCap")

	rec = env.get(t, "/market-data?type=historical")
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode[HistoricalResponse](t, rec)
	assert.Equal(t, models.SourceFallback, hist.Source)
	require.Len(t, hist.Quotes, 7)
	assert.Equal(t, time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC), hist.Quotes[0].Date)
	assert.Equal(t, time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC), hist.Quotes[6].Date)
}

func TestMarketData_InvalidType(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, target := range []string{
		"/market-data?type=bogus",
		"/market-data",
		"/market-data?type=",
		"/market-data?type=CURRENT",
		"/api/market-data?type=historicals",
	} {
		t.Run(target, func(t *testing.T) {
			rec := env.get(t, target)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"Invalid request type"}`, rec.Body.String())
		})
	}

	latest, history := env.provider.calls()
	assert.Zero(t, latest)
	assert.Zero(t, history)
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get(t, "/health")
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	assert.NoError(t, err)

	id := uuid.NewString()
	rec = env.get(t, "/health", requestIDHeader, id)
	assert.Equal(t, id, rec.Header().Get(requestIDHeader))

	rec = env.get(t, "/health", requestIDHeader, "not-a-uuid")
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(requestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodOptions, "/market-data", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "healthy", health["status"])

	rec = env.get(t, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newTestEnv(t, func(d *Deps) {
		d.Redis = fakeChecker{err: errors.New("dial tcp: refused")}
		d.DB = fakeChecker{}
	})
	rec = down.get(t, "/ready")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	ready := decode[map[string]interface{}](t, rec)
	checks := ready["checks"].(map[string]interface{})
	assert.Equal(t, "unavailable", checks["redis"])
	assert.Equal(t, "ok", checks["database"])

	// liveness is unaffected by optional tiers
	rec = down.get(t, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.get(t, "/market-data?type=current")

	rec := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "api_requests_total"))
}

func TestGraphQL(t *testing.T) {
	env := newTestEnv(t, nil)

	query := `{"query":"{ current { price volume marketCap source } historical { source quotes { date close } } }"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(query))
	req.Header.Set("Content-Type", "application/json")
	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Current struct {
				Price     float64  `json:"price"`
				Volume    float64  `json:"volume"`
				MarketCap *float64 `json:"marketCap"`
				Source    string   `json:"source"`
			} `json:"current"`
			Historical struct {
				Source string `json:"source"`
				Quotes []struct {
					Date  string  `json:"date"`
					Close float64 `json:"close"`
				} `json:"quotes"`
			} `json:"historical"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	assert.Empty(t, body.Errors)
	assert.Equal(t, 0.0213, body.Data.Current.Price)
	assert.Equal(t, "provider", body.Data.Current.Source)
	require.NotNil(t, body.Data.Current.MarketCap)
	require.Len(t, body.Data.Historical.Quotes, 3)
	assert.Equal(t, "2025-07-08T00:00:00Z", body.Data.Historical.Quotes[0].Date)
	assert.Equal(t, 1.55, body.Data.Historical.Quotes[2].Close)
}

func TestGraphQL_GetAndErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	env.provider.err = errors.New("upstream down")

	rec := env.get(t, "/graphql?query=%7Bcurrent%7Bprice%20source%7D%7D")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"current":{"price":0.0142,"source":"fallback"}}}`, rec.Body.String())

	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(`{"query":"{ nope }"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"errors"`)
}
