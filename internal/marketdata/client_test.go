package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jyron/tradershub/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestClient(serverURL string) *Client {
	return NewClient(config.MarketData{
		BaseURL:        serverURL,
		ApiKey:         "test-key",
		SecretKey:      "test-secret",
		CallsPerMinute: 6000, // keep the limiter out of the way in tests
	}, zap.NewNop())
}

func barsBody(closes map[string]float64, day time.Time) barsResponse {
	resp := barsResponse{Bars: map[string][]bar{}}
	for symbol, c := range closes {
		resp.Bars[symbol] = []bar{{Timestamp: day, Close: c}}
	}
	return resp
}

func TestDailyCloses_Success(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/stocks/bars", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "test-secret", r.Header.Get("APCA-API-SECRET-KEY"))
		assert.Equal(t, "AAPL,MSFT", r.URL.Query().Get("symbols"))
		assert.Equal(t, "1Day", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "iex", r.URL.Query().Get("feed"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(barsBody(map[string]float64{"AAPL": 150.25, "MSFT": 400.5}, day))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	closes, err := client.DailyCloses(context.Background(), []string{"AAPL", "MSFT"}, day)

	assert.NoError(t, err)
	assert.Equal(t, map[string]float64{"AAPL": 150.25, "MSFT": 400.5}, closes)
}

func TestDailyCloses_SymbolWithoutBarIsAbsent(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The provider simply omits symbols that did not trade.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(barsBody(map[string]float64{"AAPL": 150.25}, day))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	closes, err := client.DailyCloses(context.Background(), []string{"AAPL", "DELISTED"}, day)

	assert.NoError(t, err)
	assert.Equal(t, map[string]float64{"AAPL": 150.25}, closes)
	_, ok := closes["DELISTED"]
	assert.False(t, ok)
}

func TestDailyCloses_EmptySymbols(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty symbol list")
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	closes, err := client.DailyCloses(context.Background(), nil, time.Now())

	assert.NoError(t, err)
	assert.Empty(t, closes)
}

func TestDailyCloses_RetriesOnTooManyRequests(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(barsBody(map[string]float64{"AAPL": 150.25}, day))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	closes, err := client.DailyCloses(context.Background(), []string{"AAPL"}, day)

	assert.NoError(t, err)
	assert.Equal(t, map[string]float64{"AAPL": 150.25}, closes)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestDailyCloses_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.DailyCloses(context.Background(), []string{"AAPL"}, time.Now())

	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestDailyCloses_GivesUpAfterServerErrors(t *testing.T) {
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := newTestClient(server.URL)
	_, err := client.DailyCloses(ctx, []string{"AAPL"}, time.Now())

	assert.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}
