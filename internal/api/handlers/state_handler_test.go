package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tradedash/internal/models"
	"tradedash/internal/store"
)

func newTestStore() *store.Store {
	st := store.New(store.Options{InitialBalance: 10000})
	st.SetTickers([]models.TickerData{{Symbol: "BTCUSDT", Price: 50000, Change24h: 1.2}})
	st.UpsertPosition(models.Position{ID: "p1", Symbol: "BTC", Side: models.SideLong, EntryPrice: 50000, Quantity: 0.1})
	st.UpdatePrice("BTC", 51000)
	st.SetTrades([]models.Trade{{ID: 1, Symbol: "ETH"}, {ID: 2, Symbol: "BTC"}, {ID: 3, Symbol: "SOL"}})
	st.SetEquityData([]models.EquityPoint{
		{Timestamp: 1000, Equity: 10000},
		{Timestamp: 2000, Equity: 10050},
		{Timestamp: 3000, Equity: 10100},
	})
	st.SetMetrics(models.Metrics{TotalTrades: 3, WinRate: 66.6})
	st.SetAccount(models.AccountSummary{Balance: 10000, Leverage: 5})
	return st
}

func serve(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

// ============ StateHandler Tests ============

func TestStateHandler_GetSnapshot(t *testing.T) {
	t.Run("returns full state", func(t *testing.T) {
		handler := NewStateHandler(newTestStore())
		w := serve(handler.GetSnapshot, "/api/v1/snapshot")

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}

		var snap store.Snapshot
		if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if len(snap.Tickers) != 1 || snap.Tickers[0].Symbol != "BTC" {
			t.Errorf("tickers = %+v", snap.Tickers)
		}
		if len(snap.Positions) != 1 || snap.Positions[0].CurrentPrice != 51000 {
			t.Errorf("positions = %+v", snap.Positions)
		}
		if snap.CurrentEquity != 10100 || snap.TotalPnL != 100 {
			t.Errorf("equity = %v, pnl = %v", snap.CurrentEquity, snap.TotalPnL)
		}
	})

	t.Run("empty collections are arrays", func(t *testing.T) {
		handler := NewStateHandler(store.New(store.Options{}))
		w := serve(handler.GetSnapshot, "/api/v1/snapshot")

		body := w.Body.String()
		for _, field := range []string{`"tickers":[]`, `"positions":[]`, `"trades":[]`, `"equityData":[]`} {
			if !strings.Contains(body, field) {
				t.Errorf("body missing %s: %s", field, body)
			}
		}
	})

	t.Run("returns 503 when store is nil", func(t *testing.T) {
		handler := &StateHandler{}
		w := serve(handler.GetSnapshot, "/api/v1/snapshot")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
		}
	})
}

func TestStateHandler_GetTrades(t *testing.T) {
	handler := NewStateHandler(newTestStore())

	tests := []struct {
		name   string
		target string
		status int
		ids    []int64
	}{
		{"all", "/api/v1/trades", http.StatusOK, []int64{1, 2, 3}},
		{"limit", "/api/v1/trades?limit=2", http.StatusOK, []int64{1, 2}},
		{"zero means all", "/api/v1/trades?limit=0", http.StatusOK, []int64{1, 2, 3}},
		{"limit above size", "/api/v1/trades?limit=100", http.StatusOK, []int64{1, 2, 3}},
		{"negative", "/api/v1/trades?limit=-1", http.StatusBadRequest, nil},
		{"not a number", "/api/v1/trades?limit=abc", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(handler.GetTrades, tt.target)
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, w.Code)
			}

			if tt.status != http.StatusOK {
				var resp ErrorResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode error: %v", err)
				}
				if resp.Code != CodeInvalidParam || resp.Error == "" {
					t.Errorf("error response = %+v", resp)
				}
				return
			}

			var trades []models.Trade
			if err := json.NewDecoder(w.Body).Decode(&trades); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(trades) != len(tt.ids) {
				t.Fatalf("got %d trades, want %d", len(trades), len(tt.ids))
			}
			for i, id := range tt.ids {
				if trades[i].ID != id {
					t.Errorf("trades[%d].ID = %d, want %d", i, trades[i].ID, id)
				}
			}
		})
	}
}

func TestStateHandler_GetEquity(t *testing.T) {
	handler := NewStateHandler(newTestStore())

	tests := []struct {
		target string
		status int
		count  int
	}{
		{"/api/v1/equity", http.StatusOK, 3},
		{"/api/v1/equity?since=2000", http.StatusOK, 2},
		{"/api/v1/equity?since=5000", http.StatusOK, 0},
		{"/api/v1/equity?since=yesterday", http.StatusBadRequest, 0},
		{"/api/v1/equity?since=-5", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := serve(handler.GetEquity, tt.target)
			if w.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, w.Code)
			}
			if tt.status != http.StatusOK {
				return
			}
			// декодер вычитывает буфер: тело сохраняем до разбора
			body := w.Body.String()
			var points []models.EquityPoint
			if err := json.NewDecoder(strings.NewReader(body)).Decode(&points); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(points) != tt.count {
				t.Errorf("got %d points, want %d", len(points), tt.count)
			}
			if tt.count == 0 && strings.TrimSpace(body) != "[]" {
				t.Errorf("empty result must be [], got %q", body)
			}
		})
	}
}

func TestStateHandler_Collections(t *testing.T) {
	handler := NewStateHandler(newTestStore())

	t.Run("tickers", func(t *testing.T) {
		var list []models.TickerData
		decode(t, serve(handler.GetTickers, "/api/v1/tickers"), &list)
		if len(list) != 1 || list[0].Price != 51000 {
			t.Errorf("tickers = %+v", list)
		}
	})

	t.Run("positions", func(t *testing.T) {
		var list []models.Position
		decode(t, serve(handler.GetPositions, "/api/v1/positions"), &list)
		if len(list) != 1 || list[0].ID != "p1" || list[0].UnrealizedPnl != 100 {
			t.Errorf("positions = %+v", list)
		}
	})

	t.Run("performance", func(t *testing.T) {
		var m models.Metrics
		decode(t, serve(handler.GetPerformance, "/api/v1/performance"), &m)
		if m.TotalTrades != 3 || m.WinRate != 66.6 {
			t.Errorf("metrics = %+v", m)
		}
	})

	t.Run("account", func(t *testing.T) {
		var resp AccountResponse
		decode(t, serve(handler.GetAccount, "/api/v1/account"), &resp)
		if resp.Account.Leverage != 5 || resp.Totals.Balance != 10000 || resp.Totals.Positions != 1 {
			t.Errorf("account = %+v", resp)
		}
	})
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// ============ StatusHandler Tests ============

func TestStatusHandler_GetStatus(t *testing.T) {
	t.Run("reports feed and relay", func(t *testing.T) {
		relay := &MockRelay{Clients: 2, Dropped: 7}
		handler := NewStatusHandler(mockConn(true), NewMockFeedStatus("socket", "connected"), relay)

		var resp StatusResponse
		decode(t, serve(handler.GetStatus, "/api/v1/status"), &resp)

		if !resp.Connected || resp.Clients != 2 || resp.DroppedMessages != 7 {
			t.Errorf("status = %+v", resp)
		}
		if resp.Feed == nil || resp.Feed.Feed != "socket" || resp.Feed.Connections[0].State != "connected" {
			t.Errorf("feed = %+v", resp.Feed)
		}
	})

	t.Run("feed and relay are optional", func(t *testing.T) {
		handler := NewStatusHandler(mockConn(false), nil, nil)
		w := serve(handler.GetStatus, "/api/v1/status")
		if strings.Contains(w.Body.String(), `"feed"`) {
			t.Errorf("feed must be omitted: %s", w.Body.String())
		}
	})

	t.Run("returns 503 without store", func(t *testing.T) {
		handler := NewStatusHandler(nil, nil, nil)
		w := serve(handler.GetStatus, "/api/v1/status")
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
		}
	})
}

func BenchmarkStateHandler_GetSnapshot(b *testing.B) {
	handler := NewStateHandler(newTestStore())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/snapshot", nil)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handler.GetSnapshot(httptest.NewRecorder(), req)
	}
}
