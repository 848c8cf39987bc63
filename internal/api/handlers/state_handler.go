package handlers

import (
	"net/http"
	"strconv"

	"tradedash/internal/models"
	"tradedash/internal/store"
)

// StateReader - чтение состояния хранилища
//
// Реализуется *store.Store; в тестах подменяется.
type StateReader interface {
	Snapshot() store.Snapshot
	Tickers() []models.TickerData
	Positions() []models.Position
	Trades(limit int) []models.Trade
	EquitySince(sinceMillis int64) []models.EquityPoint
	Metrics() models.Metrics
	Account() models.AccountSummary
	Totals() store.Totals
}

// StateHandler отдает снимки состояния по HTTP.
//
// Endpoints:
// - GET /api/v1/snapshot - всё состояние с агрегатами
// - GET /api/v1/tickers
// - GET /api/v1/positions
// - GET /api/v1/trades?limit=N - последние N сделок, newest-first
// - GET /api/v1/equity?since=<ms> - точки equity с timestamp >= since
// - GET /api/v1/performance - метрики торговли
// - GET /api/v1/account - сводка аккаунта и агрегаты
//
// Пустые коллекции возвращаются как [], а не null.
type StateHandler struct {
	state StateReader
}

// NewStateHandler создает StateHandler
func NewStateHandler(state StateReader) *StateHandler {
	return &StateHandler{state: state}
}

// GetSnapshot возвращает полный снимок
//
// GET /api/v1/snapshot
//
// Response 200 OK:
//
//	{
//	  "tickers": [{"symbol": "BTC", "price": 50000, ...}],
//	  "positions": [],
//	  "trades": [],
//	  "equityData": [],
//	  "metrics": {...},
//	  "account": {...},
//	  "balance": 10000,
//	  "currentEquity": 10100,
//	  "totalPnL": 100,
//	  "totalPnLPercent": 1,
//	  "connected": true
//	}
func (h *StateHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	snap := h.state.Snapshot()
	if snap.Tickers == nil {
		snap.Tickers = []models.TickerData{}
	}
	if snap.Positions == nil {
		snap.Positions = []models.Position{}
	}
	if snap.Trades == nil {
		snap.Trades = []models.Trade{}
	}
	if snap.EquityData == nil {
		snap.EquityData = []models.EquityPoint{}
	}
	respondJSON(w, http.StatusOK, snap)
}

// GetTickers возвращает тикеры
func (h *StateHandler) GetTickers(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	list := h.state.Tickers()
	if list == nil {
		list = []models.TickerData{}
	}
	respondJSON(w, http.StatusOK, list)
}

// GetPositions возвращает открытые позиции
func (h *StateHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	list := h.state.Positions()
	if list == nil {
		list = []models.Position{}
	}
	respondJSON(w, http.StatusOK, list)
}

// GetTrades возвращает последние сделки
//
// GET /api/v1/trades?limit=50
//
// limit - целое >= 0; 0 или отсутствие - все сделки.
//
// Response 400 Bad Request:
//
//	{"error": "invalid limit", "code": "INVALID_PARAM", "details": "..."}
func (h *StateHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, CodeInvalidParam, "invalid limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	list := h.state.Trades(limit)
	if list == nil {
		list = []models.Trade{}
	}
	respondJSON(w, http.StatusOK, list)
}

// GetEquity возвращает кривую equity
//
// GET /api/v1/equity?since=1700000000000
//
// since - unix миллисекунды, по умолчанию 0.
func (h *StateHandler) GetEquity(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}

	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, CodeInvalidParam, "invalid since", "since must be unix milliseconds")
			return
		}
		since = n
	}

	respondJSON(w, http.StatusOK, h.state.EquitySince(since))
}

// GetPerformance возвращает метрики торговли
func (h *StateHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	respondJSON(w, http.StatusOK, h.state.Metrics())
}

// AccountResponse - сводка аккаунта вместе с производными величинами
type AccountResponse struct {
	Account models.AccountSummary `json:"account"`
	Totals  store.Totals          `json:"totals"`
}

// GetAccount возвращает сводку аккаунта
func (h *StateHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	respondJSON(w, http.StatusOK, AccountResponse{
		Account: h.state.Account(),
		Totals:  h.state.Totals(),
	})
}

func (h *StateHandler) ready(w http.ResponseWriter) bool {
	if h.state == nil {
		respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "state store not initialized", "")
		return false
	}
	return true
}
