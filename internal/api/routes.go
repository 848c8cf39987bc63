package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradedash/internal/api/handlers"
	"tradedash/internal/api/middleware"
	"tradedash/internal/feed"
	"tradedash/internal/store"
	"tradedash/internal/websocket"
	"tradedash/pkg/utils"
)

// Dependencies - зависимости HTTP слоя
//
// Store обязателен; Hub и Feed могут быть nil (тогда /ws/stream не
// регистрируется, а /api/v1/status не содержит данных фида).
type Dependencies struct {
	Store *store.Store
	Hub   *websocket.Hub
	Feed  feed.Feed

	CORSAllowedOrigins string
	Logger             *utils.Logger
}

// SetupRoutes настраивает все HTTP маршруты сервиса
//
// Структура:
//
//	/api/v1
//	├── GET /snapshot       - полное состояние с агрегатами
//	├── GET /tickers        - тикеры
//	├── GET /positions      - открытые позиции
//	├── GET /trades         - последние сделки (?limit=N)
//	├── GET /equity         - кривая equity (?since=<unix ms>)
//	├── GET /performance    - метрики торговли
//	├── GET /account        - сводка аккаунта
//	└── GET /status         - connected, состояние фида, клиенты relay
//
//	GET /ws/stream  - relay: bootstrap + живые сообщения протокола
//	GET /metrics    - Prometheus
//	GET /health     - liveness
//
// Порядок middleware: Recovery -> Logging -> CORS.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery(deps.Logger))
	router.Use(middleware.Logging(deps.Logger))
	router.Use(middleware.CORS(deps.CORSAllowedOrigins))

	var state handlers.StateReader
	var conn handlers.ConnectionReader
	if deps.Store != nil {
		state = deps.Store
		conn = deps.Store
	}
	stateHandler := handlers.NewStateHandler(state)

	var feedStatus handlers.FeedStatusReader
	if deps.Feed != nil {
		feedStatus = deps.Feed
	}
	var relay handlers.RelayStats
	if deps.Hub != nil {
		relay = deps.Hub
	}
	statusHandler := handlers.NewStatusHandler(conn, feedStatus, relay)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/snapshot", stateHandler.GetSnapshot).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/tickers", stateHandler.GetTickers).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/positions", stateHandler.GetPositions).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/trades", stateHandler.GetTrades).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/equity", stateHandler.GetEquity).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/performance", stateHandler.GetPerformance).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/account", stateHandler.GetAccount).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/status", statusHandler.GetStatus).Methods(http.MethodGet, http.MethodOptions)

	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", deps.Hub.ServeWS).Methods(http.MethodGet)
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	return router
}
