package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tradedash/internal/store"
)

// ============================================================
// Prometheus метрики сервиса
// ============================================================
//
// Подсистемы:
// - feed: входящие фиды (сокет, Binance), переподключения, REST опрос
// - store: агрегаты хранилища и счётчик мутаций
// - relay: downstream WebSocket клиенты
// - http: API запросы

const namespace = "tradedash"

// ============ Фиды ============

// FeedMessages - обработанные входящие сообщения по типам
var FeedMessages = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "messages_total",
		Help:      "Total number of processed feed messages",
	},
	[]string{"feed", "type"}, // type: price_update, heartbeat, unknown, book_ticker...
)

// Причины отброса сообщений фида (метка reason)
const (
	DropMalformed   = "malformed"    // не JSON или нет тега type
	DropInvalid     = "invalid"      // тег известен, поля не прошли проверку
	DropUnknownType = "unknown_type" // тег не из протокола
)

// FeedDropped - отброшенные сообщения (невалидный JSON, поля, числа)
var FeedDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "dropped_messages_total",
		Help:      "Number of feed messages dropped as malformed",
	},
	[]string{"feed", "reason"}, // reason: malformed, invalid, unknown_type
)

// FeedReconnects - запланированные переподключения
var FeedReconnects = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "reconnects_total",
		Help:      "Number of scheduled reconnect attempts",
	},
	[]string{"conn"},
)

// FeedConnections - статус соединений (1=open, 0=нет)
var FeedConnections = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "connection_status",
		Help:      "Feed connection status (1=open, 0=not open)",
	},
	[]string{"conn"},
)

// RESTPolls - результаты опроса 24h тикеров
var RESTPolls = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "rest_polls_total",
		Help:      "Number of 24h ticker polls by result",
	},
	[]string{"result"}, // success, error
)

// RESTPollLatency - время запроса 24h тикеров
var RESTPollLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "feed",
		Name:      "rest_poll_latency_ms",
		Help:      "24h ticker poll latency in milliseconds",
		Buckets:   []float64{25, 50, 100, 200, 500, 1000, 2000, 5000},
	},
)

// ============ Хранилище ============

// StoreMutations - коммиты хранилища по типам
var StoreMutations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "mutations_total",
		Help:      "Number of committed store mutations",
	},
	[]string{"kind"},
)

// StoreEquity - текущая equity
var StoreEquity = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "equity_usdt",
		Help:      "Current account equity",
	},
)

// StoreBalance - авторитетный баланс
var StoreBalance = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "balance_usdt",
		Help:      "Current account cash balance",
	},
)

// StoreUnrealizedPnl - сумма нереализованного PnL
var StoreUnrealizedPnl = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "unrealized_pnl_usdt",
		Help:      "Sum of unrealized PnL over open positions",
	},
)

// StorePositions - количество открытых позиций
var StorePositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "open_positions",
		Help:      "Number of open positions",
	},
)

// StoreConnected - флаг подключения хранилища
var StoreConnected = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "connected",
		Help:      "Upstream connectivity flag (1=connected)",
	},
)

// ============ Relay ============

// RelayClients - подключенные downstream клиенты
var RelayClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "clients",
		Help:      "Number of connected relay clients",
	},
)

// RelayBroadcasts - разосланные сообщения
var RelayBroadcasts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "broadcasts_total",
		Help:      "Number of messages broadcast to relay clients",
	},
	[]string{"type"},
)

// RelayDropped - сообщения, не доставленные медленным клиентам
var RelayDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "dropped_messages_total",
		Help:      "Number of relay messages dropped for slow clients",
	},
)

// ============ HTTP ============

// HTTPRequests - запросы к API
var HTTPRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Number of HTTP requests",
	},
	[]string{"method", "route", "status"},
)

// HTTPLatency - время обработки запросов
var HTTPLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_latency_ms",
		Help:      "HTTP request latency in milliseconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
	},
	[]string{"route"},
)

// ============ Вспомогательные функции ============

// RecordFeedMessage учитывает обработанное сообщение фида
func RecordFeedMessage(feed, msgType string) {
	FeedMessages.WithLabelValues(feed, msgType).Inc()
}

// RecordFeedDropped учитывает отброшенное сообщение
func RecordFeedDropped(feed, reason string) {
	FeedDropped.WithLabelValues(feed, reason).Inc()
}

// RecordReconnect учитывает запланированное переподключение
func RecordReconnect(conn string) {
	FeedReconnects.WithLabelValues(conn).Inc()
}

// UpdateConnectionStatus обновляет статус соединения
func UpdateConnectionStatus(conn string, open bool) {
	if open {
		FeedConnections.WithLabelValues(conn).Set(1)
	} else {
		FeedConnections.WithLabelValues(conn).Set(0)
	}
}

// RecordRESTPoll учитывает результат опроса тикеров
func RecordRESTPoll(err error, latencyMs float64) {
	result := "success"
	if err != nil {
		result = "error"
	}
	RESTPolls.WithLabelValues(result).Inc()
	RESTPollLatency.Observe(latencyMs)
}

// RecordBroadcast учитывает сообщение, разосланное клиентам relay
func RecordBroadcast(msgType string) {
	RelayBroadcasts.WithLabelValues(msgType).Inc()
}

// RecordHTTPRequest учитывает запрос к API
func RecordHTTPRequest(method, route string, status int, latencyMs float64) {
	HTTPRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	HTTPLatency.WithLabelValues(route).Observe(latencyMs)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// StoreObserver возвращает подписчика хранилища, обновляющего gauges
func StoreObserver() store.Subscriber {
	return func(ch store.Change) {
		StoreMutations.WithLabelValues(string(ch.Kind)).Inc()
		StoreEquity.Set(ch.Totals.CurrentEquity)
		StoreBalance.Set(ch.Totals.Balance)
		StoreUnrealizedPnl.Set(ch.Totals.UnrealizedPnl)
		StorePositions.Set(float64(ch.Totals.Positions))
		if ch.Totals.Connected {
			StoreConnected.Set(1)
		} else {
			StoreConnected.Set(0)
		}
	}
}
