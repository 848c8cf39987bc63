// Package feed переводит upstream события в операции хранилища.
//
// Два источника с одним downstream контрактом: унифицированный сокет
// приложения (SocketFeed) и прямой фид Binance Futures (BinanceFeed).
package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tradedash/internal/exchange"
	"tradedash/internal/store"
	"tradedash/internal/websocket"
	"tradedash/pkg/utils"
)

// Feed - источник событий для хранилища
type Feed interface {
	// Name возвращает имя фида для логов и метрик
	Name() string

	// Run блокируется до отмены ctx. Отмена - намеренная остановка:
	// соединения закрываются без переподключения.
	Run(ctx context.Context) error

	// Status возвращает состояние соединений фида
	Status() Status
}

// Status - состояние фида для /api/v1/status
type Status struct {
	Feed          string             `json:"feed"`
	Connections   []ConnectionStatus `json:"connections"`
	LastMessageAt string             `json:"lastMessageAt,omitempty"`
}

// ConnectionStatus - состояние одного соединения
type ConnectionStatus struct {
	Name       string `json:"name"`
	URL        string `json:"url"`
	State      string `json:"state"`
	Info       string `json:"info"`
	Reconnects int    `json:"reconnects"`
}

// Apply применяет сообщение протокола к хранилищу
//
// Возвращает false для сообщений без эффекта (heartbeat, unknown).
func Apply(st *store.Store, msg websocket.Message) bool {
	switch m := msg.(type) {
	case *websocket.PriceUpdateMessage:
		st.UpdatePrice(m.Symbol, m.Price)
	case *websocket.PositionUpdateMessage:
		st.UpsertPosition(*m.Position)
	case *websocket.TradeExecutedMessage:
		st.PrependTrade(*m.Trade)
	case *websocket.TradesSnapshotMessage:
		st.SetTrades(m.Trades)
	case *websocket.EquitySnapshotMessage:
		st.AddEquityPoint(m.EquityPoint())
	case *websocket.MetricsSnapshotMessage:
		st.SetMetrics(*m.Metrics)
	case *websocket.TickerSnapshotMessage:
		st.SetTickers(m.Tickers)
	case *websocket.AccountSnapshotMessage:
		st.SetAccount(*m.Account)
	default:
		return false
	}
	return true
}

// messageFields - поля лога для применённого сообщения
func messageFields(msg websocket.Message) []zap.Field {
	fields := []zap.Field{utils.MessageType(string(msg.MessageType()))}
	switch m := msg.(type) {
	case *websocket.PriceUpdateMessage:
		fields = append(fields, utils.Symbol(m.Symbol), utils.Price(m.Price))
	case *websocket.PositionUpdateMessage:
		p := m.Position
		fields = append(fields,
			utils.PositionID(p.ID),
			utils.Symbol(p.Symbol),
			utils.Side(string(p.Side)),
			utils.Quantity(p.Quantity),
			utils.PNL(p.UnrealizedPnl))
	case *websocket.TradeExecutedMessage:
		fields = append(fields, utils.Symbol(m.Trade.Symbol), utils.PNL(m.Trade.PnlNet))
	case *websocket.EquitySnapshotMessage:
		fields = append(fields, utils.Equity(m.Equity))
	case *websocket.TradesSnapshotMessage:
		fields = append(fields, utils.Count(len(m.Trades)))
	case *websocket.TickerSnapshotMessage:
		fields = append(fields, utils.Count(len(m.Tickers)))
	}
	return fields
}

// connSet - соединения фида, созданные в Run
type connSet struct {
	mu       sync.RWMutex
	managers []*exchange.WSReconnectManager
	lastMsg  time.Time
}

func (c *connSet) set(managers []*exchange.WSReconnectManager) {
	c.mu.Lock()
	c.managers = managers
	c.mu.Unlock()
}

func (c *connSet) touch() {
	c.mu.Lock()
	c.lastMsg = time.Now()
	c.mu.Unlock()
}

func (c *connSet) status(name string) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Status{Feed: name, Connections: make([]ConnectionStatus, 0, len(c.managers))}
	for _, m := range c.managers {
		state := m.GetState()
		st.Connections = append(st.Connections, ConnectionStatus{
			Name:       m.Name(),
			URL:        m.URL(),
			State:      state.String(),
			Info:       exchange.StateInfo(state),
			Reconnects: m.Reconnects(),
		})
	}
	if !c.lastMsg.IsZero() {
		st.LastMessageAt = utils.FormatISO(c.lastMsg)
	}
	return st
}

func (c *connSet) closeAll() {
	c.mu.RLock()
	managers := c.managers
	c.mu.RUnlock()

	var wg sync.WaitGroup
	for _, m := range managers {
		wg.Add(1)
		go func(m *exchange.WSReconnectManager) {
			defer wg.Done()
			m.Close()
		}(m)
	}
	wg.Wait()
}
