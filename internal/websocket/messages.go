package websocket

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"tradedash/internal/models"
	"tradedash/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MessageType - дискриминатор сообщения протокола (поле "type")
type MessageType string

// Типы сообщений унифицированного протокола
const (
	// MessageTypePriceUpdate - тик цены по символу
	MessageTypePriceUpdate MessageType = "price_update"

	// MessageTypePositionUpdate - изменение позиции, quantity 0 означает закрытие
	MessageTypePositionUpdate MessageType = "position_update"

	// MessageTypeTradeExecuted - новая завершённая сделка
	MessageTypeTradeExecuted MessageType = "trade_executed"

	// MessageTypeTradesSnapshot - полный список сделок, newest-first
	MessageTypeTradesSnapshot MessageType = "trades_snapshot"

	// MessageTypeEquitySnapshot - точка equity, time в секундах
	MessageTypeEquitySnapshot MessageType = "equity_snapshot"

	MessageTypeMetricsSnapshot MessageType = "metrics_snapshot"
	MessageTypeTickerSnapshot  MessageType = "ticker_snapshot"
	MessageTypeAccountSnapshot MessageType = "account_snapshot"

	// MessageTypeHeartbeat - только признак жизни соединения
	MessageTypeHeartbeat MessageType = "heartbeat"
)

// Ошибки декодирования
var (
	// ErrUnknownType возвращается вместе с *UnknownMessage для неизвестного тега
	ErrUnknownType = errors.New("unknown message type")

	ErrMissingType = errors.New("missing message type")
)

// DecodeError - сообщение не прошло разбор или проверку полей
type DecodeError struct {
	Type MessageType // пустой если JSON не разобран
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("decode message: %v", e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Message - закрытое множество сообщений протокола
type Message interface {
	MessageType() MessageType
	Validate() error
}

// ============ Сообщения ============

// PriceUpdateMessage - тик цены; bid/ask/ts опциональны
type PriceUpdateMessage struct {
	Type   MessageType `json:"type"`
	Symbol string      `json:"symbol"`
	Price  float64     `json:"price"`
	Bid    *float64    `json:"bid,omitempty"`
	Ask    *float64    `json:"ask,omitempty"`
	Ts     float64     `json:"ts,omitempty"` // секунды
}

// PositionUpdateMessage - изменение одной позиции
type PositionUpdateMessage struct {
	Type     MessageType      `json:"type"`
	Position *models.Position `json:"position"`
}

// TradeExecutedMessage - новая сделка
type TradeExecutedMessage struct {
	Type  MessageType   `json:"type"`
	Trade *models.Trade `json:"trade"`
}

// TradesSnapshotMessage - полный список сделок
type TradesSnapshotMessage struct {
	Type   MessageType    `json:"type"`
	Trades []models.Trade `json:"trades"`
	Ts     float64        `json:"ts,omitempty"`
}

// EquitySnapshotMessage - точка кривой equity
//
// Time в секундах Unix (допускается дробная часть). Balance и
// UnrealizedPnl опциональны.
type EquitySnapshotMessage struct {
	Type          MessageType `json:"type"`
	Time          float64     `json:"time"`
	Equity        float64     `json:"equity"`
	Balance       *float64    `json:"balance,omitempty"`
	UnrealizedPnl *float64    `json:"unrealizedPnl,omitempty"`
}

// MetricsSnapshotMessage - агрегированные показатели
type MetricsSnapshotMessage struct {
	Type    MessageType     `json:"type"`
	Metrics *models.Metrics `json:"metrics"`
	Ts      float64         `json:"ts,omitempty"`
}

// TickerSnapshotMessage - полный список тикеров
type TickerSnapshotMessage struct {
	Type    MessageType         `json:"type"`
	Tickers []models.TickerData `json:"tickers"`
	Ts      float64             `json:"ts,omitempty"`
}

// AccountSnapshotMessage - сводка по счёту
type AccountSnapshotMessage struct {
	Type    MessageType            `json:"type"`
	Account *models.AccountSummary `json:"account"`
	Ts      float64                `json:"ts,omitempty"`
}

// HeartbeatMessage - признак жизни
type HeartbeatMessage struct {
	Type MessageType `json:"type"`
	Ts   float64     `json:"ts"`
}

// UnknownMessage - сообщение с неизвестным тегом, игнорируется
type UnknownMessage struct {
	Type MessageType
	Raw  []byte
}

func (*PriceUpdateMessage) MessageType() MessageType     { return MessageTypePriceUpdate }
func (*PositionUpdateMessage) MessageType() MessageType  { return MessageTypePositionUpdate }
func (*TradeExecutedMessage) MessageType() MessageType   { return MessageTypeTradeExecuted }
func (*TradesSnapshotMessage) MessageType() MessageType  { return MessageTypeTradesSnapshot }
func (*EquitySnapshotMessage) MessageType() MessageType  { return MessageTypeEquitySnapshot }
func (*MetricsSnapshotMessage) MessageType() MessageType { return MessageTypeMetricsSnapshot }
func (*TickerSnapshotMessage) MessageType() MessageType  { return MessageTypeTickerSnapshot }
func (*AccountSnapshotMessage) MessageType() MessageType { return MessageTypeAccountSnapshot }
func (*HeartbeatMessage) MessageType() MessageType       { return MessageTypeHeartbeat }
func (m *UnknownMessage) MessageType() MessageType       { return m.Type }

// ============ Декодирование ============

// Decode разбирает один текстовый кадр
//
// Возвращает типизированное сообщение либо *DecodeError. Для неизвестного
// тега возвращается *UnknownMessage вместе с ErrUnknownType.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if head.Type == "" {
		return nil, &DecodeError{Err: ErrMissingType}
	}

	msg := newMessage(head.Type)
	if msg == nil {
		raw := make([]byte, len(data))
		copy(raw, data)
		return &UnknownMessage{Type: head.Type, Raw: raw}, ErrUnknownType
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, &DecodeError{Type: head.Type, Err: err}
	}
	if err := msg.Validate(); err != nil {
		return nil, &DecodeError{Type: head.Type, Err: err}
	}
	return msg, nil
}

func newMessage(t MessageType) Message {
	switch t {
	case MessageTypePriceUpdate:
		return &PriceUpdateMessage{}
	case MessageTypePositionUpdate:
		return &PositionUpdateMessage{}
	case MessageTypeTradeExecuted:
		return &TradeExecutedMessage{}
	case MessageTypeTradesSnapshot:
		return &TradesSnapshotMessage{}
	case MessageTypeEquitySnapshot:
		return &EquitySnapshotMessage{}
	case MessageTypeMetricsSnapshot:
		return &MetricsSnapshotMessage{}
	case MessageTypeTickerSnapshot:
		return &TickerSnapshotMessage{}
	case MessageTypeAccountSnapshot:
		return &AccountSnapshotMessage{}
	case MessageTypeHeartbeat:
		return &HeartbeatMessage{}
	default:
		return nil
	}
}

// ============ Проверка полей ============

func (m *PriceUpdateMessage) Validate() error {
	var errs utils.ValidationErrors
	errs.AddError("symbol", utils.ValidateSymbol(m.Symbol))
	errs.AddError("price", utils.ValidatePrice(m.Price))
	validateOptional(&errs, "bid", m.Bid)
	validateOptional(&errs, "ask", m.Ask)
	errs.AddError("ts", utils.ValidateFinite(m.Ts))
	return errs.Err()
}

func (m *PositionUpdateMessage) Validate() error {
	if m.Position == nil {
		return errors.New("position: required")
	}
	return validatePosition(m.Position)
}

func (m *TradeExecutedMessage) Validate() error {
	if m.Trade == nil {
		return errors.New("trade: required")
	}
	return validateTrade("trade", m.Trade)
}

func (m *TradesSnapshotMessage) Validate() error {
	if m.Trades == nil {
		return errors.New("trades: required")
	}
	for i := range m.Trades {
		if err := validateTrade(fmt.Sprintf("trades[%d]", i), &m.Trades[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *EquitySnapshotMessage) Validate() error {
	var errs utils.ValidationErrors
	if err := utils.ValidateFinite(m.Time); err != nil || m.Time <= 0 {
		errs.Add("time", "must be a positive epoch in seconds")
	}
	errs.AddError("equity", utils.ValidateFinite(m.Equity))
	validateOptional(&errs, "balance", m.Balance)
	validateOptional(&errs, "unrealizedPnl", m.UnrealizedPnl)
	return errs.Err()
}

func (m *MetricsSnapshotMessage) Validate() error {
	if m.Metrics == nil {
		return errors.New("metrics: required")
	}
	x := m.Metrics
	var errs utils.ValidationErrors
	if !utils.AllFinite(x.TotalPnL, x.TotalPnLPercent, x.WinRate, x.SharpeRatio,
		x.MaxDrawdown, x.AvgWin, x.AvgLoss, x.ProfitFactor) {
		errs.AddError("metrics", utils.ErrNotFinite)
	}
	validateOptional(&errs, "metrics.realizedPnL", x.RealizedPnL)
	validateOptional(&errs, "metrics.unrealizedPnL", x.UnrealizedPnL)
	return errs.Err()
}

func (m *TickerSnapshotMessage) Validate() error {
	if m.Tickers == nil {
		return errors.New("tickers: required")
	}
	var errs utils.ValidationErrors
	for i, t := range m.Tickers {
		field := fmt.Sprintf("tickers[%d]", i)
		errs.AddError(field+".symbol", utils.ValidateSymbol(t.Symbol))
		if !utils.AllFinite(t.Price, t.Change24h, t.Volume24h, t.High24h, t.Low24h) {
			errs.AddError(field, utils.ErrNotFinite)
		}
	}
	return errs.Err()
}

func (m *AccountSnapshotMessage) Validate() error {
	if m.Account == nil {
		return errors.New("account: required")
	}
	a := m.Account
	if !utils.AllFinite(a.Balance, a.AvailableBalance, a.MarginRatio, a.Leverage, a.Pnl24h) {
		return fmt.Errorf("account: %w", utils.ErrNotFinite)
	}
	return nil
}

func (m *HeartbeatMessage) Validate() error {
	return nil
}

func (m *UnknownMessage) Validate() error {
	return ErrUnknownType
}

// validatePosition проверяет позицию
//
// Для закрытия (quantity 0) достаточно id.
func validatePosition(p *models.Position) error {
	var errs utils.ValidationErrors
	errs.AddError("position.id", utils.ValidateID(p.ID))
	errs.AddError("position.quantity", utils.ValidateQuantity(p.Quantity))
	if p.Quantity == 0 {
		return errs.Err()
	}
	errs.AddError("position.symbol", utils.ValidateSymbol(p.Symbol))
	errs.AddError("position.side", p.Side.Validate())
	errs.AddError("position.entryPrice", utils.ValidateFinite(p.EntryPrice))
	if !utils.AllFinite(p.CurrentPrice, p.UnrealizedPnl, p.UnrealizedPnlPercent, p.Notional) {
		errs.AddError("position", utils.ErrNotFinite)
	}
	return errs.Err()
}

func validateTrade(field string, t *models.Trade) error {
	var errs utils.ValidationErrors
	errs.AddError(field+".symbol", utils.ValidateSymbol(t.Symbol))
	if !utils.AllFinite(t.EntryPrice, t.ExitPrice, t.Quantity, t.PnlNet, t.PnlPercent, t.Commission) {
		errs.AddError(field, utils.ErrNotFinite)
	}
	return errs.Err()
}

func validateOptional(errs *utils.ValidationErrors, field string, v *float64) {
	if v != nil {
		errs.AddError(field, utils.ValidateFinite(*v))
	}
}

// ============ Фабричные функции ============

// Encode сериализует сообщение в JSON
//
// Использует пул потоков jsoniter: на горячем пути broadcast
// остаётся одна аллокация под результат.
func Encode(msg Message) ([]byte, error) {
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)

	stream.WriteVal(msg)
	if stream.Error != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.MessageType(), stream.Error)
	}
	buf := stream.Buffer()
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// nowSeconds возвращает текущее время в секундах Unix
func nowSeconds() float64 {
	return float64(time.Now().Unix())
}

// NewPriceUpdateMessage создает тик цены
func NewPriceUpdateMessage(symbol string, price float64) *PriceUpdateMessage {
	return &PriceUpdateMessage{
		Type:   MessageTypePriceUpdate,
		Symbol: symbol,
		Price:  price,
		Ts:     nowSeconds(),
	}
}

// NewPositionUpdateMessage создает обновление позиции
func NewPositionUpdateMessage(p models.Position) *PositionUpdateMessage {
	return &PositionUpdateMessage{Type: MessageTypePositionUpdate, Position: &p}
}

// NewPositionClosedMessage создает сообщение о закрытии позиции
func NewPositionClosedMessage(id string) *PositionUpdateMessage {
	return &PositionUpdateMessage{
		Type:     MessageTypePositionUpdate,
		Position: &models.Position{ID: id},
	}
}

// NewTradeExecutedMessage создает сообщение о сделке
func NewTradeExecutedMessage(t models.Trade) *TradeExecutedMessage {
	return &TradeExecutedMessage{Type: MessageTypeTradeExecuted, Trade: &t}
}

// NewTradesSnapshotMessage создает снапшот сделок
func NewTradesSnapshotMessage(trades []models.Trade) *TradesSnapshotMessage {
	if trades == nil {
		trades = []models.Trade{}
	}
	return &TradesSnapshotMessage{Type: MessageTypeTradesSnapshot, Trades: trades, Ts: nowSeconds()}
}

// NewEquitySnapshotMessage создает сообщение из точки equity
func NewEquitySnapshotMessage(pt models.EquityPoint) *EquitySnapshotMessage {
	return &EquitySnapshotMessage{
		Type:          MessageTypeEquitySnapshot,
		Time:          float64(pt.Timestamp) / 1000,
		Equity:        pt.Equity,
		Balance:       pt.Balance,
		UnrealizedPnl: pt.UnrealizedPnl,
	}
}

// NewMetricsSnapshotMessage создает снапшот метрик
func NewMetricsSnapshotMessage(m models.Metrics) *MetricsSnapshotMessage {
	return &MetricsSnapshotMessage{Type: MessageTypeMetricsSnapshot, Metrics: &m, Ts: nowSeconds()}
}

// NewTickerSnapshotMessage создает снапшот тикеров
func NewTickerSnapshotMessage(tickers []models.TickerData) *TickerSnapshotMessage {
	if tickers == nil {
		tickers = []models.TickerData{}
	}
	return &TickerSnapshotMessage{Type: MessageTypeTickerSnapshot, Tickers: tickers, Ts: nowSeconds()}
}

// NewAccountSnapshotMessage создает сводку по счёту
func NewAccountSnapshotMessage(a models.AccountSummary) *AccountSnapshotMessage {
	return &AccountSnapshotMessage{Type: MessageTypeAccountSnapshot, Account: &a, Ts: nowSeconds()}
}

// NewHeartbeatMessage создает heartbeat
func NewHeartbeatMessage() *HeartbeatMessage {
	return &HeartbeatMessage{Type: MessageTypeHeartbeat, Ts: nowSeconds()}
}

// EquityPoint переводит сообщение в точку хранилища
//
// timestamp = time * 1000, time отображается как ISO-8601.
func (m *EquitySnapshotMessage) EquityPoint() models.EquityPoint {
	ts := utils.SecondsToMillis(m.Time)
	return models.EquityPoint{
		Timestamp:     ts,
		Time:          utils.FormatISOMillis(ts),
		Equity:        m.Equity,
		Balance:       m.Balance,
		UnrealizedPnl: m.UnrealizedPnl,
	}
}

