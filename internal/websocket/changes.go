package websocket

import "tradedash/internal/store"

// FromChange переводит коммит хранилища в сообщения протокола
//
// ChangeConnected сообщений не порождает: состояние upstream-соединения
// в протокол не входит.
func FromChange(ch store.Change) []Message {
	switch ch.Kind {
	case store.ChangeTickers:
		return []Message{NewTickerSnapshotMessage(ch.Tickers)}
	case store.ChangePrice:
		return []Message{NewPriceUpdateMessage(ch.Symbol, ch.Price)}
	case store.ChangePosition:
		if ch.Removed || ch.Position == nil {
			return []Message{NewPositionClosedMessage(ch.PositionID)}
		}
		return []Message{NewPositionUpdateMessage(*ch.Position)}
	case store.ChangePositions:
		// сначала закрытия: клиент удаляет строки до применения нового списка
		out := make([]Message, 0, len(ch.RemovedIDs)+len(ch.Positions))
		for _, id := range ch.RemovedIDs {
			out = append(out, NewPositionClosedMessage(id))
		}
		for _, p := range ch.Positions {
			out = append(out, NewPositionUpdateMessage(p))
		}
		return out
	case store.ChangeTrades:
		return []Message{NewTradesSnapshotMessage(ch.Trades)}
	case store.ChangeTrade:
		if ch.Trade == nil {
			return nil
		}
		return []Message{NewTradeExecutedMessage(*ch.Trade)}
	case store.ChangeMetrics:
		if ch.Metrics == nil {
			return nil
		}
		return []Message{NewMetricsSnapshotMessage(*ch.Metrics)}
	case store.ChangeAccount:
		if ch.Account == nil {
			return nil
		}
		return []Message{NewAccountSnapshotMessage(*ch.Account)}
	case store.ChangeEquityData:
		out := make([]Message, 0, len(ch.EquityData))
		for _, pt := range ch.EquityData {
			out = append(out, NewEquitySnapshotMessage(pt))
		}
		return out
	case store.ChangeEquityPoint:
		if ch.EquityPoint == nil {
			return nil
		}
		return []Message{NewEquitySnapshotMessage(*ch.EquityPoint)}
	default:
		return nil
	}
}

// Bootstrap возвращает последовательность для нового клиента
//
// Порядок: тикеры, счёт, метрики, сделки, позиции по одной, точки equity
// по возрастанию времени. Клиент, применивший её к пустому состоянию,
// получает те же коллекции, что и в снимке.
func Bootstrap(snap store.Snapshot) []Message {
	out := make([]Message, 0, 4+len(snap.Positions)+len(snap.EquityData))
	out = append(out,
		NewTickerSnapshotMessage(snap.Tickers),
		NewAccountSnapshotMessage(snap.Account),
		NewMetricsSnapshotMessage(snap.Metrics),
		NewTradesSnapshotMessage(snap.Trades),
	)
	// позиции приходят prepend-ом, поэтому отправляем с конца
	for i := len(snap.Positions) - 1; i >= 0; i-- {
		out = append(out, NewPositionUpdateMessage(snap.Positions[i]))
	}
	for _, pt := range snap.EquityData {
		out = append(out, NewEquitySnapshotMessage(pt))
	}
	return out
}
