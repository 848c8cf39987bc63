package handlers

import (
	"net/http"

	"tradedash/internal/feed"
)

// ConnectionReader - флаг соединения с upstream
type ConnectionReader interface {
	Connected() bool
}

// FeedStatusReader - состояние соединений фида
type FeedStatusReader interface {
	Status() feed.Status
}

// RelayStats - счетчики relay хаба
type RelayStats interface {
	ClientCount() int
	DroppedMessages() int64
}

// StatusResponse - ответ GET /api/v1/status
type StatusResponse struct {
	Connected       bool         `json:"connected"`
	Feed            *feed.Status `json:"feed,omitempty"`
	Clients         int          `json:"clients"`
	DroppedMessages int64        `json:"droppedMessages"`
}

// StatusHandler отдает состояние подключения сервиса.
//
// GET /api/v1/status
//
// Response 200 OK:
//
//	{
//	  "connected": true,
//	  "feed": {"feed": "socket", "connections": [{"name": "socket", "state": "connected", ...}]},
//	  "clients": 2,
//	  "droppedMessages": 0
//	}
type StatusHandler struct {
	conn  ConnectionReader
	feed  FeedStatusReader
	relay RelayStats
}

// NewStatusHandler создает StatusHandler; feed и relay могут быть nil
func NewStatusHandler(conn ConnectionReader, f FeedStatusReader, relay RelayStats) *StatusHandler {
	return &StatusHandler{conn: conn, feed: f, relay: relay}
}

// GetStatus возвращает состояние подключения
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.conn == nil {
		respondError(w, http.StatusServiceUnavailable, CodeUnavailable, "state store not initialized", "")
		return
	}

	resp := StatusResponse{Connected: h.conn.Connected()}
	if h.feed != nil {
		st := h.feed.Status()
		resp.Feed = &st
	}
	if h.relay != nil {
		resp.Clients = h.relay.ClientCount()
		resp.DroppedMessages = h.relay.DroppedMessages()
	}
	respondJSON(w, http.StatusOK, resp)
}
