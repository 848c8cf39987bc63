package feed

import (
	"context"
	"errors"

	"tradedash/internal/exchange"
	"tradedash/internal/metrics"
	"tradedash/internal/store"
	"tradedash/internal/websocket"
	"tradedash/pkg/utils"
)

const socketFeedName = "socket"

// SocketFeed читает унифицированный протокол из одного сокета
//
// Каждый текстовый кадр - одно сообщение. Битое или неполное сообщение
// отбрасывается и учитывается, соединение при этом не рвется.
// Open соединения выставляет connected, закрытие - снимает.
type SocketFeed struct {
	url    string
	config exchange.WSReconnectConfig
	store  *store.Store
	logger *utils.Logger
	conns  connSet
}

// NewSocketFeed создает фид унифицированного сокета
func NewSocketFeed(url string, config exchange.WSReconnectConfig, st *store.Store, logger *utils.Logger) *SocketFeed {
	if logger == nil {
		logger = utils.L()
	}
	return &SocketFeed{
		url:    url,
		config: config,
		store:  st,
		logger: logger.WithFeed(socketFeedName),
	}
}

// Name возвращает имя фида
func (f *SocketFeed) Name() string { return socketFeedName }

// Status возвращает состояние соединения
func (f *SocketFeed) Status() Status { return f.conns.status(socketFeedName) }

// Run подключается и применяет сообщения до отмены ctx
func (f *SocketFeed) Run(ctx context.Context) error {
	m := exchange.NewWSReconnectManager(socketFeedName, f.url, f.config, f.logger)
	m.SetOnMessage(f.handleMessage)
	m.SetOnConnect(func() {
		f.store.SetConnected(true)
	})
	m.SetOnDisconnect(func(err error) {
		f.store.SetConnected(false)
	})
	f.conns.set([]*exchange.WSReconnectManager{m})

	if err := m.Start(); err != nil {
		return err
	}
	f.logger.Info("feed started", utils.URL(f.url))

	<-ctx.Done()
	f.conns.closeAll()
	f.logger.Info("feed stopped")
	return nil
}

// handleMessage декодирует кадр и применяет его к хранилищу
func (f *SocketFeed) handleMessage(data []byte) {
	f.conns.touch()

	msg, err := websocket.Decode(data)
	if err != nil {
		f.reject(msg, err)
		return
	}

	metrics.RecordFeedMessage(socketFeedName, string(msg.MessageType()))
	if Apply(f.store, msg) {
		f.logger.Debug("message applied", messageFields(msg)...)
	}
}

func (f *SocketFeed) reject(msg websocket.Message, err error) {
	if errors.Is(err, websocket.ErrUnknownType) {
		metrics.RecordFeedDropped(socketFeedName, metrics.DropUnknownType)
		f.logger.Debug("ignoring unknown message", utils.MessageType(string(msg.MessageType())))
		return
	}

	reason := metrics.DropInvalid
	var de *websocket.DecodeError
	if errors.As(err, &de) && de.Type == "" {
		reason = metrics.DropMalformed
	}
	metrics.RecordFeedDropped(socketFeedName, reason)
	f.logger.Warn("dropping message", utils.String("reason", reason), utils.Err(err))
}
