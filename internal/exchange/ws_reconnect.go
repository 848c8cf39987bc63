package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradedash/internal/metrics"
	"tradedash/pkg/utils"
)

// ErrManagerClosed - менеджер остановлен вызовом Close
var ErrManagerClosed = errors.New("ws manager is closed")

// WSReconnectConfig конфигурация переподключения WebSocket
type WSReconnectConfig struct {
	// Фиксированная задержка перед переподключением (без backoff)
	ReconnectDelay time.Duration
	// Таймаут handshake
	ConnectTimeout time.Duration
	// Интервал ping (0 = не пинговать)
	PingInterval time.Duration
	// Таймаут записи ping и ожидания pong
	PongTimeout time.Duration
}

// DefaultWSReconnectConfig возвращает конфигурацию по умолчанию
func DefaultWSReconnectConfig() WSReconnectConfig {
	return WSReconnectConfig{
		ReconnectDelay: 2 * time.Second,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   0,
		PongTimeout:    10 * time.Second,
	}
}

// WSReconnectManager управляет одним WebSocket соединением
//
// Жизненный цикл: Idle -> Connecting -> Open -> Closed. Закрытие не по
// нашей инициативе планирует ровно одну попытку переподключения через
// ReconnectDelay; попытки бесконечны. Close - намеренная остановка:
// таймер отменяется, идущий dial прерывается, переподключения и
// логирования ошибок для этого закрытия не будет.
//
// Каждое соединение имеет поколение (generation). События от соединений
// прошлых поколений игнорируются.
//
// Колбэки onConnect/onDisconnect вызываются строго по очереди. Из них
// нельзя вызывать Close того же менеджера.
type WSReconnectManager struct {
	name   string
	wsURL  string
	config WSReconnectConfig
	logger *utils.Logger

	eventMu   sync.Mutex // сериализует onConnect/onDisconnect
	announced bool       // onConnect вызван для текущего соединения; под eventMu

	mu         sync.Mutex
	state      WSConnectionState
	conn       *websocket.Conn
	connDone   chan struct{}
	gen        uint64
	stopped    bool
	dialCancel context.CancelFunc
	timer      *time.Timer
	attempts   int
	reconnects int

	writeMu sync.Mutex

	onMessage    func([]byte)
	onConnect    func()
	onDisconnect func(error)
	callbackMu   sync.RWMutex

	done chan struct{}
}

// NewWSReconnectManager создаёт менеджер соединения
func NewWSReconnectManager(name, wsURL string, config WSReconnectConfig, logger *utils.Logger) *WSReconnectManager {
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = DefaultWSReconnectConfig().ReconnectDelay
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultWSReconnectConfig().ConnectTimeout
	}
	if config.PongTimeout <= 0 {
		config.PongTimeout = DefaultWSReconnectConfig().PongTimeout
	}
	if logger == nil {
		logger = utils.L()
	}
	return &WSReconnectManager{
		name:   name,
		wsURL:  wsURL,
		config: config,
		logger: logger.WithConn(name).With(utils.Component("ws"), utils.URL(wsURL)),
		done:   make(chan struct{}),
	}
}

// Name возвращает имя соединения
func (m *WSReconnectManager) Name() string { return m.name }

// URL возвращает адрес соединения
func (m *WSReconnectManager) URL() string { return m.wsURL }

// SetOnMessage устанавливает callback для входящих сообщений
func (m *WSReconnectManager) SetOnMessage(handler func([]byte)) {
	m.callbackMu.Lock()
	m.onMessage = handler
	m.callbackMu.Unlock()
}

// SetOnConnect устанавливает callback для события подключения
func (m *WSReconnectManager) SetOnConnect(handler func()) {
	m.callbackMu.Lock()
	m.onConnect = handler
	m.callbackMu.Unlock()
}

// SetOnDisconnect устанавливает callback для события отключения
//
// err == nil означает намеренное закрытие.
func (m *WSReconnectManager) SetOnDisconnect(handler func(error)) {
	m.callbackMu.Lock()
	m.onDisconnect = handler
	m.callbackMu.Unlock()
}

// GetState возвращает текущее состояние соединения
func (m *WSReconnectManager) GetState() WSConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected проверяет, открыто ли соединение
func (m *WSReconnectManager) IsConnected() bool {
	return m.GetState() == WSStateOpen
}

// Attempts возвращает число неудачных подряд попыток подключения
func (m *WSReconnectManager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Reconnects возвращает сколько раз планировалось переподключение
func (m *WSReconnectManager) Reconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

// Done закрывается после Close
func (m *WSReconnectManager) Done() <-chan struct{} {
	return m.done
}

// Start запускает первое подключение в фоне
//
// Ошибка подключения не возвращается: она уходит в путь переподключения.
func (m *WSReconnectManager) Start() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.state != WSStateIdle {
		m.mu.Unlock()
		return fmt.Errorf("already started (state: %s)", m.state)
	}
	// Idle покидаем здесь же, под mu: второй Start увидит Connecting
	m.setStateLocked(WSStateConnecting)
	m.mu.Unlock()

	go m.connect()
	return nil
}

// setStateLocked выполняет переход по таблице; вызывается под m.mu
func (m *WSReconnectManager) setStateLocked(to WSConnectionState) bool {
	if !CanTransition(m.state, to) {
		m.logger.Warn("invalid state transition",
			utils.State(m.state.String()),
			utils.String("to", to.String()))
		return false
	}
	if m.state == WSStateClosed && m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.state = to
	metrics.UpdateConnectionStatus(m.name, to == WSStateOpen)
	return true
}

// connect выполняет одну попытку подключения
func (m *WSReconnectManager) connect() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	// первая попытка уже переведена в Connecting вызовом Start
	if m.state != WSStateConnecting && !m.setStateLocked(WSStateConnecting) {
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	ctx, cancel := context.WithTimeout(context.Background(), m.config.ConnectTimeout)
	m.dialCancel = cancel
	m.mu.Unlock()

	start := time.Now()
	conn, err := m.dial(ctx)
	cancel()

	m.mu.Lock()
	m.dialCancel = nil
	if m.stopped || gen != m.gen {
		// остановлены во время dial: соединение не анонсируем
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		m.attempts++
		attempt := m.attempts
		m.setStateLocked(WSStateClosed)
		m.scheduleReconnectLocked()
		m.mu.Unlock()

		m.logger.Warn("connect failed", utils.Generation(gen), utils.Attempt(attempt), utils.Err(err))
		return
	}

	m.conn = conn
	m.connDone = make(chan struct{})
	connDone := m.connDone
	m.attempts = 0
	m.setStateLocked(WSStateOpen)
	m.mu.Unlock()

	if m.config.PingInterval > 0 {
		conn.SetReadDeadline(time.Now().Add(m.config.PingInterval + m.config.PongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(m.config.PingInterval + m.config.PongTimeout))
		})
	}

	m.eventMu.Lock()
	if m.isCurrent(gen) {
		m.logger.Info("connected", utils.Generation(gen), utils.Latency(float64(time.Since(start).Microseconds())/1000))
		m.announced = true
		if fn := m.getOnConnect(); fn != nil {
			fn()
		}
	}
	m.eventMu.Unlock()

	go m.readPump(conn, gen)
	if m.config.PingInterval > 0 {
		go m.pingPump(conn, gen, connDone)
	}
}

// dial выполняет подключение к WebSocket
func (m *WSReconnectManager) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: m.config.ConnectTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, m.wsURL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial error: %w", err)
	}
	return conn, nil
}

func (m *WSReconnectManager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.stopped && gen == m.gen && m.state == WSStateOpen
}

// scheduleReconnectLocked заводит единственный таймер переподключения
func (m *WSReconnectManager) scheduleReconnectLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.reconnects++
	metrics.RecordReconnect(m.name)

	var t *time.Timer
	t = time.AfterFunc(m.config.ReconnectDelay, func() {
		m.mu.Lock()
		if m.timer != t {
			m.mu.Unlock()
			return
		}
		m.timer = nil
		m.mu.Unlock()
		m.connect()
	})
	m.timer = t
}

// readPump читает сообщения до ошибки или закрытия
func (m *WSReconnectManager) readPump(conn *websocket.Conn, gen uint64) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}

		m.callbackMu.RLock()
		onMessage := m.onMessage
		m.callbackMu.RUnlock()

		if onMessage != nil {
			onMessage(message)
		}
	}
}

// pingPump отправляет ping для проверки соединения
func (m *WSReconnectManager) pingPump(conn *websocket.Conn, gen uint64, connDone <-chan struct{}) {
	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-connDone:
			return
		case <-ticker.C:
			deadline := time.Now().Add(m.config.PongTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				m.handleClose(gen, fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

// handleClose обрабатывает закрытие соединения не по нашей инициативе
//
// Ошибки транспорта и закрытие сервером идут одним путём.
func (m *WSReconnectManager) handleClose(gen uint64, cause error) {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()

	m.mu.Lock()
	if m.stopped || gen != m.gen || m.state != WSStateOpen {
		// намеренное закрытие или событие старого соединения
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.conn = nil
	if m.connDone != nil {
		close(m.connDone)
		m.connDone = nil
	}
	m.setStateLocked(WSStateClosed)
	m.scheduleReconnectLocked()
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	m.logger.Warn("connection lost, reconnecting",
		utils.Generation(gen),
		utils.Dur("delay", m.config.ReconnectDelay),
		utils.Err(cause))

	if !m.announced {
		return
	}
	m.announced = false
	if fn := m.getOnDisconnect(); fn != nil {
		if cause == nil {
			cause = errors.New("connection closed")
		}
		fn(cause)
	}
}

// Send отправляет JSON сообщение через открытое соединение
func (m *WSReconnectManager) Send(msg interface{}) error {
	m.mu.Lock()
	conn := m.conn
	state := m.state
	m.mu.Unlock()

	if state != WSStateOpen || conn == nil {
		return fmt.Errorf("not connected (state: %s)", state)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.config.PongTimeout))
	return conn.WriteJSON(msg)
}

// Close намеренно закрывает соединение и останавливает переподключения
//
// Повторный вызов - no-op.
func (m *WSReconnectManager) Close() error {
	m.eventMu.Lock()
	defer m.eventMu.Unlock()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	wasOpen := m.announced
	m.announced = false

	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	conn := m.conn
	m.conn = nil
	if m.connDone != nil {
		close(m.connDone)
		m.connDone = nil
	}
	m.setStateLocked(WSStateClosed)
	close(m.done)
	m.mu.Unlock()

	var err error
	if conn != nil {
		m.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		m.writeMu.Unlock()
		err = conn.Close()
	}

	m.logger.Debug("closed deliberately", utils.Bool("was_open", wasOpen))

	if wasOpen {
		if fn := m.getOnDisconnect(); fn != nil {
			fn(nil)
		}
	}
	return err
}

func (m *WSReconnectManager) getOnConnect() func() {
	m.callbackMu.RLock()
	defer m.callbackMu.RUnlock()
	return m.onConnect
}

func (m *WSReconnectManager) getOnDisconnect() func(error) {
	m.callbackMu.RLock()
	defer m.callbackMu.RUnlock()
	return m.onDisconnect
}
