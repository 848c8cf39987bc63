package websocket

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tradedash/internal/metrics"
	"tradedash/internal/store"
	"tradedash/pkg/utils"
)

// DefaultHeartbeatInterval - период heartbeat сообщений клиентам
const DefaultHeartbeatInterval = 5 * time.Second

// HubConfig - параметры relay
type HubConfig struct {
	// HeartbeatInterval - период heartbeat, 0 отключает
	HeartbeatInterval time.Duration

	// AllowedOrigins - список origin через запятую, пусто или "*" разрешает все
	AllowedOrigins string
}

// DefaultHubConfig возвращает конфигурацию по умолчанию
func DefaultHubConfig() HubConfig {
	return HubConfig{HeartbeatInterval: DefaultHeartbeatInterval}
}

// Hub ретранслирует состояние хранилища downstream клиентам
//
// Назначение:
// Каждый коммит хранилища переводится обратно в унифицированный протокол
// и рассылается всем подключенным клиентам. Новый клиент сначала получает
// bootstrap-последовательность из снимка, затем живые обновления.
//
// Рассылка неблокирующая: клиент с переполненным буфером отключается,
// недоставленное сообщение учитывается в DroppedMessages.
//
// Использование:
// 1. hub := NewHub(cfg, logger)
// 2. hub.Attach(store)
// 3. go hub.Run()
// 4. router.HandleFunc("/ws/stream", hub.ServeWS)
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]struct{}
	mu      sync.RWMutex

	source *store.Store
	detach func()

	heartbeat time.Duration
	origins   *OriginChecker
	upgrader  websocket.Upgrader

	dropped  atomic.Int64
	stopped  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once

	logger *utils.Logger
}

// NewHub создает новый Hub
func NewHub(cfg HubConfig, logger *utils.Logger) *Hub {
	if logger == nil {
		logger = utils.L()
	}
	h := &Hub{
		clients:   make(map[*Client]struct{}),
		heartbeat: cfg.HeartbeatInterval,
		origins:   NewOriginChecker(cfg.AllowedOrigins),
		stop:      make(chan struct{}),
		logger:    logger.WithComponent("relay"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return h.origins.Check(r.Header.Get("Origin"))
		},
		EnableCompression: true,
	}
	return h
}

// Attach подписывает hub на хранилище
//
// Повторный вызов заменяет источник.
func (h *Hub) Attach(st *store.Store) {
	h.mu.Lock()
	detach := h.detach
	h.source = st
	h.detach = st.Subscribe(h.onChange)
	h.mu.Unlock()

	if detach != nil {
		detach()
	}
}

func (h *Hub) onChange(ch store.Change) {
	for _, msg := range FromChange(ch) {
		h.Broadcast(msg)
	}
}

// Run запускает heartbeat цикл
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Возвращается после Stop.
func (h *Hub) Run() {
	var tick <-chan time.Time
	if h.heartbeat > 0 {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-h.stop:
			return
		case <-tick:
			h.Broadcast(NewHeartbeatMessage())
		}
	}
}

// Stop отписывается от хранилища и отключает всех клиентов
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.stopped.Store(true)
		close(h.stop)

		h.mu.Lock()
		detach := h.detach
		h.detach = nil
		for c := range h.clients {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		metrics.RelayClients.Set(0)

		if detach != nil {
			detach()
		}
		h.logger.Info("relay stopped")
	})
}

// Broadcast отправляет сообщение всем подключенным клиентам
func (h *Hub) Broadcast(msg Message) {
	data, err := Encode(msg)
	if err != nil {
		h.logger.Error("failed to encode broadcast", utils.MessageType(string(msg.MessageType())), utils.Err(err))
		return
	}
	h.fanout(data)
	metrics.RecordBroadcast(string(msg.MessageType()))
}

// BroadcastRaw отправляет уже сериализованное сообщение
func (h *Hub) BroadcastRaw(data []byte) {
	h.fanout(data)
}

// fanout раздает данные клиентам без блокировки
//
// Список обходится под RLock, медленные клиенты удаляются под Lock.
func (h *Hub) fanout(data []byte) {
	var slow []*Client

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}

	h.mu.Lock()
	for _, c := range slow {
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
			h.dropped.Add(1)
			metrics.RelayDropped.Inc()
		}
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.RelayClients.Set(float64(total))
	h.logger.Warn("removed slow clients", utils.Count(len(slow)), utils.Int("clients", total))
}

// register добавляет клиента, предварительно подготовив bootstrap
//
// Снимок берется под View хранилища: ни один коммит не проскочит между
// снимком и регистрацией, поэтому клиент не теряет и не дублирует изменения.
func (h *Hub) register(c *Client) bool {
	h.mu.RLock()
	src := h.source
	h.mu.RUnlock()

	if src == nil {
		return h.insert(c)
	}

	var ok bool
	src.View(func(snap store.Snapshot) {
		c.bootstrap = encodeAll(Bootstrap(snap), h.logger)
		ok = h.insert(c)
	})
	return ok
}

func (h *Hub) insert(c *Client) bool {
	h.mu.Lock()
	if h.stopped.Load() {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.RelayClients.Set(float64(total))
	h.logger.Info("client connected", utils.ClientID(c.id), utils.Int("clients", total))
	return true
}

// unregister удаляет клиента, повторный вызов безопасен
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.RelayClients.Set(float64(total))
		h.logger.Info("client disconnected", utils.ClientID(c.id), utils.Int("clients", total))
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает число сообщений, не доставленных медленным клиентам
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}

func encodeAll(msgs []Message, logger *utils.Logger) [][]byte {
	out := make([][]byte, 0, len(msgs))
	for _, msg := range msgs {
		data, err := Encode(msg)
		if err != nil {
			logger.Error("failed to encode bootstrap", utils.MessageType(string(msg.MessageType())), utils.Err(err))
			continue
		}
		out = append(out, data)
	}
	return out
}
