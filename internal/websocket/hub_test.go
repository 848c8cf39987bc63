package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tradedash/internal/models"
	"tradedash/internal/store"
	"tradedash/pkg/utils"
)

// ============================================================
// Helpers
// ============================================================

func newTestHub(cfg HubConfig) *Hub {
	return NewHub(cfg, utils.NewNopLogger())
}

// dialHub поднимает httptest сервер с hub.ServeWS и подключается к нему
func dialHub(t *testing.T, hub *Hub) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

// readMessage читает следующий кадр и возвращает декодированное сообщение
func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msg, err := Decode(data)
	if err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// fakeClient - клиент без соединения, читающий send напрямую
func fakeClient(hub *Hub, buffer int) *Client {
	return &Client{id: "fake", hub: hub, send: make(chan []byte, buffer), logger: hub.logger}
}

// ============================================================
// Unit Tests
// ============================================================

func TestNewHub(t *testing.T) {
	hub := newTestHub(DefaultHubConfig())

	if hub == nil {
		t.Fatal("NewHub returned nil")
	}

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}

	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
}

func TestOriginChecker_Check(t *testing.T) {
	checker := NewOriginChecker("http://localhost:3000, https://example.com")

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},                       // empty origin allowed
		{"http://localhost:3000", true},  // allowed
		{"https://example.com", true},    // allowed
		{"http://evil.com", false},       // not allowed
		{"http://localhost:8080", false}, // not in list
	}

	for _, tt := range tests {
		got := checker.Check(tt.origin)
		if got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginChecker_AllowAll(t *testing.T) {
	for _, cfg := range []string{"", "*", "  "} {
		checker := NewOriginChecker(cfg)
		for _, origin := range []string{"http://localhost:3000", "https://evil.com"} {
			if !checker.Check(origin) {
				t.Errorf("NewOriginChecker(%q).Check(%q) = false", cfg, origin)
			}
		}
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	hub := newTestHub(HubConfig{})
	slow := fakeClient(hub, 1)
	fast := fakeClient(hub, 8)
	hub.insert(slow)
	hub.insert(fast)

	hub.Broadcast(NewHeartbeatMessage())
	hub.Broadcast(NewHeartbeatMessage())

	if hub.DroppedMessages() != 1 {
		t.Errorf("DroppedMessages() = %d, want 1", hub.DroppedMessages())
	}
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}
	if len(fast.send) != 2 {
		t.Errorf("fast client got %d messages, want 2", len(fast.send))
	}

	// канал медленного клиента закрыт hub-ом
	<-slow.send
	if _, ok := <-slow.send; ok {
		t.Error("slow client send channel must be closed")
	}
}

func TestHub_UnregisterIdempotent(t *testing.T) {
	hub := newTestHub(HubConfig{})
	c := fakeClient(hub, 1)
	hub.insert(c)
	hub.unregister(c)
	hub.unregister(c)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d", hub.ClientCount())
	}
}

func TestHub_Stop(t *testing.T) {
	hub := newTestHub(DefaultHubConfig())
	c := fakeClient(hub, 1)
	hub.insert(c)

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	hub.Stop()
	hub.Stop()

	select {
	case <-done:
		// OK - Run() exited
	case <-time.After(1 * time.Second):
		t.Error("Hub.Run() did not exit after Stop()")
	}

	if _, ok := <-c.send; ok {
		t.Error("client channel must be closed on Stop")
	}
	if hub.insert(fakeClient(hub, 1)) {
		t.Error("insert after Stop must be rejected")
	}
}

func TestHub_Heartbeat(t *testing.T) {
	hub := newTestHub(HubConfig{HeartbeatInterval: 10 * time.Millisecond})
	c := fakeClient(hub, 8)
	hub.insert(c)
	go hub.Run()
	defer hub.Stop()

	select {
	case data := <-c.send:
		msg, err := Decode(data)
		if err != nil || msg.MessageType() != MessageTypeHeartbeat {
			t.Errorf("got %s (%v), want heartbeat", data, err)
		}
	case <-time.After(time.Second):
		t.Fatal("no heartbeat")
	}
}

// ============================================================
// Relay поверх хранилища
// ============================================================

func TestHub_BootstrapThenLive(t *testing.T) {
	st := store.New(store.Options{InitialBalance: 10000})
	st.SetTickers([]models.TickerData{{Symbol: "BTC", Price: 100}})
	st.UpsertPosition(models.Position{ID: "p1", Symbol: "BTC", Side: models.SideLong, EntryPrice: 100, Quantity: 1})
	st.AddEquityPoint(models.EquityPoint{Timestamp: 1700000000000, Equity: 10000})

	hub := newTestHub(HubConfig{})
	hub.Attach(st)
	defer hub.Stop()

	conn, cleanup := dialHub(t, hub)
	defer cleanup()

	want := []MessageType{
		MessageTypeTickerSnapshot,
		MessageTypeAccountSnapshot,
		MessageTypeMetricsSnapshot,
		MessageTypeTradesSnapshot,
		MessageTypePositionUpdate,
		MessageTypeEquitySnapshot,
	}
	for i, w := range want {
		if got := readMessage(t, conn).MessageType(); got != w {
			t.Fatalf("bootstrap[%d] = %s, want %s", i, got, w)
		}
	}

	waitFor(t, func() bool { return hub.ClientCount() == 1 })
	st.UpdatePrice("btcusdt", 120)

	msg := readMessage(t, conn)
	pu, ok := msg.(*PriceUpdateMessage)
	if !ok {
		t.Fatalf("live message = %T, want price update", msg)
	}
	if pu.Symbol != "BTC" || pu.Price != 120 {
		t.Errorf("price update = %+v", pu)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := newTestHub(HubConfig{})
	hub.Attach(store.New(store.Options{}))
	defer hub.Stop()

	conn, cleanup := dialHub(t, hub)
	defer cleanup()
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHub_RejectedOrigin(t *testing.T) {
	hub := newTestHub(HubConfig{AllowedOrigins: "https://dash.example.com"})
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	if err == nil {
		t.Fatal("dial with foreign origin must fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}

func TestHub_AttachReplacesSource(t *testing.T) {
	first := store.New(store.Options{})
	second := store.New(store.Options{})

	hub := newTestHub(HubConfig{})
	c := fakeClient(hub, 8)
	hub.insert(c)

	hub.Attach(first)
	hub.Attach(second)

	first.UpdatePrice("BTC", 1)
	second.UpdatePrice("ETH", 2)

	if len(c.send) != 1 {
		t.Fatalf("got %d messages, want 1 from the current source", len(c.send))
	}
	msg, _ := Decode(<-c.send)
	if msg.(*PriceUpdateMessage).Symbol != "ETH" {
		t.Errorf("message from detached source leaked")
	}
}

// ============================================================
// Benchmarks
// ============================================================

// BenchmarkHub_Broadcast тестирует скорость broadcast
func BenchmarkHub_Broadcast(b *testing.B) {
	hub := newTestHub(HubConfig{})
	defer hub.Stop()

	msg := NewPriceUpdateMessage("BTC", 50000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Broadcast(msg)
	}
}

// BenchmarkHub_BroadcastRaw тестирует скорость broadcast уже сериализованных данных
func BenchmarkHub_BroadcastRaw(b *testing.B) {
	hub := newTestHub(HubConfig{})
	defer hub.Stop()

	data := []byte(`{"type":"heartbeat","ts":1}`)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastRaw(data)
	}
}

// BenchmarkOriginChecker_Check тестирует скорость проверки origin
func BenchmarkOriginChecker_Check(b *testing.B) {
	checker := NewOriginChecker("http://localhost:3000")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		checker.Check("http://localhost:3000")
	}
}

// BenchmarkHub_ManyClients симулирует много клиентов
func BenchmarkHub_ManyClients(b *testing.B) {
	hub := newTestHub(HubConfig{})
	defer hub.Stop()

	// Симулируем 100 клиентов
	for i := 0; i < 100; i++ {
		client := fakeClient(hub, clientSendBufferSize)
		hub.insert(client)

		// Горутина которая читает сообщения
		go func(c *Client) {
			for range c.send {
				// discard
			}
		}(client)
	}

	msg := NewPriceUpdateMessage("BTC", 50000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Broadcast(msg)
	}
}

// ============================================================
// Parallel Stress Test
// ============================================================

func TestHub_ConcurrentOperations(t *testing.T) {
	hub := newTestHub(HubConfig{})
	defer hub.Stop()

	var wg sync.WaitGroup
	const goroutines = 10
	const operations = 1000

	// Concurrent broadcasts
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				hub.Broadcast(NewHeartbeatMessage())
			}
		}()
	}

	// Concurrent register / unregister
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < operations/10; j++ {
				c := fakeClient(hub, 1)
				hub.insert(c)
				_ = hub.ClientCount()
				hub.unregister(c)
			}
		}()
	}

	wg.Wait()
}
