package exchange

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tradedash/pkg/utils"
)

// testWSServer - WebSocket сервер для тестов менеджера
type testWSServer struct {
	*httptest.Server
	conns   chan *websocket.Conn
	entered chan struct{}
}

func newTestWSServer(t *testing.T, hold <-chan struct{}) *testWSServer {
	t.Helper()
	s := &testWSServer{
		conns:   make(chan *websocket.Conn, 16),
		entered: make(chan struct{}, 16),
	}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.entered <- struct{}{}
		if hold != nil {
			<-hold
		}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- c
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *testWSServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func waitConn(t *testing.T, ch <-chan *websocket.Conn) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for server connection")
		return nil
	}
}

func expectEvent(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("event = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for event %v", want)
	}
}

func testConfig(delay time.Duration) WSReconnectConfig {
	return WSReconnectConfig{
		ReconnectDelay: delay,
		ConnectTimeout: time.Second,
		PongTimeout:    time.Second,
	}
}

func trackEvents(m *WSReconnectManager) chan bool {
	events := make(chan bool, 16)
	m.SetOnConnect(func() { events <- true })
	m.SetOnDisconnect(func(error) { events <- false })
	return events
}

func TestWSReconnectManager_ReconnectAfterRemoteClose(t *testing.T) {
	srv := newTestWSServer(t, nil)
	const delay = 100 * time.Millisecond

	m := NewWSReconnectManager("test", srv.wsURL(), testConfig(delay), utils.NewNopLogger())
	events := trackEvents(m)

	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c1 := waitConn(t, srv.conns)
	expectEvent(t, events, true)
	if !m.IsConnected() {
		t.Fatal("manager should be open")
	}

	// закрытие со стороны сервера
	closedAt := time.Now()
	c1.Close()
	expectEvent(t, events, false)

	c2 := waitConn(t, srv.conns)
	defer c2.Close()
	if elapsed := time.Since(closedAt); elapsed < delay {
		t.Errorf("reconnected after %v, want >= %v", elapsed, delay)
	}
	expectEvent(t, events, true)

	if got := m.Reconnects(); got != 1 {
		t.Errorf("Reconnects = %d, want 1", got)
	}

	// намеренное закрытие: отключение анонсируется, переподключения нет
	if err := m.Close(); err != nil {
		t.Logf("Close: %v", err)
	}
	expectEvent(t, events, false)

	select {
	case <-srv.conns:
		t.Fatal("unexpected reconnect after deliberate close")
	case <-time.After(3 * delay):
	}
	if m.GetState() != WSStateClosed {
		t.Errorf("state = %s, want closed", m.GetState())
	}
	if got := m.Reconnects(); got != 1 {
		t.Errorf("Reconnects after Close = %d, want 1", got)
	}
}

func TestWSReconnectManager_DeliversMessages(t *testing.T) {
	srv := newTestWSServer(t, nil)
	m := NewWSReconnectManager("test", srv.wsURL(), testConfig(time.Second), utils.NewNopLogger())
	defer m.Close()

	got := make(chan string, 4)
	m.SetOnMessage(func(b []byte) { got <- string(b) })
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c := waitConn(t, srv.conns)
	defer c.Close()
	if err := c.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`)); err != nil {
		t.Fatalf("server write: %v", err)
	}

	select {
	case msg := <-got:
		if msg != `{"type":"heartbeat"}` {
			t.Errorf("message = %q", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestWSReconnectManager_Send(t *testing.T) {
	srv := newTestWSServer(t, nil)
	m := NewWSReconnectManager("test", srv.wsURL(), testConfig(time.Second), utils.NewNopLogger())
	defer m.Close()

	if err := m.Send(map[string]string{"op": "ping"}); err == nil {
		t.Error("Send before connect should fail")
	}

	events := trackEvents(m)
	m.Start()
	c := waitConn(t, srv.conns)
	defer c.Close()
	expectEvent(t, events, true)

	if err := m.Send(map[string]string{"op": "subscribe"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if !strings.Contains(string(data), `"subscribe"`) {
		t.Errorf("server got %s", data)
	}
}

func TestWSReconnectManager_CloseWhileConnecting(t *testing.T) {
	hold := make(chan struct{})
	srv := newTestWSServer(t, hold)

	m := NewWSReconnectManager("test", srv.wsURL(), testConfig(50*time.Millisecond), utils.NewNopLogger())
	var connects int32
	m.SetOnConnect(func() { atomic.AddInt32(&connects, 1) })

	m.Start()
	select {
	case <-srv.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("dial never reached server")
	}
	if m.GetState() != WSStateConnecting {
		t.Fatalf("state = %s, want connecting", m.GetState())
	}

	m.Close()
	close(hold)

	select {
	case c := <-srv.conns:
		// handshake мог завершиться на стороне сервера; клиент обязан его закрыть
		c.SetReadDeadline(time.Now().Add(time.Second))
		if _, _, err := c.ReadMessage(); err == nil {
			t.Error("client kept the late connection open")
		}
		c.Close()
	case <-time.After(200 * time.Millisecond):
	}

	if atomic.LoadInt32(&connects) != 0 {
		t.Error("onConnect called after deliberate close")
	}
	if m.GetState() != WSStateClosed {
		t.Errorf("state = %s, want closed", m.GetState())
	}
}

func TestWSReconnectManager_DialFailureRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	m := NewWSReconnectManager("test", url, testConfig(20*time.Millisecond), utils.NewNopLogger())
	m.Start()

	deadline := time.Now().Add(2 * time.Second)
	for m.Attempts() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("attempts = %d, want >= 3", m.Attempts())
		}
		time.Sleep(5 * time.Millisecond)
	}

	m.Close()
	stopped := m.Reconnects()
	time.Sleep(100 * time.Millisecond)
	if got := m.Reconnects(); got != stopped {
		t.Errorf("reconnects continued after Close: %d -> %d", stopped, got)
	}
}

func TestWSReconnectManager_StartTwiceAndAfterClose(t *testing.T) {
	srv := newTestWSServer(t, nil)
	m := NewWSReconnectManager("test", srv.wsURL(), testConfig(time.Second), utils.NewNopLogger())

	if err := m.Start(); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := m.Start(); err == nil {
		t.Error("second Start should fail")
	}
	c := waitConn(t, srv.conns)
	defer c.Close()

	m.Close()
	if err := m.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if err := m.Start(); !errors.Is(err, ErrManagerClosed) {
		t.Errorf("Start after Close = %v, want ErrManagerClosed", err)
	}
	select {
	case <-m.Done():
	default:
		t.Error("Done not closed")
	}
}

func TestWSReconnectManager_ConcurrentStart(t *testing.T) {
	srv := newTestWSServer(t, nil)
	m := NewWSReconnectManager("test", srv.wsURL(), testConfig(time.Second), utils.NewNopLogger())
	defer m.Close()

	const callers = 8
	var ok atomic.Int32
	start := make(chan struct{})
	done := make(chan struct{}, callers)
	for i := 0; i < callers; i++ {
		go func() {
			<-start
			if m.Start() == nil {
				ok.Add(1)
			}
			done <- struct{}{}
		}()
	}
	close(start)
	for i := 0; i < callers; i++ {
		<-done
	}

	if got := ok.Load(); got != 1 {
		t.Fatalf("successful Start calls = %d, want 1", got)
	}
	// Idle покидается синхронно внутри Start
	if st := m.GetState(); st == WSStateIdle {
		t.Errorf("state after Start = %s", st)
	}
	c := waitConn(t, srv.conns)
	defer c.Close()

	select {
	case extra := <-srv.conns:
		extra.Close()
		t.Error("second connection dialed")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWSReconnectManager_PingKeepAlive(t *testing.T) {
	srv := newTestWSServer(t, nil)
	cfg := testConfig(time.Second)
	cfg.PingInterval = 30 * time.Millisecond

	m := NewWSReconnectManager("test", srv.wsURL(), cfg, utils.NewNopLogger())
	defer m.Close()
	m.Start()

	c := waitConn(t, srv.conns)
	defer c.Close()

	pings := make(chan struct{}, 8)
	c.SetPingHandler(func(data string) error {
		pings <- struct{}{}
		return c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-pings:
		case <-time.After(2 * time.Second):
			t.Fatalf("ping %d not received", i+1)
		}
	}
	if !m.IsConnected() {
		t.Error("connection should stay open while pongs arrive")
	}
}

func TestConnGroup_TrackManagers(t *testing.T) {
	srv := newTestWSServer(t, nil)
	changes := make(chan bool, 8)
	g := NewConnGroup(func(c bool) { changes <- c })

	a := NewWSReconnectManager("a", srv.wsURL(), testConfig(time.Hour), utils.NewNopLogger())
	b := NewWSReconnectManager("b", srv.wsURL(), testConfig(time.Hour), utils.NewNopLogger())
	g.Track(a, nil)
	g.Track(b, nil)

	a.Start()
	ca := waitConn(t, srv.conns)
	defer ca.Close()
	select {
	case <-changes:
		t.Fatal("group connected with one of two open")
	case <-time.After(50 * time.Millisecond):
	}

	b.Start()
	cb := waitConn(t, srv.conns)
	defer cb.Close()
	expectEvent(t, changes, true)

	a.Close()
	select {
	case <-changes:
		t.Fatal("group disconnected while b is open")
	case <-time.After(50 * time.Millisecond):
	}
	b.Close()
	expectEvent(t, changes, false)
}
