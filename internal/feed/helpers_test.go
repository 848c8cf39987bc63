package feed

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tradedash/internal/exchange"
	"tradedash/internal/store"
)

// upstream - тестовый WebSocket сервер, отдающий соединения в канал
type upstream struct {
	*httptest.Server
	conns chan *websocket.Conn
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{conns: make(chan *websocket.Conn, 16)}
	upgrader := websocket.Upgrader{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		u.conns <- c
	}))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) wsURL() string {
	return "ws" + strings.TrimPrefix(u.URL, "http")
}

func (u *upstream) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-u.conns:
		t.Cleanup(func() { c.Close() })
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for feed connection")
		return nil
	}
}

func send(t *testing.T, c *websocket.Conn, frame string) {
	t.Helper()
	if err := c.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// connectedLog записывает смены флага connected
type connectedLog struct {
	mu     sync.Mutex
	values []bool
}

func recordConnected(st *store.Store) *connectedLog {
	l := &connectedLog{}
	st.Subscribe(func(c store.Change) {
		if c.Kind == store.ChangeConnected {
			l.mu.Lock()
			l.values = append(l.values, c.Connected)
			l.mu.Unlock()
		}
	})
	return l
}

func (l *connectedLog) get() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.values...)
}

func testWS(delay time.Duration) exchange.WSReconnectConfig {
	return exchange.WSReconnectConfig{
		ReconnectDelay: delay,
		ConnectTimeout: time.Second,
		PongTimeout:    time.Second,
	}
}
