package handlers

import (
	"sync"

	"tradedash/internal/feed"
)

// ============ Mock Feed ============

// MockFeedStatus мок для FeedStatusReader
type MockFeedStatus struct {
	mu     sync.RWMutex
	status feed.Status
}

// NewMockFeedStatus создает мок с одним соединением в указанном состоянии
func NewMockFeedStatus(name, state string) *MockFeedStatus {
	return &MockFeedStatus{status: feed.Status{
		Feed: name,
		Connections: []feed.ConnectionStatus{
			{Name: name, URL: "ws://upstream/ws", State: state},
		},
	}}
}

func (m *MockFeedStatus) Status() feed.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// ============ Mock Relay ============

// MockRelay мок для RelayStats
type MockRelay struct {
	Clients int
	Dropped int64
}

func (m *MockRelay) ClientCount() int       { return m.Clients }
func (m *MockRelay) DroppedMessages() int64 { return m.Dropped }

// ============ Mock Connection ============

type mockConn bool

func (m mockConn) Connected() bool { return bool(m) }
