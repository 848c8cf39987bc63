package exchange

import (
	"sort"
	"sync"
)

// ConnGroup агрегирует состояние нескольких соединений в один флаг
//
// "Подключено" выставляется только когда открыты все участники группы,
// "отключено" - когда закрылось последнее открытое соединение.
// Между этими событиями флаг не меняется.
type ConnGroup struct {
	mu        sync.Mutex
	members   map[string]bool // имя -> открыто
	openCount int
	connected bool
	onChange  func(connected bool)
}

// NewConnGroup создаёт группу; onChange вызывается только при смене флага
func NewConnGroup(onChange func(connected bool)) *ConnGroup {
	return &ConnGroup{
		members:  make(map[string]bool),
		onChange: onChange,
	}
}

// Add регистрирует участника группы (изначально не открыт)
func (g *ConnGroup) Add(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[name]; !ok {
		g.members[name] = false
	}
}

// Remove исключает участника (намеренно закрытое соединение)
func (g *ConnGroup) Remove(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	open, ok := g.members[name]
	if !ok {
		return
	}
	delete(g.members, name)
	if open {
		g.openCount--
	}
	g.evaluateLocked()
}

// MarkOpen отмечает соединение открытым
func (g *ConnGroup) MarkOpen(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	open, ok := g.members[name]
	if !ok || open {
		return
	}
	g.members[name] = true
	g.openCount++
	g.evaluateLocked()
}

// MarkClosed отмечает соединение закрытым
func (g *ConnGroup) MarkClosed(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	open, ok := g.members[name]
	if !ok || !open {
		return
	}
	g.members[name] = false
	g.openCount--
	g.evaluateLocked()
}

func (g *ConnGroup) evaluateLocked() {
	switch {
	case !g.connected && len(g.members) > 0 && g.openCount == len(g.members):
		g.connected = true
	case g.connected && g.openCount == 0:
		g.connected = false
	default:
		return
	}
	if g.onChange != nil {
		g.onChange(g.connected)
	}
}

// Connected возвращает агрегированный флаг
func (g *ConnGroup) Connected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// OpenCount возвращает число открытых соединений и размер группы
func (g *ConnGroup) OpenCount() (open, total int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.openCount, len(g.members)
}

// Members возвращает имена участников в алфавитном порядке
func (g *ConnGroup) Members() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.members))
	for name := range g.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Track подключает менеджер к группе через его колбэки
//
// onConnect/onDisconnect менеджера заменяются; extra (если не nil)
// вызывается после обновления группы.
func (g *ConnGroup) Track(m *WSReconnectManager, extra func(open bool, err error)) {
	name := m.Name()
	g.Add(name)
	m.SetOnConnect(func() {
		g.MarkOpen(name)
		if extra != nil {
			extra(true, nil)
		}
	})
	m.SetOnDisconnect(func(err error) {
		g.MarkClosed(name)
		if extra != nil {
			extra(false, err)
		}
	})
}
