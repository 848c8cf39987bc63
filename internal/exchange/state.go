package exchange

// WSConnectionState - состояние управляемого WebSocket соединения
type WSConnectionState int32

const (
	WSStateIdle       WSConnectionState = iota // ещё не подключались
	WSStateConnecting                          // идёт handshake
	WSStateOpen                                // соединение открыто
	WSStateClosed                              // закрыто; ждём переподключения или остановлены
)

func (s WSConnectionState) String() string {
	switch s {
	case WSStateIdle:
		return "idle"
	case WSStateConnecting:
		return "connecting"
	case WSStateOpen:
		return "open"
	case WSStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ValidTransitions определяет допустимые переходы между состояниями
var ValidTransitions = map[WSConnectionState][]WSConnectionState{
	WSStateIdle:       {WSStateConnecting, WSStateClosed},
	WSStateConnecting: {WSStateOpen, WSStateClosed},
	WSStateOpen:       {WSStateClosed},
	WSStateClosed:     {WSStateConnecting, WSStateClosed}, // Closed -> Closed при остановке во время ожидания
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to WSConnectionState) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo возвращает описание состояния для статуса
func StateInfo(s WSConnectionState) string {
	switch s {
	case WSStateIdle:
		return "Соединение ещё не запускалось"
	case WSStateConnecting:
		return "Подключение..."
	case WSStateOpen:
		return "Соединение открыто"
	case WSStateClosed:
		return "Соединение закрыто"
	default:
		return "Неизвестное состояние"
	}
}
