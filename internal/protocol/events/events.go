// Package events содержит типы событий жизненного цикла игровых сессий
package events

// EventType представляет тип события сессии
type EventType string

const (
	// EventPlayerConnected - игрок подключился и получил идентификатор
	EventPlayerConnected EventType = "player.connected"
	// EventPlayerDisconnected - игрок вышел сам
	EventPlayerDisconnected EventType = "player.disconnected"
	// EventPlayerReconnected - игрок возобновил сессию в льготный период
	EventPlayerReconnected EventType = "player.reconnected"
	// EventPlayerTimedOut - игрок отключён по таймауту неактивности
	EventPlayerTimedOut EventType = "player.timed_out"
	// EventRecordExpired - льготный период записи истёк, идентификатор освобождён
	EventRecordExpired EventType = "player.record_expired"
)

// PlayerEvent описывает одно изменение состояния сессии
type PlayerEvent struct {
	Type      EventType `json:"type"`
	PlayerID  string    `json:"player_id"`
	Addr      string    `json:"addr,omitempty"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Timestamp int64     `json:"timestamp"` // Unix-миллисекунды
}
