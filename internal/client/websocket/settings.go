package websocket

import "time"

// Settings параметры транспорта
type Settings struct {
	// ReconnectMinDelay и ReconnectMaxDelay задают окно случайной задержки
	// перед повторным подключением
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
	// OfflineThreshold количество неудачных попыток подряд, после которого
	// показывается уведомление об offline режиме
	OfflineThreshold int
	// DisplayOnly клиент работает как проектор, уведомления не показываются
	DisplayOnly bool
	// Compression сжимать исходящие кадры lz4, если это выгодно
	Compression bool

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
}

// DefaultSettings возвращает настройки по умолчанию
func DefaultSettings() *Settings {
	return &Settings{
		ReconnectMinDelay: 2000 * time.Millisecond,
		ReconnectMaxDelay: 5000 * time.Millisecond,
		OfflineThreshold:  3,
		Compression:       true,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		PingInterval:      30 * time.Second,
	}
}
