package eventbus

import (
	"context"
	"encoding/json"

	"github.com/annel0/mmo-netcode/internal/logging"
	"github.com/annel0/mmo-netcode/internal/protocol/events"
)

// StartLoggingListener подписывается на все события сессий и пишет их в лог.
// Функция неблокирующая.
func StartLoggingListener(bus EventBus) error {
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		var pe events.PlayerEvent
		if err := json.Unmarshal(ev.Payload, &pe); err != nil {
			logging.Debug("[EventBus] %s %s src=%s size=%dB", ev.ID, ev.EventType, ev.Source, len(ev.Payload))
			return
		}
		logging.Info("[EventBus] %s игрок=%s addr=%s pos=(%d,%d)",
			pe.Type, pe.PlayerID, pe.Addr, pe.X, pe.Y)
	})
	if err != nil {
		return err
	}
	logging.Info("🪵 LoggingListener: подписка на события сессий активирована")
	return nil
}
