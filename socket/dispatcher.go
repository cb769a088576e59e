package socket

import (
	"log"

	"radar_server/models"
	"radar_server/services"
)

// Dispatcher delivers typed events through the registry. Payloads that fail
// validation are dropped here and never reach a client.
type Dispatcher struct {
	Registry *Registry
}

var _ services.Notifier = (*Dispatcher)(nil)

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{Registry: registry}
}

func (d *Dispatcher) NotifyUser(userID string, event models.Event) bool {
	if err := event.Validate(); err != nil {
		log.Printf("❌ Dropping %s for %s: %v", event.EventName(), userID, err)
		return false
	}
	delivered := d.Registry.SendToUser(userID, event.EventName(), event)
	if !delivered {
		log.Printf("💤 %s not delivered, user %s is offline", event.EventName(), userID)
	}
	return delivered
}

func (d *Dispatcher) NotifyChat(chatID string, event models.Event) int {
	if err := event.Validate(); err != nil {
		log.Printf("❌ Dropping %s for chat %s: %v", event.EventName(), chatID, err)
		return 0
	}
	return d.Registry.BroadcastToRoom(models.RoomForChat(chatID), event.EventName(), event)
}
