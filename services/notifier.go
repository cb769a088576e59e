package services

import "radar_server/models"

// Notifier delivers events to live endpoints. Delivery is best-effort: a false
// or zero result never fails the business operation that produced the event.
type Notifier interface {
	NotifyUser(userID string, event models.Event) bool
	NotifyChat(chatID string, event models.Event) int
}

func notifyUser(n Notifier, userID string, event models.Event) bool {
	if n == nil {
		return false
	}
	return n.NotifyUser(userID, event)
}

func notifyChat(n Notifier, chatID string, event models.Event) int {
	if n == nil {
		return 0
	}
	return n.NotifyChat(chatID, event)
}
