package ws

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/jikoni-pos/api/internal/service"
)

// Notifier adapts the hub to the service layer's notification interface.
type Notifier struct {
	hub *Hub
}

func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

func (n *Notifier) OrderChanged(hotelID uuid.UUID, event string, payload service.OrderEvent) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	n.hub.BroadcastToHotel(hotelID, Event{Type: event, Payload: data})
}
