package notification

import (
	"context"
	"encoding/json"
)

// Push event names sent over the realtime channel.
const (
	EventNew     = "notification:new"
	EventCount   = "notifications:count"
	EventRead    = "notification:read"
	EventReadAll = "notifications:readAll"
	EventPong    = "pong"
)

// Envelope is one message on the realtime channel.
type Envelope struct {
	Type         string                `json:"type"`
	Notification *NotificationResponse `json:"notification,omitempty"`
	ID           string                `json:"id,omitempty"`
	UnreadCount  *int64                `json:"unread_count,omitempty"`
}

func NewEnvelope(n *Notification) *Envelope {
	return &Envelope{Type: EventNew, Notification: NotificationResponseFromEntity(n)}
}

func CountEnvelope(unread int64) *Envelope {
	return &Envelope{Type: EventCount, UnreadCount: &unread}
}

func ReadEnvelope(id string) *Envelope {
	return &Envelope{Type: EventRead, ID: id}
}

func ReadAllEnvelope() *Envelope {
	return &Envelope{Type: EventReadAll}
}

func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Broker hands envelopes to the live sessions of a user, wherever they are
// connected. Delivery is best-effort.
type Broker interface {
	Publish(ctx context.Context, userID int64, env *Envelope) error
}
