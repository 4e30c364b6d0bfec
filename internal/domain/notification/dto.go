package notification

import (
	"time"
)

type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// NotificationResponse for API responses and push payloads
type NotificationResponse struct {
	ID        string         `json:"id"`
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message,omitempty"`
	Entity    *EntityRef     `json:"entity,omitempty"`
	ActorID   int64          `json:"actor_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	ReadAt    *string        `json:"read_at,omitempty"`
	CreatedAt string         `json:"created_at"`
}

// NotificationResponseFromEntity converts entity to response DTO
func NotificationResponseFromEntity(n *Notification) *NotificationResponse {
	resp := &NotificationResponse{
		ID:        n.ID,
		Seq:       n.Seq,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		ActorID:   n.ActorID,
		Read:      n.IsRead,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	if n.EntityType != "" {
		resp.Entity = &EntityRef{Type: n.EntityType, ID: n.EntityID}
	}
	if len(n.Data) > 0 {
		resp.Data = n.DataMap()
	}
	if n.ReadAt != nil {
		readAt := n.ReadAt.UTC().Format(time.RFC3339Nano)
		resp.ReadAt = &readAt
	}

	return resp
}

// NotificationListResponse for list endpoint
type NotificationListResponse struct {
	Notifications []*NotificationResponse `json:"notifications"`
	NextCursor    string                  `json:"next_cursor,omitempty"`
	HasMore       bool                    `json:"has_more"`
	UnreadCount   int64                   `json:"unread_count"`
}

// UnreadCountResponse for unread count endpoint
type UnreadCountResponse struct {
	UnreadCount int64 `json:"unread_count"`
}

type PreferencesResponse struct {
	UserID             int64  `json:"user_id"`
	PushEnabled        bool   `json:"push_enabled"`
	EmailDigestEnabled bool   `json:"email_digest_enabled"`
	UpdatedAt          string `json:"updated_at,omitempty"`
}

func PreferencesResponseFromEntity(p *Preferences) *PreferencesResponse {
	resp := &PreferencesResponse{
		UserID:             p.UserID,
		PushEnabled:        p.PushEnabled,
		EmailDigestEnabled: p.EmailDigestEnabled,
	}
	if !p.UpdatedAt.IsZero() {
		resp.UpdatedAt = p.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// UpdatePreferencesRequest for updating notification preferences
type UpdatePreferencesRequest struct {
	PushEnabled        *bool `json:"push_enabled,omitempty"`
	EmailDigestEnabled *bool `json:"email_digest_enabled,omitempty"`
}
