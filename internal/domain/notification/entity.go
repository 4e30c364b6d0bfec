package notification

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Type represents notification type
type Type string

const (
	// Proposal lifecycle
	TypeProposalReceived Type = "collab:proposal_received" // Owner: a collaborator proposed on their post
	TypeProposalAccepted Type = "collab:proposal_accepted" // Collaborator
	TypeProposalRejected Type = "collab:proposal_rejected" // Collaborator

	// Collaboration lifecycle
	TypeActivated Type = "collab:activated"
	TypeCompleted Type = "collab:completed"
	TypeCancelled Type = "collab:cancelled"
	TypeNoteAdded Type = "collab:note_added"

	// Contract
	TypeContractUpdated Type = "contract:updated" // signatures were reset
	TypeContractSigned  Type = "contract:signed"

	// Progress
	TypeStepValidated Type = "progress:step_validated" // one side validated, waiting for the other
	TypeStepCompleted Type = "progress:step_completed"
)

func (t Type) Valid() bool {
	switch t {
	case TypeProposalReceived, TypeProposalAccepted, TypeProposalRejected,
		TypeActivated, TypeCompleted, TypeCancelled, TypeNoteAdded,
		TypeContractUpdated, TypeContractSigned,
		TypeStepValidated, TypeStepCompleted:
		return true
	}
	return false
}

const EntityCollaboration = "collaboration"

// Notification is one durable event addressed to one recipient. Seq is
// assigned on insert and orders a recipient's events; ID is the stable
// identity clients deduplicate on. DigestAttempts counts failed digest sends
// that included the event.
type Notification struct {
	Seq            int64          `gorm:"column:seq;primaryKey;autoIncrement"`
	ID             string         `gorm:"column:id;size:36;not null;uniqueIndex"`
	RecipientID    int64          `gorm:"column:recipient_id;not null;index:idx_notifications_recipient_read,priority:1"`
	ActorID        int64          `gorm:"column:actor_id"`
	Type           Type           `gorm:"column:type;size:48;not null"`
	Title          string         `gorm:"column:title;size:255;not null"`
	Message        string         `gorm:"column:message;type:text"`
	EntityType     string         `gorm:"column:entity_type;size:32"`
	EntityID       string         `gorm:"column:entity_id;size:64;index"`
	Data           datatypes.JSON `gorm:"column:data"`
	IsRead         bool           `gorm:"column:is_read;not null;index:idx_notifications_recipient_read,priority:2"`
	ReadAt         *time.Time     `gorm:"column:read_at"`
	CreatedAt      time.Time      `gorm:"column:created_at;not null"`
	PushedAt       *time.Time     `gorm:"column:pushed_at;index"`
	EmailedAt      *time.Time     `gorm:"column:emailed_at"`
	DigestAttempts int            `gorm:"column:digest_attempts;not null;default:0"`
	DeletedAt      gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName specifies table name for GORM
func (Notification) TableName() string {
	return "notifications"
}

// DataMap decodes the JSON payload; malformed payloads yield an empty map.
func (n *Notification) DataMap() map[string]any {
	out := map[string]any{}
	if len(n.Data) > 0 {
		_ = json.Unmarshal(n.Data, &out)
	}
	return out
}

// MarkAsRead marks notification as read with timestamp
func (n *Notification) MarkAsRead(at time.Time) {
	n.IsRead = true
	n.ReadAt = &at
}
