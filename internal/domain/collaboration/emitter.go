package collaboration

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"estatecollab/internal/domain/notification"
)

// EventSink persists events inside the mutating transaction and is woken once
// the transaction has committed. *notification.Outbox implements it.
type EventSink interface {
	Append(ctx context.Context, tx *gorm.DB, n *notification.Notification) error
	Wake()
}

// Emitter turns accepted mutations into notifications for the counterpart.
type Emitter struct {
	sink EventSink
}

func NewEmitter(sink EventSink) *Emitter {
	return &Emitter{sink: sink}
}

// Emit appends one notification addressed to the participant who is not actorRole.
func (e *Emitter) Emit(ctx context.Context, tx *Tx, actorID int64, actorRole Role, typ notification.Type, title, message string, extra map[string]any) error {
	c := tx.Collaboration()

	data := map[string]any{
		"status":           c.Status,
		"post_type":        c.Post.Type,
		"post_id":          c.Post.ID,
		"contract_version": c.ContractVersion,
		"actor_role":       actorRole,
	}
	for k, v := range extra {
		data[k] = v
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}

	n := &notification.Notification{
		RecipientID: c.Counterpart(actorRole),
		ActorID:     actorID,
		Type:        typ,
		Title:       title,
		Message:     message,
		EntityType:  notification.EntityCollaboration,
		EntityID:    c.ID,
		Data:        datatypes.JSON(raw),
		CreatedAt:   tx.Now(),
	}
	if err := e.sink.Append(ctx, tx.DB(), n); err != nil {
		return fmt.Errorf("append %s event: %w", typ, err)
	}
	return nil
}

// Flush wakes delivery after a commit.
func (e *Emitter) Flush() {
	e.sink.Wake()
}
